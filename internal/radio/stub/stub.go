// Package stub implements an in-memory radio for tests and for developing
// on machines without a BLE adapter. The advertiser records every
// broadcast; the scanner replays injected advertisement events.
package stub

import (
	"context"
	"sync"

	"github.com/avetra/bleprobe/internal/radio"
)

// Advertiser records Broadcast requests instead of emitting them.
type Advertiser struct {
	mu     sync.Mutex
	active bool
	log    []radio.Broadcast

	// FailAfter, when > 0, makes Advertise return FailErr once that many
	// broadcasts have succeeded.
	FailAfter int
	FailErr   error

	// StartErr, when set, is returned by every Advertise call.
	StartErr error

	// ReadyErr, when set, is reported by Ready.
	ReadyErr error
}

var (
	_ radio.Advertiser = (*Advertiser)(nil)
	_ radio.Scanner    = (*Scanner)(nil)
)

func NewAdvertiser() *Advertiser { return &Advertiser{} }

// Ready mirrors the availability probe of the BlueZ backend.
func (a *Advertiser) Ready() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ReadyErr
}

func (a *Advertiser) Advertise(_ context.Context, b radio.Broadcast) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.StartErr != nil {
		return a.StartErr
	}
	if a.active {
		return radio.ErrAlreadyActive
	}
	if a.FailAfter > 0 && len(a.log) >= a.FailAfter {
		return a.FailErr
	}

	data := make([]byte, len(b.ManufacturerData))
	copy(data, b.ManufacturerData)
	b.ManufacturerData = data

	a.log = append(a.log, b)
	a.active = true
	return nil
}

func (a *Advertiser) StopAdvertise() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
	return nil
}

// Broadcasts returns a copy of every broadcast requested so far.
func (a *Advertiser) Broadcasts() []radio.Broadcast {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]radio.Broadcast, len(a.log))
	copy(out, a.log)
	return out
}

// Active reports whether a broadcast is currently on air.
func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Scanner replays a fixed set of advertisement events and then blocks
// until the scan context is cancelled.
type Scanner struct {
	Events []radio.AdvEvent
	Err    error
}

func NewScanner(events ...radio.AdvEvent) *Scanner {
	return &Scanner{Events: events}
}

func (s *Scanner) Scan(ctx context.Context, ch chan<- radio.AdvEvent) error {
	if s.Err != nil {
		return s.Err
	}
	for _, ev := range s.Events {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}
