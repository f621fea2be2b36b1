// Package beacon drives the sender role: a cooperative duty-cycle loop
// that broadcasts a counter and transmit timestamp inside a
// manufacturer-specific AD structure, once per tick.
package beacon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/logbuf"
	"github.com/avetra/bleprobe/internal/logging"
	"github.com/avetra/bleprobe/internal/radio"
)

// State of the advertise session.
type State int

const (
	StateIdle State = iota
	StateAdvertising
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Mode selects the duty-cycle tick interval.
type Mode int

const (
	ModeLowLatency Mode = iota
	ModeBalanced
	ModeLowPower
)

// Interval maps a mode to its tick interval. Unrecognized modes fall back
// to the balanced interval.
func (m Mode) Interval() time.Duration {
	switch m {
	case ModeLowLatency:
		return 20 * time.Millisecond
	case ModeBalanced:
		return 250 * time.Millisecond
	case ModeLowPower:
		return 1000 * time.Millisecond
	default:
		return 250 * time.Millisecond
	}
}

func (m Mode) String() string {
	switch m {
	case ModeLowLatency:
		return "low-latency"
	case ModeBalanced:
		return "balanced"
	case ModeLowPower:
		return "low-power"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMode maps a user-supplied mode name; unrecognized names get the
// balanced default.
func ParseMode(s string) Mode {
	switch s {
	case "low-latency":
		return ModeLowLatency
	case "low-power":
		return ModeLowPower
	default:
		return ModeBalanced
	}
}

// Status is a point-in-time snapshot of the session, safe to read from any
// goroutine. Reads are eventually visible with respect to the loop, which
// is enough for a diagnostic display.
type Status struct {
	State    State
	Counter  uint16
	Interval time.Duration
	Power    byte
	Err      error // cause when State is StateStopped after an abort
}

// Controller owns the duty-cycle state machine. All mutation happens on
// the loop goroutine; observers read atomic snapshots.
type Controller struct {
	advertiser radio.Advertiser
	localName  string
	trail      *logbuf.Buffer
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	status atomic.Pointer[Status]
}

// New creates a controller broadcasting under the given local name. trail
// may be nil when no event trail is wanted.
func New(advertiser radio.Advertiser, localName string, trail *logbuf.Buffer) *Controller {
	c := &Controller{
		advertiser: advertiser,
		localName:  localName,
		trail:      trail,
		now:        time.Now,
	}
	c.status.Store(&Status{State: StateIdle})
	return c
}

// Status returns the latest session snapshot.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// Start validates the radio and begins the duty-cycle loop in the
// background. On a validation failure the session stays idle and the
// specific cause (radio.ErrNotSupported or radio.ErrPermissionDenied) is
// returned.
func (c *Controller) Start(ctx context.Context, power byte, mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return radio.ErrAlreadyActive
	}

	if err := c.advertiser.Ready(); err != nil {
		logging.Error("Advertise start rejected", zap.Error(err))
		return fmt.Errorf("start advertising: %w", err)
	}

	interval := mode.Interval()
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.status.Store(&Status{State: StateAdvertising, Interval: interval, Power: power})

	logging.Info("Advertise session started",
		zap.String("name", c.localName),
		zap.String("mode", mode.String()),
		zap.Duration("interval", interval),
		zap.String("power", adv.CodeString(power)),
	)
	c.appendTrail(fmt.Sprintf("=== Advertise session START (mode=%s interval=%s power=%s)",
		mode, interval, adv.CodeString(power)))

	go c.loop(loopCtx, power, interval)
	return nil
}

// Stop halts the session. It is idempotent: the radio stop request is
// issued immediately and unconditionally, while the loop itself winds down
// cooperatively at its next tick boundary (up to one interval later).
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()

	// Always try to kill an in-flight broadcast, whatever state we think
	// we are in.
	if err := c.advertiser.StopAdvertise(); err != nil {
		logging.Warn("Radio stop request failed", zap.Error(err))
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	st := *c.status.Load()
	if st.State != StateStopped {
		st.State = StateStopped
		c.status.Store(&st)
	}
	c.appendTrail("=== Advertise session STOP")
}

// loop runs one tick per interval: broadcast on, sleep, broadcast off,
// counter increment. Cancellation is observed once per tick boundary.
func (c *Controller) loop(ctx context.Context, power byte, interval time.Duration) {
	defer close(c.done)
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	var counter uint16
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		txUnixMs := uint64(c.now().UnixMilli())
		payload := adv.EncodePayload(counter, power, txUnixMs)

		err := c.advertiser.Advertise(ctx, radio.Broadcast{
			LocalName:        c.localName,
			CompanyID:        adv.CompanyID,
			ManufacturerData: payload,
			IncludeTxPower:   true,
			TxPowerLevel:     power,
		})
		if err != nil {
			// A single failed broadcast ends the session; there is no
			// retry tier in a latency probe.
			logging.Error("Broadcast request failed, aborting session",
				zap.Uint16("counter", counter),
				zap.Error(err),
			)
			c.appendTrail(fmt.Sprintf("!!! Broadcast failed at counter %d: %v", counter, err))
			c.status.Store(&Status{State: StateStopped, Counter: counter, Interval: interval, Power: power, Err: err})
			return
		}

		logging.Debug("Broadcast on",
			zap.Uint16("counter", counter),
			zap.Uint64("tx_unix_ms", txUnixMs),
		)
		c.appendTrail(fmt.Sprintf("TX counter %d at %d ms", counter, txUnixMs))

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			_ = c.advertiser.StopAdvertise()
			c.status.Store(&Status{State: StateStopped, Counter: counter, Interval: interval, Power: power})
			return
		case <-timer.C:
		}

		if err := c.advertiser.StopAdvertise(); err != nil {
			logging.Warn("Broadcast off request failed", zap.Error(err))
		}

		counter++ // uint16 wrap at 65536 is the documented counter behavior
		c.status.Store(&Status{State: StateAdvertising, Counter: counter, Interval: interval, Power: power})
	}
}

func (c *Controller) appendTrail(line string) {
	if c.trail != nil {
		c.trail.Append(line)
	}
}
