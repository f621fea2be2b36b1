// Package scan implements the receiver role: it filters inbound
// advertisement events down to the configured target identity, decodes the
// probe payload, and correlates receive time against the embedded transmit
// timestamp.
package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/logbuf"
	"github.com/avetra/bleprobe/internal/logging"
	"github.com/avetra/bleprobe/internal/radio"
)

// Result is one correlated observation of a probe broadcast. TxPowerAD is
// adv.TxPowerAbsent when the frame carried no Tx-Power structure;
// PayloadFound gates Counter, TxUnixMs, DeltaMs and PowerCode.
type Result struct {
	ScanCycle    int
	RxUnixMs     uint64
	TxUnixMs     uint64
	DeltaMs      int64
	Counter      uint16
	RSSI         int16
	TxPowerAD    int8
	PowerCode    byte
	PayloadFound bool
	Raw          []byte
}

// Observer receives each correlated result. Observers run on the engine
// goroutine and must return promptly.
type Observer func(Result)

// Engine consumes advertisement events from a single channel, one event
// per iteration, so processing order is deterministic. Each event is
// handled with locally-scoped state only; the shared event trail is the
// one synchronized sink.
type Engine struct {
	target    string
	trail     *logbuf.Buffer
	observers []Observer
	now       func() time.Time
	cycle     int
}

// NewEngine creates an engine matching frames whose advertised local name
// equals target exactly (case-sensitive). trail may be nil.
func NewEngine(target string, trail *logbuf.Buffer) *Engine {
	return &Engine{
		target: target,
		trail:  trail,
		now:    time.Now,
	}
}

// AddObserver registers an observer for correlated results. Not safe to
// call once Run has started.
func (e *Engine) AddObserver(obs Observer) {
	e.observers = append(e.observers, obs)
}

// Run consumes events until ctx is done or ch is closed. Each call is one
// scan cycle; cycles are numbered from 1 across the engine's lifetime.
func (e *Engine) Run(ctx context.Context, ch <-chan radio.AdvEvent) {
	e.cycle++
	e.appendTrail(fmt.Sprintf("=== Scan cycle #%d START", e.cycle))
	logging.Info("Scan cycle started",
		zap.Int("cycle", e.cycle),
		zap.String("target", e.target),
	)

	matched := 0
	for {
		select {
		case <-ctx.Done():
			e.appendTrail(fmt.Sprintf("=== Scan cycle #%d END (matched %d)", e.cycle, matched))
			return
		case ev, ok := <-ch:
			if !ok {
				e.appendTrail(fmt.Sprintf("=== Scan cycle #%d END (matched %d)", e.cycle, matched))
				return
			}
			if e.Handle(ev) {
				matched++
			}
		}
	}
}

// Handle processes one advertisement event and reports whether it matched
// the target identity. Name mismatches are discarded before any decoding,
// which keeps per-event cost flat under ambient BLE traffic.
func (e *Engine) Handle(ev radio.AdvEvent) bool {
	name := ev.Name
	if name == "" {
		name = adv.LocalName(ev.Data)
	}
	if name != e.target {
		return false
	}

	rxUnixMs := e.rxTimestamp()

	// Payload decode and tx-power extraction are independent; either may
	// be absent without affecting the other.
	payload, found := adv.DecodePayload(ev.Data)
	txPower := adv.TxPowerLevel(ev.Data)

	res := Result{
		ScanCycle:    e.cycle,
		RxUnixMs:     rxUnixMs,
		RSSI:         ev.RSSI,
		TxPowerAD:    txPower,
		PayloadFound: found,
		Raw:          ev.Data,
	}
	if found {
		res.TxUnixMs = payload.TxUnixMs
		res.Counter = payload.Counter
		res.PowerCode = payload.Code
		// Signed on purpose: clock skew between sender and receiver can
		// drive this negative or implausibly large, and that is data the
		// operator wants to see, not a failure.
		res.DeltaMs = int64(rxUnixMs) - int64(payload.TxUnixMs)
	}

	e.record(res)
	for _, obs := range e.observers {
		obs(res)
	}
	return true
}

// rxTimestamp captures wall-clock milliseconds refined with the
// sub-millisecond remainder of the monotonic clock sampled at the same
// instant. Best-effort: this approximates, not measures, reception
// latency.
func (e *Engine) rxTimestamp() uint64 {
	now := e.now()
	ms := now.UnixMilli()
	if now.UnixNano()-ms*int64(time.Millisecond) >= int64(500*time.Microsecond) {
		ms++
	}
	return uint64(ms)
}

func (e *Engine) record(res Result) {
	e.appendTrail("=== TARGET BLE DEVICE DETECTED ===")
	e.appendTrail(fmt.Sprintf("RX Unix ms: %d", res.RxUnixMs))
	if res.PayloadFound {
		e.appendTrail(fmt.Sprintf("TX counter (payload): %d", res.Counter))
		e.appendTrail(fmt.Sprintf("TX Unix ms (payload): %d", res.TxUnixMs))
		e.appendTrail(fmt.Sprintf("Delta = RX - TX: %d ms", res.DeltaMs))
	} else {
		e.appendTrail("TX payload: absent")
	}
	e.appendTrail(fmt.Sprintf("RSSI: %d dBm", res.RSSI))
	if res.TxPowerAD != adv.TxPowerAbsent {
		e.appendTrail(fmt.Sprintf("TX power AD: %d dBm", res.TxPowerAD))
	}
	e.appendTrail("")

	logging.Debug("Probe frame correlated",
		zap.Int("cycle", res.ScanCycle),
		zap.Uint64("rx_unix_ms", res.RxUnixMs),
		zap.Bool("payload_found", res.PayloadFound),
		zap.Uint16("counter", res.Counter),
		zap.Int64("delta_ms", res.DeltaMs),
		zap.Int16("rssi", res.RSSI),
	)
}

func (e *Engine) appendTrail(line string) {
	if e.trail != nil {
		e.trail.Append(line)
	}
}

func (r Result) String() string {
	if !r.PayloadFound {
		return fmt.Sprintf("Result{cycle=%d, rx=%d, rssi=%d, payload=absent}",
			r.ScanCycle, r.RxUnixMs, r.RSSI)
	}
	return fmt.Sprintf("Result{cycle=%d, counter=%d, delta=%dms, rssi=%d}",
		r.ScanCycle, r.Counter, r.DeltaMs, r.RSSI)
}
