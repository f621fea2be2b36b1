package scan

import (
	"context"
	"testing"
	"time"

	"github.com/avetra/bleprobe/internal/adv"
	"github.com/avetra/bleprobe/internal/logbuf"
	"github.com/avetra/bleprobe/internal/radio"
	"github.com/avetra/bleprobe/internal/radio/stub"
)

func probeFrame(name string, counter uint16, code byte, txUnixMs uint64) []byte {
	var f adv.Frame
	f.AppendFlags(0x06)
	f.AppendName(name)
	f.AppendManufacturerData(adv.CompanyID, adv.EncodePayload(counter, code, txUnixMs))
	return f.Bytes()
}

func fixedClock(unixMs int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(unixMs) }
}

func TestHandleCorrelatesMatch(t *testing.T) {
	e := NewEngine("tx01", nil)
	e.now = fixedClock(1700000005000)
	e.cycle = 1

	var got []Result
	e.AddObserver(func(r Result) { got = append(got, r) })

	ev := radio.AdvEvent{
		Name: "tx01",
		RSSI: -67,
		Data: probeFrame("tx01", 42, adv.PowerHigh, 1700000000000),
	}
	if !e.Handle(ev) {
		t.Fatal("Handle() did not match the target frame")
	}
	if len(got) != 1 {
		t.Fatalf("observer saw %d results, want 1", len(got))
	}

	r := got[0]
	if !r.PayloadFound {
		t.Fatal("payload not found in probe frame")
	}
	if r.Counter != 42 {
		t.Errorf("counter = %d, want 42", r.Counter)
	}
	if r.RxUnixMs != 1700000005000 {
		t.Errorf("rx_unix_ms = %d, want 1700000005000", r.RxUnixMs)
	}
	if r.TxUnixMs != 1700000000000 {
		t.Errorf("tx_unix_ms = %d, want 1700000000000", r.TxUnixMs)
	}
	if r.DeltaMs != 5000 {
		t.Errorf("delta_ms = %d, want 5000", r.DeltaMs)
	}
	if r.RSSI != -67 {
		t.Errorf("rssi = %d, want -67", r.RSSI)
	}
	if r.TxPowerAD != adv.TxPowerAbsent {
		t.Errorf("tx power AD = %d, want absent sentinel", r.TxPowerAD)
	}
	if r.PowerCode != adv.PowerHigh {
		t.Errorf("power code = %d, want %d", r.PowerCode, adv.PowerHigh)
	}
}

func TestHandleNameFilter(t *testing.T) {
	tests := []struct {
		name  string
		ev    radio.AdvEvent
		match bool
	}{
		{
			name:  "exact match",
			ev:    radio.AdvEvent{Name: "tx01", Data: probeFrame("tx01", 1, 0, 10)},
			match: true,
		},
		{
			name:  "different name",
			ev:    radio.AdvEvent{Name: "headphones", Data: probeFrame("headphones", 1, 0, 10)},
			match: false,
		},
		{
			name:  "case differs",
			ev:    radio.AdvEvent{Name: "TX01", Data: probeFrame("TX01", 1, 0, 10)},
			match: false,
		},
		{
			name:  "no name at all",
			ev:    radio.AdvEvent{Data: []byte{0x02, 0x01, 0x06}},
			match: false,
		},
		{
			name:  "name only in frame bytes",
			ev:    radio.AdvEvent{Data: probeFrame("tx01", 1, 0, 10)},
			match: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine("tx01", nil)
			e.now = fixedClock(1000)
			if got := e.Handle(tt.ev); got != tt.match {
				t.Errorf("Handle() = %v, want %v", got, tt.match)
			}
		})
	}
}

// A matching frame without the probe structure still yields a result: the
// payload is reported absent while RSSI and tx power stand on their own.
func TestHandlePayloadAbsent(t *testing.T) {
	var f adv.Frame
	f.AppendName("tx01")
	f.AppendTxPower(-4)

	e := NewEngine("tx01", nil)
	e.now = fixedClock(2000)

	var got []Result
	e.AddObserver(func(r Result) { got = append(got, r) })

	if !e.Handle(radio.AdvEvent{Name: "tx01", RSSI: -80, Data: f.Bytes()}) {
		t.Fatal("Handle() did not match")
	}

	r := got[0]
	if r.PayloadFound {
		t.Error("payload reported found in a frame without the probe structure")
	}
	if r.TxPowerAD != -4 {
		t.Errorf("tx power AD = %d, want -4", r.TxPowerAD)
	}
	if r.RSSI != -80 {
		t.Errorf("rssi = %d, want -80", r.RSSI)
	}
	if r.DeltaMs != 0 || r.Counter != 0 {
		t.Errorf("absent payload leaked values: delta=%d counter=%d", r.DeltaMs, r.Counter)
	}
}

// Receiver clock behind the sender: the delta goes negative and is passed
// through as-is.
func TestHandleNegativeDelta(t *testing.T) {
	e := NewEngine("tx01", nil)
	e.now = fixedClock(1699999999000)

	var got []Result
	e.AddObserver(func(r Result) { got = append(got, r) })

	e.Handle(radio.AdvEvent{Name: "tx01", Data: probeFrame("tx01", 3, 0, 1700000000000)})
	if got[0].DeltaMs != -1000 {
		t.Errorf("delta_ms = %d, want -1000", got[0].DeltaMs)
	}
}

func TestRunConsumesChannel(t *testing.T) {
	trail := logbuf.New(100)
	e := NewEngine("tx01", trail)
	e.now = fixedClock(1700000005000)

	var got []Result
	e.AddObserver(func(r Result) { got = append(got, r) })

	events := []radio.AdvEvent{
		{Name: "other", Data: probeFrame("other", 1, 0, 1)},
		{Name: "tx01", RSSI: -60, Data: probeFrame("tx01", 7, adv.PowerHigh, 1700000000123)},
		{Name: "tx01", RSSI: -62, Data: probeFrame("tx01", 8, adv.PowerHigh, 1700000000373)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan radio.AdvEvent)
	scanner := stub.NewScanner(events...)
	go func() {
		_ = scanner.Scan(ctx, ch)
	}()

	deadline := time.After(2 * time.Second)
	done := make(chan struct{})
	go func() {
		e.Run(ctx, ch)
		close(done)
	}()

	for {
		if len(trail.Lines()) > 0 && trail.Len() >= 13 { // header + two full blocks
			break
		}
		select {
		case <-deadline:
			t.Fatalf("trail has %d lines after 2s", trail.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if len(got) != 2 {
		t.Fatalf("observer saw %d results, want 2", len(got))
	}
	if got[0].Counter != 7 || got[1].Counter != 8 {
		t.Errorf("counters = %d,%d, want 7,8 (ordering broken)", got[0].Counter, got[1].Counter)
	}
	if got[0].ScanCycle != 1 {
		t.Errorf("scan cycle = %d, want 1", got[0].ScanCycle)
	}

	lines := trail.Lines()
	if lines[0] != "=== Scan cycle #1 START" {
		t.Errorf("first trail line = %q", lines[0])
	}
	found := false
	for _, line := range lines {
		if line == "Delta = RX - TX: 4877 ms" {
			found = true
		}
	}
	if !found {
		t.Errorf("trail missing delta line; trail = %q", lines)
	}
}

func TestCycleNumberingAcrossRuns(t *testing.T) {
	e := NewEngine("tx01", nil)

	for want := 1; want <= 3; want++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e.Run(ctx, make(chan radio.AdvEvent))
		if e.cycle != want {
			t.Fatalf("cycle after run %d = %d", want, e.cycle)
		}
	}
}
