package report

import (
	"fmt"
	"sort"
	"strings"
)

// Summary aggregates one trail's records the way a range test is read:
// how many packets made it, over what counter span, and what the RSSI and
// delta distributions look like.
type Summary struct {
	Label        string
	Packets      int
	FirstCounter uint16
	LastCounter  uint16
	Expected     int
	LossCount    int
	LossPct      float64
	SpanSeconds  float64

	RSSIMean float64
	RSSIMin  int
	RSSIMax  int

	DeltaMean float64
	DeltaMin  int64
	DeltaMax  int64
}

// Summarize computes a summary over records, assuming the sender emitted
// expected packets. Records are ordered by transmit time first so counter
// ranges and spans read consistently across merged trails.
func Summarize(records []Record, label string, expected int) Summary {
	s := Summary{Label: label, Expected: expected}
	if len(records) == 0 {
		s.LossCount = expected
		if expected > 0 {
			s.LossPct = 100.0
		}
		return s
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TxUnixMs < sorted[j].TxUnixMs })

	s.Packets = len(sorted)
	s.FirstCounter = sorted[0].Counter
	s.LastCounter = sorted[len(sorted)-1].Counter

	if expected > 0 {
		if loss := expected - s.Packets; loss > 0 {
			s.LossCount = loss
		}
		s.LossPct = float64(s.LossCount) / float64(expected) * 100.0
	}

	s.RSSIMin, s.RSSIMax = sorted[0].RSSI, sorted[0].RSSI
	s.DeltaMin, s.DeltaMax = sorted[0].DeltaMs, sorted[0].DeltaMs
	var rssiSum, deltaSum float64
	for _, r := range sorted {
		rssiSum += float64(r.RSSI)
		deltaSum += float64(r.DeltaMs)
		if r.RSSI < s.RSSIMin {
			s.RSSIMin = r.RSSI
		}
		if r.RSSI > s.RSSIMax {
			s.RSSIMax = r.RSSI
		}
		if r.DeltaMs < s.DeltaMin {
			s.DeltaMin = r.DeltaMs
		}
		if r.DeltaMs > s.DeltaMax {
			s.DeltaMax = r.DeltaMs
		}
	}
	s.RSSIMean = rssiSum / float64(s.Packets)
	s.DeltaMean = deltaSum / float64(s.Packets)

	first, last := sorted[0].TxUnixMs, sorted[len(sorted)-1].TxUnixMs
	if last > first {
		s.SpanSeconds = float64(last-first) / 1000.0
	}

	return s
}

// String renders the summary in the session-report layout.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Summary: %s ===\n", s.Label)
	if s.Packets == 0 {
		b.WriteString("  No packets found.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "  Packets:           %d\n", s.Packets)
	fmt.Fprintf(&b, "  Counter range:     %d -> %d (expected ~%d)\n", s.FirstCounter, s.LastCounter, s.Expected)
	fmt.Fprintf(&b, "  Approx loss:       %d packets (~%.2f%%)\n", s.LossCount, s.LossPct)
	fmt.Fprintf(&b, "  TX time span:      %.2f s\n", s.SpanSeconds)
	fmt.Fprintf(&b, "  RSSI mean/min/max: %.2f dBm / %d / %d\n", s.RSSIMean, s.RSSIMin, s.RSSIMax)
	fmt.Fprintf(&b, "  Delta (RX-TX) mean/min/max: %.2f ms / %d / %d\n", s.DeltaMean, s.DeltaMin, s.DeltaMax)
	return b.String()
}
