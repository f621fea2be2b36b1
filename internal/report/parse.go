// Package report post-processes scan session trails: parsing the recorded
// detection blocks back into records, summarizing link quality, and
// exporting CSV for external plotting.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Record is one parsed detection block from a scan trail.
type Record struct {
	File      string
	ScanCycle int
	RxUnixMs  uint64
	TxUnixMs  uint64
	Counter   uint16
	DeltaMs   int64
	RSSI      int
	HasRSSI   bool
}

var (
	scanStartRe = regexp.MustCompile(`^=== Scan cycle #(\d+) START`)
	rxUnixRe    = regexp.MustCompile(`^RX Unix ms.*:\s*([0-9]+)`)
	txCounterRe = regexp.MustCompile(`^TX counter \(payload\):\s*([0-9]+)`)
	txUnixRe    = regexp.MustCompile(`^TX Unix ms \(payload\):\s*([0-9]+)`)
	deltaRe     = regexp.MustCompile(`^Delta = .*:\s*(-?[0-9]+)\s+ms`)
	rssiRe      = regexp.MustCompile(`^RSSI:\s*(-?[0-9]+)\s*dBm`)
)

const detectedMarker = "=== TARGET BLE DEVICE DETECTED ==="

// Parse reads a scan trail and returns its detection records in order.
// Lines outside detection blocks are ignored, so full session logs parse
// as-is. A block is flushed when complete (the RSSI line is the last
// field) and a new block or blank line begins.
func Parse(r io.Reader, name string) ([]Record, error) {
	var records []Record
	scanCycle := 0
	var current *Record

	flush := func() {
		if current != nil && current.HasRSSI {
			current.File = name
			records = append(records, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := scanStartRe.FindStringSubmatch(line); m != nil {
			scanCycle, _ = strconv.Atoi(m[1])
			continue
		}

		if line == detectedMarker {
			flush()
			current = &Record{ScanCycle: scanCycle}
			continue
		}
		if current == nil {
			continue
		}

		if m := rxUnixRe.FindStringSubmatch(line); m != nil {
			current.RxUnixMs, _ = strconv.ParseUint(m[1], 10, 64)
			continue
		}
		if m := txCounterRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.ParseUint(m[1], 10, 16)
			current.Counter = uint16(n)
			continue
		}
		if m := txUnixRe.FindStringSubmatch(line); m != nil {
			current.TxUnixMs, _ = strconv.ParseUint(m[1], 10, 64)
			continue
		}
		if m := deltaRe.FindStringSubmatch(line); m != nil {
			current.DeltaMs, _ = strconv.ParseInt(m[1], 10, 64)
			continue
		}
		if m := rssiRe.FindStringSubmatch(line); m != nil {
			current.RSSI, _ = strconv.Atoi(m[1])
			current.HasRSSI = true
			continue
		}

		// Blank line ends a complete block.
		if line == "" && current.HasRSSI {
			flush()
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trail: %w", err)
	}
	return records, nil
}

// ParseFile parses one trail file.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trail: %w", err)
	}
	defer f.Close()

	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	return Parse(f, base)
}
