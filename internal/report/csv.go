package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader matches the column layout the plotting tooling expects.
var csvHeader = []string{
	"tx_unix_ms",
	"rx_unix_ms",
	"payload_counter",
	"delta_ms",
	"rssi_dbm",
	"tx_device_name",
}

// WriteCSV exports records with the sender identity stamped on every row.
func WriteCSV(w io.Writer, records []Record, txDeviceName string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatUint(r.TxUnixMs, 10),
			strconv.FormatUint(r.RxUnixMs, 10),
			strconv.FormatUint(uint64(r.Counter), 10),
			strconv.FormatInt(r.DeltaMs, 10),
			strconv.Itoa(r.RSSI),
			txDeviceName,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
