// Package adv implements the wire-level BLE Advertising-Data protocol used
// by the probe.
//
// A legacy advertising payload is at most 31 bytes and holds a sequence of
// AD structures, each encoded as:
//   - Length: 1 byte (covers the type byte plus the data)
//   - Type: 1 byte
//   - Data: Length-1 bytes
//
// A zero length byte marks the end of the significant part; a declared
// length past the end of the buffer is a truncated frame and parsing stops
// there without error.
//
// # Probe payload
//
// The probe rides inside a Manufacturer-Specific structure (type 0xFF) with
// company identifier 0xFFFF (the SIG test value) and a fixed 11-byte body:
//   - Broadcast counter: 2 bytes, big-endian, wraps at 65536
//   - Tx power code: 1 byte (0..3)
//   - Transmit time: 8 bytes, big-endian, Unix milliseconds
//
// The full on-air structure is 15 bytes: 0x0E 0xFF 0xFF 0xFF followed by
// the body.
//
// # Usage
//
//	payload := adv.EncodePayload(counter, adv.PowerHigh, uint64(time.Now().UnixMilli()))
//	var f adv.Frame
//	f.AppendFlags(0x06)
//	f.AppendName("probe-tx")
//	f.AppendManufacturerData(adv.CompanyID, payload)
//
//	if p, ok := adv.DecodePayload(frame); ok {
//	    fmt.Println(p.Counter, p.TxUnixMs)
//	}
//
// All parsing is bounds-safe over untrusted radio input and allocates only
// the structure slice headers; Structure.Data aliases the input buffer.
package adv
