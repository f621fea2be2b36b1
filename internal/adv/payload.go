package adv

import (
	"encoding/binary"
	"fmt"
)

// Probe payload constants
const (
	// CompanyID is the manufacturer identifier carried ahead of the probe
	// payload. 0xFFFF is the Bluetooth SIG value reserved for testing.
	CompanyID = 0xFFFF

	// PayloadSize is the fixed probe payload size: 2-byte counter,
	// 1-byte power code, 8-byte timestamp.
	PayloadSize = 11

	// StructureSize is the full on-air manufacturer AD structure:
	// length byte + type byte + 2 company-id bytes + payload.
	StructureSize = 2 + 2 + PayloadSize
)

// Transmit power codes carried in the payload. These mirror the coarse
// radio power levels; the actual dBm value travels separately in the
// standard Tx-Power AD structure.
const (
	PowerUltraLow = 0
	PowerLow      = 1
	PowerMedium   = 2
	PowerHigh     = 3
)

// Payload is one probe broadcast: a monotonically increasing counter, the
// sender's configured power code, and the wall-clock send time in Unix
// milliseconds. All multi-byte fields are big-endian on the wire.
type Payload struct {
	Counter  uint16
	Code     byte
	TxUnixMs uint64
}

// EncodePayload serializes a probe payload to its fixed 11-byte form.
// Counter values wider than 16 bits have already wrapped by the uint16
// parameter type; this is documented behavior, not an error.
func EncodePayload(counter uint16, code byte, txUnixMs uint64) []byte {
	buf := make([]byte, PayloadSize)
	binary.BigEndian.PutUint16(buf[0:2], counter)
	buf[2] = code
	binary.BigEndian.PutUint64(buf[3:11], txUnixMs)
	return buf
}

// DecodePayload scans a raw advertising frame for the probe's
// manufacturer-specific structure and decodes it. It wants AD type 0xFF
// with at least 13 data bytes (2 company-id bytes plus the payload) and
// both company-id bytes equal to 0xFF. The first matching structure wins;
// later ones in the same frame are ignored.
//
// Malformed or foreign frames are reported as absence (ok=false), never
// as an error: ambient BLE traffic routinely carries manufacturer data
// from other vendors.
func DecodePayload(frame []byte) (Payload, bool) {
	for _, s := range Walk(frame) {
		if s.Type != TypeManufacturerData {
			continue
		}
		if len(s.Data) < 2+PayloadSize {
			continue
		}
		if s.Data[0] != 0xFF || s.Data[1] != 0xFF {
			continue
		}
		body := s.Data[2:]
		return Payload{
			Counter:  binary.BigEndian.Uint16(body[0:2]),
			Code:     body[2],
			TxUnixMs: binary.BigEndian.Uint64(body[3:11]),
		}, true
	}
	return Payload{}, false
}

// CodeString returns a human-readable power code name.
func CodeString(code byte) string {
	switch code {
	case PowerUltraLow:
		return "ultra-low"
	case PowerLow:
		return "low"
	case PowerMedium:
		return "medium"
	case PowerHigh:
		return "high"
	default:
		return fmt.Sprintf("unknown(%d)", code)
	}
}

func (p Payload) String() string {
	return fmt.Sprintf("Payload{counter=%d, power=%s, tx_unix_ms=%d}",
		p.Counter, CodeString(p.Code), p.TxUnixMs)
}
