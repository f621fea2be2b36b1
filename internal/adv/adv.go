package adv

import "fmt"

// AD type constants (Bluetooth Core Specification Supplement, Part A)
const (
	TypeFlags            = 0x01
	TypeShortLocalName   = 0x08
	TypeCompleteName     = 0x09
	TypeTxPower          = 0x0A
	TypeManufacturerData = 0xFF
)

// MaxFrameSize is the legacy advertising PDU payload limit.
const MaxFrameSize = 31

// Structure is one length-prefixed AD record viewed in place over the frame
// buffer. Data aliases the frame; callers that retain it past the radio
// event must copy.
type Structure struct {
	Type byte
	Data []byte
}

// Walk parses the AD structures of a raw advertising frame in order.
// A zero length byte is the end-of-significant-part marker; a declared
// length that overruns the buffer means a truncated frame, and walking
// stops there with whatever was extracted so far. Walk never reads
// outside buf.
func Walk(buf []byte) []Structure {
	var structs []Structure
	i := 0
	for i < len(buf) {
		length := int(buf[i]) // includes the type byte
		if length == 0 {
			break
		}
		if i+1+length > len(buf) {
			// Truncated tail; keep what we have.
			break
		}
		structs = append(structs, Structure{
			Type: buf[i+1],
			Data: buf[i+2 : i+1+length],
		})
		i += 1 + length
	}
	return structs
}

// LocalName returns the complete (or failing that, shortened) local name
// carried in the frame, or "" if none is advertised.
func LocalName(buf []byte) string {
	short := ""
	for _, s := range Walk(buf) {
		switch s.Type {
		case TypeCompleteName:
			return string(s.Data)
		case TypeShortLocalName:
			if short == "" {
				short = string(s.Data)
			}
		}
	}
	return short
}

func (s Structure) String() string {
	return fmt.Sprintf("Structure{type=0x%02X, len=%d}", s.Type, len(s.Data))
}
