package adv

import "unicode/utf8"

// Frame assembles a legacy advertising payload field by field. The sender
// uses it to build the on-air probe frame; the BlueZ scan path uses it to
// reconstruct a raw frame from the parsed Device1 properties so decoding
// sees the same layout either way.
type Frame struct {
	data []byte
}

// AppendField appends one AD structure if it fits within the 31-byte
// legacy limit, and reports whether it fit.
func (f *Frame) AppendField(typ byte, data []byte) bool {
	if len(f.data)+2+len(data) > MaxFrameSize {
		return false
	}
	f.data = append(f.data, byte(len(data)+1))
	f.data = append(f.data, typ)
	f.data = append(f.data, data...)
	return true
}

// AppendFlags appends the standard flags structure.
func (f *Frame) AppendFlags(flags byte) bool {
	return f.AppendField(TypeFlags, []byte{flags})
}

// AppendName appends the complete local name, shortening it if the full
// name does not fit. Shortening backs off to a rune boundary so the
// advertised name stays valid UTF-8.
func (f *Frame) AppendName(name string) bool {
	if f.AppendField(TypeCompleteName, []byte(name)) {
		return true
	}
	room := MaxFrameSize - len(f.data) - 2
	if room <= 0 {
		return false
	}
	// The full name did not fit, so room < len(name) and name[room] is the
	// byte after the cut.
	for room > 0 && !utf8.RuneStart(name[room]) {
		room--
	}
	if room == 0 {
		return false
	}
	return f.AppendField(TypeShortLocalName, []byte(name[:room]))
}

// AppendManufacturerData appends a manufacturer-specific structure with
// the company id in the two leading data bytes.
func (f *Frame) AppendManufacturerData(companyID uint16, data []byte) bool {
	d := make([]byte, 0, 2+len(data))
	d = append(d, byte(companyID>>8), byte(companyID))
	d = append(d, data...)
	return f.AppendField(TypeManufacturerData, d)
}

// AppendTxPower appends the standard Tx-Power structure.
func (f *Frame) AppendTxPower(dbm int8) bool {
	return f.AppendField(TypeTxPower, []byte{byte(dbm)})
}

// Bytes returns the assembled frame.
func (f *Frame) Bytes() []byte {
	return f.data
}
