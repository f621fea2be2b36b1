package adv

import (
	"bytes"
	"testing"
)

func TestEncodePayloadGolden(t *testing.T) {
	got := EncodePayload(7, PowerHigh, 1700000000123)
	want := []byte{
		0x00, 0x07, // counter 7
		0x03,                                           // power code high
		0x00, 0x00, 0x01, 0x8B, 0xF3, 0x9D, 0x8E, 0x7B, // 1700000000123 ms
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodePayload() = % X, want % X", got, want)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	cases := []Payload{
		{Counter: 0, Code: PowerUltraLow, TxUnixMs: 0},
		{Counter: 1, Code: PowerLow, TxUnixMs: 1},
		{Counter: 7, Code: PowerHigh, TxUnixMs: 1700000000123},
		{Counter: 256, Code: PowerMedium, TxUnixMs: 1 << 40},
		{Counter: 65535, Code: PowerHigh, TxUnixMs: 0xFFFFFFFFFFFFFFFF},
	}

	for _, p := range cases {
		body := EncodePayload(p.Counter, p.Code, p.TxUnixMs)
		if len(body) != PayloadSize {
			t.Fatalf("encoded payload is %d bytes, want %d", len(body), PayloadSize)
		}

		var f Frame
		f.AppendManufacturerData(CompanyID, body)

		got, ok := DecodePayload(f.Bytes())
		if !ok {
			t.Fatalf("DecodePayload() did not find payload for %v", p)
		}
		if got != p {
			t.Errorf("round trip = %v, want %v", got, p)
		}
	}
}

func TestDecodePayload(t *testing.T) {
	probe := func() []byte {
		var f Frame
		f.AppendFlags(0x06)
		f.AppendManufacturerData(CompanyID, EncodePayload(7, PowerHigh, 1700000000123))
		return f.Bytes()
	}()

	tests := []struct {
		name   string
		buf    []byte
		want   Payload
		wantOK bool
	}{
		{
			name:   "flags then probe structure",
			buf:    probe,
			want:   Payload{Counter: 7, Code: PowerHigh, TxUnixMs: 1700000000123},
			wantOK: true,
		},
		{
			name:   "empty frame",
			buf:    nil,
			wantOK: false,
		},
		{
			name:   "no manufacturer structure",
			buf:    []byte{0x02, 0x01, 0x06},
			wantOK: false,
		},
		{
			name: "manufacturer data too short",
			buf: []byte{
				0x05, 0xFF, 0xFF, 0xFF, 0x00, 0x01, // only 2 payload bytes
			},
			wantOK: false,
		},
		{
			name: "wrong company id",
			buf: []byte{
				0x0E, 0xFF, 0x4C, 0x00, // Apple company id
				0x00, 0x07, 0x03,
				0x00, 0x00, 0x01, 0x8B, 0xF3, 0x9D, 0x8E, 0x7B,
			},
			wantOK: false,
		},
		{
			name: "first matching structure wins",
			buf: func() []byte {
				var f Frame
				f.AppendManufacturerData(CompanyID, EncodePayload(1, PowerLow, 100))
				f.AppendManufacturerData(CompanyID, EncodePayload(2, PowerHigh, 200))
				return f.Bytes()
			}(),
			want:   Payload{Counter: 1, Code: PowerLow, TxUnixMs: 100},
			wantOK: true,
		},
		{
			name: "foreign structure skipped, probe still found",
			buf: func() []byte {
				var f Frame
				f.AppendManufacturerData(0x004C, []byte{0x02, 0x15}) // iBeacon prefix
				f.AppendManufacturerData(CompanyID, EncodePayload(9, PowerMedium, 42))
				return f.Bytes()
			}(),
			want:   Payload{Counter: 9, Code: PowerMedium, TxUnixMs: 42},
			wantOK: true,
		},
		{
			name: "truncated probe structure",
			buf: []byte{
				0x0E, 0xFF, 0xFF, 0xFF, 0x00, 0x07, // length claims 14, frame ends
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodePayload(tt.buf)
			if ok != tt.wantOK {
				t.Fatalf("DecodePayload() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("DecodePayload() = %v, want %v", got, tt.want)
			}
		})
	}
}

// The frame from the wire-format table: flags structure followed by the
// probe. Tx power is absent, the payload is present.
func TestMixedFrameExtraction(t *testing.T) {
	frame := append([]byte{0x02, 0x01, 0x06},
		0x0E, 0xFF, 0xFF, 0xFF,
		0x00, 0x07, 0x03,
		0x00, 0x00, 0x01, 0x8B, 0xF3, 0x9D, 0x8E, 0x7B,
	)

	if got := TxPowerLevel(frame); got != TxPowerAbsent {
		t.Errorf("TxPowerLevel() = %d, want absent sentinel %d", got, TxPowerAbsent)
	}

	p, ok := DecodePayload(frame)
	if !ok {
		t.Fatal("DecodePayload() did not find probe payload")
	}
	want := Payload{Counter: 7, Code: PowerHigh, TxUnixMs: 1700000000123}
	if p != want {
		t.Errorf("DecodePayload() = %v, want %v", p, want)
	}
}
