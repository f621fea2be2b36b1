package adv

import (
	"bytes"
	"testing"
)

func TestWalk(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want []Structure
	}{
		{
			name: "empty buffer",
			buf:  nil,
			want: nil,
		},
		{
			name: "single flags structure",
			buf: []byte{
				0x02, 0x01, 0x06, // flags: LE general discoverable
			},
			want: []Structure{
				{Type: 0x01, Data: []byte{0x06}},
			},
		},
		{
			name: "two structures",
			buf: []byte{
				0x02, 0x01, 0x06, // flags
				0x05, 0x09, 'p', 'r', 'b', '1', // complete name
			},
			want: []Structure{
				{Type: 0x01, Data: []byte{0x06}},
				{Type: 0x09, Data: []byte("prb1")},
			},
		},
		{
			name: "zero length terminates",
			buf: []byte{
				0x02, 0x01, 0x06,
				0x00,             // end marker
				0x02, 0x0A, 0xF4, // must not be reached
			},
			want: []Structure{
				{Type: 0x01, Data: []byte{0x06}},
			},
		},
		{
			name: "truncated declared length stops walking",
			buf: []byte{
				0x02, 0x01, 0x06,
				0x10, 0xFF, 0x01, 0x02, // claims 16 bytes, only 3 follow
			},
			want: []Structure{
				{Type: 0x01, Data: []byte{0x06}},
			},
		},
		{
			name: "length byte with nothing after it",
			buf:  []byte{0x05},
			want: nil,
		},
		{
			name: "structure with empty data",
			buf:  []byte{0x01, 0x0A},
			want: []Structure{
				{Type: 0x0A, Data: []byte{}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Walk(tt.buf)
			if len(got) != len(tt.want) {
				t.Fatalf("Walk() returned %d structures, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Type != tt.want[i].Type {
					t.Errorf("structure %d type = 0x%02X, want 0x%02X", i, got[i].Type, tt.want[i].Type)
				}
				if !bytes.Equal(got[i].Data, tt.want[i].Data) {
					t.Errorf("structure %d data = %v, want %v", i, got[i].Data, tt.want[i].Data)
				}
			}
		})
	}
}

// Walk must stay inside the buffer for arbitrary byte content, including
// length bytes that point far past the end.
func TestWalkNeverOverreads(t *testing.T) {
	for length := 0; length < 40; length++ {
		for fill := 0; fill < 256; fill++ {
			buf := make([]byte, length)
			for i := range buf {
				buf[i] = byte(fill)
			}
			// A panic here fails the test; Walk has no error path.
			Walk(buf)
		}
	}
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want string
	}{
		{
			name: "complete name",
			buf:  []byte{0x05, 0x09, 't', 'x', '0', '1'},
			want: "tx01",
		},
		{
			name: "shortened name only",
			buf:  []byte{0x03, 0x08, 't', 'x'},
			want: "tx",
		},
		{
			name: "complete name preferred over shortened",
			buf: []byte{
				0x03, 0x08, 't', 'x',
				0x05, 0x09, 't', 'x', '0', '1',
			},
			want: "tx01",
		},
		{
			name: "no name",
			buf:  []byte{0x02, 0x01, 0x06},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocalName(tt.buf); got != tt.want {
				t.Errorf("LocalName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTxPowerLevel(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want int8
	}{
		{
			name: "present positive",
			buf:  []byte{0x02, 0x0A, 0x04},
			want: 4,
		},
		{
			name: "present negative",
			buf:  []byte{0x02, 0x0A, 0xF4}, // -12 dBm
			want: -12,
		},
		{
			name: "absent",
			buf:  []byte{0x02, 0x01, 0x06},
			want: TxPowerAbsent,
		},
		{
			name: "empty buffer",
			buf:  nil,
			want: TxPowerAbsent,
		},
		{
			name: "tx power structure with no data byte",
			buf:  []byte{0x01, 0x0A},
			want: TxPowerAbsent,
		},
		{
			name: "first of two wins",
			buf: []byte{
				0x02, 0x0A, 0xFB, // -5 dBm
				0x02, 0x0A, 0x00,
			},
			want: -5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TxPowerLevel(tt.buf); got != tt.want {
				t.Errorf("TxPowerLevel() = %d, want %d", got, tt.want)
			}
		})
	}
}
