package roach

import (
	"math"
	"testing"
)

func TestParseDType(t *testing.T) {
	tests := []struct {
		tag      string
		itemSize int
	}{
		{">i8", 8},
		{"<i4", 4},
		{">u2", 2},
		{"|u1", 1},
		{"=i2", 2},
		{">f4", 4},
		{"<f8", 8},
		{"u4", 4}, // order defaults to native
	}

	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			d, err := ParseDType(tc.tag)
			if err != nil {
				t.Fatalf("ParseDType(%q) failed: %v", tc.tag, err)
			}
			if d.ItemSize() != tc.itemSize {
				t.Errorf("item size = %d, want %d", d.ItemSize(), tc.itemSize)
			}
			if d.String() != tc.tag {
				t.Errorf("String() = %q, want %q", d.String(), tc.tag)
			}
		})
	}
}

func TestParseDTypeRejectsBadTags(t *testing.T) {
	for _, tag := range []string{"", ">", ">x8", ">i3", ">i", ">f2", "i8x", ">c8"} {
		t.Run(tag, func(t *testing.T) {
			if _, err := ParseDType(tag); err == nil {
				t.Errorf("ParseDType(%q) succeeded, want error", tag)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		tag  string
		data []byte
		want []float64
	}{
		{
			tag:  ">i8",
			data: []byte{0, 0, 0, 0, 0, 0, 0, 5, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			want: []float64{5, -1},
		},
		{
			tag:  "<u4",
			data: []byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff},
			want: []float64{1, 4294967295},
		},
		{
			tag:  ">i2",
			data: []byte{0xff, 0xfe, 0x00, 0x10},
			want: []float64{-2, 16},
		},
		{
			tag:  "|u1",
			data: []byte{0, 128, 255},
			want: []float64{0, 128, 255},
		},
		{
			tag:  ">f4",
			data: []byte{0x3f, 0x80, 0x00, 0x00, 0xc0, 0x00, 0x00, 0x00},
			want: []float64{1, -2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			d, err := ParseDType(tc.tag)
			if err != nil {
				t.Fatalf("ParseDType failed: %v", err)
			}
			got, err := d.Decode(tc.data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d values, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if math.Abs(got[i]-tc.want[i]) > 1e-9 {
					t.Errorf("value %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestDecodeRejectsRaggedBuffer(t *testing.T) {
	d, err := ParseDType(">i8")
	if err != nil {
		t.Fatalf("ParseDType failed: %v", err)
	}
	if _, err := d.Decode(make([]byte, 12)); err == nil {
		t.Error("Decode of 12 bytes with 8 byte items succeeded, want error")
	}
}
