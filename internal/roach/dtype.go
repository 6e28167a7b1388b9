package roach

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// DType describes the binary layout of bram words using numpy style type
// tags, e.g. ">i8" (big-endian signed 64 bit) or "<u4" (little-endian
// unsigned 32 bit). The spectrometer models pack their accumulators this
// way, so the tags from the instrument documentation can be used directly.
type DType struct {
	tag   string
	order binary.ByteOrder
	kind  byte
	size  int
}

// ParseDType parses a numpy type tag. Byte order is one of "> < = |"
// (native and not-applicable both decode little-endian), kind is one of
// "i u f", and the item size is 1, 2, 4 or 8 bytes (4 or 8 for floats).
func ParseDType(tag string) (DType, error) {
	d := DType{tag: tag, order: binary.LittleEndian}

	rest := tag
	if len(rest) > 0 {
		switch rest[0] {
		case '>':
			d.order = binary.BigEndian
			rest = rest[1:]
		case '<', '=', '|':
			rest = rest[1:]
		}
	}
	if len(rest) < 2 {
		return DType{}, fmt.Errorf("invalid dtype %q", tag)
	}

	d.kind = rest[0]
	switch d.kind {
	case 'i', 'u', 'f':
	default:
		return DType{}, fmt.Errorf("invalid dtype %q: unsupported kind %q", tag, d.kind)
	}

	size, err := strconv.Atoi(rest[1:])
	if err != nil {
		return DType{}, fmt.Errorf("invalid dtype %q: bad item size", tag)
	}
	switch size {
	case 1, 2, 4, 8:
	default:
		return DType{}, fmt.Errorf("invalid dtype %q: item size must be 1, 2, 4 or 8", tag)
	}
	if d.kind == 'f' && size < 4 {
		return DType{}, fmt.Errorf("invalid dtype %q: float size must be 4 or 8", tag)
	}
	d.size = size

	return d, nil
}

// ItemSize returns the width of one value in bytes.
func (d DType) ItemSize() int { return d.size }

func (d DType) String() string { return d.tag }

// Decode interprets data as a run of packed values and widens each one to
// float64. The buffer length must be a multiple of the item size.
func (d DType) Decode(data []byte) ([]float64, error) {
	if d.size == 0 {
		return nil, fmt.Errorf("dtype not initialized")
	}
	if len(data)%d.size != 0 {
		return nil, fmt.Errorf("buffer of %d bytes is not a multiple of item size %d", len(data), d.size)
	}

	out := make([]float64, len(data)/d.size)
	for i := range out {
		chunk := data[i*d.size : (i+1)*d.size]
		switch {
		case d.kind == 'i' && d.size == 1:
			out[i] = float64(int8(chunk[0]))
		case d.kind == 'i' && d.size == 2:
			out[i] = float64(int16(d.order.Uint16(chunk)))
		case d.kind == 'i' && d.size == 4:
			out[i] = float64(int32(d.order.Uint32(chunk)))
		case d.kind == 'i' && d.size == 8:
			out[i] = float64(int64(d.order.Uint64(chunk)))
		case d.kind == 'u' && d.size == 1:
			out[i] = float64(chunk[0])
		case d.kind == 'u' && d.size == 2:
			out[i] = float64(d.order.Uint16(chunk))
		case d.kind == 'u' && d.size == 4:
			out[i] = float64(d.order.Uint32(chunk))
		case d.kind == 'u' && d.size == 8:
			out[i] = float64(d.order.Uint64(chunk))
		case d.kind == 'f' && d.size == 4:
			out[i] = float64(math.Float32frombits(d.order.Uint32(chunk)))
		case d.kind == 'f' && d.size == 8:
			out[i] = math.Float64frombits(d.order.Uint64(chunk))
		}
	}
	return out, nil
}
