package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Decode is the inverse of Encode. Integers decode as int64, floats as
// float64, sequences as []any, string-keyed maps as map[string]any and other
// maps as map[any]any.
func Decode(data []byte) (any, error) {
	if len(data) < len(magic)+1 || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: missing header", ErrCorruptPayload)
	}
	if data[len(magic)] != version {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorruptPayload, data[len(magic)])
	}

	d := &decoder{data: data, pos: len(magic) + 1}
	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptPayload, len(d.data)-d.pos)
	}
	return v, nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrCorruptPayload, fmt.Sprintf(format, args...), d.pos)
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) byte() (byte, error) {
	if d.remaining() < 1 {
		return 0, d.corrupt("unexpected end of data")
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	n, size := binary.Uvarint(d.data[d.pos:])
	if size <= 0 {
		return 0, d.corrupt("bad unsigned varint")
	}
	d.pos += size
	return n, nil
}

func (d *decoder) varint() (int64, error) {
	n, size := binary.Varint(d.data[d.pos:])
	if size <= 0 {
		return 0, d.corrupt("bad varint")
	}
	d.pos += size
	return n, nil
}

// length reads a count and rejects values that cannot fit in what is left,
// given that every counted item takes at least one byte.
func (d *decoder) length() (int, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.remaining()) {
		return 0, d.corrupt("length %d exceeds remaining %d bytes", n, d.remaining())
	}
	return int(n), nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) string() (string, error) {
	b, err := d.bytes()
	return string(b), err
}

func (d *decoder) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, d.corrupt("nesting deeper than %d", maxDepth)
	}
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagNil:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagString:
		return d.string()
	case tagSymbol:
		s, err := d.string()
		return Symbol(s), err
	case tagInt:
		return d.varint()
	case tagFloat:
		if d.remaining() < 8 {
			return nil, d.corrupt("truncated float")
		}
		bits := binary.BigEndian.Uint64(d.data[d.pos:])
		d.pos += 8
		return math.Float64frombits(bits), nil
	case tagTime:
		return d.time()
	case tagBytes:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		return append([]byte{}, b...), nil
	case tagSeq:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		seq := make([]any, n)
		for i := range seq {
			if seq[i], err = d.value(depth + 1); err != nil {
				return nil, err
			}
		}
		return seq, nil
	case tagStringMap:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, err := d.string()
			if err != nil {
				return nil, err
			}
			if _, dup := m[k]; dup {
				return nil, d.corrupt("duplicate map key %q", k)
			}
			if m[k], err = d.value(depth + 1); err != nil {
				return nil, err
			}
		}
		return m, nil
	case tagMap:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		m := make(map[any]any, n)
		for i := 0; i < n; i++ {
			if d.remaining() < 1 {
				return nil, d.corrupt("unexpected end of data")
			}
			if !isScalarTag(d.data[d.pos]) {
				return nil, d.corrupt("map key with tag %d", d.data[d.pos])
			}
			k, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			if _, dup := m[k]; dup {
				return nil, d.corrupt("duplicate map key %v", k)
			}
			if m[k], err = d.value(depth + 1); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	return nil, d.corrupt("unknown tag %d", tag)
}

func (d *decoder) time() (time.Time, error) {
	sec, err := d.varint()
	if err != nil {
		return time.Time{}, err
	}
	nsec, err := d.uvarint()
	if err != nil {
		return time.Time{}, err
	}
	if nsec >= uint64(time.Second) {
		return time.Time{}, d.corrupt("nanoseconds out of range")
	}
	offset, err := d.varint()
	if err != nil {
		return time.Time{}, err
	}
	if offset < -24*3600 || offset > 24*3600 {
		return time.Time{}, d.corrupt("zone offset out of range")
	}
	name, err := d.string()
	if err != nil {
		return time.Time{}, err
	}

	t := time.Unix(sec, int64(nsec))
	if name == "UTC" && offset == 0 {
		return t.UTC(), nil
	}
	return t.In(time.FixedZone(name, int(offset))), nil
}
