package bson

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes a Record into the self-describing binary document
// form: a 4-byte little-endian field count followed by, for each field,
// a null-terminated key, a one-byte kind tag, and the kind-specific
// payload.
func Encode(rec Record) []byte {
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(rec)))
	buf.Write(countBuf[:])
	for key, val := range rec {
		writeCString(&buf, key)
		writeValue(&buf, val)
	}
	return buf.Bytes()
}

// Decode parses the binary document form produced by Encode.
func Decode(data []byte) (Record, error) {
	r := &reader{buf: data}
	count, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("bson: decode field count: %w", err)
	}
	rec := make(Record, count)
	for i := uint32(0); i < count; i++ {
		key, err := r.cstring()
		if err != nil {
			return nil, fmt.Errorf("bson: decode field %d key: %w", i, err)
		}
		val, err := r.value()
		if err != nil {
			return nil, fmt.Errorf("bson: decode field %q: %w", key, err)
		}
		rec[key] = val
	}
	return rec, nil
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func writeValue(buf *bytes.Buffer, v Value) {
	buf.WriteByte(byte(v.Kind))
	switch v.Kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt64:
		writeI64(buf, v.Int64)
	case KindFloat64:
		writeU64(buf, math.Float64bits(v.Float64))
	case KindTimestamp:
		writeI64(buf, v.Timestamp)
	case KindString:
		writeLenPrefixed(buf, []byte(v.Str))
	case KindBytes:
		writeLenPrefixed(buf, v.Bytes)
	case KindArray:
		var cnt [4]byte
		binary.LittleEndian.PutUint32(cnt[:], uint32(len(v.Array)))
		buf.Write(cnt[:])
		for _, e := range v.Array {
			writeValue(buf, e)
		}
	case KindObject:
		var cnt [4]byte
		binary.LittleEndian.PutUint32(cnt[:], uint32(len(v.Object)))
		buf.Write(cnt[:])
		for k, e := range v.Object {
			writeCString(buf, k)
			writeValue(buf, e)
		}
	}
}

func writeI64(buf *bytes.Buffer, i int64) {
	writeU64(buf, uint64(i))
}

func writeU64(buf *bytes.Buffer, u uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	buf.Write(b[:])
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
	buf.WriteByte(0)
}

// reader is a cursor over a byte slice used while decoding.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("bson: unexpected end of buffer (need %d bytes at offset %d, have %d)", n, r.pos, len(r.buf))
	}
	return nil
}

func (r *reader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) cstring() (string, error) {
	start := r.pos
	for r.pos < len(r.buf) {
		if r.buf[r.pos] == 0 {
			s := string(r.buf[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", fmt.Errorf("bson: unterminated string starting at offset %d", start)
}

func (r *reader) lenPrefixed() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n) + 1); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	r.pos++ // skip null terminator
	return out, nil
}

func (r *reader) value() (Value, error) {
	kindByte, err := r.byte()
	if err != nil {
		return Value{}, err
	}
	kind := Kind(kindByte)
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.byte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt64:
		u, err := r.uint64()
		if err != nil {
			return Value{}, err
		}
		return Int64(int64(u)), nil
	case KindFloat64:
		u, err := r.uint64()
		if err != nil {
			return Value{}, err
		}
		return Float64(math.Float64frombits(u)), nil
	case KindTimestamp:
		u, err := r.uint64()
		if err != nil {
			return Value{}, err
		}
		return Timestamp(int64(u)), nil
	case KindString:
		b, err := r.lenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case KindBytes:
		b, err := r.lenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return Bytes(b), nil
	case KindArray:
		n, err := r.uint32()
		if err != nil {
			return Value{}, err
		}
		arr := make([]Value, n)
		for i := uint32(0); i < n; i++ {
			v, err := r.value()
			if err != nil {
				return Value{}, fmt.Errorf("array element %d: %w", i, err)
			}
			arr[i] = v
		}
		return Array(arr), nil
	case KindObject:
		n, err := r.uint32()
		if err != nil {
			return Value{}, err
		}
		obj := make(map[string]Value, n)
		for i := uint32(0); i < n; i++ {
			key, err := r.cstring()
			if err != nil {
				return Value{}, fmt.Errorf("object key %d: %w", i, err)
			}
			v, err := r.value()
			if err != nil {
				return Value{}, fmt.Errorf("object field %q: %w", key, err)
			}
			obj[key] = v
		}
		return Object(obj), nil
	default:
		return Value{}, fmt.Errorf("bson: unknown kind tag %d", kindByte)
	}
}
