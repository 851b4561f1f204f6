package bson

import (
	"bytes"
	"sort"
	"strconv"
)

// Canonical renders a record's fields as lexically sorted, fixed-format
// JSON, platform-independent for use as Merkle leaf hashing input (spec
// section 9). It excludes no fields itself — callers pass whichever
// subset of a record they want hashed (typically the user fields, with
// "_metadata" omitted by the caller).
func Canonical(fields map[string]Value) []byte {
	var buf bytes.Buffer
	writeCanonicalObject(&buf, fields)
	return buf.Bytes()
}

func writeCanonicalObject(buf *bytes.Buffer, fields map[string]Value) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		writeCanonicalValue(buf, fields[k])
	}
	buf.WriteByte('}')
}

func writeCanonicalValue(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindInt64:
		buf.WriteString(strconv.FormatInt(v.Int64, 10))
	case KindFloat64:
		buf.WriteString(strconv.FormatFloat(v.Float64, 'g', -1, 64))
	case KindTimestamp:
		buf.WriteString(strconv.FormatInt(v.Timestamp, 10))
	case KindString:
		writeCanonicalString(buf, v.Str)
	case KindBytes:
		writeCanonicalString(buf, string(v.Bytes))
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.Array {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalValue(buf, e)
		}
		buf.WriteByte(']')
	case KindObject:
		writeCanonicalObject(buf, v.Object)
	}
}

// writeCanonicalString writes a minimal-escape JSON string: quotes,
// backslash, and control characters are escaped; everything else is
// passed through verbatim so the encoding is deterministic regardless
// of platform string-escaping defaults.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u`)
				const hex = "0123456789abcdef"
				buf.WriteByte(hex[(r>>12)&0xf])
				buf.WriteByte(hex[(r>>8)&0xf])
				buf.WriteByte(hex[(r>>4)&0xf])
				buf.WriteByte(hex[r&0xf])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
