package bson

// Meta mirrors a record's field structure with last-writer-wins
// timestamps (spec section 3). A leaf Meta carries Timestamp; an
// internal Meta (for nested objects) carries Fields instead, recursively.
type Meta struct {
	Timestamp int64
	Fields    map[string]*Meta
}

// IsLeaf reports whether this metadata node describes a scalar field
// rather than a nested object.
func (m *Meta) IsLeaf() bool {
	return m == nil || m.Fields == nil
}

// NewLeafMeta returns a leaf metadata node stamped with ts.
func NewLeafMeta(ts int64) *Meta {
	return &Meta{Timestamp: ts}
}

// Touch walks to (creating as needed) the metadata node for a top-level
// field and stamps it with ts, provided the existing timestamp is older
// than ts (older-loses last-writer-wins semantics). It reports whether
// the stamp was applied.
func Touch(root map[string]*Meta, field string, ts int64) bool {
	existing, ok := root[field]
	if ok && existing.Timestamp >= ts && existing.IsLeaf() {
		return false
	}
	root[field] = NewLeafMeta(ts)
	return true
}

// MetaToValue serializes a metadata tree into a bson Value suitable for
// storage under a record's "_metadata" key.
func MetaToValue(m *Meta) Value {
	if m == nil {
		return Null()
	}
	if m.IsLeaf() {
		return Object(map[string]Value{
			"timestamp": Int64(m.Timestamp),
		})
	}
	fields := make(map[string]Value, len(m.Fields))
	for k, v := range m.Fields {
		fields[k] = MetaToValue(v)
	}
	return Object(map[string]Value{
		"fields": Object(fields),
	})
}

// ValueToMeta parses a "_metadata" Value back into a metadata tree.
func ValueToMeta(v Value) *Meta {
	if v.Kind != KindObject {
		return nil
	}
	if ts, ok := v.Object["timestamp"]; ok && ts.Kind == KindInt64 {
		return &Meta{Timestamp: ts.Int64}
	}
	if fieldsVal, ok := v.Object["fields"]; ok && fieldsVal.Kind == KindObject {
		fields := make(map[string]*Meta, len(fieldsVal.Object))
		for k, fv := range fieldsVal.Object {
			fields[k] = ValueToMeta(fv)
		}
		return &Meta{Fields: fields}
	}
	return &Meta{Fields: map[string]*Meta{}}
}
