package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/shardkeep/shardkeep/pkg/bson"
	"github.com/shardkeep/shardkeep/pkg/dberrors"
	"github.com/shardkeep/shardkeep/pkg/merkle"
)

const metadataKey = "_metadata"

// RouteID computes the 4-hex-character shard id a record's _id routes
// to: the first two bytes of sha256(_id), lowercase hex. 65,536 possible
// shards per collection.
func RouteID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:2])
}

// Shard is a bounded container of records sharing one RouteID bucket,
// plus the Merkle tree over their (_id, content-hash) leaves.
type Shard struct {
	ID      string
	records map[string]bson.Record
	meta    map[string]map[string]*bson.Meta // _id -> per-field metadata
	tree    *merkle.Tree
	dirty   bool
}

// New returns an empty shard with the given id.
func New(id string) *Shard {
	return &Shard{
		ID:      id,
		records: make(map[string]bson.Record),
		meta:    make(map[string]map[string]*bson.Meta),
		tree:    merkle.New(),
	}
}

// Len reports the number of records currently held.
func (s *Shard) Len() int { return len(s.records) }

// IsDirty reports whether the shard has unflushed mutations.
func (s *Shard) IsDirty() bool { return s.dirty }

// MarkClean clears the dirty flag after a successful flush.
func (s *Shard) MarkClean() { s.dirty = false }

// Tree returns the shard's Merkle tree. Its leaves are updated as part
// of each Insert, Update and Delete, so no rebuild happens here.
func (s *Shard) Tree() *merkle.Tree { return s.tree }

// Get looks up a record by _id.
func (s *Shard) Get(id string) (bson.Record, bool) {
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Insert adds a new record, stamping every field with ts. Returns
// dberrors.ErrDuplicateID if id already exists in this shard.
func (s *Shard) Insert(rec bson.Record, ts int64) error {
	id, ok := rec.ID()
	if !ok {
		return dberrors.Wrap("shard.Insert", s.ID, dberrors.ErrCorruptShard)
	}
	if _, exists := s.records[id]; exists {
		return dberrors.Wrap("shard.Insert", id, dberrors.ErrDuplicateID)
	}

	userFields := stripMetadata(rec)
	fieldMeta := buildMeta(userFields, ts)

	stored := userFields.Clone()
	s.records[id] = stored
	s.meta[id] = fieldMeta
	s.touchLeaf(id, ts)
	s.dirty = true
	return nil
}

// Update is a partial applied in-place field update (spec section 4.1
// merge semantics). A nil value for a key deletes that field. Returns
// whether any field actually changed under older-loses LWW rules.
func (s *Shard) Update(id string, updates map[string]*bson.Value, ts int64) (bool, error) {
	rec, ok := s.records[id]
	if !ok {
		return false, dberrors.Wrap("shard.Update", id, dberrors.ErrNotFound)
	}
	fieldMeta := s.meta[id]
	if fieldMeta == nil {
		fieldMeta = make(map[string]*bson.Meta)
		s.meta[id] = fieldMeta
	}

	changed := false
	for key, val := range updates {
		if mergeField(rec, fieldMeta, key, val, ts) {
			changed = true
		}
	}
	if changed {
		s.touchLeaf(id, ts)
		s.dirty = true
	}
	return changed, nil
}

// Delete removes a record. Reports whether it was present.
func (s *Shard) Delete(id string) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	delete(s.meta, id)
	s.tree.DeleteItem(id)
	s.dirty = true
	return true
}

// Records returns every record in the shard, sorted by _id.
func (s *Shard) Records() []bson.Record {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]bson.Record, len(ids))
	for i, id := range ids {
		out[i] = s.records[id].Clone()
	}
	return out
}

// touchLeaf recomputes the shard-tree leaf for id from the record's
// current user fields and stamps it with the canonical hash, byte
// length, and lastModified, per spec section 4.2.
func (s *Shard) touchLeaf(id string, ts int64) {
	rec := s.records[id]
	canon := bson.Canonical(rec)
	hash := sha256.Sum256(canon)
	s.tree.AddItem(merkle.Leaf{
		Name:         id,
		Hash:         hash,
		Length:       uint64(len(canon)),
		LastModified: ts,
	})
}

func stripMetadata(rec bson.Record) bson.Record {
	out := make(bson.Record, len(rec))
	for k, v := range rec {
		if k == metadataKey {
			continue
		}
		out[k] = v
	}
	return out
}

// buildMeta constructs a full metadata mirror of fields, stamping every
// scalar leaf and recursing into nested objects.
func buildMeta(fields map[string]bson.Value, ts int64) map[string]*bson.Meta {
	out := make(map[string]*bson.Meta, len(fields))
	for k, v := range fields {
		if v.Kind == bson.KindObject {
			out[k] = &bson.Meta{Fields: buildMeta(v.Object, ts)}
		} else {
			out[k] = bson.NewLeafMeta(ts)
		}
	}
	return out
}

// mergeField applies one update key against rec/meta under last-writer-
// wins rules, recursing into nested objects. A nil val deletes the
// field. Reports whether the field changed.
func mergeField(rec bson.Record, meta map[string]*bson.Meta, key string, val *bson.Value, ts int64) bool {
	existing, hasMeta := meta[key]

	if val != nil && val.Kind == bson.KindObject && hasMeta && !existing.IsLeaf() {
		existingVal, ok := rec[key]
		if !ok || existingVal.Kind != bson.KindObject {
			existingVal = bson.Object(map[string]bson.Value{})
		}
		if existing.Fields == nil {
			existing.Fields = make(map[string]*bson.Meta)
		}
		nestedObj := existingVal.Object
		if nestedObj == nil {
			nestedObj = make(map[string]bson.Value)
		}
		changed := false
		for k, v := range val.Object {
			v := v
			if mergeField(nestedObj, existing.Fields, k, &v, ts) {
				changed = true
			}
		}
		if changed {
			rec[key] = bson.Object(nestedObj)
		}
		return changed
	}

	if hasMeta && existing.IsLeaf() && existing.Timestamp >= ts {
		return false // older-loses
	}

	if val == nil {
		delete(rec, key)
		meta[key] = bson.NewLeafMeta(ts)
		return true
	}

	if existingVal, ok := rec[key]; ok && bson.Equal(existingVal, *val) {
		return false // same value: do not advance the LWW stamp
	}

	rec[key] = *val
	meta[key] = bson.NewLeafMeta(ts)
	return true
}
