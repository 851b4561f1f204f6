package shard

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/shardkeep/shardkeep/pkg/bson"
	"github.com/shardkeep/shardkeep/pkg/dberrors"
	"github.com/shardkeep/shardkeep/pkg/merkle"
)

const (
	magicShard         = "BSH1"
	shardFormatVersion = uint32(1)
)

// Encode serializes the shard to the on-disk BSH1 format (spec section
// 6.2): magic, version, then each record as (length[u32 LE],
// canonical-document-bytes). Records are written in _id sort order;
// field order inside each record follows Go map iteration, so repeated
// encodes of an unchanged shard are not guaranteed to be byte-identical.
func (s *Shard) Encode() []byte {
	buf := make([]byte, 0, 64+len(s.records)*128)
	buf = append(buf, magicShard...)
	buf = appendU32(buf, shardFormatVersion)

	for _, rec := range s.Records() {
		toWrite := rec.Clone()
		if m, ok := s.meta[mustID(rec)]; ok {
			toWrite[metadataKey] = bson.MetaToValue(metaRoot(m))
		}
		enc := bson.Encode(toWrite)
		buf = appendU32(buf, uint32(len(enc)))
		buf = append(buf, enc...)
	}
	return buf
}

// Decode reconstructs a Shard with the given id from BSH1 bytes. A
// length mismatch or truncated record is reported as
// dberrors.ErrCorruptShard, never a panic.
func Decode(id string, data []byte) (*Shard, error) {
	if len(data) < 8 {
		return nil, dberrors.Wrap("shard.Decode", id, dberrors.ErrCorruptShard)
	}
	if string(data[0:4]) != magicShard {
		return nil, dberrors.Wrap("shard.Decode", id, dberrors.ErrCorruptShard)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != shardFormatVersion {
		return nil, dberrors.Wrap("shard.Decode", id, dberrors.ErrUnsupportedVersion)
	}

	s := New(id)
	pos := 8
	for pos < len(data) {
		if pos+4 > len(data) {
			return nil, dberrors.Wrap("shard.Decode", id, dberrors.ErrCorruptShard)
		}
		recLen := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if recLen < 0 || pos+recLen > len(data) {
			return nil, dberrors.Wrap("shard.Decode", id, dberrors.ErrCorruptShard)
		}
		recBytes := data[pos : pos+recLen]
		pos += recLen

		rec, err := bson.Decode(recBytes)
		if err != nil {
			return nil, dberrors.Wrap("shard.Decode", id, dberrors.ErrCorruptShard)
		}
		if err := s.restore(rec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// restore installs a decoded record (with its embedded _metadata, if
// any) into the shard without re-stamping timestamps.
func (s *Shard) restore(rec bson.Record) error {
	recID, ok := rec.ID()
	if !ok {
		return dberrors.Wrap("shard.restore", s.ID, dberrors.ErrCorruptShard)
	}

	var fieldMeta map[string]*bson.Meta
	lastModified := int64(0)
	if metaVal, ok := rec[metadataKey]; ok {
		root := bson.ValueToMeta(metaVal)
		if root != nil && !root.IsLeaf() {
			fieldMeta = root.Fields
		}
		lastModified = maxTimestamp(root)
	}
	if fieldMeta == nil {
		fieldMeta = make(map[string]*bson.Meta)
	}

	userFields := stripMetadata(rec)
	s.records[recID] = userFields
	s.meta[recID] = fieldMeta

	canon := bson.Canonical(userFields)
	hash := sha256.Sum256(canon)
	s.tree.AddItem(merkle.Leaf{
		Name:         recID,
		Hash:         hash,
		Length:       uint64(len(canon)),
		LastModified: lastModified,
	})
	return nil
}

func mustID(rec bson.Record) string {
	id, _ := rec.ID()
	return id
}

// metaRoot wraps a record's per-field metadata map as the internal
// (non-leaf) root node MetaToValue expects.
func metaRoot(fields map[string]*bson.Meta) *bson.Meta {
	return &bson.Meta{Fields: fields}
}

// maxTimestamp finds the most recent timestamp anywhere in a metadata
// tree, used as a record's lastModified for its shard-tree leaf.
func maxTimestamp(m *bson.Meta) int64 {
	if m == nil {
		return 0
	}
	if m.IsLeaf() {
		return m.Timestamp
	}
	var max int64
	for _, child := range m.Fields {
		if ts := maxTimestamp(child); ts > max {
			max = ts
		}
	}
	return max
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
