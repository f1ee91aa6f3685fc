// Package codec implements the deterministic binary wire format for
// ReplicationEvent: fixed field order, no floating point, UTF-8 validated
// strings, and a hard size ceiling so a single malformed frame can never
// exhaust a decoder.
package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/cuemby/merklekv-mobile/pkg/merr"
	"github.com/cuemby/merklekv-mobile/pkg/types"
)

// wireVersion is bumped only on a breaking format change; decode rejects
// any other value as ErrorKind::Codec rather than guessing.
const wireVersion = 1

// op tags. Fixed, never derived from map iteration or enum ordinal, so the
// wire format does not shift if types.Op gains members.
const (
	tagSet     byte = 1
	tagDelete  byte = 2
	tagIncr    byte = 3
	tagDecr    byte = 4
	tagAppend  byte = 5
	tagPrepend byte = 6
)

var opToTag = map[types.Op]byte{
	types.OpSet:     tagSet,
	types.OpDelete:  tagDelete,
	types.OpIncr:    tagIncr,
	types.OpDecr:    tagDecr,
	types.OpAppend:  tagAppend,
	types.OpPrepend: tagPrepend,
}

var tagToOp = map[byte]types.Op{
	tagSet:     types.OpSet,
	tagDelete:  types.OpDelete,
	tagIncr:    types.OpIncr,
	tagDecr:    types.OpDecr,
	tagAppend:  types.OpAppend,
	tagPrepend: types.OpPrepend,
}

// Encode serializes e in canonical field order:
//
//	version(1) | op(1) | tombstone(1) | timestamp_ms(8 BE) | seq(8 BE) |
//	node_id_len(uvarint) | node_id | key_len(uvarint) | key |
//	value_len(uvarint) | value
//
// Encoded size must not exceed types.MaxReplicationEventBytes; Encode
// returns ErrorKind::Codec rather than silently truncating.
func Encode(e types.ReplicationEvent) ([]byte, error) {
	tag, ok := opToTag[e.Op]
	if !ok {
		return nil, merr.New(merr.Codec, "unknown op for encoding")
	}
	if !utf8.ValidString(e.NodeID) || !utf8.ValidString(e.Key) {
		return nil, merr.New(merr.Codec, "non-UTF-8 node_id or key")
	}
	if !utf8.Valid(e.Value) {
		return nil, merr.New(merr.Codec, "non-UTF-8 value")
	}

	buf := make([]byte, 0, 32+len(e.NodeID)+len(e.Key)+len(e.Value))
	buf = append(buf, wireVersion, tag, boolByte(e.IsTombstone))
	buf = appendUint64(buf, uint64(e.TimestampMs))
	buf = appendUint64(buf, e.Seq)
	buf = appendString(buf, e.NodeID)
	buf = appendString(buf, e.Key)
	buf = appendBytes(buf, e.Value)

	if len(buf) > types.MaxReplicationEventBytes {
		return nil, merr.New(merr.Codec, "encoded event exceeds size ceiling")
	}
	return buf, nil
}

// Decode parses a wire frame produced by Encode. Any of the following
// yields ErrorKind::Codec: unknown version/tag, truncated input, oversize
// input, non-UTF-8 string fields, or trailing bytes after the value.
func Decode(data []byte) (types.ReplicationEvent, error) {
	var e types.ReplicationEvent
	if len(data) > types.MaxReplicationEventBytes {
		return e, merr.New(merr.Codec, "frame exceeds size ceiling")
	}
	r := &reader{buf: data}

	version, err := r.byte()
	if err != nil {
		return e, err
	}
	if version != wireVersion {
		return e, merr.New(merr.Codec, "unsupported wire version")
	}

	tagByte, err := r.byte()
	if err != nil {
		return e, err
	}
	op, ok := tagToOp[tagByte]
	if !ok {
		return e, merr.New(merr.Codec, "unknown op tag")
	}

	tombstoneByte, err := r.byte()
	if err != nil {
		return e, err
	}
	if tombstoneByte > 1 {
		return e, merr.New(merr.Codec, "invalid tombstone flag")
	}

	ts, err := r.uint64()
	if err != nil {
		return e, err
	}
	seq, err := r.uint64()
	if err != nil {
		return e, err
	}
	nodeID, err := r.string()
	if err != nil {
		return e, err
	}
	key, err := r.string()
	if err != nil {
		return e, err
	}
	value, err := r.bytes()
	if err != nil {
		return e, err
	}
	if !r.exhausted() {
		return e, merr.New(merr.Codec, "trailing bytes after event")
	}

	return types.ReplicationEvent{
		Op:          op,
		Key:         key,
		Value:       value,
		IsTombstone: tombstoneByte == 1,
		TimestampMs: int64(ts),
		NodeID:      nodeID,
		Seq:         seq,
	}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func appendBytes(buf []byte, b []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	buf = append(buf, lenBuf[:n]...)
	return append(buf, b...)
}

// reader walks a frame left to right; every accessor returns
// ErrorKind::Codec on truncation instead of panicking.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) exhausted() bool { return r.pos == len(r.buf) }

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, merr.New(merr.Codec, "truncated frame")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, merr.New(merr.Codec, "truncated frame")
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, nRead := binary.Uvarint(r.buf[r.pos:])
	if nRead <= 0 {
		return nil, merr.New(merr.Codec, "truncated length prefix")
	}
	r.pos += nRead
	if n > uint64(types.MaxReplicationEventBytes) || r.pos+int(n) > len(r.buf) {
		return nil, merr.New(merr.Codec, "truncated or oversize field")
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", merr.New(merr.Codec, "non-UTF-8 string field")
	}
	return string(b), nil
}
