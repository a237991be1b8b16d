// Package tl implements the Type Language deserializer and schema runtime
// (§4.4). Field and primitive encodings are grounded on
// original_source/mtproto_mitm/tl/serialization_utils.py and
// original_source/mtproto_mitm/tl/core_types.py; the object/field
// descriptor shape is grounded on
// original_source/mtproto_mitm/tl/tl_object.py.
package tl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader is a forward-only cursor over a framed, possibly-decrypted TL
// byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential TL decoding.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("tl: short read: need %d bytes, have %d", n, r.Remaining())
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// Sub carves out exactly n bytes as a fresh, independently positioned
// Reader. Used for length-delimited nested objects (Message bodies,
// GzipPacked payloads).
func (r *Reader) Sub(n int) (*Reader, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadInt128() ([16]byte, error) {
	var out [16]byte
	b, err := r.take(16)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (r *Reader) ReadInt256() ([32]byte, error) {
	var out [32]byte
	b, err := r.take(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (r *Reader) ReadDouble() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

const (
	boolTrueID  uint32 = 0x997275b5
	boolFalseID uint32 = 0xbc799737
	vectorID    uint32 = 0x1cb5c415
)

// ReadBool reads a 4-byte bool marker (§4.4).
func (r *Reader) ReadBool() (bool, error) {
	id, err := r.ReadUint32()
	if err != nil {
		return false, err
	}
	switch id {
	case boolTrueID:
		return true, nil
	case boolFalseID:
		return false, nil
	default:
		return false, fmt.Errorf("tl: invalid bool marker %#08x", id)
	}
}

// ReadTLBytes reads the length-prefixed, 4-byte-aligned bytes encoding
// shared by `bytes` and `string` (§4.4).
func (r *Reader) ReadTLBytes() ([]byte, error) {
	first, err := r.take(1)
	if err != nil {
		return nil, err
	}

	var length, headerLen int
	if first[0] < 254 {
		length = int(first[0])
		headerLen = 1
	} else {
		ext, err := r.take(3)
		if err != nil {
			return nil, err
		}
		length = int(ext[0]) | int(ext[1])<<8 | int(ext[2])<<16
		headerLen = 4
	}

	data, err := r.take(length)
	if err != nil {
		return nil, err
	}

	total := headerLen + length
	if pad := (4 - total%4) % 4; pad > 0 {
		if _, err := r.take(pad); err != nil {
			return nil, err
		}
	}

	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// ReadTLString reads a TL string: the same wire encoding as bytes, decoded
// as UTF-8.
func (r *Reader) ReadTLString() (string, error) {
	b, err := r.ReadTLBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ExpectVectorMarker consumes and validates the 4-byte vector constructor.
func (r *Reader) ExpectVectorMarker() error {
	id, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if id != vectorID {
		return fmt.Errorf("tl: expected vector marker %#08x, got %#08x", vectorID, id)
	}
	return nil
}
