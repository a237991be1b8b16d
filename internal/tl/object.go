package tl

import "fmt"

// FieldValue is one decoded (name, value) pair of an Object, in
// declaration order. Value holds one of: int32, int64, [16]byte, [32]byte,
// float64, bool, []byte, string, *Object, or []any (for KindVector, whose
// elements are themselves any of the preceding).
type FieldValue struct {
	Name  string
	Value any
}

// Object is a decoded TLObject: a constructor id, its schema name, and its
// ordered field values (§3).
type Object struct {
	ConstructorID uint32
	Name          string
	Fields        []FieldValue
}

// Get returns the value of the named field, if present. Flag-gated fields
// that were absent on the wire simply do not appear.
func (o *Object) Get(name string) (any, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// ErrUnknownConstructor is returned when a constructor id has no entry in
// the registry and is not one of the built-in ids (§4.4, §7).
type ErrUnknownConstructor struct {
	ID uint32
}

func (e *ErrUnknownConstructor) Error() string {
	return fmt.Sprintf("tl: unknown constructor id %#08x", e.ID)
}

// ReadObject reads a full TLObject: a 4-byte constructor id followed by its
// fields. The four built-in container constructors plus the bool markers
// (§4.4) are recognized regardless of what is in registry — a top-level
// object can itself just be `boolTrue`/`boolFalse`, as happens whenever an
// RPC result is a bare boolean; everything else is looked up there.
func ReadObject(r *Reader, registry *Registry) (*Object, error) {
	id, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return readObjectByID(r, registry, id)
}

func readObjectByID(r *Reader, registry *Registry, id uint32) (*Object, error) {
	switch id {
	case boolTrueID:
		return &Object{ConstructorID: id, Name: "boolTrue", Fields: []FieldValue{{Name: "value", Value: true}}}, nil
	case boolFalseID:
		return &Object{ConstructorID: id, Name: "boolFalse", Fields: []FieldValue{{Name: "value", Value: false}}}, nil
	case MessageID:
		return readMessage(r, registry)
	case MsgContainerID:
		return readMsgContainer(r, registry)
	case RpcResultID:
		return readRpcResult(r, registry)
	case GzipPackedID:
		return readGzipPacked(r, registry)
	}

	desc, ok := registry.Lookup(id)
	if !ok {
		return nil, &ErrUnknownConstructor{ID: id}
	}
	return readFields(r, registry, desc)
}

// readFields runs the generic per-field decode loop described in §4.4 and
// original_source/mtproto_mitm/tl/tl_object.py's deserialize: flags words
// are read unconditionally and cached under their 1-based position among
// the combinator's flags words (`flags` is 1, `flags2` is 2); gated fields are skipped outright
// when their bit is unset, except KindFlagTrue fields, whose boolean value
// is always the bit's own state and which never consume wire bytes.
func readFields(r *Reader, registry *Registry, desc *Descriptor) (*Object, error) {
	obj := &Object{ConstructorID: desc.ID, Name: desc.Name}
	flagsWords := make(map[int]uint32)
	nextFlagsWord := 1

	for _, fd := range desc.Fields {
		if fd.IsFlagsWord {
			v, err := r.ReadUint32()
			if err != nil {
				return nil, fmt.Errorf("tl: %s.%s: %w", desc.Name, fd.Name, err)
			}
			flagsWords[nextFlagsWord] = v
			nextFlagsWord++
			obj.Fields = append(obj.Fields, FieldValue{Name: fd.Name, Value: v})
			continue
		}

		if fd.isGated() {
			word, seen := flagsWords[fd.FlagWord]
			if !seen {
				return nil, fmt.Errorf("tl: %s.%s: flags word %d not yet read", desc.Name, fd.Name, fd.FlagWord)
			}
			present := word&(1<<uint(fd.FlagBit)) != 0

			if fd.Type.Kind == KindFlagTrue {
				obj.Fields = append(obj.Fields, FieldValue{Name: fd.Name, Value: present})
				continue
			}
			if !present {
				continue
			}
		}

		val, err := readValue(r, registry, fd.Type)
		if err != nil {
			return nil, fmt.Errorf("tl: %s.%s: %w", desc.Name, fd.Name, err)
		}
		obj.Fields = append(obj.Fields, FieldValue{Name: fd.Name, Value: val})
	}

	return obj, nil
}

func readValue(r *Reader, registry *Registry, t Type) (any, error) {
	switch t.Kind {
	case KindInt32:
		return r.ReadInt32()
	case KindInt64:
		return r.ReadInt64()
	case KindInt128:
		return r.ReadInt128()
	case KindInt256:
		return r.ReadInt256()
	case KindDouble:
		return r.ReadDouble()
	case KindBool:
		return r.ReadBool()
	case KindBytes:
		return r.ReadTLBytes()
	case KindString:
		return r.ReadTLString()
	case KindObject:
		return ReadObject(r, registry)
	case KindVector:
		return readVector(r, registry, t)
	default:
		return nil, fmt.Errorf("tl: unsupported field kind %d", t.Kind)
	}
}

func readVector(r *Reader, registry *Registry, t Type) ([]any, error) {
	if t.Elem == nil {
		return nil, fmt.Errorf("tl: vector field missing element type")
	}
	if err := r.ExpectVectorMarker(); err != nil {
		return nil, err
	}
	count, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("tl: negative vector count %d", count)
	}

	out := make([]any, 0, count)
	for i := int32(0); i < count; i++ {
		v, err := readValue(r, registry, *t.Elem)
		if err != nil {
			return nil, fmt.Errorf("tl: vector element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
