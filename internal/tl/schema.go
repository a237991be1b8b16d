package tl

// Kind enumerates the primitive and structural TL field types (§4.4). Int128
// and Int256 are carried as fixed-size byte arrays in wire order rather than
// interpreted as Go integers; the JSON sink renders them as lowercase hex
// strings, not as decimal integers.
type Kind int

const (
	KindInt32 Kind = iota
	KindInt64
	KindInt128
	KindInt256
	KindDouble
	KindBool
	KindBytes
	KindString
	KindObject
	KindVector
	// KindFlagTrue is the TL `flags.N?true` convention: the field carries
	// no wire data at all. Its value is simply whether the gating flag
	// bit was set.
	KindFlagTrue
)

// Type describes a field's resolved type. Elem is only meaningful for
// KindVector.
type Type struct {
	Kind Kind
	Elem *Type
}

// Field describes one ordered field of a combinator (§3: TLObject).
type Field struct {
	Name string
	Type Type

	// IsFlagsWord marks this field as a `flags:#` word: it is always
	// read unconditionally, as a plain Int32, and its value gates later
	// fields whose FlagWord equals this word's 1-based position among the
	// combinator's flags words. A flags word's own FlagWord is not
	// consulted when reading.
	IsFlagsWord bool

	// FlagWord is the 1-based index of the flags word gating this
	// field; zero means the field is unconditional.
	FlagWord int
	// FlagBit is the bit within that flags word.
	FlagBit int
}

func (f Field) isGated() bool {
	return f.FlagWord > 0
}

// Descriptor is a compiled combinator: a constructor id, its declared name,
// and its ordered field list.
type Descriptor struct {
	ID     uint32
	Name   string
	Fields []Field
}

// Registry is the compiled schema: a lookup from constructor id to
// Descriptor. It is built once (by internal/schema, or directly by
// generated code) and read concurrently thereafter, so it carries no lock
// once construction is finished — callers must not mutate a Registry that
// is already in use by a tunnel task.
type Registry struct {
	byID map[uint32]*Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]*Descriptor)}
}

// Register adds a combinator descriptor, overwriting any existing entry
// with the same id. Only one descriptor per id is held, so two combinators
// that share an id cannot both be registered.
func (reg *Registry) Register(d *Descriptor) {
	reg.byID[d.ID] = d
}

// Lookup resolves a constructor id to its compiled descriptor.
func (reg *Registry) Lookup(id uint32) (*Descriptor, bool) {
	d, ok := reg.byID[id]
	return d, ok
}

// Len reports how many combinators are registered.
func (reg *Registry) Len() int {
	return len(reg.byID)
}
