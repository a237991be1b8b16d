package schema

import (
	"fmt"
	"strings"

	"github.com/quietwire/mtmitm/internal/tl"
)

// ResolveType maps a schema type name to a tl.Type. Vector<X> resolves
// recursively; true/True is only meaningful as a flag-gated predicate type
// and resolves to KindFlagTrue; every other name not recognized as a core
// primitive resolves to KindObject, since the TL reader always dispatches
// object-typed fields dynamically by the wire constructor id regardless of
// the nominally declared type (§4.4).
func ResolveType(name string) tl.Type {
	switch name {
	case "int":
		return tl.Type{Kind: tl.KindInt32}
	case "long":
		return tl.Type{Kind: tl.KindInt64}
	case "int128":
		return tl.Type{Kind: tl.KindInt128}
	case "int256":
		return tl.Type{Kind: tl.KindInt256}
	case "double":
		return tl.Type{Kind: tl.KindDouble}
	case "Bool", "bool":
		return tl.Type{Kind: tl.KindBool}
	case "bytes":
		return tl.Type{Kind: tl.KindBytes}
	case "string":
		return tl.Type{Kind: tl.KindString}
	case "true", "True":
		return tl.Type{Kind: tl.KindFlagTrue}
	}

	if strings.HasPrefix(name, "Vector<") && strings.HasSuffix(name, ">") {
		inner := name[len("Vector<") : len(name)-1]
		elem := ResolveType(inner)
		return tl.Type{Kind: tl.KindVector, Elem: &elem}
	}

	return tl.Type{Kind: tl.KindObject}
}

// ToDescriptor converts one parsed Combinator into a tl.Descriptor.
func ToDescriptor(c Combinator) *tl.Descriptor {
	fields := make([]tl.Field, 0, len(c.Args))
	for _, a := range c.Args {
		if a.IsFlagsWord {
			fields = append(fields, tl.Field{Name: a.Name, IsFlagsWord: true, FlagWord: 1})
			continue
		}
		f := tl.Field{Name: a.Name, Type: ResolveType(a.TypeName)}
		if a.Gated {
			f.FlagWord = a.FlagWord
			f.FlagBit = a.FlagBit
		}
		fields = append(fields, f)
	}

	return &tl.Descriptor{ID: c.ID, Name: c.QualName, Fields: fields}
}

// Compile parses a .tl schema and returns a ready-to-use Registry,
// reconciling combinators that recur across `// LAYER` markers: a
// `qualname#id` pair is the identity key across layers (§4.5). When the
// same qualname later reappears under a different id within a higher
// layer, both ids are kept (the registry is id-keyed, so they coexist
// naturally); when the same qualname#id pair is declared more than once
// more than once, the last declaration wins. Two different qualnames
// sharing one id are rejected with an error.
//
// No layer-suffixed names are produced here (nor by cmd/tlc): the registry
// is keyed by id alone.
func Compile(text string) (*tl.Registry, error) {
	combinators, err := Parse(text)
	if err != nil {
		return nil, err
	}

	reg := tl.NewRegistry()
	for _, c := range combinators {
		if prev, exists := reg.Lookup(c.ID); exists && prev.Name != c.QualName {
			return nil, fmt.Errorf("schema: duplicate constructor id %#08x (%s)", c.ID, c.QualName)
		}
		reg.Register(ToDescriptor(c))
	}
	return reg, nil
}
