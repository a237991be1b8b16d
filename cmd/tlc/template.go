package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/quietwire/mtmitm/internal/schema"
	"github.com/quietwire/mtmitm/internal/tl"
)

type fieldData struct {
	Name        string
	IsFlagsWord bool
	FlagWord    int
	FlagBit     int
	Gated       bool
	KindExpr    string
	ElemKind    string // non-empty only for KindVector
}

type combinatorData struct {
	IDHex  string
	Name   string
	Fields []fieldData
}

type templateData struct {
	Package     string
	SourceFile  string
	Combinators []combinatorData
}

func kindExprFor(t tl.Type) (kindExpr string, elemKind string) {
	names := map[tl.Kind]string{
		tl.KindInt32:    "tl.KindInt32",
		tl.KindInt64:    "tl.KindInt64",
		tl.KindInt128:   "tl.KindInt128",
		tl.KindInt256:   "tl.KindInt256",
		tl.KindDouble:   "tl.KindDouble",
		tl.KindBool:     "tl.KindBool",
		tl.KindBytes:    "tl.KindBytes",
		tl.KindString:   "tl.KindString",
		tl.KindObject:   "tl.KindObject",
		tl.KindVector:   "tl.KindVector",
		tl.KindFlagTrue: "tl.KindFlagTrue",
	}
	kindExpr = names[t.Kind]
	if t.Kind == tl.KindVector && t.Elem != nil {
		elemKind, _ = kindExprFor(*t.Elem)
	}
	return kindExpr, elemKind
}

func toCombinatorData(c schema.Combinator) combinatorData {
	out := combinatorData{IDHex: fmt.Sprintf("%#08x", c.ID), Name: c.QualName}
	for _, a := range c.Args {
		if a.IsFlagsWord {
			out.Fields = append(out.Fields, fieldData{Name: a.Name, IsFlagsWord: true, FlagWord: 1})
			continue
		}
		ty := schema.ResolveType(a.TypeName)
		kindExpr, elemKind := kindExprFor(ty)
		fd := fieldData{Name: a.Name, KindExpr: kindExpr, ElemKind: elemKind}
		if a.Gated {
			fd.Gated = true
			fd.FlagWord = a.FlagWord
			fd.FlagBit = a.FlagBit
		}
		out.Fields = append(out.Fields, fd)
	}
	return out
}

var generatedTemplate = template.Must(template.New("schema_gen").Funcs(template.FuncMap{
	"quote": strconv.Quote,
}).Parse(strings.TrimLeft(`
// Code generated by cmd/tlc from {{.SourceFile}}. DO NOT EDIT.

package {{.Package}}

import "github.com/quietwire/mtmitm/internal/tl"

// Register populates reg with every combinator compiled from {{.SourceFile}}.
func Register(reg *tl.Registry) {
{{- range .Combinators}}
	reg.Register(&tl.Descriptor{
		ID:   {{.IDHex}},
		Name: {{quote .Name}},
		Fields: []tl.Field{
{{- range .Fields}}
{{- if .IsFlagsWord}}
			{Name: {{quote .Name}}, IsFlagsWord: true, FlagWord: {{.FlagWord}}},
{{- else if .ElemKind}}
			{Name: {{quote .Name}}, Type: tl.Type{Kind: {{.KindExpr}}, Elem: &tl.Type{Kind: {{.ElemKind}}}}{{if .Gated}}, FlagWord: {{.FlagWord}}, FlagBit: {{.FlagBit}}{{end}}},
{{- else}}
			{Name: {{quote .Name}}, Type: tl.Type{Kind: {{.KindExpr}}}{{if .Gated}}, FlagWord: {{.FlagWord}}, FlagBit: {{.FlagBit}}{{end}}},
{{- end}}
{{- end}}
		},
	})
{{- end}}
}
`, "\n")))
