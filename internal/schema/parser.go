// Package schema implements the offline TL IDL compiler described in §4.5:
// it parses a TL schema text file into combinator descriptions, resolving
// flag predicates and vector element types, and reconciles combinators
// that recur across historical `// LAYER` markers.
//
// Grounded on original_source/tools/compiler/tl_compiler.py's
// parse_schema/parse_old_schemas; reimplemented from scratch in Go rather
// than translated, since that file generates Python source via a
// template engine with no Go equivalent in shape.
package schema

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Section is which half of the schema a combinator was declared in.
type Section int

const (
	SectionTypes Section = iota
	SectionFunctions
)

// Arg is one parsed argument of a combinator line, before type resolution.
type Arg struct {
	Name        string
	IsFlagsWord bool // `name:#`
	Gated       bool // `name:flags.N?type` / `name:flagsK.N?type`
	FlagWord    int  // defaults to 1 when Gated and no K given
	FlagBit     int
	TypeName    string // resolved underlying type name, e.g. "int", "Vector<User>", "true"
}

// Combinator is one parsed schema line: `qualname#hexid args… = qualtype;`.
type Combinator struct {
	Section  Section
	QualName string
	ID       uint32
	Args     []Arg
	QualType string
	Layer    int
}

var (
	sectionRe    = regexp.MustCompile(`^---(types|functions)---$`)
	layerRe      = regexp.MustCompile(`^//\s*LAYER\s+(\d+)`)
	combinatorRe = regexp.MustCompile(`^([A-Za-z0-9_.]+)#([0-9a-fA-F]+)\s*(.*?)\s*=\s*([A-Za-z0-9_.<>]+);\s*$`)
	argTokenRe   = regexp.MustCompile(`^([A-Za-z0-9_]+):(.+)$`)
	flagGateRe   = regexp.MustCompile(`^flags(\d*)\.(\d+)\?(.+)$`)
)

// Parse reads a full .tl schema file and returns every combinator it
// declares, in declaration order.
func Parse(text string) ([]Combinator, error) {
	var combinators []Combinator
	section := SectionTypes
	layer := 0

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			if m := layerRe.FindStringSubmatch(line); m != nil {
				n, err := strconv.Atoi(m[1])
				if err != nil {
					return nil, fmt.Errorf("schema: bad layer marker %q: %w", line, err)
				}
				layer = n
			}
			continue
		}
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			if m[1] == "functions" {
				section = SectionFunctions
			} else {
				section = SectionTypes
			}
			continue
		}

		m := combinatorRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("schema: unrecognized line: %q", line)
		}

		id64, err := strconv.ParseUint(m[2], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("schema: bad hex id in %q: %w", line, err)
		}

		args, err := parseArgs(m[3])
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", m[1], err)
		}

		combinators = append(combinators, Combinator{
			Section:  section,
			QualName: m[1],
			ID:       uint32(id64),
			Args:     args,
			QualType: m[4],
			Layer:    layer,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return combinators, nil
}

func parseArgs(raw string) ([]Arg, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var args []Arg
	for _, tok := range strings.Fields(raw) {
		m := argTokenRe.FindStringSubmatch(tok)
		if m == nil {
			return nil, fmt.Errorf("bad argument token %q", tok)
		}
		name, typ := m[1], m[2]

		if typ == "#" {
			args = append(args, Arg{Name: name, IsFlagsWord: true})
			continue
		}

		if gm := flagGateRe.FindStringSubmatch(typ); gm != nil {
			word := 1
			if gm[1] != "" {
				n, err := strconv.Atoi(gm[1])
				if err != nil {
					return nil, fmt.Errorf("bad flags word index in %q: %w", tok, err)
				}
				word = n
			}
			bit, err := strconv.Atoi(gm[2])
			if err != nil {
				return nil, fmt.Errorf("bad flag bit in %q: %w", tok, err)
			}
			args = append(args, Arg{
				Name:     name,
				Gated:    true,
				FlagWord: word,
				FlagBit:  bit,
				TypeName: gm[3],
			})
			continue
		}

		args = append(args, Arg{Name: name, TypeName: typ})
	}
	return args, nil
}
