// Command tlc is the offline TL schema compiler (§4.5). It reads a .tl IDL
// file and emits a Go source file that registers every combinator it finds
// into a tl.Registry. It never runs as part of serving traffic; operators
// run it once per schema/layer update and check the generated file in.
//
// Usage:
//
//	tlc -in schema.tl -out internal/tl/gen/schema_gen.go -package gen
package main

import (
	"fmt"
	"os"
	"text/template"

	"github.com/quietwire/mtmitm/internal/schema"
)

type options struct {
	in      string
	out     string
	pkg     string
	funcPkg string
}

func parseArgs(args []string) (options, error) {
	opts := options{pkg: "gen"}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-in":
			i++
			if i >= len(args) {
				return opts, fmt.Errorf("tlc: -in requires a value")
			}
			opts.in = args[i]
		case "-out":
			i++
			if i >= len(args) {
				return opts, fmt.Errorf("tlc: -out requires a value")
			}
			opts.out = args[i]
		case "-package":
			i++
			if i >= len(args) {
				return opts, fmt.Errorf("tlc: -package requires a value")
			}
			opts.pkg = args[i]
		default:
			return opts, fmt.Errorf("tlc: unrecognized argument %q", args[i])
		}
	}
	if opts.in == "" || opts.out == "" {
		return opts, fmt.Errorf("tlc: both -in and -out are required")
	}
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "tlc:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	text, err := os.ReadFile(opts.in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.in, err)
	}

	combinators, err := schema.Parse(string(text))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", opts.in, err)
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", opts.out, err)
	}
	defer f.Close()

	data := templateData{
		Package:     opts.pkg,
		SourceFile:  opts.in,
		Combinators: make([]combinatorData, 0, len(combinators)),
	}
	for _, c := range combinators {
		data.Combinators = append(data.Combinators, toCombinatorData(c))
	}

	return generatedTemplate.Execute(f, data)
}
