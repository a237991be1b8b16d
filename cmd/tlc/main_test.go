package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
user#abcdef01 flags:# official:flags.0?true id:long = User;
`

func TestRunGeneratesValidGoSource(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "schema.tl")
	outPath := filepath.Join(dir, "schema_gen.go")

	require.NoError(t, os.WriteFile(inPath, []byte(testSchema), 0o644))

	err := run(options{in: inPath, out: outPath, pkg: "gen"})
	require.NoError(t, err)

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)

	generated := string(out)
	assert.Contains(t, generated, "package gen")
	assert.Contains(t, generated, "func Register(reg *tl.Registry)")
	assert.Contains(t, generated, "0xabcdef01")
	assert.Contains(t, generated, `Name: "user"`)
	assert.Contains(t, generated, "IsFlagsWord: true")
	assert.Contains(t, generated, "tl.KindFlagTrue")
}

func TestParseArgsRequiresInAndOut(t *testing.T) {
	_, err := parseArgs([]string{"-in", "schema.tl"})
	assert.Error(t, err)

	opts, err := parseArgs([]string{"-in", "a.tl", "-out", "b.go"})
	require.NoError(t, err)
	assert.Equal(t, "a.tl", opts.in)
	assert.Equal(t, "b.go", opts.out)
	assert.Equal(t, "gen", opts.pkg, "package defaults to gen")
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	_, err := parseArgs([]string{"-bogus", "x"})
	assert.Error(t, err)
}
