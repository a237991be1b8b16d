package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const keyHexChars = 512 // 256-byte authorization key, hex-encoded

// Config holds the authorization keys loaded from a key file.
type Config struct {
	Keys [][]byte
}

func ParseFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read key file %q: %w", path, err)
	}
	return Parse(string(data))
}

// Parse reads a newline-delimited hex-encoded key file: blank lines and
// lines starting with '#' are ignored, every other line must decode to
// exactly 256 bytes.
func Parse(input string) (Config, error) {
	var cfg Config

	for lineNo, rawLine := range strings.Split(input, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, err := parseHexKey(line)
		if err != nil {
			return Config{}, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		cfg.Keys = append(cfg.Keys, key)
	}

	return cfg, nil
}

func parseHexKey(raw string) ([]byte, error) {
	if len(raw) != keyHexChars {
		return nil, fmt.Errorf("expected %d hex chars (256-byte key), got %d", keyHexChars, len(raw))
	}
	out := make([]byte, keyHexChars/2)
	if _, err := hex.Decode(out, []byte(raw)); err != nil {
		return nil, fmt.Errorf("not a valid hex string: %w", err)
	}
	return out, nil
}
