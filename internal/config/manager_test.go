package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quietwire/mtmitm/internal/keystore"
)

func TestManagerReloadAndCurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")
	if err := os.WriteFile(path, []byte(sampleKeyHexA), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	s, err := m.Reload()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if s.Bytes == 0 {
		t.Fatalf("expected non-zero bytes")
	}
	if len(s.MD5Hex) != 32 {
		t.Fatalf("unexpected md5 length: %d", len(s.MD5Hex))
	}
	if len(s.Config.Keys) != 1 {
		t.Fatalf("unexpected key count: %d", len(s.Config.Keys))
	}

	cur, ok := m.Current()
	if !ok {
		t.Fatalf("expected current snapshot")
	}
	if cur.Bytes != s.Bytes || cur.MD5Hex != s.MD5Hex {
		t.Fatalf("current snapshot mismatch")
	}

	stats := m.Stats()
	if stats.ReloadCalls != 1 || stats.ReloadSuccess != 1 || stats.CheckCalls != 1 {
		t.Fatalf("unexpected manager stats: %+v", stats)
	}
}

func TestManagerFailedReloadDoesNotReplaceCurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")
	if err := os.WriteFile(path, []byte(sampleKeyHexA), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	s1, err := m.Reload()
	if err != nil {
		t.Fatalf("first reload failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("not a valid hex key line"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	if _, err := m.Reload(); err == nil {
		t.Fatalf("expected reload error for invalid config")
	}

	cur, ok := m.Current()
	if !ok {
		t.Fatalf("expected current snapshot")
	}
	if cur.MD5Hex != s1.MD5Hex {
		t.Fatalf("current snapshot should remain previous valid snapshot")
	}

	stats := m.Stats()
	if stats.ReloadCalls != 2 || stats.ReloadSuccess != 1 || stats.LastError == "" {
		t.Fatalf("unexpected manager stats after failed reload: %+v", stats)
	}

	if err := os.WriteFile(path, []byte(sampleKeyHexB), 0o600); err != nil {
		t.Fatalf("rewrite valid config: %v", err)
	}
	if _, err := m.Reload(); err != nil {
		t.Fatalf("expected successful reload after recovery, got: %v", err)
	}
	stats = m.Stats()
	if stats.ReloadCalls != 3 || stats.ReloadSuccess != 2 || stats.LastError != "" {
		t.Fatalf("unexpected manager stats after recovery reload: %+v", stats)
	}
}

func TestManagerReloadIntoRegistersKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.txt")
	if err := os.WriteFile(path, []byte(sampleKeyHexA+"\n"+sampleKeyHexB), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	m := NewManager(path)
	store := keystore.NewStore()
	_, n, err := m.ReloadInto(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("unexpected registered key count: %d", n)
	}
	if store.Len() != 2 {
		t.Fatalf("unexpected store size: %d", store.Len())
	}
}
