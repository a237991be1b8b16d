// Package keystore holds the process-wide registry of authorization keys
// the operator has supplied out-of-band (§3, §6.3). It is populated once at
// startup (and on SIGHUP reload, see internal/config) and read concurrently
// by every tunnel's task thereafter; entries are never evicted, so reads
// need only a lock against concurrent writers, never against each other.
package keystore

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/quietwire/mtmitm/internal/crypto"
)

// KeySize is the fixed length of an MTProto authorization key.
const KeySize = 256

// Store is a process-wide mapping from authorization-key id to key bytes.
type Store struct {
	mu   sync.RWMutex
	keys map[uint64][KeySize]byte
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{keys: make(map[uint64][KeySize]byte)}
}

// ID computes an authorization key's identifier: the little-endian integer
// formed by the trailing 8 bytes of its SHA-1 digest (§3, invariant c).
func ID(key []byte) (uint64, error) {
	if len(key) != KeySize {
		return 0, fmt.Errorf("keystore: authorization key must be %d bytes, got %d", KeySize, len(key))
	}
	digest := crypto.SHA1(key)
	return binary.LittleEndian.Uint64(digest[12:20]), nil
}

// Register computes a key's id and inserts it, overwriting any existing
// entry with the same id.
func (s *Store) Register(key []byte) (uint64, error) {
	id, err := ID(key)
	if err != nil {
		return 0, err
	}

	var buf [KeySize]byte
	copy(buf[:], key)

	s.mu.Lock()
	s.keys[id] = buf
	s.mu.Unlock()
	return id, nil
}

// Lookup returns the key bytes registered under id, if any.
func (s *Store) Lookup(id uint64) (key []byte, ok bool) {
	s.mu.RLock()
	buf, ok := s.keys[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := make([]byte, KeySize)
	copy(out, buf[:])
	return out, true
}

// Len reports how many keys are currently registered.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
