// Package envelope implements the MTProto outer envelope codec and the
// MTProto 2.0 key-derivation function (§4.3). It is grounded on
// original_source/mtproto_mitm/protocol.py, which is an exact match for
// the spec's envelope layout and KDF.
package envelope

import (
	"encoding/binary"
	"fmt"

	"github.com/quietwire/mtmitm/internal/crypto"
	"github.com/quietwire/mtmitm/internal/keystore"
)

// Outer is the tagged union described in §3: either an Unencrypted or an
// Encrypted envelope. Exactly one of the two payload shapes is populated,
// discriminated by Encrypted.
type Outer struct {
	Encrypted bool

	// Unencrypted fields.
	MessageID uint64
	Payload   []byte

	// Encrypted fields.
	AuthKeyID  uint64
	MsgKey     [16]byte
	Ciphertext []byte
}

// Inner is the decrypted payload layout, populated only when decryption
// succeeds (§3).
type Inner struct {
	Salt      int64
	SessionID int64
	MessageID int64
	SeqNo     int32
	Payload   []byte
}

// ParseOuter reads a framed message body (≥ 8 bytes) into an Outer
// envelope, per §4.3.
func ParseOuter(body []byte) (Outer, error) {
	if len(body) < 8 {
		return Outer{}, fmt.Errorf("envelope: body too short for auth_key_id: %d bytes", len(body))
	}

	authKeyID := binary.LittleEndian.Uint64(body[0:8])
	rest := body[8:]

	if authKeyID == 0 {
		if len(rest) < 12 {
			return Outer{}, fmt.Errorf("envelope: unencrypted body too short: %d bytes", len(rest))
		}
		messageID := binary.LittleEndian.Uint64(rest[0:8])
		length := binary.LittleEndian.Uint32(rest[8:12])
		payloadStart := 12
		payloadEnd := payloadStart + int(length)
		if payloadEnd > len(rest) {
			return Outer{}, fmt.Errorf("envelope: declared length %d exceeds available %d bytes", length, len(rest)-payloadStart)
		}
		return Outer{
			Encrypted: false,
			MessageID: messageID,
			Payload:   rest[payloadStart:payloadEnd],
		}, nil
	}

	if len(rest) < 16 {
		return Outer{}, fmt.Errorf("envelope: encrypted body too short for msg_key: %d bytes", len(rest))
	}
	var msgKey [16]byte
	copy(msgKey[:], rest[0:16])

	return Outer{
		Encrypted:  true,
		AuthKeyID:  authKeyID,
		MsgKey:     msgKey,
		Ciphertext: rest[16:],
	}, nil
}

// Direction identifies which side sent a message, selecting the KDF's x
// offset (§4.3).
type Direction int

const (
	FromClient Direction = iota
	FromServer
)

func (d Direction) kdfOffset() int {
	if d == FromClient {
		return 0
	}
	return 8
}

// deriveKeys implements the MTProto 2.0 KDF.
func deriveKeys(authKey []byte, msgKey [16]byte, dir Direction) (aesKey [32]byte, aesIV [32]byte) {
	x := dir.kdfOffset()

	shaA := crypto.SHA256TwoChunks(msgKey[:], authKey[x:x+36])
	shaB := crypto.SHA256TwoChunks(authKey[x+40:x+76], msgKey[:])

	copy(aesKey[0:8], shaA[0:8])
	copy(aesKey[8:24], shaB[8:24])
	copy(aesKey[24:32], shaA[24:32])

	copy(aesIV[0:8], shaB[0:8])
	copy(aesIV[8:24], shaA[8:24])
	copy(aesIV[24:32], shaB[24:32])

	return aesKey, aesIV
}

// Decrypt attempts to resolve and decrypt an Encrypted envelope's inner
// payload, given a key registry. It returns ok = false whenever the key is
// unknown or the payload is malformed in a way that is not fatal to the
// tunnel (§4.3, §7): decryption failure is never an error condition for the
// caller, only a reason to fall back to raw_bytes.
func Decrypt(store *keystore.Store, outer Outer, dir Direction) (inner Inner, ok bool) {
	authKey, found := store.Lookup(outer.AuthKeyID)
	if !found {
		return Inner{}, false
	}

	aesKey, aesIV := deriveKeys(authKey, outer.MsgKey, dir)

	plaintext, err := crypto.DecryptIGE(aesKey, aesIV, outer.Ciphertext)
	if err != nil {
		return Inner{}, false
	}
	if len(plaintext) < 32 {
		return Inner{}, false
	}

	salt := int64(binary.LittleEndian.Uint64(plaintext[0:8]))
	sessionID := int64(binary.LittleEndian.Uint64(plaintext[8:16]))
	messageID := int64(binary.LittleEndian.Uint64(plaintext[16:24]))
	seqNo := int32(binary.LittleEndian.Uint32(plaintext[24:28]))
	innerLength := binary.LittleEndian.Uint32(plaintext[28:32])

	payloadStart := 32
	payloadEnd := payloadStart + int(innerLength)
	if payloadEnd > len(plaintext) {
		return Inner{}, false
	}

	return Inner{
		Salt:      salt,
		SessionID: sessionID,
		MessageID: messageID,
		SeqNo:     seqNo,
		Payload:   plaintext[payloadStart:payloadEnd],
	}, true
}
