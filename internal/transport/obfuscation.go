package transport

import (
	"crypto/cipher"

	"github.com/quietwire/mtmitm/internal/crypto"
)

// ObfuscationContext holds the AES-256-CTR state derived from a tunnel's
// 64-byte obfuscation nonce (§4.1). It is created at most once per tunnel
// and shared, by reference, between both directions' Framers: the endpoint
// pair advances a single CTR keystream across every byte either side
// produces, so the MITM observer must mirror that by decrypting both
// directions through the same stream object.
//
// The decrypt-side (server-sent) triple is derived for completeness, per
// the source material, but is never consumed for reads; see DESIGN.md.
type ObfuscationContext struct {
	encryptStream cipher.Stream
	decryptKey    [32]byte
	decryptIV     [16]byte
}

// NewObfuscationContext derives the encrypt/decrypt CTR triples from a
// 64-byte client nonce, per §4.1:
//
//	encrypt = (N[8:40], N[40:56])
//	temp    = reverse(N[8:56])
//	decrypt = (temp[0:32], temp[32:48])
func NewObfuscationContext(nonce []byte) (*ObfuscationContext, error) {
	if len(nonce) != 64 {
		panic("transport: obfuscation nonce must be 64 bytes")
	}

	var encryptKey [32]byte
	var encryptIV [16]byte
	copy(encryptKey[:], nonce[8:40])
	copy(encryptIV[:], nonce[40:56])

	temp := reverseBytes(nonce[8:56])
	var decryptKey [32]byte
	var decryptIV [16]byte
	copy(decryptKey[:], temp[0:32])
	copy(decryptIV[:], temp[32:48])

	stream, err := crypto.NewCTRStream(encryptKey, encryptIV)
	if err != nil {
		return nil, err
	}

	return &ObfuscationContext{
		encryptStream: stream,
		decryptKey:    decryptKey,
		decryptIV:     decryptIV,
	}, nil
}

// Decrypt advances the shared encrypt-side CTR keystream over data in
// place-compatible fashion, returning the plaintext. Called for every byte
// segment arriving on either direction of an obfuscated tunnel.
func (o *ObfuscationContext) Decrypt(data []byte) []byte {
	out := make([]byte, len(data))
	o.encryptStream.XORKeyStream(out, data)
	return out
}

func reverseBytes(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[len(in)-1-i] = b
	}
	return out
}
