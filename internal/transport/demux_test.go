package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietwire/mtmitm/internal/crypto"
)

func TestDemuxPlainAbridged(t *testing.T) {
	var d Demuxer
	res, ok, err := d.Feed([]byte{0xef, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantAbridged, res.Variant)
	assert.False(t, res.Obfuscated)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, res.Remainder)
}

func TestDemuxPlainIntermediate(t *testing.T) {
	var d Demuxer
	res, ok, err := d.Feed([]byte{0xee, 0xee, 0xee, 0xee, 0x01})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantIntermediate, res.Variant)
	assert.Equal(t, []byte{0x01}, res.Remainder)
}

func TestDemuxPlainIntermediatePadded(t *testing.T) {
	var d Demuxer
	res, ok, err := d.Feed([]byte{0xdd, 0xdd, 0xdd, 0xdd})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantIntermediate, res.Variant)
}

func TestDemuxPlainIntermediateBadHeader(t *testing.T) {
	var d Demuxer
	_, ok, err := d.Feed([]byte{0xee, 0x01, 0x02, 0x03})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestDemuxFull(t *testing.T) {
	var d Demuxer
	res, ok, err := d.Feed([]byte{20, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantFull, res.Variant)
}

func TestDemuxNeedsMoreData(t *testing.T) {
	var d Demuxer
	_, ok, err := d.Feed([]byte{0x01, 0x02})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDemuxObfuscatedAbridged(t *testing.T) {
	nonce := buildObfuscatedNonce(t, []byte{0xef, 0xef, 0xef, 0xef})

	var d Demuxer
	res, ok, err := d.Feed(nonce)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantAbridged, res.Variant)
	assert.True(t, res.Obfuscated)
	require.NotNil(t, res.Obf)
}

func TestDemuxObfuscatedIntermediate(t *testing.T) {
	nonce := buildObfuscatedNonce(t, []byte{0xdd, 0xdd, 0xdd, 0xdd})

	var d Demuxer
	res, ok, err := d.Feed(nonce)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantIntermediate, res.Variant)
}

func TestDemuxObfuscatedUnknownTag(t *testing.T) {
	nonce := buildObfuscatedNonce(t, []byte{0x12, 0x34, 0x56, 0x78})

	var d Demuxer
	_, ok, err := d.Feed(nonce)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestDemuxFeedAcrossMultipleDeliveries(t *testing.T) {
	var d Demuxer
	_, ok, err := d.Feed([]byte{0xee})
	require.NoError(t, err)
	assert.False(t, ok)

	res, ok, err := d.Feed([]byte{0xee, 0xee, 0xee})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VariantIntermediate, res.Variant)
}

// buildObfuscatedNonce constructs a 64-byte client nonce whose decrypted
// bytes[56:60] equal tag, per the real obfuscation scheme: bytes[8:40] and
// [40:56] are sent as the plaintext encrypt key/iv, while bytes[56:64] are
// actually CTR-encrypted (continuing the keystream from byte offset 56)
// over a desired plaintext tag.
func buildObfuscatedNonce(t *testing.T, tag []byte) []byte {
	t.Helper()
	require.Len(t, tag, 4)

	var key [32]byte
	var iv [16]byte
	for i := range key {
		key[i] = byte(i + 5)
	}
	for i := range iv {
		iv[i] = byte(i + 9)
	}

	plaintext := make([]byte, 64)
	plaintext[0] = 0x01 // must not collide with 0xef/0xee/0xdd
	for i := 4; i < 8; i++ {
		plaintext[i] = 0x01 // must not be all-zero (would misclassify as Full)
	}
	copy(plaintext[8:40], key[:])
	copy(plaintext[40:56], iv[:])
	copy(plaintext[56:60], tag)

	stream, err := crypto.NewCTRStream(key, iv)
	require.NoError(t, err)
	ciphertext := make([]byte, 64)
	stream.XORKeyStream(ciphertext, plaintext)

	nonce := append([]byte(nil), plaintext[:56]...)
	nonce = append(nonce, ciphertext[56:64]...)
	return nonce
}
