package transport

import (
	"bytes"
	"errors"
)

// ErrUnknownTransport is returned when the first bytes of a tunnel match
// none of the recognized transport headers. Per §7, this is not a crash
// condition: the tunnel is marked ignored and the caller should fall back
// to byte-transparent passthrough.
var ErrUnknownTransport = errors.New("transport: unknown transport")

// Demuxer classifies the transport variant of a tunnel from the first bytes
// of its client→server direction (§4.1). It buffers header bytes until it
// has enough to decide, since the classifying prefix may arrive split
// across multiple deliveries.
type Demuxer struct {
	buf []byte
}

// Result is the outcome of a completed classification.
type Result struct {
	Variant    Variant
	Obfuscated bool
	Obf        *ObfuscationContext
	// Remainder is the tail of the fed bytes that belongs to the framed
	// stream proper, once the classifying header (or 64-byte nonce) has
	// been stripped off.
	Remainder []byte
}

// Feed appends newly arrived client→server bytes and attempts
// classification. It returns ok = false while more data is needed. A
// non-nil error is always ErrUnknownTransport and is terminal for this
// Demuxer: the tunnel should fall back to passthrough.
func (d *Demuxer) Feed(data []byte) (result *Result, ok bool, err error) {
	d.buf = append(d.buf, data...)
	return d.tryClassify()
}

func (d *Demuxer) tryClassify() (*Result, bool, error) {
	if len(d.buf) < 1 {
		return nil, false, nil
	}

	switch d.buf[0] {
	case 0xef:
		return &Result{Variant: VariantAbridged, Remainder: d.buf[1:]}, true, nil

	case 0xee:
		return d.classifyPlainIntermediate([]byte{0xee, 0xee, 0xee})

	case 0xdd:
		return d.classifyPlainIntermediate([]byte{0xdd, 0xdd, 0xdd})

	default:
		if len(d.buf) < 8 {
			return nil, false, nil
		}
		if bytes.Equal(d.buf[4:8], []byte{0, 0, 0, 0}) {
			return &Result{Variant: VariantFull, Remainder: d.buf}, true, nil
		}

		if len(d.buf) < 64 {
			return nil, false, nil
		}
		return d.classifyObfuscated()
	}
}

func (d *Demuxer) classifyPlainIntermediate(want []byte) (*Result, bool, error) {
	if len(d.buf) < 4 {
		return nil, false, nil
	}
	if !bytes.Equal(d.buf[1:4], want) {
		return nil, false, ErrUnknownTransport
	}
	return &Result{Variant: VariantIntermediate, Remainder: d.buf[4:]}, true, nil
}

func (d *Demuxer) classifyObfuscated() (*Result, bool, error) {
	nonce := append([]byte(nil), d.buf[:64]...)

	obf, err := NewObfuscationContext(nonce)
	if err != nil {
		return nil, false, err
	}

	decrypted := obf.Decrypt(nonce)
	header := decrypted[56:60]

	var variant Variant
	switch {
	case bytes.Equal(header, []byte{0xef, 0xef, 0xef, 0xef}):
		variant = VariantAbridged
	case bytes.Equal(header, []byte{0xee, 0xee, 0xee, 0xee}),
		bytes.Equal(header, []byte{0xdd, 0xdd, 0xdd, 0xdd}):
		variant = VariantIntermediate
	default:
		return nil, false, ErrUnknownTransport
	}

	return &Result{
		Variant:    variant,
		Obfuscated: true,
		Obf:        obf,
		Remainder:  d.buf[64:],
	}, true, nil
}
