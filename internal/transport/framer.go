package transport

import "errors"

// ErrMalformedFrame is returned when a length prefix promises more bytes
// than are logically possible for the variant (§7, item 5) — e.g. a Full
// frame whose declared total length is too small to hold its own 12-byte
// header+trailer. This is fatal for the direction: once returned, the
// Framer stays permanently malformed and every subsequent Next call
// returns the same error without consuming further bytes.
var ErrMalformedFrame = errors.New("transport: malformed frame")

// Variant identifies which MTProto TCP transport framing a tunnel uses.
type Variant int

const (
	// VariantAbridged is the 1-or-4-byte length-prefixed, ×4 framing.
	VariantAbridged Variant = iota
	// VariantIntermediate is the plain 4-byte length-prefixed framing.
	// The padded (0xDD) variant is framed identically; only the demux
	// header distinguishes it, and we do not carry that distinction past
	// classification (§4.1).
	VariantIntermediate
	// VariantFull is length + seq_no + body + unverified CRC trailer.
	VariantFull
)

func (v Variant) String() string {
	switch v {
	case VariantAbridged:
		return "abridged"
	case VariantIntermediate:
		return "intermediate"
	case VariantFull:
		return "full"
	default:
		return "unknown"
	}
}

// Framer is the per-direction state machine described in §3/§4.2. It owns a
// ChunkedBuffer and, for obfuscated tunnels, a reference to the tunnel's
// shared ObfuscationContext. It is driven exclusively by its owning
// tunnel's task; it has no synchronization of its own.
type Framer struct {
	variant Variant
	obf     *ObfuscationContext
	buffer  ChunkedBuffer

	havePending   bool
	pendingLength int
	malformed     bool
}

// NewFramer constructs a Framer for the given variant. obf may be nil for
// unobfuscated transports.
func NewFramer(variant Variant, obf *ObfuscationContext) *Framer {
	return &Framer{variant: variant, obf: obf}
}

// Variant reports the transport variant this framer decodes.
func (f *Framer) Variant() Variant {
	return f.variant
}

// Feed appends newly arrived bytes for this direction. If the tunnel is
// obfuscated, the bytes are decrypted (through the shared CTR keystream)
// before being buffered, so Next always operates on plaintext. Feed keeps
// its own copy of the bytes, so the caller may reuse data afterwards. Feed
// is a no-op once the framer has hit ErrMalformedFrame: the direction is
// permanently ignored from that point on (§7).
func (f *Framer) Feed(data []byte) {
	if len(data) == 0 || f.malformed {
		return
	}
	if f.obf != nil {
		data = f.obf.Decrypt(data)
	} else {
		data = append([]byte(nil), data...)
	}
	f.buffer.Append(data)
}

// Next attempts to decode one complete message body. It returns ok = false
// when the buffered data is insufficient; callers should call Feed again
// and retry. Next must be called repeatedly after a single Feed, since one
// Feed may deliver several frames' worth of bytes. A non-nil error is
// always ErrMalformedFrame and is sticky: every subsequent call returns it
// again without touching the buffer.
func (f *Framer) Next() (body []byte, ok bool, err error) {
	if f.malformed {
		return nil, false, ErrMalformedFrame
	}
	switch f.variant {
	case VariantAbridged:
		return f.nextAbridged()
	case VariantIntermediate:
		return f.nextIntermediate()
	case VariantFull:
		return f.nextFull()
	default:
		return nil, false, nil
	}
}

func (f *Framer) fail() ([]byte, bool, error) {
	f.malformed = true
	return nil, false, ErrMalformedFrame
}

func (f *Framer) nextAbridged() ([]byte, bool, error) {
	length := f.pendingLength
	if !f.havePending {
		if f.buffer.Len() < 4 {
			return nil, false, nil
		}
		b, _ := f.buffer.Read(1)
		length = int(b[0] & 0x7f)
		if length == 0x7f {
			ext, _ := f.buffer.Read(3)
			length = int(ext[0]) | int(ext[1])<<8 | int(ext[2])<<16
		}
		length *= 4
	}

	if f.buffer.Len() < length {
		f.pendingLength = length
		f.havePending = true
		return nil, false, nil
	}

	f.havePending = false
	body, _ := f.buffer.Read(length)
	return body, true, nil
}

func (f *Framer) nextIntermediate() ([]byte, bool, error) {
	length := f.pendingLength
	if !f.havePending {
		if f.buffer.Len() < 4 {
			return nil, false, nil
		}
		b, _ := f.buffer.Read(4)
		length = int(le32(b))
	}

	if f.buffer.Len() < length {
		f.pendingLength = length
		f.havePending = true
		return nil, false, nil
	}

	f.havePending = false
	body, _ := f.buffer.Read(length)
	return body, true, nil
}

func (f *Framer) nextFull() ([]byte, bool, error) {
	length := f.pendingLength
	if !f.havePending {
		if f.buffer.Len() < 8 {
			return nil, false, nil
		}
		b, _ := f.buffer.Read(4)
		length = int(le32(b))
		if length < 12 {
			return f.fail()
		}
		f.buffer.Read(4) // seq_no, unused
	}

	if f.buffer.Len() < length-8 {
		f.pendingLength = length
		f.havePending = true
		return nil, false, nil
	}

	f.havePending = false
	body, _ := f.buffer.Read(length - 12)
	f.buffer.Read(4) // CRC trailer, not verified
	return body, true, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
