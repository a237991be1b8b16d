// Package session is the core pipeline glue (§2): it drives, per tunnel,
// the transport demultiplexer, the per-direction framers, the envelope
// codec, and the TL reader, accumulating MessageRecords until the tunnel
// disconnects, at which point it flushes them to a Sink. It implements
// socks5.Callbacks so it can be handed directly to socks5.StartServer.
package session

import (
	"fmt"
	"io"
	"sync"

	"github.com/quietwire/mtmitm/internal/envelope"
	"github.com/quietwire/mtmitm/internal/keystore"
	"github.com/quietwire/mtmitm/internal/socks5"
	"github.com/quietwire/mtmitm/internal/tl"
	"github.com/quietwire/mtmitm/internal/transport"
)

// Metadata mirrors §3's MessageRecord.metadata: everything is optional
// except AuthKeyID, since an unencrypted envelope has no msg_key, salt,
// session id, or seq_no at all.
type Metadata struct {
	AuthKeyID uint64
	MessageID *int64
	SessionID *int64
	Salt      *int64
	SeqNo     *int32
	MsgKey    *[16]byte
}

// Record is one decoded or partially-decoded message (§3: MessageRecord).
// At most one of Object/RawBytes is populated.
type Record struct {
	Metadata  Metadata
	Object    *tl.Object
	RawBytes  []byte
	Decrypted bool
}

// Sink persists a tunnel's accumulated records once it disconnects (§6.1,
// §6.7).
type Sink interface {
	Write(tunnelID string, records []Record) error
}

// Observer is notified of per-tunnel lifecycle and decode-failure events,
// so callers (metrics, logging) don't have to inspect Record internals
// themselves. Every method is optional to care about; Manager calls
// whichever is non-nil-backed via a no-op default.
type Observer interface {
	TunnelOpened(tunnelID string)
	TunnelClosed(tunnelID string, recordCount int)
	BytesObserved(tunnelID string, dir socks5.Direction, n int)
	MessageRecorded(tunnelID string, decrypted bool)
	DecodeFailure(tunnelID string, kind string)
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{}

func (NopObserver) TunnelOpened(string)                         {}
func (NopObserver) TunnelClosed(string, int)                    {}
func (NopObserver) BytesObserved(string, socks5.Direction, int) {}
func (NopObserver) MessageRecorded(string, bool)                {}
func (NopObserver) DecodeFailure(string, string)                {}

// Manager implements socks5.Callbacks. It owns one tunnel map, guarded by
// a mutex only for that map's own inserts/deletes/lookups; each tunnel's
// own state is guarded by its own mutex, since a spliced tunnel's two
// directions are relayed by two concurrent goroutines (§5's "owning task"
// becomes, in Go, "the tunnel's own lock" rather than true single-threaded
// affinity).
type Manager struct {
	registry *tl.Registry
	store    *keystore.Store
	sink     Sink
	observer Observer
	logw     io.Writer
	quiet    bool

	mu      sync.Mutex
	tunnels map[string]*tunnel
}

var _ socks5.Callbacks = (*Manager)(nil)

// NewManager constructs a Manager. observer may be nil (treated as
// NopObserver); sink may be nil, in which case completed sessions are
// simply dropped (useful for tests).
func NewManager(registry *tl.Registry, store *keystore.Store, sink Sink, observer Observer, logw io.Writer, quiet bool) *Manager {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{
		registry: registry,
		store:    store,
		sink:     sink,
		observer: observer,
		logw:     logw,
		quiet:    quiet,
		tunnels:  make(map[string]*tunnel),
	}
}

// tunnel holds per-tunnel pipeline state (§3: the per-direction Framer
// pair plus the shared ObfuscationContext).
type tunnel struct {
	mu sync.Mutex

	demux   transport.Demuxer
	ready   bool
	ignored bool

	variant transport.Variant
	obf     *transport.ObfuscationContext
	framers [2]*transport.Framer

	// pendingServer buffers server→client bytes that arrive before the
	// client→server demux has classified the transport (§4.1 only runs
	// against the client direction's first bytes).
	pendingServer [][]byte

	records []Record
}

func (m *Manager) tunnelFor(tunnelID string) *tunnel {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tunnels[tunnelID]
	if !ok {
		t = &tunnel{}
		m.tunnels[tunnelID] = t
		m.observer.TunnelOpened(tunnelID)
	}
	return t
}

// OnData implements socks5.Callbacks (§6.1).
func (m *Manager) OnData(tunnelID string, dir socks5.Direction, data []byte) {
	m.observer.BytesObserved(tunnelID, dir, len(data))

	t := m.tunnelFor(tunnelID)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ignored {
		return
	}

	if !t.ready {
		if dir != socks5.ClientToServer {
			// Server bytes may legitimately race ahead of the client's
			// handshake preamble; hold them until classification lands.
			buffered := append([]byte(nil), data...)
			t.pendingServer = append(t.pendingServer, buffered)
			return
		}
		if !m.classify(tunnelID, t, data) {
			return
		}
	} else {
		t.framers[dir].Feed(data)
	}

	m.drain(tunnelID, t, dir)
}

// classify runs the demux on client→server bytes and, once it succeeds,
// constructs both directions' Framers and replays any buffered
// server→client bytes. Returns false if more data is still needed or the
// tunnel was marked ignored.
func (m *Manager) classify(tunnelID string, t *tunnel, data []byte) bool {
	result, ok, err := t.demux.Feed(data)
	if err != nil {
		t.ignored = true
		m.observer.DecodeFailure(tunnelID, "unknown_transport")
		m.logf("tunnel %s: unknown transport, passthrough only\n", tunnelID)
		return false
	}
	if !ok {
		return false
	}

	t.variant = result.Variant
	t.obf = result.Obf
	t.framers[socks5.ClientToServer] = transport.NewFramer(result.Variant, result.Obf)
	t.framers[socks5.ServerToClient] = transport.NewFramer(result.Variant, result.Obf)
	t.ready = true

	t.framers[socks5.ClientToServer].Feed(result.Remainder)
	for _, buffered := range t.pendingServer {
		t.framers[socks5.ServerToClient].Feed(buffered)
	}
	t.pendingServer = nil

	m.drain(tunnelID, t, socks5.ServerToClient)
	return true
}

// drain pulls every complete frame currently available on dir and runs it
// through the envelope/TL pipeline (§7: MalformedFrame is fatal only for
// the offending direction; the other direction keeps going).
func (m *Manager) drain(tunnelID string, t *tunnel, dir socks5.Direction) {
	framer := t.framers[dir]
	if framer == nil {
		return
	}
	for {
		body, ok, err := framer.Next()
		if err != nil {
			m.observer.DecodeFailure(tunnelID, "malformed_frame")
			m.logf("tunnel %s: malformed frame on %s, direction ignored\n", tunnelID, dir)
			return
		}
		if !ok {
			return
		}
		rec := m.decode(tunnelID, body, dir)
		t.records = append(t.records, rec)
		m.observer.MessageRecorded(tunnelID, rec.Decrypted)
		if !m.quiet {
			m.logf("tunnel %s [%s]: auth_key_id=%#x decrypted=%v\n", tunnelID, dir, rec.Metadata.AuthKeyID, rec.Decrypted)
		}
	}
}

// decode runs the envelope codec and, on success, the TL reader over one
// framed message body (§4.3, §4.4).
func (m *Manager) decode(tunnelID string, body []byte, dir socks5.Direction) Record {
	outer, err := envelope.ParseOuter(body)
	if err != nil {
		// Too short to even carry an auth_key_id: nothing useful to keep
		// beyond the raw bytes themselves.
		return Record{RawBytes: body}
	}

	if !outer.Encrypted {
		return m.decodeUnencrypted(tunnelID, outer)
	}
	return m.decodeEncrypted(tunnelID, outer, dir)
}

func (m *Manager) decodeUnencrypted(tunnelID string, outer envelope.Outer) Record {
	messageID := int64(outer.MessageID)
	meta := Metadata{AuthKeyID: 0, MessageID: &messageID}

	obj, raw := m.decodeObject(tunnelID, outer.Payload)
	return Record{Metadata: meta, Object: obj, RawBytes: raw, Decrypted: obj != nil}
}

func (m *Manager) decodeEncrypted(tunnelID string, outer envelope.Outer, dir socks5.Direction) Record {
	meta := Metadata{AuthKeyID: outer.AuthKeyID}

	edir := envelope.FromClient
	if dir == socks5.ServerToClient {
		edir = envelope.FromServer
	}

	inner, ok := envelope.Decrypt(m.store, outer, edir)
	if !ok {
		m.observer.DecodeFailure(tunnelID, "decrypt_failure")
		return Record{Metadata: meta, RawBytes: outer.Ciphertext, Decrypted: false}
	}

	msgKey := outer.MsgKey
	meta.MsgKey = &msgKey
	meta.Salt = &inner.Salt
	meta.SessionID = &inner.SessionID
	meta.MessageID = &inner.MessageID
	meta.SeqNo = &inner.SeqNo

	obj, raw := m.decodeObject(tunnelID, inner.Payload)
	return Record{Metadata: meta, Object: obj, RawBytes: raw, Decrypted: obj != nil}
}

// decodeObject reads one top-level TLObject from payload. On
// UnknownConstructor (or any other decode error) the raw payload is kept
// instead, per §4.4/§7: decode failures are never fatal to the tunnel.
func (m *Manager) decodeObject(tunnelID string, payload []byte) (obj *tl.Object, raw []byte) {
	obj, err := tl.ReadObject(tl.NewReader(payload), m.registry)
	if err != nil {
		m.observer.DecodeFailure(tunnelID, "unknown_constructor")
		return nil, payload
	}
	return obj, nil
}

// OnDisconnect implements socks5.Callbacks: drain (implicitly complete,
// since Feed/Next have already consumed everything delivered) then flush
// the accumulated records to the sink (§5 "Cancellation", §6.1).
func (m *Manager) OnDisconnect(tunnelID string) {
	m.mu.Lock()
	t, ok := m.tunnels[tunnelID]
	if ok {
		delete(m.tunnels, tunnelID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	records := t.records
	t.mu.Unlock()

	m.observer.TunnelClosed(tunnelID, len(records))

	if len(records) == 0 || m.sink == nil {
		return
	}
	if err := m.sink.Write(tunnelID, records); err != nil {
		m.logf("tunnel %s: failed to persist session: %v\n", tunnelID, err)
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.logw == nil {
		return
	}
	fmt.Fprintf(m.logw, format, args...)
}
