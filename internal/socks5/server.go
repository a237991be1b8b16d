// Package socks5 implements a minimal RFC 1928 SOCKS5 front-end: greeting,
// optional username/password subnegotiation (RFC 1929), and CONNECT-only
// tunnel establishment. Once a tunnel is up the server splices the client
// connection and the dialed destination connection, invoking a Callbacks
// hook with every relayed byte slice before it is forwarded.
package socks5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Direction identifies which half of a spliced tunnel a byte slice came
// from.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client_to_server"
	}
	return "server_to_client"
}

// Callbacks receives every relayed byte slice and the tunnel-close event.
// OnData is called before the slice is forwarded to its destination and
// must not block for long. data is the relay's own read buffer: it is
// forwarded after OnData returns and then reused for the next read, so an
// implementation must copy any bytes it keeps and must not modify it.
type Callbacks interface {
	OnData(tunnelID string, direction Direction, data []byte)
	OnDisconnect(tunnelID string)
}

type Config struct {
	Addr          string
	MaxAcceptRate int
	DialTimeout   time.Duration
	IdleTimeout   time.Duration

	NoAuth     bool
	Credential func(login, password string) bool
}

type Stats struct {
	AcceptedTunnels   uint64
	AcceptRateLimited uint64
	ActiveTunnels     uint64
	ClosedTunnels     uint64
	HandshakeFailures uint64
	DialFailures      uint64
}

type Server struct {
	cfg  Config
	logw io.Writer
	cb   Callbacks
	now  func() time.Time

	listener net.Listener
	closed   chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	acceptLimiter *fixedWindowRateLimiter

	acceptedTunnels   atomic.Uint64
	acceptRateLimited atomic.Uint64
	activeTunnels     atomic.Uint64
	closedTunnels     atomic.Uint64
	handshakeFailures atomic.Uint64
	dialFailures      atomic.Uint64
}

func StartServer(cfg Config, cb Callbacks, logw io.Writer) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("socks5 listen addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cb == nil {
		return nil, fmt.Errorf("socks5 server requires callbacks")
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:           cfg,
		logw:          logw,
		cb:            cb,
		now:           time.Now,
		listener:      ln,
		closed:        make(chan struct{}),
		acceptLimiter: newFixedWindowRateLimiter(cfg.MaxAcceptRate),
	}

	s.wg.Add(1)
	go s.acceptLoop()
	fmt.Fprintf(logw, "socks5 server listening on %s\n", ln.Addr().String())
	return s, nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		close(s.closed)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		AcceptedTunnels:   s.acceptedTunnels.Load(),
		AcceptRateLimited: s.acceptRateLimited.Load(),
		ActiveTunnels:     s.activeTunnels.Load(),
		ClosedTunnels:     s.closedTunnels.Load(),
		HandshakeFailures: s.handshakeFailures.Load(),
		DialFailures:      s.dialFailures.Load(),
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			fmt.Fprintf(s.logw, "socks5 accept error: %v\n", err)
			return
		}

		if !s.acceptLimiter.Allow(s.now()) {
			s.acceptRateLimited.Add(1)
			_ = conn.Close()
			continue
		}

		s.acceptedTunnels.Add(1)
		s.activeTunnels.Add(1)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(client net.Conn) {
	defer s.wg.Done()
	defer client.Close()
	defer s.activeTunnels.Add(^uint64(0))

	tunnelID := uuid.NewString()

	dest, err := s.handshake(client)
	if err != nil {
		s.handshakeFailures.Add(1)
		fmt.Fprintf(s.logw, "socks5 tunnel %s handshake failed: %v\n", tunnelID, err)
		return
	}
	defer dest.Close()

	s.splice(tunnelID, client, dest)
	s.closedTunnels.Add(1)
	s.cb.OnDisconnect(tunnelID)
}

// splice relays bytes in both directions concurrently, invoking OnData for
// every slice before forwarding it, and waits for both halves to finish.
func (s *Server) splice(tunnelID string, client, dest net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.relay(tunnelID, ClientToServer, client, dest)
		if tcp, ok := dest.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		s.relay(tunnelID, ServerToClient, dest, client)
		if tcp, ok := client.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
	}()

	wg.Wait()
}

func (s *Server) relay(tunnelID string, dir Direction, src io.Reader, dst io.Writer) {
	buf := make([]byte, 32*1024)
	for {
		if s.cfg.IdleTimeout > 0 {
			if rc, ok := src.(interface{ SetReadDeadline(time.Time) error }); ok {
				_ = rc.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			}
		}

		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			s.cb.OnData(tunnelID, dir, chunk)
			if _, werr := dst.Write(chunk); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
