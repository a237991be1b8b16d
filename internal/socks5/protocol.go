package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
)

const (
	socksVersion5 = 0x05

	methodNoAuth       = 0x00
	methodUserPassword = 0x02
	methodNoAcceptable = 0xff

	userPassVersion = 0x01
	authSuccess     = 0x00
	authFailure     = 0x01

	cmdConnect      = 0x01
	cmdBind         = 0x02
	cmdUDPAssociate = 0x03

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySucceeded           = 0x00
	replyGeneralFailure      = 0x01
	replyCommandNotSupported = 0x07
	replyHostUnreachable     = 0x04
	replyAddrTypeNotSupport  = 0x08
)

// handshake performs the RFC 1928 greeting/method-selection, the optional
// RFC 1929 username/password subnegotiation, and the CONNECT request, then
// dials the requested destination. The caller owns closing both conns.
func (s *Server) handshake(client net.Conn) (net.Conn, error) {
	method, err := s.negotiateMethod(client)
	if err != nil {
		return nil, err
	}

	if method == methodUserPassword {
		if err := s.authenticate(client); err != nil {
			return nil, err
		}
	}

	cmd, addr, port, err := readRequest(client)
	if err != nil {
		writeReply(client, replyGeneralFailure, nil, 0)
		return nil, err
	}

	if cmd != cmdConnect {
		writeReply(client, replyCommandNotSupported, nil, 0)
		return nil, fmt.Errorf("unsupported SOCKS5 command 0x%02x", cmd)
	}

	dest, bindAddr, bindPort, err := s.dial(addr, port)
	if err != nil {
		s.dialFailures.Add(1)
		writeReply(client, replyHostUnreachable, nil, 0)
		return nil, fmt.Errorf("dial %s:%d: %w", addr, port, err)
	}

	if err := writeReply(client, replySucceeded, bindAddr, bindPort); err != nil {
		dest.Close()
		return nil, err
	}

	return dest, nil
}

func (s *Server) negotiateMethod(client net.Conn) (byte, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(client, hdr); err != nil {
		return 0, fmt.Errorf("read greeting: %w", err)
	}
	if hdr[0] != socksVersion5 {
		return 0, fmt.Errorf("unsupported SOCKS version 0x%02x", hdr[0])
	}

	nMethods := int(hdr[1])
	methods := make([]byte, nMethods)
	if nMethods > 0 {
		if _, err := io.ReadFull(client, methods); err != nil {
			return 0, fmt.Errorf("read methods: %w", err)
		}
	}

	offered := func(m byte) bool {
		for _, x := range methods {
			if x == m {
				return true
			}
		}
		return false
	}

	var chosen byte = methodNoAcceptable
	if s.cfg.NoAuth {
		if offered(methodNoAuth) {
			chosen = methodNoAuth
		}
	} else if offered(methodUserPassword) {
		chosen = methodUserPassword
	}

	if _, err := client.Write([]byte{socksVersion5, chosen}); err != nil {
		return 0, fmt.Errorf("write method selection: %w", err)
	}
	if chosen == methodNoAcceptable {
		return 0, fmt.Errorf("no acceptable authentication method")
	}
	return chosen, nil
}

func (s *Server) authenticate(client net.Conn) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(client, hdr); err != nil {
		return fmt.Errorf("read auth header: %w", err)
	}
	if hdr[0] != userPassVersion {
		return fmt.Errorf("unsupported auth subnegotiation version 0x%02x", hdr[0])
	}

	login := make([]byte, hdr[1])
	if len(login) > 0 {
		if _, err := io.ReadFull(client, login); err != nil {
			return fmt.Errorf("read auth login: %w", err)
		}
	}

	var plen [1]byte
	if _, err := io.ReadFull(client, plen[:]); err != nil {
		return fmt.Errorf("read auth password length: %w", err)
	}
	password := make([]byte, plen[0])
	if len(password) > 0 {
		if _, err := io.ReadFull(client, password); err != nil {
			return fmt.Errorf("read auth password: %w", err)
		}
	}

	ok := s.cfg.Credential != nil && s.cfg.Credential(string(login), string(password))
	status := byte(authFailure)
	if ok {
		status = authSuccess
	}
	if _, err := client.Write([]byte{userPassVersion, status}); err != nil {
		return fmt.Errorf("write auth status: %w", err)
	}
	if !ok {
		return fmt.Errorf("authentication failed for login %q", login)
	}
	return nil
}

func readRequest(client net.Conn) (cmd byte, addr string, port uint16, err error) {
	hdr := make([]byte, 4)
	if _, err = io.ReadFull(client, hdr); err != nil {
		return 0, "", 0, fmt.Errorf("read request header: %w", err)
	}
	if hdr[0] != socksVersion5 {
		return 0, "", 0, fmt.Errorf("unsupported SOCKS version 0x%02x", hdr[0])
	}
	cmd = hdr[1]
	atyp := hdr[3]

	switch atyp {
	case atypIPv4:
		raw := make([]byte, 4)
		if _, err = io.ReadFull(client, raw); err != nil {
			return 0, "", 0, fmt.Errorf("read ipv4 address: %w", err)
		}
		addr = net.IP(raw).String()
	case atypIPv6:
		raw := make([]byte, 16)
		if _, err = io.ReadFull(client, raw); err != nil {
			return 0, "", 0, fmt.Errorf("read ipv6 address: %w", err)
		}
		addr = net.IP(raw).String()
	case atypDomain:
		var l [1]byte
		if _, err = io.ReadFull(client, l[:]); err != nil {
			return 0, "", 0, fmt.Errorf("read domain length: %w", err)
		}
		raw := make([]byte, l[0])
		if _, err = io.ReadFull(client, raw); err != nil {
			return 0, "", 0, fmt.Errorf("read domain: %w", err)
		}
		addr = string(raw)
	default:
		return 0, "", 0, fmt.Errorf("unsupported address type 0x%02x", atyp)
	}

	var portBuf [2]byte
	if _, err = io.ReadFull(client, portBuf[:]); err != nil {
		return 0, "", 0, fmt.Errorf("read port: %w", err)
	}
	port = binary.BigEndian.Uint16(portBuf[:])
	return cmd, addr, port, nil
}

func (s *Server) dial(addr string, port uint16) (net.Conn, net.IP, uint16, error) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, strconv.Itoa(int(port))), s.cfg.DialTimeout)
	if err != nil {
		return nil, nil, 0, err
	}

	var bindIP net.IP
	var bindPort uint16
	if ta, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		bindIP = ta.IP
		bindPort = uint16(ta.Port)
	}
	return conn, bindIP, bindPort, nil
}

func writeReply(client net.Conn, rep byte, bindIP net.IP, bindPort uint16) error {
	atyp := byte(atypIPv4)
	ip4 := bindIP.To4()
	addrBytes := make([]byte, 4)
	if ip4 == nil && bindIP != nil {
		atyp = atypIPv6
		addrBytes = make([]byte, 16)
		copy(addrBytes, bindIP.To16())
	} else if ip4 != nil {
		copy(addrBytes, ip4)
	}

	buf := make([]byte, 0, 6+len(addrBytes))
	buf = append(buf, socksVersion5, rep, 0x00, atyp)
	buf = append(buf, addrBytes...)
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], bindPort)
	buf = append(buf, portBuf[:]...)

	_, err := client.Write(buf)
	return err
}
