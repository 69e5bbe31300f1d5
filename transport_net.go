package onewire

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// NetTransport realizes ByteTransport over a network-attached host
// interface (a CUNO/COC-style DS2480 gateway, addressed per spec.md §6 by
// an identifier containing "CUNO" or "COC"). It speaks either raw TCP or,
// when the address carries a ws://wss:// scheme, a binary WebSocket stream
// — the same io.Reader/Writer/Closer wrapping idiom used for Fusain's
// serial/WebSocket dual transport.
type NetTransport struct {
	addr string
	conn net.Conn
	ws   *websocket.Conn

	wsBuf    []byte
	wsOffset int
}

// OpenNetTransport dials addr. A ws:// or wss:// scheme opens a binary
// WebSocket; anything else is treated as a host:port TCP endpoint.
func OpenNetTransport(addr string) (*NetTransport, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, fmt.Errorf("onewire: invalid network address %q: %w", addr, err)
		}
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.Dial(u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("onewire: dial %s: %w", addr, err)
		}
		return &NetTransport{addr: addr, ws: conn}, nil
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("onewire: dial %s: %w", addr, err)
	}
	return &NetTransport{addr: addr, conn: conn}, nil
}

func (t *NetTransport) Write(p []byte) (int, error) {
	if t.ws != nil {
		if err := t.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return t.conn.Write(p)
}

func (t *NetTransport) Read(p []byte, deadline time.Time) (int, error) {
	if t.ws != nil {
		return t.wsRead(p)
	}
	if !deadline.IsZero() {
		_ = t.conn.SetReadDeadline(deadline)
	}
	return t.conn.Read(p)
}

func (t *NetTransport) wsRead(p []byte) (int, error) {
	if t.wsOffset < len(t.wsBuf) {
		n := copy(p, t.wsBuf[t.wsOffset:])
		t.wsOffset += n
		return n, nil
	}
	for {
		mt, data, err := t.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		t.wsBuf = data
		t.wsOffset = 0
		n := copy(p, t.wsBuf)
		t.wsOffset = n
		return n, nil
	}
}

// SetBaud is a no-op over the network: the remote gateway owns the physical
// line rate and is not reconfigured per-transaction.
func (t *NetTransport) SetBaud(int) error { return nil }

func (t *NetTransport) ResetErrors() error { return nil }

func (t *NetTransport) Close() error {
	if t.ws != nil {
		return t.ws.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
