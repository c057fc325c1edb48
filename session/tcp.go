package session

import (
	"fmt"
	"net"
	"time"
)

// DefaultDialTimeout bounds outbound TCP connection attempts.
const DefaultDialTimeout = 30 * time.Second

// TCPTransport implements Transport over TCP, with one listen address per
// variant. It stands in for the short-range radio link in deployments and
// tests.
type TCPTransport struct {
	addrs       map[Variant]string
	dialTimeout time.Duration
}

// NewTCPTransport creates a transport listening on the given address per
// variant. Unlisted variants cannot be listened on.
func NewTCPTransport(addrs map[Variant]string, dialTimeout time.Duration) *TCPTransport {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	copied := make(map[Variant]string, len(addrs))
	for variant, addr := range addrs {
		copied[variant] = addr
	}

	return &TCPTransport{
		addrs:       copied,
		dialTimeout: dialTimeout,
	}
}

// Listen binds the variant's configured TCP address.
func (t *TCPTransport) Listen(variant Variant) (ListenHandle, error) {
	addr, ok := t.addrs[variant]
	if !ok {
		return nil, fmt.Errorf("no listen address configured for variant %q", variant)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", addr, err)
	}

	return &tcpListenHandle{listener: listener}, nil
}

// Connect dials the peer address with the transport's timeout.
func (t *TCPTransport) Connect(address string, variant Variant) (Stream, string, error) {
	conn, err := net.DialTimeout("tcp", address, t.dialTimeout)
	if err != nil {
		return nil, "", fmt.Errorf("dial %q: %w", address, err)
	}
	return conn, address, nil
}

type tcpListenHandle struct {
	listener net.Listener
}

func (h *tcpListenHandle) Accept() (Stream, string, error) {
	conn, err := h.listener.Accept()
	if err != nil {
		return nil, "", err
	}
	return conn, conn.RemoteAddr().String(), nil
}

func (h *tcpListenHandle) Addr() string {
	return h.listener.Addr().String()
}

func (h *tcpListenHandle) Close() error {
	return h.listener.Close()
}
