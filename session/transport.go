package session

import "io"

// Variant selects one of the transport security flavors. Each variant gets
// its own Acceptor while the manager is listening.
type Variant string

const (
	// VariantSecure is the authenticated/encrypted link-layer flavor.
	VariantSecure Variant = "secure"
	// VariantInsecure is the plain link-layer flavor.
	VariantInsecure Variant = "insecure"
)

// Stream is one established bidirectional byte stream. Close unblocks any
// pending Read or Write with an error; that is the only cancellation
// primitive the session layer relies on.
type Stream interface {
	io.ReadWriteCloser
}

// ListenHandle accepts inbound streams for one variant. Close unblocks a
// pending Accept with an error.
type ListenHandle interface {
	// Accept blocks until an inbound stream arrives and returns it along
	// with the peer's identity (display name or address).
	Accept() (Stream, string, error)
	// Addr returns the bound listen address.
	Addr() string
	Close() error
}

// Transport is the raw connection-establishment capability supplied by the
// environment. The session core never opens sockets itself.
type Transport interface {
	Listen(variant Variant) (ListenHandle, error)
	// Connect blocks until an outbound stream to address is established and
	// returns it along with the peer's identity.
	Connect(address string, variant Variant) (Stream, string, error)
}
