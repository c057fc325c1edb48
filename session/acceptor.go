package session

import "sync"

// acceptor accepts inbound streams for one variant and hands each one to the
// manager, which decides whether it becomes the session.
type acceptor struct {
	manager *Manager
	variant Variant
	handle  ListenHandle

	closeOnce sync.Once
}

// newAcceptor binds the variant's listen address immediately so that a
// failure surfaces to the caller instead of inside the goroutine.
func newAcceptor(m *Manager, variant Variant) (*acceptor, error) {
	handle, err := m.transport.Listen(variant)
	if err != nil {
		return nil, err
	}
	return &acceptor{manager: m, variant: variant, handle: handle}, nil
}

// run accepts until the manager reaches Connected or the handle is closed.
// Streams arriving while the manager is busy are rejected by handleAccepted,
// not here; the loop only sequences accepts.
func (a *acceptor) run() {
	for a.manager.State() != StateConnected {
		stream, peer, err := a.handle.Accept()
		if err != nil {
			return
		}
		a.manager.handleAccepted(stream, peer, a.variant)
	}
}

// cancel closes the listen handle, which unblocks a pending Accept. Safe to
// call more than once.
func (a *acceptor) cancel() {
	a.closeOnce.Do(func() {
		_ = a.handle.Close()
	})
}
