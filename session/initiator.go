package session

import "sync"

// initiator dials one peer address. The dial itself blocks inside the
// transport, so cancellation is a flag plus closing the stream once it
// exists: a dial that completes after cancel finds the flag set and the
// stream is discarded.
type initiator struct {
	manager *Manager
	address string
	variant Variant

	mu        sync.Mutex
	stream    Stream
	cancelled bool
}

func (i *initiator) run() {
	// Active discovery competes with connection establishment for the link.
	if suspend := i.manager.suspendDiscovery; suspend != nil {
		suspend()
	}

	stream, peer, err := i.manager.transport.Connect(i.address, i.variant)
	if err != nil {
		if i.isCancelled() {
			return
		}
		i.manager.connectionFailed()
		return
	}

	if !i.adopt(stream) {
		_ = stream.Close()
		return
	}
	i.manager.handleDialed(i, stream, peer)
}

// adopt records the dialed stream so cancel can close it. Returns false if
// the initiator was cancelled while the dial was in flight.
func (i *initiator) adopt(stream Stream) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cancelled {
		return false
	}
	i.stream = stream
	return true
}

func (i *initiator) isCancelled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cancelled
}

func (i *initiator) cancel() {
	i.mu.Lock()
	i.cancelled = true
	stream := i.stream
	i.stream = nil
	i.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
}
