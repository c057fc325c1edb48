package session

import (
	"errors"
	"sync"

	"bluedrop/crypto"
)

// ConnectionState represents the lifecycle state of the session manager.
type ConnectionState string

const (
	// StateNone means no workers are running.
	StateNone ConnectionState = "NONE"
	// StateListening means acceptors are waiting for an inbound connection.
	StateListening ConnectionState = "LISTENING"
	// StateConnecting means an initiator is dialing a peer.
	StateConnecting ConnectionState = "CONNECTING"
	// StateConnected means exactly one session worker owns a stream.
	StateConnected ConnectionState = "CONNECTED"
)

// Role is the side of the session this peer plays, fixed for the session's
// lifetime by which worker produced the connected stream.
type Role string

const (
	// RoleResponder is the listening side (accepted the connection).
	RoleResponder Role = "responder"
	// RoleInitiator is the dialing side.
	RoleInitiator Role = "initiator"
)

const (
	toastConnectFailed  = "Unable to connect device"
	toastConnectionLost = "Device connection was lost"
	toastListenFailed   = "Unable to listen for connections"
)

// Config configures a session Manager.
type Config struct {
	// Transport supplies connection establishment. Required.
	Transport Transport

	// Variants lists the transport security flavors to listen on. Defaults
	// to secure plus insecure, one acceptor each.
	Variants []Variant

	// Group holds the Diffie-Hellman parameters. Defaults to the built-in
	// group.
	Group crypto.Group

	// SuspendDiscovery, when set, is invoked by the initiator before
	// dialing. Active discovery slows down connection establishment.
	SuspendDiscovery func()
}

// Manager is the top-level connection state machine. It owns the current
// ConnectionState and the acceptor/initiator/worker slots, and serializes
// every transition under one lock.
type Manager struct {
	transport        Transport
	variants         []Variant
	group            crypto.Group
	suspendDiscovery func()
	queue            *eventQueue

	mu        sync.Mutex
	state     ConnectionState
	acceptors map[Variant]*acceptor
	initiator *initiator
	worker    *sessionWorker
}

// NewManager creates a manager in state None. Call Start to begin listening.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}

	variants := cfg.Variants
	if len(variants) == 0 {
		variants = []Variant{VariantSecure, VariantInsecure}
	}

	group := cfg.Group
	if group.G == nil || group.P == nil {
		group = crypto.DefaultGroup()
	}

	return &Manager{
		transport:        cfg.Transport,
		variants:         append([]Variant(nil), variants...),
		group:            group,
		suspendDiscovery: cfg.SuspendDiscovery,
		queue:            newEventQueue(),
		state:            StateNone,
		acceptors:        make(map[Variant]*acceptor),
	}, nil
}

// Events returns the ordered observer event stream. Workers never block on
// a slow consumer.
func (m *Manager) Events() <-chan Event {
	return m.queue.events()
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start transitions to Listening and brings up one acceptor per configured
// variant. Acceptors already running are left alone; any initiator or
// session worker is cancelled.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLocked()
}

func (m *Manager) startLocked() {
	if m.initiator != nil {
		m.initiator.cancel()
		m.initiator = nil
	}
	if m.worker != nil {
		m.worker.cancel()
		m.worker = nil
	}

	m.setStateLocked(StateListening)

	for _, variant := range m.variants {
		if m.acceptors[variant] != nil {
			continue
		}
		a, err := newAcceptor(m, variant)
		if err != nil {
			m.queue.emit(Event{Kind: EventToast, Name: toastListenFailed})
			continue
		}
		m.acceptors[variant] = a
		go a.run()
	}
}

// Connect cancels any in-flight connection attempt and session, then starts
// an initiator for the given peer address.
func (m *Manager) Connect(address string, variant Variant) {
	m.mu.Lock()

	if m.state == StateConnecting && m.initiator != nil {
		m.initiator.cancel()
		m.initiator = nil
	}
	if m.worker != nil {
		m.worker.cancel()
		m.worker = nil
	}

	i := &initiator{manager: m, address: address, variant: variant}
	m.initiator = i
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go i.run()
}

// Stop cancels every worker and transitions to None. Safe to call twice.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initiator != nil {
		m.initiator.cancel()
		m.initiator = nil
	}
	if m.worker != nil {
		m.worker.cancel()
		m.worker = nil
	}
	for variant, a := range m.acceptors {
		a.cancel()
		delete(m.acceptors, variant)
	}

	m.setStateLocked(StateNone)
}

// Close stops the manager and shuts down event delivery.
func (m *Manager) Close() {
	m.Stop()
	m.queue.close()
}

// Write hands bytes to the active session worker. While not Connected the
// request is silently dropped. The worker reference is snapshotted under
// the lock and the write itself happens outside it, so a blocking write
// cannot stall state transitions.
func (m *Manager) Write(p []byte) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	w := m.worker
	m.mu.Unlock()

	if w != nil {
		w.write(p)
	}
}

// ListenAddr returns the bound listen address for a variant, or "" if its
// acceptor is not running.
func (m *Manager) ListenAddr(variant Variant) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.acceptors[variant]
	if a == nil {
		return ""
	}
	return a.handle.Addr()
}

// handleAccepted decides, under the lock, whether an inbound stream becomes
// the session or gets rejected.
func (m *Manager) handleAccepted(stream Stream, peer string, variant Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateListening, StateConnecting:
		m.connectedLocked(stream, peer, RoleResponder)
	default:
		// Not ready or already connected. Terminate the new stream without
		// disturbing the existing session.
		_ = stream.Close()
	}
}

// handleDialed installs a successfully dialed stream, unless the initiator
// was cancelled while the dial was in flight.
func (m *Manager) handleDialed(i *initiator, stream Stream, peer string) {
	m.mu.Lock()

	if i.isCancelled() || m.initiator != i {
		m.mu.Unlock()
		_ = stream.Close()
		return
	}
	m.initiator = nil
	m.connectedLocked(stream, peer, RoleInitiator)
	m.mu.Unlock()
}

// connectedLocked starts the single session worker. Every other worker is
// cancelled first: at most one session is ever active.
func (m *Manager) connectedLocked(stream Stream, peer string, role Role) {
	if m.initiator != nil {
		m.initiator.cancel()
		m.initiator = nil
	}
	if m.worker != nil {
		m.worker.cancel()
		m.worker = nil
	}
	for variant, a := range m.acceptors {
		a.cancel()
		delete(m.acceptors, variant)
	}

	w := newSessionWorker(m, stream, role, m.group)
	m.worker = w
	go w.run()

	m.queue.emit(Event{Kind: EventDeviceIdentified, Name: peer})
	m.setStateLocked(StateConnected)
}

func (m *Manager) setStateLocked(state ConnectionState) {
	m.state = state
	m.queue.emit(Event{Kind: EventStateChanged, State: state})
}

// connectionFailed reports a failed connection attempt and resumes
// listening. Failures are recovered, never fatal.
func (m *Manager) connectionFailed() {
	m.queue.emit(Event{Kind: EventToast, Name: toastConnectFailed})
	m.Start()
}

// connectionLost reports a dropped session and resumes listening.
func (m *Manager) connectionLost() {
	m.queue.emit(Event{Kind: EventToast, Name: toastConnectionLost})
	m.Start()
}

func (m *Manager) emitEvent(event Event) {
	m.queue.emit(event)
}

func (m *Manager) emitCryptoError(err error) {
	m.queue.emit(Event{Kind: EventCryptoError, Name: err.Error()})
}
