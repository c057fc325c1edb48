package session

import (
	"bytes"
	"net"
	"testing"
	"time"
)

const eventWait = 10 * time.Second

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	transport := NewTCPTransport(map[Variant]string{
		VariantSecure: "127.0.0.1:0",
	}, time.Second)

	m, err := NewManager(Config{
		Transport: transport,
		Variants:  []Variant{VariantSecure},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.After(eventWait)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func waitForState(t *testing.T, events <-chan Event, state ConnectionState) {
	t.Helper()

	deadline := time.After(eventWait)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed while waiting for state %s", state)
			}
			if ev.Kind == EventStateChanged && ev.State == state {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", state)
		}
	}
}

// newConnectedPair brings up a listener and a dialer and waits until both
// report Connected. Returns listener, dialer, and their event streams.
func newConnectedPair(t *testing.T) (*Manager, *Manager, <-chan Event, <-chan Event) {
	t.Helper()

	listener := newTestManager(t)
	dialer := newTestManager(t)
	listenerEvents := listener.Events()
	dialerEvents := dialer.Events()

	listener.Start()
	addr := listener.ListenAddr(VariantSecure)
	if addr == "" {
		t.Fatalf("listener has no bound address after Start")
	}

	dialer.Connect(addr, VariantSecure)
	waitForState(t, listenerEvents, StateConnected)
	waitForState(t, dialerEvents, StateConnected)

	return listener, dialer, listenerEvents, dialerEvents
}

func TestStartTransitionsToListening(t *testing.T) {
	m := newTestManager(t)
	events := m.Events()

	m.Start()
	waitForState(t, events, StateListening)

	if got := m.State(); got != StateListening {
		t.Fatalf("State() = %s, want %s", got, StateListening)
	}
	if m.ListenAddr(VariantSecure) == "" {
		t.Fatalf("expected a bound listen address while Listening")
	}
}

func TestHandshakeDerivesMatchingSecrets(t *testing.T) {
	_, _, listenerEvents, dialerEvents := newConnectedPair(t)

	listenerKey := waitForEvent(t, listenerEvents, EventKeyReceived)
	dialerKey := waitForEvent(t, dialerEvents, EventKeyReceived)

	if len(listenerKey.Data) != 24 {
		t.Fatalf("shared secret is %d bytes, want 24", len(listenerKey.Data))
	}
	if !bytes.Equal(listenerKey.Data, dialerKey.Data) {
		t.Fatalf("peers derived different secrets:\n  listener %x\n  dialer   %x",
			listenerKey.Data, dialerKey.Data)
	}
}

func TestPayloadDeliveredNameBeforeBody(t *testing.T) {
	_, dialer, listenerEvents, dialerEvents := newConnectedPair(t)

	// Wait for key agreement so the receiver is past the handshake states.
	waitForEvent(t, listenerEvents, EventKeyReceived)
	waitForEvent(t, dialerEvents, EventKeyReceived)

	dialer.Write(EncodePayload([]byte("report.txt"), []byte{0x01, 0x02, 0x03}))

	nameEvent := waitForEvent(t, listenerEvents, EventFileNameReceived)
	if string(nameEvent.Data) != "report.txt" {
		t.Fatalf("file name = %q, want %q", nameEvent.Data, "report.txt")
	}
	fileEvent := waitForEvent(t, listenerEvents, EventFileReceived)
	if !bytes.Equal(fileEvent.Data, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("file body = %x, want 010203", fileEvent.Data)
	}
}

func TestDeviceIdentifiedReportsPeer(t *testing.T) {
	listener := newTestManager(t)
	dialer := newTestManager(t)
	listenerEvents := listener.Events()
	dialerEvents := dialer.Events()

	listener.Start()
	addr := listener.ListenAddr(VariantSecure)
	dialer.Connect(addr, VariantSecure)

	fromListener := waitForEvent(t, listenerEvents, EventDeviceIdentified)
	if fromListener.Name == "" {
		t.Fatalf("listener saw an empty peer identity")
	}
	fromDialer := waitForEvent(t, dialerEvents, EventDeviceIdentified)
	if fromDialer.Name != addr {
		t.Fatalf("dialer peer identity = %q, want %q", fromDialer.Name, addr)
	}
}

func TestInboundStreamRejectedWhileConnected(t *testing.T) {
	listener, _, _, _ := newConnectedPair(t)

	client, server := net.Pipe()
	defer client.Close()

	listener.handleAccepted(server, "late-arrival", VariantSecure)

	if got := listener.State(); got != StateConnected {
		t.Fatalf("State() = %s after rejected stream, want %s", got, StateConnected)
	}

	// The rejected stream must have been closed by the manager.
	client.SetReadDeadline(time.Now().Add(eventWait))
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected read on rejected stream to fail")
	}
}

func TestInboundStreamRejectedWhileNone(t *testing.T) {
	m := newTestManager(t)

	client, server := net.Pipe()
	defer client.Close()

	m.handleAccepted(server, "early-arrival", VariantSecure)

	if got := m.State(); got != StateNone {
		t.Fatalf("State() = %s after rejected stream, want %s", got, StateNone)
	}
	client.SetReadDeadline(time.Now().Add(eventWait))
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected read on rejected stream to fail")
	}
}

func TestConnectionLossRecoversToListening(t *testing.T) {
	listener, dialer, listenerEvents, _ := newConnectedPair(t)

	// Tearing down the dialer kills the shared stream.
	dialer.Stop()

	toast := waitForEvent(t, listenerEvents, EventToast)
	if toast.Name != toastConnectionLost {
		t.Fatalf("toast = %q, want %q", toast.Name, toastConnectionLost)
	}
	waitForState(t, listenerEvents, StateListening)

	if listener.ListenAddr(VariantSecure) == "" {
		t.Fatalf("expected listener to accept connections again after loss")
	}
}

func TestConnectFailureEmitsToastAndRelistens(t *testing.T) {
	transport := NewTCPTransport(map[Variant]string{
		VariantSecure: "127.0.0.1:0",
	}, 500*time.Millisecond)
	m, err := NewManager(Config{
		Transport: transport,
		Variants:  []Variant{VariantSecure},
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Close)
	events := m.Events()

	// Grab a port with no listener behind it.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen failed: %v", err)
	}
	deadAddr := probe.Addr().String()
	probe.Close()

	m.Connect(deadAddr, VariantSecure)
	waitForState(t, events, StateConnecting)

	toast := waitForEvent(t, events, EventToast)
	if toast.Name != toastConnectFailed {
		t.Fatalf("toast = %q, want %q", toast.Name, toastConnectFailed)
	}
	waitForState(t, events, StateListening)
}

func TestStopIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	m.Start()
	m.Stop()
	m.Stop()

	if got := m.State(); got != StateNone {
		t.Fatalf("State() = %s after Stop, want %s", got, StateNone)
	}
	// Writes while not connected are dropped, not an error.
	m.Write([]byte("ignored"))
}

func TestStateChangesStayWithinKnownValues(t *testing.T) {
	m := newTestManager(t)
	events := m.Events()

	m.Start()
	m.Connect("127.0.0.1:1", VariantSecure)
	m.Stop()
	m.Close()

	known := map[ConnectionState]bool{
		StateNone:       true,
		StateListening:  true,
		StateConnecting: true,
		StateConnected:  true,
	}
	for ev := range events {
		if ev.Kind == EventStateChanged && !known[ev.State] {
			t.Fatalf("unknown connection state %q", ev.State)
		}
	}
}

func TestConnectedManagerHoldsSingleWorker(t *testing.T) {
	listener, dialer, _, _ := newConnectedPair(t)

	for _, m := range []*Manager{listener, dialer} {
		m.mu.Lock()
		workers := len(m.acceptors)
		hasInitiator := m.initiator != nil
		hasWorker := m.worker != nil
		m.mu.Unlock()

		if workers != 0 || hasInitiator || !hasWorker {
			t.Fatalf("connected manager holds acceptors=%d initiator=%v worker=%v, want 0/false/true",
				workers, hasInitiator, hasWorker)
		}
	}
}
