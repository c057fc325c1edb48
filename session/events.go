package session

import "sync"

// EventKind identifies an observer notification.
type EventKind string

const (
	// EventStateChanged reports a ConnectionState transition.
	EventStateChanged EventKind = "state_changed"
	// EventDeviceIdentified reports the identity of the connected peer.
	EventDeviceIdentified EventKind = "device_identified"
	// EventKeyReceived reports the derived shared secret for the session.
	EventKeyReceived EventKind = "key_received"
	// EventFileNameReceived carries the name segment of a payload frame.
	EventFileNameReceived EventKind = "file_name_received"
	// EventFileReceived carries the body segment of a payload frame.
	EventFileReceived EventKind = "file_received"
	// EventToast carries a user-facing failure notice.
	EventToast EventKind = "toast"
	// EventCryptoError reports a key-agreement failure that the legacy
	// behavior would have swallowed silently.
	EventCryptoError EventKind = "crypto_error"
)

// Event is one observer notification. Exactly one of State, Name, or Data
// is meaningful depending on Kind.
type Event struct {
	Kind  EventKind
	State ConnectionState
	Name  string
	Data  []byte
}

// eventQueue decouples workers from the observer: emits never block, and
// delivery preserves emission order. The queue is unbounded; backpressure
// is the observer's problem, not the session's.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	wake    chan struct{}
	done    chan struct{}
	out     chan Event

	closeOnce sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan Event),
	}
	go q.drain()
	return q
}

// emit enqueues an event without ever blocking the caller.
func (q *eventQueue) emit(event Event) {
	q.mu.Lock()
	q.pending = append(q.pending, event)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// events is the ordered delivery channel consumed by the observer.
func (q *eventQueue) events() <-chan Event {
	return q.out
}

// close stops delivery; queued events that were not yet consumed are lost.
func (q *eventQueue) close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func (q *eventQueue) drain() {
	defer close(q.out)

	for {
		select {
		case <-q.wake:
		case <-q.done:
			return
		}

		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			next := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()

			select {
			case q.out <- next:
			case <-q.done:
				return
			}
		}
	}
}
