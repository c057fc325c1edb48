package session

import (
	"bytes"
	"log"
	"sync"
	"sync/atomic"

	"bluedrop/crypto"
)

// keyExchangeState tracks the key agreement progress of one session worker.
// Each session derives a fresh shared secret; nothing survives the worker.
type keyExchangeState int

const (
	keyStateNotStarted keyExchangeState = iota
	keyStateLocalKeyGenerated
	keyStatePeerKeyReceived
	keyStateSecretDerived
)

const readChunkSize = 4096

// sessionWorker owns the connected stream. It runs the key agreement for its
// role, then extracts payload frames from the byte stream and reports them
// as events.
type sessionWorker struct {
	manager *Manager
	stream  Stream
	role    Role
	group   crypto.Group

	keyState keyExchangeState
	keyPair  crypto.KeyPair
	secret   []byte

	pending bytes.Buffer

	cancelled atomic.Bool
	closeOnce sync.Once
}

func newSessionWorker(m *Manager, stream Stream, role Role, group crypto.Group) *sessionWorker {
	return &sessionWorker{
		manager: m,
		stream:  stream,
		role:    role,
		group:   group,
	}
}

// run drives the session. The initiator speaks first with a framed public
// value; both sides then block on reads until the stream dies. A read error
// after cancel is a clean shutdown; otherwise the connection was lost.
func (w *sessionWorker) run() {
	defer w.discardSecret()

	if w.role == RoleInitiator {
		if err := w.sendKeyMaterial(); err != nil {
			if !w.cancelled.Load() {
				w.manager.connectionLost()
			}
			return
		}
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := w.stream.Read(buf)
		if n > 0 {
			w.pending.Write(buf[:n])
			w.dispatch()
		}
		if err != nil {
			if w.cancelled.Load() {
				return
			}
			w.manager.connectionLost()
			return
		}
	}
}

func (w *sessionWorker) sendKeyMaterial() error {
	pair, err := crypto.GenerateKeyPair(w.group)
	if err != nil {
		w.manager.emitCryptoError(err)
		return err
	}
	w.keyPair = pair

	if _, err := w.stream.Write(EncodeKeyMaterial(pair.PublicBytes())); err != nil {
		return err
	}
	w.keyState = keyStateLocalKeyGenerated
	return nil
}

// dispatch consumes whatever complete messages the pending buffer holds.
// Only the read loop calls it, so no locking is needed.
func (w *sessionWorker) dispatch() {
	switch {
	case w.role == RoleResponder && w.keyState < keyStateSecretDerived:
		w.handleResponderKeyFrame()
	case w.role == RoleInitiator && w.keyState == keyStateLocalKeyGenerated:
		w.handleInitiatorKeyReply()
	}

	if w.keyState != keyStateSecretDerived {
		return
	}

	name, body, ok := DecodePayload(w.pending.Bytes())
	if !ok {
		return
	}
	w.pending.Reset()

	w.manager.emitEvent(Event{Kind: EventFileNameReceived, Data: name})
	w.manager.emitEvent(Event{Kind: EventFileReceived, Data: body})
}

func (w *sessionWorker) handleResponderKeyFrame() {
	peerPublic, ok := DecodeKeyMaterial(w.pending.Bytes())
	if !ok {
		return
	}
	w.keyState = keyStatePeerKeyReceived
	w.pending.Reset()

	pair, err := crypto.GenerateKeyPair(w.group)
	if err != nil {
		w.manager.emitCryptoError(err)
		return
	}
	w.keyPair = pair

	secret, err := crypto.DeriveSharedSecret(peerPublic, pair.Private, w.group)
	if err != nil {
		w.manager.emitCryptoError(err)
		return
	}
	w.secret = secret

	// The reply is raw, unframed bytes: the initiator treats whatever it
	// reads next as the responder's public value. Legacy wire contract,
	// kept as-is even though it assumes the value arrives in one piece.
	if _, err := w.stream.Write(pair.PublicBytes()); err != nil {
		return
	}

	w.keyState = keyStateSecretDerived
	w.manager.emitEvent(Event{Kind: EventKeyReceived, Data: append([]byte(nil), secret...)})
}

func (w *sessionWorker) handleInitiatorKeyReply() {
	if w.pending.Len() == 0 {
		return
	}
	peerPublic := append([]byte(nil), w.pending.Bytes()...)
	w.pending.Reset()
	w.keyState = keyStatePeerKeyReceived

	secret, err := crypto.DeriveSharedSecret(peerPublic, w.keyPair.Private, w.group)
	if err != nil {
		w.manager.emitCryptoError(err)
		return
	}
	w.secret = secret

	w.keyState = keyStateSecretDerived
	w.manager.emitEvent(Event{Kind: EventKeyReceived, Data: append([]byte(nil), secret...)})
}

// write pushes bytes onto the stream. Best effort: a failure is logged and
// the read loop reports the dead stream.
func (w *sessionWorker) write(p []byte) {
	if _, err := w.stream.Write(p); err != nil && !w.cancelled.Load() {
		log.Printf("session: write failed: %v", err)
	}
}

// cancel marks the worker as shut down and closes the stream, which unblocks
// the read loop. Safe to call more than once.
func (w *sessionWorker) cancel() {
	w.closeOnce.Do(func() {
		w.cancelled.Store(true)
		_ = w.stream.Close()
	})
}

func (w *sessionWorker) discardSecret() {
	for i := range w.secret {
		w.secret[i] = 0
	}
	w.secret = nil
}
