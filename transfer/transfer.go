// Package transfer moves files over an established session: outbound files
// are encrypted with the session key and framed, inbound frames are
// decrypted, written under the files directory, and recorded.
package transfer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"bluedrop/crypto"
	"bluedrop/session"
	"bluedrop/storage"
)

var (
	// ErrNoSharedKey indicates the session has not completed key agreement.
	ErrNoSharedKey = errors.New("transfer: no shared key for session")
	// ErrNoPendingName indicates a file body arrived without a preceding
	// file name.
	ErrNoPendingName = errors.New("transfer: file body arrived without a name")
)

const fallbackFilename = "received.bin"

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeFile encrypts body with the session key and frames it under name.
func EncodeFile(name string, body, key []byte) ([]byte, error) {
	ciphertext, err := crypto.Encrypt(body, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt %q: %w", name, err)
	}
	return session.EncodePayload([]byte(name), ciphertext), nil
}

// Received describes one inbound file written to disk.
type Received struct {
	Name     string
	Path     string
	Size     int64
	Checksum string
	Peer     string
}

// Service tracks the per-session transfer state (shared key, peer identity,
// pending file name) fed by the manager's event stream. A new session resets
// all of it.
type Service struct {
	manager  *session.Manager
	store    *storage.Store
	filesDir string

	mu          sync.Mutex
	key         []byte
	peer        string
	pendingName string
}

// NewService creates a transfer service writing inbound files to filesDir.
// store may be nil to skip transfer history.
func NewService(manager *session.Manager, store *storage.Store, filesDir string) *Service {
	return &Service{
		manager:  manager,
		store:    store,
		filesDir: filesDir,
	}
}

// HandleEvent consumes one session event and updates transfer state. When a
// complete file has been written to disk it returns a non-nil Received.
// Events the transfer layer does not care about are ignored.
func (s *Service) HandleEvent(event session.Event) (*Received, error) {
	switch event.Kind {
	case session.EventStateChanged:
		if event.State != session.StateConnected {
			return nil, nil
		}
		// A fresh session derives a fresh secret. The peer identity is kept:
		// DeviceIdentified arrives before the Connected transition.
		s.mu.Lock()
		s.key = nil
		s.pendingName = ""
		s.mu.Unlock()
		return nil, nil

	case session.EventDeviceIdentified:
		s.mu.Lock()
		s.peer = event.Name
		s.mu.Unlock()
		return nil, nil

	case session.EventKeyReceived:
		s.mu.Lock()
		s.key = append([]byte(nil), event.Data...)
		s.mu.Unlock()
		return nil, nil

	case session.EventFileNameReceived:
		s.mu.Lock()
		s.pendingName = sanitizeFilename(string(event.Data))
		s.mu.Unlock()
		return nil, nil

	case session.EventFileReceived:
		return s.receiveFile(event.Data)
	}

	return nil, nil
}

// SendFile encrypts the file at path and writes it to the connected peer.
func (s *Service) SendFile(path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	return s.SendBytes(filepath.Base(path), body)
}

// SendBytes encrypts body and writes it to the connected peer under name.
func (s *Service) SendBytes(name string, body []byte) error {
	key := s.sessionKey()
	if key == nil {
		return ErrNoSharedKey
	}

	frame, err := EncodeFile(name, body, key)
	if err != nil {
		return err
	}
	s.manager.Write(frame)

	if s.store != nil {
		_, err := s.store.RecordTransfer(storage.TransferRecord{
			Peer:      s.peerName(),
			Filename:  name,
			Size:      int64(len(body)),
			Checksum:  Checksum(body),
			Direction: storage.DirectionOutbound,
			Timestamp: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("record outbound transfer: %w", err)
		}
	}
	return nil
}

func (s *Service) receiveFile(ciphertext []byte) (*Received, error) {
	s.mu.Lock()
	key := s.key
	name := s.pendingName
	peer := s.peer
	s.pendingName = ""
	s.mu.Unlock()

	if key == nil {
		return nil, ErrNoSharedKey
	}
	if name == "" {
		return nil, ErrNoPendingName
	}

	body, err := crypto.Decrypt(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt %q: %w", name, err)
	}

	if err := os.MkdirAll(s.filesDir, 0o700); err != nil {
		return nil, fmt.Errorf("create files directory: %w", err)
	}
	path, err := uniquePath(s.filesDir, name)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return nil, fmt.Errorf("write %q: %w", path, err)
	}

	received := &Received{
		Name:     name,
		Path:     path,
		Size:     int64(len(body)),
		Checksum: Checksum(body),
		Peer:     peer,
	}

	if s.store != nil {
		_, err := s.store.RecordTransfer(storage.TransferRecord{
			Peer:       peer,
			Filename:   name,
			Size:       received.Size,
			Checksum:   received.Checksum,
			Direction:  storage.DirectionInbound,
			StoredPath: path,
			Timestamp:  time.Now(),
		})
		if err != nil {
			return received, fmt.Errorf("record inbound transfer: %w", err)
		}
	}
	return received, nil
}

func (s *Service) sessionKey() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil
	}
	return append([]byte(nil), s.key...)
}

func (s *Service) peerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// sanitizeFilename strips any path components a peer smuggles into the name
// segment so inbound files cannot escape the files directory.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return fallbackFilename
	}
	return name
}

// uniquePath returns dir/name, suffixing the stem with a counter when the
// name is already taken.
func uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe %q: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}
