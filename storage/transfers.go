package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// Direction tells which way a transfer moved relative to this device.
type Direction string

const (
	// DirectionInbound is a file received from a peer.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound is a file sent to a peer.
	DirectionOutbound Direction = "outbound"
)

// TransferRecord is one completed file transfer.
type TransferRecord struct {
	ID         int64
	Peer       string
	Filename   string
	Size       int64
	Checksum   string
	Direction  Direction
	StoredPath string
	Timestamp  time.Time
}

// PeerRecord is one remembered peer endpoint.
type PeerRecord struct {
	Address    string
	DeviceName string
	LastSeen   time.Time
}

// RecordTransfer inserts a completed transfer and returns its row ID.
func (s *Store) RecordTransfer(record TransferRecord) (int64, error) {
	if strings.TrimSpace(record.Filename) == "" {
		return 0, errors.New("storage: transfer filename is required")
	}
	if record.Direction != DirectionInbound && record.Direction != DirectionOutbound {
		return 0, fmt.Errorf("storage: invalid transfer direction %q", record.Direction)
	}

	timestamp := record.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := s.db.Exec(`
INSERT INTO transfers (peer, filename, size, checksum, direction, stored_path, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, record.Peer, record.Filename, record.Size, record.Checksum, string(record.Direction), record.StoredPath, timestamp.Unix())
	if err != nil {
		return 0, fmt.Errorf("insert transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read transfer id: %w", err)
	}
	return id, nil
}

// GetTransfer loads one transfer by row ID.
func (s *Store) GetTransfer(id int64) (TransferRecord, error) {
	row := s.db.QueryRow(`
SELECT id, peer, filename, size, checksum, direction, stored_path, timestamp
FROM transfers WHERE id = ?;
`, id)

	record, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TransferRecord{}, ErrNotFound
	}
	if err != nil {
		return TransferRecord{}, fmt.Errorf("load transfer %d: %w", id, err)
	}
	return record, nil
}

// ListTransfers returns transfers newest first, optionally filtered by peer.
// A limit <= 0 means no limit.
func (s *Store) ListTransfers(peer string, limit int) ([]TransferRecord, error) {
	query := `
SELECT id, peer, filename, size, checksum, direction, stored_path, timestamp
FROM transfers
`
	args := []any{}
	if peer != "" {
		query += "WHERE peer = ?\n"
		args = append(args, peer)
	}
	query += "ORDER BY timestamp DESC, id DESC\n"
	if limit > 0 {
		query += "LIMIT ?\n"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []TransferRecord
	for rows.Next() {
		record, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}

// UpsertPeer remembers a peer endpoint, updating its name and last-seen time
// on conflict.
func (s *Store) UpsertPeer(address, deviceName string, seen time.Time) error {
	if strings.TrimSpace(address) == "" {
		return errors.New("storage: peer address is required")
	}
	if seen.IsZero() {
		seen = time.Now()
	}

	_, err := s.db.Exec(`
INSERT INTO peers (address, device_name, last_seen_timestamp)
VALUES (?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
  device_name = excluded.device_name,
  last_seen_timestamp = excluded.last_seen_timestamp;
`, address, deviceName, seen.Unix())
	if err != nil {
		return fmt.Errorf("upsert peer %q: %w", address, err)
	}
	return nil
}

// ListPeers returns remembered peers, most recently seen first.
func (s *Store) ListPeers() ([]PeerRecord, error) {
	rows, err := s.db.Query(`
SELECT address, device_name, last_seen_timestamp
FROM peers
ORDER BY last_seen_timestamp DESC, address;
`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var out []PeerRecord
	for rows.Next() {
		var record PeerRecord
		var lastSeen int64
		if err := rows.Scan(&record.Address, &record.DeviceName, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		record.LastSeen = time.Unix(lastSeen, 0)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peers: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (TransferRecord, error) {
	var record TransferRecord
	var direction string
	var timestamp int64

	err := row.Scan(&record.ID, &record.Peer, &record.Filename, &record.Size,
		&record.Checksum, &direction, &record.StoredPath, &timestamp)
	if err != nil {
		return TransferRecord{}, err
	}

	record.Direction = Direction(direction)
	record.Timestamp = time.Unix(timestamp, 0)
	return record, nil
}
