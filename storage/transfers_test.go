package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestOpenCreatesDatabaseUnderDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")

	store, dbPath, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if filepath.Dir(dbPath) != dataDir {
		t.Fatalf("database created at %q, want under %q", dbPath, dataDir)
	}
}

func TestRecordAndGetTransfer(t *testing.T) {
	store := newTestStore(t)

	id, err := store.RecordTransfer(TransferRecord{
		Peer:       "10.0.0.2:9777",
		Filename:   "report.txt",
		Size:       3,
		Checksum:   "abc123",
		Direction:  DirectionInbound,
		StoredPath: "/data/files/report.txt",
	})
	if err != nil {
		t.Fatalf("RecordTransfer failed: %v", err)
	}

	got, err := store.GetTransfer(id)
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if got.Filename != "report.txt" || got.Size != 3 || got.Direction != DirectionInbound {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatalf("expected a default timestamp")
	}
}

func TestGetTransferNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTransfer(12345)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordTransferValidation(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.RecordTransfer(TransferRecord{Direction: DirectionInbound}); err == nil {
		t.Fatalf("expected error for missing filename")
	}
	if _, err := store.RecordTransfer(TransferRecord{Filename: "a", Direction: "sideways"}); err == nil {
		t.Fatalf("expected error for invalid direction")
	}
}

func TestListTransfersFiltersAndOrders(t *testing.T) {
	store := newTestStore(t)

	base := time.Unix(1_700_000_000, 0)
	for i, peer := range []string{"peer-a", "peer-b", "peer-a"} {
		_, err := store.RecordTransfer(TransferRecord{
			Peer:      peer,
			Filename:  "file",
			Direction: DirectionOutbound,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordTransfer failed: %v", err)
		}
	}

	all, err := store.ListTransfers("", 0)
	if err != nil {
		t.Fatalf("ListTransfers failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d transfers, want 3", len(all))
	}
	if !all[0].Timestamp.After(all[2].Timestamp) {
		t.Fatalf("expected newest-first ordering")
	}

	filtered, err := store.ListTransfers("peer-a", 0)
	if err != nil {
		t.Fatalf("ListTransfers filtered failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("listed %d transfers for peer-a, want 2", len(filtered))
	}

	limited, err := store.ListTransfers("", 1)
	if err != nil {
		t.Fatalf("ListTransfers limited failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("listed %d transfers with limit 1, want 1", len(limited))
	}
}

func TestUpsertPeerUpdatesExisting(t *testing.T) {
	store := newTestStore(t)

	first := time.Unix(1_700_000_000, 0)
	if err := store.UpsertPeer("10.0.0.2:9777", "Bob", first); err != nil {
		t.Fatalf("UpsertPeer failed: %v", err)
	}
	if err := store.UpsertPeer("10.0.0.2:9777", "Bob Laptop", first.Add(time.Hour)); err != nil {
		t.Fatalf("UpsertPeer update failed: %v", err)
	}

	peers, err := store.ListPeers()
	if err != nil {
		t.Fatalf("ListPeers failed: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("listed %d peers, want 1", len(peers))
	}
	if peers[0].DeviceName != "Bob Laptop" {
		t.Fatalf("device name = %q, want %q", peers[0].DeviceName, "Bob Laptop")
	}
	if !peers[0].LastSeen.After(first) {
		t.Fatalf("expected last-seen to advance on upsert")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := OpenPath(dbPath)
	if err != nil {
		t.Fatalf("first OpenPath failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenPath(dbPath)
	if err != nil {
		t.Fatalf("second OpenPath failed: %v", err)
	}
	defer reopened.Close()
}
