package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestRecordSnapshotAndLatest(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	observed := time.Unix(1_700_000_000, 0).UTC()
	if err := store.RecordSample(ctx, "Bond-USD", "fixed", 1_000_000, observed, observed.Add(time.Second)); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	if _, err := store.LatestSnapshot(ctx, "bond-usd"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
	first := Snapshot{Feed: "bond-usd", Mantissa: 999_000, Sources: []string{"fixed"}, ProofID: "p1", ObservedAt: observed}
	second := Snapshot{Feed: "BOND-USD", Mantissa: 1_001_000, Sources: []string{"fixed", "http"}, ProofID: "p2", ObservedAt: observed.Add(time.Minute)}
	for _, snap := range []Snapshot{first, second} {
		if err := store.RecordSnapshot(ctx, snap); err != nil {
			t.Fatalf("record snapshot: %v", err)
		}
	}
	snap, err := store.LatestSnapshot(ctx, " bond-usd ")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap.Mantissa != 1_001_000 || snap.ProofID != "p2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.ObservedAt.Equal(observed.Add(time.Minute)) {
		t.Fatalf("unexpected observed time %s", snap.ObservedAt)
	}
	if len(snap.Sources) != 2 || snap.Sources[1] != "http" {
		t.Fatalf("unexpected sources: %+v", snap.Sources)
	}
}

func TestKYCRegistry(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	account := common.HexToAddress("0x0000000000000000000000000000000000000101")
	now := time.Unix(1_700_000_000, 0)

	ok, err := store.Verified(ctx, account)
	if err != nil {
		t.Fatalf("verified: %v", err)
	}
	if ok {
		t.Fatalf("unknown account must not be verified")
	}
	if err := store.SetKYC(ctx, account, true, "case-1", now); err != nil {
		t.Fatalf("set kyc: %v", err)
	}
	if ok, _ := store.Verified(ctx, account); !ok {
		t.Fatalf("expected account to be verified")
	}
	if err := store.SetKYC(ctx, account, false, "revoked", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke kyc: %v", err)
	}
	if ok, _ := store.Verified(ctx, account); ok {
		t.Fatalf("expected revocation to stick")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
	if _, err := FileDSN(""); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

func TestFileDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stabled.sqlite")
	dsn, err := FileDSN(path)
	if err != nil {
		t.Fatalf("file dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:/") || !strings.Contains(dsn, "_journal_mode=WAL") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer store.Close()
	if err := store.SetKYC(context.Background(), common.Address{1}, true, "", time.Now()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	store, err := Open(MemoryDSN("stabled_" + t.Name()))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
