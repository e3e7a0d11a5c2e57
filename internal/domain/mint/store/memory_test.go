package store

import (
	"context"
	"testing"
	"time"

	"eduverse-client-go/internal/domain/mint/model"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemory(Config{})
	defer s.Close(context.Background())

	exerciseStore(t, s)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Config{})
	defer s.Close(ctx)

	r := sampleRecord("copy", time.Now())
	r.Ledger = &model.LedgerReference{TokenID: "1", TxHash: "0x1"}
	if err := s.Save(ctx, r); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	r.Ledger.TokenID = "mutated"

	got, err := s.Get(ctx, "copy")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Ledger.TokenID != "1" {
		t.Fatalf("store shares memory with caller: %+v", got.Ledger)
	}
}

func TestMemoryStoreExpiresOnlyFinalized(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(Config{TTL: time.Minute})
	defer s.Close(ctx)

	old := time.Now().Add(-time.Hour)
	done := sampleRecord("done", old)
	done.Phase = model.PhaseFinalized
	pending := sampleRecord("pending", old)
	pending.Phase = model.PhaseCommitted

	for _, r := range []*model.Record{done, pending} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	if _, err := s.Get(ctx, "done"); err == nil {
		t.Fatal("expected finalized record past ttl to be gone")
	}
	if _, err := s.Get(ctx, "pending"); err != nil {
		t.Fatalf("unfinished record must not expire: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "pending" {
		t.Fatalf("unexpected list: %+v", list)
	}
}
