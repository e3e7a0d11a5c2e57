package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"eduverse-client-go/internal/domain/mint/model"
)

func sampleRecord(id string, created time.Time) *model.Record {
	return &model.Record{
		ID:             id,
		Phase:          model.PhaseCreated,
		OffChainID:     "res-" + id,
		Title:          "Organic chemistry notes",
		Owner:          "0x00000000000000000000000000000000000000c1",
		ContentAddress: "bafy-" + id,
		Commitment:     "0x01",
		Timestamp:      uint64(created.Unix()),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// exerciseStore runs the lifecycle every driver must support.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	first := sampleRecord("a", base)
	second := sampleRecord("b", base.Add(time.Minute))
	for _, r := range []*model.Record{second, first} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error: %v", r.ID, err)
		}
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.OffChainID != "res-a" || got.Phase != model.PhaseCreated || got.Ledger != nil {
		t.Fatalf("unexpected record: %+v", got)
	}

	first.Phase = model.PhaseCommitted
	first.Ledger = &model.LedgerReference{TokenID: "7", TxHash: "0xabc"}
	first.FailedPhase = model.StepFinalize
	first.LastError = "backend unavailable"
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save update error: %v", err)
	}

	got, err = s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get after update error: %v", err)
	}
	if got.Phase != model.PhaseCommitted {
		t.Fatalf("expected committed phase, got %s", got.Phase)
	}
	if got.Ledger == nil || got.Ledger.TokenID != "7" || got.Ledger.TxHash != "0xabc" {
		t.Fatalf("ledger reference lost: %+v", got.Ledger)
	}
	if got.FailedPhase != model.StepFinalize || got.LastError != "backend unavailable" {
		t.Fatalf("failure details lost: %+v", got)
	}

	second.PendingTxHash = "0xfee"
	second.MintEventMissing = true
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save pending error: %v", err)
	}
	got, err = s.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get pending error: %v", err)
	}
	if got.PendingTxHash != "0xfee" || !got.MintEventMissing {
		t.Fatalf("pending marker lost: %+v", got)
	}
	second.PendingTxHash = ""
	second.MintEventMissing = false
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save cleared error: %v", err)
	}
	if got, err = s.Get(ctx, "b"); err != nil || got.MintEventMissing || got.PendingTxHash != "" {
		t.Fatalf("pending marker not cleared: %+v, %v", got, err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("unexpected list order: %+v", list)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSaveRequiresID(t *testing.T) {
	s := NewMemory(Config{})
	defer s.Close(context.Background())

	if err := s.Save(context.Background(), &model.Record{}); err == nil {
		t.Fatal("expected error for record without id")
	}
}
