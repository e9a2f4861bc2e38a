package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Meet1306/Whiteboard/internal/boards"
)

func TestCommentLedgerAssignsIdentityAndTimestamp(t *testing.T) {
	store := newFakeBoardStore()
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger, err := NewCommentLedger(LedgerConfig{
		Store:      store,
		IDProvider: &sequenceIDs{},
		Clock:      func() time.Time { return createdAt },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := ledger.Append(context.Background(), "b1", "alice@x.com", "hello")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if stored.ID != "comment-1" || !stored.CreatedAt.Equal(createdAt) || stored.AuthorEmail != "alice@x.com" || stored.BoardID != "b1" {
		t.Fatalf("unexpected stored comment %+v", stored)
	}
	if len(store.comments["b1"]) != 1 {
		t.Fatalf("expected one durable comment")
	}
}

func TestCommentLedgerPropagatesStorageFailure(t *testing.T) {
	store := newFakeBoardStore()
	store.appendErr = boards.ErrPersistence
	ledger, err := NewCommentLedger(LedgerConfig{Store: store, IDProvider: &sequenceIDs{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ledger.Append(context.Background(), "b1", "alice@x.com", "hello"); !errors.Is(err, boards.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestNewCommentLedgerValidatesDependencies(t *testing.T) {
	if _, err := NewCommentLedger(LedgerConfig{IDProvider: &sequenceIDs{}}); !errors.Is(err, errMissingCommentStore) {
		t.Fatalf("expected missing store error, got %v", err)
	}
	if _, err := NewCommentLedger(LedgerConfig{Store: newFakeBoardStore()}); !errors.Is(err, errMissingIDProvider) {
		t.Fatalf("expected missing id provider error, got %v", err)
	}
}
