package boards

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGormStoreElementsRoundTrip(t *testing.T) {
	store, err := NewGormStore(openTestDatabase(t), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if _, err := store.CreateBoard(ctx, Board{ID: "b1", Name: "Sketch", OwnerEmail: "alice@x.com", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	initial, err := store.LoadElements(ctx, "b1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(initial) != 0 {
		t.Fatalf("expected new board to have no elements, got %d", len(initial))
	}

	elements := mustElements(t, `[{"type":"RECTANGLE","id":"rect1"},{"type":"BRUSH","id":"s1","points":[[1,2],[3,4]]}]`)
	if err := store.SaveElements(ctx, "b1", elements, now.Add(time.Minute)); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.LoadElements(ctx, "b1")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	encoded, _ := EncodeElements(loaded)
	if encoded != `[{"type":"RECTANGLE","id":"rect1"},{"type":"BRUSH","id":"s1","points":[[1,2],[3,4]]}]` {
		t.Fatalf("unexpected stored elements: %s", encoded)
	}
}

func TestGormStoreMissingBoardIsNotFound(t *testing.T) {
	store, err := NewGormStore(openTestDatabase(t), nil)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()

	if _, err := store.LoadElements(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from LoadElements, got %v", err)
	}
	if _, err := store.GetBoard(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from GetBoard, got %v", err)
	}
	err = store.SaveElements(ctx, "missing", nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from SaveElements, got %v", err)
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Code() != "boards.save_elements.board_missing" {
		t.Fatalf("unexpected store error code: %v", err)
	}
}

func TestGormStoreCommentsAreOrderedByCreation(t *testing.T) {
	store, err := NewGormStore(openTestDatabase(t), nil)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	inserts := []Comment{
		{ID: "c2", BoardID: "b1", AuthorEmail: "bob@x.com", Content: "second", CreatedAt: base.Add(2 * time.Second)},
		{ID: "c1", BoardID: "b1", AuthorEmail: "alice@x.com", Content: "first", CreatedAt: base.Add(time.Second)},
		{ID: "c3", BoardID: "b1", AuthorEmail: "alice@x.com", Content: "third", CreatedAt: base.Add(3 * time.Second)},
		{ID: "other", BoardID: "b2", AuthorEmail: "alice@x.com", Content: "elsewhere", CreatedAt: base},
	}
	for _, comment := range inserts {
		if _, err := store.AppendComment(ctx, comment); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	comments, err := store.ListComments(ctx, "b1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(comments))
	}
	for index, expected := range []string{"first", "second", "third"} {
		if comments[index].Content != expected {
			t.Fatalf("comment %d: expected %q, got %q", index, expected, comments[index].Content)
		}
	}

	empty, err := store.ListComments(ctx, "b3")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", empty)
	}
}

func TestGormStoreSharesAreIdempotent(t *testing.T) {
	store, err := NewGormStore(openTestDatabase(t), nil)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	if _, err := store.CreateBoard(ctx, Board{ID: "b1", Name: "Sketch", OwnerEmail: "alice@x.com", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.AddShare(ctx, "b1", "bob@x.com", now); err != nil {
			t.Fatalf("share failed: %v", err)
		}
	}

	board, err := store.GetBoard(ctx, "b1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(board.SharedWith) != 1 || board.SharedWith[0] != "bob@x.com" {
		t.Fatalf("unexpected share list: %#v", board.SharedWith)
	}
	if !board.CanAccess("bob@x.com") || !board.CanAccess("alice@x.com") || board.CanAccess("eve@x.com") {
		t.Fatalf("unexpected access policy for %#v", board)
	}
}

func TestNewGormStoreRequiresDatabase(t *testing.T) {
	if _, err := NewGormStore(nil, nil); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestGormStoreListsOwnedAndSharedBoardsNewestFirst(t *testing.T) {
	store, err := NewGormStore(openTestDatabase(t), nil)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	fixtures := []Board{
		{ID: "own-old", Name: "Old", OwnerEmail: "alice@x.com", CreatedAt: base, UpdatedAt: base},
		{ID: "theirs", Name: "Bob's", OwnerEmail: "bob@x.com", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)},
		{ID: "own-new", Name: "New", OwnerEmail: "alice@x.com", CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(2 * time.Minute)},
		{ID: "private", Name: "Hidden", OwnerEmail: "bob@x.com", CreatedAt: base.Add(3 * time.Minute), UpdatedAt: base.Add(3 * time.Minute)},
	}
	for _, board := range fixtures {
		if _, err := store.CreateBoard(ctx, board); err != nil {
			t.Fatalf("create %s failed: %v", board.ID, err)
		}
	}
	if err := store.AddShare(ctx, "theirs", "alice@x.com", base); err != nil {
		t.Fatalf("share failed: %v", err)
	}

	listed, err := store.ListBoards(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected three boards, got %#v", listed)
	}
	for index, expected := range []string{"own-new", "theirs", "own-old"} {
		if listed[index].ID != expected {
			t.Fatalf("position %d: expected %s, got %s", index, expected, listed[index].ID)
		}
	}
	if len(listed[1].SharedWith) != 1 || listed[1].SharedWith[0] != "alice@x.com" {
		t.Fatalf("expected share list on shared board, got %#v", listed[1].SharedWith)
	}
	if listed[0].SharedWith == nil {
		t.Fatalf("expected empty share list, got nil")
	}

	none, err := store.ListBoards(ctx, "eve@x.com")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v (%v)", none, err)
	}
}

func TestGormStoreRenameUnshareAndDelete(t *testing.T) {
	store, err := NewGormStore(openTestDatabase(t), nil)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if _, err := store.CreateBoard(ctx, Board{ID: "b1", Name: "Sketch", OwnerEmail: "alice@x.com", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.AddShare(ctx, "b1", "bob@x.com", now); err != nil {
		t.Fatalf("share failed: %v", err)
	}
	if _, err := store.AppendComment(ctx, Comment{ID: "c1", BoardID: "b1", AuthorEmail: "bob@x.com", Content: "hi", CreatedAt: now}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if err := store.RenameBoard(ctx, "b1", "Renamed", now.Add(time.Minute)); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if err := store.RemoveShare(ctx, "b1", "bob@x.com", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("unshare failed: %v", err)
	}
	if err := store.RemoveShare(ctx, "b1", "bob@x.com", now.Add(3*time.Minute)); err != nil {
		t.Fatalf("repeated unshare failed: %v", err)
	}
	board, err := store.GetBoard(ctx, "b1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if board.Name != "Renamed" || len(board.SharedWith) != 0 || board.CanAccess("bob@x.com") {
		t.Fatalf("unexpected board after rename and unshare: %#v", board)
	}

	if err := store.DeleteBoard(ctx, "b1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.GetBoard(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted board to be missing, got %v", err)
	}
	comments, err := store.ListComments(ctx, "b1")
	if err != nil || len(comments) != 0 {
		t.Fatalf("expected comments removed with the board, got %#v (%v)", comments, err)
	}

	for name, err := range map[string]error{
		"rename":  store.RenameBoard(ctx, "b1", "Again", now),
		"unshare": store.RemoveShare(ctx, "b1", "bob@x.com", now),
		"delete":  store.DeleteBoard(ctx, "b1"),
	} {
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s on missing board: expected ErrNotFound, got %v", name, err)
		}
	}
}
