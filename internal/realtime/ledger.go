package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Meet1306/Whiteboard/internal/boards"
)

var (
	errMissingCommentStore = errors.New("comment store is required")
	errMissingIDProvider   = errors.New("id provider is required")
)

// CommentAppender is the durable side of the comment ledger.
type CommentAppender interface {
	AppendComment(ctx context.Context, comment boards.Comment) (boards.Comment, error)
}

type LedgerConfig struct {
	Store      CommentAppender
	IDProvider boards.IDProvider
	Clock      func() time.Time
}

// CommentLedger assigns comment identity and creation time and appends the
// record to durable storage.
type CommentLedger struct {
	store      CommentAppender
	idProvider boards.IDProvider
	clock      func() time.Time
}

func NewCommentLedger(cfg LedgerConfig) (*CommentLedger, error) {
	if cfg.Store == nil {
		return nil, errMissingCommentStore
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CommentLedger{store: cfg.Store, idProvider: cfg.IDProvider, clock: clock}, nil
}

// Append persists a new comment and returns the stored record. It returns only
// on a successful durable write.
func (l *CommentLedger) Append(ctx context.Context, boardID string, authorEmail string, content string) (boards.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return boards.Comment{}, fmt.Errorf("%w: empty content", boards.ErrInvalidComment)
	}
	commentID, err := l.idProvider.NewID()
	if err != nil {
		return boards.Comment{}, fmt.Errorf("%w: comment id: %v", boards.ErrPersistence, err)
	}
	return l.store.AppendComment(ctx, boards.Comment{
		ID:          commentID,
		BoardID:     boardID,
		AuthorEmail: authorEmail,
		Content:     content,
		CreatedAt:   l.clock().UTC(),
	})
}
