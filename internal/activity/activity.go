package activity

import "time"

// Type names a board activity record.
type Type string

const (
	TypeElementsUpdated Type = "board.elements_updated"
	TypeCommentAdded    Type = "board.comment_added"
)

// BoardActivity is one record on the activity stream.
type BoardActivity struct {
	Type         Type      `json:"type"`
	BoardID      string    `json:"boardId"`
	Actor        string    `json:"actor,omitempty"`
	ElementCount int       `json:"elementCount,omitempty"`
	CommentID    string    `json:"commentId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}
