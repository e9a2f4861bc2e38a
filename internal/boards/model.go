package boards

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	maxEmailLength      = 320
	maxNameLength       = 190
)

var (
	// ErrInvalidBoardID indicates that a board identifier is empty or exceeds storage bounds.
	ErrInvalidBoardID = errors.New("boards: invalid board id")
	// ErrInvalidEmail indicates that an email address is empty or exceeds storage bounds.
	ErrInvalidEmail = errors.New("boards: invalid email")
	// ErrInvalidName indicates that a board name is empty or exceeds storage bounds.
	ErrInvalidName = errors.New("boards: invalid board name")
	// ErrInvalidComment indicates that comment content is empty.
	ErrInvalidComment = errors.New("boards: invalid comment")
)

// BoardID represents a validated board identifier.
type BoardID string

// NewBoardID validates raw input and returns a BoardID.
func NewBoardID(rawInput string) (BoardID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBoardID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBoardID, maxIdentifierLength)
	}
	return BoardID(trimmed), nil
}

// String returns the underlying string identifier.
func (id BoardID) String() string {
	return string(id)
}

// NormalizeEmail lower-cases and validates an email address.
func NormalizeEmail(rawInput string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" || !strings.Contains(trimmed, "@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, rawInput)
	}
	if len(trimmed) > maxEmailLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEmail, maxEmailLength)
	}
	return trimmed, nil
}

// Board is the persisted board document. Elements are stored as an opaque JSON list.
type Board struct {
	ID           string    `gorm:"column:board_id;primaryKey;size:190;not null" bson:"_id" json:"id"`
	Name         string    `gorm:"column:name;size:190;not null" bson:"name" json:"name"`
	OwnerEmail   string    `gorm:"column:owner_email;size:320;not null;index" bson:"ownerEmail" json:"owner"`
	ElementsJSON string    `gorm:"column:elements_json;type:text;not null" bson:"elementsJson" json:"-"`
	SharedWith   []string  `gorm:"-" bson:"sharedWith" json:"sharedWith"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null" bson:"updatedAt" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Board) TableName() string {
	return "boards"
}

// CanAccess reports whether the email owns the board or appears in its share list.
func (b Board) CanAccess(email string) bool {
	if email == "" {
		return false
	}
	if b.OwnerEmail == email {
		return true
	}
	for _, shared := range b.SharedWith {
		if shared == email {
			return true
		}
	}
	return false
}

// BoardShare grants a non-owner access to a board.
type BoardShare struct {
	BoardID   string    `gorm:"column:board_id;primaryKey;size:190;not null"`
	Email     string    `gorm:"column:email;primaryKey;size:320;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (BoardShare) TableName() string {
	return "board_shares"
}

// Comment is one append-only comment on a board.
type Comment struct {
	ID          string    `gorm:"column:comment_id;primaryKey;size:190;not null" bson:"_id" json:"id"`
	BoardID     string    `gorm:"column:board_id;size:190;not null;index:idx_comments_board_created,priority:1" bson:"boardId" json:"canvasId"`
	AuthorEmail string    `gorm:"column:author_email;size:320;not null" bson:"authorEmail" json:"author"`
	Content     string    `gorm:"column:content;type:text;not null" bson:"content" json:"content"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_comments_board_created,priority:2" bson:"createdAt" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "board_comments"
}

// CloneComments returns an independent copy of the list.
func CloneComments(comments []Comment) []Comment {
	if comments == nil {
		return nil
	}
	cloned := make([]Comment, len(comments))
	copy(cloned, comments)
	return cloned
}
