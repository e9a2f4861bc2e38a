package boards

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	queryBoardID         = "board_id = ?"
	orderCommentsCreated = "created_at ASC, comment_id ASC"
	orderSharesCreated   = "created_at ASC, email ASC"
	orderBoardsNewest    = "created_at DESC, board_id ASC"
)

// Store is the durable collaborator behind boards and their comments.
type Store interface {
	CreateBoard(ctx context.Context, board Board) (Board, error)
	GetBoard(ctx context.Context, boardID string) (Board, error)
	LoadElements(ctx context.Context, boardID string) ([]Element, error)
	SaveElements(ctx context.Context, boardID string, elements []Element, updatedAt time.Time) error
	AddShare(ctx context.Context, boardID string, email string, sharedAt time.Time) error
	AppendComment(ctx context.Context, comment Comment) (Comment, error)
	ListComments(ctx context.Context, boardID string) ([]Comment, error)
	ListBoards(ctx context.Context, email string) ([]Board, error)
	RenameBoard(ctx context.Context, boardID string, name string, updatedAt time.Time) error
	RemoveShare(ctx context.Context, boardID string, email string, updatedAt time.Time) error
	DeleteBoard(ctx context.Context, boardID string) error
}

// GormStore implements Store on top of a relational database through GORM.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore wraps an already migrated GORM handle.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, persistenceError("boards.store.new", "missing_database", errMissingDatabase)
	}
	if logger == nil {
		logger = noOpLogger
	}
	return &GormStore{db: db, logger: logger}, nil
}

// CreateBoard inserts a new board row.
func (s *GormStore) CreateBoard(ctx context.Context, board Board) (Board, error) {
	if board.ElementsJSON == "" {
		board.ElementsJSON = "[]"
	}
	if err := s.db.WithContext(ctx).Create(&board).Error; err != nil {
		s.logError(opCreateBoard, "insert_failed", err, zap.String("board_id", board.ID))
		return Board{}, persistenceError(opCreateBoard, "insert_failed", err)
	}
	if board.SharedWith == nil {
		board.SharedWith = []string{}
	}
	return board, nil
}

// GetBoard loads the board row together with its share list.
func (s *GormStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.db.WithContext(ctx).Where(queryBoardID, boardID).Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Board{}, notFoundError(opGetBoard, boardID)
	}
	if err != nil {
		s.logError(opGetBoard, "query_failed", err, zap.String("board_id", boardID))
		return Board{}, persistenceError(opGetBoard, "query_failed", err)
	}

	var shares []BoardShare
	if err := s.db.WithContext(ctx).Where(queryBoardID, boardID).Order(orderSharesCreated).Find(&shares).Error; err != nil {
		s.logError(opGetBoard, "share_query_failed", err, zap.String("board_id", boardID))
		return Board{}, persistenceError(opGetBoard, "share_query_failed", err)
	}
	board.SharedWith = make([]string, 0, len(shares))
	for _, share := range shares {
		board.SharedWith = append(board.SharedWith, share.Email)
	}
	return board, nil
}

// LoadElements returns the stored element list of a board.
func (s *GormStore) LoadElements(ctx context.Context, boardID string) ([]Element, error) {
	var board Board
	err := s.db.WithContext(ctx).
		Select("board_id", "elements_json").
		Where(queryBoardID, boardID).
		Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(opLoadElements, boardID)
	}
	if err != nil {
		s.logError(opLoadElements, "query_failed", err, zap.String("board_id", boardID))
		return nil, persistenceError(opLoadElements, "query_failed", err)
	}
	elements, err := DecodeElements(board.ElementsJSON)
	if err != nil {
		s.logError(opLoadElements, "decode_failed", err, zap.String("board_id", boardID))
		return nil, persistenceError(opLoadElements, "decode_failed", err)
	}
	return elements, nil
}

// SaveElements overwrites the stored element list of an existing board.
func (s *GormStore) SaveElements(ctx context.Context, boardID string, elements []Element, updatedAt time.Time) error {
	encoded, err := EncodeElements(elements)
	if err != nil {
		return persistenceError(opSaveElements, "encode_failed", err)
	}
	result := s.db.WithContext(ctx).
		Model(&Board{}).
		Where(queryBoardID, boardID).
		Updates(map[string]interface{}{
			"elements_json": encoded,
			"updated_at":    updatedAt.UTC(),
		})
	if result.Error != nil {
		s.logError(opSaveElements, "update_failed", result.Error, zap.String("board_id", boardID))
		return persistenceError(opSaveElements, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFoundError(opSaveElements, boardID)
	}
	return nil
}

// AddShare grants the email access to the board. Repeated grants are no-ops.
func (s *GormStore) AddShare(ctx context.Context, boardID string, email string, sharedAt time.Time) error {
	share := BoardShare{BoardID: boardID, Email: email, CreatedAt: sharedAt.UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&share).Error
	if err != nil {
		s.logError(opAddShare, "insert_failed", err, zap.String("board_id", boardID))
		return persistenceError(opAddShare, "insert_failed", err)
	}
	return nil
}

// AppendComment inserts the comment and returns the stored record.
func (s *GormStore) AppendComment(ctx context.Context, comment Comment) (Comment, error) {
	comment.CreatedAt = comment.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opAppendComment, "insert_failed", err,
			zap.String("board_id", comment.BoardID),
			zap.String("comment_id", comment.ID))
		return Comment{}, persistenceError(opAppendComment, "insert_failed", err)
	}
	return comment, nil
}

// ListComments returns the comments of a board ordered by creation time ascending.
func (s *GormStore) ListComments(ctx context.Context, boardID string) ([]Comment, error) {
	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where(queryBoardID, boardID).
		Order(orderCommentsCreated).
		Find(&comments).Error; err != nil {
		s.logError(opListComments, "query_failed", err, zap.String("board_id", boardID))
		return nil, persistenceError(opListComments, "query_failed", err)
	}
	if comments == nil {
		comments = []Comment{}
	}
	return comments, nil
}

// ListBoards returns the boards the email owns or has been shared, newest first.
func (s *GormStore) ListBoards(ctx context.Context, email string) ([]Board, error) {
	sharedIDs := s.db.Model(&BoardShare{}).Select("board_id").Where("email = ?", email)
	var found []Board
	if err := s.db.WithContext(ctx).
		Where("owner_email = ?", email).
		Or("board_id IN (?)", sharedIDs).
		Order(orderBoardsNewest).
		Find(&found).Error; err != nil {
		s.logError(opListBoards, "query_failed", err)
		return nil, persistenceError(opListBoards, "query_failed", err)
	}
	if len(found) == 0 {
		return []Board{}, nil
	}

	ids := make([]string, 0, len(found))
	for _, board := range found {
		ids = append(ids, board.ID)
	}
	var shares []BoardShare
	if err := s.db.WithContext(ctx).Where("board_id IN ?", ids).Order(orderSharesCreated).Find(&shares).Error; err != nil {
		s.logError(opListBoards, "share_query_failed", err)
		return nil, persistenceError(opListBoards, "share_query_failed", err)
	}
	sharedWith := make(map[string][]string, len(found))
	for _, share := range shares {
		sharedWith[share.BoardID] = append(sharedWith[share.BoardID], share.Email)
	}
	for index := range found {
		found[index].SharedWith = sharedWith[found[index].ID]
		if found[index].SharedWith == nil {
			found[index].SharedWith = []string{}
		}
	}
	return found, nil
}

// RenameBoard changes the board name.
func (s *GormStore) RenameBoard(ctx context.Context, boardID string, name string, updatedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&Board{}).
		Where(queryBoardID, boardID).
		Updates(map[string]interface{}{
			"name":       name,
			"updated_at": updatedAt.UTC(),
		})
	if result.Error != nil {
		s.logError(opRenameBoard, "update_failed", result.Error, zap.String("board_id", boardID))
		return persistenceError(opRenameBoard, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFoundError(opRenameBoard, boardID)
	}
	return nil
}

// RemoveShare revokes the email's access. Revoking an absent share is a no-op.
func (s *GormStore) RemoveShare(ctx context.Context, boardID string, email string, updatedAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		touched := tx.Model(&Board{}).Where(queryBoardID, boardID).Update("updated_at", updatedAt.UTC())
		if touched.Error != nil {
			s.logError(opRemoveShare, "update_failed", touched.Error, zap.String("board_id", boardID))
			return persistenceError(opRemoveShare, "update_failed", touched.Error)
		}
		if touched.RowsAffected == 0 {
			return notFoundError(opRemoveShare, boardID)
		}
		if err := tx.Where("board_id = ? AND email = ?", boardID, email).Delete(&BoardShare{}).Error; err != nil {
			s.logError(opRemoveShare, "delete_failed", err, zap.String("board_id", boardID))
			return persistenceError(opRemoveShare, "delete_failed", err)
		}
		return nil
	})
}

// DeleteBoard removes the board with its shares and comments.
func (s *GormStore) DeleteBoard(ctx context.Context, boardID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dependent := range []interface{}{&Comment{}, &BoardShare{}} {
			if err := tx.Where(queryBoardID, boardID).Delete(dependent).Error; err != nil {
				s.logError(opDeleteBoard, "delete_failed", err, zap.String("board_id", boardID))
				return persistenceError(opDeleteBoard, "delete_failed", err)
			}
		}
		result := tx.Where(queryBoardID, boardID).Delete(&Board{})
		if result.Error != nil {
			s.logError(opDeleteBoard, "delete_failed", result.Error, zap.String("board_id", boardID))
			return persistenceError(opDeleteBoard, "delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return notFoundError(opDeleteBoard, boardID)
		}
		return nil
	})
}

func (s *GormStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("board store error", attrs...)
}
