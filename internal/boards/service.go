package boards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("board store is required")
	errMissingIDProvider = errors.New("id provider is required")
)

const (
	opServiceNew    = "boards.service.new"
	opAuthorize     = "boards.authorize"
	opRequireOwner  = "boards.require_owner"
	opListBoardsSvc = "boards.service.list_boards"
)

// ServiceConfig wires the collaborator board service.
type ServiceConfig struct {
	Store      Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements the board metadata contract: creation, owner-or-shared
// reads and writes, sharing, and comment listing.
type Service struct {
	store      Store
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, persistenceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, persistenceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateBoard creates an empty board owned by ownerEmail.
func (s *Service) CreateBoard(ctx context.Context, ownerEmail string, name string) (Board, error) {
	owner, err := NormalizeEmail(ownerEmail)
	if err != nil {
		return Board{}, err
	}
	trimmedName, err := normalizeName(name)
	if err != nil {
		return Board{}, err
	}

	boardID, err := s.idProvider.NewID()
	if err != nil {
		s.logger.Error("board id generation failed",
			zap.String("operation", opCreateBoard),
			zap.Error(err))
		return Board{}, persistenceError(opCreateBoard, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	return s.store.CreateBoard(ctx, Board{
		ID:           boardID,
		Name:         trimmedName,
		OwnerEmail:   owner,
		ElementsJSON: "[]",
		SharedWith:   []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// LoadBoard returns the board and its decoded elements when the caller may access it.
func (s *Service) LoadBoard(ctx context.Context, callerEmail string, rawBoardID string) (Board, []Element, error) {
	board, err := s.authorize(ctx, callerEmail, rawBoardID)
	if err != nil {
		return Board{}, nil, err
	}
	elements, err := DecodeElements(board.ElementsJSON)
	if err != nil {
		return Board{}, nil, persistenceError(opLoadElements, "decode_failed", err)
	}
	return board, elements, nil
}

// SaveElements persists the full element list on behalf of an owner or shared user.
func (s *Service) SaveElements(ctx context.Context, callerEmail string, rawBoardID string, elements []Element) error {
	board, err := s.authorize(ctx, callerEmail, rawBoardID)
	if err != nil {
		return err
	}
	return s.store.SaveElements(ctx, board.ID, elements, s.clock().UTC())
}

// ShareBoard lets the owner grant another email access to the board.
func (s *Service) ShareBoard(ctx context.Context, callerEmail string, rawBoardID string, shareEmail string) (Board, error) {
	board, err := s.requireOwner(ctx, callerEmail, rawBoardID)
	if err != nil {
		return Board{}, err
	}
	target, err := NormalizeEmail(shareEmail)
	if err != nil {
		return Board{}, err
	}
	if target == board.OwnerEmail {
		return board, nil
	}
	if err := s.store.AddShare(ctx, board.ID, target, s.clock().UTC()); err != nil {
		return Board{}, err
	}
	return s.store.GetBoard(ctx, board.ID)
}

// UnshareBoard lets the owner revoke an email's access to the board.
func (s *Service) UnshareBoard(ctx context.Context, callerEmail string, rawBoardID string, shareEmail string) (Board, error) {
	board, err := s.requireOwner(ctx, callerEmail, rawBoardID)
	if err != nil {
		return Board{}, err
	}
	target, err := NormalizeEmail(shareEmail)
	if err != nil {
		return Board{}, err
	}
	if err := s.store.RemoveShare(ctx, board.ID, target, s.clock().UTC()); err != nil {
		return Board{}, err
	}
	return s.store.GetBoard(ctx, board.ID)
}

// RenameBoard lets the owner change the board name.
func (s *Service) RenameBoard(ctx context.Context, callerEmail string, rawBoardID string, name string) (Board, error) {
	trimmedName, err := normalizeName(name)
	if err != nil {
		return Board{}, err
	}
	board, err := s.requireOwner(ctx, callerEmail, rawBoardID)
	if err != nil {
		return Board{}, err
	}
	if err := s.store.RenameBoard(ctx, board.ID, trimmedName, s.clock().UTC()); err != nil {
		return Board{}, err
	}
	return s.store.GetBoard(ctx, board.ID)
}

// DeleteBoard lets the owner remove the board together with its comments.
func (s *Service) DeleteBoard(ctx context.Context, callerEmail string, rawBoardID string) error {
	board, err := s.requireOwner(ctx, callerEmail, rawBoardID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, board.ID); err != nil {
		return err
	}
	s.logger.Info("board deleted",
		zap.String("board_id", board.ID),
		zap.String("owner", board.OwnerEmail))
	return nil
}

// ListBoards returns every board the caller owns or has been shared, newest first.
func (s *Service) ListBoards(ctx context.Context, callerEmail string) ([]Board, error) {
	caller, err := NormalizeEmail(callerEmail)
	if err != nil {
		return nil, err
	}
	found, err := s.store.ListBoards(ctx, caller)
	if err != nil {
		s.logger.Error("board listing failed",
			zap.String("operation", opListBoardsSvc),
			zap.Error(err))
		return nil, err
	}
	return found, nil
}

// ListComments returns the board's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, callerEmail string, rawBoardID string) ([]Comment, error) {
	board, err := s.authorize(ctx, callerEmail, rawBoardID)
	if err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, board.ID)
}

func (s *Service) requireOwner(ctx context.Context, callerEmail string, rawBoardID string) (Board, error) {
	board, err := s.authorize(ctx, callerEmail, rawBoardID)
	if err != nil {
		return Board{}, err
	}
	caller, _ := NormalizeEmail(callerEmail)
	if board.OwnerEmail != caller {
		s.logger.Warn("owner action rejected",
			zap.String("operation", opRequireOwner),
			zap.String("reason", "not_owner"),
			zap.String("board_id", board.ID))
		return Board{}, newStoreError(opRequireOwner, "not_owner", ErrForbidden, nil)
	}
	return board, nil
}

func (s *Service) authorize(ctx context.Context, callerEmail string, rawBoardID string) (Board, error) {
	caller, err := NormalizeEmail(callerEmail)
	if err != nil {
		return Board{}, err
	}
	boardID, err := NewBoardID(rawBoardID)
	if err != nil {
		return Board{}, err
	}
	board, err := s.store.GetBoard(ctx, boardID.String())
	if err != nil {
		return Board{}, err
	}
	if !board.CanAccess(caller) {
		s.logger.Warn("board access denied",
			zap.String("operation", opAuthorize),
			zap.String("reason", "not_member"),
			zap.String("board_id", board.ID))
		return Board{}, newStoreError(opAuthorize, "not_member", ErrForbidden, nil)
	}
	return board, nil
}

func normalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return trimmed, nil
}
