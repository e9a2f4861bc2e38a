package boards

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a board is absent from durable storage.
	ErrNotFound = errors.New("boards: not found")
	// ErrForbidden indicates that the caller neither owns nor shares the board.
	ErrForbidden = errors.New("boards: access denied")
	// ErrPersistence indicates that a durable read or write could not complete.
	ErrPersistence = errors.New("boards: persistence failure")
)

// StoreError carries an operation code plus the taxonomy sentinel and the underlying cause.
type StoreError struct {
	code string
	kind error
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %v", e.code, e.kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.code, e.kind, e.err)
}

// Unwrap exposes both the taxonomy sentinel and the cause to errors.Is / errors.As.
func (e *StoreError) Unwrap() []error {
	unwrapped := []error{e.kind}
	if e.err != nil {
		unwrapped = append(unwrapped, e.err)
	}
	return unwrapped
}

// Code returns the "operation.reason" code.
func (e *StoreError) Code() string {
	return e.code
}

const (
	opCreateBoard   = "boards.create_board"
	opGetBoard      = "boards.get_board"
	opSaveElements  = "boards.save_elements"
	opLoadElements  = "boards.load_elements"
	opAddShare      = "boards.add_share"
	opAppendComment = "boards.append_comment"
	opListComments  = "boards.list_comments"
	opListBoards    = "boards.list_boards"
	opRenameBoard   = "boards.rename_board"
	opRemoveShare   = "boards.remove_share"
	opDeleteBoard   = "boards.delete_board"
)

func newStoreError(operation, reason string, kind, cause error) error {
	return &StoreError{code: operation + "." + reason, kind: kind, err: cause}
}

func persistenceError(operation, reason string, cause error) error {
	return newStoreError(operation, reason, ErrPersistence, cause)
}

func notFoundError(operation string, boardID string) error {
	return newStoreError(operation, "board_missing", ErrNotFound, fmt.Errorf("board %q", boardID))
}
