package realtime

import (
	"sync"

	"github.com/Meet1306/Whiteboard/internal/boards"
)

// SnapshotCache holds the latest known element and comment lists per board.
// An absent board is distinct from a board with an empty list. Entries live
// for the lifetime of the cache. Callers always receive copies.
type SnapshotCache struct {
	mu       sync.RWMutex
	elements map[string][]boards.Element
	comments map[string][]boards.Comment
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		elements: make(map[string][]boards.Element),
		comments: make(map[string][]boards.Comment),
	}
}

// Elements returns the cached element list and whether the board is present.
func (c *SnapshotCache) Elements(boardID string) ([]boards.Element, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	elements, ok := c.elements[boardID]
	if !ok {
		return nil, false
	}
	return boards.CloneElements(elements), true
}

// StoreElements overwrites the cached element list.
func (c *SnapshotCache) StoreElements(boardID string, elements []boards.Element) {
	stored := nonNilElements(boards.CloneElements(elements))
	c.mu.Lock()
	c.elements[boardID] = stored
	c.mu.Unlock()
}

// StoreElementsIfAbsent populates the entry only when the board is not cached
// yet and returns the list that ends up cached. A durable read that raced with
// a newer update never overwrites it.
func (c *SnapshotCache) StoreElementsIfAbsent(boardID string, elements []boards.Element) []boards.Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.elements[boardID]; ok {
		return boards.CloneElements(existing)
	}
	stored := nonNilElements(boards.CloneElements(elements))
	c.elements[boardID] = stored
	return boards.CloneElements(stored)
}

// Comments returns the cached comment list and whether the board is present.
func (c *SnapshotCache) Comments(boardID string) ([]boards.Comment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	comments, ok := c.comments[boardID]
	if !ok {
		return nil, false
	}
	return boards.CloneComments(comments), true
}

// StoreComments replaces the cached comment list.
func (c *SnapshotCache) StoreComments(boardID string, comments []boards.Comment) {
	stored := nonNilComments(boards.CloneComments(comments))
	c.mu.Lock()
	c.comments[boardID] = stored
	c.mu.Unlock()
}

// StoreCommentsIfAbsent populates the entry only when the board is not cached
// yet and returns the list that ends up cached.
func (c *SnapshotCache) StoreCommentsIfAbsent(boardID string, comments []boards.Comment) []boards.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.comments[boardID]; ok {
		return boards.CloneComments(existing)
	}
	stored := nonNilComments(boards.CloneComments(comments))
	c.comments[boardID] = stored
	return boards.CloneComments(stored)
}

// AppendComment appends to the cached list, creating it with only this
// comment when absent, and returns the full updated list.
func (c *SnapshotCache) AppendComment(boardID string, comment boards.Comment) []boards.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	updated := append(boards.CloneComments(c.comments[boardID]), comment)
	c.comments[boardID] = updated
	return boards.CloneComments(updated)
}

// MergeComment appends a comment persisted elsewhere to an existing cached
// list. An absent list stays absent so the next load reads it from storage,
// and a comment already in the list is not added twice. It reports whether
// the board had a cached list.
func (c *SnapshotCache) MergeComment(boardID string, comment boards.Comment) ([]boards.Comment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.comments[boardID]
	if !ok {
		return nil, false
	}
	for _, cached := range existing {
		if cached.ID == comment.ID {
			return boards.CloneComments(existing), true
		}
	}
	updated := append(boards.CloneComments(existing), comment)
	c.comments[boardID] = updated
	return boards.CloneComments(updated), true
}

// Forget drops both cached lists of the board.
func (c *SnapshotCache) Forget(boardID string) {
	c.mu.Lock()
	delete(c.elements, boardID)
	delete(c.comments, boardID)
	c.mu.Unlock()
}

func nonNilElements(elements []boards.Element) []boards.Element {
	if elements == nil {
		return []boards.Element{}
	}
	return elements
}

func nonNilComments(comments []boards.Comment) []boards.Comment {
	if comments == nil {
		return []boards.Comment{}
	}
	return comments
}
