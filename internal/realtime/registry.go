package realtime

import (
	"sort"
	"sync"
)

// Member is a connection that can receive encoded frames. Send must not block;
// it reports false when the frame was dropped.
type Member interface {
	ID() string
	Send(frame []byte) bool
}

// DeliveryReport counts the outcome of one broadcast.
type DeliveryReport struct {
	Delivered int
	Dropped   int
}

// Registry tracks which connections belong to which board's broadcast group.
// A connection may be a member of several boards.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Member
	memberships map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]map[string]Member),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Join adds the member to the board's group. It reports whether the membership is new.
func (r *Registry) Join(boardID string, member Member) bool {
	memberID := member.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[boardID]
	if !ok {
		room = make(map[string]Member)
		r.rooms[boardID] = room
	}
	if _, exists := room[memberID]; exists {
		return false
	}
	room[memberID] = member
	joined, ok := r.memberships[memberID]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[memberID] = joined
	}
	joined[boardID] = struct{}{}
	return true
}

// Leave removes one membership. It reports whether the member was present.
func (r *Registry) Leave(boardID string, memberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(boardID, memberID)
}

// Remove drops every membership of the connection and returns the boards it left.
func (r *Registry) Remove(memberID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := r.memberships[memberID]
	left := make([]string, 0, len(joined))
	for boardID := range joined {
		left = append(left, boardID)
	}
	for _, boardID := range left {
		r.leaveLocked(boardID, memberID)
	}
	sort.Strings(left)
	return left
}

func (r *Registry) leaveLocked(boardID string, memberID string) bool {
	room, ok := r.rooms[boardID]
	if !ok {
		return false
	}
	if _, exists := room[memberID]; !exists {
		return false
	}
	delete(room, memberID)
	if len(room) == 0 {
		delete(r.rooms, boardID)
	}
	if joined, ok := r.memberships[memberID]; ok {
		delete(joined, boardID)
		if len(joined) == 0 {
			delete(r.memberships, memberID)
		}
	}
	return true
}

// Members returns a snapshot of the board's group.
func (r *Registry) Members(boardID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[boardID]
	members := make([]Member, 0, len(room))
	for _, member := range room {
		members = append(members, member)
	}
	return members
}

// Boards returns the boards the connection is currently a member of.
func (r *Registry) Boards(memberID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	joined := r.memberships[memberID]
	result := make([]string, 0, len(joined))
	for boardID := range joined {
		result = append(result, boardID)
	}
	sort.Strings(result)
	return result
}

// Broadcast sends the frame to every member of the board except excludeID.
// An empty excludeID includes everyone.
func (r *Registry) Broadcast(boardID string, frame []byte, excludeID string) DeliveryReport {
	var report DeliveryReport
	for _, member := range r.Members(boardID) {
		if excludeID != "" && member.ID() == excludeID {
			continue
		}
		if member.Send(frame) {
			report.Delivered++
		} else {
			report.Dropped++
		}
	}
	return report
}
