package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Meet1306/Whiteboard/internal/activity"
	"github.com/Meet1306/Whiteboard/internal/auth"
	"github.com/Meet1306/Whiteboard/internal/boards"
)

const testSigningSecret = "realtime-test-secret"

type recordingMember struct {
	id       string
	capacity int

	mu     sync.Mutex
	frames [][]byte
}

func newRecordingMember(id string) *recordingMember {
	return &recordingMember{id: id, capacity: 64}
}

func (m *recordingMember) ID() string {
	return m.id
}

func (m *recordingMember) Send(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) >= m.capacity {
		return false
	}
	m.frames = append(m.frames, append([]byte(nil), frame...))
	return true
}

func (m *recordingMember) events(t *testing.T) []ServerEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	decoded := make([]ServerEvent, 0, len(m.frames))
	for _, frame := range m.frames {
		var event ServerEvent
		if err := json.Unmarshal(frame, &event); err != nil {
			t.Fatalf("failed to decode frame %s: %v", frame, err)
		}
		decoded = append(decoded, event)
	}
	return decoded
}

func (m *recordingMember) reset() {
	m.mu.Lock()
	m.frames = nil
	m.mu.Unlock()
}

type fakeBoardStore struct {
	mu           sync.Mutex
	elements     map[string][]boards.Element
	comments     map[string][]boards.Comment
	elementLoads int
	commentLoads int
	appends      int
	loadErr      error
	appendErr    error
	loadStarted  chan struct{}
	releaseLoad  chan struct{}
}

func newFakeBoardStore() *fakeBoardStore {
	return &fakeBoardStore{
		elements: make(map[string][]boards.Element),
		comments: make(map[string][]boards.Comment),
	}
}

func (s *fakeBoardStore) LoadElements(ctx context.Context, boardID string) ([]boards.Element, error) {
	s.mu.Lock()
	s.elementLoads++
	started, release := s.loadStarted, s.releaseLoad
	loadErr := s.loadErr
	elements, ok := s.elements[boardID]
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if loadErr != nil {
		return nil, loadErr
	}
	if !ok {
		return nil, fmt.Errorf("board %q: %w", boardID, boards.ErrNotFound)
	}
	return boards.CloneElements(elements), nil
}

func (s *fakeBoardStore) ListComments(ctx context.Context, boardID string) ([]boards.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commentLoads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return boards.CloneComments(s.comments[boardID]), nil
}

func (s *fakeBoardStore) AppendComment(ctx context.Context, comment boards.Comment) (boards.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return boards.Comment{}, s.appendErr
	}
	s.appends++
	s.comments[comment.BoardID] = append(s.comments[comment.BoardID], comment)
	return comment, nil
}

func (s *fakeBoardStore) counts() (elementLoads, commentLoads, appends int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elementLoads, s.commentLoads, s.appends
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("comment-%d", p.next), nil
}

type recordingFanout struct {
	mu         sync.Mutex
	broadcasts []Broadcast
	err        error
}

func (f *recordingFanout) Publish(_ context.Context, broadcast Broadcast) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcast)
	return f.err
}

type recordingSink struct {
	mu      sync.Mutex
	records []activity.BoardActivity
}

func (s *recordingSink) Enqueue(record activity.BoardActivity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return true
}

type gatewayFixture struct {
	gateway *Gateway
	store   *fakeBoardStore
	cache   *SnapshotCache
	fanout  *recordingFanout
	sink    *recordingSink
	issuer  *auth.TokenIssuer
}

func newGatewayFixture(t *testing.T, mutate func(*GatewayConfig)) *gatewayFixture {
	t.Helper()
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	store := newFakeBoardStore()
	ledger, err := NewCommentLedger(LedgerConfig{Store: store, IDProvider: &sequenceIDs{}, Clock: clock})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	fixture := &gatewayFixture{
		store:  store,
		cache:  NewSnapshotCache(),
		fanout: &recordingFanout{},
		sink:   &recordingSink{},
		issuer: issuer,
	}
	cfg := GatewayConfig{
		Cache:    fixture.cache,
		Registry: NewRegistry(),
		Reader:   store,
		Ledger:   ledger,
		Verifier: verifier,
		Fanout:   fixture.fanout,
		Activity: fixture.sink,
		Clock:    clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	gateway, err := NewGateway(cfg)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	fixture.gateway = gateway
	return fixture
}

func (f *gatewayFixture) tokenFor(t *testing.T, email string) string {
	t.Helper()
	token, _, err := f.issuer.IssueToken(auth.Identity{Email: email})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func mustElements(t *testing.T, encoded string) []boards.Element {
	t.Helper()
	elements, err := boards.DecodeElements(encoded)
	if err != nil {
		t.Fatalf("decode elements: %v", err)
	}
	return elements
}

func encodeElements(t *testing.T, elements []boards.Element) string {
	t.Helper()
	encoded, err := boards.EncodeElements(elements)
	if err != nil {
		t.Fatalf("encode elements: %v", err)
	}
	return encoded
}

func dispatch(t *testing.T, gateway *Gateway, session *Session, frame string) error {
	t.Helper()
	return gateway.Dispatch(context.Background(), session, []byte(frame))
}
