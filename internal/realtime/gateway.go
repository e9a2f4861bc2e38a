package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Meet1306/Whiteboard/internal/activity"
	"github.com/Meet1306/Whiteboard/internal/auth"
	"github.com/Meet1306/Whiteboard/internal/boards"
	"github.com/Meet1306/Whiteboard/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	cacheKindElements = "elements"
	cacheKindComments = "comments"
)

var (
	// ErrRateLimited indicates that a connection sent update-canvas faster than its limiter allows.
	ErrRateLimited = errors.New("realtime: update rate exceeded")

	errMissingCache    = errors.New("snapshot cache is required")
	errMissingRegistry = errors.New("session registry is required")
	errMissingReader   = errors.New("board reader is required")
	errMissingLedger   = errors.New("comment ledger is required")
	errMissingVerifier = errors.New("identity verifier is required")
)

// BoardReader performs the durable reads behind cache misses.
type BoardReader interface {
	LoadElements(ctx context.Context, boardID string) ([]boards.Element, error)
	ListComments(ctx context.Context, boardID string) ([]boards.Comment, error)
}

// IdentityVerifier resolves a credential token into a caller identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// Broadcast is a frame addressed to one board's group, optionally skipping one connection.
type Broadcast struct {
	BoardID             string
	Event               ServerEvent
	ExcludeConnectionID string
	// Comment is the appended comment behind a comments-data broadcast.
	// Other instances merge it into their own list instead of taking Event's.
	Comment *boards.Comment
}

// Fanout forwards broadcasts to other gateway instances.
type Fanout interface {
	Publish(ctx context.Context, broadcast Broadcast) error
}

// ActivitySink receives accepted edits. Enqueue must not block.
type ActivitySink interface {
	Enqueue(record activity.BoardActivity) bool
}

// GatewayConfig wires the gateway. Fanout, Activity and Metrics are optional.
type GatewayConfig struct {
	Cache    *SnapshotCache
	Registry *Registry
	Reader   BoardReader
	Ledger   *CommentLedger
	Verifier IdentityVerifier
	Fanout   Fanout
	Activity ActivitySink
	Metrics  *metrics.Collectors
	Logger   *zap.Logger
	Clock    func() time.Time

	// UpdateRate limits update-canvas events per connection; zero disables the limiter.
	UpdateRate  rate.Limit
	UpdateBurst int
}

// Gateway handles every per-connection event against the snapshot cache,
// the durable collaborators and the board groups.
type Gateway struct {
	cache       *SnapshotCache
	registry    *Registry
	reader      BoardReader
	ledger      *CommentLedger
	verifier    IdentityVerifier
	fanout      Fanout
	activity    ActivitySink
	metrics     *metrics.Collectors
	logger      *zap.Logger
	clock       func() time.Time
	updateRate  rate.Limit
	updateBurst int
}

func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Cache == nil {
		return nil, errMissingCache
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Reader == nil {
		return nil, errMissingReader
	}
	if cfg.Ledger == nil {
		return nil, errMissingLedger
	}
	if cfg.Verifier == nil {
		return nil, errMissingVerifier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	burst := cfg.UpdateBurst
	if cfg.UpdateRate > 0 && burst <= 0 {
		burst = 1
	}
	return &Gateway{
		cache:       cfg.Cache,
		registry:    cfg.Registry,
		reader:      cfg.Reader,
		ledger:      cfg.Ledger,
		verifier:    cfg.Verifier,
		fanout:      cfg.Fanout,
		activity:    cfg.Activity,
		metrics:     cfg.Metrics,
		logger:      logger,
		clock:       clock,
		updateRate:  cfg.UpdateRate,
		updateBurst: burst,
	}, nil
}

// Session is one connected client as seen by the gateway. The credential
// token is captured at connect time and checked on the comment path only.
type Session struct {
	member  Member
	token   string
	limiter *rate.Limiter
}

// ID returns the connection identifier.
func (s *Session) ID() string {
	return s.member.ID()
}

// Connect registers a new connection with the gateway.
func (g *Gateway) Connect(member Member, token string) *Session {
	session := &Session{member: member, token: token}
	if g.updateRate > 0 {
		session.limiter = rate.NewLimiter(g.updateRate, g.updateBurst)
	}
	g.metrics.ConnectionOpened()
	g.logger.Debug("connection opened", zap.String("connection_id", member.ID()))
	return session
}

// Disconnect prunes every board membership of the session.
func (g *Gateway) Disconnect(session *Session) {
	left := g.registry.Remove(session.ID())
	g.metrics.ConnectionClosed()
	g.logger.Debug("connection closed",
		zap.String("connection_id", session.ID()),
		zap.Strings("boards", left))
}

// Join adds the session to the board's group. Re-joining has no further effect.
func (g *Gateway) Join(session *Session, boardID string) {
	if g.registry.Join(boardID, session.member) {
		g.logger.Debug("joined board",
			zap.String("board_id", boardID),
			zap.String("connection_id", session.ID()))
	}
}

// Leave removes the session from the board's group.
func (g *Gateway) Leave(session *Session, boardID string) {
	g.registry.Leave(boardID, session.ID())
}

// LoadElements replies to the caller with the board's element list, reading
// through the cache. A board without a stored document is cached as empty.
func (g *Gateway) LoadElements(ctx context.Context, session *Session, boardID string) error {
	elements, hit := g.cache.Elements(boardID)
	g.metrics.ObserveCacheLookup(cacheKindElements, hit)
	if !hit {
		fetched, err := g.reader.LoadElements(ctx, boardID)
		if errors.Is(err, boards.ErrNotFound) {
			fetched, err = []boards.Element{}, nil
		}
		if err != nil {
			g.reply(session, SyncError(boardID, CodePersistenceFailure))
			return err
		}
		elements = g.cache.StoreElementsIfAbsent(boardID, fetched)
	}
	g.reply(session, CanvasData(boardID, elements))
	return nil
}

// LoadComments replies to the caller with the board's comments, oldest first.
func (g *Gateway) LoadComments(ctx context.Context, session *Session, boardID string) error {
	comments, hit := g.cache.Comments(boardID)
	g.metrics.ObserveCacheLookup(cacheKindComments, hit)
	if !hit {
		fetched, err := g.reader.ListComments(ctx, boardID)
		if errors.Is(err, boards.ErrNotFound) {
			fetched, err = []boards.Comment{}, nil
		}
		if err != nil {
			g.reply(session, SyncError(boardID, CodePersistenceFailure))
			return err
		}
		comments = g.cache.StoreCommentsIfAbsent(boardID, fetched)
	}
	g.reply(session, CommentsData(boardID, comments))
	return nil
}

// UpdateElements overwrites the cached element list and pushes it to every
// other member of the board. It does not persist.
func (g *Gateway) UpdateElements(ctx context.Context, session *Session, boardID string, elements []boards.Element) error {
	if session.limiter != nil && !session.limiter.Allow() {
		return ErrRateLimited
	}
	if elements == nil {
		elements = []boards.Element{}
	}
	g.cache.StoreElements(boardID, elements)
	g.broadcast(ctx, Broadcast{
		BoardID:             boardID,
		Event:               CanvasData(boardID, elements),
		ExcludeConnectionID: session.ID(),
	})
	g.recordActivity(activity.BoardActivity{
		Type:         activity.TypeElementsUpdated,
		BoardID:      boardID,
		Actor:        session.ID(),
		ElementCount: len(elements),
		OccurredAt:   g.clock().UTC(),
	})
	return nil
}

// AddComment verifies the session credential, appends the comment durably and
// pushes the full comment list to every member of the board, sender included.
// Nothing is cached or sent unless the durable append succeeds.
func (g *Gateway) AddComment(ctx context.Context, session *Session, boardID string, content string) error {
	identity, err := g.verifier.Verify(ctx, session.token)
	if err != nil {
		return err
	}
	if identity.Email == "" {
		return fmt.Errorf("%w: identity without email", auth.ErrInvalidCredential)
	}
	stored, err := g.ledger.Append(ctx, boardID, identity.Email, content)
	if err != nil {
		return err
	}
	comments := g.cache.AppendComment(boardID, stored)
	g.broadcast(ctx, Broadcast{
		BoardID: boardID,
		Event:   CommentsData(boardID, comments),
		Comment: &stored,
	})
	g.recordActivity(activity.BoardActivity{
		Type:       activity.TypeCommentAdded,
		BoardID:    boardID,
		Actor:      identity.Email,
		CommentID:  stored.ID,
		OccurredAt: stored.CreatedAt,
	})
	return nil
}

// Dispatch decodes one client frame and runs its handler to completion.
// Failures are logged and returned; they never end the connection.
func (g *Gateway) Dispatch(ctx context.Context, session *Session, frame []byte) error {
	event, err := DecodeClientEvent(frame)
	if errors.Is(err, ErrUnknownEvent) {
		g.metrics.ObserveEvent(event.Name, metrics.OutcomeIgnored)
		g.logger.Info("ignoring unknown event",
			zap.String("event", event.Name),
			zap.String("connection_id", session.ID()))
		return nil
	}
	if err != nil {
		g.metrics.ObserveEvent(event.Name, metrics.OutcomeRejected)
		g.logDropped(session, event, "malformed_payload", err)
		return err
	}

	switch event.Name {
	case EventJoinCanvas:
		g.Join(session, event.BoardID)
	case EventLeaveCanvas:
		g.Leave(session, event.BoardID)
	case EventLoadCanvas:
		err = g.LoadElements(ctx, session, event.BoardID)
	case EventLoadComments:
		err = g.LoadComments(ctx, session, event.BoardID)
	case EventUpdateCanvas:
		err = g.UpdateElements(ctx, session, event.BoardID, event.Elements)
	case EventAddComment:
		err = g.AddComment(ctx, session, event.BoardID, event.Content)
	}

	if err != nil {
		g.metrics.ObserveEvent(event.Name, outcomeFor(err))
		g.logDropped(session, event, reasonFor(err), err)
		return err
	}
	g.metrics.ObserveEvent(event.Name, metrics.OutcomeOK)
	return nil
}

// ApplyRemote applies a broadcast that originated on another instance.
// Element snapshots overwrite the local cache. A remote comment is merged
// into the local list, and local members receive the merged list; when this
// instance has no cached list the comment is left for the next load.
func (g *Gateway) ApplyRemote(broadcast Broadcast) {
	switch broadcast.Event.Name {
	case EventCanvasData:
		g.cache.StoreElements(broadcast.BoardID, broadcast.Event.Elements)
		g.deliverLocal(broadcast)
	case EventCommentsData:
		if broadcast.Comment == nil {
			g.logger.Warn("ignoring remote comments without appended comment",
				zap.String("board_id", broadcast.BoardID))
			return
		}
		merged, cached := g.cache.MergeComment(broadcast.BoardID, *broadcast.Comment)
		if !cached {
			g.logger.Debug("remote comment left for next load",
				zap.String("board_id", broadcast.BoardID),
				zap.String("comment_id", broadcast.Comment.ID))
			return
		}
		g.deliverLocal(Broadcast{
			BoardID:             broadcast.BoardID,
			Event:               CommentsData(broadcast.BoardID, merged),
			ExcludeConnectionID: broadcast.ExcludeConnectionID,
		})
	default:
		g.logger.Warn("ignoring remote broadcast",
			zap.String("event", broadcast.Event.Name),
			zap.String("board_id", broadcast.BoardID))
	}
}

// ForgetBoard drops the cached snapshots of a board removed from storage so a
// later load does not serve them.
func (g *Gateway) ForgetBoard(boardID string) {
	g.cache.Forget(boardID)
	g.logger.Debug("board snapshots forgotten", zap.String("board_id", boardID))
}

func (g *Gateway) broadcast(ctx context.Context, broadcast Broadcast) {
	g.deliverLocal(broadcast)
	if g.fanout == nil {
		return
	}
	if err := g.fanout.Publish(ctx, broadcast); err != nil {
		g.logger.Error("relay publish failed",
			zap.String("board_id", broadcast.BoardID),
			zap.String("event", broadcast.Event.Name),
			zap.Error(err))
	}
}

func (g *Gateway) deliverLocal(broadcast Broadcast) {
	frame, err := json.Marshal(broadcast.Event)
	if err != nil {
		g.logger.Error("encode broadcast failed",
			zap.String("board_id", broadcast.BoardID),
			zap.String("event", broadcast.Event.Name),
			zap.Error(err))
		return
	}
	report := g.registry.Broadcast(broadcast.BoardID, frame, broadcast.ExcludeConnectionID)
	g.metrics.ObserveDeliveries(broadcast.Event.Name, report.Delivered, report.Dropped)
	if report.Dropped > 0 {
		g.logger.Warn("broadcast dropped for slow connections",
			zap.String("board_id", broadcast.BoardID),
			zap.String("event", broadcast.Event.Name),
			zap.Int("dropped", report.Dropped))
	}
}

func (g *Gateway) reply(session *Session, event ServerEvent) {
	frame, err := json.Marshal(event)
	if err != nil {
		g.logger.Error("encode reply failed",
			zap.String("board_id", event.BoardID),
			zap.String("event", event.Name),
			zap.Error(err))
		return
	}
	delivered := session.member.Send(frame)
	if delivered {
		g.metrics.ObserveDeliveries(event.Name, 1, 0)
		return
	}
	g.metrics.ObserveDeliveries(event.Name, 0, 1)
	g.logger.Warn("reply dropped for slow connection",
		zap.String("board_id", event.BoardID),
		zap.String("event", event.Name),
		zap.String("connection_id", session.ID()))
}

func (g *Gateway) recordActivity(record activity.BoardActivity) {
	if g.activity == nil {
		return
	}
	g.activity.Enqueue(record)
}

func (g *Gateway) logDropped(session *Session, event ClientEvent, reason string, err error) {
	fields := []zap.Field{
		zap.String("event", event.Name),
		zap.String("board_id", event.BoardID),
		zap.String("connection_id", session.ID()),
		zap.String("reason", reason),
		zap.Error(err),
	}
	if errors.Is(err, boards.ErrPersistence) {
		g.logger.Error("event dropped", fields...)
		return
	}
	g.logger.Warn("event dropped", fields...)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredential):
		return "unauthorized"
	case errors.Is(err, boards.ErrPersistence):
		return "persistence_failure"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, boards.ErrInvalidComment), errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "internal"
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, boards.ErrPersistence) {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeRejected
}
