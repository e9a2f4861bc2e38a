package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/Meet1306/Whiteboard/internal/boards"
	"github.com/Meet1306/Whiteboard/internal/realtime"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultChannelPrefix = "whiteboard:board:"

var (
	errMissingClient  = errors.New("relay: redis client is required")
	errMissingApplier = errors.New("relay: applier is required")
)

// Applier receives broadcasts that originated on other instances.
type Applier interface {
	ApplyRemote(broadcast realtime.Broadcast)
}

type Config struct {
	Client        redis.UniversalClient
	ChannelPrefix string
	InstanceID    string
	Logger        *zap.Logger
}

// Relay fans gateway broadcasts out over Redis pub/sub so several instances
// share board groups. Each board maps to one channel.
type Relay struct {
	client     redis.UniversalClient
	prefix     string
	instanceID string
	logger     *zap.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

type envelope struct {
	Origin  string               `json:"origin"`
	BoardID string               `json:"boardId"`
	Exclude string               `json:"exclude,omitempty"`
	Event   realtime.ServerEvent `json:"event"`
	Comment *boards.Comment      `json:"comment,omitempty"`
}

func New(cfg Config) (*Relay, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	instanceID := cfg.InstanceID
	if instanceID == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		instanceID = generated.String()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		client:     cfg.Client,
		prefix:     prefix,
		instanceID: instanceID,
		logger:     logger,
		ready:      make(chan struct{}),
	}, nil
}

// InstanceID identifies this process on the relay.
func (r *Relay) InstanceID() string {
	return r.instanceID
}

// Ready is closed once the subscription is active.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Publish sends the broadcast to every other instance.
func (r *Relay) Publish(ctx context.Context, broadcast realtime.Broadcast) error {
	payload, err := json.Marshal(envelope{
		Origin:  r.instanceID,
		BoardID: broadcast.BoardID,
		Exclude: broadcast.ExcludeConnectionID,
		Event:   broadcast.Event,
		Comment: broadcast.Comment,
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel(broadcast.BoardID), payload).Err()
}

// Run subscribes to every board channel and hands foreign broadcasts to the
// applier until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, applier Applier) error {
	if applier == nil {
		return errMissingApplier
	}
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("relay subscribed",
		zap.String("pattern", r.prefix+"*"),
		zap.String("instance_id", r.instanceID))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(message.Channel, message.Payload, applier)
		}
	}
}

func (r *Relay) handle(channel string, payload string, applier Applier) {
	var decoded envelope
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		r.logger.Warn("relay message decode failed",
			zap.String("channel", channel),
			zap.Error(err))
		return
	}
	if decoded.Origin == r.instanceID {
		return
	}
	boardID := strings.TrimPrefix(channel, r.prefix)
	if decoded.BoardID != "" {
		boardID = decoded.BoardID
	}
	applier.ApplyRemote(realtime.Broadcast{
		BoardID:             boardID,
		Event:               decoded.Event,
		ExcludeConnectionID: decoded.Exclude,
		Comment:             decoded.Comment,
	})
}

func (r *Relay) channel(boardID string) string {
	return r.prefix + boardID
}
