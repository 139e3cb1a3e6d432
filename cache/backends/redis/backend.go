package redisbackend

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/entitycache/valuesnap/cache/core"
)

const (
	fieldData    = "data"
	fieldFormat  = "format"
	fieldType    = "type"
	fieldVersion = "version"

	defaultChannelPrefix = "valuesnap::"
)

// Option configures backend behavior.
type Option func(*config)

type config struct {
	channelPrefix string
	logger        *zap.Logger
}

// WithChannelPrefix overrides the prefix used for pub/sub channels.
func WithChannelPrefix(prefix string) Option {
	return func(cfg *config) {
		cfg.channelPrefix = prefix
	}
}

// WithLogger sets the logger used to report dropped notifications.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// Backend stores snapshot payloads as Redis hashes.
type Backend struct {
	client        redis.UniversalClient
	channelPrefix string
	logger        *zap.Logger
}

// NewBackend constructs a backend around an existing redis client.
func NewBackend(client redis.UniversalClient, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, errors.New("redisbackend: client is nil")
	}

	cfg := config{channelPrefix: defaultChannelPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	return &Backend{
		client:        client,
		channelPrefix: cfg.channelPrefix,
		logger:        cfg.logger.Named("redisbackend"),
	}, nil
}

// NewBackendWithOptions creates a Redis client from go-redis options and wraps it.
func NewBackendWithOptions(options *redis.Options, opts ...Option) (*Backend, error) {
	if options == nil {
		return nil, errors.New("redisbackend: redis options are required")
	}
	return NewBackend(redis.NewClient(options), opts...)
}

// Set stores the payload and its version, replacing any previous snapshot under key.
func (b *Backend) Set(ctx context.Context, key string, payload core.Payload, meta core.Metadata) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			fieldData:    payload.Data,
			fieldFormat:  payload.Format,
			fieldType:    payload.Type,
			fieldVersion: strconv.FormatInt(meta.Version, 10),
		})
		if meta.TTL > 0 {
			pipe.Expire(ctx, key, meta.TTL)
		}
		return nil
	})
	return err
}

// Get retrieves the payload and metadata stored under key.
func (b *Backend) Get(ctx context.Context, key string) (core.Payload, core.Metadata, error) {
	result, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return core.Payload{}, core.Metadata{}, err
	}
	if len(result) == 0 {
		return core.Payload{}, core.Metadata{}, core.ErrNotFound
	}

	payload := core.Payload{
		Data:   []byte(result[fieldData]),
		Format: result[fieldFormat],
		Type:   result[fieldType],
	}
	meta := core.Metadata{Format: payload.Format}
	if versionStr, ok := result[fieldVersion]; ok {
		version, err := strconv.ParseInt(versionStr, 10, 64)
		if err != nil {
			return core.Payload{}, core.Metadata{}, err
		}
		meta.Version = version
	}

	if ttl, err := b.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		meta.TTL = ttl
	}
	return payload, meta, nil
}

// Delete removes a key from Redis.
func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// Publish sends a change notification for key.
func (b *Backend) Publish(ctx context.Context, key string, msg core.Message) error {
	payload, err := json.Marshal(wireMessage{
		Key:     key,
		Type:    string(msg.Type),
		Version: msg.Version,
		Format:  msg.Format,
		Origin:  msg.Origin,
	})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channelName(key), payload).Err()
}

// Subscribe listens for notifications on the key-specific channel.
func (b *Backend) Subscribe(ctx context.Context, key string) (core.Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channelName(key))
	// Wait for the subscription confirmation so messages published right after
	// Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan core.Message),
		cancel: cancel,
		logger: b.logger,
		done:   make(chan struct{}),
	}
	go sub.forward(subCtx)
	return sub, nil
}

// Client exposes the underlying redis client.
func (b *Backend) Client() redis.UniversalClient {
	return b.client
}

func (b *Backend) channelName(key string) string {
	return b.channelPrefix + strings.ReplaceAll(key, " ", "_")
}

type wireMessage struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	Version int64  `json:"version"`
	Format  string `json:"format,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan core.Message
	logger *zap.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Channel() <-chan core.Message {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

func (s *redisSubscription) forward(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var wire wireMessage
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				s.logger.Warn("dropping malformed notification",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case s.ch <- core.Message{
				Key:     wire.Key,
				Type:    core.MessageType(wire.Type),
				Version: wire.Version,
				Format:  wire.Format,
				Origin:  wire.Origin,
			}:
			case <-ctx.Done():
				return
			}
		}
	}
}
