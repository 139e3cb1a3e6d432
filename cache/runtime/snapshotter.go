package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/entitycache/valuesnap/cache/core"
	"github.com/entitycache/valuesnap/cache/observability"
	"github.com/entitycache/valuesnap/cache/serialize"
)

var (
	// ErrBackendRequired indicates that a snapshotter cannot operate without a cache backend.
	ErrBackendRequired = errors.New("runtime: cache backend is required")
	// ErrRegistryRequired indicates a frozen serializer registry must be supplied.
	ErrRegistryRequired = errors.New("runtime: serializer registry is required")
	// ErrNilValue occurs when Snapshot is called with a nil value.
	ErrNilValue = errors.New("runtime: value must not be nil")
	// ErrUnknownKey indicates an operation was attempted on a key that was never snapshotted locally.
	ErrUnknownKey = errors.New("runtime: key is not tracked")
	// ErrTypeMismatch indicates the stored snapshot was written for a different type spec.
	ErrTypeMismatch = errors.New("runtime: stored snapshot type does not match")
	// ErrUnsupportedFormat indicates the stored payload was not written with the binary channel.
	ErrUnsupportedFormat = errors.New("runtime: unsupported payload format")
)

const unknownType = "unknown"

// Snapshotter stores registry-serializable values under string keys in a
// cache backend and reads them back.
type Snapshotter struct {
	id         string
	backend    core.Cache
	registry   *serialize.Registry
	namespace  string
	defaultTTL time.Duration

	logger  *zap.Logger
	metrics *observability.Metrics

	versions *versionIndex
	loads    singleflight.Group

	ctx         context.Context
	cancel      context.CancelFunc
	subMu       sync.Mutex
	subscribers map[string]*subscriptionState
}

// Option configures snapshotter-level behavior.
type Option func(*snapshotterConfig)

type snapshotterConfig struct {
	namespace  string
	defaultTTL time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// WithNamespace prepends the provided namespace to all cache keys.
func WithNamespace(namespace string) Option {
	return func(cfg *snapshotterConfig) {
		cfg.namespace = namespace
	}
}

// WithDefaultTTL sets the TTL applied when storing snapshots (zero means no TTL).
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cfg *snapshotterConfig) {
		cfg.defaultTTL = ttl
	}
}

// WithLogger sets the logger used for diagnostic messages.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *snapshotterConfig) {
		cfg.logger = logger
	}
}

// WithMetrics records operation counts and payload sizes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(cfg *snapshotterConfig) {
		cfg.metrics = metrics
	}
}

// SnapshotOption customizes a single Snapshot call.
type SnapshotOption func(*snapshotConfig)

type snapshotConfig struct {
	ttl *time.Duration
}

// WithSnapshotTTL overrides the TTL for one snapshot.
func WithSnapshotTTL(ttl time.Duration) SnapshotOption {
	return func(cfg *snapshotConfig) {
		cfg.ttl = &ttl
	}
}

// NewSnapshotter constructs a Snapshotter over backend using registry to pick serializers.
func NewSnapshotter(backend core.Cache, registry *serialize.Registry, opts ...Option) (*Snapshotter, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	cfg := snapshotterConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Snapshotter{
		id:          uuid.NewString(),
		backend:     backend,
		registry:    registry,
		namespace:   cfg.namespace,
		defaultTTL:  cfg.defaultTTL,
		logger:      logger.Named("snapshotter"),
		metrics:     cfg.metrics,
		versions:    newVersionIndex(),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[string]*subscriptionState),
	}, nil
}

// Snapshot encodes value with the serializer registered for its dynamic type
// and stores it under key. It returns the stored version, which increases on
// every successful snapshot of the key. Unsupported types fail with an error
// matching serialize.ErrUnsupportedType and nothing is written.
func (s *Snapshotter) Snapshot(ctx context.Context, key string, value any, opts ...SnapshotOption) (version int64, err error) {
	typeName := unknownType
	defer func() {
		s.metrics.RecordOperation(observability.OpSnapshot, typeName, resultOf(err))
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if value == nil {
		return 0, ErrNilValue
	}

	t := reflect.TypeOf(value)
	spec, ok := s.registry.Resolve(t)
	if !ok {
		_, err := s.registry.Build(t)
		return 0, fmt.Errorf("runtime: snapshot %q: %w", key, err)
	}
	typeName = spec.Name()

	serializer, err := s.registry.Build(t)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := serializer.Write(serialize.NewEncoder(&buf), value); err != nil {
		return 0, fmt.Errorf("runtime: snapshot %q: %w", key, err)
	}
	payload := core.Payload{Format: core.FormatBinary, Type: typeName, Data: buf.Bytes()}

	cfg := snapshotConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	ttl := s.defaultTTL
	if cfg.ttl != nil {
		ttl = *cfg.ttl
	}

	fullKey := s.fullKey(key)
	floor, err := s.storedVersion(ctx, fullKey)
	if err != nil {
		return 0, err
	}
	version, rollback := s.versions.prepareStore(fullKey, typeName, floor)

	if err := s.ensureSubscription(fullKey); err != nil {
		rollback()
		s.stopSubscriptionIfEmpty(fullKey)
		return 0, err
	}

	if err := s.backend.Set(ctx, fullKey, payload, core.Metadata{
		TTL:     ttl,
		Version: version,
		Format:  payload.Format,
	}); err != nil {
		rollback()
		s.stopSubscriptionIfEmpty(fullKey)
		return 0, err
	}
	s.metrics.ObservePayload(typeName, len(payload.Data))

	if err := s.backend.Publish(ctx, fullKey, core.Message{
		Key:     fullKey,
		Type:    core.MessageTypeUpdate,
		Version: version,
		Format:  payload.Format,
		Origin:  s.id,
	}); err != nil {
		s.logger.Warn("publish after snapshot failed", zap.String("key", fullKey), zap.Error(err))
	}

	s.logger.Debug("snapshot stored",
		zap.String("key", fullKey),
		zap.String("type", typeName),
		zap.Int64("version", version),
		zap.Int("bytes", len(payload.Data)),
	)
	return version, nil
}

// Restore loads the snapshot stored under key and decodes it with the
// serializer registered for t. Missing keys return core.ErrNotFound.
func (s *Snapshotter) Restore(ctx context.Context, key string, t reflect.Type) (value any, err error) {
	typeName := unknownType
	defer func() {
		s.metrics.RecordOperation(observability.OpRestore, typeName, resultOf(err))
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spec, ok := s.registry.Resolve(t)
	if !ok {
		_, err := s.registry.Build(t)
		return nil, fmt.Errorf("runtime: restore %q: %w", key, err)
	}
	typeName = spec.Name()
	serializer, err := s.registry.Build(t)
	if err != nil {
		return nil, err
	}

	fullKey := s.fullKey(key)
	payload, err := s.load(ctx, fullKey)
	if err != nil {
		return nil, err
	}
	if payload.Format != core.FormatBinary {
		return nil, fmt.Errorf("%w: %q for key %s", ErrUnsupportedFormat, payload.Format, fullKey)
	}
	if payload.Type != typeName {
		return nil, fmt.Errorf("%w: key %s holds %s, want %s", ErrTypeMismatch, fullKey, payload.Type, typeName)
	}

	value, err = serialize.Unmarshal(serializer, payload.Data)
	if err != nil {
		s.logger.Warn("snapshot decode failed", zap.String("key", fullKey), zap.String("type", typeName), zap.Error(err))
		return nil, fmt.Errorf("runtime: restore %q: %w", key, err)
	}
	return value, nil
}

// RestoreAs is the generic form of Snapshotter.Restore.
func RestoreAs[T any](ctx context.Context, s *Snapshotter, key string) (T, error) {
	var zero T
	value, err := s.Restore(ctx, key, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: restored %T, want %s", serialize.ErrValueType, value, reflect.TypeFor[T]())
	}
	return typed, nil
}

// Invalidate removes the stored snapshot and stops tracking the key.
func (s *Snapshotter) Invalidate(ctx context.Context, key string) (err error) {
	typeName := unknownType
	defer func() {
		s.metrics.RecordOperation(observability.OpInvalidate, typeName, resultOf(err))
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	fullKey := s.fullKey(key)
	entry, ok := s.versions.lookup(fullKey)
	if !ok {
		return ErrUnknownKey
	}
	typeName = entry.typeName

	if err := s.backend.Delete(ctx, fullKey); err != nil {
		return err
	}

	s.versions.remove(fullKey)
	s.stopSubscription(fullKey)

	if err := s.backend.Publish(ctx, fullKey, core.Message{
		Key:    fullKey,
		Type:   core.MessageTypeInvalidate,
		Origin: s.id,
	}); err != nil {
		s.logger.Warn("publish after invalidate failed", zap.String("key", fullKey), zap.Error(err))
	}

	return nil
}

// Watch subscribes to change notifications for key. The subscription ends
// when ctx is done or it is closed.
func (s *Snapshotter) Watch(ctx context.Context, key string) (core.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.backend.Subscribe(ctx, s.fullKey(key))
}

// ID returns the origin identifier stamped on messages this snapshotter publishes.
func (s *Snapshotter) ID() string {
	return s.id
}

// Version reports the latest version known for a locally tracked key.
func (s *Snapshotter) Version(key string) (int64, bool) {
	entry, ok := s.versions.lookup(s.fullKey(key))
	return entry.version, ok
}

// Close terminates subscription processing and releases resources.
func (s *Snapshotter) Close() error {
	s.cancel()

	s.subMu.Lock()
	subs := make([]*subscriptionState, 0, len(s.subscribers))
	for _, state := range s.subscribers {
		subs = append(subs, state)
	}
	s.subscribers = make(map[string]*subscriptionState)
	s.subMu.Unlock()

	for _, state := range subs {
		state.cancel()
		state.wg.Wait()
	}
	return nil
}

func (s *Snapshotter) fullKey(key string) string {
	if s.namespace == "" {
		return key
	}
	if key == "" {
		return s.namespace
	}
	return fmt.Sprintf("%s:%s", s.namespace, key)
}

// storedVersion returns the version already in the backend for keys this
// process does not track yet, so a new writer continues the sequence.
func (s *Snapshotter) storedVersion(ctx context.Context, fullKey string) (int64, error) {
	if s.versions.hasEntry(fullKey) {
		return 0, nil
	}
	_, meta, err := s.backend.Get(ctx, fullKey)
	switch {
	case err == nil:
		return meta.Version, nil
	case errors.Is(err, core.ErrNotFound):
		return 0, nil
	default:
		return 0, err
	}
}

// load fetches the payload for fullKey, sharing one backend read between
// concurrent restores of the same key. The shared read ignores the
// cancellation of whichever caller started it; each caller stops waiting
// when its own ctx ends.
func (s *Snapshotter) load(ctx context.Context, fullKey string) (core.Payload, error) {
	readCtx := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(fullKey, func() (any, error) {
		payload, _, err := s.backend.Get(readCtx, fullKey)
		return payload, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return core.Payload{}, ctx.Err()
	}
	if res.Err != nil {
		return core.Payload{}, res.Err
	}
	payload := res.Val.(core.Payload)
	payload.Data = append([]byte(nil), payload.Data...)
	return payload, nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return observability.ResultOK
	case errors.Is(err, serialize.ErrUnsupportedType), errors.Is(err, serialize.ErrValueType):
		return observability.ResultUnsupported
	case errors.Is(err, serialize.ErrCorrupt):
		return observability.ResultCorrupt
	case errors.Is(err, core.ErrNotFound), errors.Is(err, ErrUnknownKey):
		return observability.ResultMissing
	default:
		return observability.ResultError
	}
}
