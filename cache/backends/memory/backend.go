// Package memorybackend provides an in-process core.Cache, useful for tests and
// single-process deployments where snapshots need not outlive the process.
package memorybackend

import (
	"context"
	"sync"
	"time"

	"github.com/entitycache/valuesnap/cache/core"
)

const subscriberBuffer = 16

type entry struct {
	payload   core.Payload
	meta      core.Metadata
	expiresAt time.Time
}

// Backend keeps snapshots in a map guarded by a mutex.
type Backend struct {
	mu      sync.Mutex
	entries map[string]entry
	subs    map[string]map[*subscription]struct{}
	now     func() time.Time
}

// NewBackend constructs an empty Backend.
func NewBackend() *Backend {
	return &Backend{
		entries: make(map[string]entry),
		subs:    make(map[string]map[*subscription]struct{}),
		now:     time.Now,
	}
}

// Set stores a copy of the payload. A positive TTL expires the entry lazily on read.
func (b *Backend) Set(ctx context.Context, key string, payload core.Payload, meta core.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := entry{
		payload: core.Payload{
			Format: payload.Format,
			Type:   payload.Type,
			Data:   append([]byte(nil), payload.Data...),
		},
		meta: meta,
	}
	if meta.TTL > 0 {
		stored.expiresAt = b.now().Add(meta.TTL)
	}

	b.mu.Lock()
	b.entries[key] = stored
	b.mu.Unlock()
	return nil
}

// Get returns the stored payload, or core.ErrNotFound when missing or expired.
func (b *Backend) Get(ctx context.Context, key string) (core.Payload, core.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return core.Payload{}, core.Metadata{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.entries[key]
	if !ok {
		return core.Payload{}, core.Metadata{}, core.ErrNotFound
	}
	meta := stored.meta
	if !stored.expiresAt.IsZero() {
		remaining := stored.expiresAt.Sub(b.now())
		if remaining <= 0 {
			delete(b.entries, key)
			return core.Payload{}, core.Metadata{}, core.ErrNotFound
		}
		meta.TTL = remaining
	}

	payload := stored.payload
	payload.Data = append([]byte(nil), stored.payload.Data...)
	return payload, meta, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

// Publish delivers msg to every subscriber of key. Slow subscribers drop messages
// once their buffer is full.
func (b *Backend) Publish(ctx context.Context, key string, msg core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg.Key = key

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[key] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscription for key that lasts until Close or ctx is done.
func (b *Backend) Subscribe(ctx context.Context, key string) (core.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{
		backend: b,
		key:     key,
		ch:      make(chan core.Message, subscriberBuffer),
	}

	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*subscription]struct{})
	}
	b.subs[key][sub] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { _ = sub.Close() })
	return sub, nil
}

func (b *Backend) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.key]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subs, sub.key)
	}
	close(sub.ch)
}

type subscription struct {
	backend   *Backend
	key       string
	ch        chan core.Message
	closeOnce sync.Once
}

func (s *subscription) Channel() <-chan core.Message {
	return s.ch
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.backend.remove(s)
	})
	return nil
}
