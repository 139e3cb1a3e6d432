package core

import (
	"context"
	"errors"
	"time"
)

// Metadata carries auxiliary information about a stored snapshot.
type Metadata struct {
	TTL     time.Duration
	Version int64
	Format  string
}

// MessageType identifies the kind of pub/sub message emitted by a backend.
type MessageType string

const (
	// MessageTypeUpdate indicates a new snapshot version was stored.
	MessageTypeUpdate MessageType = "update"
	// MessageTypeInvalidate indicates the snapshot has been removed.
	MessageTypeInvalidate MessageType = "invalidate"
)

// Message represents a change notification from the backend.
type Message struct {
	Key     string
	Type    MessageType
	Version int64
	Format  string
	// Origin identifies the writer that produced the change, if known.
	Origin string
}

// ErrNotFound indicates the key does not exist in the backend.
var ErrNotFound = errors.New("core: snapshot not found")

// Subscription provides a stream of change notifications.
type Subscription interface {
	Channel() <-chan Message
	Close() error
}

// Cache abstracts the storage operations the snapshotter needs regardless of backend.
type Cache interface {
	Set(ctx context.Context, key string, payload Payload, meta Metadata) error
	Get(ctx context.Context, key string) (Payload, Metadata, error)
	Delete(ctx context.Context, key string) error
	Publish(ctx context.Context, key string, msg Message) error
	Subscribe(ctx context.Context, key string) (Subscription, error)
}
