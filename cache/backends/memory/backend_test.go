package memorybackend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/entitycache/valuesnap/cache/core"
)

func TestBackendSetGetCopiesData(t *testing.T) {
	backend := NewBackend()
	ctx := context.Background()

	data := []byte{1, 2, 3}
	if err := backend.Set(ctx, "k", core.Payload{Format: core.FormatBinary, Type: "t", Data: data}, core.Metadata{Version: 4}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	data[0] = 9

	payload, meta, err := backend.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if payload.Data[0] != 1 || payload.Type != "t" || payload.Format != core.FormatBinary {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if meta.Version != 4 || meta.TTL != 0 {
		t.Fatalf("unexpected metadata %#v", meta)
	}
}

func TestBackendExpiresEntries(t *testing.T) {
	backend := NewBackend()
	now := time.Unix(1000, 0)
	backend.now = func() time.Time { return now }
	ctx := context.Background()

	if err := backend.Set(ctx, "k", core.Payload{Data: []byte{1}}, core.Metadata{TTL: time.Minute}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	now = now.Add(30 * time.Second)
	_, meta, err := backend.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if meta.TTL != 30*time.Second {
		t.Fatalf("expected 30s remaining, got %v", meta.TTL)
	}

	now = now.Add(time.Minute)
	if _, _, err := backend.Get(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestBackendDelete(t *testing.T) {
	backend := NewBackend()
	ctx := context.Background()

	if err := backend.Set(ctx, "k", core.Payload{}, core.Metadata{}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, _, err := backend.Get(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := backend.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete of missing key returned error: %v", err)
	}
}

func TestBackendPublishSubscribe(t *testing.T) {
	backend := NewBackend()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := backend.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	msg := core.Message{Type: core.MessageTypeUpdate, Version: 2, Format: core.FormatBinary}
	if err := backend.Publish(context.Background(), "k", msg); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if err := backend.Publish(context.Background(), "other", msg); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	select {
	case got := <-sub.Channel():
		if got.Key != "k" || got.Version != 2 || got.Type != core.MessageTypeUpdate {
			t.Fatalf("unexpected message %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}

	cancel()
	select {
	case _, ok := <-sub.Channel():
		if ok {
			t.Fatalf("expected channel to be closed after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for channel close")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}

func TestBackendHonorsCancelledContext(t *testing.T) {
	backend := NewBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := backend.Set(ctx, "k", core.Payload{}, core.Metadata{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := backend.Subscribe(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
