package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/entitycache/valuesnap/cache/core"
)

type subscriptionState struct {
	ctx          context.Context
	cancel       context.CancelFunc
	subscription core.Subscription
	wg           sync.WaitGroup
}

// ensureSubscription follows change notifications for a tracked key so that
// versions written by other snapshotters are observed and remote
// invalidations drop the key.
func (s *Snapshotter) ensureSubscription(key string) error {
	s.subMu.Lock()
	if state, ok := s.subscribers[key]; ok {
		ctxErr := state.ctx.Err()
		s.subMu.Unlock()
		if ctxErr != nil {
			state.wg.Wait()
			return s.ensureSubscription(key)
		}
		return nil
	}
	s.subMu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)
	sub, err := s.backend.Subscribe(ctx, key)
	if err != nil {
		cancel()
		return err
	}

	state := &subscriptionState{
		ctx:          ctx,
		cancel:       cancel,
		subscription: sub,
	}
	state.wg.Add(1)

	s.subMu.Lock()
	if existing, ok := s.subscribers[key]; ok {
		s.subMu.Unlock()
		state.cancel()
		state.wg.Done()
		_ = sub.Close()
		if existing.ctx.Err() != nil {
			existing.wg.Wait()
			return s.ensureSubscription(key)
		}
		return nil
	}
	s.subscribers[key] = state
	s.subMu.Unlock()

	go s.runSubscription(state, key)

	return nil
}

func (s *Snapshotter) runSubscription(state *subscriptionState, key string) {
	defer func() {
		s.removeSubscriber(key, state)
		state.cancel()
		_ = state.subscription.Close()
		state.wg.Done()
	}()

	ch := state.subscription.Channel()
	for {
		select {
		case <-state.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if stop := s.handleMessage(key, msg); stop {
				return
			}
		}
	}
}

func (s *Snapshotter) handleMessage(key string, msg core.Message) bool {
	if !s.versions.hasEntry(key) {
		return true
	}
	if msg.Origin != "" && msg.Origin == s.id {
		return false
	}

	switch msg.Type {
	case core.MessageTypeInvalidate:
		if s.versions.remove(key) {
			s.logger.Debug("remote invalidate", zap.String("key", key))
		}
		return true
	case core.MessageTypeUpdate, "":
		if s.versions.observe(key, msg.Version) {
			s.logger.Debug("remote snapshot observed", zap.String("key", key), zap.Int64("version", msg.Version))
		}
		return false
	default:
		s.logger.Warn("unrecognized message type", zap.String("key", key), zap.String("type", string(msg.Type)))
		return false
	}
}

func (s *Snapshotter) removeSubscriber(key string, state *subscriptionState) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if current, ok := s.subscribers[key]; ok && current == state {
		delete(s.subscribers, key)
	}
}

func (s *Snapshotter) stopSubscription(key string) {
	s.subMu.Lock()
	state, ok := s.subscribers[key]
	s.subMu.Unlock()
	if !ok {
		return
	}
	state.cancel()
	state.wg.Wait()
}

func (s *Snapshotter) stopSubscriptionIfEmpty(key string) {
	if s.versions.hasEntry(key) {
		return
	}
	s.stopSubscription(key)
}
