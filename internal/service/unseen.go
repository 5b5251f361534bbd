package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/metrics"
	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/repository"
	"github.com/quickchat/internal/ws"
)

// UnseenReconciler keeps an approximate per-user cache of unseen counts keyed by
// counterpart. The store is authoritative: a pair is recomputed on mark, on focus,
// on snapshot and periodically by Run.
//
// A user's cache entry exists only after a full snapshot; pair recomputes never
// create a partial one.
type UnseenReconciler struct {
	messages MessageStore
	pusher   Pusher

	mu     sync.Mutex
	focus  map[string]string         // user → counterpart whose conversation is open
	counts map[string]map[string]int // receiver → sender → unseen
}

func NewUnseenReconciler(messages MessageStore, pusher Pusher) *UnseenReconciler {
	return &UnseenReconciler{
		messages: messages,
		pusher:   pusher,
		focus:    make(map[string]string),
		counts:   make(map[string]map[string]int),
	}
}

// OnMessagePersisted counts m as unseen and pushes the pair's count to the receiver.
// Nothing changes while the receiver has the sender's conversation open.
func (r *UnseenReconciler) OnMessagePersisted(ctx context.Context, m *model.Message) {
	r.mu.Lock()
	if r.focus[m.ReceiverID] == m.SenderID {
		r.mu.Unlock()
		return
	}
	set, cached := r.counts[m.ReceiverID]
	n := 0
	if cached {
		set[m.SenderID]++
		n = set[m.SenderID]
	}
	r.mu.Unlock()

	if !cached {
		var err error
		if n, err = r.recompute(ctx, m.ReceiverID, m.SenderID); err != nil {
			logger.Errorf("unseen.OnMessagePersisted: %v", err)
			return
		}
	}
	r.push(m.ReceiverID, m.SenderID, n)
}

// MarkSeen flips a message to seen. Only its receiver may do that.
func (r *UnseenReconciler) MarkSeen(ctx context.Context, userID, messageID string) error {
	m, err := r.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if m.ReceiverID != userID {
		return ErrForbidden
	}
	if _, err := r.messages.MarkSeen(ctx, messageID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	n, err := r.recompute(ctx, m.ReceiverID, m.SenderID)
	if err != nil {
		// seen is already stored; the cache catches up on the next resync
		logger.Errorf("unseen.MarkSeen: %v", err)
		return nil
	}
	r.push(m.ReceiverID, m.SenderID, n)
	return nil
}

// SidebarSnapshot reads all unseen counts of userID from the store and replaces the cache.
func (r *UnseenReconciler) SidebarSnapshot(ctx context.Context, userID string) (map[string]int, error) {
	fresh, err := r.messages.UnseenBySender(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	r.mu.Lock()
	if old, ok := r.counts[userID]; ok && !maps.Equal(old, fresh) {
		metrics.UnseenDrift.Inc()
	}
	r.counts[userID] = fresh
	r.mu.Unlock()
	return maps.Clone(fresh), nil
}

// SetFocus records which conversation userID has open; empty clears it.
func (r *UnseenReconciler) SetFocus(ctx context.Context, userID, counterpartID string) {
	r.mu.Lock()
	if counterpartID == "" {
		delete(r.focus, userID)
	} else {
		r.focus[userID] = counterpartID
	}
	r.mu.Unlock()

	if counterpartID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := r.recompute(ctx, userID, counterpartID)
	if err != nil {
		logger.Errorf("unseen.SetFocus: %v", err)
		return
	}
	r.push(userID, counterpartID, n)
}

func (r *UnseenReconciler) Focus(userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focus[userID]
}

// Forget drops focus and cache of a user who went offline.
func (r *UnseenReconciler) Forget(userID string) {
	r.mu.Lock()
	delete(r.focus, userID)
	delete(r.counts, userID)
	r.mu.Unlock()
}

// Cached returns a copy of the cached counts; nil when userID has no snapshot.
func (r *UnseenReconciler) Cached(userID string) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.counts[userID]
	if !ok {
		return nil
	}
	return maps.Clone(set)
}

// Run resyncs every cached user from the store each interval until ctx is done.
func (r *UnseenReconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.resyncAll(ctx)
		}
	}
}

func (r *UnseenReconciler) resyncAll(ctx context.Context) {
	defer logger.DeferLogDuration("unseen.resyncAll", time.Now())()
	r.mu.Lock()
	users := make([]string, 0, len(r.counts))
	for uid := range r.counts {
		users = append(users, uid)
	}
	r.mu.Unlock()

	for _, uid := range users {
		if ctx.Err() != nil {
			return
		}
		fresh, err := r.messages.UnseenBySender(ctx, uid)
		if err != nil {
			logger.Errorf("unseen.resync user=%s: %v", uid, err)
			continue
		}
		metrics.UnseenResyncs.Inc()
		r.mu.Lock()
		// user may have gone offline meanwhile
		if old, ok := r.counts[uid]; ok {
			if !maps.Equal(old, fresh) {
				metrics.UnseenDrift.Inc()
			}
			r.counts[uid] = fresh
		}
		r.mu.Unlock()
	}
}

// recompute reads the authoritative count for one pair and refreshes the cache entry
// if the receiver has one.
func (r *UnseenReconciler) recompute(ctx context.Context, receiverID, senderID string) (int, error) {
	n, err := r.messages.CountUnseen(ctx, receiverID, senderID)
	if err != nil {
		return 0, fmt.Errorf("unseen.recompute %s←%s: %w", receiverID, senderID, err)
	}
	metrics.UnseenResyncs.Inc()
	r.mu.Lock()
	if set, ok := r.counts[receiverID]; ok {
		if set[senderID] != n {
			metrics.UnseenDrift.Inc()
		}
		if n == 0 {
			delete(set, senderID)
		} else {
			set[senderID] = n
		}
	}
	r.mu.Unlock()
	return n, nil
}

func (r *UnseenReconciler) push(receiverID, senderID string, n int) {
	r.pusher.PushToUser(receiverID, ws.OutgoingMessage{
		Type:    ws.EventUnseenCount,
		Payload: ws.UnseenCountPayload{UserID: senderID, Count: n},
	})
}
