// ABOUTME: In-memory fan-out of newly persisted messages to live subscribers
// ABOUTME: Subscriptions are scoped to one (user, agent) pair and end with their context

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/agentdesk/internal/store"
)

// subscriberBuffer is the channel capacity for each subscriber.
const subscriberBuffer = 64

// Broadcaster publishes persisted messages to subscribers of their pair.
// Slow subscribers miss messages rather than block the pipeline.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.Message // pair key -> sub id -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *store.Message),
		logger:      logger.With("component", "broadcaster"),
	}
}

func pairKey(userID, agentID string) string {
	return userID + "\x00" + agentID
}

// Subscribe registers for messages of the pair. The channel is closed when
// ctx is done, on Unsubscribe, or on Close.
func (b *Broadcaster) Subscribe(ctx context.Context, userID, agentID string) (<-chan *store.Message, string) {
	key := pairKey(userID, agentID)
	subID := uuid.NewString()
	ch := make(chan *store.Message, subscriberBuffer)

	b.mu.Lock()
	if b.subscribers[key] == nil {
		b.subscribers[key] = make(map[string]chan *store.Message)
	}
	b.subscribers[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "user_id", userID, "agent_id", agentID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(userID, agentID, subID)
	}()

	return ch, subID
}

// Publish delivers msg to every subscriber of its pair without blocking.
func (b *Broadcaster) Publish(msg *store.Message) {
	key := pairKey(msg.UserID, msg.AgentID)

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[key] {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped message for slow subscriber", "sub_id", subID, "message_id", msg.ID)
		}
	}
}

// Subscribers reports how many subscriptions the pair has.
func (b *Broadcaster) Subscribers(userID, agentID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[pairKey(userID, agentID)])
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(userID, agentID, subID string) {
	key := pairKey(userID, agentID)

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[key]
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed", "user_id", userID, "agent_id", agentID, "sub_id", subID)
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, key)
	}
}
