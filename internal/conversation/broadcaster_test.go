// ABOUTME: Tests for the pair-scoped message broadcaster
// ABOUTME: Covers fan-out, pair isolation, slow subscribers, and unsubscription

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/store"
)

func makeMessage(id, userID, agentID string) *store.Message {
	return &store.Message{
		ID:      id,
		UserID:  userID,
		AgentID: agentID,
		Kind:    store.KindText,
		Sender:  store.RoleUser,
		Text:    "hello from " + id,
		SentAt:  time.Now(),
	}
}

func receive(t *testing.T, ch <-chan *store.Message) *store.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "u1", "a1")
	ch2, _ := b.Subscribe(t.Context(), "u1", "a1")

	b.Publish(makeMessage("m1", "u1", "a1"))

	assert.Equal(t, "m1", receive(t, ch1).ID)
	assert.Equal(t, "m1", receive(t, ch2).ID)
}

func TestBroadcaster_PairsAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	mine, _ := b.Subscribe(t.Context(), "u1", "a1")
	otherAgent, _ := b.Subscribe(t.Context(), "u1", "a2")
	agentless, _ := b.Subscribe(t.Context(), "u1", "")

	b.Publish(makeMessage("m1", "u1", "a1"))

	assert.Equal(t, "m1", receive(t, mine).ID)
	assert.Empty(t, otherAgent)
	assert.Empty(t, agentless)
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "u1", "a1")
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(makeMessage("m", "u1", "a1"))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "u1", "a1")
	require.Equal(t, 1, b.Subscribers("u1", "a1"))

	cancel()
	require.Eventually(t, func() bool { return b.Subscribers("u1", "a1") == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)
}

func TestBroadcaster_UnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, id := b.Subscribe(t.Context(), "u1", "a1")
	b.Unsubscribe("u1", "a1", id)
	assert.NotPanics(t, func() { b.Unsubscribe("u1", "a1", id) })
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		b.Subscribe(ctx, "u1", "a1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Publish(makeMessage("m", "u1", "a1"))
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()
	assert.Eventually(t, func() bool { return b.Subscribers("u1", "a1") == 0 }, time.Second, 5*time.Millisecond)
}
