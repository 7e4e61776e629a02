// ABOUTME: History store for ordered, append-only conversation logs per (user, agent) pair
// ABOUTME: Wraps store.MessageStore with id generation, error classification, and soft clear

package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentdesk/internal/store"
)

// PersistenceError reports a storage failure that is not a validation
// problem or an id conflict.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AppendParams describes one message to append.
type AppendParams struct {
	UserID  string
	AgentID string
	Role    store.Role
	Kind    store.MessageKind
	Text    string
	Image   string
	SentAt  time.Time
}

// Store is the conversation history store.
type Store struct {
	messages store.MessageStore
	logger   *slog.Logger
	newID    func() string
}

// New creates a history Store over the given message store.
func New(messages store.MessageStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		messages: messages,
		logger:   logger.With("component", "history"),
		newID:    func() string { return uuid.New().String() },
	}
}

// Append validates and persists one message, returning the stored value.
//
// Returns a *store.ValidationError for kind/payload mismatches,
// store.ErrConflict on an id collision, and *PersistenceError for any other
// storage failure. The underlying insert is rolled back before returning.
func (s *Store) Append(ctx context.Context, p AppendParams) (*store.Message, error) {
	msg := &store.Message{
		ID:      s.newID(),
		UserID:  p.UserID,
		AgentID: p.AgentID,
		Kind:    p.Kind,
		Sender:  p.Role,
		Text:    p.Text,
		Image:   p.Image,
		SentAt:  p.SentAt.UTC(),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	err := s.messages.InsertMessage(ctx, msg)
	var vErr *store.ValidationError
	switch {
	case err == nil:
		return msg, nil
	case errors.Is(err, store.ErrConflict):
		s.logger.Warn("message id collision", "id", msg.ID)
		return nil, store.ErrConflict
	case errors.As(err, &vErr):
		return nil, err
	default:
		return nil, &PersistenceError{Op: "append", Err: err}
	}
}

// ListByPair returns every message of the pair in ascending send order.
// An empty slice means the pair has no history.
func (s *Store) ListByPair(ctx context.Context, userID, agentID string) ([]*store.Message, error) {
	msgs, err := s.messages.ListMessagesByPair(ctx, userID, agentID)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	return msgs, nil
}

// ClearPair deletes the pair's whole history. It reports true when the
// delete committed, including when nothing matched, and false when the
// store failed. Failures are logged, never returned.
func (s *Store) ClearPair(ctx context.Context, userID, agentID string) bool {
	deleted, err := s.messages.DeleteMessagesByPair(ctx, userID, agentID)
	if err != nil {
		s.logger.Error("failed to clear history",
			"user_id", userID,
			"agent_id", agentID,
			"error", err)
		return false
	}
	s.logger.Info("cleared history", "user_id", userID, "agent_id", agentID, "deleted", deleted)
	return true
}
