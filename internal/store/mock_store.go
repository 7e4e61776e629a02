// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while keeping the same ordering and conflict rules

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	users    map[string]*User        // keyed by user ID
	emails   map[string]string       // email -> user ID
	agents   map[string]*AgentConfig // keyed by agent ID
	agentSeq []string                // agent IDs in insertion order
	userSeq  []string                // user IDs in insertion order
	messages []*Message              // all messages in insertion order
	ids      map[string]bool         // message IDs already used

	// InsertHook, when set, is consulted before every InsertMessage and its
	// error (if any) is returned instead of storing the message.
	InsertHook func(msg *Message) error

	// ListErr, when set, is returned by ListMessagesByPair.
	ListErr error

	// DeleteErr, when set, is returned by DeleteMessagesByPair.
	DeleteErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:  make(map[string]*User),
		emails: make(map[string]string),
		agents: make(map[string]*AgentConfig),
		ids:    make(map[string]bool),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	if user.Email == "" {
		return &ValidationError{Field: "email", Reason: "required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.emails[user.Email]; ok {
		return ErrConflict
	}

	u := *user
	m.users[u.ID] = &u
	m.emails[u.Email] = u.ID
	m.userSeq = append(m.userSeq, u.ID)
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	id, ok := m.emails[email]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetUser(ctx, id)
}

// ListUsers returns users in insertion order.
func (m *MockStore) ListUsers(ctx context.Context, limit, offset int) ([]*User, error) {
	limit, offset = clampPage(limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []*User{}
	for i := offset; i < len(m.userSeq) && len(users) < limit; i++ {
		u := *m.users[m.userSeq[i]]
		users = append(users, &u)
	}
	return users, nil
}

// UpdateUserEmail changes a user's email.
func (m *MockStore) UpdateUserEmail(ctx context.Context, id, email string) (*User, error) {
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if owner, taken := m.emails[email]; taken && owner != id {
		return nil, ErrConflict
	}
	delete(m.emails, u.Email)
	u.Email = email
	m.emails[email] = id

	result := *u
	return &result, nil
}

// DeleteUser removes a user unless messages reference it.
func (m *MockStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for _, msg := range m.messages {
		if msg.UserID == id {
			return fmt.Errorf("%w: user has conversation history", ErrConflict)
		}
	}
	delete(m.emails, u.Email)
	delete(m.users, id)
	m.userSeq = removeID(m.userSeq, id)
	return nil
}

// CountUsers returns the number of users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// CreateAgentConfig stores a new agent configuration.
func (m *MockStore) CreateAgentConfig(ctx context.Context, cfg *AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[cfg.ID]; ok {
		return ErrConflict
	}
	c := *cfg
	m.agents[c.ID] = &c
	m.agentSeq = append(m.agentSeq, c.ID)
	return nil
}

// GetAgentConfig retrieves an agent configuration by ID.
func (m *MockStore) GetAgentConfig(ctx context.Context, id string) (*AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// ListAgentConfigs returns agent configurations in insertion order.
func (m *MockStore) ListAgentConfigs(ctx context.Context, limit, offset int) ([]*AgentConfig, error) {
	limit, offset = clampPage(limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := []*AgentConfig{}
	for i := offset; i < len(m.agentSeq) && len(agents) < limit; i++ {
		c := *m.agents[m.agentSeq[i]]
		agents = append(agents, &c)
	}
	return agents, nil
}

// UpdateAgentSystemPrompt replaces an agent's system prompt.
func (m *MockStore) UpdateAgentSystemPrompt(ctx context.Context, id, prompt string) (*AgentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.SystemPrompt = prompt
	result := *c
	return &result, nil
}

// UpdateAgentTemperature sets an agent's temperature.
func (m *MockStore) UpdateAgentTemperature(ctx context.Context, id string, temperature float64) (*AgentConfig, error) {
	if err := ValidateTemperature(temperature); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Temperature = temperature
	result := *c
	return &result, nil
}

// DeleteAgentConfig removes an agent unless messages reference it.
func (m *MockStore) DeleteAgentConfig(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[id]; !ok {
		return ErrNotFound
	}
	for _, msg := range m.messages {
		if msg.AgentID == id {
			return fmt.Errorf("%w: agent has conversation history", ErrConflict)
		}
	}
	delete(m.agents, id)
	m.agentSeq = removeID(m.agentSeq, id)
	return nil
}

// CountAgentConfigs returns the number of agent configurations.
func (m *MockStore) CountAgentConfigs(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents), nil
}

// InsertMessage appends a message.
func (m *MockStore) InsertMessage(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if m.InsertHook != nil {
		if err := m.InsertHook(msg); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids[msg.ID] {
		return ErrConflict
	}
	if _, ok := m.users[msg.UserID]; !ok {
		return errors.New("inserting message: FOREIGN KEY constraint failed")
	}
	if msg.AgentID != "" {
		if _, ok := m.agents[msg.AgentID]; !ok {
			return errors.New("inserting message: FOREIGN KEY constraint failed")
		}
	}

	c := *msg
	c.SentAt = c.SentAt.UTC()
	m.messages = append(m.messages, &c)
	m.ids[c.ID] = true
	return nil
}

// ListMessagesByPair returns the pair's messages ordered by sent_at, ties
// in insertion order.
func (m *MockStore) ListMessagesByPair(ctx context.Context, userID, agentID string) ([]*Message, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*Message{}
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.AgentID == agentID {
			c := *msg
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SentAt.Before(result[j].SentAt)
	})
	return result, nil
}

// DeleteMessagesByPair removes the pair's messages.
func (m *MockStore) DeleteMessagesByPair(ctx context.Context, userID, agentID string) (int64, error) {
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.AgentID == agentID {
			deleted++
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
	return deleted, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
