// ABOUTME: Store interface and data types for agentdesk persistence
// ABOUTME: Defines User, AgentConfig, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a create or update collides with an existing
// row (duplicate id or email), or a delete is blocked by referencing messages.
var ErrConflict = errors.New("conflict")

// ValidationError reports a malformed entity rejected before persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MessageKind is the payload kind of a message.
type MessageKind string

const (
	KindText  MessageKind = "TEXT"
	KindImage MessageKind = "IMAGE"
)

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	return k == KindText || k == KindImage
}

// Role identifies who sent a message.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent
}

// DefaultTemperature is used for agent configs created without one.
const DefaultTemperature = 0.7

// User is the identity anchor for a conversation participant.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// AgentConfig is a named, configurable conversational backend.
type AgentConfig struct {
	ID           string
	Name         string
	Type         string // registry key, e.g. "generic", "weather"
	SystemPrompt string // empty when not set
	Temperature  float64
	CreatedAt    time.Time
}

// Message is one turn in a conversation. Exactly one of Text and Image is
// populated, matching Kind.
type Message struct {
	ID      string
	UserID  string
	AgentID string // empty for an agent-less context
	Kind    MessageKind
	Sender  Role
	Text    string
	Image   string // base64 encoded
	SentAt  time.Time
}

// Validate checks the kind/payload invariant and required fields.
func (m *Message) Validate() error {
	if m.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if !m.Sender.Valid() {
		return &ValidationError{Field: "sender", Reason: fmt.Sprintf("unknown role %q", m.Sender)}
	}
	switch m.Kind {
	case KindText:
		if m.Text == "" {
			return &ValidationError{Field: "text", Reason: "required for TEXT messages"}
		}
		if m.Image != "" {
			return &ValidationError{Field: "image", Reason: "must be empty for TEXT messages"}
		}
	case KindImage:
		if m.Image == "" {
			return &ValidationError{Field: "image", Reason: "required for IMAGE messages"}
		}
		if m.Text != "" {
			return &ValidationError{Field: "text", Reason: "must be empty for IMAGE messages"}
		}
	default:
		return &ValidationError{Field: "message_type", Reason: fmt.Sprintf("unknown kind %q", m.Kind)}
	}
	if m.SentAt.IsZero() {
		return &ValidationError{Field: "sent_at", Reason: "required"}
	}
	return nil
}

// Validate checks the mutable fields of an agent config.
func (a *AgentConfig) Validate() error {
	if a.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if a.Type == "" {
		return &ValidationError{Field: "type", Reason: "required"}
	}
	return ValidateTemperature(a.Temperature)
}

// ValidateTemperature checks that t is within the range accepted by chat
// completion backends.
func ValidateTemperature(t float64) error {
	if t < 0 || t > 2 {
		return &ValidationError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	return nil
}

// UserStore defines user persistence
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)
	UpdateUserEmail(ctx context.Context, id, email string) (*User, error)
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)
}

// AgentConfigStore defines agent configuration persistence
type AgentConfigStore interface {
	CreateAgentConfig(ctx context.Context, cfg *AgentConfig) error
	GetAgentConfig(ctx context.Context, id string) (*AgentConfig, error)
	ListAgentConfigs(ctx context.Context, limit, offset int) ([]*AgentConfig, error)
	UpdateAgentSystemPrompt(ctx context.Context, id, prompt string) (*AgentConfig, error)
	UpdateAgentTemperature(ctx context.Context, id string, temperature float64) (*AgentConfig, error)
	DeleteAgentConfig(ctx context.Context, id string) error
	CountAgentConfigs(ctx context.Context) (int, error)
}

// MessageStore defines conversation history persistence. Each method runs
// in exactly one transaction.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *Message) error
	ListMessagesByPair(ctx context.Context, userID, agentID string) ([]*Message, error)
	DeleteMessagesByPair(ctx context.Context, userID, agentID string) (int64, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	UserStore
	AgentConfigStore
	MessageStore

	// Ping checks that the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// clampPage normalizes list pagination parameters.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
