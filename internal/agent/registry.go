// ABOUTME: Registry mapping agent type keys to factories that build live handles
// ABOUTME: Resolves a stored agent configuration into a handle on every call, with no caching

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/agentdesk/internal/store"
)

// Handle is a live agent for the duration of one request.
type Handle interface {
	Process(ctx context.Context, prompt string) (string, error)
}

// HandleFunc adapts a function to the Handle interface.
type HandleFunc func(ctx context.Context, prompt string) (string, error)

// Process calls f(ctx, prompt).
func (f HandleFunc) Process(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Spec is the configuration a factory builds a handle from.
type Spec struct {
	AgentID      string
	Name         string
	Type         string
	SystemPrompt string
	Temperature  float64
}

// Factory constructs a handle for one agent configuration.
type Factory func(spec Spec) (Handle, error)

// Bound is a resolved handle together with the spec it was built from.
type Bound struct {
	Handle
	Spec Spec
}

// ConfigStore is what the registry needs from storage.
type ConfigStore interface {
	GetAgentConfig(ctx context.Context, id string) (*store.AgentConfig, error)
}

// Registry maps type keys to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	configs   ConfigStore
	logger    *slog.Logger
}

// NewRegistry creates an empty registry reading agent configurations from configs.
func NewRegistry(configs ConfigStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		configs:   configs,
		logger:    logger.With("component", "agent-registry"),
	}
}

// Register associates a type key with a factory.
// Returns ErrDuplicateType if the key is already taken.
func (r *Registry) Register(typeKey string, factory Factory) error {
	if typeKey == "" {
		return errors.New("type key is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for %q is nil", typeKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeKey]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typeKey)
	}
	r.factories[typeKey] = factory
	r.logger.Debug("registered agent type", "type", typeKey)
	return nil
}

// Types returns the registered type keys, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether a factory is registered for typeKey.
func (r *Registry) Has(typeKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeKey]
	return ok
}

// Resolve loads the agent's configuration and constructs a fresh handle.
//
// Returns ErrAgentNotFound when no configuration exists (including an
// empty id), ErrUnknownType when the type key is not registered, and a
// *Failure with Op "construct" when the factory fails or panics.
func (r *Registry) Resolve(ctx context.Context, agentID string) (*Bound, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: no agent id", ErrAgentNotFound)
	}

	cfg, err := r.configs.GetAgentConfig(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading agent config %s: %w", agentID, err)
	}

	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (agent %s)", ErrUnknownType, cfg.Type, agentID)
	}

	spec := Spec{
		AgentID:      cfg.ID,
		Name:         cfg.Name,
		Type:         cfg.Type,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
	}

	h, err := construct(factory, spec)
	if err != nil {
		return nil, &Failure{Op: "construct", AgentID: agentID, Err: err}
	}
	return &Bound{Handle: h, Spec: spec}, nil
}

func construct(factory Factory, spec Spec) (h Handle, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()

	h, err = factory(spec)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, errors.New("factory returned nil handle")
	}
	return h, nil
}
