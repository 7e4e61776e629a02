// ABOUTME: Agent configuration persistence for the SQLite store
// ABOUTME: Admin CRUD over agent rows; the type key has no update path

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const agentColumns = `id, name, agent_type, system_prompt, temperature, created_at`

// CreateAgentConfig inserts a new agent configuration.
// Returns ErrConflict if the id is already used.
func (s *SQLiteStore) CreateAgentConfig(ctx context.Context, cfg *AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (id, name, agent_type, system_prompt, temperature, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			cfg.ID,
			cfg.Name,
			cfg.Type,
			nullString(cfg.SystemPrompt),
			cfg.Temperature,
			formatTime(cfg.CreatedAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", cfg.ID, "type", cfg.Type)
	return nil
}

// GetAgentConfig retrieves an agent configuration by ID.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgentConfig(ctx context.Context, id string) (*AgentConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)

	cfg, err := scanAgent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return cfg, nil
}

func scanAgent(scan func(dest ...any) error) (*AgentConfig, error) {
	var cfg AgentConfig
	var prompt sql.NullString
	var createdAt string
	if err := scan(&cfg.ID, &cfg.Name, &cfg.Type, &prompt, &cfg.Temperature, &createdAt); err != nil {
		return nil, err
	}
	cfg.SystemPrompt = prompt.String

	var err error
	if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &cfg, nil
}

// ListAgentConfigs returns agent configurations ordered by creation time.
func (s *SQLiteStore) ListAgentConfigs(ctx context.Context, limit, offset int) ([]*AgentConfig, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+agentColumns+`
		FROM agents
		ORDER BY created_at ASC, rowid ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	agents := []*AgentConfig{}
	for rows.Next() {
		cfg, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// UpdateAgentSystemPrompt replaces the agent's system prompt. An empty
// prompt clears it.
func (s *SQLiteStore) UpdateAgentSystemPrompt(ctx context.Context, id, prompt string) (*AgentConfig, error) {
	if err := s.updateAgent(ctx, id, `UPDATE agents SET system_prompt = ? WHERE id = ?`, nullString(prompt)); err != nil {
		return nil, err
	}
	s.logger.Debug("updated agent system prompt", "id", id)
	return s.GetAgentConfig(ctx, id)
}

// UpdateAgentTemperature sets the agent's sampling temperature.
func (s *SQLiteStore) UpdateAgentTemperature(ctx context.Context, id string, temperature float64) (*AgentConfig, error) {
	if err := ValidateTemperature(temperature); err != nil {
		return nil, err
	}
	if err := s.updateAgent(ctx, id, `UPDATE agents SET temperature = ? WHERE id = ?`, temperature); err != nil {
		return nil, err
	}
	s.logger.Debug("updated agent temperature", "id", id, "temperature", temperature)
	return s.GetAgentConfig(ctx, id)
}

func (s *SQLiteStore) updateAgent(ctx context.Context, id, query string, value any) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, value, id)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}
	return nil
}

// DeleteAgentConfig removes an agent configuration. Deletion is rejected
// with ErrConflict while any message still references the agent.
func (s *SQLiteStore) DeleteAgentConfig(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: agent has conversation history", ErrConflict)
	case err != nil:
		return fmt.Errorf("deleting agent: %w", err)
	}

	s.logger.Debug("deleted agent", "id", id)
	return nil
}

// CountAgentConfigs returns the number of configured agents.
func (s *SQLiteStore) CountAgentConfigs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting agents: %w", err)
	}
	return n, nil
}
