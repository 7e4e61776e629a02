// ABOUTME: Conversation message persistence for the SQLite store
// ABOUTME: Append-only per (user, agent) pair, ordered by sent_at then insertion order

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertMessage validates and appends a message in a single transaction.
// Returns a *ValidationError for kind/payload mismatches and ErrConflict on
// an id collision.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, user_id, agent_id, message_type, sender, message_text, message_image, sent_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			msg.UserID,
			nullString(msg.AgentID),
			string(msg.Kind),
			string(msg.Sender),
			nullString(msg.Text),
			nullString(msg.Image),
			formatTime(msg.SentAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "user_id", msg.UserID, "agent_id", msg.AgentID, "sender", msg.Sender)
	return nil
}

// pairFilter returns the WHERE clause and args selecting one pair. An empty
// agentID selects the agent-less context.
func pairFilter(userID, agentID string) (string, []any) {
	if agentID == "" {
		return `user_id = ? AND agent_id IS NULL`, []any{userID}
	}
	return `user_id = ? AND agent_id = ?`, []any{userID, agentID}
}

// ListMessagesByPair returns every message of the pair in ascending send
// order. Returns an empty slice when the pair has no history.
func (s *SQLiteStore) ListMessagesByPair(ctx context.Context, userID, agentID string) ([]*Message, error) {
	where, args := pairFilter(userID, agentID)
	query := `
		SELECT id, user_id, agent_id, message_type, sender, message_text, message_image, sent_at
		FROM messages
		WHERE ` + where + `
		ORDER BY sent_at ASC, rowid ASC
	`

	messages := []*Message{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying messages: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var msg Message
			var agentID, text, image sql.NullString
			var kind, sender, sentAt string

			if err := rows.Scan(&msg.ID, &msg.UserID, &agentID, &kind, &sender, &text, &image, &sentAt); err != nil {
				return fmt.Errorf("scanning message row: %w", err)
			}

			msg.AgentID = agentID.String
			msg.Kind = MessageKind(kind)
			msg.Sender = Role(sender)
			msg.Text = text.String
			msg.Image = image.String
			if msg.SentAt, err = parseTime(sentAt); err != nil {
				return fmt.Errorf("parsing message sent_at: %w", err)
			}

			messages = append(messages, &msg)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating message rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteMessagesByPair removes the whole history of a pair atomically and
// returns the number of rows deleted.
func (s *SQLiteStore) DeleteMessagesByPair(ctx context.Context, userID, agentID string) (int64, error) {
	where, args := pairFilter(userID, agentID)

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE `+where, args...)
		if err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("cleared pair history", "user_id", userID, "agent_id", agentID, "deleted", deleted)
	return deleted, nil
}
