// Package store provides persistent storage for agentdesk using SQLite.
//
// # Architecture
//
// The store package splits its surface into three interfaces:
//
//   - UserStore: registration, lookup, email update, guarded deletion
//   - AgentConfigStore: admin CRUD over agent configurations
//   - MessageStore: append, ordered listing and bulk clear per pair
//
// Store embeds all three. SQLiteStore implements Store in a single struct;
// MockStore is an in-memory implementation with the same ordering and
// conflict rules.
//
// # Data Models
//
//   - User: identity anchor with a unique email
//   - AgentConfig: type key, optional system prompt, temperature
//   - Message: one TEXT or IMAGE turn owned by a (user, agent) pair
//
// # Ordering
//
// Timestamps are stored as fixed-width UTC text with nanosecond precision,
// so ORDER BY sent_at is chronological. Ties are broken by rowid, which is
// insertion order.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrConflict: duplicate id or email, or a delete blocked by history
//   - *ValidationError: malformed entity rejected before any write
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(path) with a
// t.TempDir() path for integration tests.
package store
