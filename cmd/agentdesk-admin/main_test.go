// ABOUTME: Tests for the admin CLI commands
// ABOUTME: Runs each subcommand against a temporary SQLite database

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/config"
	"github.com/2389/agentdesk/internal/store"
)

const adminSecret = "admin-test-secret-thirty-two-byte"

type harness struct {
	t      *testing.T
	dbPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	color.NoColor = true
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvDBPath, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(envJWTSecret, "")
	return &harness{t: t, dbPath: filepath.Join(t.TempDir(), "admin.db")}
}

// run executes the CLI and returns its stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", h.dbPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "args %v", args)
	return out
}

func (h *harness) store() *store.SQLiteStore {
	h.t.Helper()
	s, err := store.NewSQLiteStore(h.dbPath)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = s.Close() })
	return s
}

// lastField returns the final whitespace-separated word of out.
func lastField(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], "()")
}

func TestUserCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("user", "add", "--email", "ann@example.com")
	assert.Contains(t, out, "created user")
	id := strings.Fields(out)[3]

	_, err := h.run("user", "add", "--email", "ann@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	out = h.mustRun("user", "list")
	assert.Contains(t, out, "EMAIL")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "ann@example.com")

	out = h.mustRun("user", "set-email", id, "anne@example.com")
	assert.Contains(t, out, "anne@example.com")

	_, err = h.run("user", "set-email", "ghost", "x@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user ghost not found")

	h.mustRun("user", "delete", id)
	out = h.mustRun("user", "list")
	assert.NotContains(t, out, id)
}

func TestUserAdd_RequiresEmail(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("user", "add")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestAgentCommands(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("agent", "add", "--name", "Forecaster", "--type", "weather", "--temperature", "0.2")
	assert.Contains(t, out, `created weather agent "Forecaster"`)
	id := lastField(out)

	out = h.mustRun("agent", "list")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Forecaster")
	assert.Contains(t, out, "0.20")

	h.mustRun("agent", "set-prompt", id, "Answer in haiku.")
	h.mustRun("agent", "set-temperature", id, "1.5")

	got, err := h.store().GetAgentConfig(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Answer in haiku.", got.SystemPrompt)
	assert.InDelta(t, 1.5, got.Temperature, 1e-9)

	h.mustRun("agent", "delete", id)
	_, err = h.run("agent", "delete", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAgentAdd_Rejections(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no name", []string{"agent", "add"}, "--name"},
		{"unknown type", []string{"agent", "add", "--name", "x", "--type", "oracle"}, "unknown agent type"},
		{"temperature too high", []string{"agent", "add", "--name", "x", "--temperature", "3"}, "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := h.run("agent", "set-temperature", "a1", "warm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")
}

func TestHistoryCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.store()

	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "u1", Email: "u1@example.com", CreatedAt: time.Now()}))
	require.NoError(t, s.CreateAgentConfig(ctx, &store.AgentConfig{ID: "a1", Name: "Gen", Type: "generic", CreatedAt: time.Now()}))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertMessage(ctx, &store.Message{ID: "m1", UserID: "u1", AgentID: "a1", Kind: store.KindText, Sender: store.RoleUser, Text: "hello there", SentAt: base}))
	require.NoError(t, s.InsertMessage(ctx, &store.Message{ID: "m2", UserID: "u1", AgentID: "a1", Kind: store.KindImage, Sender: store.RoleUser, Image: "aGVsbG8=", SentAt: base.Add(time.Second)}))
	require.NoError(t, s.InsertMessage(ctx, &store.Message{ID: "m3", UserID: "u1", AgentID: "a1", Kind: store.KindText, Sender: store.RoleAgent, Text: "general kenobi", SentAt: base.Add(2 * time.Second)}))

	out := h.mustRun("history", "show", "--user", "u1", "--agent", "a1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "hello there")
	assert.Contains(t, lines[1], "[image, 8 bytes base64]")
	assert.Contains(t, lines[2], "AGENT")

	_, err := h.run("user", "delete", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear their history first")

	h.mustRun("history", "clear", "--user", "u1", "--agent", "a1")
	out = h.mustRun("history", "show", "--user", "u1", "--agent", "a1")
	assert.Equal(t, "no messages\n", out)

	h.mustRun("user", "delete", "u1")
}

func TestTokenIssue(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("user", "add", "--email", "tok@example.com")
	id := strings.Fields(out)[3]

	_, err := h.run("token", "issue", "--user", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JWT secret")

	t.Setenv(envJWTSecret, adminSecret)

	_, err = h.run("token", "issue", "--user", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	out = h.mustRun("token", "issue", "--user", id, "--ttl", "1h")
	verifier, err := auth.NewJWTVerifier([]byte(adminSecret))
	require.NoError(t, err)
	sub, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, id, sub)

	_, err = h.run("token", "issue", "--user", id, "--ttl", "0s")
	require.Error(t, err)
}

func TestLogLevelFlag(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--log-level", "loud", "user", "list")
	require.Error(t, err)
}
