// ABOUTME: Tests for the agentdesk server CLI helpers
// ABOUTME: Covers config scaffolding, health checks, and the agent listing

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/config"
)

func TestRenderConfig_Parses(t *testing.T) {
	t.Setenv("AGENTDESK_JWT_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv(config.EnvDBPath, "")

	content := renderConfig(initAnswers{
		HTTPAddr:    "localhost:9090",
		DBPath:      "/tmp/agentdesk-test.db",
		LLMProvider: "openai",
		LLMModel:    "gpt-4o-mini",
		LogLevel:    "debug",
		LogFormat:   "json",
	})

	cfg, err := config.Parse("agentdesk.yaml", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, "localhost:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/agentdesk-test.db", cfg.Database.Path)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, 8, cfg.Agents.Workers)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestRunInit_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "agentdesk.yaml")
	input := strings.Join([]string{path, "127.0.0.1:7000", "", "echo", "", "warn", ""}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(input), &out))
	assert.Contains(t, out.String(), "Config written to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `http_addr: "127.0.0.1:7000"`)
	assert.Contains(t, string(data), `provider: "echo"`)
	assert.Contains(t, string(data), `level: "warn"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestRunInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0600))

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(path+"\nno\n"), &out))
	assert.Contains(t, out.String(), "Aborted.")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestServerURL(t *testing.T) {
	tests := map[string]string{
		"0.0.0.0:8080":   "http://127.0.0.1:8080",
		":8080":          "http://127.0.0.1:8080",
		"localhost:9000": "http://localhost:9000",
	}
	for addr, want := range tests {
		cfg := &config.Config{Server: config.ServerConfig{HTTPAddr: addr}}
		assert.Equal(t, want, serverURL(cfg), addr)
	}
}

func fakeServer(t *testing.T, handler http.HandlerFunc) *config.Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &config.Config{Server: config.ServerConfig{HTTPAddr: srv.Listener.Addr().String()}}
}

func TestCheckHealth(t *testing.T) {
	cfg := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		_, _ = w.Write([]byte("ready (5 agent types)"))
	})
	var out bytes.Buffer
	require.NoError(t, checkHealth(context.Background(), cfg, &out))
	assert.Equal(t, "healthy: ready (5 agent types)\n", out.String())

	down := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
	})
	err := checkHealth(context.Background(), down, &out)
	assert.ErrorContains(t, err, "status 503: database unavailable")
}

func TestListAgents(t *testing.T) {
	t.Setenv("AGENTDESK_TOKEN", "tok")
	cfg := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a1","name":"Helper","type":"generic","system_prompt":null,"temperature":0.7}]`))
	})

	var out bytes.Buffer
	require.NoError(t, listAgents(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "a1")
	assert.Contains(t, out.String(), "generic")
	assert.Contains(t, out.String(), "0.70")
}

func TestListAgents_Unauthorized(t *testing.T) {
	t.Setenv("AGENTDESK_TOKEN", "")
	cfg := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"missing authorization header"}`))
	})

	err := listAgents(context.Background(), cfg, &bytes.Buffer{})
	assert.ErrorContains(t, err, "status 401: missing authorization header")
}
