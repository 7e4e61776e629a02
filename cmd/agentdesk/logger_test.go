// ABOUTME: Tests for the server log handler setup
// ABOUTME: Covers JSON level filtering and the colored text handler

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/config"
)

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.With("component", "gateway").Warn("shown", "n", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "gateway", rec["component"])
	assert.EqualValues(t, 3, rec["n"])
}

func TestColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.With("component", "pool").Debug("waiting", "workers", 8)
	logger.WithGroup("req").Error("failed", "path", "/api/send", "error", "boom went the disk")

	out := buf.String()
	assert.Contains(t, out, "DBG waiting component=pool workers=8")
	assert.Contains(t, out, `ERR failed req.path=/api/send req.error="boom went the disk"`)
}

func TestColorHandler_ConcurrentWrites(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf safeBuffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.With("worker", i).Info("tick")
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, strings.Count(buf.String(), "INF tick worker="))
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
