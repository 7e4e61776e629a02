// ABOUTME: Tests for the completer implementations
// ABOUTME: Runs the OpenAI client against an httptest fixture and checks the echo completer

package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const completionFixture = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [
    {"index": 0, "message": {"role": "assistant", "content": "It is sunny."}, "finish_reason": "stop"}
  ]
}`

func TestOpenAI_Complete(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionFixture)
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL+"/v1/", "test-key", "gpt-4o", nil)
	reply, err := c.Complete(context.Background(), Request{
		System:      "You are a weather bot.",
		Prompt:      "Weather in Riga?",
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", reply)

	req := gjson.ParseBytes(body)
	assert.Equal(t, "gpt-4o", req.Get("model").String())
	assert.InDelta(t, 0.2, req.Get("temperature").Float(), 1e-9)
	assert.Equal(t, "system", req.Get("messages.0.role").String())
	assert.Equal(t, "Weather in Riga?", req.Get("messages.1.content").String())
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`)
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL+"/v1/", "", "gpt-4o", nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestEcho_ReturnsLastUserLine(t *testing.T) {
	prompt := "MEMORY START\nUSER: first\nAGENT: echo: first\nMEMORY END\nUSER: second"
	reply, err := Echo{}.Complete(context.Background(), Request{Prompt: prompt})
	require.NoError(t, err)
	assert.Equal(t, "echo: second", reply)
}

func TestEcho_EmptyPrompt(t *testing.T) {
	_, err := Echo{}.Complete(context.Background(), Request{Prompt: "  "})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNew(t *testing.T) {
	c, err := New("echo", "", "", "", nil)
	require.NoError(t, err)
	assert.IsType(t, Echo{}, c)

	c, err = New("openai", "http://localhost:1/v1/", "", "gpt-4o", nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, c)

	_, err = New("llama", "", "", "", nil)
	assert.Error(t, err)
}
