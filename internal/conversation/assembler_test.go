// ABOUTME: Tests for the transcript assembler
// ABOUTME: Checks markers, role lines, image rows, exclusion, windowing, and storage errors

package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/store"
)

type staticHistory struct {
	msgs []*store.Message
	err  error
}

func (h staticHistory) ListByPair(context.Context, string, string) ([]*store.Message, error) {
	return h.msgs, h.err
}

func historyOf(lines ...string) []*store.Message {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := make([]*store.Message, 0, len(lines))
	for i, l := range lines {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAgent
		}
		msgs = append(msgs, &store.Message{
			ID:     string(rune('a' + i)),
			Kind:   store.KindText,
			Sender: role,
			Text:   l,
			SentAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return msgs
}

func TestBuildPrompt_EmptyHistory(t *testing.T) {
	a := NewAssembler(staticHistory{}, 0)

	prompt, err := a.BuildPrompt(context.Background(), "u1", "a1", "hello")
	require.NoError(t, err)
	assert.Equal(t, MemoryStart+"\n"+MemoryEnd+"\nUSER: hello", prompt)
}

func TestBuildPrompt_RendersRolesInOrder(t *testing.T) {
	msgs := historyOf("hi", "hello there", "how are you?", "fine")
	msgs = append(msgs, &store.Message{ID: "img", Kind: store.KindImage, Sender: store.RoleUser, Image: "aGVsbG8="})
	a := NewAssembler(staticHistory{msgs: msgs}, 0)

	prompt, err := a.BuildPrompt(context.Background(), "u1", "a1", "next")
	require.NoError(t, err)
	assert.Equal(t, MemoryStart+`
USER: hi
AGENT: hello there
USER: how are you?
AGENT: fine
USER: [image]
`+MemoryEnd+`
USER: next`, prompt)
}

func TestBuildPrompt_ExcludesLiveTurn(t *testing.T) {
	hist := staticHistory{msgs: historyOf("first", "reply", "second")}
	a := NewAssembler(hist, 0)

	prompt, err := a.BuildPrompt(context.Background(), "u1", "a1", "second", "c")
	require.NoError(t, err)
	assert.Equal(t, MemoryStart+"\nUSER: first\nAGENT: reply\n"+MemoryEnd+"\nUSER: second", prompt)
	assert.Len(t, hist.msgs, 3, "caller's slice is left intact")
}

func TestBuildPrompt_Window(t *testing.T) {
	a := NewAssembler(staticHistory{msgs: historyOf("one", "two", "three", "four")}, 2)

	prompt, err := a.BuildPrompt(context.Background(), "u1", "a1", "five")
	require.NoError(t, err)
	assert.Equal(t, MemoryStart+"\nUSER: three\nAGENT: four\n"+MemoryEnd+"\nUSER: five", prompt)
}

func TestBuildPrompt_NegativeWindowIsUnbounded(t *testing.T) {
	a := NewAssembler(staticHistory{msgs: historyOf("one", "two")}, -3)

	prompt, err := a.BuildPrompt(context.Background(), "u1", "a1", "three")
	require.NoError(t, err)
	assert.Contains(t, prompt, "USER: one")
}

func TestBuildPrompt_HistoryError(t *testing.T) {
	a := NewAssembler(staticHistory{err: errors.New("db locked")}, 0)

	_, err := a.BuildPrompt(context.Background(), "u1", "a1", "hello")
	assert.ErrorContains(t, err, "db locked")
}
