// ABOUTME: Builds the transcript sent to an agent from a pair's stored history
// ABOUTME: Memory is bracketed by fixed markers and the live turn is appended last

package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/2389/agentdesk/internal/store"
)

// Markers around the replayed history.
const (
	MemoryStart = "THIS IS A SYSTEM PROMPT. PAST MESSAGE HISTORY WILL NOW BE TRANSMITTED TO GIVE YOU CONTEXT:"
	MemoryEnd   = "PAST MESSAGE HISTORY COMPLETED"
)

// imageLine stands in for image payloads in a transcript.
const imageLine = "[image]"

// HistoryReader is what the assembler needs from the history store.
type HistoryReader interface {
	ListByPair(ctx context.Context, userID, agentID string) ([]*store.Message, error)
}

// Assembler renders prompts from history.
type Assembler struct {
	history HistoryReader
	window  int
}

// NewAssembler creates an assembler. window > 0 keeps only that many of the
// most recent history rows; 0 keeps everything.
func NewAssembler(history HistoryReader, window int) *Assembler {
	return &Assembler{history: history, window: max(window, 0)}
}

// BuildPrompt renders the pair's history followed by the incoming text.
// Messages whose ids are listed in exclude are left out of the memory
// section; the pipeline passes the id of the inbound row it just stored.
func (a *Assembler) BuildPrompt(ctx context.Context, userID, agentID, incoming string, exclude ...string) (string, error) {
	msgs, err := a.history.ListByPair(ctx, userID, agentID)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	if len(exclude) > 0 {
		msgs = slices.DeleteFunc(slices.Clone(msgs), func(m *store.Message) bool {
			return slices.Contains(exclude, m.ID)
		})
	}
	if a.window > 0 && len(msgs) > a.window {
		msgs = msgs[len(msgs)-a.window:]
	}

	var sb strings.Builder
	sb.WriteString(MemoryStart)
	sb.WriteByte('\n')
	for _, m := range msgs {
		writeLine(&sb, m.Sender, lineText(m))
	}
	sb.WriteString(MemoryEnd)
	sb.WriteByte('\n')
	writeLine(&sb, store.RoleUser, incoming)
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func lineText(m *store.Message) string {
	if m.Kind == store.KindImage {
		return imageLine
	}
	return m.Text
}

func writeLine(sb *strings.Builder, role store.Role, text string) {
	sb.WriteString(string(role))
	sb.WriteString(": ")
	sb.WriteString(text)
	sb.WriteByte('\n')
}
