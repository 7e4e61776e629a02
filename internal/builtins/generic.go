// ABOUTME: Generic assistant agent type
// ABOUTME: Answers the transcript with a single completion

package builtins

import (
	"context"

	"github.com/2389/agentdesk/internal/agent"
)

const genericSystem = `You are a versatile and intelligent assistant that helps users with a wide variety of questions and tasks.
Provide accurate, helpful, and friendly responses. If you are unsure about something, say so.`

type genericAgent struct {
	base
}

func (d Deps) newGeneric(spec agent.Spec) (agent.Handle, error) {
	return &genericAgent{base: d.newBase(spec, genericSystem)}, nil
}

func (a *genericAgent) Process(ctx context.Context, prompt string) (string, error) {
	return a.complete(ctx, prompt)
}
