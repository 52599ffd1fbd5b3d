package testutil

import (
	"sync"

	"techpost/internal/engage"
)

// Prompt is one recorded request for the login UI.
type Prompt struct {
	Action engage.Action
	Reason engage.PromptReason
}

// RecordingPrompter records every PromptLogin call.
type RecordingPrompter struct {
	mu      sync.Mutex
	prompts []Prompt
}

func NewRecordingPrompter() *RecordingPrompter {
	return &RecordingPrompter{}
}

func (p *RecordingPrompter) PromptLogin(action engage.Action, reason engage.PromptReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, Prompt{Action: action, Reason: reason})
}

// Prompts returns the recorded prompts in order.
func (p *RecordingPrompter) Prompts() []Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Prompt(nil), p.prompts...)
}

var _ engage.LoginPrompter = (*RecordingPrompter)(nil)
