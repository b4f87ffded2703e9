package oracle

import (
	"context"
	"errors"
	"sync"
)

// #region transcript-backend

// ErrTranscriptExhausted is returned once every recorded reply was served.
var ErrTranscriptExhausted = errors.New("transcript exhausted")

// TranscriptBackend serves recorded replies in order. It backs replay runs
// and deterministic tests.
type TranscriptBackend struct {
	mu      sync.Mutex
	replies []Completion
	next    int
	calls   [][]Message
}

// NewTranscript records replies that all finish normally.
func NewTranscript(replies ...string) *TranscriptBackend {
	comps := make([]Completion, len(replies))
	for i, r := range replies {
		comps[i] = Completion{Text: r, FinishReason: FinishStop}
	}
	return &TranscriptBackend{replies: comps}
}

// NewTranscriptCompletions records raw completions, abnormal ones included.
func NewTranscriptCompletions(comps ...Completion) *TranscriptBackend {
	return &TranscriptBackend{replies: append([]Completion(nil), comps...)}
}

// Name implements Backend.
func (t *TranscriptBackend) Name() string { return "transcript" }

// Complete implements Backend.
func (t *TranscriptBackend) Complete(_ context.Context, _ string, messages []Message) (Completion, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, append([]Message(nil), messages...))
	if t.next >= len(t.replies) {
		return Completion{}, ErrTranscriptExhausted
	}
	c := t.replies[t.next]
	t.next++
	return c, nil
}

// Calls returns a copy of every conversation sent so far.
func (t *TranscriptBackend) Calls() [][]Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]Message, len(t.calls))
	copy(out, t.calls)
	return out
}

// Remaining reports how many recorded replies are left.
func (t *TranscriptBackend) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.replies) - t.next
}

// NewScripted returns a Client over a fresh transcript of replies.
func NewScripted(replies ...string) (*Client, *TranscriptBackend) {
	tb := NewTranscript(replies...)
	return NewClient(tb, "transcript", WithAttempts(1)), tb
}

// #endregion transcript-backend

// #region func-backend

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model string, messages []Message) (Completion, error)

// Name implements Backend.
func (f BackendFunc) Name() string { return "func" }

// Complete implements Backend.
func (f BackendFunc) Complete(ctx context.Context, model string, messages []Message) (Completion, error) {
	return f(ctx, model, messages)
}

// #endregion func-backend
