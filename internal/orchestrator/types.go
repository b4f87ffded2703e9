package orchestrator

// #region imports
import (
	"context"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/prompts"
	"github.com/danielpatrickdp/scenegen/internal/validate"
)

// #endregion

// #region history-policy

// HistoryPolicy decides how a failed round is folded into the conversation.
type HistoryPolicy int

const (
	// ResetToLast keeps the initial request plus only the latest exchange.
	ResetToLast HistoryPolicy = iota
	// Accumulate appends every exchange to the conversation.
	Accumulate
)

// #endregion

// #region stage

// GenerateFunc produces one artifact from the conversation so far. round
// counts from 1. It returns the artifact and the raw reply it came from.
type GenerateFunc[T any] func(ctx context.Context, round int, messages []oracle.Message) (T, string, error)

// ValidateFunc checks an artifact. Only hard failures are errors.
type ValidateFunc[T any] func(ctx context.Context, artifact T) (validate.Verdict, error)

// EchoFunc renders the assistant turn folded back after a failed round.
type EchoFunc[T any] func(artifact T, reply string) string

// Stage is one oracle-driven step with a bounded feedback cycle.
type Stage[T any] struct {
	Name     string
	Bound    int
	Request  string
	History  HistoryPolicy
	Generate GenerateFunc[T]
	Validate ValidateFunc[T]
	// Echo defaults to the raw reply.
	Echo     EchoFunc[T]
	Feedback prompts.FeedbackFunc
	// OnRound observes every finished round, passing or not.
	OnRound func(Round[T])
}

// Round is the record of one generate/validate cycle.
type Round[T any] struct {
	Number   int
	Messages []oracle.Message
	Reply    string
	Artifact T
	Verdict  validate.Verdict
	// Err is a soft generation failure (malformed reply). It counts as a
	// failed round.
	Err  error
	Last bool
}

// Result is what a stage run hands downstream. It is returned even when
// the bound is exhausted.
type Result[T any] struct {
	SessionID    string
	Artifact     T
	Reply        string
	Request      string
	FailedRounds int
	Rounds       int
	Passed       bool
	Verdict      validate.Verdict
}

// #endregion

// #region session

// Session is the mutable state of one stage run.
type Session[T any] struct {
	ID      string
	Stage   string
	History []oracle.Message
	Round   int
	Bound   int
	Last    T
	HasLast bool
}

// NewSession opens a conversation with request as its only message.
func NewSession[T any](stage, request string, bound int) *Session[T] {
	return &Session[T]{
		ID:      uuid.New().String(),
		Stage:   stage,
		History: []oracle.Message{oracle.User(request)},
		Bound:   bound,
	}
}

// Messages returns a copy of the conversation.
func (s *Session[T]) Messages() []oracle.Message {
	return append([]oracle.Message(nil), s.History...)
}

// Fold adds a rejected answer and its feedback under policy.
func (s *Session[T]) Fold(policy HistoryPolicy, answer, feedback string) {
	if policy == ResetToLast {
		s.History = s.History[:1]
	}
	s.History = append(s.History, oracle.Assistant(answer), oracle.User(feedback))
}

// #endregion
