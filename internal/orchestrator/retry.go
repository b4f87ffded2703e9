package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/metrics"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/respparse"
)

// #endregion

// #region errors

// ErrParseExhausted is returned when no well-formed reply arrived within the
// parse bound.
var ErrParseExhausted = errors.New("no well-formed reply within bound")

// IsSoft reports whether err only means the oracle answered badly. Stage
// drivers skip such items; every other error is a hard failure.
func IsSoft(err error) bool {
	return errors.Is(err, ErrParseExhausted) || errors.Is(err, respparse.ErrFormat)
}

// #endregion

// #region until-well-formed

// UntilWellFormed requests replies until parse accepts one, at most bound
// times. bound 0 retries without limit and stops only on success, a
// generation error or cancellation.
func UntilWellFormed[T any](ctx context.Context, bound int, generate func(context.Context) (string, error), parse func(string) (T, error)) (T, string, error) {
	var zero T
	var lastErr error
	for attempt := 1; bound == 0 || attempt <= bound; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		reply, err := generate(ctx)
		if err != nil {
			return zero, reply, err
		}
		v, err := parse(reply)
		if err == nil {
			return v, reply, nil
		}
		lastErr = err
	}
	return zero, "", fmt.Errorf("%w (%d attempts): %v", ErrParseExhausted, bound, lastErr)
}

// Generator builds a GenerateFunc over an oracle. fix, when set, answers
// every round after the first. Each round loops until parse accepts a reply.
func Generator[T any](o, fix oracle.Oracle, parseBound int, parse func(string) (T, error)) GenerateFunc[T] {
	return func(ctx context.Context, round int, messages []oracle.Message) (T, string, error) {
		src := o
		if round > 1 && fix != nil {
			src = fix
		}
		return UntilWellFormed(ctx, parseBound, func(ctx context.Context) (string, error) {
			return src.Invoke(ctx, messages)
		}, parse)
	}
}

// #endregion

// #region run

// Run drives stage until an artifact validates or Bound rounds fail. It
// never fails on exhaustion: the last artifact comes back with
// FailedRounds == Bound. Errors are hard failures only (transport,
// cancellation, validator errors).
func Run[T any](ctx context.Context, o *Orchestrator, stage Stage[T]) (Result[T], error) {
	if o == nil {
		o = &Orchestrator{logger: zap.NewNop()}
	}
	bound := stage.Bound
	if bound < 1 {
		bound = o.bounds.For(stage.Name)
	}
	sess := NewSession[T](stage.Name, stage.Request, bound)
	res := Result[T]{SessionID: sess.ID, Request: stage.Request}
	log := o.logger.With(zap.String("stage", stage.Name), zap.String("session", sess.ID))

	for sess.Round < sess.Bound {
		sess.Round++
		round := Round[T]{Number: sess.Round, Messages: sess.Messages()}

		artifact, reply, err := stage.Generate(ctx, sess.Round, round.Messages)
		if err != nil && !IsSoft(err) {
			return res, fmt.Errorf("%s round %d: %w", stage.Name, sess.Round, err)
		}
		round.Reply = reply
		if err != nil {
			round.Err = err
			res.FailedRounds++
			log.Warn("malformed reply", zap.Int("round", sess.Round), zap.Error(err))
			finishRound(o, stage, sess.ID, &round, res.FailedRounds == sess.Bound)
			continue
		}

		round.Artifact = artifact
		sess.Last, sess.HasLast = artifact, true
		res.Artifact, res.Reply = artifact, reply

		if stage.Validate != nil {
			v, err := stage.Validate(ctx, artifact)
			if err != nil {
				return res, fmt.Errorf("%s round %d validate: %w", stage.Name, sess.Round, err)
			}
			round.Verdict = v
		}
		res.Verdict = round.Verdict

		if !round.Verdict.Violated {
			res.Passed = true
			finishRound(o, stage, sess.ID, &round, true)
			break
		}

		res.FailedRounds++
		log.Info("round rejected",
			zap.Int("round", sess.Round),
			zap.Strings("reasons", round.Verdict.Reasons))
		finishRound(o, stage, sess.ID, &round, res.FailedRounds == sess.Bound)

		echo := reply
		if stage.Echo != nil {
			echo = stage.Echo(artifact, reply)
		}
		feedback := round.Verdict.Feedback()
		if stage.Feedback != nil {
			feedback = stage.Feedback(feedback)
		}
		sess.Fold(stage.History, echo, feedback)
	}

	res.Rounds = sess.Round
	outcome := "passed"
	if !res.Passed {
		outcome = "exhausted"
		log.Warn("bound exhausted, returning last artifact", zap.Int("failed_rounds", res.FailedRounds))
	}
	metrics.StageOutcomes.WithLabelValues(stage.Name, outcome).Inc()
	return res, nil
}

func finishRound[T any](o *Orchestrator, stage Stage[T], sessionID string, r *Round[T], last bool) {
	r.Last = last
	o.finish(stage.Name, sessionID, summarize(r), func() {
		if stage.OnRound != nil {
			stage.OnRound(*r)
		}
	})
}

// #endregion
