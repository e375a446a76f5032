package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/pkg/logger"
)

// ExecutePrompt answers prompt through a fresh thread and run. Runs that end
// failed, cancelled, expired or incomplete are logged and their thread is
// still read, so the caller gets whatever the assistant wrote or the
// fallback.
func (s *Implementation) ExecutePrompt(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", models.NewError(models.KindInvalidInput, "ExecutePrompt", "prompt is empty", nil)
	}

	agent, release, err := s.agents.Acquire(ctx)
	if err != nil {
		return "", err
	}
	l := logger.For(logger.ORCHESTRATOR).With().Str("agent_id", agent.ID).Logger()
	defer s.cleanup(ctx, l, "release agent", release)

	thread, err := s.backend.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	l = l.With().Str("thread_id", thread.ID).Logger()
	defer s.cleanup(ctx, l, "delete thread", func(ctx context.Context) error {
		return s.backend.DeleteThread(ctx, thread.ID)
	})

	if _, err := s.backend.CreateMessage(ctx, thread.ID, models.RoleUser, prompt); err != nil {
		return "", err
	}

	run, err := s.backend.CreateRun(ctx, thread.ID, agent.ID)
	if err != nil {
		return "", err
	}
	if run.ThreadID == "" {
		run.ThreadID = thread.ID
	}
	l = l.With().Str("run_id", run.ID).Logger()
	l.Debug().Str("status", string(run.Status)).Msg("Run started")

	run, err = s.await(ctx, run)
	if err != nil {
		if kind, _ := models.KindOf(err); kind == models.KindRunTimedOut || kind == models.KindCancelled {
			s.cancelRun(ctx, l, run)
		}
		return "", err
	}

	if run.Status != models.RunStatusCompleted {
		l.Warn().
			Err(models.NewError(models.KindRunFailed, "ExecutePrompt", run.LastError.String(), nil)).
			Str("status", string(run.Status)).
			Msg("Run did not complete, reading thread anyway")
	}

	messages, err := s.backend.ListMessages(ctx, thread.ID)
	if err != nil {
		return "", err
	}

	reply, ok := models.LatestByRole(messages, models.RoleAssistant)
	if !ok {
		l.Info().Msg("Thread has no assistant message")
		return FallbackResponse, nil
	}
	text := reply.Text()
	if text == "" {
		l.Info().Str("message_id", reply.ID).Msg("Assistant message has no text")
		return FallbackResponse, nil
	}

	l.Debug().Str("message_id", reply.ID).Msg("Run answered")
	return text, nil
}

// await polls run until it leaves the pending states. The wait between polls
// is the only suspension point and gives way to ctx.
func (s *Implementation) await(ctx context.Context, run models.Run) (models.Run, error) {
	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for attempts := 0; run.Status.IsPending(); attempts++ {
		if s.maxPollAttempts > 0 && attempts >= s.maxPollAttempts {
			return run, models.NewError(models.KindRunTimedOut, "ExecutePrompt",
				fmt.Sprintf("run still %s after %d polls", run.Status, attempts), nil)
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return run, models.NewError(models.KindRunTimedOut, "ExecutePrompt",
				fmt.Sprintf("run still %s after %s", run.Status, s.timeout), nil)
		}

		select {
		case <-ctx.Done():
			return run, models.NewError(models.KindCancelled, "ExecutePrompt", "", ctx.Err())
		case <-timer.C:
		}

		next, err := s.backend.GetRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return run, err
		}
		if next.Status != run.Status {
			logger.Debug(logger.ORCHESTRATOR, "Run %s: %s -> %s", run.ID, run.Status, next.Status)
		}
		if next.ThreadID == "" {
			next.ThreadID = run.ThreadID
		}
		run = next
		timer.Reset(s.pollInterval)
	}
	return run, nil
}

// cancelRun asks the backend to stop a run this call gave up on.
func (s *Implementation) cancelRun(ctx context.Context, l zerolog.Logger, run models.Run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := s.backend.CancelRun(ctx, run.ThreadID, run.ID); err != nil {
		l.Warn().Err(err).Msg("Failed to cancel abandoned run")
	}
}

// cleanup runs fn with a context that outlives the request. Failures are
// logged as cleanup_failed and never returned.
func (s *Implementation) cleanup(ctx context.Context, l zerolog.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		l.Warn().
			Err(models.NewError(models.KindCleanupFailed, what, "", err)).
			Msg("Cleanup failed")
	}
}
