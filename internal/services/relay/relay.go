// Package relay carries the tool calls of requires_action runs across the
// queue pipeline and submits the workers' results back to the agent backend.
//
// Redis keys:
//
//	relay:call:<toolCallId>         claim for one tool call, holds its run
//	relay:run:<runId>:calls         tool call ids of the current round
//	relay:run:<runId>:outputs       tool call id -> output
//	relay:run:<runId>:submitted     guard so a round is submitted once
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/internal/services/queue"
	"github.com/deepgram/forecaster/pkg/logger"
)

// Group is the consumer group the relay reads output queues with.
const Group = "relay"

const defaultPendingTTL = 15 * time.Minute

// Transport is the part of the queue bridge the relay needs.
type Transport interface {
	Send(ctx context.Context, queue string, payload interface{}) (string, error)
	Consume(ctx context.Context, queue, group string, handler queue.Handler) error
}

// Submitter hands tool outputs back to the agent backend.
type Submitter interface {
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (models.Run, error)
}

type Relay struct {
	cache     redis.Cmdable
	transport Transport
	submitter Submitter
	tools     []models.ToolDefinition
	ttl       time.Duration
}

// claim is the value stored under relay:call:<toolCallId>.
type claim struct {
	RunID    string `json:"run_id"`
	ThreadID string `json:"thread_id"`
	Done     bool   `json:"done,omitempty"`
}

// result is a worker reply. Field matching is case-insensitive, so
// "Value"/"CorrelationId" producers decode too.
type result struct {
	Value         string `json:"value"`
	CorrelationID string `json:"correlationId"`
}

func New(cache redis.Cmdable, transport Transport, submitter Submitter, tools []models.ToolDefinition, ttl time.Duration) *Relay {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &Relay{
		cache:     cache,
		transport: transport,
		submitter: submitter,
		tools:     tools,
		ttl:       ttl,
	}
}

func callKey(toolCallID string) string {
	return "relay:call:" + toolCallID
}

func callsKey(runID string) string {
	return "relay:run:" + runID + ":calls"
}

func outputsKey(runID string) string {
	return "relay:run:" + runID + ":outputs"
}

func submittedKey(runID string) string {
	return "relay:run:" + runID + ":submitted"
}

// HandleRequiredAction publishes every unclaimed tool call of run to its
// input queue. It is safe to call on every poll of the same run.
func (r *Relay) HandleRequiredAction(ctx context.Context, run models.Run) error {
	if run.RequiredAction == nil || len(run.RequiredAction.ToolCalls) == 0 {
		return nil
	}
	l := logger.For(logger.RELAY).With().Str("run_id", run.ID).Str("thread_id", run.ThreadID).Logger()

	value, err := json.Marshal(claim{RunID: run.ID, ThreadID: run.ThreadID})
	if err != nil {
		return fmt.Errorf("relay: encode claim: %w", err)
	}

	// Calls claimed by an earlier poll, or already submitted, are skipped.
	var claimed []models.ToolCall
	for _, call := range run.RequiredAction.ToolCalls {
		ok, err := r.cache.SetNX(ctx, callKey(call.ID), value, r.ttl).Result()
		if err != nil {
			r.release(ctx, claimed)
			return fmt.Errorf("relay: claim %s: %w", call.ID, err)
		}
		if ok {
			claimed = append(claimed, call)
		}
	}
	if len(claimed) == 0 {
		return nil
	}

	ids := make([]interface{}, 0, len(claimed))
	for _, call := range claimed {
		ids = append(ids, call.ID)
	}
	pipe := r.cache.TxPipeline()
	pipe.SAdd(ctx, callsKey(run.ID), ids...)
	pipe.Expire(ctx, callsKey(run.ID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.release(ctx, claimed)
		return fmt.Errorf("relay: record calls of run %s: %w", run.ID, err)
	}

	recorded := false
	for i, call := range claimed {
		payload, tool, err := r.payload(call)
		if err != nil {
			l.Warn().Err(err).Str("tool_call_id", call.ID).Str("tool", call.Name).Msg("Answering tool call with an error")
			if err := r.record(ctx, run.ID, call.ID, "error: "+err.Error()); err != nil {
				r.release(ctx, claimed[i:])
				return err
			}
			recorded = true
			continue
		}

		if _, err := r.transport.Send(ctx, tool.InputQueue, payload); err != nil {
			r.release(ctx, claimed[i:])
			return fmt.Errorf("relay: publish %s: %w", call.ID, err)
		}
		l.Info().
			Str("tool_call_id", call.ID).
			Str("tool", call.Name).
			Str("queue", tool.InputQueue).
			Msg("Dispatched tool call")
	}

	if recorded {
		return r.flush(ctx, run.ID, run.ThreadID)
	}
	return nil
}

// release drops claims that were never published so the next poll retries them.
func (r *Relay) release(ctx context.Context, calls []models.ToolCall) {
	if len(calls) == 0 {
		return
	}
	keys := make([]string, 0, len(calls))
	for _, call := range calls {
		keys = append(keys, callKey(call.ID))
	}
	if err := r.cache.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to release tool call claims")
	}
}

// payload builds the queue item for call: its JSON arguments plus the tool
// call id as correlation id.
func (r *Relay) payload(call models.ToolCall) (map[string]interface{}, models.ToolDefinition, error) {
	tool, ok := models.FindTool(r.tools, call.Name)
	if !ok || tool.InputQueue == "" {
		return nil, tool, fmt.Errorf("no queue binding for tool %q", call.Name)
	}

	args := map[string]interface{}{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, tool, fmt.Errorf("invalid arguments for tool %q: %w", call.Name, err)
		}
	}
	args["correlationId"] = call.ID
	return args, tool, nil
}

func (r *Relay) record(ctx context.Context, runID, toolCallID, output string) error {
	pipe := r.cache.TxPipeline()
	pipe.HSet(ctx, outputsKey(runID), toolCallID, output)
	pipe.Expire(ctx, outputsKey(runID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay: store output of %s: %w", toolCallID, err)
	}
	return nil
}

// Run consumes every bound output queue until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	queues := map[string]struct{}{}
	for _, t := range r.tools {
		if t.OutputQueue != "" {
			queues[t.OutputQueue] = struct{}{}
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for name := range queues {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := r.transport.Consume(ctx, name, Group, r.handleResult); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(name)
	}
	log.Info().Int("queues", len(queues)).Msg("Tool relay started")
	wg.Wait()
	return errors.Join(errs...)
}

func (r *Relay) handleResult(ctx context.Context, d queue.Delivery) error {
	var res result
	if err := d.Decode(&res); err != nil {
		log.Error().Err(err).Str("entry_id", d.ID).Msg("Dropping malformed tool result")
		return nil
	}
	l := logger.For(logger.RELAY).With().Str("tool_call_id", res.CorrelationID).Str("queue", d.Queue).Logger()

	raw, err := r.cache.Get(ctx, callKey(res.CorrelationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		l.Warn().Msg("Dropping tool result with unknown correlation id")
		return nil
	}
	if err != nil {
		return fmt.Errorf("relay: load claim %s: %w", res.CorrelationID, err)
	}

	var c claim
	if err := json.Unmarshal(raw, &c); err != nil {
		l.Error().Err(err).Msg("Dropping tool result with corrupt claim")
		return nil
	}
	if c.Done {
		l.Debug().Msg("Tool result already submitted")
		return nil
	}

	if err := r.record(ctx, c.RunID, res.CorrelationID, res.Value); err != nil {
		return err
	}
	return r.flush(ctx, c.RunID, c.ThreadID)
}

// flush submits the outputs of runID once every tool call of the round has
// one. Only one caller wins the submit guard.
func (r *Relay) flush(ctx context.Context, runID, threadID string) error {
	calls, err := r.cache.SMembers(ctx, callsKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("relay: load calls of run %s: %w", runID, err)
	}
	outputs, err := r.cache.HGetAll(ctx, outputsKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("relay: load outputs of run %s: %w", runID, err)
	}

	submission := make([]models.ToolOutput, 0, len(calls))
	for _, id := range calls {
		out, ok := outputs[id]
		if !ok {
			return nil
		}
		submission = append(submission, models.ToolOutput{ToolCallID: id, Output: out})
	}
	if len(submission) == 0 {
		return nil
	}

	ok, err := r.cache.SetNX(ctx, submittedKey(runID), "1", r.ttl).Result()
	if err != nil {
		return fmt.Errorf("relay: take submit guard of run %s: %w", runID, err)
	}
	if !ok {
		return nil
	}

	l := logger.For(logger.RELAY).With().Str("run_id", runID).Str("thread_id", threadID).Logger()
	if _, err := r.submitter.SubmitToolOutputs(ctx, threadID, runID, submission); err != nil {
		if kind, _ := models.KindOf(err); kind == models.KindBackendRejected {
			// The run is no longer waiting on these calls.
			l.Warn().Err(err).Msg("Backend rejected tool outputs, dropping them")
			r.complete(ctx, runID, threadID, calls)
			return r.flush(ctx, runID, threadID)
		}
		r.cache.Del(context.WithoutCancel(ctx), submittedKey(runID))
		return fmt.Errorf("relay: submit outputs of run %s: %w", runID, err)
	}

	l.Info().Int("outputs", len(submission)).Msg("Submitted tool outputs")
	r.complete(ctx, runID, threadID, calls)

	// A later round may have filled up while the guard was held.
	return r.flush(ctx, runID, threadID)
}

// complete marks the submitted calls done and removes only them from the
// run's round, so calls of a later requires_action survive.
func (r *Relay) complete(ctx context.Context, runID, threadID string, calls []string) {
	ctx = context.WithoutCancel(ctx)
	done, _ := json.Marshal(claim{RunID: runID, ThreadID: threadID, Done: true})

	members := make([]interface{}, 0, len(calls))
	pipe := r.cache.TxPipeline()
	for _, id := range calls {
		pipe.Set(ctx, callKey(id), done, r.ttl)
		members = append(members, id)
	}
	pipe.SRem(ctx, callsKey(runID), members...)
	pipe.HDel(ctx, outputsKey(runID), calls...)
	pipe.Del(ctx, submittedKey(runID))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to clear submitted tool round")
	}
}
