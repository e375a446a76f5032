package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/internal/services/agents"
	"github.com/deepgram/forecaster/pkg/logger"
)

// fakeBackend replays a scripted status sequence and records every call.
type fakeBackend struct {
	mu sync.Mutex

	statuses  []models.RunStatus
	messages  []models.Message
	lastError *models.RunLastError

	createThreadErr error
	createRunErr    error
	getRunErr       error
	deleteThreadErr error

	getRunCalls    int
	cancelled      []string
	deletedThreads []string
	posted         []string
}

func (f *fakeBackend) CreateThread(context.Context) (models.Thread, error) {
	if f.createThreadErr != nil {
		return models.Thread{}, f.createThreadErr
	}
	return models.Thread{ID: "thread_1"}, nil
}

func (f *fakeBackend) DeleteThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedThreads = append(f.deletedThreads, threadID)
	return f.deleteThreadErr
}

func (f *fakeBackend) CreateMessage(_ context.Context, _ string, role models.Role, content string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, content)
	return models.Message{ID: "msg_user", Role: role, Content: []models.Content{models.TextContent{Value: content}}}, nil
}

func (f *fakeBackend) ListMessages(context.Context, string) ([]models.Message, error) {
	return f.messages, nil
}

func (f *fakeBackend) CreateRun(_ context.Context, threadID, agentID string) (models.Run, error) {
	if f.createRunErr != nil {
		return models.Run{}, f.createRunErr
	}
	return models.Run{ID: "run_1", ThreadID: threadID, AgentID: agentID, Status: f.statuses[0]}, nil
}

func (f *fakeBackend) GetRun(_ context.Context, threadID, runID string) (models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getRunCalls++
	if f.getRunErr != nil {
		return models.Run{}, f.getRunErr
	}

	i := f.getRunCalls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	run := models.Run{ID: runID, ThreadID: threadID, Status: f.statuses[i]}
	if run.Status == models.RunStatusFailed {
		run.LastError = f.lastError
	}
	return run, nil
}

func (f *fakeBackend) CancelRun(_ context.Context, _, runID string) (models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return models.Run{ID: runID, Status: models.RunStatusCancelling}, nil
}

type fakeProvider struct {
	err        error
	releaseErr error
	released   int
}

func (p *fakeProvider) Acquire(context.Context) (models.Agent, agents.ReleaseFunc, error) {
	if p.err != nil {
		return models.Agent{}, nil, p.err
	}
	return models.Agent{ID: "asst_1"}, func(context.Context) error {
		p.released++
		return p.releaseErr
	}, nil
}

func assistant(id, text string) models.Message {
	return models.Message{ID: id, Role: models.RoleAssistant, Content: []models.Content{models.TextContent{Value: text}}}
}

func user(text string) models.Message {
	return models.Message{ID: "msg_user", Role: models.RoleUser, Content: []models.Content{models.TextContent{Value: text}}}
}

func newTestService(backend *fakeBackend, provider *fakeProvider, opts ...Option) *Implementation {
	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	return NewService(provider, backend, opts...).(*Implementation)
}

func TestExecutePromptPollsUntilTerminal(t *testing.T) {
	backend := &fakeBackend{
		statuses: []models.RunStatus{models.RunStatusQueued, models.RunStatusInProgress, models.RunStatusCompleted},
		messages: []models.Message{user("What is the weather in Paris?"), assistant("msg_a", "It is sunny and 75 degrees in Paris.")},
	}
	provider := &fakeProvider{}

	got, err := newTestService(backend, provider).ExecutePrompt(context.Background(), "What is the weather in Paris?")
	require.NoError(t, err)

	assert.Equal(t, "It is sunny and 75 degrees in Paris.", got)
	assert.Equal(t, 2, backend.getRunCalls)
	assert.Equal(t, []string{"What is the weather in Paris?"}, backend.posted)
	assert.Equal(t, []string{"thread_1"}, backend.deletedThreads)
	assert.Equal(t, 1, provider.released)
	assert.Empty(t, backend.cancelled)
}

func TestExecutePromptSkipsPollingForTerminalRun(t *testing.T) {
	backend := &fakeBackend{
		statuses: []models.RunStatus{models.RunStatusCompleted},
		messages: []models.Message{assistant("msg_a", "done")},
	}

	got, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Zero(t, backend.getRunCalls)
}

func TestExecutePromptRequiresActionIsPending(t *testing.T) {
	backend := &fakeBackend{
		statuses: []models.RunStatus{
			models.RunStatusQueued,
			models.RunStatusRequiresAction,
			models.RunStatusRequiresAction,
			models.RunStatusQueued,
			models.RunStatusInProgress,
			models.RunStatusCompleted,
		},
		messages: []models.Message{assistant("msg_a", "Paris weather is 75 degrees and sunny")},
	}

	got, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "Paris?")
	require.NoError(t, err)
	assert.Equal(t, "Paris weather is 75 degrees and sunny", got)
	assert.Equal(t, 5, backend.getRunCalls)
}

func TestExecutePromptPicksLatestAssistantMessage(t *testing.T) {
	backend := &fakeBackend{
		statuses: []models.RunStatus{models.RunStatusCompleted},
		messages: []models.Message{
			user("question"),
			assistant("msg_a", "A"),
			user("follow-up"),
			assistant("msg_b", "B"),
		},
	}

	got, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestExecutePromptJoinsTextFragments(t *testing.T) {
	backend := &fakeBackend{
		statuses: []models.RunStatus{models.RunStatusCompleted},
		messages: []models.Message{{
			ID:   "msg_a",
			Role: models.RoleAssistant,
			Content: []models.Content{
				models.TextContent{Value: "It is"},
				models.OtherContent{Type: "image_file"},
				models.TextContent{Value: "sunny."},
			},
		}},
	}

	got, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "weather?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", got)
}

func TestExecutePromptFallback(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
	}{
		{name: "no messages"},
		{name: "only user message", messages: []models.Message{user("hi")}},
		{name: "assistant without text", messages: []models.Message{{
			ID:      "msg_a",
			Role:    models.RoleAssistant,
			Content: []models.Content{models.OtherContent{Type: "image_file"}},
		}}},
		{name: "assistant with empty text", messages: []models.Message{assistant("msg_a", "")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{
				statuses: []models.RunStatus{models.RunStatusCompleted},
				messages: tt.messages,
			}

			got, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "hi")
			require.NoError(t, err)
			assert.Equal(t, FallbackResponse, got)
		})
	}
}

func TestExecutePromptFailedRunIsLenient(t *testing.T) {
	backend := &fakeBackend{
		statuses:  []models.RunStatus{models.RunStatusQueued, models.RunStatusFailed},
		lastError: &models.RunLastError{Code: "server_error", Message: "boom"},
	}

	got, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, got)
	assert.Equal(t, 1, backend.getRunCalls)
}

func TestExecutePromptFailedRunLogsRunFailed(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf, zerolog.WarnLevel)
	t.Cleanup(func() { logger.SetOutput(os.Stderr, zerolog.InfoLevel) })

	backend := &fakeBackend{
		statuses:  []models.RunStatus{models.RunStatusQueued, models.RunStatusFailed},
		lastError: &models.RunLastError{Code: "server_error", Message: "boom"},
	}

	_, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "hi")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, string(models.KindRunFailed))
	assert.Contains(t, out, "server_error: boom")
	assert.Contains(t, out, `"status":"failed"`)
}

func TestExecutePromptFailedRunStillReturnsAssistantText(t *testing.T) {
	backend := &fakeBackend{
		statuses: []models.RunStatus{models.RunStatusQueued, models.RunStatusFailed},
		messages: []models.Message{assistant("msg_a", "partial answer")},
	}

	got, err := newTestService(backend, &fakeProvider{}).ExecutePrompt(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "partial answer", got)
}

func TestExecutePromptRejectsEmptyPrompt(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		backend := &fakeBackend{statuses: []models.RunStatus{models.RunStatusCompleted}}
		provider := &fakeProvider{}

		_, err := newTestService(backend, provider).ExecutePrompt(context.Background(), prompt)
		assert.ErrorIs(t, err, models.ErrInvalidInput)
		assert.Empty(t, backend.posted)
		assert.Zero(t, provider.released)
	}
}

func TestExecutePromptAttemptCap(t *testing.T) {
	backend := &fakeBackend{statuses: []models.RunStatus{models.RunStatusQueued, models.RunStatusInProgress}}
	provider := &fakeProvider{}

	_, err := newTestService(backend, provider, WithMaxPollAttempts(4), WithTimeout(0)).
		ExecutePrompt(context.Background(), "hi")

	assert.ErrorIs(t, err, models.ErrRunTimedOut)
	assert.Equal(t, 4, backend.getRunCalls)
	assert.Equal(t, []string{"run_1"}, backend.cancelled)
	assert.Equal(t, []string{"thread_1"}, backend.deletedThreads)
	assert.Equal(t, 1, provider.released)
}

func TestExecutePromptDeadline(t *testing.T) {
	backend := &fakeBackend{statuses: []models.RunStatus{models.RunStatusInProgress}}

	start := time.Now()
	_, err := newTestService(backend, &fakeProvider{}, WithMaxPollAttempts(0), WithTimeout(30*time.Millisecond)).
		ExecutePrompt(context.Background(), "hi")

	assert.ErrorIs(t, err, models.ErrRunTimedOut)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"run_1"}, backend.cancelled)
}

func TestExecutePromptCancelled(t *testing.T) {
	backend := &fakeBackend{statuses: []models.RunStatus{models.RunStatusInProgress}}
	provider := &fakeProvider{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newTestService(backend, provider, WithPollInterval(5*time.Millisecond), WithMaxPollAttempts(0)).
		ExecutePrompt(ctx, "hi")

	assert.ErrorIs(t, err, models.ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"run_1"}, backend.cancelled)
	assert.Equal(t, []string{"thread_1"}, backend.deletedThreads)
	assert.Equal(t, 1, provider.released)
}

func TestExecutePromptBackendErrors(t *testing.T) {
	unavailable := models.NewError(models.KindBackendUnavailable, "op", "", errors.New("connection refused"))

	tests := []struct {
		name        string
		backend     *fakeBackend
		provider    *fakeProvider
		wantDeleted []string
		wantRelease int
	}{
		{
			name:     "acquire agent",
			backend:  &fakeBackend{statuses: []models.RunStatus{models.RunStatusCompleted}},
			provider: &fakeProvider{err: unavailable},
		},
		{
			name:        "create thread",
			backend:     &fakeBackend{statuses: []models.RunStatus{models.RunStatusCompleted}, createThreadErr: unavailable},
			provider:    &fakeProvider{},
			wantRelease: 1,
		},
		{
			name:        "create run",
			backend:     &fakeBackend{statuses: []models.RunStatus{models.RunStatusCompleted}, createRunErr: unavailable},
			provider:    &fakeProvider{},
			wantDeleted: []string{"thread_1"},
			wantRelease: 1,
		},
		{
			name:        "poll run",
			backend:     &fakeBackend{statuses: []models.RunStatus{models.RunStatusQueued}, getRunErr: unavailable},
			provider:    &fakeProvider{},
			wantDeleted: []string{"thread_1"},
			wantRelease: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService(tt.backend, tt.provider).ExecutePrompt(context.Background(), "hi")

			assert.ErrorIs(t, err, models.ErrBackendUnavailable)
			assert.Equal(t, tt.wantDeleted, tt.backend.deletedThreads)
			assert.Equal(t, tt.wantRelease, tt.provider.released)
			assert.Empty(t, tt.backend.cancelled)
		})
	}
}

func TestExecutePromptCleanupFailuresAreSwallowed(t *testing.T) {
	backend := &fakeBackend{
		statuses:        []models.RunStatus{models.RunStatusCompleted},
		messages:        []models.Message{assistant("msg_a", "answer")},
		deleteThreadErr: errors.New("thread delete failed"),
	}
	provider := &fakeProvider{releaseErr: errors.New("agent delete failed")}

	got, err := newTestService(backend, provider).ExecutePrompt(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	assert.Equal(t, 1, provider.released)
}

func TestExecutePromptConcurrentRequests(t *testing.T) {
	backend := &fakeBackend{
		statuses: []models.RunStatus{models.RunStatusQueued, models.RunStatusCompleted},
		messages: []models.Message{assistant("msg_a", "ok")},
	}
	svc := NewService(&agents.SharedAgent{}, backend, WithPollInterval(time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.ExecutePrompt(context.Background(), "hi")
			assert.NoError(t, err)
			assert.Equal(t, "ok", got)
		}()
	}
	wg.Wait()
}
