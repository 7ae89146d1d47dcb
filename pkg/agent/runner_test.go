package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoagent/nanoagent/pkg/permission"
	"github.com/nanoagent/nanoagent/pkg/provider"
	"github.com/nanoagent/nanoagent/pkg/session"
	"github.com/nanoagent/nanoagent/pkg/toolkit"
)

type scriptStep struct {
	response *provider.Response
	err      error
}

// scriptedClient replays a fixed sequence of provider responses and
// records every request it receives.
type scriptedClient struct {
	steps []scriptStep
	calls []provider.Request
}

func (c *scriptedClient) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	c.calls = append(c.calls, req)
	if len(c.steps) == 0 {
		return nil, provider.FromStatusCode("scripted", 500, "script exhausted", nil)
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step.response, step.err
}

func (c *scriptedClient) Name() string { return "scripted" }

func finalResponse(content string) scriptStep {
	return scriptStep{response: &provider.Response{
		Content:      content,
		InputTokens:  100,
		OutputTokens: 20,
	}}
}

func toolCallResponse(name string, args map[string]interface{}) scriptStep {
	return scriptStep{response: &provider.Response{
		ToolCalls: []provider.ToolCall{
			{ID: "call_1", Name: name, Arguments: args},
		},
		InputTokens:  100,
		OutputTokens: 20,
	}}
}

type testHarness struct {
	runner *Runner
	client *scriptedClient
	store  *session.Store
	dir    string
}

func newHarness(t *testing.T, steps ...scriptStep) *testHarness {
	t.Helper()

	dir := t.TempDir()
	registry := toolkit.NewRegistry()
	require.NoError(t, toolkit.RegisterCoreTools(registry, toolkit.Options{WorkingDir: dir}))

	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)

	env := func(key string) string {
		if key == "OPENAI_API_KEY" || key == "ANTHROPIC_API_KEY" {
			return "test-key"
		}
		return ""
	}

	client := &scriptedClient{steps: steps}
	runner, err := NewRunner(Config{
		Resolver: provider.NewResolver(env, zerolog.Nop()),
		ClientFactory: func(profile *provider.Profile) (provider.Client, error) {
			return client, nil
		},
		Registry:  registry,
		Store:     store,
		Logger:    zerolog.Nop(),
		Retry:     RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Workspace: dir,
	})
	require.NoError(t, err)

	return &testHarness{runner: runner, client: client, store: store, dir: dir}
}

func baseRequest() Request {
	return Request{
		Prompt:   "list the files",
		Provider: "openai",
		Model:    "gpt-4o",
		MaxTurns: 5,
		Timeout:  time.Minute,
	}
}

func TestRunCompletesWithoutTools(t *testing.T) {
	h := newHarness(t, finalResponse("nothing to do"))

	result, err := h.runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "nothing to do", result.Response)
	assert.Equal(t, 0, result.Turns)
	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, 100, result.Usage.InputTokens)
	assert.Equal(t, 20, result.Usage.OutputTokens)
	assert.Equal(t, 1, result.Usage.Requests)

	sess, err := h.store.Load(result.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "user", sess.Messages[0].Role)
	assert.Equal(t, "assistant", sess.Messages[1].Role)
	assert.Equal(t, 1, sess.TotalRequests)
	assert.Equal(t, 120, sess.TotalTokens)
}

func TestRunExecutesToolThenCompletes(t *testing.T) {
	h := newHarness(t,
		toolCallResponse("list_directory", map[string]interface{}{}),
		finalResponse("the directory is empty"),
	)

	result, err := h.runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.Turns)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "list_directory", result.ToolCalls[0].Name)
	assert.True(t, result.ToolCalls[0].Success)
	assert.Len(t, h.client.calls, 2)

	// user, assistant tool call, tool result, final assistant
	sess, err := h.store.Load(result.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 4)
	assert.Equal(t, "tool", sess.Messages[2].Role)
	assert.Equal(t, "call_1", sess.Messages[2].ToolCallID)
	assert.Equal(t, 2, sess.TotalRequests)
}

func TestRunStopsAtTurnLimit(t *testing.T) {
	h := newHarness(t,
		toolCallResponse("list_directory", map[string]interface{}{}),
		toolCallResponse("list_directory", map[string]interface{}{}),
		toolCallResponse("list_directory", map[string]interface{}{}),
		finalResponse("should never be reached"),
	)

	req := baseRequest()
	req.MaxTurns = 3

	result, err := h.runner.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusTurnLimit, result.Status)
	assert.Equal(t, 3, result.Turns)
	assert.Len(t, result.ToolCalls, 3)
	assert.Len(t, h.client.calls, 3, "no provider call after the limit")
	assert.Contains(t, result.FailureReason, "turn limit")
}

func TestRunDeniedToolDoesNotFail(t *testing.T) {
	h := newHarness(t,
		toolCallResponse("write_file", map[string]interface{}{
			"file_path": "out.txt",
			"content":   "data",
		}),
		finalResponse("could not write, reported to user"),
	)

	req := baseRequest()
	req.Policy = permission.Policy{ReadOnly: true}

	result, err := h.runner.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	require.Len(t, result.ToolCalls, 1)
	assert.True(t, result.ToolCalls[0].Denied)
	assert.False(t, result.ToolCalls[0].Success)

	sess, err := h.store.Load(result.SessionID)
	require.NoError(t, err)
	assert.Contains(t, sess.Messages[2].Content, "Permission denied")
}

func TestRunDeniesRelativePathInBlockedWorkspace(t *testing.T) {
	h := newHarness(t,
		toolCallResponse("read_file", map[string]interface{}{
			"file_path": "secret.txt",
		}),
		finalResponse("the file is off limits"),
	)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "secret.txt"), []byte("s3cr3t"), 0o600))

	req := baseRequest()
	req.Policy = permission.Policy{BlockedPaths: []string{h.dir}}

	result, err := h.runner.Run(context.Background(), req)
	require.NoError(t, err)

	// The relative argument resolves inside the blocked workspace and
	// must be denied, not silently read.
	require.Len(t, result.ToolCalls, 1)
	assert.True(t, result.ToolCalls[0].Denied)

	sess, err := h.store.Load(result.SessionID)
	require.NoError(t, err)
	assert.Contains(t, sess.Messages[2].Content, "Permission denied")
	assert.NotContains(t, sess.Messages[2].Content, "s3cr3t")
}

func TestRunRejectsBlockedToolSelection(t *testing.T) {
	h := newHarness(t)

	req := baseRequest()
	req.Tools = []string{"write_file"}
	req.Policy = permission.Policy{BlockedTools: []string{"write_file"}}

	_, err := h.runner.Run(context.Background(), req)
	require.Error(t, err)

	var permErr *permission.Error
	assert.ErrorAs(t, err, &permErr)
	assert.Empty(t, h.client.calls)
}

func TestRunRetriesTransientErrors(t *testing.T) {
	h := newHarness(t,
		scriptStep{err: provider.FromStatusCode("openai", 429, "rate limited", nil)},
		scriptStep{err: provider.FromStatusCode("openai", 503, "overloaded", nil)},
		finalResponse("recovered"),
	)

	result, err := h.runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "recovered", result.Response)
	assert.Len(t, h.client.calls, 3)
}

func TestRunFailsFastOnPermanentError(t *testing.T) {
	h := newHarness(t,
		scriptStep{err: provider.FromStatusCode("openai", 401, "invalid api key", nil)},
	)

	result, err := h.runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "invalid api key")
	assert.Len(t, h.client.calls, 1, "permanent errors are not retried")
}

func TestRunRejectsUnknownProvider(t *testing.T) {
	h := newHarness(t)

	req := baseRequest()
	req.Provider = "mystery"

	_, err := h.runner.Run(context.Background(), req)
	require.Error(t, err)

	var cfgErr *provider.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, h.client.calls)
}

func TestRunRejectsTemperatureOnFixedModel(t *testing.T) {
	h := newHarness(t)

	req := baseRequest()
	req.Model = "gpt-5"
	req.Temperature = 0.2

	_, err := h.runner.Run(context.Background(), req)
	require.Error(t, err)

	var cfgErr *provider.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, h.client.calls)
}

func TestRunEphemeralSkipsPersistence(t *testing.T) {
	h := newHarness(t, finalResponse("done"))

	req := baseRequest()
	req.SessionMode = SessionEphemeral

	result, err := h.runner.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Empty(t, result.SessionID)

	summaries, err := h.store.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestRunTimesOut(t *testing.T) {
	h := newHarness(t, finalResponse("never sent"))

	req := baseRequest()
	req.Timeout = time.Nanosecond

	result, err := h.runner.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusTimedOut, result.Status)
	assert.Contains(t, result.FailureReason, "timeout")
	assert.Empty(t, h.client.calls)
}

func TestRunResumesPriorSession(t *testing.T) {
	h := newHarness(t, finalResponse("first answer"))

	first, err := h.runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	h.client.steps = []scriptStep{finalResponse("second answer")}

	req := baseRequest()
	req.Prompt = "follow up"
	req.Resume = true

	second, err := h.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	// The resumed request replays the prior conversation.
	replayed := h.client.calls[len(h.client.calls)-1].Messages
	require.Len(t, replayed, 3)
	assert.Equal(t, "list the files", replayed[0].Content)
	assert.Equal(t, "first answer", replayed[1].Content)
	assert.Equal(t, "follow up", replayed[2].Content)

	sess, err := h.store.Load(second.SessionID)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 4)
}

func TestRunResumeReusesSessionSettings(t *testing.T) {
	h := newHarness(t, finalResponse("first answer"))

	first := baseRequest()
	first.Temperature = 0.7
	first.MaxTokens = 512

	firstResult, err := h.runner.Run(context.Background(), first)
	require.NoError(t, err)

	// The effective settings are part of the session document.
	sess, err := h.store.Load(firstResult.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0.7, sess.Temperature)
	assert.Equal(t, 512, sess.MaxTokens)

	h.client.steps = []scriptStep{finalResponse("second answer")}

	second := Request{
		Prompt:   "follow up",
		Resume:   true,
		MaxTurns: 5,
		Timeout:  time.Minute,
	}

	secondResult, err := h.runner.Run(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, firstResult.SessionID, secondResult.SessionID)

	// Provider, model, temperature and token budget come back from the
	// session when the request leaves them unset.
	sent := h.client.calls[len(h.client.calls)-1]
	assert.Equal(t, 0.7, sent.Temperature)
	assert.Equal(t, 512, sent.MaxTokens)
}

func TestRunForceNewIgnoresExistingSessions(t *testing.T) {
	h := newHarness(t, finalResponse("first"))

	first, err := h.runner.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	h.client.steps = []scriptStep{finalResponse("second")}

	req := baseRequest()
	req.Resume = true
	req.SessionMode = SessionForceNew

	second, err := h.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestRunReplayWindowBoundsHistory(t *testing.T) {
	h := newHarness(t, finalResponse("ok"))

	sess, err := h.store.Create("", "openai", "gpt-4o")
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		sess.Append(session.Message{Role: "user", Content: "old message"})
	}
	require.NoError(t, h.store.Save(sess))

	req := baseRequest()
	req.SessionID = sess.ID

	_, err = h.runner.Run(context.Background(), req)
	require.NoError(t, err)

	// 20 replayed plus the new prompt.
	assert.Len(t, h.client.calls[0].Messages, 21)
}

func TestRunReplayWindowSkipsOrphanToolResults(t *testing.T) {
	h := newHarness(t, finalResponse("ok"))

	sess, err := h.store.Create("", "openai", "gpt-4o")
	require.NoError(t, err)

	// History shaped so the replay cut lands between an assistant
	// tool-call message and its tool results.
	for i := 0; i < 9; i++ {
		sess.Append(session.Message{Role: "user", Content: "old message"})
	}
	sess.Append(session.Message{
		Role: "assistant",
		ToolCalls: []provider.ToolCall{
			{ID: "call_a", Name: "list_directory", Arguments: map[string]interface{}{}},
			{ID: "call_b", Name: "list_directory", Arguments: map[string]interface{}{}},
		},
	})
	sess.Append(session.Message{Role: "tool", Content: "result a", ToolCallID: "call_a"})
	sess.Append(session.Message{Role: "tool", Content: "result b", ToolCallID: "call_b"})
	for i := 0; i < 18; i++ {
		sess.Append(session.Message{Role: "user", Content: "recent message"})
	}
	require.NoError(t, h.store.Save(sess))

	req := baseRequest()
	req.SessionID = sess.ID

	_, err = h.runner.Run(context.Background(), req)
	require.NoError(t, err)

	// The two orphaned tool results at the window edge are dropped:
	// 18 recent messages plus the new prompt.
	replayed := h.client.calls[0].Messages
	require.Len(t, replayed, 19)
	for _, msg := range replayed {
		assert.NotEqual(t, "tool", msg.Role)
	}
}

func TestRunRequiresPrompt(t *testing.T) {
	h := newHarness(t)

	req := baseRequest()
	req.Prompt = "   "

	_, err := h.runner.Run(context.Background(), req)
	assert.Error(t, err)
}
