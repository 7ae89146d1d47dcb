package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nanoagent/nanoagent/pkg/permission"
	"github.com/nanoagent/nanoagent/pkg/provider"
	"github.com/nanoagent/nanoagent/pkg/session"
	"github.com/nanoagent/nanoagent/pkg/toolkit"
	"github.com/nanoagent/nanoagent/pkg/usage"
)

// Runner drives agent executions.
type Runner struct {
	resolver      *provider.Resolver
	clientFactory provider.ClientFactory
	registry      *toolkit.Registry
	store         *session.Store
	logger        zerolog.Logger
	retry         RetryPolicy
	workspace     string
}

// Config holds runner dependencies.
type Config struct {
	Resolver      *provider.Resolver
	ClientFactory provider.ClientFactory
	Registry      *toolkit.Registry
	Store         *session.Store
	Logger        zerolog.Logger
	Retry         RetryPolicy

	// Workspace is the directory the registered tools resolve relative
	// paths against. The permission checker anchors path rules to the
	// same directory.
	Workspace string
}

// NewRunner creates an agent runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("provider resolver is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}

	factory := cfg.ClientFactory
	if factory == nil {
		factory = provider.NewClient
	}

	return &Runner{
		resolver:      cfg.Resolver,
		clientFactory: factory,
		registry:      cfg.Registry,
		store:         cfg.Store,
		logger:        cfg.Logger,
		retry:         cfg.Retry.normalize(),
		workspace:     cfg.Workspace,
	}, nil
}

// Run executes one agent task to completion. Configuration problems
// (unknown provider, missing credentials, invalid temperature) are
// returned as errors before any provider call; everything after the
// first call is reported through Result.Status.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, fmt.Errorf("prompt cannot be empty")
	}

	sess, err := r.openSession(req)
	if err != nil {
		return Result{}, err
	}
	applySessionDefaults(&req, sess)
	if req.Provider == "" || req.Model == "" {
		return Result{}, provider.NewConfigError("provider and model must be set (no session to take them from)")
	}

	checker := permission.NewChecker(r.registry.WriteClass(), r.workspace)
	if err := checker.ValidateRequest(req.Tools, req.Policy); err != nil {
		return Result{}, err
	}

	profile, err := r.resolver.Resolve(req.Provider, req.Model, req.Overrides)
	if err != nil {
		return Result{}, err
	}
	if err := profile.ValidateTemperature(req.Temperature); err != nil {
		return Result{}, err
	}

	client, err := r.clientFactory(profile)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create provider client: %w", err)
	}

	schemas, err := r.registry.Schemas(req.Tools)
	if err != nil {
		return Result{}, err
	}

	if sess == nil && req.SessionMode != SessionEphemeral {
		sess, err = r.store.Create(req.ClientID, req.Provider, req.Model)
		if err != nil {
			return Result{}, err
		}
	}

	return r.execute(ctx, req, client, schemas, checker, sess)
}

// openSession returns the session being continued, or nil when the run
// is ephemeral or starts fresh. Fresh sessions are created after the
// request has been validated so a rejected run leaves no file behind.
func (r *Runner) openSession(req Request) (*session.Session, error) {
	if req.SessionMode == SessionEphemeral || req.SessionMode == SessionForceNew {
		return nil, nil
	}

	if req.SessionID != "" {
		return r.store.Load(req.SessionID)
	}
	if req.Resume {
		sess, err := r.store.FindMostRecent(req.ClientID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
		// Nothing to resume; a fresh session is created later.
	}
	return nil, nil
}

// applySessionDefaults fills request settings the caller left unset
// from the continued session, so a bare resume keeps talking to the
// same model the same way.
func applySessionDefaults(req *Request, sess *session.Session) {
	if sess == nil {
		return
	}
	if req.Provider == "" {
		req.Provider = sess.Provider
	}
	if req.Model == "" {
		req.Model = sess.Model
	}
	if req.Temperature == 0 {
		req.Temperature = sess.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = sess.MaxTokens
	}
}

func (r *Runner) execute(ctx context.Context, req Request, client provider.Client, schemas []provider.ToolSchema, checker *permission.Checker, sess *session.Session) (Result, error) {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	tracker := usage.NewTracker(req.Model)
	start := time.Now()

	// Record the effective settings so a later resume without explicit
	// settings reuses them.
	if sess != nil {
		sess.Provider = req.Provider
		sess.Model = req.Model
		sess.Temperature = req.Temperature
		sess.MaxTokens = maxTokens
	}

	ctx, cancel := context.WithDeadline(ctx, start.Add(timeout))
	defer cancel()

	logger := r.logger.With().
		Str("provider", req.Provider).
		Str("model", req.Model).
		Logger()
	if sess != nil {
		logger = logger.With().Str("session_id", sess.ID).Logger()
	}

	messages := replayMessages(sess)
	messages = append(messages, provider.Message{Role: "user", Content: req.Prompt})
	r.record(sess, session.Message{Role: "user", Content: req.Prompt})

	result := Result{SessionID: sessionID(sess)}
	finish := func(status RunStatus, reason string) (Result, error) {
		result.Status = status
		result.FailureReason = reason
		result.Usage = tracker.Totals()
		result.Duration = time.Since(start)
		if err := r.persist(sess); err != nil {
			logger.Error().Err(err).Msg("Failed to persist session")
		}
		logger.Info().
			Str("status", string(status)).
			Int("turns", result.Turns).
			Int("tokens", result.Usage.TotalTokens).
			Dur("duration", result.Duration).
			Msg("Run finished")
		return result, nil
	}

	turns := 0
	for {
		if time.Since(start) >= timeout {
			return finish(StatusTimedOut, fmt.Sprintf("run exceeded %s timeout", timeout))
		}

		response, err := r.callWithRetry(ctx, client, provider.Request{
			System:      systemPrompt,
			Messages:    messages,
			Tools:       schemas,
			Temperature: req.Temperature,
			MaxTokens:   maxTokens,
		}, logger)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StatusTimedOut, fmt.Sprintf("run exceeded %s timeout", timeout))
			}
			return finish(StatusFailed, err.Error())
		}

		tracker.Add(response.InputTokens, response.OutputTokens)
		if sess != nil {
			cost := usage.RateFor(req.Model).Cost(response.InputTokens, response.OutputTokens)
			sess.AddUsage(response.InputTokens, response.OutputTokens, cost)
		}

		if len(response.ToolCalls) == 0 {
			result.Response = response.Content
			messages = append(messages, provider.Message{Role: "assistant", Content: response.Content})
			r.record(sess, session.Message{Role: "assistant", Content: response.Content})
			return finish(StatusCompleted, "")
		}

		assistantMsg := provider.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		r.record(sess, session.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, call := range response.ToolCalls {
			content, record := r.runToolCall(ctx, checker, req.Policy, call, turns+1)
			result.ToolCalls = append(result.ToolCalls, record)

			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
			})
			r.record(sess, session.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
			})
		}

		if err := r.persist(sess); err != nil {
			logger.Error().Err(err).Msg("Failed to persist session")
		}

		turns++
		result.Turns = turns
		if turns >= maxTurns {
			return finish(StatusTurnLimit, fmt.Sprintf("turn limit of %d reached", maxTurns))
		}
	}
}

// runToolCall applies the permission policy and executes one tool
// call. Denials are reported back to the model as tool output, never
// as run failures.
func (r *Runner) runToolCall(ctx context.Context, checker *permission.Checker, policy permission.Policy, call provider.ToolCall, turn int) (string, ToolCallRecord) {
	record := ToolCallRecord{Turn: turn, Name: call.Name}

	decision := checker.Check(call.Name, call.Arguments, policy)
	if !decision.Allowed {
		record.Denied = true
		return fmt.Sprintf("Permission denied: %s", decision.Reason), record
	}

	result := r.registry.Execute(ctx, call.Name, call.Arguments)
	record.Success = result.Success
	return toolResultContent(result), record
}

// callWithRetry retries transient provider failures with exponential
// backoff. Permanent errors fail immediately.
func (r *Runner) callWithRetry(ctx context.Context, client provider.Client, req provider.Request, logger zerolog.Logger) (*provider.Response, error) {
	var lastErr error

	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		response, err := client.Complete(ctx, req)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if !provider.IsRetryable(err) {
			return nil, err
		}
		if attempt == r.retry.MaxAttempts-1 {
			break
		}

		delay := r.retry.BaseDelay * (1 << attempt)
		logger.Warn().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying provider call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("provider call failed after %d attempts: %w", r.retry.MaxAttempts, lastErr)
}

func (r *Runner) record(sess *session.Session, msg session.Message) {
	if sess == nil {
		return
	}
	sess.Append(msg)
}

func (r *Runner) persist(sess *session.Session) error {
	if sess == nil {
		return nil
	}
	return r.store.Save(sess)
}

// replayMessages converts stored history into provider messages,
// bounded to the most recent window.
func replayMessages(sess *session.Session) []provider.Message {
	if sess == nil || len(sess.Messages) == 0 {
		return nil
	}

	stored := sess.Messages
	if len(stored) > replayWindow {
		stored = stored[len(stored)-replayWindow:]
		// The cut can land inside a tool exchange. Tool results whose
		// assistant tool-call message fell outside the window would be
		// rejected by the provider, so skip ahead to the next
		// user/assistant boundary.
		for len(stored) > 0 && stored[0].Role == "tool" {
			stored = stored[1:]
		}
	}

	messages := make([]provider.Message, 0, len(stored))
	for _, msg := range stored {
		messages = append(messages, provider.Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}
	return messages
}

// toolResultContent renders a tool result for the conversation.
func toolResultContent(result toolkit.Result) string {
	if !result.Success {
		return fmt.Sprintf("Error: %s", result.Message)
	}

	content := result.Message
	if result.Data != nil {
		if data, err := json.Marshal(result.Data); err == nil {
			content = string(data)
		}
	}

	if len(content) > maxToolResultBytes {
		content = content[:maxToolResultBytes] + "\n... [output truncated]"
	}
	return content
}

func sessionID(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID
}
