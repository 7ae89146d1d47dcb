package agent

import (
	"time"

	"github.com/nanoagent/nanoagent/pkg/permission"
	"github.com/nanoagent/nanoagent/pkg/provider"
	"github.com/nanoagent/nanoagent/pkg/usage"
)

// RunStatus is the terminal state of one execution.
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusTurnLimit RunStatus = "turn_limit"
	StatusTimedOut  RunStatus = "timed_out"
	StatusFailed    RunStatus = "failed"
)

// SessionMode controls how a run interacts with durable sessions.
type SessionMode string

const (
	// SessionSave resumes or creates a session and persists the run.
	SessionSave SessionMode = "save"
	// SessionEphemeral runs without touching the session store.
	SessionEphemeral SessionMode = "ephemeral"
	// SessionForceNew always starts a fresh session, even when one
	// could be resumed.
	SessionForceNew SessionMode = "force_new"
)

const (
	DefaultMaxTurns  = 20
	DefaultTimeout   = 5 * time.Minute
	DefaultMaxTokens = 4096

	// replayWindow bounds how much stored history is sent back to the
	// provider when a session is resumed.
	replayWindow = 20

	// maxToolResultBytes bounds the tool output echoed into the
	// conversation; oversized results are truncated, not dropped.
	maxToolResultBytes = 30_000
)

// Request describes one agent execution.
type Request struct {
	Prompt       string
	Provider     string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	MaxTurns int
	Timeout  time.Duration

	// Tools selects registered tools by name; empty means all.
	Tools  []string
	Policy permission.Policy

	SessionMode SessionMode
	SessionID   string
	Resume      bool
	ClientID    string

	Overrides provider.Overrides
}

// ToolCallRecord is one executed (or denied) tool call, kept for the
// final report.
type ToolCallRecord struct {
	Turn    int    `json:"turn"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Denied  bool   `json:"denied,omitempty"`
}

// Result is the outcome of one execution.
type Result struct {
	Status    RunStatus
	Response  string
	SessionID string
	Turns     int
	ToolCalls []ToolCallRecord
	Usage     usage.Totals
	Duration  time.Duration

	// FailureReason is set when Status is not StatusCompleted.
	FailureReason string
}

// RetryPolicy controls retries of transient provider failures.
// Delays grow exponentially from BaseDelay: 1s, 2s, 4s with the
// defaults.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches three attempts with one second base
// delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}
