package session

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/nanoagent/nanoagent/pkg/provider"
)

// Message is a single conversation turn as stored on disk.
type Message struct {
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	ToolCalls  []provider.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Session is the durable record of one conversation.
type Session struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id,omitempty"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Messages    []Message `json:"messages"`

	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalTokens       int     `json:"total_tokens"`
	TotalRequests     int     `json:"total_requests"`
	TotalCost         float64 `json:"total_cost"`
}

// Summary is the listing view of a session, without its messages.
type Summary struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
	TotalCost    float64   `json:"total_cost"`
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID generates a session identifier of the form
// s_20250830_142233_x7k2m9qa. The timestamp prefix keeps directory
// listings chronological; the random suffix avoids collisions between
// sessions created within the same second.
func NewID(now time.Time) string {
	suffix, err := gonanoid.Generate(idAlphabet, 8)
	if err != nil {
		// gonanoid only fails when the system entropy source does.
		suffix = fmt.Sprintf("%08d", now.UnixNano()%1e8)
	}
	return fmt.Sprintf("s_%s_%s", now.UTC().Format("20060102_150405"), suffix)
}

// Summarize reduces a session to its listing view.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		ClientID:     s.ClientID,
		Provider:     s.Provider,
		Model:        s.Model,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
		TotalTokens:  s.TotalTokens,
		TotalCost:    s.TotalCost,
	}
}

// Append adds a message to the session, stamping it when the caller
// did not.
func (s *Session) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.Timestamp
}

// AddUsage accumulates token and cost totals from one provider
// exchange.
func (s *Session) AddUsage(inputTokens, outputTokens int, cost float64) {
	s.TotalInputTokens += inputTokens
	s.TotalOutputTokens += outputTokens
	s.TotalTokens += inputTokens + outputTokens
	s.TotalRequests++
	s.TotalCost += cost
}
