// Package usage accumulates token counts for a run and prices them
// against a static per-model rate table.
package usage

import (
	"fmt"
	"sync"
)

// Totals is a snapshot of accumulated usage.
type Totals struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Requests     int     `json:"requests"`
	Cost         float64 `json:"cost"`
}

// Tracker accumulates token usage monotonically. It is safe for
// concurrent use, although a single run only ever adds from one
// goroutine.
type Tracker struct {
	mu           sync.Mutex
	rate         Rate
	inputTokens  int
	outputTokens int
	requests     int
}

// NewTracker creates a tracker priced with the given model's rate.
func NewTracker(model string) *Tracker {
	return &Tracker{rate: RateFor(model)}
}

// NewTrackerWithRate creates a tracker with an explicit rate.
func NewTrackerWithRate(rate Rate) *Tracker {
	return &Tracker{rate: rate}
}

// Add records one provider exchange's token usage.
func (t *Tracker) Add(inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inputTokens += inputTokens
	t.outputTokens += outputTokens
	t.requests++
}

// Cost returns the accumulated dollar cost:
// input/1000*inputRate + output/1000*outputRate.
func (t *Tracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.costLocked()
}

func (t *Tracker) costLocked() float64 {
	return t.rate.Cost(t.inputTokens, t.outputTokens)
}

// Totals returns a snapshot of the accumulated counters.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Totals{
		InputTokens:  t.inputTokens,
		OutputTokens: t.outputTokens,
		TotalTokens:  t.inputTokens + t.outputTokens,
		Requests:     t.requests,
		Cost:         t.costLocked(),
	}
}

// FormatTokens renders a token count compactly (eg. "12.3k").
func FormatTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatCost renders a dollar cost with four decimal places.
func FormatCost(c float64) string {
	return fmt.Sprintf("$%.4f", c)
}
