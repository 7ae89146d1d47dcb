package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTracker_Cost tests the per-1K pricing formula.
func TestTracker_Cost(t *testing.T) {
	tracker := NewTrackerWithRate(Rate{InputPer1K: 0.001, OutputPer1K: 0.002})
	tracker.Add(2000, 500)

	// 2*0.001 + 0.5*0.002 = 0.003
	assert.InDelta(t, 0.003, tracker.Cost(), 1e-9)

	totals := tracker.Totals()
	assert.Equal(t, 2000, totals.InputTokens)
	assert.Equal(t, 500, totals.OutputTokens)
	assert.Equal(t, 2500, totals.TotalTokens)
	assert.Equal(t, 1, totals.Requests)
}

// TestTracker_AccumulatesMonotonically tests that counters only grow.
func TestTracker_AccumulatesMonotonically(t *testing.T) {
	tracker := NewTrackerWithRate(Rate{InputPer1K: 0.001, OutputPer1K: 0.002})

	tracker.Add(100, 50)
	tracker.Add(200, 75)
	tracker.Add(0, 0)

	totals := tracker.Totals()
	assert.Equal(t, 300, totals.InputTokens)
	assert.Equal(t, 125, totals.OutputTokens)
	assert.Equal(t, 425, totals.TotalTokens)
	assert.Equal(t, 3, totals.Requests)
}

// TestTracker_LocalModelIsFree tests that unknown/local models cost
// nothing no matter the usage.
func TestTracker_LocalModelIsFree(t *testing.T) {
	tracker := NewTracker("gpt-oss:20b")
	tracker.Add(1_000_000, 1_000_000)

	assert.Zero(t, tracker.Cost())
	assert.True(t, RateFor("gpt-oss:20b").Zero())
}

// TestRateFor_KnownModel tests rate table lookups.
func TestRateFor_KnownModel(t *testing.T) {
	rate := RateFor("gpt-5-mini")
	assert.False(t, rate.Zero())
	assert.Equal(t, 0.00025, rate.InputPer1K)
}

// TestFormatHelpers tests token and cost formatting.
func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "999", FormatTokens(999))
	assert.Equal(t, "1.5k", FormatTokens(1500))
	assert.Equal(t, "2.0M", FormatTokens(2_000_000))
	assert.Equal(t, "$0.0030", FormatCost(0.003))
}
