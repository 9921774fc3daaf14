package scoring

import "time"

// RecalibrationInterval is how many accumulated feedbacks trigger one
// weight adjustment.
const RecalibrationInterval = 50

// recentFeedbackCap bounds the in-process feedback ring.
const recentFeedbackCap = 100

// Feedback is one recorded judgment about a scored result set.
type Feedback struct {
	QueryID string    `json:"query_id"`
	Helpful bool      `json:"helpful"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// FeedbackState reports the accounting after one record_feedback call.
type FeedbackState struct {
	Total          int     `json:"total"`
	WindowPositive int     `json:"window_positive"`
	WindowNegative int     `json:"window_negative"`
	Recalibrated   bool    `json:"recalibrated"`
	Weights        Weights `json:"weights"`
}

// RecalibrationStrategy adjusts the IEF weights at the end of a feedback
// window. Implementations may return anything; the calculator normalizes the
// result, so non-negativity and sum-to-1 always hold.
type RecalibrationStrategy interface {
	Recalibrate(current Weights, positive, negative int) Weights
}

// StrategyFunc adapts a function to the strategy interface.
type StrategyFunc func(current Weights, positive, negative int) Weights

func (f StrategyFunc) Recalibrate(current Weights, positive, negative int) Weights {
	return f(current, positive, negative)
}

// NudgeStrategy shifts weight between the relevance and similarity terms in
// proportion to the unhelpful share of the window: a mostly-unhelpful window
// moves up to Step from similarity to relevance, a mostly-helpful window
// moves it back. Step defaults to 0.05.
type NudgeStrategy struct {
	Step float64
}

func (n NudgeStrategy) Recalibrate(current Weights, positive, negative int) Weights {
	total := positive + negative
	if total == 0 {
		return current
	}
	step := n.Step
	if step <= 0 {
		step = 0.05
	}

	helpfulRatio := float64(positive) / float64(total)
	delta := step * (0.5 - helpfulRatio) * 2 // in [-step, +step]
	current.Relevance += delta
	current.Similarity -= delta
	return current.Normalize()
}

// RecordFeedback accumulates one judgment and, every RecalibrationInterval
// feedbacks, runs the strategy over the window and resets the window
// counters. The whole update happens under the calculator lock so scoring
// never observes a half-applied recalibration.
func (c *Calculator) RecordFeedback(queryID string, helpful bool, reason string) FeedbackState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if helpful {
		c.positive++
	} else {
		c.negative++
	}

	c.recent = append(c.recent, Feedback{
		QueryID: queryID,
		Helpful: helpful,
		Reason:  reason,
		At:      time.Now().UTC(),
	})
	if len(c.recent) > recentFeedbackCap {
		c.recent = c.recent[len(c.recent)-recentFeedbackCap:]
	}

	state := FeedbackState{
		Total:          c.total,
		WindowPositive: c.positive,
		WindowNegative: c.negative,
	}

	if c.total%RecalibrationInterval == 0 {
		c.weights = c.strategy.Recalibrate(c.weights, c.positive, c.negative).Normalize()
		c.positive, c.negative = 0, 0
		state.Recalibrated = true
	}

	state.Weights = c.weights
	return state
}

// RecentFeedback returns a copy of the in-process feedback ring, newest last.
func (c *Calculator) RecentFeedback() []Feedback {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Feedback, len(c.recent))
	copy(out, c.recent)
	return out
}
