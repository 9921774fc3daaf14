package scoring

import (
	"sync"
	"time"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/util"
)

// IEF constants.
const (
	constitutiveFloor = 1.5 // minimum constitutive_weight for constitutive edges
	descriptiveWeight = 1.0
	nuancePenalty     = 0.1 // while an edge sits in a pending review
	scoreCeiling      = 1.5
)

// Weights holds the four IEF component weights. They are kept non-negative
// and summing to 1; Normalize enforces that after any adjustment.
type Weights struct {
	Relevance    float64 `json:"relevance"`
	Similarity   float64 `json:"similarity"`
	Recency      float64 `json:"recency"`
	Constitutive float64 `json:"constitutive"`
}

// DefaultWeights returns the calibrated starting point.
func DefaultWeights() Weights {
	return Weights{Relevance: 0.30, Similarity: 0.25, Recency: 0.20, Constitutive: 0.25}
}

// Normalize clamps negative components to zero and rescales to sum 1.
// A degenerate all-zero vector resets to the defaults.
func (w Weights) Normalize() Weights {
	w.Relevance = clamp(w.Relevance, 0, 1)
	w.Similarity = clamp(w.Similarity, 0, 1)
	w.Recency = clamp(w.Recency, 0, 1)
	w.Constitutive = clamp(w.Constitutive, 0, 1)

	sum := w.Relevance + w.Similarity + w.Recency + w.Constitutive
	if sum <= 0 {
		return DefaultWeights()
	}
	w.Relevance /= sum
	w.Similarity /= sum
	w.Recency /= sum
	w.Constitutive /= sum
	return w
}

// FeedbackRequest is the correlation handle attached to every scored result.
// Helpful and Reason stay unset until record_feedback fills them in.
type FeedbackRequest struct {
	QueryID string `json:"query_id"`
	Helpful *bool  `json:"helpful"`
	Reason  string `json:"reason,omitempty"`
}

// Breakdown is one IEF evaluation: the composite score, every component,
// the weights in force, and the feedback correlation handle.
type Breakdown struct {
	Score              float64         `json:"score"`
	Relevance          float64         `json:"relevance"`
	Similarity         float64         `json:"similarity"`
	Recency            float64         `json:"recency"`
	ConstitutiveWeight float64         `json:"constitutive_weight"`
	NuancePenalty      float64         `json:"nuance_penalty"`
	Weights            Weights         `json:"weights"`
	FeedbackRequest    FeedbackRequest `json:"feedback_request"`
}

// ScoreInput carries everything one evaluation needs. EdgeEmbedding is the
// insight vector the caller resolved through the edge's vector_id; leave it
// nil (or the query embedding nil) for the neutral similarity.
type ScoreInput struct {
	Edge           memory.Edge
	QueryEmbedding []float32
	EdgeEmbedding  []float32
	PendingReview  bool
	QueryID        string
	Now            time.Time
}

// Calculator owns the mutable IEF state: the live weights and the feedback
// accounting that periodically recalibrates them. One instance per process,
// created at startup and shared by every handler; all access is mutex-guarded.
type Calculator struct {
	mu       sync.Mutex
	weights  Weights
	strategy RecalibrationStrategy

	total    int
	positive int
	negative int
	recent   []Feedback
}

// NewCalculator builds a calculator with the default weights. A nil strategy
// falls back to the proportional nudge.
func NewCalculator(strategy RecalibrationStrategy) *Calculator {
	if strategy == nil {
		strategy = NudgeStrategy{}
	}
	return &Calculator{weights: DefaultWeights(), strategy: strategy}
}

// Weights returns a snapshot of the live weights.
func (c *Calculator) Weights() Weights {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weights
}

// SetWeights replaces the live weights, normalizing first.
func (c *Calculator) SetWeights(w Weights) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights = w.Normalize()
}

// NewQueryID mints the opaque correlation id shared by all results of one
// request, for record_feedback to reference later.
func NewQueryID() string {
	return util.NewID(util.QueryPrefix)
}

// Score evaluates one edge. A zero Now means time.Now.
func (c *Calculator) Score(in ScoreInput) Breakdown {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rel := Relevance(in.Edge, now)
	sim := Cosine(in.QueryEmbedding, in.EdgeEmbedding)
	rec := Recency(in.Edge.ModifiedAt, now)

	cw := descriptiveWeight
	if in.Edge.Properties.IsConstitutive() {
		cw = constitutiveFloor
	}
	penalty := 0.0
	if in.PendingReview {
		penalty = nuancePenalty
	}

	w := c.Weights()
	score := w.Relevance*rel + w.Similarity*sim + w.Recency*rec + w.Constitutive*cw - penalty

	return Breakdown{
		Score:              clamp(score, 0, scoreCeiling),
		Relevance:          rel,
		Similarity:         sim,
		Recency:            rec,
		ConstitutiveWeight: cw,
		NuancePenalty:      penalty,
		Weights:            w,
		FeedbackRequest:    FeedbackRequest{QueryID: in.QueryID},
	}
}
