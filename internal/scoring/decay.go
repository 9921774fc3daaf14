// Package scoring implements the decay curves, similarity measures, and the
// integrative evaluation function (IEF) that rank everything the service
// returns: edge relevance follows an Ebbinghaus forgetting curve whose
// strength grows with access count, and the IEF folds relevance, semantic
// similarity, recency, and constitutive weight into one score with a
// feedback-driven weight recalibration loop.
package scoring

import (
	"math"
	"time"

	"github.com/engramlabs/engram/internal/memory"
)

// Decay constants. Strength scales logarithmically with access count; the
// importance floors keep rarely-touched but declared-important edges alive.
const (
	baseStrength        = 100.0
	floorHighImportance = 200.0
	floorMedImportance  = 100.0
	recencyHalfLifeDays = 30.0
)

// Relevance scores an edge on the forgetting curve. Constitutive edges are
// exempt from decay entirely. An edge that has never been accessed has not
// started decaying and scores 1.0.
func Relevance(e memory.Edge, now time.Time) float64 {
	if e.Properties.IsConstitutive() {
		return 1.0
	}

	strength := baseStrength * (1 + math.Log(1+float64(e.AccessCount)))
	switch e.Properties.Importance() {
	case memory.ImportanceHigh:
		strength = math.Max(strength, floorHighImportance)
	case memory.ImportanceMedium:
		strength = math.Max(strength, floorMedImportance)
	}

	if e.LastAccessed.IsZero() {
		return 1.0
	}

	days := now.Sub(e.LastAccessed).Hours() / 24
	return clamp(math.Exp(-days/strength), 0, 1)
}

// Recency boosts recently modified edges: exp(−d/30) over modified_at,
// 0.5 when the timestamp is absent.
func Recency(modifiedAt, now time.Time) float64 {
	if modifiedAt.IsZero() {
		return 0.5
	}
	days := now.Sub(modifiedAt).Hours() / 24
	return clamp(math.Exp(-days/recencyHalfLifeDays), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
