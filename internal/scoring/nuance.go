package scoring

import (
	"context"
	"fmt"

	"github.com/engramlabs/engram/internal/memory"
)

// NuanceEngine tracks pending arbitrations over apparently conflicting
// edges. While a review is pending, both referenced edges carry the nuance
// penalty in their IEF score; resolution lifts it.
type NuanceEngine struct {
	store *memory.SQLiteStore
}

func NewNuanceEngine(store *memory.SQLiteStore) *NuanceEngine {
	return &NuanceEngine{store: store}
}

// PendingEdgeIDs returns the set of edge ids referenced by any non-resolved
// review, for the scoring penalty.
func (n *NuanceEngine) PendingEdgeIDs(ctx context.Context) (map[string]bool, error) {
	return n.store.PendingReviewEdgeIDs(ctx)
}

// OpenReview files a pending review over two existing, distinct edges.
func (n *NuanceEngine) OpenReview(ctx context.Context, edgeA, edgeB, note string) (string, error) {
	if edgeA == edgeB {
		return "", fmt.Errorf("a review needs two distinct edges, got %s twice", edgeA)
	}
	for _, id := range []string{edgeA, edgeB} {
		if _, err := n.store.GetEdgeByID(ctx, id); err != nil {
			return "", fmt.Errorf("review references edge %s: %w", id, err)
		}
	}
	return n.store.OpenReview(ctx, edgeA, edgeB, note)
}

// Resolve transitions a pending review to RESOLVED with the given outcome
// and returns the updated review.
func (n *NuanceEngine) Resolve(ctx context.Context, reviewID, resolution string) (*memory.NuanceReview, error) {
	if resolution == "" {
		return nil, fmt.Errorf("resolution text is required")
	}
	if err := n.store.ResolveReview(ctx, reviewID, resolution); err != nil {
		return nil, err
	}
	return n.store.GetReview(ctx, reviewID)
}

// ListReviews returns reviews filtered by status ("" for all).
func (n *NuanceEngine) ListReviews(ctx context.Context, status string) ([]memory.NuanceReview, error) {
	return n.store.ListReviews(ctx, status)
}
