package graph

import (
	"context"
	"fmt"
	"log"

	"github.com/engramlabs/engram/internal/memory"
)

// DeletePolicy is an optional external policy consulted on every deletion,
// before the built-in constitutive guard. Implementations can veto with a
// reason; a veto is audited like a blocked attempt.
type DeletePolicy interface {
	AllowDelete(ctx context.Context, edge memory.Edge, consentGiven bool) (allowed bool, reason string, err error)
}

// PolicyDeniedError reports a deletion vetoed by the external delete policy.
type PolicyDeniedError struct {
	EdgeID string `json:"edge_id"`
	Reason string `json:"reason"`
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("delete of %s denied by policy: %s", e.EdgeID, e.Reason)
}

// ConstitutiveProtectionError is returned when a constitutive edge would be
// deleted without bilateral consent. The call never silently succeeds.
type ConstitutiveProtectionError struct {
	EdgeID   string `json:"edge_id"`
	Relation string `json:"relation"`
}

func (e *ConstitutiveProtectionError) Error() string {
	return fmt.Sprintf("edge %s (%s) is constitutive; deletion requires bilateral consent", e.EdgeID, e.Relation)
}

// DeleteOutcome reports a completed deletion.
type DeleteOutcome struct {
	Deleted         bool   `json:"deleted"`
	EdgeID          string `json:"edge_id"`
	WasConstitutive bool   `json:"was_constitutive"`
	Reason          string `json:"reason,omitempty"`
}

// DeleteEdge removes an edge. The external policy is consulted first, so a
// retention hold is reported as such even when the constitutive guard would
// also refuse; then the guard enforces bilateral consent. A blocked attempt
// is audited with the edge's property snapshot before the error returns; an
// allowed deletion commits its DELETE_SUCCESS entry in the same transaction
// as the delete, attributed to "I/O" when a constitutive edge went with
// consent and to "system" otherwise.
func (e *Engine) DeleteEdge(ctx context.Context, edgeID string, consentGiven bool) (*DeleteOutcome, error) {
	edge, err := e.store.GetEdgeByID(ctx, edgeID)
	if err != nil {
		return nil, fmt.Errorf("edge %s: %w", edgeID, err)
	}

	if e.policy != nil {
		allowed, reason, err := e.policy.AllowDelete(ctx, *edge, consentGiven)
		if err != nil {
			return nil, fmt.Errorf("delete policy: %w", err)
		}
		if !allowed {
			e.auditBlocked(ctx, edge, "policy veto: "+reason)
			return nil, &PolicyDeniedError{EdgeID: edgeID, Reason: reason}
		}
	}

	constitutive := edge.Properties.IsConstitutive()
	if constitutive && !consentGiven {
		e.auditBlocked(ctx, edge, "constitutive edge requires bilateral consent")
		return nil, &ConstitutiveProtectionError{EdgeID: edgeID, Relation: edge.Relation}
	}

	actor := memory.ActorSystem
	reason := "descriptive edge deleted"
	if constitutive {
		actor = memory.ActorIO
		reason = "constitutive edge deleted with bilateral consent"
	}
	err = e.store.DeleteEdgeAudited(ctx, edgeID, &memory.AuditEntry{
		EdgeID:     edgeID,
		Action:     memory.AuditDeleteSuccess,
		Blocked:    false,
		Reason:     reason,
		Actor:      actor,
		Properties: edge.Properties,
	})
	if err != nil {
		return nil, err
	}
	return &DeleteOutcome{Deleted: true, EdgeID: edgeID, WasConstitutive: constitutive, Reason: reason}, nil
}

// auditBlocked records a refused deletion. The refusal stands even when the
// audit write fails; that failure is only logged.
func (e *Engine) auditBlocked(ctx context.Context, edge *memory.Edge, reason string) {
	_, err := e.store.AppendAudit(ctx, &memory.AuditEntry{
		EdgeID:     edge.ID,
		Action:     memory.AuditDeleteAttempt,
		Blocked:    true,
		Reason:     reason,
		Actor:      memory.ActorSystem,
		Properties: edge.Properties,
	})
	if err != nil {
		log.Printf("blocked-delete audit failed for %s: %v", edge.ID, err)
	}
}
