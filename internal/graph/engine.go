// Package graph implements the typed property graph at the center of the
// memory service: node and edge upserts with sector classification, recursive
// neighbor traversal, path search, and the deletion guard that protects
// constitutive edges.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/scoring"
)

// Engine wires the store and the scoring calculator into the graph
// operations. One instance per process; all state lives in the store.
type Engine struct {
	store  *memory.SQLiteStore
	calc   *scoring.Calculator
	policy DeletePolicy
}

// NewEngine builds a graph engine over an open store.
func NewEngine(store *memory.SQLiteStore, calc *scoring.Calculator) *Engine {
	return &Engine{store: store, calc: calc}
}

// SetDeletePolicy installs an optional external policy consulted before edge
// deletion, after the built-in constitutive guard.
func (e *Engine) SetDeletePolicy(p DeletePolicy) { e.policy = p }

// NodeResult reports an upsert outcome. Created is true only when this call
// inserted the row.
type NodeResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// EdgeResult reports an edge upsert outcome, including the sector the edge
// was classified into.
type EdgeResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
	Sector  string `json:"memory_sector"`
}

// UpsertNode creates or updates a node keyed on (project, name). On update
// the label and properties are replaced; a stored vector id survives unless
// the caller supplies a new one.
func (e *Engine) UpsertNode(ctx context.Context, label, name string, props memory.Properties, vectorID *int64) (*NodeResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &memory.ValidationError{Field: "name", Message: "must not be empty"}
	}
	id, created, err := e.store.UpsertNode(ctx, memory.NodeUpsert{
		Label:      label,
		Name:       name,
		Properties: props,
		VectorID:   vectorID,
	})
	if err != nil {
		return nil, err
	}
	return &NodeResult{ID: id, Created: created}, nil
}

// UpsertEdge creates or updates an edge keyed on (project, source, target,
// relation). Before the write it forces entrenchment on constitutive edges,
// classifies the sector when the caller did not pick one, and verifies both
// endpoints exist in the current project. Because node lookups are project
// scoped, an endpoint belonging to another tenant is indistinguishable from
// a missing one and is rejected the same way.
func (e *Engine) UpsertEdge(ctx context.Context, sourceID, targetID, relation string, weight float64, props memory.Properties, sector string) (*EdgeResult, error) {
	if strings.TrimSpace(relation) == "" {
		return nil, &memory.ValidationError{Field: "relation", Message: "must not be empty"}
	}
	if weight < 0 || weight > 1 {
		return nil, &memory.ValidationError{Field: "weight", Message: fmt.Sprintf("%v outside [0,1]", weight)}
	}

	if _, err := e.store.GetNodeByID(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("source node %s: %w", sourceID, err)
	}
	if _, err := e.store.GetNodeByID(ctx, targetID); err != nil {
		return nil, fmt.Errorf("target node %s: %w", targetID, err)
	}

	props = props.Clone()
	if props.IsConstitutive() {
		props[memory.PropEntrenchment] = memory.EntrenchmentMaximal
	}

	if sector == "" {
		sector = Classify(relation, props)
	} else if !validSector(sector) {
		return nil, &memory.ValidationError{Field: "memory_sector", Message: fmt.Sprintf("%q is not a known sector", sector)}
	}

	id, created, err := e.store.UpsertEdge(ctx, memory.EdgeUpsert{
		SourceID:   sourceID,
		TargetID:   targetID,
		Relation:   relation,
		Weight:     weight,
		Properties: props,
		Sector:     sector,
	})
	if err != nil {
		return nil, err
	}
	return &EdgeResult{ID: id, Created: created, Sector: sector}, nil
}

// EdgeByNamesResult extends EdgeResult with the resolved endpoints and
// whether either endpoint node had to be created along the way.
type EdgeByNamesResult struct {
	EdgeResult
	SourceID          string `json:"source_id"`
	TargetID          string `json:"target_id"`
	SourceNodeCreated bool   `json:"source_node_created,omitempty"`
	TargetNodeCreated bool   `json:"target_node_created,omitempty"`
}

// UpsertEdgeByNames resolves both endpoints by display name, creating any
// that do not exist yet with the supplied labels, then upserts the edge.
// Existing nodes are left untouched; the labels only apply to fresh ones.
func (e *Engine) UpsertEdgeByNames(ctx context.Context, sourceName, targetName, sourceLabel, targetLabel, relation string, weight float64, props memory.Properties, sector string) (*EdgeByNamesResult, error) {
	if strings.TrimSpace(sourceName) == "" {
		return nil, &memory.ValidationError{Field: "source_name", Message: "must not be empty"}
	}
	if strings.TrimSpace(targetName) == "" {
		return nil, &memory.ValidationError{Field: "target_name", Message: "must not be empty"}
	}

	sourceID, sourceCreated, err := e.ensureNode(ctx, sourceName, sourceLabel)
	if err != nil {
		return nil, fmt.Errorf("source node %q: %w", sourceName, err)
	}
	targetID, targetCreated, err := e.ensureNode(ctx, targetName, targetLabel)
	if err != nil {
		return nil, fmt.Errorf("target node %q: %w", targetName, err)
	}

	res, err := e.UpsertEdge(ctx, sourceID, targetID, relation, weight, props, sector)
	if err != nil {
		return nil, err
	}
	return &EdgeByNamesResult{
		EdgeResult:        *res,
		SourceID:          sourceID,
		TargetID:          targetID,
		SourceNodeCreated: sourceCreated,
		TargetNodeCreated: targetCreated,
	}, nil
}

// ensureNode returns the id of the named node, creating it when absent. An
// existing node keeps its label and properties.
func (e *Engine) ensureNode(ctx context.Context, name, label string) (string, bool, error) {
	n, err := e.store.GetNodeByName(ctx, name)
	if err == nil {
		return n.ID, false, nil
	}
	if !errors.Is(err, memory.ErrNotFound) {
		return "", false, err
	}
	if label == "" {
		label = "Entity"
	}
	id, created, err := e.store.UpsertNode(ctx, memory.NodeUpsert{Label: label, Name: name})
	return id, created, err
}

// GetNode fetches a node by id, falling back to a name lookup so tool
// callers can pass either.
func (e *Engine) GetNode(ctx context.Context, idOrName string) (*memory.Node, error) {
	n, err := e.store.GetNodeByID(ctx, idOrName)
	if errors.Is(err, memory.ErrNotFound) {
		return e.store.GetNodeByName(ctx, idOrName)
	}
	return n, err
}

// GetEdge fetches an edge by id and bumps its access statistics, the same
// best-effort way traversal does.
func (e *Engine) GetEdge(ctx context.Context, id string) (*memory.Edge, error) {
	edge, err := e.store.GetEdgeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.bumpAccess(ctx, []string{id})
	return edge, nil
}

// GetEdgeByEndpoints fetches the edge joining two named nodes over one
// relation. Direct lookups are a read path, so access statistics bump here
// too.
func (e *Engine) GetEdgeByEndpoints(ctx context.Context, sourceName, targetName, relation string) (*memory.Edge, error) {
	edge, err := e.store.GetEdgeByEndpoints(ctx, sourceName, targetName, relation)
	if err != nil {
		return nil, err
	}
	e.bumpAccess(ctx, []string{edge.ID})
	return edge, nil
}

// TouchEdges is the explicit access-stat update: each id is validated as
// well-formed before the atomic bump.
func (e *Engine) TouchEdges(ctx context.Context, ids []string) error {
	return e.store.TouchEdges(ctx, ids)
}

// bumpAccess updates access statistics on a read path. Failures are logged
// and swallowed; a read never fails because its stat write did.
func (e *Engine) bumpAccess(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := e.store.TouchEdges(ctx, ids); err != nil {
		log.Printf("access-stat update skipped: %v", err)
	}
}

func validSector(s string) bool {
	for _, v := range memory.ValidSectors() {
		if s == v {
			return true
		}
	}
	return false
}
