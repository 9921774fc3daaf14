// Package mcp defines the typed tool surface of the memory service: one
// params struct per tool with shared validation, the JSON result envelopes,
// and the structured error body every failure serializes to. Handlers live
// on the Toolbox; transport registration stays in cmd.
package mcp

import (
	"time"

	"github.com/engramlabs/engram/internal/graph"
	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/retrieval"
	"github.com/engramlabs/engram/internal/scoring"
)

// Tool names exposed over MCP.
const (
	ToolGraphAddNode        = "graph_add_node"
	ToolGraphAddEdge        = "graph_add_edge"
	ToolGraphQueryNeighbors = "graph_query_neighbors"
	ToolGraphFindPath       = "graph_find_path"
	ToolDeleteEdge          = "delete_edge"
	ToolGetNodeByName       = "get_node_by_name"
	ToolGetEdge             = "get_edge"
	ToolHybridSearch        = "hybrid_search"
	ToolCompressToInsight   = "compress_to_l2_insight"
	ToolStoreEpisode        = "store_episode"
	ToolUpdateWorkingMemory = "update_working_memory"
	ToolDeleteWorkingMemory = "delete_working_memory"
	ToolRecordFeedback      = "record_feedback"
	ToolResolveDissonance   = "resolve_dissonance"
	ToolListPendingReviews  = "list_pending_reviews"
	ToolGetAuditLog         = "get_audit_log"
	ToolLogRawDialogue      = "log_raw_dialogue"
)

// ToolNames lists every registered tool. Telemetry uses it as an allowlist:
// only names on this list ever leave the process.
func ToolNames() []string {
	return []string{
		ToolGraphAddNode,
		ToolGraphAddEdge,
		ToolGraphQueryNeighbors,
		ToolGraphFindPath,
		ToolDeleteEdge,
		ToolGetNodeByName,
		ToolGetEdge,
		ToolHybridSearch,
		ToolCompressToInsight,
		ToolStoreEpisode,
		ToolUpdateWorkingMemory,
		ToolDeleteWorkingMemory,
		ToolRecordFeedback,
		ToolResolveDissonance,
		ToolListPendingReviews,
		ToolGetAuditLog,
		ToolLogRawDialogue,
	}
}

// Call statuses reported in result envelopes.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
	StatusTimeout  = "timeout"
)

// Meta is attached to every tool response, success or error.
type Meta struct {
	ProjectID string `json:"project_id"`
}

// === Graph tools ===

// AddNodeParams are the arguments for graph_add_node.
type AddNodeParams struct {
	// Label is the node's category tag. Required.
	Label string `json:"label" validate:"required"`
	// Name is the display name, unique within the project. Required.
	Name string `json:"name" validate:"required"`
	// Properties is a free-form property bag. Optional.
	Properties memory.Properties `json:"properties,omitempty"`
	// VectorID back-references an insight embedding. Optional.
	VectorID *int64 `json:"vector_id,omitempty"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// AddNodeResult is the graph_add_node response.
type AddNodeResult struct {
	NodeID  string `json:"node_id"`
	Created bool   `json:"created"`
	Label   string `json:"label"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Meta    Meta   `json:"metadata"`
}

// AddEdgeParams are the arguments for graph_add_edge. Endpoint nodes are
// resolved by name and created on the fly when missing.
type AddEdgeParams struct {
	// SourceName is the source node's display name. Required.
	SourceName string `json:"source_name" validate:"required"`
	// TargetName is the target node's display name. Required.
	TargetName string `json:"target_name" validate:"required"`
	// Relation is the verb-like edge label, e.g. USES or VALUES. Required.
	Relation string `json:"relation" validate:"required"`
	// SourceLabel is applied when the source node has to be created. Optional.
	SourceLabel string `json:"source_label,omitempty"`
	// TargetLabel is applied when the target node has to be created. Optional.
	TargetLabel string `json:"target_label,omitempty"`
	// Weight is the association strength in [0,1]. Optional; defaults to 1.
	Weight *float64 `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	// Properties is the edge property bag; edge_type steers classification
	// and the constitutive guard. Optional.
	Properties memory.Properties `json:"properties,omitempty"`
	// MemorySector pins the sector instead of classifying it. Optional.
	MemorySector string `json:"memory_sector,omitempty" validate:"omitempty,oneof=emotional episodic semantic procedural reflective"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// AddEdgeResult is the graph_add_edge response.
type AddEdgeResult struct {
	EdgeID            string  `json:"edge_id"`
	Created           bool    `json:"created"`
	SourceID          string  `json:"source_id"`
	TargetID          string  `json:"target_id"`
	Relation          string  `json:"relation"`
	Weight            float64 `json:"weight"`
	MemorySector      string  `json:"memory_sector"`
	SourceNodeCreated bool    `json:"source_node_created,omitempty"`
	TargetNodeCreated bool    `json:"target_node_created,omitempty"`
	Status            string  `json:"status"`
	Meta              Meta    `json:"metadata"`
}

// QueryNeighborsParams are the arguments for graph_query_neighbors.
type QueryNeighborsParams struct {
	// NodeName is the traversal start. Required.
	NodeName string `json:"node_name" validate:"required"`
	// RelationType restricts traversal to one relation. Optional.
	RelationType string `json:"relation_type,omitempty"`
	// Depth is the expansion depth in [1,5]. Optional; defaults to 1.
	Depth int `json:"depth,omitempty" validate:"omitempty,gte=1,lte=5"`
	// Direction is outgoing, incoming, or both. Optional; defaults to both.
	Direction string `json:"direction,omitempty" validate:"omitempty,oneof=both outgoing incoming"`
	// IncludeSuperseded keeps edges marked superseded. Optional.
	IncludeSuperseded bool `json:"include_superseded,omitempty"`
	// PropertiesFilter narrows by edge properties; participants matches
	// membership, participants_contains_all containment. Optional.
	PropertiesFilter map[string]any `json:"properties_filter,omitempty"`
	// SectorFilter admits only the listed sectors. Optional.
	SectorFilter []string `json:"sector_filter,omitempty" validate:"omitempty,dive,oneof=emotional episodic semantic procedural reflective"`
	// UseIEF ranks by the composite score instead of bare relevance. Optional.
	UseIEF bool `json:"use_ief,omitempty"`
	// QueryEmbedding feeds the IEF similarity term. Optional.
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// QueryNeighborsResult is the graph_query_neighbors response.
type QueryNeighborsResult struct {
	StartNode     memory.Node          `json:"start_node"`
	Neighbors     []graph.Neighbor     `json:"neighbors"`
	NeighborCount int                  `json:"neighbor_count"`
	QueryID       string               `json:"query_id,omitempty"`
	QueryParams   QueryNeighborsParams `json:"query_params"`
	ExecutionMs   float64              `json:"execution_time_ms"`
	Status        string               `json:"status"`
	Meta          Meta                 `json:"metadata"`
}

// FindPathParams are the arguments for graph_find_path.
type FindPathParams struct {
	// StartNode is the first endpoint's display name. Required.
	StartNode string `json:"start_node" validate:"required"`
	// EndNode is the second endpoint's display name. Required.
	EndNode string `json:"end_node" validate:"required"`
	// MaxDepth caps the search in [1,10]. Optional; defaults to 5.
	MaxDepth int `json:"max_depth,omitempty" validate:"omitempty,gte=1,lte=10"`
	// UseIEF scores paths with the composite score. Optional.
	UseIEF bool `json:"use_ief,omitempty"`
	// QueryEmbedding feeds the IEF similarity term. Optional.
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// FindPathResult is the graph_find_path response. A search that exhausts its
// statement budget reports path_found=false with error_type "timeout" instead
// of failing.
type FindPathResult struct {
	PathFound   bool           `json:"path_found"`
	PathLength  int            `json:"path_length"`
	Paths       []graph.Path   `json:"paths"`
	ErrorType   string         `json:"error_type,omitempty"`
	QueryID     string         `json:"query_id,omitempty"`
	QueryParams FindPathParams `json:"query_params"`
	ExecutionMs float64        `json:"execution_time_ms"`
	Status      string         `json:"status"`
	Meta        Meta           `json:"metadata"`
}

// DeleteEdgeParams are the arguments for delete_edge.
type DeleteEdgeParams struct {
	// EdgeID names the edge to delete. Required.
	EdgeID string `json:"edge_id" validate:"required"`
	// ConsentGiven records bilateral consent; required to delete a
	// constitutive edge. Optional.
	ConsentGiven bool `json:"consent_given,omitempty"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// DeleteEdgeResult is the delete_edge response.
type DeleteEdgeResult struct {
	Deleted         bool   `json:"deleted"`
	EdgeID          string `json:"edge_id"`
	WasConstitutive bool   `json:"was_constitutive"`
	Reason          string `json:"reason,omitempty"`
	Status          string `json:"status"`
	Meta            Meta   `json:"metadata"`
}

// GetNodeParams are the arguments for get_node_by_name.
type GetNodeParams struct {
	// Name is the display name to look up. Required.
	Name string `json:"name" validate:"required"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// GetNodeResult is the get_node_by_name response. A missing node reports
// status not_found with a null node, never an error.
type GetNodeResult struct {
	Node   *memory.Node `json:"node"`
	Status string       `json:"status"`
	Meta   Meta         `json:"metadata"`
}

// GetEdgeParams are the arguments for get_edge.
type GetEdgeParams struct {
	// SourceName is the source node's display name. Required.
	SourceName string `json:"source_name" validate:"required"`
	// TargetName is the target node's display name. Required.
	TargetName string `json:"target_name" validate:"required"`
	// Relation narrows to one edge on the endpoint pair. Required.
	Relation string `json:"relation" validate:"required"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// GetEdgeResult is the get_edge response. A missing edge reports status
// not_found with a null edge, never an error.
type GetEdgeResult struct {
	Edge   *memory.Edge `json:"edge"`
	Status string       `json:"status"`
	Meta   Meta         `json:"metadata"`
}

// === Retrieval tools ===

// WeightsParam overrides the routed channel weights. Values are renormalized
// to sum to 1, never rejected.
type WeightsParam struct {
	Semantic float64 `json:"semantic" validate:"gte=0"`
	Keyword  float64 `json:"keyword" validate:"gte=0"`
	Graph    float64 `json:"graph" validate:"gte=0"`
}

// HybridSearchParams are the arguments for hybrid_search.
type HybridSearchParams struct {
	// QueryText drives the keyword channel, entity extraction, and weight
	// routing. Required.
	QueryText string `json:"query_text" validate:"required"`
	// QueryEmbedding drives the semantic channel; without it that channel
	// contributes nothing. Optional.
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	// TopK bounds the result list in [1,100]. Optional; defaults to 5.
	TopK int `json:"top_k,omitempty" validate:"omitempty,gte=1,lte=100"`
	// Weights overrides the routed channel weights. Optional.
	Weights *WeightsParam `json:"weights,omitempty"`
	// TagsFilter keeps rows carrying at least one listed tag. Optional.
	TagsFilter []string `json:"tags_filter,omitempty"`
	// DateFrom is the inclusive lower creation bound, YYYY-MM-DD or
	// RFC 3339. Optional.
	DateFrom string `json:"date_from,omitempty"`
	// DateTo is the inclusive upper creation bound. Optional.
	DateTo string `json:"date_to,omitempty"`
	// SourceTypeFilter keeps only the listed source types. Optional.
	SourceTypeFilter []string `json:"source_type_filter,omitempty" validate:"omitempty,dive,oneof=l2_insight episode_memory graph"`
	// SectorFilter keeps graph hits from the listed sectors. Optional.
	SectorFilter []string `json:"sector_filter,omitempty" validate:"omitempty,dive,oneof=emotional episodic semantic procedural reflective"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// HybridSearchResult is the hybrid_search response.
type HybridSearchResult struct {
	Results        []retrieval.Result       `json:"results"`
	SemanticCount  int                      `json:"semantic_results_count"`
	KeywordCount   int                      `json:"keyword_results_count"`
	GraphCount     int                      `json:"graph_results_count"`
	AppliedWeights retrieval.Weights        `json:"applied_weights"`
	AppliedFilters retrieval.AppliedFilters `json:"applied_filters"`
	ProjectID      string                   `json:"project_id"`
	Status         string                   `json:"status"`
	Meta           Meta                     `json:"metadata"`
}

// === Tier tools ===

// CompressParams are the arguments for compress_to_l2_insight.
type CompressParams struct {
	// Content is the compressed text. Optional when SourceIDs resolve and a
	// summarizer model is configured; the draft then comes from the model.
	Content string `json:"content,omitempty"`
	// SourceIDs lists the rows this insight compresses. Required.
	SourceIDs []string `json:"source_ids" validate:"required,min=1"`
	// Tags label the insight. Optional.
	Tags []string `json:"tags,omitempty"`
	// MemoryStrength is the retrieval multiplier in [0,1]. Optional;
	// defaults to 0.5.
	MemoryStrength *float64 `json:"memory_strength,omitempty" validate:"omitempty,gte=0,lte=1"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// CompressResult is the compress_to_l2_insight response.
type CompressResult struct {
	ID              int64     `json:"id"`
	EmbeddingStatus string    `json:"embedding_status"`
	FidelityScore   float64   `json:"fidelity_score"`
	MemoryStrength  float64   `json:"memory_strength"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	Meta            Meta      `json:"metadata"`
}

// StoreEpisodeParams are the arguments for store_episode.
type StoreEpisodeParams struct {
	// Query is the question or task the episode answers. Required.
	Query string `json:"query" validate:"required"`
	// Reward grades the outcome in [-1,1]. Required.
	Reward float64 `json:"reward" validate:"gte=-1,lte=1"`
	// Reflection is the free-form lesson learned. Required.
	Reflection string `json:"reflection" validate:"required"`
	// Tags label the episode. Optional.
	Tags []string `json:"tags,omitempty"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// StoreEpisodeResult is the store_episode response.
type StoreEpisodeResult struct {
	ID              int64     `json:"id"`
	EmbeddingStatus string    `json:"embedding_status"`
	Query           string    `json:"query"`
	Reward          float64   `json:"reward"`
	CreatedAt       time.Time `json:"created_at"`
	Status          string    `json:"status"`
	Meta            Meta      `json:"metadata"`
}

// UpdateWorkingMemoryParams are the arguments for update_working_memory.
type UpdateWorkingMemoryParams struct {
	// Content is the item text. Required.
	Content string `json:"content" validate:"required"`
	// Importance in [0,1] shields the item from eviction above the critical
	// threshold. Optional; defaults to 0.5.
	Importance *float64 `json:"importance,omitempty" validate:"omitempty,gte=0,lte=1"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// UpdateWorkingMemoryResult is the update_working_memory response.
type UpdateWorkingMemoryResult struct {
	Status     string `json:"status"`
	AddedID    string `json:"added_id"`
	EvictedID  string `json:"evicted_id,omitempty"`
	ArchivedID string `json:"archived_id,omitempty"`
	Meta       Meta   `json:"metadata"`
}

// DeleteWorkingMemoryParams are the arguments for delete_working_memory.
type DeleteWorkingMemoryParams struct {
	// ID names the buffer item. Required.
	ID string `json:"id" validate:"required"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// DeleteWorkingMemoryResult is the delete_working_memory response. Deleting
// an unknown id reports not_found; the call is idempotent.
type DeleteWorkingMemoryResult struct {
	Status    string `json:"status"`
	DeletedID string `json:"deleted_id"`
	Meta      Meta   `json:"metadata"`
}

// LogRawDialogueParams are the arguments for log_raw_dialogue.
type LogRawDialogueParams struct {
	// SessionID groups turns of one conversation. Required.
	SessionID string `json:"session_id" validate:"required"`
	// Speaker identifies who produced the turn. Required.
	Speaker string `json:"speaker" validate:"required"`
	// Content is the verbatim turn text. Required.
	Content string `json:"content" validate:"required"`
	// Metadata is free-form annotation. Optional.
	Metadata map[string]any `json:"metadata,omitempty"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// LogRawDialogueResult is the log_raw_dialogue response.
type LogRawDialogueResult struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	Meta      Meta      `json:"metadata"`
}

// === Scoring tools ===

// RecordFeedbackParams are the arguments for record_feedback.
type RecordFeedbackParams struct {
	// QueryID correlates the feedback with a scored result set. Required.
	QueryID string `json:"query_id" validate:"required"`
	// Helpful is the caller's judgment of that result set. Required.
	Helpful *bool `json:"helpful" validate:"required"`
	// Reason motivates the judgment. Optional.
	Reason string `json:"reason,omitempty"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// RecordFeedbackResult is the record_feedback response.
type RecordFeedbackResult struct {
	Total          int             `json:"total"`
	WindowPositive int             `json:"window_positive"`
	WindowNegative int             `json:"window_negative"`
	Recalibrated   bool            `json:"recalibrated"`
	Weights        scoring.Weights `json:"weights"`
	Status         string          `json:"status"`
	Meta           Meta            `json:"metadata"`
}

// ResolveDissonanceParams are the arguments for resolve_dissonance.
type ResolveDissonanceParams struct {
	// ReviewID names the pending review. Required.
	ReviewID string `json:"review_id" validate:"required"`
	// Resolution is the arbitration outcome text. Required.
	Resolution string `json:"resolution" validate:"required"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// ResolveDissonanceResult is the resolve_dissonance response.
type ResolveDissonanceResult struct {
	Review *memory.NuanceReview `json:"review"`
	Status string               `json:"status"`
	Meta   Meta                 `json:"metadata"`
}

// ListPendingReviewsParams are the arguments for list_pending_reviews.
type ListPendingReviewsParams struct {
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// ListPendingReviewsResult is the list_pending_reviews response.
type ListPendingReviewsResult struct {
	Reviews []memory.NuanceReview `json:"reviews"`
	Count   int                   `json:"count"`
	Status  string                `json:"status"`
	Meta    Meta                  `json:"metadata"`
}

// GetAuditLogParams are the arguments for get_audit_log.
type GetAuditLogParams struct {
	// EdgeID narrows to one edge's history. Optional.
	EdgeID string `json:"edge_id,omitempty"`
	// Action narrows to one action, e.g. DELETE_ATTEMPT. Optional.
	Action string `json:"action,omitempty"`
	// Actor narrows to one actor, e.g. system or I/O. Optional.
	Actor string `json:"actor,omitempty"`
	// Limit bounds the result list in [1,500]. Optional; defaults to 50.
	Limit int `json:"limit,omitempty" validate:"omitempty,gte=1,lte=500"`
	// ProjectID overrides the configured default project. Optional.
	ProjectID string `json:"project_id,omitempty"`
}

// GetAuditLogResult is the get_audit_log response.
type GetAuditLogResult struct {
	Entries []memory.AuditEntry `json:"entries"`
	Count   int                 `json:"count"`
	Status  string              `json:"status"`
	Meta    Meta                `json:"metadata"`
}
