package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/engramlabs/engram/internal/graph"
	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/project"
	"github.com/engramlabs/engram/internal/retrieval"
	"github.com/engramlabs/engram/internal/scoring"
	"github.com/engramlabs/engram/internal/tiers"
)

// Handler defaults.
const (
	defaultEdgeWeight    = 1.0
	defaultImportance    = 0.5
	defaultAuditLimit    = 50
	dialogueResourceMax  = 200
	workingResourceMax   = 100
	insightResourceMax   = 20
	episodeResourceMax   = 20
	staleResourceMax     = 100
	episodeMinSimilarity = 0.0
)

// Toolbox bundles the domain components the tool handlers call into. One
// instance serves the whole process; every field is safe for concurrent use.
type Toolbox struct {
	Store      *memory.SQLiteStore
	Graph      *graph.Engine
	Search     *retrieval.Service
	Compressor *tiers.Compressor
	Episodes   *tiers.Episodes
	Working    *tiers.WorkingMemory
	Dialogue   *tiers.Dialogue
	Nuance     *scoring.NuanceEngine
	Calculator *scoring.Calculator

	// DefaultProject applies when a call carries no explicit project_id.
	DefaultProject string
}

// ResolveProject picks the effective project for one call: the explicit
// value when supplied, the configured default otherwise. Invalid
// identifiers surface as validation failures on project_id.
func (t *Toolbox) ResolveProject(explicit string) (string, error) {
	id, err := project.Resolve(explicit, t.DefaultProject)
	if err != nil {
		return "", &memory.ValidationError{Field: "project_id", Message: err.Error()}
	}
	return id, nil
}

// metaFrom builds the response metadata from the project the dispatcher
// attached. Handlers only run with a project in context.
func metaFrom(ctx context.Context) Meta {
	return Meta{ProjectID: project.MustFromContext(ctx)}
}

// elapsedMs reports wall time since start in milliseconds.
func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// === Graph tools ===

// AddNode handles graph_add_node.
func (t *Toolbox) AddNode(ctx context.Context, p AddNodeParams) (*AddNodeResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	res, err := t.Graph.UpsertNode(ctx, p.Label, p.Name, p.Properties, p.VectorID)
	if err != nil {
		return nil, err
	}
	return &AddNodeResult{
		NodeID:  res.ID,
		Created: res.Created,
		Label:   p.Label,
		Name:    p.Name,
		Status:  StatusSuccess,
		Meta:    metaFrom(ctx),
	}, nil
}

// AddEdge handles graph_add_edge.
func (t *Toolbox) AddEdge(ctx context.Context, p AddEdgeParams) (*AddEdgeResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	weight := defaultEdgeWeight
	if p.Weight != nil {
		weight = *p.Weight
	}
	res, err := t.Graph.UpsertEdgeByNames(ctx, p.SourceName, p.TargetName, p.SourceLabel, p.TargetLabel, p.Relation, weight, p.Properties, p.MemorySector)
	if err != nil {
		return nil, err
	}
	return &AddEdgeResult{
		EdgeID:            res.ID,
		Created:           res.Created,
		SourceID:          res.SourceID,
		TargetID:          res.TargetID,
		Relation:          p.Relation,
		Weight:            weight,
		MemorySector:      res.Sector,
		SourceNodeCreated: res.SourceNodeCreated,
		TargetNodeCreated: res.TargetNodeCreated,
		Status:            StatusSuccess,
		Meta:              metaFrom(ctx),
	}, nil
}

// QueryNeighbors handles graph_query_neighbors.
func (t *Toolbox) QueryNeighbors(ctx context.Context, p QueryNeighborsParams) (*QueryNeighborsResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := t.Graph.Neighbors(ctx, p.NodeName, graph.TraverseOptions{
		Relation:          p.RelationType,
		Depth:             p.Depth,
		Direction:         memory.Direction(p.Direction),
		IncludeSuperseded: p.IncludeSuperseded,
		PropertyFilter:    p.PropertiesFilter,
		SectorFilter:      p.SectorFilter,
		UseIEF:            p.UseIEF,
		QueryEmbedding:    p.QueryEmbedding,
	})
	if err != nil {
		return nil, err
	}
	return &QueryNeighborsResult{
		StartNode:     res.Start,
		Neighbors:     res.Neighbors,
		NeighborCount: len(res.Neighbors),
		QueryID:       res.QueryID,
		QueryParams:   echoNeighborsParams(p),
		ExecutionMs:   elapsedMs(start),
		Status:        StatusSuccess,
		Meta:          metaFrom(ctx),
	}, nil
}

// echoNeighborsParams is the query_params echo. The embedding is elided:
// echoing a D-dimensional vector back at the caller only burns tokens.
func echoNeighborsParams(p QueryNeighborsParams) QueryNeighborsParams {
	p.QueryEmbedding = nil
	return p
}

// FindPath handles graph_find_path.
func (t *Toolbox) FindPath(ctx context.Context, p FindPathParams) (*FindPathResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	start := time.Now()
	echo := p
	echo.QueryEmbedding = nil

	res, err := t.Graph.FindPaths(ctx, p.StartNode, p.EndNode, graph.PathOptions{
		MaxDepth:       p.MaxDepth,
		UseIEF:         p.UseIEF,
		QueryEmbedding: p.QueryEmbedding,
	})
	if errors.Is(err, graph.ErrPathTimeout) {
		return &FindPathResult{
			PathFound:   false,
			ErrorType:   ErrorTypeTimeout,
			QueryParams: echo,
			ExecutionMs: elapsedMs(start),
			Status:      StatusTimeout,
			Meta:        metaFrom(ctx),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	length := 0
	if len(res.Paths) > 0 {
		length = res.Paths[0].Length
	}
	return &FindPathResult{
		PathFound:   res.Found,
		PathLength:  length,
		Paths:       res.Paths,
		QueryID:     res.QueryID,
		QueryParams: echo,
		ExecutionMs: elapsedMs(start),
		Status:      StatusSuccess,
		Meta:        metaFrom(ctx),
	}, nil
}

// DeleteEdge handles delete_edge. The guard's refusals come back as typed
// errors; the dispatcher serializes them with their category.
func (t *Toolbox) DeleteEdge(ctx context.Context, p DeleteEdgeParams) (*DeleteEdgeResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	out, err := t.Graph.DeleteEdge(ctx, p.EdgeID, p.ConsentGiven)
	if err != nil {
		return nil, err
	}
	return &DeleteEdgeResult{
		Deleted:         out.Deleted,
		EdgeID:          out.EdgeID,
		WasConstitutive: out.WasConstitutive,
		Reason:          out.Reason,
		Status:          StatusSuccess,
		Meta:            metaFrom(ctx),
	}, nil
}

// NodeByName handles get_node_by_name, the write-then-verify helper. A
// missing node is a structured not_found, never an error.
func (t *Toolbox) NodeByName(ctx context.Context, p GetNodeParams) (*GetNodeResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	node, err := t.Store.GetNodeByName(ctx, p.Name)
	if errors.Is(err, memory.ErrNotFound) {
		return &GetNodeResult{Status: StatusNotFound, Meta: metaFrom(ctx)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &GetNodeResult{Node: node, Status: StatusSuccess, Meta: metaFrom(ctx)}, nil
}

// EdgeByEndpoints handles get_edge. Same not_found contract as NodeByName.
func (t *Toolbox) EdgeByEndpoints(ctx context.Context, p GetEdgeParams) (*GetEdgeResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	edge, err := t.Graph.GetEdgeByEndpoints(ctx, p.SourceName, p.TargetName, p.Relation)
	if errors.Is(err, memory.ErrNotFound) {
		return &GetEdgeResult{Status: StatusNotFound, Meta: metaFrom(ctx)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &GetEdgeResult{Edge: edge, Status: StatusSuccess, Meta: metaFrom(ctx)}, nil
}

// === Retrieval tools ===

// HybridSearch handles hybrid_search.
func (t *Toolbox) HybridSearch(ctx context.Context, p HybridSearchParams) (*HybridSearchResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	from, err := parseDate("date_from", p.DateFrom, false)
	if err != nil {
		return nil, err
	}
	to, err := parseDate("date_to", p.DateTo, true)
	if err != nil {
		return nil, err
	}

	req := retrieval.Request{
		QueryText:      p.QueryText,
		QueryEmbedding: p.QueryEmbedding,
		TopK:           p.TopK,
		Tags:           p.TagsFilter,
		DateFrom:       from,
		DateTo:         to,
		SourceTypes:    p.SourceTypeFilter,
		SectorFilter:   p.SectorFilter,
	}
	if p.Weights != nil {
		req.Weights = &retrieval.Weights{
			Semantic: p.Weights.Semantic,
			Keyword:  p.Weights.Keyword,
			Graph:    p.Weights.Graph,
		}
	}

	resp, err := t.Search.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	meta := metaFrom(ctx)
	return &HybridSearchResult{
		Results:        resp.Results,
		SemanticCount:  resp.SemanticCount,
		KeywordCount:   resp.KeywordCount,
		GraphCount:     resp.GraphCount,
		AppliedWeights: resp.AppliedWeights,
		AppliedFilters: resp.AppliedFilters,
		ProjectID:      meta.ProjectID,
		Status:         StatusSuccess,
		Meta:           meta,
	}, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Date-only values mark the start
// of the day; when end is set they mark its last instant, which keeps a
// date_to bound inclusive.
func parseDate(field, value string, end bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		if end {
			ts = ts.Add(24*time.Hour - time.Nanosecond)
		}
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, &memory.ValidationError{Field: field, Message: "must be YYYY-MM-DD or RFC 3339"}
}

// === Tier tools ===

// Compress handles compress_to_l2_insight.
func (t *Toolbox) Compress(ctx context.Context, p CompressParams) (*CompressResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	res, err := t.Compressor.Compress(ctx, tiers.CompressRequest{
		Content:        p.Content,
		SourceIDs:      p.SourceIDs,
		Tags:           p.Tags,
		MemoryStrength: p.MemoryStrength,
	})
	if err != nil {
		return nil, err
	}
	return &CompressResult{
		ID:              res.ID,
		EmbeddingStatus: res.EmbeddingStatus,
		FidelityScore:   res.FidelityScore,
		MemoryStrength:  res.MemoryStrength,
		Timestamp:       res.Timestamp,
		Status:          StatusSuccess,
		Meta:            metaFrom(ctx),
	}, nil
}

// StoreEpisode handles store_episode.
func (t *Toolbox) StoreEpisode(ctx context.Context, p StoreEpisodeParams) (*StoreEpisodeResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	res, err := t.Episodes.Record(ctx, tiers.EpisodeRequest{
		Query:      p.Query,
		Reward:     p.Reward,
		Reflection: p.Reflection,
		Tags:       p.Tags,
	})
	if err != nil {
		return nil, err
	}
	return &StoreEpisodeResult{
		ID:              res.ID,
		EmbeddingStatus: res.EmbeddingStatus,
		Query:           res.Query,
		Reward:          res.Reward,
		CreatedAt:       res.CreatedAt,
		Status:          StatusSuccess,
		Meta:            metaFrom(ctx),
	}, nil
}

// UpdateWorkingMemory handles update_working_memory.
func (t *Toolbox) UpdateWorkingMemory(ctx context.Context, p UpdateWorkingMemoryParams) (*UpdateWorkingMemoryResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	importance := defaultImportance
	if p.Importance != nil {
		importance = *p.Importance
	}
	res, err := t.Working.Update(ctx, p.Content, importance)
	if err != nil {
		return nil, err
	}
	return &UpdateWorkingMemoryResult{
		Status:     res.Status,
		AddedID:    res.AddedID,
		EvictedID:  res.EvictedID,
		ArchivedID: res.ArchivedID,
		Meta:       metaFrom(ctx),
	}, nil
}

// DeleteWorkingMemory handles delete_working_memory. Unknown ids report
// not_found; repeating the call is harmless.
func (t *Toolbox) DeleteWorkingMemory(ctx context.Context, p DeleteWorkingMemoryParams) (*DeleteWorkingMemoryResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	res, err := t.Working.Delete(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &DeleteWorkingMemoryResult{
		Status:    res.Status,
		DeletedID: res.DeletedID,
		Meta:      metaFrom(ctx),
	}, nil
}

// LogRawDialogue handles log_raw_dialogue, the append-only L0 write.
func (t *Toolbox) LogRawDialogue(ctx context.Context, p LogRawDialogueParams) (*LogRawDialogueResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	entry, err := t.Dialogue.Log(ctx, tiers.LogRequest{
		SessionID: p.SessionID,
		Speaker:   p.Speaker,
		Content:   p.Content,
		Metadata:  p.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &LogRawDialogueResult{
		ID:        entry.ID,
		SessionID: entry.SessionID,
		CreatedAt: entry.CreatedAt,
		Status:    StatusSuccess,
		Meta:      metaFrom(ctx),
	}, nil
}

// === Scoring tools ===

// RecordFeedback handles record_feedback. The counters live in process, so
// this never touches the store.
func (t *Toolbox) RecordFeedback(ctx context.Context, p RecordFeedbackParams) (*RecordFeedbackResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	state := t.Calculator.RecordFeedback(p.QueryID, *p.Helpful, p.Reason)
	return &RecordFeedbackResult{
		Total:          state.Total,
		WindowPositive: state.WindowPositive,
		WindowNegative: state.WindowNegative,
		Recalibrated:   state.Recalibrated,
		Weights:        state.Weights,
		Status:         StatusSuccess,
		Meta:           metaFrom(ctx),
	}, nil
}

// ResolveDissonance handles resolve_dissonance.
func (t *Toolbox) ResolveDissonance(ctx context.Context, p ResolveDissonanceParams) (*ResolveDissonanceResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	review, err := t.Nuance.Resolve(ctx, p.ReviewID, p.Resolution)
	if err != nil {
		return nil, err
	}
	return &ResolveDissonanceResult{
		Review: review,
		Status: StatusSuccess,
		Meta:   metaFrom(ctx),
	}, nil
}

// ListPendingReviews handles list_pending_reviews.
func (t *Toolbox) ListPendingReviews(ctx context.Context, p ListPendingReviewsParams) (*ListPendingReviewsResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	reviews, err := t.Nuance.ListReviews(ctx, memory.ReviewPending)
	if err != nil {
		return nil, err
	}
	return &ListPendingReviewsResult{
		Reviews: reviews,
		Count:   len(reviews),
		Status:  StatusSuccess,
		Meta:    metaFrom(ctx),
	}, nil
}

// AuditLog handles get_audit_log.
func (t *Toolbox) AuditLog(ctx context.Context, p GetAuditLogParams) (*GetAuditLogResult, error) {
	if err := ValidateParams(&p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit == 0 {
		limit = defaultAuditLimit
	}
	entries, err := t.Store.ListAudit(ctx, memory.AuditFilter{
		EdgeID: p.EdgeID,
		Action: p.Action,
		Actor:  p.Actor,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return &GetAuditLogResult{
		Entries: entries,
		Count:   len(entries),
		Status:  StatusSuccess,
		Meta:    metaFrom(ctx),
	}, nil
}
