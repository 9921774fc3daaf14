// Package retrieval implements hybrid search over the memory substrates:
// three channels (semantic, keyword, graph) run concurrently and their
// ranked results merge through reciprocal rank fusion. Channel weights come
// from query routing unless the caller supplies their own, and a shadow
// auditor flags any row that escapes project scoping.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/project"
)

const (
	defaultTopK = 5
	maxTopK     = 100
)

// Config tunes fusion and auditing.
type Config struct {
	// RRFK is the reciprocal-rank-fusion constant (default 60).
	RRFK int
	// ShadowAudit records CROSS_PROJECT_READ markers for results whose
	// stored project differs from the requesting one.
	ShadowAudit bool
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{RRFK: defaultRRFK, ShadowAudit: true}
}

// Service answers hybrid-search requests against one store.
type Service struct {
	store *memory.SQLiteStore

	mu  sync.RWMutex
	cfg Config
}

// NewService creates a hybrid-search service. Zero config fields fall back
// to defaults.
func NewService(store *memory.SQLiteStore, cfg Config) *Service {
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaultRRFK
	}
	return &Service{store: store, cfg: cfg}
}

// SetConfig swaps the fusion settings. Searches already in flight finish
// with the values they started with.
func (s *Service) SetConfig(cfg Config) {
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaultRRFK
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Request carries one hybrid-search call.
type Request struct {
	QueryText      string
	QueryEmbedding []float32
	TopK           int      // [1,100]; zero means the default of 5
	Weights        *Weights // nil routes by query text
	Tags           []string
	DateFrom       time.Time
	DateTo         time.Time
	SourceTypes    []string // nil admits every source type
	SectorFilter   []string // nil admits every sector; empty admits none
}

// includesSource reports whether a source type participates. A nil filter
// admits everything; an explicitly empty one admits nothing.
func (r *Request) includesSource(source string) bool {
	if r.SourceTypes == nil {
		return true
	}
	for _, s := range r.SourceTypes {
		if s == source {
			return true
		}
	}
	return false
}

func (r *Request) tierFilter() memory.TierFilter {
	return memory.TierFilter{Tags: r.Tags, DateFrom: r.DateFrom, DateTo: r.DateTo}
}

// Result is one fused hybrid-search hit. RRFScore is the fusion score before
// the memory-strength multiplier; Score is what the results are ordered by.
type Result struct {
	ID             int64          `json:"id"`
	SourceType     string         `json:"source_type"`
	Content        string         `json:"content"`
	Score          float64        `json:"score"`
	RRFScore       float64        `json:"rrf_score"`
	MemoryStrength *float64       `json:"memory_strength,omitempty"`
	ChannelRanks   map[string]int `json:"channel_ranks,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
}

// AppliedFilters echoes the filter stages that shaped a response.
type AppliedFilters struct {
	Tags        []string `json:"tags_filter,omitempty"`
	DateFrom    string   `json:"date_from,omitempty"`
	DateTo      string   `json:"date_to,omitempty"`
	SourceTypes []string `json:"source_type_filter,omitempty"`
	Sectors     []string `json:"sector_filter,omitempty"`
}

// Response mirrors the hybrid_search tool payload. Counts are per-channel
// hits before fusion; a degraded channel reports zero but its weight is
// still part of AppliedWeights.
type Response struct {
	Results        []Result       `json:"results"`
	SemanticCount  int            `json:"semantic_results_count"`
	KeywordCount   int            `json:"keyword_results_count"`
	GraphCount     int            `json:"graph_results_count"`
	AppliedWeights Weights        `json:"applied_weights"`
	AppliedFilters AppliedFilters `json:"applied_filters"`
}

// Search validates the request, fans the three channels out concurrently,
// fuses their rankings, and annotates the fused documents from their source
// rows. A dead channel degrades to zero contributions rather than failing
// the call; an empty corpus yields an empty result list, not an error.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	proj, err := project.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}
	if req.TopK < 1 || req.TopK > maxTopK {
		return nil, &memory.ValidationError{Field: "top_k", Message: fmt.Sprintf("%d outside [1,%d]", req.TopK, maxTopK)}
	}
	if !req.DateFrom.IsZero() && !req.DateTo.IsZero() && req.DateFrom.After(req.DateTo) {
		return nil, &memory.ValidationError{Field: "date_from", Message: "must not be after date_to"}
	}
	for _, sec := range req.SectorFilter {
		if !knownSector(sec) {
			return nil, &memory.ValidationError{Field: "sector_filter", Message: fmt.Sprintf("%q is not a known sector", sec)}
		}
	}
	for _, src := range req.SourceTypes {
		switch src {
		case SourceInsight, SourceEpisode, SourceGraph:
		default:
			return nil, &memory.ValidationError{Field: "source_type_filter", Message: fmt.Sprintf("%q is not a known source type", src)}
		}
	}

	cfg := s.config()
	weights := RouteWeights(req.QueryText)
	if req.Weights != nil {
		weights = req.Weights.Normalize()
	}

	// Shared channel inputs. Failures here degrade the affected channel
	// instead of failing the search.
	var entities []string
	if req.includesSource(SourceGraph) {
		known, err := s.store.NodeNames(ctx, nodeNameLimit)
		if err != nil {
			log.Printf("node-name inventory unavailable: %v", err)
		}
		entities = ExtractEntities(req.QueryText, known)
	}
	var episodes []memory.Episode
	if req.includesSource(SourceEpisode) && len(req.QueryEmbedding) > 0 {
		episodes, err = s.loadEpisodes(ctx, &req)
		if err != nil {
			log.Printf("episode corpus unavailable: %v", err)
			episodes = nil
		}
	}

	var (
		wg                         sync.WaitGroup
		semantic, keyword, graphed []rankedDoc
		semErr, kwErr, graphErr    error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		semantic, semErr = s.semanticSearch(ctx, &req, episodes)
	}()
	go func() {
		defer wg.Done()
		keyword, kwErr = s.keywordSearch(ctx, &req)
	}()
	go func() {
		defer wg.Done()
		graphed, graphErr = s.graphSearch(ctx, &req, entities)
	}()
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if semErr != nil {
		log.Printf("semantic channel degraded: %v", semErr)
		semantic = nil
	}
	if kwErr != nil {
		log.Printf("keyword channel degraded: %v", kwErr)
		keyword = nil
	}
	if graphErr != nil {
		log.Printf("graph channel degraded: %v", graphErr)
		graphed = nil
	}

	fused := fuseRRF([]rankedList{
		{channel: channelSemantic, weight: weights.Semantic, docs: semantic},
		{channel: channelKeyword, weight: weights.Keyword, docs: keyword},
		{channel: channelGraph, weight: weights.Graph, docs: graphed},
	}, cfg.RRFK)

	results, leaks, err := s.compose(ctx, fused, proj, episodes)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].RRFScore > results[j].RRFScore
	})
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	if cfg.ShadowAudit {
		s.shadowAudit(ctx, proj, leaks)
	}

	return &Response{
		Results:        results,
		SemanticCount:  len(semantic),
		KeywordCount:   len(keyword),
		GraphCount:     len(graphed),
		AppliedWeights: weights,
		AppliedFilters: appliedFilters(&req),
	}, nil
}

// loadEpisodes reads the recent episode corpus and applies the tag and date
// filters that the insight queries push into SQL.
func (s *Service) loadEpisodes(ctx context.Context, req *Request) ([]memory.Episode, error) {
	all, err := s.store.ListEpisodes(ctx, episodeScanLimit)
	if err != nil {
		return nil, err
	}
	filter := req.tierFilter()
	var out []memory.Episode
	for _, ep := range all {
		if !filter.MatchesTags(ep.Tags) {
			continue
		}
		if !req.DateFrom.IsZero() && ep.CreatedAt.Before(req.DateFrom) {
			continue
		}
		if !req.DateTo.IsZero() && ep.CreatedAt.After(req.DateTo) {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

// shadowLeak records a row that escaped project scoping.
type shadowLeak struct {
	key     docKey
	project string
}

// compose turns fused documents into annotated results by loading their
// source rows. Documents whose row vanished between ranking and load are
// dropped silently. Every result's metadata carries the stored row's
// project id; rows from a foreign project are reported as leaks.
func (s *Service) compose(ctx context.Context, fused []fusedDoc, proj string, episodes []memory.Episode) ([]Result, []shadowLeak, error) {
	var insightIDs []int64
	for _, f := range fused {
		if f.key.kind == SourceInsight {
			insightIDs = append(insightIDs, f.key.id)
		}
	}
	insights := make(map[int64]memory.Insight, len(insightIDs))
	if len(insightIDs) > 0 {
		rows, err := s.store.GetInsightsByIDs(ctx, insightIDs)
		if err != nil {
			return nil, nil, err
		}
		for _, ins := range rows {
			insights[ins.ID] = ins
		}
	}
	episodesByID := make(map[int64]memory.Episode, len(episodes))
	for _, ep := range episodes {
		episodesByID[ep.ID] = ep
	}

	results := make([]Result, 0, len(fused))
	var leaks []shadowLeak
	for _, f := range fused {
		switch f.key.kind {
		case SourceInsight:
			ins, ok := insights[f.key.id]
			if !ok {
				continue
			}
			strength := ins.MemoryStrength
			results = append(results, Result{
				ID:             ins.ID,
				SourceType:     SourceInsight,
				Content:        ins.Content,
				Score:          f.score * strength,
				RRFScore:       f.score,
				MemoryStrength: &strength,
				ChannelRanks:   f.ranks,
				Tags:           ins.Tags,
				Metadata:       withProject(ins.Metadata, ins.ProjectID),
				CreatedAt:      ins.CreatedAt,
			})
			if ins.ProjectID != proj {
				leaks = append(leaks, shadowLeak{key: f.key, project: ins.ProjectID})
			}
		case SourceEpisode:
			ep, ok := episodesByID[f.key.id]
			if !ok {
				continue
			}
			results = append(results, Result{
				ID:           ep.ID,
				SourceType:   SourceEpisode,
				Content:      ep.Query,
				Score:        f.score,
				RRFScore:     f.score,
				ChannelRanks: f.ranks,
				Tags:         ep.Tags,
				Metadata:     withProject(ep.Metadata, ep.ProjectID),
				CreatedAt:    ep.CreatedAt,
			})
			if ep.ProjectID != proj {
				leaks = append(leaks, shadowLeak{key: f.key, project: ep.ProjectID})
			}
		}
	}
	return results, leaks, nil
}

// shadowAudit writes CROSS_PROJECT_READ markers for rows whose stored
// project differs from the requesting one. Under a correct row policy the
// leak list is always empty; the auditor is a tripwire, and its failures
// never block a response.
func (s *Service) shadowAudit(ctx context.Context, proj string, leaks []shadowLeak) {
	for _, l := range leaks {
		_, err := s.store.AppendAudit(ctx, &memory.AuditEntry{
			Action:  memory.AuditCrossProjectRead,
			Blocked: false,
			Actor:   memory.ActorSystem,
			Reason:  fmt.Sprintf("%s %d of project %s surfaced to %s", l.key.kind, l.key.id, l.project, proj),
		})
		if err != nil {
			log.Printf("shadow audit append skipped: %v", err)
		}
	}
}

// withProject clones row metadata with the stored project id stamped in.
func withProject(meta map[string]any, proj string) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["project_id"] = proj
	return out
}

func appliedFilters(req *Request) AppliedFilters {
	f := AppliedFilters{
		Tags:        req.Tags,
		SourceTypes: req.SourceTypes,
		Sectors:     req.SectorFilter,
	}
	if !req.DateFrom.IsZero() {
		f.DateFrom = req.DateFrom.Format("2006-01-02")
	}
	if !req.DateTo.IsZero() {
		f.DateTo = req.DateTo.Format("2006-01-02")
	}
	return f
}

func knownSector(s string) bool {
	for _, valid := range memory.ValidSectors() {
		if s == valid {
			return true
		}
	}
	return false
}
