package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/project"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Read-only resource surface. Each memory:// URI serves one tier as a JSON
// array; failures serve the same error object the tools use, so a resource
// read never breaks the protocol stream.

// resourceJSON wraps a marshaled payload in the single-content result the
// SDK expects.
func resourceJSON(uri string, v any) (*mcpsdk.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// resourceError serves a categorized error object as the resource body.
func resourceError(uri, name, projectID string, err error) (*mcpsdk.ReadResourceResult, error) {
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     Classify(name, projectID, err).JSON(),
			},
		},
	}, nil
}

// resourceQuery pulls the query parameters off a requested URI. Readers may
// append filters to the registered base URI.
func resourceQuery(raw string) (url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &memory.ValidationError{Field: "uri", Message: "is not a valid URI"}
	}
	return u.Query(), nil
}

// queryInt reads a positive integer parameter, falling back when absent.
func queryInt(vals url.Values, key string, fallback int) (int, error) {
	raw := vals.Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &memory.ValidationError{Field: key, Message: "must be a positive integer"}
	}
	return n, nil
}

// queryFloat reads a float parameter, falling back when absent.
func queryFloat(vals url.Values, key string, fallback float64) (float64, error) {
	raw := vals.Get(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &memory.ValidationError{Field: key, Message: "must be a number"}
	}
	return f, nil
}

// parseDateRange splits a YYYY-MM-DD:YYYY-MM-DD window into inclusive
// bounds. An empty value leaves both ends open.
func parseDateRange(raw string) (time.Time, time.Time, error) {
	if raw == "" {
		return time.Time{}, time.Time{}, nil
	}
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, &memory.ValidationError{Field: "date_range", Message: "must be YYYY-MM-DD:YYYY-MM-DD"}
	}
	from, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, &memory.ValidationError{Field: "date_range", Message: "must be YYYY-MM-DD:YYYY-MM-DD"}
	}
	to, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, &memory.ValidationError{Field: "date_range", Message: "must be YYYY-MM-DD:YYYY-MM-DD"}
	}
	return from, to.Add(24*time.Hour - time.Nanosecond), nil
}

// resourceContext resolves the effective project for one read and attaches
// it, mirroring the tool dispatcher.
func (t *Toolbox) resourceContext(ctx context.Context, vals url.Values) (context.Context, string, error) {
	projectID, err := t.ResolveProject(vals.Get("project_id"))
	if err != nil {
		return ctx, "", err
	}
	return project.WithProject(ctx, projectID), projectID, nil
}

// insightsResourceHandler serves memory://l2-insights. With a query it runs
// the keyword index; without one it lists newest first.
func insightsResourceHandler(box *Toolbox) mcpsdk.ResourceHandler {
	return func(ctx context.Context, ss *mcpsdk.ServerSession, params *mcpsdk.ReadResourceParams) (*mcpsdk.ReadResourceResult, error) {
		const name = "l2-insights"
		vals, err := resourceQuery(params.URI)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		ctx, projectID, err := box.resourceContext(ctx, vals)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		topK, err := queryInt(vals, "top_k", insightResourceMax)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		if query := vals.Get("query"); query != "" {
			hits, err := box.Store.SearchInsightsFTS(ctx, query, topK, memory.TierFilter{})
			if err != nil {
				return resourceError(params.URI, name, projectID, err)
			}
			return resourceJSON(params.URI, hits)
		}
		insights, err := box.Store.ListInsights(ctx, topK)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		return resourceJSON(params.URI, insights)
	}
}

// workingResourceHandler serves memory://working-memory, the live buffer in
// attention order.
func workingResourceHandler(box *Toolbox) mcpsdk.ResourceHandler {
	return func(ctx context.Context, ss *mcpsdk.ServerSession, params *mcpsdk.ReadResourceParams) (*mcpsdk.ReadResourceResult, error) {
		const name = "working-memory"
		vals, err := resourceQuery(params.URI)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		ctx, projectID, err := box.resourceContext(ctx, vals)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		limit, err := queryInt(vals, "limit", workingResourceMax)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		items, err := box.Working.Items(ctx, limit)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		return resourceJSON(params.URI, items)
	}
}

// episodesResourceHandler serves memory://episode-memory. With a query it
// recalls by embedding similarity; without one it lists newest first.
func episodesResourceHandler(box *Toolbox) mcpsdk.ResourceHandler {
	return func(ctx context.Context, ss *mcpsdk.ServerSession, params *mcpsdk.ReadResourceParams) (*mcpsdk.ReadResourceResult, error) {
		const name = "episode-memory"
		vals, err := resourceQuery(params.URI)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		ctx, projectID, err := box.resourceContext(ctx, vals)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		limit, err := queryInt(vals, "limit", episodeResourceMax)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		if query := vals.Get("query"); query != "" {
			minSim, err := queryFloat(vals, "min_similarity", episodeMinSimilarity)
			if err != nil {
				return resourceError(params.URI, name, projectID, err)
			}
			matches, err := box.Episodes.Recall(ctx, query, minSim, limit)
			if err != nil {
				return resourceError(params.URI, name, projectID, err)
			}
			return resourceJSON(params.URI, matches)
		}
		episodes, err := box.Store.ListEpisodes(ctx, limit)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		return resourceJSON(params.URI, episodes)
	}
}

// dialogueResourceHandler serves memory://l0-raw, the append-only log.
func dialogueResourceHandler(box *Toolbox) mcpsdk.ResourceHandler {
	return func(ctx context.Context, ss *mcpsdk.ServerSession, params *mcpsdk.ReadResourceParams) (*mcpsdk.ReadResourceResult, error) {
		const name = "l0-raw"
		vals, err := resourceQuery(params.URI)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		ctx, projectID, err := box.resourceContext(ctx, vals)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		limit, err := queryInt(vals, "limit", dialogueResourceMax)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		from, to, err := parseDateRange(vals.Get("date_range"))
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		entries, err := box.Dialogue.Recent(ctx, memory.DialogueFilter{
			SessionID: vals.Get("session_id"),
			From:      from,
			To:        to,
			Limit:     limit,
		})
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		return resourceJSON(params.URI, entries)
	}
}

// staleResourceHandler serves memory://stale-memory, the archive shelf.
func staleResourceHandler(box *Toolbox) mcpsdk.ResourceHandler {
	return func(ctx context.Context, ss *mcpsdk.ServerSession, params *mcpsdk.ReadResourceParams) (*mcpsdk.ReadResourceResult, error) {
		const name = "stale-memory"
		vals, err := resourceQuery(params.URI)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		ctx, projectID, err := box.resourceContext(ctx, vals)
		if err != nil {
			return resourceError(params.URI, name, "", err)
		}
		limit, err := queryInt(vals, "limit", staleResourceMax)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		importanceMin, err := queryFloat(vals, "importance_min", 0)
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		items, err := box.Working.Stale(ctx, memory.StaleFilter{
			ImportanceMin: importanceMin,
			Limit:         limit,
		})
		if err != nil {
			return resourceError(params.URI, name, projectID, err)
		}
		return resourceJSON(params.URI, items)
	}
}

// RegisterResources wires the five tier resources onto the server.
func RegisterResources(server *mcpsdk.Server, box *Toolbox) error {
	server.AddResource(&mcpsdk.Resource{
		URI:         "memory://l2-insights",
		Name:        "l2-insights",
		Description: "Distilled insights, newest first. Optional: ?query=<text>&top_k=<int>&project_id=<slug> to search the keyword index instead.",
		MIMEType:    "application/json",
	}, insightsResourceHandler(box))

	server.AddResource(&mcpsdk.Resource{
		URI:         "memory://working-memory",
		Name:        "working-memory",
		Description: "Active working-memory items in attention order. Optional: ?limit=<int>&project_id=<slug>.",
		MIMEType:    "application/json",
	}, workingResourceHandler(box))

	server.AddResource(&mcpsdk.Resource{
		URI:         "memory://episode-memory",
		Name:        "episode-memory",
		Description: "Past task episodes (query, reward, reflection). Optional: ?query=<text>&min_similarity=<float>&limit=<int>&project_id=<slug> for similarity recall.",
		MIMEType:    "application/json",
	}, episodesResourceHandler(box))

	server.AddResource(&mcpsdk.Resource{
		URI:         "memory://l0-raw",
		Name:        "l0-raw",
		Description: "Raw dialogue log, newest first. Optional: ?session_id=<uuid>&date_range=YYYY-MM-DD:YYYY-MM-DD&limit=<int>&project_id=<slug>.",
		MIMEType:    "application/json",
	}, dialogueResourceHandler(box))

	server.AddResource(&mcpsdk.Resource{
		URI:         "memory://stale-memory",
		Name:        "stale-memory",
		Description: "Archived working-memory items awaiting promotion or decay. Optional: ?importance_min=<float>&limit=<int>&project_id=<slug>.",
		MIMEType:    "application/json",
	}, staleResourceHandler(box))

	return nil
}
