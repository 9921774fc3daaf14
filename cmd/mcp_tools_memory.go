/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"context"
	"strings"

	enginemcp "github.com/engramlabs/engram/internal/mcp"
	"github.com/engramlabs/engram/internal/telemetry"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerMemoryTools wires the tiered-memory surface onto the server:
// hybrid retrieval, insight compression, episodes, the working buffer, raw
// dialogue capture, feedback, dissonance reviews, and the audit log.
func registerMemoryTools(server *mcpsdk.Server, box *enginemcp.Toolbox, tel telemetry.Client) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name: enginemcp.ToolHybridSearch,
		Description: `Search memory across three channels at once: semantic (query_embedding over insight and episode vectors), keyword (full-text over insight content), and graph (entity mentions in query_text). Channel rankings are fused with reciprocal rank fusion and weighted by query intent; pass weights to override the routing.

Optional filters: top_k (default 5, max 100), tags_filter, date_from/date_to (YYYY-MM-DD or RFC 3339), source_type_filter (l2_insight, episode_memory, graph), sector_filter. An empty result set is a success, not an error.`,
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.HybridSearchParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolHybridSearch, p.ProjectID, func(ctx context.Context) (*enginemcp.HybridSearchResult, error) {
			return box.HybridSearch(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name: enginemcp.ToolCompressToInsight,
		Description: `Distill source rows into a durable L2 insight. Provide content plus the source_ids it compresses; with a summarizer model configured, content may be omitted and a draft is generated from the sources. The insight is embedded for semantic search (retried once on failure, stored vectorless after that for later backfill).

A fidelity score compares the insight against its sources; a low score attaches a fidelity_warning to the stored metadata but never fails the call. memory_strength (default 0.5) multiplies the insight's retrieval score.`,
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.CompressParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolCompressToInsight, p.ProjectID, func(ctx context.Context) (*enginemcp.CompressResult, error) {
			return box.Compress(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolStoreEpisode,
		Description: "Record a completed task as an episodic memory: the query it answered, a reward in [-1,1] grading the outcome, and a free-form reflection. Episodes are embedded for similarity recall, so future sessions can retrieve what worked and what did not.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.StoreEpisodeParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolStoreEpisode, p.ProjectID, func(ctx context.Context) (*enginemcp.StoreEpisodeResult, error) {
			return box.StoreEpisode(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolUpdateWorkingMemory,
		Description: "Push an item into the bounded working-memory buffer. When the buffer is full the least important item is evicted; evicted items above the critical importance threshold are archived to stale memory instead of discarded. importance defaults to 0.5.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.UpdateWorkingMemoryParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolUpdateWorkingMemory, p.ProjectID, func(ctx context.Context) (*enginemcp.UpdateWorkingMemoryResult, error) {
			return box.UpdateWorkingMemory(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolDeleteWorkingMemory,
		Description: "Remove an item from the working-memory buffer by ID. Idempotent: deleting an unknown or already-deleted ID returns status \"not_found\" without touching stale memory.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.DeleteWorkingMemoryParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolDeleteWorkingMemory, p.ProjectID, func(ctx context.Context) (*enginemcp.DeleteWorkingMemoryResult, error) {
			return box.DeleteWorkingMemory(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolLogRawDialogue,
		Description: "Append one verbatim conversation turn to the L0 raw dialogue log. session_id groups turns of a conversation and defaults to the MCP session when omitted; speaker and content are required. Raw turns are the source material for later compression into insights.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.LogRawDialogueParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		if p.SessionID == "" && session != nil {
			if sid := strings.TrimSpace(session.ID()); sid != "" {
				p.SessionID = sid
			}
		}
		return runTool(ctx, box, tel, enginemcp.ToolLogRawDialogue, p.ProjectID, func(ctx context.Context) (*enginemcp.LogRawDialogueResult, error) {
			return box.LogRawDialogue(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolRecordFeedback,
		Description: "Grade a scored result set. Pass the query_id returned by an IEF-ranked traversal or path search plus helpful=true/false and an optional reason. After enough accumulated feedback the scoring weights recalibrate; the response reports the current window and active weights.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.RecordFeedbackParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolRecordFeedback, p.ProjectID, func(ctx context.Context) (*enginemcp.RecordFeedbackResult, error) {
			return box.RecordFeedback(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolResolveDissonance,
		Description: "Close a pending nuance review with an arbitration outcome. While a review is open, both referenced edges carry a scoring penalty; resolving lifts it. The resolution text is stored with the review.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.ResolveDissonanceParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolResolveDissonance, p.ProjectID, func(ctx context.Context) (*enginemcp.ResolveDissonanceResult, error) {
			return box.ResolveDissonance(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolListPendingReviews,
		Description: "List open nuance reviews: pairs of edges flagged as contradictory and awaiting arbitration. Use resolve_dissonance to close one.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.ListPendingReviewsParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolListPendingReviews, p.ProjectID, func(ctx context.Context) (*enginemcp.ListPendingReviewsResult, error) {
			return box.ListPendingReviews(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolGetAuditLog,
		Description: "Read the edge-deletion audit trail, newest first. Optional filters: edge_id, action (DELETE_ATTEMPT, DELETE_SUCCESS), actor, limit (default 50, max 500). Blocked attempts on constitutive edges appear with blocked=true.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.GetAuditLogParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolGetAuditLog, p.ProjectID, func(ctx context.Context) (*enginemcp.GetAuditLogResult, error) {
			return box.AuditLog(ctx, p)
		})
	})
}
