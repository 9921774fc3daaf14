/*
Copyright © 2025 Engram Labs
*/
package cmd

import (
	"context"

	enginemcp "github.com/engramlabs/engram/internal/mcp"
	"github.com/engramlabs/engram/internal/telemetry"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerGraphTools wires the typed-graph surface onto the server: node and
// edge upserts, traversal, path finding, and the guarded delete.
func registerGraphTools(server *mcpsdk.Server, box *enginemcp.Toolbox, tel telemetry.Client) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolGraphAddNode,
		Description: "Create or update a node in the memory graph. Upserts by name within the project: adding an existing name merges the new properties instead of erroring. Returns the node ID and whether it was newly created.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.AddNodeParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolGraphAddNode, p.ProjectID, func(ctx context.Context) (*enginemcp.AddNodeResult, error) {
			return box.AddNode(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name: enginemcp.ToolGraphAddEdge,
		Description: `Create or update a typed relationship between two nodes. Endpoints are resolved by name and created on the fly when missing (source_label/target_label set their labels). The edge is classified into a memory sector (emotional, episodic, semantic, procedural, reflective) unless memory_sector pins one.

Set properties.edge_type to "constitutive" for identity-defining bonds that resist deletion; everything else is descriptive. Weight defaults to 1.0. Re-adding the same (source, target, relation) updates weight and properties in place.`,
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.AddEdgeParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolGraphAddEdge, p.ProjectID, func(ctx context.Context) (*enginemcp.AddEdgeResult, error) {
			return box.AddEdge(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name: enginemcp.ToolGraphQueryNeighbors,
		Description: `Expand the neighborhood of a node, up to 5 hops (depth, default 1). Optional filters: relation_type, direction (both/outgoing/incoming, default both), sector_filter, properties_filter (participants matches membership, participants_contains_all requires containment), include_superseded.

Set use_ief=true to rank neighbors by the composite memory score instead of bare relevance; pass query_embedding to add the similarity term. IEF-ranked responses carry a query_id for record_feedback.`,
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.QueryNeighborsParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolGraphQueryNeighbors, p.ProjectID, func(ctx context.Context) (*enginemcp.QueryNeighborsResult, error) {
			return box.QueryNeighbors(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolGraphFindPath,
		Description: "Find shortest paths between two nodes up to max_depth hops (default 5). A search that exhausts its statement budget reports path_found=false with error_type \"timeout\" instead of failing. Set use_ief=true with a query_embedding to score paths by the composite memory score.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.FindPathParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolGraphFindPath, p.ProjectID, func(ctx context.Context) (*enginemcp.FindPathResult, error) {
			return box.FindPath(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolDeleteEdge,
		Description: "Delete a relationship by edge ID. Constitutive edges are protected: deleting one requires consent_given=true, and every attempt, blocked or not, lands in the audit log. Descriptive edges delete immediately.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.DeleteEdgeParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolDeleteEdge, p.ProjectID, func(ctx context.Context) (*enginemcp.DeleteEdgeResult, error) {
			return box.DeleteEdge(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolGetNodeByName,
		Description: "Fetch a single node by display name. A missing node returns status \"not_found\" with a null node rather than an error, so it is safe for write-then-verify checks.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.GetNodeParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolGetNodeByName, p.ProjectID, func(ctx context.Context) (*enginemcp.GetNodeResult, error) {
			return box.NodeByName(ctx, p)
		})
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        enginemcp.ToolGetEdge,
		Description: "Fetch a single relationship by source name, target name, and relation. A missing edge returns status \"not_found\" with a null edge rather than an error.",
	}, func(ctx context.Context, session *mcpsdk.ServerSession, params *mcpsdk.CallToolParamsFor[enginemcp.GetEdgeParams]) (*mcpsdk.CallToolResultFor[any], error) {
		p := params.Arguments
		return runTool(ctx, box, tel, enginemcp.ToolGetEdge, p.ProjectID, func(ctx context.Context) (*enginemcp.GetEdgeResult, error) {
			return box.EdgeByEndpoints(ctx, p)
		})
	})
}
