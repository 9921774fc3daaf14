package mcp

import (
	"errors"
	"strings"
	"testing"

	"github.com/engramlabs/engram/internal/memory"
)

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func TestToolNames(t *testing.T) {
	names := ToolNames()
	if len(names) != 17 {
		t.Fatalf("ToolNames() returned %d names, want 17", len(names))
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Errorf("ToolNames() lists %q twice", n)
		}
		seen[n] = true
	}
	for _, want := range []string{
		ToolGraphAddNode, ToolGraphAddEdge, ToolGraphQueryNeighbors,
		ToolGraphFindPath, ToolDeleteEdge, ToolGetNodeByName, ToolGetEdge,
		ToolHybridSearch, ToolCompressToInsight, ToolStoreEpisode,
		ToolUpdateWorkingMemory, ToolDeleteWorkingMemory, ToolRecordFeedback,
		ToolResolveDissonance, ToolListPendingReviews, ToolGetAuditLog,
		ToolLogRawDialogue,
	} {
		if !seen[want] {
			t.Errorf("ToolNames() is missing %q", want)
		}
	}
}

func TestValidateParamsRequired(t *testing.T) {
	tests := []struct {
		name   string
		params any
		field  string // "" means the params are valid
	}{
		{"add_node ok", &AddNodeParams{Label: "Person", Name: "I/O"}, ""},
		{"add_node missing label", &AddNodeParams{Name: "I/O"}, "label"},
		{"add_node missing name", &AddNodeParams{Label: "Person"}, "name"},
		{"add_edge ok", &AddEdgeParams{SourceName: "I/O", TargetName: "Go", Relation: "USES"}, ""},
		{"add_edge missing source", &AddEdgeParams{TargetName: "Go", Relation: "USES"}, "source_name"},
		{"add_edge missing relation", &AddEdgeParams{SourceName: "I/O", TargetName: "Go"}, "relation"},
		{"neighbors ok", &QueryNeighborsParams{NodeName: "I/O"}, ""},
		{"neighbors missing node", &QueryNeighborsParams{}, "node_name"},
		{"path missing end", &FindPathParams{StartNode: "I/O"}, "end_node"},
		{"delete_edge missing id", &DeleteEdgeParams{}, "edge_id"},
		{"get_node missing name", &GetNodeParams{}, "name"},
		{"get_edge missing target", &GetEdgeParams{SourceName: "I/O", Relation: "USES"}, "target_name"},
		{"search ok", &HybridSearchParams{QueryText: "deadlines"}, ""},
		{"search missing query", &HybridSearchParams{}, "query_text"},
		{"compress missing sources", &CompressParams{Content: "short"}, "source_ids"},
		{"compress empty sources", &CompressParams{Content: "short", SourceIDs: []string{}}, "source_ids"},
		{"episode ok", &StoreEpisodeParams{Query: "q", Reflection: "r"}, ""},
		{"episode missing reflection", &StoreEpisodeParams{Query: "q"}, "reflection"},
		{"working missing content", &UpdateWorkingMemoryParams{}, "content"},
		{"working delete missing id", &DeleteWorkingMemoryParams{}, "id"},
		{"dialogue missing speaker", &LogRawDialogueParams{SessionID: "s", Content: "c"}, "speaker"},
		{"feedback ok", &RecordFeedbackParams{QueryID: "q-1", Helpful: bptr(false)}, ""},
		{"feedback nil helpful", &RecordFeedbackParams{QueryID: "q-1"}, "helpful"},
		{"dissonance missing resolution", &ResolveDissonanceParams{ReviewID: "r-1"}, "resolution"},
		{"audit ok", &GetAuditLogParams{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.params)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("ValidateParams() = %v, want nil", err)
				}
				return
			}
			var verr *memory.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateParams() = %v, want *memory.ValidationError", err)
			}
			// Dived fields report with an index suffix.
			if !strings.HasPrefix(verr.Field, tt.field) {
				t.Errorf("ValidateParams() flagged %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestValidateParamsRanges(t *testing.T) {
	tests := []struct {
		name   string
		params any
		field  string
		want   string // substring of the message
	}{
		{"weight above one",
			&AddEdgeParams{SourceName: "a", TargetName: "b", Relation: "R", Weight: fptr(1.5)},
			"weight", "must be at most 1"},
		{"weight below zero",
			&AddEdgeParams{SourceName: "a", TargetName: "b", Relation: "R", Weight: fptr(-0.1)},
			"weight", "must be at least 0"},
		{"unknown sector",
			&AddEdgeParams{SourceName: "a", TargetName: "b", Relation: "R", MemorySector: "astral"},
			"memory_sector", "must be one of: emotional, episodic, semantic, procedural, reflective"},
		{"depth too deep",
			&QueryNeighborsParams{NodeName: "a", Depth: 6},
			"depth", "must be at most 5"},
		{"sideways direction",
			&QueryNeighborsParams{NodeName: "a", Direction: "sideways"},
			"direction", "must be one of: both, outgoing, incoming"},
		{"sector filter element",
			&QueryNeighborsParams{NodeName: "a", SectorFilter: []string{"semantic", "astral"}},
			"sector_filter", "must be one of"},
		{"max_depth too deep",
			&FindPathParams{StartNode: "a", EndNode: "b", MaxDepth: 11},
			"max_depth", "must be at most 10"},
		{"top_k too big",
			&HybridSearchParams{QueryText: "q", TopK: 101},
			"top_k", "must be at most 100"},
		{"negative weight channel",
			&HybridSearchParams{QueryText: "q", Weights: &WeightsParam{Semantic: -1}},
			"semantic", "must be at least 0"},
		{"unknown source type",
			&HybridSearchParams{QueryText: "q", SourceTypeFilter: []string{"l3_wisdom"}},
			"source_type_filter", "must be one of"},
		{"memory strength above one",
			&CompressParams{Content: "c", SourceIDs: []string{"d-1"}, MemoryStrength: fptr(1.5)},
			"memory_strength", "must be at most 1"},
		{"reward below minus one",
			&StoreEpisodeParams{Query: "q", Reflection: "r", Reward: -2},
			"reward", "must be at least -1"},
		{"importance above one",
			&UpdateWorkingMemoryParams{Content: "c", Importance: fptr(1.2)},
			"importance", "must be at most 1"},
		{"audit limit too big",
			&GetAuditLogParams{Limit: 501},
			"limit", "must be at most 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.params)
			var verr *memory.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateParams() = %v, want *memory.ValidationError", err)
			}
			if !strings.HasPrefix(verr.Field, tt.field) {
				t.Errorf("ValidateParams() flagged %q, want %q", verr.Field, tt.field)
			}
			if !strings.Contains(verr.Message, tt.want) {
				t.Errorf("ValidateParams() message %q does not mention %q", verr.Message, tt.want)
			}
		})
	}
}

func TestValidateParamsOptionalZeroes(t *testing.T) {
	// Zero values on bounded-but-optional fields mean "use the default" and
	// must pass.
	tests := []struct {
		name   string
		params any
	}{
		{"neighbors zero depth", &QueryNeighborsParams{NodeName: "a"}},
		{"path zero max_depth", &FindPathParams{StartNode: "a", EndNode: "b"}},
		{"search zero top_k", &HybridSearchParams{QueryText: "q"}},
		{"audit zero limit", &GetAuditLogParams{}},
		{"episode zero reward", &StoreEpisodeParams{Query: "q", Reflection: "r"}},
		{"edge nil weight", &AddEdgeParams{SourceName: "a", TargetName: "b", Relation: "R"}},
		{"working nil importance", &UpdateWorkingMemoryParams{Content: "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateParams(tt.params); err != nil {
				t.Errorf("ValidateParams() = %v, want nil", err)
			}
		})
	}
}
