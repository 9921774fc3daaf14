package memory

import (
	"fmt"
	"time"
)

// Memory sector tags assigned to edges at write time.
// Classification rules live in the graph engine; the store only persists them.
const (
	SectorEmotional  = "emotional"
	SectorEpisodic   = "episodic"
	SectorSemantic   = "semantic"
	SectorProcedural = "procedural"
	SectorReflective = "reflective"
)

// ValidSectors lists every accepted memory sector.
func ValidSectors() []string {
	return []string{SectorEmotional, SectorEpisodic, SectorSemantic, SectorProcedural, SectorReflective}
}

// Edge type values carried in the edge property bag.
const (
	EdgeTypeConstitutive = "constitutive" // identity-defining, delete requires consent
	EdgeTypeDescriptive  = "descriptive"  // ordinary fact, freely deletable
	EdgeTypeResolution   = "resolution"   // outcome of a resolved dissonance
)

// EntrenchmentMaximal is forced onto constitutive edges at upsert time.
const EntrenchmentMaximal = "maximal"

// Audit actions recorded by the edge guard and the shadow auditor.
const (
	AuditDeleteAttempt    = "DELETE_ATTEMPT"
	AuditDeleteSuccess    = "DELETE_SUCCESS"
	AuditCrossProjectRead = "CROSS_PROJECT_READ"
)

// Actors stamped on audit entries.
const (
	ActorSystem = "system"
	ActorIO     = "I/O" // bilateral-consent deletion of a constitutive edge
)

// Archival reasons for stale-memory rows.
const (
	ReasonLRUEviction   = "LRU_EVICTION"
	ReasonManualArchive = "MANUAL_ARCHIVE"
)

// Nuance review statuses.
const (
	ReviewPending  = "PENDING_REVIEW"
	ReviewResolved = "RESOLVED"
)

// Node is an identity-stable entity in the knowledge graph.
// (project_id, name) is unique: the same name in two projects is two nodes.
type Node struct {
	ID         string     `json:"id"`                  // n-xxxxxxxx
	ProjectID  string     `json:"project_id"`
	Label      string     `json:"label"`               // category tag, e.g. "Person", "Concept"
	Name       string     `json:"name"`                // display name, unique within project
	Properties Properties `json:"properties,omitempty"`
	VectorID   *int64     `json:"vector_id,omitempty"` // back-reference to an insight embedding
	CreatedAt  time.Time  `json:"created_at"`
}

// Edge is a directed relationship between two nodes of the same project.
// (project_id, source_id, target_id, relation) is unique.
type Edge struct {
	ID           string     `json:"id"`       // e-xxxxxxxx
	ProjectID    string     `json:"project_id"`
	SourceID     string     `json:"source_id"`
	TargetID     string     `json:"target_id"`
	Relation     string     `json:"relation"` // short verb, e.g. USES, LOVES, SOLVES
	Weight       float64    `json:"weight"`   // [0,1]
	Properties   Properties `json:"properties,omitempty"`
	MemorySector string     `json:"memory_sector"`
	AccessCount  int64      `json:"access_count"`
	LastAccessed time.Time  `json:"last_accessed,omitempty"` // zero when never read
	ModifiedAt   time.Time  `json:"modified_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Insight is a compressed semantic fragment with an embedding (the L2 tier).
// Insights are append-only; they are never mutated after creation.
type Insight struct {
	ID             int64          `json:"id"`
	ProjectID      string         `json:"project_id"`
	Content        string         `json:"content"`
	Embedding      []float32      `json:"-"`
	SourceIDs      []string       `json:"source_ids,omitempty"`
	MemoryStrength float64        `json:"memory_strength"` // [0,1], default 0.5
	Metadata       map[string]any `json:"metadata,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Episode is a past query/reward/reflection tuple used for analogical recall.
type Episode struct {
	ID         int64          `json:"id"`
	ProjectID  string         `json:"project_id"`
	Query      string         `json:"query"`
	Reward     float64        `json:"reward"` // [-1,1]
	Reflection string         `json:"reflection"`
	Embedding  []float32      `json:"-"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DialogueEntry is one append-only raw-dialogue row (the L0 tier).
type DialogueEntry struct {
	ID        string         `json:"id"` // d-xxxxxxxx
	ProjectID string         `json:"project_id"`
	SessionID string         `json:"session_id"`
	Speaker   string         `json:"speaker"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// WorkingItem is one slot in the bounded working-memory buffer.
type WorkingItem struct {
	ID           string    `json:"id"` // wm-xxxxxxxx
	ProjectID    string    `json:"project_id"`
	Content      string    `json:"content"`
	Importance   float64   `json:"importance"` // [0,1]
	LastAccessed time.Time `json:"last_accessed"`
	CreatedAt    time.Time `json:"created_at"`
}

// StaleItem is an archived working-memory item.
type StaleItem struct {
	ID         string    `json:"id"` // sm-xxxxxxxx
	ProjectID  string    `json:"project_id"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Reason     string    `json:"reason"` // LRU_EVICTION or MANUAL_ARCHIVE
	ArchivedAt time.Time `json:"archived_at"`
}

// AuditEntry records one guard decision or shadow-audit observation.
// Entries are append-only and survive deletion of the edge they reference.
type AuditEntry struct {
	ID         string     `json:"id"` // a-xxxxxxxx
	ProjectID  string     `json:"project_id"`
	EdgeID     string     `json:"edge_id"`
	Action     string     `json:"action"`
	Blocked    bool       `json:"blocked"`
	Reason     string     `json:"reason,omitempty"`
	Actor      string     `json:"actor"`
	Properties Properties `json:"properties,omitempty"` // snapshot of the edge at decision time
	CreatedAt  time.Time  `json:"created_at"`
}

// NuanceReview is a pending arbitration over two apparently conflicting edges.
// While pending, both edges carry a temporary IEF penalty.
type NuanceReview struct {
	ID         string    `json:"id"` // r-xxxxxxxx
	ProjectID  string    `json:"project_id"`
	EdgeA      string    `json:"edge_a"`
	EdgeB      string    `json:"edge_b"`
	Status     string    `json:"status"` // PENDING_REVIEW or RESOLVED
	Note       string    `json:"note,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"` // zero while pending
}

// Project is one row of the tenant registry.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessLevel string `json:"access_level"` // super, shared, isolated
}

// FTSResult is one keyword hit over the insights corpus.
type FTSResult struct {
	ID      int64   `json:"id"`
	Content string  `json:"content"`
	Rank    float64 `json:"rank"` // bm25, lower is better
}

// InsightVector is the minimal projection used by the semantic channel:
// everything needed to score an insight without loading its full row.
type InsightVector struct {
	ID             int64
	Embedding      []float32
	MemoryStrength float64
}

// ValidationError reports a malformed tool argument. Handlers surface it as
// a parameter-validation failure rather than an internal error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TierCounts summarizes row counts per memory tier for stats output.
type TierCounts struct {
	Nodes       int64 `json:"nodes"`
	Edges       int64 `json:"edges"`
	Insights    int64 `json:"insights"`
	Episodes    int64 `json:"episodes"`
	Working     int64 `json:"working_memory"`
	Stale       int64 `json:"stale_memory"`
	RawDialogue int64 `json:"raw_dialogue"`
	AuditRows   int64 `json:"audit_log"`
	Reviews     int64 `json:"nuance_reviews"`
}
