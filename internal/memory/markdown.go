package memory

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Exporter renders memory tiers as human-readable markdown files.
// It writes through an afero.Fs so tests can run against an in-memory
// filesystem.
type Exporter struct {
	fs      afero.Fs
	baseDir string
}

// NewExporter creates an exporter rooted at baseDir.
// Use afero.NewOsFs() for real exports, afero.NewMemMapFs() in tests.
func NewExporter(fs afero.Fs, baseDir string) *Exporter {
	return &Exporter{fs: fs, baseDir: baseDir}
}

// NewOsExporter creates an exporter against the real filesystem.
func NewOsExporter(baseDir string) *Exporter {
	return NewExporter(afero.NewOsFs(), baseDir)
}

// WriteGraph renders the knowledge graph grouped by memory sector.
// Constitutive edges are marked as protected.
func (x *Exporter) WriteGraph(nodes []Node, edges []Edge) (string, error) {
	byID := make(map[string]string, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n.Name
	}
	name := func(id string) string {
		if n, ok := byID[id]; ok {
			return n
		}
		return id
	}

	bySector := make(map[string][]Edge)
	for _, e := range edges {
		bySector[e.MemorySector] = append(bySector[e.MemorySector], e)
	}
	sectors := make([]string, 0, len(bySector))
	for s := range bySector {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	var sb strings.Builder
	sb.WriteString("# Knowledge Graph\n\n")
	sb.WriteString(fmt.Sprintf("%d nodes, %d edges\n\n", len(nodes), len(edges)))

	sb.WriteString("## Nodes\n\n")
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("- **%s** (%s)\n", n.Name, n.Label))
	}
	sb.WriteString("\n")

	for _, sector := range sectors {
		sb.WriteString(fmt.Sprintf("## Sector: %s\n\n", sector))
		for _, e := range bySector[sector] {
			mark := ""
			if e.Properties.IsConstitutive() {
				mark = " 🔒"
			}
			sb.WriteString(fmt.Sprintf("- %s —%s→ %s (weight %.2f, accessed %d×)%s\n",
				name(e.SourceID), e.Relation, name(e.TargetID), e.Weight, e.AccessCount, mark))
		}
		sb.WriteString("\n")
	}

	return x.write("graph.md", sb.String())
}

// WriteInsights renders the compressed-insight tier.
func (x *Exporter) WriteInsights(insights []Insight) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Insights\n\n")
	for _, ins := range insights {
		sb.WriteString(fmt.Sprintf("### #%d (strength %.2f)\n\n", ins.ID, ins.MemoryStrength))
		sb.WriteString(ins.Content + "\n\n")
		if len(ins.Tags) > 0 {
			sb.WriteString("Tags: " + strings.Join(ins.Tags, ", ") + "\n\n")
		}
		if len(ins.SourceIDs) > 0 {
			sb.WriteString("Sources: " + strings.Join(ins.SourceIDs, ", ") + "\n\n")
		}
	}
	return x.write("insights.md", sb.String())
}

// WriteEpisodes renders past query/reward/reflection tuples.
func (x *Exporter) WriteEpisodes(episodes []Episode) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Episodes\n\n")
	for _, ep := range episodes {
		sb.WriteString(fmt.Sprintf("### %s\n\n", ep.Query))
		sb.WriteString(fmt.Sprintf("- **Reward:** %+.2f\n", ep.Reward))
		if ep.Reflection != "" {
			sb.WriteString(fmt.Sprintf("- **Reflection:** %s\n", ep.Reflection))
		}
		sb.WriteString(fmt.Sprintf("- **Date:** %s\n\n", ep.CreatedAt.Format("2006-01-02")))
	}
	return x.write("episodes.md", sb.String())
}

// WriteWorking renders the live buffer and the stale archive side by side.
func (x *Exporter) WriteWorking(items []WorkingItem, stale []StaleItem) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Working Memory\n\n")
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("- [%.2f] %s\n", it.Importance, it.Content))
	}
	sb.WriteString("\n## Stale Archive\n\n")
	for _, st := range stale {
		sb.WriteString(fmt.Sprintf("- [%.2f] %s (%s)\n", st.Importance, st.Content, st.Reason))
	}
	return x.write("working.md", sb.String())
}

// WriteSummary renders the index page with tier and sector counts.
func (x *Exporter) WriteSummary(counts *TierCounts, sectors map[string]int64) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Memory Export\n\n")
	sb.WriteString("| Tier | Rows |\n|------|------|\n")
	sb.WriteString(fmt.Sprintf("| Nodes | %d |\n", counts.Nodes))
	sb.WriteString(fmt.Sprintf("| Edges | %d |\n", counts.Edges))
	sb.WriteString(fmt.Sprintf("| Insights | %d |\n", counts.Insights))
	sb.WriteString(fmt.Sprintf("| Episodes | %d |\n", counts.Episodes))
	sb.WriteString(fmt.Sprintf("| Working | %d |\n", counts.Working))
	sb.WriteString(fmt.Sprintf("| Stale | %d |\n", counts.Stale))
	sb.WriteString(fmt.Sprintf("| Raw dialogue | %d |\n", counts.RawDialogue))
	sb.WriteString(fmt.Sprintf("| Audit log | %d |\n", counts.AuditRows))

	if len(sectors) > 0 {
		names := make([]string, 0, len(sectors))
		for s := range sectors {
			names = append(names, s)
		}
		sort.Strings(names)
		sb.WriteString("\n## Sectors\n\n")
		for _, s := range names {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", s, sectors[s]))
		}
	}

	return x.write("README.md", sb.String())
}

func (x *Exporter) write(name, content string) (string, error) {
	if err := x.fs.MkdirAll(x.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(x.baseDir, name)
	if err := afero.WriteFile(x.fs, path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
