package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/engramlabs/engram/internal/memory"
)

// sectorBarWidth is the widest proportional bar RenderSectorSummary draws.
const sectorBarWidth = 24

var titleCaser = cases.Title(language.English)

// SectorIcon returns the display icon for a memory sector.
func SectorIcon(sector string) string {
	switch sector {
	case memory.SectorEmotional:
		return "❤️"
	case memory.SectorEpisodic:
		return "📖"
	case memory.SectorSemantic:
		return "💡"
	case memory.SectorProcedural:
		return "🔧"
	case memory.SectorReflective:
		return "🔍"
	default:
		return "❓"
	}
}

// SectorStyle returns the accent style for a memory sector.
func SectorStyle(sector string) lipgloss.Style {
	switch sector {
	case memory.SectorEmotional:
		return StylePrimary
	case memory.SectorEpisodic:
		return StyleBlue
	case memory.SectorSemantic:
		return StyleCyan
	case memory.SectorProcedural:
		return StyleSuccess
	case memory.SectorReflective:
		return StyleViolet
	default:
		return StyleSubtle
	}
}

// RenderTierCounts renders the per-tier row counts as a table, ordered from
// raw capture up through the derived tiers.
func RenderTierCounts(counts *memory.TierCounts) string {
	if counts == nil {
		return ""
	}

	table := &Table{
		Headers: []string{"Tier", "Rows"},
		Rows: [][]string{
			{"L0 raw dialogue", strconv.FormatInt(counts.RawDialogue, 10)},
			{"Working memory", strconv.FormatInt(counts.Working, 10)},
			{"L2 insights", strconv.FormatInt(counts.Insights, 10)},
			{"Episodes", strconv.FormatInt(counts.Episodes, 10)},
			{"Graph nodes", strconv.FormatInt(counts.Nodes, 10)},
			{"Graph edges", strconv.FormatInt(counts.Edges, 10)},
			{"Stale memory", strconv.FormatInt(counts.Stale, 10)},
			{"Audit log", strconv.FormatInt(counts.AuditRows, 10)},
			{"Nuance reviews", strconv.FormatInt(counts.Reviews, 10)},
		},
	}
	return table.Render()
}

// RenderSectorSummary renders edge counts per memory sector with a header
// line and proportional bars. Known sectors render in canonical order;
// anything unexpected in the data lands at the end, alphabetical.
func RenderSectorSummary(bySector map[string]int64) string {
	var total int64
	for _, n := range bySector {
		total += n
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(" 🧠 Edges: %d across %d sectors\n", total, len(bySector)))
	sb.WriteString(StyleSubtle.Render(strings.Repeat("─", 50)) + "\n")

	if total == 0 {
		sb.WriteString(StyleSubtle.Render(" (no edges yet)") + "\n")
		return sb.String()
	}

	order := memory.ValidSectors()
	known := make(map[string]bool, len(order))
	for _, s := range order {
		known[s] = true
	}
	var extras []string
	for s := range bySector {
		if !known[s] {
			extras = append(extras, s)
		}
	}
	sort.Strings(extras)
	order = append(order, extras...)

	for _, sector := range order {
		count := bySector[sector]
		if count == 0 {
			continue
		}
		bar := strings.Repeat("█", barLength(count, total))
		sb.WriteString(fmt.Sprintf(" %s %-11s %6d  %s\n",
			SectorIcon(sector),
			titleCaser.String(sector),
			count,
			SectorStyle(sector).Render(bar)))
	}
	return sb.String()
}

// barLength scales a count to at least one cell so small sectors stay visible.
func barLength(count, total int64) int {
	n := int(count * sectorBarWidth / total)
	if n < 1 {
		n = 1
	}
	return n
}

// RenderWorkingMemory renders the working-memory buffer ordered as given
// (callers pass recency order), with importance and age columns.
func RenderWorkingMemory(items []memory.WorkingItem) string {
	if len(items) == 0 {
		return StyleSubtle.Render(" (working memory is empty)") + "\n"
	}

	table := &Table{
		Headers:  []string{"ID", "Content", "Importance", "Last accessed"},
		MaxWidth: 48,
	}
	for _, item := range items {
		table.Rows = append(table.Rows, []string{
			TruncateID(item.ID),
			Truncate(item.Content, 48),
			fmt.Sprintf("%.2f", item.Importance),
			item.LastAccessed.Format("Jan 02 15:04"),
		})
	}
	return table.Render()
}

// RenderAuditTrail renders guard decisions newest-first the way the store
// returns them.
func RenderAuditTrail(entries []memory.AuditEntry) string {
	if len(entries) == 0 {
		return StyleSubtle.Render(" (no audit entries)") + "\n"
	}

	table := &Table{
		Headers:  []string{"When", "Action", "Edge", "Actor", "Outcome"},
		MaxWidth: 32,
	}
	for _, e := range entries {
		// Plain text only: styled cells would skew the width math
		outcome := "allowed"
		if e.Blocked {
			outcome = "blocked"
		}
		table.Rows = append(table.Rows, []string{
			e.CreatedAt.Format("Jan 02 15:04"),
			e.Action,
			TruncateID(e.EdgeID),
			e.Actor,
			outcome,
		})
	}
	return table.Render()
}
