package retrieval

import (
	"strings"
	"unicode"
)

// Channel weight profiles. Relational queries lean on the graph channel;
// everything else favors semantic recall.
var (
	defaultWeights    = Weights{Semantic: 0.6, Keyword: 0.2, Graph: 0.2}
	relationalWeights = Weights{Semantic: 0.4, Keyword: 0.2, Graph: 0.4}
)

// relationalKeywords mark a query as being about connections between
// entities rather than about content. Matched on word boundaries after
// case folding, so "Who uses Go?" routes relational but "whoever" does not.
var relationalKeywords = []string{
	"uses", "depends on", "related to", "who", "connects",
	"connected", "relationship",
}

// Weights splits fused relevance across the three retrieval channels.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Graph    float64 `json:"graph"`
}

// Normalize scales the weights to sum to 1. Negative components are clamped
// to zero first; weights that sum to zero fall back to the default profile.
// Callers are never rejected for sloppy weights, the renormalized values are
// simply reported back.
func (w Weights) Normalize() Weights {
	if w.Semantic < 0 {
		w.Semantic = 0
	}
	if w.Keyword < 0 {
		w.Keyword = 0
	}
	if w.Graph < 0 {
		w.Graph = 0
	}
	sum := w.Semantic + w.Keyword + w.Graph
	if sum <= 0 {
		return defaultWeights
	}
	return Weights{
		Semantic: w.Semantic / sum,
		Keyword:  w.Keyword / sum,
		Graph:    w.Graph / sum,
	}
}

// RouteWeights picks a weight profile from the query text alone.
func RouteWeights(queryText string) Weights {
	padded := " " + foldQuery(queryText) + " "
	for _, kw := range relationalKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			return relationalWeights
		}
	}
	return defaultWeights
}

// foldQuery lowercases text and flattens punctuation runs to single spaces
// so keyword and name checks see clean word boundaries.
func foldQuery(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
