package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// queryStopwords are question-openers and glue words that look like entity
// tokens when they start a sentence but never name one.
var queryStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"what": true, "who": true, "whom": true, "whose": true, "how": true,
	"why": true, "when": true, "where": true, "which": true,
	"can": true, "could": true, "should": true, "would": true, "will": true,
	"tell": true, "show": true, "find": true, "list": true, "describe": true,
}

// ExtractEntities pulls candidate entity names out of a query: maximal runs
// of capitalized tokens, plus any project-known node names mentioned in the
// text. The input is NFC-normalized first so composed and decomposed accents
// compare equal; known-name matches are case-insensitive on word boundaries.
// The result preserves discovery order and holds no duplicates.
func ExtractEntities(queryText string, knownNames []string) []string {
	text := norm.NFC.String(queryText)

	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, name)
	}

	// Capitalized runs: "Go", "San Francisco", "Reciprocal Rank Fusion".
	// A run absorbs leading question-openers ("Does Go ..." keeps only
	// "Go") and ends at the first lowercase token or trailing punctuation.
	var run []string
	flush := func() {
		for len(run) > 0 && queryStopwords[strings.ToLower(run[0])] {
			run = run[1:]
		}
		if len(run) > 0 {
			add(strings.Join(run, " "))
		}
		run = run[:0]
	}
	for _, tok := range strings.Fields(text) {
		word := strings.TrimFunc(tok, isEdgePunct)
		if word == "" || !startsUpper(word) {
			flush()
			continue
		}
		run = append(run, word)
		if r, _ := utf8.DecodeLastRuneInString(tok); isEdgePunct(r) {
			flush() // "Go," ends its phrase at the comma
		}
	}
	flush()

	// Known node names, matched anywhere in the folded query. This is what
	// lets lowercase names like "honesty" reach the graph channel.
	padded := " " + foldQuery(text) + " "
	for _, name := range knownNames {
		folded := foldQuery(name)
		if folded == "" {
			continue
		}
		if strings.Contains(padded, " "+folded+" ") {
			add(name)
		}
	}
	return out
}

func isEdgePunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
