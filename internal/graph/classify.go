package graph

import (
	"strings"

	"github.com/engramlabs/engram/internal/memory"
)

// Relations that mark a skill or learned capability.
var proceduralRelations = map[string]bool{
	"LEARNED": true,
	"CAN_DO":  true,
}

// Relations that mark self-referential observations.
var reflectiveRelations = map[string]bool{
	"REFLECTS":    true,
	"REFLECTS_ON": true,
	"REALIZED":    true,
}

// Classify assigns a memory sector to an edge from its relation and property
// bag. Rules apply in order; the first match wins:
//
//  1. emotional_valence present          -> emotional
//  2. context_type == shared_experience  -> episodic
//  3. LEARNED / CAN_DO                   -> procedural
//  4. REFLECTS / REFLECTS_ON / REALIZED  -> reflective
//  5. anything else                      -> semantic
//
// Classification runs on every upsert, so an update that adds or removes a
// property can re-tag the edge.
func Classify(relation string, props memory.Properties) string {
	if _, ok := props[memory.PropEmotionalValence]; ok {
		return memory.SectorEmotional
	}
	if props.String(memory.PropContextType) == "shared_experience" {
		return memory.SectorEpisodic
	}
	rel := strings.ToUpper(strings.TrimSpace(relation))
	if proceduralRelations[rel] {
		return memory.SectorProcedural
	}
	if reflectiveRelations[rel] {
		return memory.SectorReflective
	}
	return memory.SectorSemantic
}
