// Package sector classifies graph edges into a memory sector based on
// relation and properties, reapplied on every edge upsert.
package sector

import "github.com/ethrdev/cogmem/internal/propval"

// Sector is one of the five memory-sector tags.
type Sector string

const (
	Emotional  Sector = "emotional"
	Episodic   Sector = "episodic"
	Semantic   Sector = "semantic"
	Procedural Sector = "procedural"
	Reflective Sector = "reflective"
)

var procedural = map[string]bool{"LEARNED": true, "CAN_DO": true}
var reflective = map[string]bool{"REFLECTS": true, "REFLECTS_ON": true, "REALIZED": true}

// Classify applies the five ordered rules, first match wins:
//  1. emotional_valence present → emotional
//  2. context_type == "shared_experience" → episodic
//  3. relation in {LEARNED, CAN_DO} → procedural
//  4. relation in {REFLECTS, REFLECTS_ON, REALIZED} → reflective
//  5. default → semantic
func Classify(relation string, properties map[string]any) Sector {
	if _, ok := properties["emotional_valence"]; ok {
		return Emotional
	}
	if propval.GetString(properties, "context_type") == "shared_experience" {
		return Episodic
	}
	if procedural[relation] {
		return Procedural
	}
	if reflective[relation] {
		return Reflective
	}
	return Semantic
}
