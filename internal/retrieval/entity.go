package retrieval

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// entityFuzzyThreshold is the minimum Jaro-Winkler similarity for a query
// n-gram to be accepted as naming a known node (0.85 — strict enough to
// reject unrelated tokens while tolerating minor misspellings).
const entityFuzzyThreshold = 0.85

// ExtractEntities scans query for 1-to-3-word windows that fuzzy-match one
// of knownNames (case-insensitive Jaro-Winkler), returning the matched
// canonical names, deduplicated, in first-seen order. Used to seed the
// graph channel with starting nodes (spec §4.G "entity extraction").
func ExtractEntities(query string, knownNames []string) []string {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || len(knownNames) == 0 {
		return nil
	}

	lowerNames := make([]string, len(knownNames))
	for i, n := range knownNames {
		lowerNames[i] = strings.ToLower(n)
	}

	seen := make(map[string]bool)
	var matched []string

	for windowLen := 1; windowLen <= 3 && windowLen <= len(tokens); windowLen++ {
		for start := 0; start+windowLen <= len(tokens); start++ {
			candidate := strings.Join(tokens[start:start+windowLen], " ")
			for i, name := range lowerNames {
				if name == "" {
					continue
				}
				if matchr.JaroWinkler(candidate, name, false) >= entityFuzzyThreshold {
					canonical := knownNames[i]
					if !seen[canonical] {
						seen[canonical] = true
						matched = append(matched, canonical)
					}
				}
			}
		}
	}
	return matched
}
