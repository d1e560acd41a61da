// Package propval provides validating accessors over the string-keyed
// property bags (map[string]any) carried by graph nodes and edges. It
// represents DESIGN NOTES §9's "properties as tagged records": rather than
// a separate tagged-union type, well-known keys are read through helpers
// that validate shape on access.
package propval

import "strings"

// GetString returns the string value at key, or "" if absent or not a string.
func GetString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetBool returns the bool value at key, or false if absent or not a bool.
func GetBool(props map[string]any, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetStringSlice returns the string-list value at key. Accepts both
// []string and []any (as produced by JSON unmarshalling) containing only
// strings; any other shape returns nil.
func GetStringSlice(props map[string]any, key string) []string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		return nil
	}
}

// IsConstitutive reports whether props marks its owning edge as
// constitutive via edge_type=="constitutive".
func IsConstitutive(props map[string]any) bool {
	return GetString(props, "edge_type") == "constitutive"
}

// Importance returns the edge's importance property, defaulting to "medium"
// per the relevance-score floor rule (spec §4.C).
func Importance(props map[string]any) string {
	if v := GetString(props, "importance"); v != "" {
		return v
	}
	return "medium"
}

// IsSuperseded implements the resolved Open Question from DESIGN NOTES §9:
// an edge is superseded iff its properties have superseded==true, or a
// status string property containing "superseded" (case-insensitive).
func IsSuperseded(props map[string]any) bool {
	if GetBool(props, "superseded") {
		return true
	}
	status := GetString(props, "status")
	return strings.Contains(strings.ToLower(status), "superseded")
}

// VectorID returns the optional back-reference to an insight embedding.
func VectorID(props map[string]any) (int64, bool) {
	v, ok := props["vector_id"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Participants returns the ordered participants list, if any.
func Participants(props map[string]any) []string {
	return GetStringSlice(props, "participants")
}
