package domain

import "strings"

// Domain contains the payload shapes returned by the graph backend. The backend
// owns their schema, so they stay loosely typed JSON objects.

// Config is the decoded body of GET /config.
type Config map[string]any

// Node is one graph node returned by a search.
type Node map[string]any

// Relationship is one edge returned for a start node.
type Relationship map[string]any

// Labels returns the node labels when the backend includes them.
func (n Node) Labels() []string {
	return stringSlice(n["labels"])
}

// Properties returns the node property map, or nil.
func (n Node) Properties() map[string]any {
	return objectField(n, "properties")
}

// Type returns the relationship type, checking the common field names.
func (r Relationship) Type() string {
	for _, key := range []string{"type", "relType", "label"} {
		if s, ok := r[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Properties returns the relationship property map, or nil.
func (r Relationship) Properties() map[string]any {
	return objectField(r, "properties")
}

func objectField(obj map[string]any, key string) map[string]any {
	if m, ok := obj[key].(map[string]any); ok {
		return m
	}
	return nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
