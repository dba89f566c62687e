package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/comptox-ai/comptox-api-client/internal/domain"
	"github.com/comptox-ai/comptox-api-client/pkg/query"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	keyColor    = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
)

// printState renders a query result. An error with no data to fall back on is
// returned to the caller; an error next to cached data is printed as a warning.
func printState[T any](w io.Writer, st query.State[T], asJSON bool, render func(io.Writer, T)) error {
	if st.Error != nil && !st.HasData {
		return st.Error
	}
	if st.Error != nil {
		warnColor.Fprintf(w, "warning: %v (showing cached data)\n", st.Error)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st.Data)
	}
	render(w, st.Data)
	return nil
}

func renderConfig(w io.Writer, cfg domain.Config) {
	if len(cfg) == 0 {
		fmt.Fprintln(w, "config is empty")
		return
	}
	headerColor.Fprintln(w, "Config")
	renderFields(w, "  ", cfg)
}

func renderNodes(w io.Writer, nodes []domain.Node) {
	headerColor.Fprintf(w, "Nodes (%d)\n", len(nodes))
	for _, n := range nodes {
		labels := n.Labels()
		if len(labels) == 0 {
			labels = []string{"?"}
		}
		fmt.Fprintf(w, "- %s\n", strings.Join(labels, ":"))
		props := n.Properties()
		if props == nil {
			props = map[string]any(n)
		}
		renderFields(w, "    ", props)
	}
}

func renderRelationships(w io.Writer, rels []domain.Relationship) {
	headerColor.Fprintf(w, "Relationships (%d)\n", len(rels))
	for _, r := range rels {
		typ := r.Type()
		if typ == "" {
			typ = "?"
		}
		fmt.Fprintf(w, "- %s\n", typ)
		props := r.Properties()
		if props == nil {
			props = map[string]any(r)
		}
		renderFields(w, "    ", props)
	}
}

func renderFields(w io.Writer, indent string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprint(w, indent)
		keyColor.Fprint(w, k)
		fmt.Fprintf(w, ": %s\n", formatValue(fields[k]))
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	default:
		return fmt.Sprint(val)
	}
}
