package sparql

import (
	"strings"

	"github.com/phisdata/phis-dal/engine/domain"
)

// InsertData renders INSERT DATA for the triplets, scoped to graph when set.
// It returns "" when there is nothing to insert.
func InsertData(graph domain.ResourceURI, ts []domain.Triplet) string {
	return data("INSERT DATA", graph, ts)
}

// DeleteData renders DELETE DATA for the triplets, scoped to graph when set.
// It returns "" when there is nothing to delete.
func DeleteData(graph domain.ResourceURI, ts []domain.Triplet) string {
	return data("DELETE DATA", graph, ts)
}

// Join combines update operations into one request. Operations are applied in
// order and atomically by the store.
func Join(ops ...string) string {
	var kept []string
	for _, op := range ops {
		if op != "" {
			kept = append(kept, op)
		}
	}
	return strings.Join(kept, " ;\n")
}

func data(keyword string, graph domain.ResourceURI, ts []domain.Triplet) string {
	if len(ts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(keyword + " {\n")
	prefix := "  "
	if !graph.IsZero() {
		sb.WriteString("  GRAPH " + ser(graph) + " {\n")
		prefix = "    "
	}
	for _, t := range ts {
		sb.WriteString(prefix + t.NTriple() + "\n")
	}
	if !graph.IsZero() {
		sb.WriteString("  }\n")
	}
	sb.WriteString("}")
	return sb.String()
}
