package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/ir"
)

// CycleWarning represents a set of derived fields that read each other.
//
// Cycles are warnings, not errors: the pipeline never loops, it reads the
// stored value of any field that has not been computed yet. A cycle only means
// results depend on registry order and may drift between recomputes.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// ForwardReference is a formula that reads a field produced only by a formula
// later in registry order. It sees the stored value rather than the fresh one.
type ForwardReference struct {
	FormulaID  string `json:"formula_id,omitempty"`
	FieldName  string `json:"field_name"`
	Reads      string `json:"reads"`
	ProducedBy string `json:"produced_by,omitempty"`
	Message    string `json:"message"`
}

// DependencyReport is the static analysis of an active formula set.
type DependencyReport struct {
	Cycles            []CycleWarning         `json:"cycles"`
	ForwardReferences []ForwardReference     `json:"forward_references"`
	SuggestedOrder    []ir.FormulaDefinition `json:"suggested_order,omitempty"`
}

// HasWarnings reports whether the analysis found anything to report.
func (r DependencyReport) HasWarnings() bool {
	return len(r.Cycles) > 0 || len(r.ForwardReferences) > 0
}

// AnalyzeDependencies performs static dependency analysis on formulas.
//
// Only active formulas that compile are considered. The algorithm:
//  1. Build field → fields graph from the identifiers each expression reads,
//     keeping only edges to fields some active formula produces
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//  4. Report reads of fields produced only later in order as forward references
//  5. When acyclic, suggest an order where producers precede readers
//
// SuggestedOrder is empty when there are cycles or the current order already
// has no forward references.
func AnalyzeDependencies(formulas []ir.FormulaDefinition) DependencyReport {
	report := DependencyReport{
		Cycles:            []CycleWarning{},
		ForwardReferences: []ForwardReference{},
	}

	nodes := compileNodes(ir.ActiveOnly(formulas))
	if len(nodes) == 0 {
		return report
	}

	graph := buildDependencyGraph(nodes)

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			report.Cycles = append(report.Cycles, cycleSCCToWarning(scc, graph))
		}
	}
	sort.Slice(report.Cycles, func(i, j int) bool {
		return strings.Join(report.Cycles[i].Path, "\x00") < strings.Join(report.Cycles[j].Path, "\x00")
	})

	report.ForwardReferences = forwardReferences(nodes)

	if len(report.Cycles) == 0 && len(report.ForwardReferences) > 0 {
		report.SuggestedOrder = suggestOrder(nodes)
	}

	return report
}

// formulaNode is an active formula with the identifiers its expression reads.
type formulaNode struct {
	def   ir.FormulaDefinition
	reads []string
}

func compileNodes(formulas []ir.FormulaDefinition) []formulaNode {
	ev := expr.New()
	nodes := make([]formulaNode, 0, len(formulas))
	for _, f := range formulas {
		prog, err := ev.Compile(f.Expression)
		if err != nil {
			continue // reported by Validate
		}
		nodes = append(nodes, formulaNode{def: f, reads: prog.Identifiers()})
	}
	return nodes
}

// dependencyGraph maps field → fields its formulas read.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the field dependency graph.
//
// For each formula:
//   - Ensure its field exists as a node
//   - Add edges field → read for every read that is itself a derived field
//
// Duplicate formulas for one field share a node. Edge lists are sorted so
// traversal is deterministic.
func buildDependencyGraph(nodes []formulaNode) dependencyGraph {
	produced := make(map[string]bool)
	for _, n := range nodes {
		produced[n.def.FieldName] = true
	}

	graph := make(dependencyGraph)
	for _, n := range nodes {
		field := n.def.FieldName
		if graph[field] == nil {
			graph[field] = []string{}
		}
		for _, read := range n.reads {
			if produced[read] && !contains(graph[field], read) {
				graph[field] = append(graph[field], read)
			}
		}
	}
	for field := range graph {
		sort.Strings(graph[field])
	}
	return graph
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of field names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	fields := make([]string, 0, len(graph))
	for field := range graph {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if _, visited := indices[field]; !visited {
			strongConnect(field)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// For self-loops, the path is [field, field].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		field := scc[0]
		return CycleWarning{
			Path:    []string{field, field},
			Message: fmt.Sprintf("Self-referencing formula detected: %s reads its own stored value", field),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)

	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Circular dependency detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}

// forwardReferences reports reads of derived fields whose first producer comes
// after the reader in registry order.
func forwardReferences(nodes []formulaNode) []ForwardReference {
	firstProducer := make(map[string]int)
	for i, n := range nodes {
		if _, ok := firstProducer[n.def.FieldName]; !ok {
			firstProducer[n.def.FieldName] = i
		}
	}

	refs := []ForwardReference{}
	for i, n := range nodes {
		for _, read := range n.reads {
			j, ok := firstProducer[read]
			if !ok || j <= i {
				continue
			}
			refs = append(refs, ForwardReference{
				FormulaID:  n.def.ID,
				FieldName:  n.def.FieldName,
				Reads:      read,
				ProducedBy: nodes[j].def.ID,
				Message: fmt.Sprintf("%s reads %s before it is computed; the stored value is used",
					n.def.FieldName, read),
			})
		}
	}
	return refs
}

// suggestOrder returns the formulas topologically sorted so every producer
// precedes its readers. Among ready formulas the earliest in registry order
// goes first. Self-reads are ignored.
func suggestOrder(nodes []formulaNode) []ir.FormulaDefinition {
	producers := make(map[string][]int)
	for i, n := range nodes {
		producers[n.def.FieldName] = append(producers[n.def.FieldName], i)
	}

	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, read := range n.reads {
			for _, j := range producers[read] {
				if j == i {
					continue
				}
				dependents[j] = append(dependents[j], i)
				indegree[i]++
			}
		}
	}

	ready := []int{}
	for i := range nodes {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]ir.FormulaDefinition, 0, len(nodes))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		order = append(order, nodes[i].def)
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil // cycle through duplicate producers
	}
	return order
}
