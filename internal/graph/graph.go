// Package graph builds file-to-file import graphs from a generated project.
package graph

import (
	"fmt"
	"sort"
	"strings"

	graphlib "github.com/dominikbraun/graph"

	"github.com/mpataki/foundry/internal/models"
)

// Graph is an immutable import graph. An edge A -> B means A imports B.
// It is rebuilt from scratch on every validation pass.
type Graph struct {
	language models.Language
	nodes    []string
	edges    map[string][]string

	unresolved map[string][]string
	malformed  map[string][]Malformed

	// directory -> files importing it as a python package
	packageDirs map[string][]string
	declared    map[string]string
}

// Build scans every source file of the given language in files.
func Build(files models.FileSet, lang models.Language) *Graph {
	r := resolverFor(files, lang)
	g := &Graph{
		language:    lang,
		edges:       make(map[string][]string),
		unresolved:  make(map[string][]string),
		malformed:   make(map[string][]Malformed),
		packageDirs: make(map[string][]string),
		declared:    make(map[string]string),
	}

	for _, p := range files.Paths() {
		if hasExt(p, r.ext()) {
			g.nodes = append(g.nodes, p)
		}
	}

	for _, p := range g.nodes {
		scan := r.scan(files[p].Content)
		if scan.hasPkg {
			g.declared[p] = scan.pkg
		}
		if len(scan.malformed) > 0 {
			g.malformed[p] = scan.malformed
		}

		targets := make(map[string]struct{})
		for _, ref := range scan.imports {
			t := r.resolve(p, ref)
			switch t.kind {
			case resolved:
				for _, f := range t.files {
					targets[f] = struct{}{}
				}
				for _, d := range t.packageDirs {
					g.packageDirs[d] = appendUnique(g.packageDirs[d], p)
				}
			case unresolved:
				g.unresolved[p] = appendUnique(g.unresolved[p], ref.Token)
			}
		}
		for f := range targets {
			g.edges[p] = append(g.edges[p], f)
		}
		sort.Strings(g.edges[p])
	}
	return g
}

func (g *Graph) Language() models.Language { return g.language }

// Nodes returns all source files in lexical order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Edges returns the files imported by path.
func (g *Graph) Edges(path string) []string {
	return append([]string(nil), g.edges[path]...)
}

// UnresolvedEdgesFrom returns import tokens in path that look like project
// imports but match no file.
func (g *Graph) UnresolvedEdgesFrom(path string) []string {
	return append([]string(nil), g.unresolved[path]...)
}

func (g *Graph) MalformedImportsFrom(path string) []Malformed {
	return append([]Malformed(nil), g.malformed[path]...)
}

// PackageDirs returns every directory imported as a python package, mapped
// to the files that import through it.
func (g *Graph) PackageDirs() map[string][]string {
	out := make(map[string][]string, len(g.packageDirs))
	for d, importers := range g.packageDirs {
		out[d] = append([]string(nil), importers...)
	}
	return out
}

// DeclaredPackage returns the package statement of a java or kotlin file.
func (g *Graph) DeclaredPackage(path string) (string, bool) {
	pkg, ok := g.declared[path]
	return pkg, ok
}

// DetectCycles returns every distinct cycle. Each cycle starts and ends with
// the same node; a self-import is reported as [A, A]. Cycles that are
// rotations of one another are reported once.
func (g *Graph) DetectCycles() [][]string {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(g.nodes))
	onStack := make(map[string]int)
	seen := make(map[string]bool)
	var stack []string
	var cycles [][]string

	var visit func(n string)
	visit = func(n string) {
		state[n] = active
		onStack[n] = len(stack)
		stack = append(stack, n)

		for _, m := range g.edges[n] {
			switch state[m] {
			case unvisited:
				visit(m)
			case active:
				cycle := append(append([]string(nil), stack[onStack[m]:]...), m)
				key := cycleKey(cycle[:len(cycle)-1])
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, n)
		state[n] = done
	}

	for _, n := range g.nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return cycles
}

// cycleKey rotates the cycle to start at its smallest node.
func cycleKey(nodes []string) string {
	start := 0
	for i, n := range nodes {
		if n < nodes[start] {
			start = i
		}
	}
	rotated := append(append([]string(nil), nodes[start:]...), nodes[:start]...)
	return strings.Join(rotated, "\x00")
}

// BuildOrder returns the files with dependencies before their importers.
// It fails when the graph has a cycle.
func (g *Graph) BuildOrder() ([]string, error) {
	dg := graphlib.New(graphlib.StringHash, graphlib.Directed())
	for _, n := range g.nodes {
		if err := dg.AddVertex(n); err != nil {
			return nil, fmt.Errorf("add vertex %s: %w", n, err)
		}
	}
	for _, n := range g.nodes {
		for _, m := range g.edges[n] {
			if err := dg.AddEdge(n, m); err != nil {
				return nil, fmt.Errorf("add edge %s -> %s: %w", n, m, err)
			}
		}
	}

	order, err := graphlib.StableTopologicalSort(dg, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("build order: %w", err)
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
