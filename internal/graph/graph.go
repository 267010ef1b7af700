// Package graph builds the (type, field) dependency graph declared by
// derived DataCores and provides the startup cycle check, the warm-up
// ordering hint and the reverse adjacency consumed by cache invalidation.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zjrosen/fieldcore/internal/log"
	"github.com/zjrosen/fieldcore/internal/schema"
)

// ErrCycle is returned when the declared field dependencies form a cycle.
// It is a fatal configuration error, detected at startup and, defensively,
// by the cache during resolution.
var ErrCycle = errors.New("cycle detected in field dependencies")

// Graph is the immutable dependency graph over (type, field) pairs. Nodes
// are fields with a DirectDerived, Derived, SelfParent or MultiParentList
// DataCore; edges point from a dependent field to each field it reads.
type Graph struct {
	registry   *schema.Registry
	deps       map[schema.FieldRef][]schema.FieldRef
	dependents map[schema.FieldRef][]schema.FieldRef
	nodes      []schema.FieldRef
}

// Build constructs the graph from a finalized registry. Hop references are
// normalized to the declaring type of each field, so a chain written
// against a subtype and one written against the declaring ancestor meet on
// the same node.
func Build(registry *schema.Registry) (*Graph, error) {
	return BuildWithExtras(registry, nil)
}

// BuildWithExtras additionally wires host-declared dependencies: edges a
// registered computation touches beyond its field's declared sources. Keys
// must name derived fields.
func BuildWithExtras(registry *schema.Registry, extras map[schema.FieldRef][]schema.FieldRef) (*Graph, error) {
	if !registry.Finalized() {
		return nil, schema.ErrNotFinalized
	}

	g := &Graph{
		registry:   registry,
		deps:       make(map[schema.FieldRef][]schema.FieldRef),
		dependents: make(map[schema.FieldRef][]schema.FieldRef),
	}

	for _, t := range registry.Types() {
		for _, f := range t.Fields() {
			core := f.DataCore()
			if core == nil || core.Kind() == schema.DataCoreStatic || core.Kind() == schema.DataCoreInstanceStatic {
				continue
			}
			node := f.Ref()
			g.nodes = append(g.nodes, node)
			g.deps[node] = nil

			for _, raw := range core.Dependencies(t.Name()) {
				dep, err := g.normalize(raw)
				if err != nil {
					return nil, err
				}
				g.deps[node] = append(g.deps[node], dep)
				g.dependents[dep] = append(g.dependents[dep], node)
			}
		}
	}

	for rawNode, rawDeps := range extras {
		node, err := g.normalize(rawNode)
		if err != nil {
			return nil, err
		}
		if _, isNode := g.deps[node]; !isNode {
			return nil, fmt.Errorf("%w: extra dependency declared on non-derived field %s", schema.ErrInvalidChain, node)
		}
		for _, rawDep := range rawDeps {
			dep, err := g.normalize(rawDep)
			if err != nil {
				return nil, err
			}
			g.deps[node] = append(g.deps[node], dep)
			g.dependents[dep] = append(g.dependents[dep], node)
		}
	}

	log.Debug(log.CatGraph, "dependency graph built", "nodes", len(g.nodes))
	return g, nil
}

// normalize maps a (type, field) reference to the field's declaring type.
func (g *Graph) normalize(ref schema.FieldRef) (schema.FieldRef, error) {
	field, err := g.registry.FieldOf(ref.Type, ref.Field)
	if err != nil {
		return schema.FieldRef{}, fmt.Errorf("%w: dependency %s", schema.ErrInvalidChain, ref)
	}
	return field.Ref(), nil
}

// Nodes returns every derived field node in registration order.
func (g *Graph) Nodes() []schema.FieldRef {
	return g.nodes
}

// DependenciesOf returns the fields the given node reads, in declaration
// order. Fields without a derived DataCore are leaves: they appear as
// dependencies but never as nodes.
func (g *Graph) DependenciesOf(ref schema.FieldRef) []schema.FieldRef {
	return g.deps[ref]
}

// DependentsOf returns the derived fields that read the given field.
func (g *Graph) DependentsOf(ref schema.FieldRef) []schema.FieldRef {
	return g.dependents[ref]
}

// Validate runs a depth-first cycle detection over the graph. A cycle is
// reported with its full path. This is a startup-time check; resolution
// never runs against an unvalidated graph.
func (g *Graph) Validate() error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current stack
		black = 2 // fully explored
	)
	state := make(map[schema.FieldRef]int)
	var stack []schema.FieldRef

	var visit func(ref schema.FieldRef) error
	visit = func(ref schema.FieldRef) error {
		state[ref] = gray
		stack = append(stack, ref)

		for _, dep := range g.deps[ref] {
			if _, isNode := g.deps[dep]; !isNode {
				continue
			}
			switch state[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				return fmt.Errorf("%w: %s", ErrCycle, cyclePath(stack, dep))
			}
		}

		stack = stack[:len(stack)-1]
		state[ref] = black
		return nil
	}

	for _, node := range g.nodes {
		if state[node] == white {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder returns a deterministic dependency-first ordering of
// all derived nodes. It is an eager warm-up hint only; lazy evaluation is
// the runtime policy and never consults it.
func (g *Graph) TopologicalOrder() ([]schema.FieldRef, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	sorted := append([]schema.FieldRef(nil), g.nodes...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	done := make(map[schema.FieldRef]bool)
	var order []schema.FieldRef

	var emit func(ref schema.FieldRef)
	emit = func(ref schema.FieldRef) {
		if done[ref] {
			return
		}
		done[ref] = true
		deps := append([]schema.FieldRef(nil), g.deps[ref]...)
		sort.Slice(deps, func(i, j int) bool {
			return deps[i].String() < deps[j].String()
		})
		for _, dep := range deps {
			if _, isNode := g.deps[dep]; isNode {
				emit(dep)
			}
		}
		order = append(order, ref)
	}

	for _, node := range sorted {
		emit(node)
	}
	return order, nil
}

// cyclePath renders the portion of the stack that forms the cycle,
// closing it with the repeated node.
func cyclePath(stack []schema.FieldRef, repeat schema.FieldRef) string {
	start := 0
	for i, ref := range stack {
		if ref == repeat {
			start = i
			break
		}
	}
	parts := make([]string, 0, len(stack)-start+1)
	for _, ref := range stack[start:] {
		parts = append(parts, ref.String())
	}
	parts = append(parts, repeat.String())
	return strings.Join(parts, " -> ")
}
