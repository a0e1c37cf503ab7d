// Package topo orders nodes so that dependencies come before dependents.
package topo

import (
	"errors"
	"slices"

	"github.com/hlop3z/pgphase/pkg/schema"
)

// ErrCircularDependency is returned when the dependency graph has a cycle.
var ErrCircularDependency = errors.New("circular dependency detected")

// Node is anything with an identity and dependencies on other nodes.
type Node interface {
	ID() string
	Dependencies() []string
}

// Sort performs a topological sort using Kahn's algorithm. Nodes that become
// ready at the same time are emitted by ID so the result is deterministic.
// Dependencies outside the node set are ignored.
func Sort[T Node](nodes []T) ([]T, error) {
	if len(nodes) <= 1 {
		return nodes, nil
	}

	byID := make(map[string]T, len(nodes))
	for _, n := range nodes {
		byID[n.ID()] = n
	}

	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		seen := make(map[string]bool)
		for _, dep := range n.Dependencies() {
			if _, ok := byID[dep]; !ok || dep == n.ID() || seen[dep] {
				continue
			}
			seen[dep] = true
			inDegree[n.ID()]++
			dependents[dep] = append(dependents[dep], n.ID())
		}
	}

	var queue []string
	for id := range byID {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	slices.Sort(queue)

	result := make([]T, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, byID[id])

		var ready []string
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		if len(ready) > 0 {
			queue = append(queue, ready...)
			slices.Sort(queue)
		}
	}

	if len(result) != len(byID) {
		return nil, ErrCircularDependency
	}
	return result, nil
}

type schemaNode struct {
	name string
	deps []string
}

func (n schemaNode) ID() string             { return n.name }
func (n schemaNode) Dependencies() []string { return n.deps }

// Schemas orders the declared schemas so that a schema holding a foreign key
// comes after the schema it references. On a cycle the declaration order is
// returned together with ErrCircularDependency.
func Schemas(p *schema.Project) ([]string, error) {
	nodes := make([]schemaNode, 0, len(p.Schemas))
	for _, s := range p.Schemas {
		n := schemaNode{name: s.Name}
		for _, t := range s.Tables {
			for _, fk := range t.ForeignKeys {
				ref := fk.References.Schema
				if ref != "" && ref != s.Name && !slices.Contains(n.deps, ref) {
					n.deps = append(n.deps, ref)
				}
			}
		}
		nodes = append(nodes, n)
	}

	sorted, err := Sort(nodes)
	if err != nil {
		return p.SchemaNames(), err
	}
	out := make([]string, len(sorted))
	for i, n := range sorted {
		out[i] = n.name
	}
	return out, nil
}
