package engine

import (
	"context"

	"github.com/zjrosen/fieldcore/internal/schema"
)

// selfParentList produces the ordered sequence of all live instances of
// the configured class whose parent back-reference points at inst. The
// cached result is a live view in the invalidation-tracked sense:
// constructing a new child drops the parent's cached list, so the next
// read recomputes over the grown instance table.
func (r *Resolver) selfParentList(inst *Instance, core *schema.DataCore) []any {
	var children []any
	for _, candidate := range r.container.InstancesOf(core.SelfParentClass()) {
		if candidate.parent == inst {
			children = append(children, candidate)
		}
	}
	if children == nil {
		children = []any{}
	}
	return children
}

// multiParentList collects the distinct non-null values of the named
// sibling fields, in declaration order. A parent named twice (or two
// fields holding the same instance) appears once.
func (r *Resolver) multiParentList(ctx context.Context, stack *resolveStack, inst *Instance, core *schema.DataCore) (any, error) {
	seen := make(map[any]bool)
	parents := []any{}
	for _, name := range core.ParentFields() {
		value, err := r.resolve(ctx, stack, inst, name)
		if err != nil {
			return nil, err
		}
		if value == nil || seen[value] {
			continue
		}
		seen[value] = true
		parents = append(parents, value)
	}
	return parents, nil
}
