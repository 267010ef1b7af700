package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zjrosen/fieldcore/internal/schema"
)

// stackKey identifies one frame of a resolution: a field being computed on
// a specific instance.
type stackKey struct {
	id    uuid.UUID
	field string
}

// resolveStack tracks the (instance, field) frames of one resolution so a
// re-entrant read of a frame already being computed is reported as a cycle
// instead of deadlocking on its own cache entry. Each top-level Resolve
// call gets a fresh stack; concurrent resolutions never share one.
type resolveStack struct {
	frames []stackKey
	seen   map[stackKey]bool
}

func newResolveStack() *resolveStack {
	return &resolveStack{seen: make(map[stackKey]bool)}
}

func (s *resolveStack) contains(key stackKey) bool {
	return s.seen[key]
}

func (s *resolveStack) push(key stackKey) {
	s.frames = append(s.frames, key)
	s.seen[key] = true
}

func (s *resolveStack) pop() {
	last := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	delete(s.seen, last)
}

// pathWith renders the stack for a cycle error, closing it with the
// repeated frame.
func (s *resolveStack) pathWith(repeat stackKey) string {
	path := ""
	for _, frame := range s.frames {
		path += frame.field + " -> "
	}
	return path + repeat.field
}

// evalChain walks a source chain hop by hop from start. It returns the
// terminal value and present=true, or present=false when the chain is
// absent: some nullable hop (or the terminal hop) yielded null. A null
// from a non-nullable hop and a non-entity value mid-chain are logic
// errors, reported as ErrBrokenChain.
func (r *Resolver) evalChain(ctx context.Context, stack *resolveStack, start *Instance, chain schema.SourceChain) (any, bool, error) {
	cur := start
	for i, hop := range chain {
		field, err := r.registry.FieldOf(cur.typ.Name(), hop.Field)
		if err != nil {
			return nil, false, fmt.Errorf("%w: hop %s on %s: %v", ErrBrokenChain, hop, cur.typ.Name(), err)
		}

		value, err := r.resolve(ctx, stack, cur, hop.Field)
		if err != nil {
			return nil, false, err
		}

		last := i == len(chain)-1
		if value == nil {
			if last || field.CanBeNull() {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("%w: hop %s yielded null but %s.%s is not nullable", ErrBrokenChain, hop, field.Owner(), field.Name())
		}
		if last {
			return value, true, nil
		}

		next, ok := value.(*Instance)
		if !ok {
			return nil, false, fmt.Errorf("%w: hop %s yielded %T, expected an instance", ErrBrokenChain, hop, value)
		}
		cur = next
	}
	return nil, false, fmt.Errorf("%w: empty chain", ErrBrokenChain)
}
