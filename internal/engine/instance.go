package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zjrosen/fieldcore/internal/schema"
)

// Instance is a live runtime object of some entity type. Stored field
// values live in its own map; derived values are memoized in its value
// cache. Instances are created through Container.NewInstance, never
// duplicated, and hold only a non-owning back-reference to their parent.
type Instance struct {
	id        uuid.UUID
	typ       *schema.EntityType
	container *Container
	parent    *Instance
	seq       uint64

	mu     sync.Mutex // serializes stored writes and stored reads
	stored map[string]any

	cache *valueCache
}

// ID returns the instance identity.
func (i *Instance) ID() uuid.UUID { return i.id }

// Type returns the instance's entity type.
func (i *Instance) Type() *schema.EntityType { return i.typ }

// Parent returns the parent back-reference, or nil.
func (i *Instance) Parent() *Instance { return i.parent }

// Container returns the owning container.
func (i *Instance) Container() *Container { return i.container }

// Value resolves the named field on this instance.
func (i *Instance) Value(ctx context.Context, field string) (any, error) {
	return i.container.resolver.Resolve(ctx, i, field)
}

// Set writes an editable stored field. The write is serialized per
// instance and synchronously invalidates every cached value derived from
// this field before it returns.
func (i *Instance) Set(field string, value any) error {
	return i.container.SetValue(i, field, value)
}

// String renders the instance through its string_source field when one is
// declared, falling back to "Type(id)".
func (i *Instance) String() string {
	fields, err := i.container.registry.FieldsOf(i.typ.Name())
	if err == nil {
		for _, f := range fields {
			if !f.StringSource() {
				continue
			}
			v, err := i.Value(context.Background(), f.Name())
			if err == nil && v != nil {
				return fmt.Sprintf("%v", v)
			}
			break
		}
	}
	return fmt.Sprintf("%s(%s)", i.typ.Name(), i.id)
}

// storedValue reads a stored (non-derived) field. A missing value is nil
// for nullable fields, an empty list for list fields, and
// ErrUnsetRequiredField otherwise.
func (i *Instance) storedValue(field *schema.Field) (any, error) {
	i.mu.Lock()
	v, ok := i.stored[field.Name()]
	i.mu.Unlock()

	if ok && v != nil {
		return v, nil
	}
	if field.CanBeNull() {
		return nil, nil
	}
	if field.IsList() {
		return []any{}, nil
	}
	return nil, fmt.Errorf("%w: %s.%s on %s", ErrUnsetRequiredField, i.typ.Name(), field.Name(), i.id)
}
