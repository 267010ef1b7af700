// Package engine is the runtime half of fieldcore: it owns live entity
// instances and produces field values on demand by dispatching each
// field's DataCore strategy, memoizing results per instance and
// invalidating them when upstream stored values change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zjrosen/fieldcore/internal/graph"
	"github.com/zjrosen/fieldcore/internal/log"
	"github.com/zjrosen/fieldcore/internal/pubsub"
	"github.com/zjrosen/fieldcore/internal/schema"
)

// FieldEvent is the payload published on the container's broker for
// instance and field lifecycle events.
type FieldEvent struct {
	InstanceID uuid.UUID
	Ref        schema.FieldRef
}

// Container is the host-side instance table: it owns every live instance,
// serializes stored writes, and carries the resolver, the default/special
// singleton registry and the event broker.
type Container struct {
	registry *schema.Registry
	graph    *graph.Graph
	resolver *Resolver
	defaults *defaultRegistry
	events   *pubsub.Broker[FieldEvent]

	mu        sync.RWMutex
	instances map[uuid.UUID]*Instance
	byType    map[string][]*Instance // exact type name -> instances in creation order
	seq       uint64
}

// Option configures a Container.
type Option func(*containerOptions)

type computationEntry struct {
	fn           Computation
	extraSources []string
}

type containerOptions struct {
	computations map[schema.FieldRef]computationEntry
	getters      map[schema.FieldRef]DefaultGetter
}

// WithComputation registers the host-supplied computation for a Derived
// field. The field's declared sources are its invalidation contract: they
// may be a superset of what fn reads (safe), never a subset (stale reads).
// Chains fn touches beyond the declared sources can be supplied as extra
// source token strings and are added to the dependency graph.
func WithComputation(typeName, fieldName string, fn Computation, extraSources ...string) Option {
	return func(o *containerOptions) {
		o.computations[schema.FieldRef{Type: typeName, Field: fieldName}] = computationEntry{
			fn:           fn,
			extraSources: extraSources,
		}
	}
}

// WithDefaultGetter registers the fallback getter for a DirectDerived
// field configured with defaultGetter.
func WithDefaultGetter(typeName, fieldName string, fn DefaultGetter) Option {
	return func(o *containerOptions) {
		o.getters[schema.FieldRef{Type: typeName, Field: fieldName}] = fn
	}
}

// New builds a container over a finalized registry. It constructs and
// validates the dependency graph (a cycle is fatal here, never at
// resolution time) and checks that every Derived field has a computation
// and every defaultGetter field has a getter.
func New(registry *schema.Registry, opts ...Option) (*Container, error) {
	options := &containerOptions{
		computations: make(map[schema.FieldRef]computationEntry),
		getters:      make(map[schema.FieldRef]DefaultGetter),
	}
	for _, opt := range opts {
		opt(options)
	}

	extras, err := extraDependencies(registry, options)
	if err != nil {
		return nil, err
	}
	g, err := graph.BuildWithExtras(registry, extras)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		registry:  registry,
		graph:     g,
		defaults:  newDefaultRegistry(registry),
		events:    pubsub.NewBroker[FieldEvent](),
		instances: make(map[uuid.UUID]*Instance),
		byType:    make(map[string][]*Instance),
	}
	resolver, err := newResolver(c, options)
	if err != nil {
		return nil, err
	}
	c.resolver = resolver

	log.Info(log.CatEngine, "container ready", "types", len(registry.Types()), "derivedFields", len(g.Nodes()))
	return c, nil
}

// Registry returns the schema registry the container was built from.
func (c *Container) Registry() *schema.Registry { return c.registry }

// Graph returns the validated dependency graph.
func (c *Container) Graph() *graph.Graph { return c.graph }

// Events returns the container's event broker.
func (c *Container) Events() *pubsub.Broker[FieldEvent] { return c.events }

// Close shuts down the event broker.
func (c *Container) Close() {
	c.events.Close()
}

// InstanceOption configures instance construction.
type InstanceOption func(*instanceOptions)

type instanceOptions struct {
	values map[string]any
	parent *Instance
}

// WithValues supplies the initial stored values, keyed by field name.
// Construction is the only way to populate non-editable stored fields.
func WithValues(values map[string]any) InstanceOption {
	return func(o *instanceOptions) {
		o.values = values
	}
}

// WithParent establishes the parent back-reference. The parent exclusively
// owns the child's lifetime; the child holds only this non-owning
// reference.
func WithParent(parent *Instance) InstanceOption {
	return func(o *instanceOptions) {
		o.parent = parent
	}
}

// NewInstance constructs an instance of the named type, stores its initial
// values, processes default/special markers and registers it with every
// live SelfParent list whose class matches.
func (c *Container) NewInstance(typeName string, opts ...InstanceOption) (*Instance, error) {
	t, err := c.registry.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	if t.Abstract() {
		return nil, fmt.Errorf("%w: %s", ErrAbstractType, typeName)
	}

	options := &instanceOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.parent != nil && options.parent.container != c {
		return nil, fmt.Errorf("%w: parent %s", ErrForeignInstance, options.parent.ID())
	}

	inst := &Instance{
		id:        uuid.New(),
		typ:       t,
		container: c,
		parent:    options.parent,
		stored:    make(map[string]any),
		cache:     newValueCache(),
	}

	var claims []markerClaim
	for name, value := range options.values {
		field, err := c.registry.FieldOf(typeName, name)
		if err != nil {
			return nil, err
		}
		if err := c.storeValue(inst, field, value); err != nil {
			return nil, err
		}
		if flag, ok := value.(bool); ok && flag {
			if field.IsDefault() {
				claims = append(claims, markerClaim{typeName: field.Owner()})
			}
			if field.IsSpecial() {
				claims = append(claims, markerClaim{typeName: field.Owner(), key: field.Name()})
			}
		}
	}

	// Marker slots are claimed only once every initial value has been
	// accepted: an instance that fails construction must not occupy a slot.
	if err := c.defaults.claim(claims, inst); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.seq++
	inst.seq = c.seq
	c.instances[inst.id] = inst
	c.byType[typeName] = append(c.byType[typeName], inst)
	c.mu.Unlock()

	if options.parent != nil {
		c.invalidateSelfParentLists(options.parent, typeName)
	}

	c.events.Publish(pubsub.InstanceCreatedEvent, FieldEvent{InstanceID: inst.id, Ref: schema.FieldRef{Type: typeName}})
	log.Debug(log.CatEngine, "instance created", "type", typeName, "id", inst.id)
	return inst, nil
}

// SetValue writes an editable stored field and synchronously invalidates
// every cached value derived from it before returning.
func (c *Container) SetValue(inst *Instance, fieldName string, value any) error {
	if inst.container != c {
		return fmt.Errorf("%w: %s", ErrForeignInstance, inst.ID())
	}
	field, err := c.registry.FieldOf(inst.typ.Name(), fieldName)
	if err != nil {
		return err
	}
	if field.DataCore() != nil {
		return fmt.Errorf("%w: %s.%s", ErrDerivedWrite, inst.typ.Name(), fieldName)
	}
	if !field.Editable() {
		return fmt.Errorf("%w: %s.%s", ErrNotEditable, inst.typ.Name(), fieldName)
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := c.storeLocked(inst, field, value); err != nil {
		return err
	}
	c.invalidateDependents(field.Ref(), nil)
	c.events.Publish(pubsub.ValueWrittenEvent, FieldEvent{InstanceID: inst.id, Ref: field.Ref()})
	return nil
}

// storeValue stores an initial value during construction (editability is
// not required there).
func (c *Container) storeValue(inst *Instance, field *schema.Field, value any) error {
	if field.DataCore() != nil {
		return fmt.Errorf("%w: %s.%s", ErrDerivedWrite, inst.typ.Name(), field.Name())
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return c.storeLocked(inst, field, value)
}

// storeLocked validates and performs the store. Caller holds inst.mu.
// Marker processing lives in NewInstance: markers are never editable, so
// construction is the only path that can set one.
func (c *Container) storeLocked(inst *Instance, field *schema.Field, value any) error {
	if value == nil && !field.CanBeNull() {
		return fmt.Errorf("%w: %s.%s", ErrNullValue, inst.typ.Name(), field.Name())
	}
	inst.stored[field.Name()] = value
	return nil
}

// InstancesOf returns all live instances assignable to typeName, in
// creation order.
func (c *Container) InstancesOf(typeName string) []*Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Instance
	for name, insts := range c.byType {
		if c.registry.AssignableTo(name, typeName) {
			result = append(result, insts...)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

// Instance looks up a live instance by identity.
func (c *Container) Instance(id uuid.UUID) (*Instance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[id]
	return inst, ok
}

// DefaultInstance returns the default singleton for typeName.
func (c *Container) DefaultInstance(typeName string) (*Instance, error) {
	inst, ok := c.defaults.defaultFor(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDefault, typeName)
	}
	return inst, nil
}

// SpecialInstance returns the special singleton for typeName under key.
func (c *Container) SpecialInstance(typeName, key string) (*Instance, error) {
	inst, ok := c.defaults.specialFor(typeName, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s[%s]", ErrNoSpecialInstance, typeName, key)
	}
	return inst, nil
}

// invalidateDependents drops the cached values of every field derived from
// ref, on every instance of the dependent types, transitively. The graph
// is validated acyclic at startup so the recursion terminates; seen guards
// against re-walking shared upstream edges.
func (c *Container) invalidateDependents(ref schema.FieldRef, seen map[schema.FieldRef]bool) {
	if seen == nil {
		seen = make(map[schema.FieldRef]bool)
	}
	for _, dep := range c.graph.DependentsOf(ref) {
		if seen[dep] {
			continue
		}
		seen[dep] = true
		for _, inst := range c.InstancesOf(dep.Type) {
			if inst.cache.invalidate(dep.Field) {
				c.events.Publish(pubsub.FieldInvalidatedEvent, FieldEvent{InstanceID: inst.id, Ref: dep})
			}
		}
		c.invalidateDependents(dep, seen)
	}
}

// invalidateSelfParentLists refreshes every SelfParent list on parent (and
// its ancestors' fields) whose class covers the newly constructed child
// type, then cascades to fields derived from those lists.
func (c *Container) invalidateSelfParentLists(parent *Instance, childType string) {
	fields, err := c.registry.FieldsOf(parent.typ.Name())
	if err != nil {
		return
	}
	for _, f := range fields {
		core := f.DataCore()
		if core == nil || core.Kind() != schema.DataCoreSelfParent {
			continue
		}
		if !c.registry.AssignableTo(childType, core.SelfParentClass()) {
			continue
		}
		if parent.cache.invalidate(f.Name()) {
			c.events.Publish(pubsub.FieldInvalidatedEvent, FieldEvent{InstanceID: parent.id, Ref: f.Ref()})
		}
		c.invalidateDependents(f.Ref(), nil)
	}
}

// WarmUp eagerly resolves every derived field on every live instance in
// topological order. Purely a cache-priming hint: lazy evaluation remains
// the runtime policy, and individual failures are collected rather than
// aborting the sweep (the same error would surface on the next lazy read).
func (c *Container) WarmUp(ctx context.Context) error {
	order, err := c.graph.TopologicalOrder()
	if err != nil {
		return err
	}
	var errs []error
	for _, ref := range order {
		for _, inst := range c.InstancesOf(ref.Type) {
			if _, err := c.resolver.Resolve(ctx, inst, ref.Field); err != nil {
				errs = append(errs, fmt.Errorf("%s on %s: %w", ref, inst.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// extraDependencies normalizes the extra source chains supplied with
// computations into graph edges.
func extraDependencies(registry *schema.Registry, options *containerOptions) (map[schema.FieldRef][]schema.FieldRef, error) {
	extras := make(map[schema.FieldRef][]schema.FieldRef)
	for ref, entry := range options.computations {
		for _, src := range entry.extraSources {
			chain, err := schema.ParseChain(src)
			if err != nil {
				return nil, fmt.Errorf("extra sources for %s: %w", ref, err)
			}
			for _, hop := range chain {
				extras[ref] = append(extras[ref], hop.Ref())
			}
		}
	}
	return extras, nil
}
