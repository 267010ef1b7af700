package engine

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/fieldcore/internal/graph"
	"github.com/zjrosen/fieldcore/internal/log"
	"github.com/zjrosen/fieldcore/internal/pubsub"
	"github.com/zjrosen/fieldcore/internal/schema"
)

// Computation is a host-supplied opaque computation backing a Derived
// field. The instance is its context; the field's declared sources bound
// what it may read (see WithComputation).
type Computation func(ctx context.Context, inst *Instance) (any, error)

// DefaultGetter is a host-supplied fallback for a DirectDerived field
// whose chain resolved to absent.
type DefaultGetter func(ctx context.Context, inst *Instance) (any, error)

// Resolver dispatches a field's DataCore strategy to produce its value.
// Results are memoized in the owning instance's value cache; Static
// literals are cached process-wide since they are identical for every
// instance of the type.
type Resolver struct {
	container    *Container
	registry     *schema.Registry
	computations map[schema.FieldRef]Computation
	getters      map[schema.FieldRef]DefaultGetter
	statics      *gocache.Cache
	tracer       trace.Tracer
}

// newResolver builds the resolver and verifies that the host registered a
// computation for every Derived field and a getter for every
// defaultGetter field. Missing registrations are a startup failure, not a
// resolution-time surprise.
func newResolver(c *Container, options *containerOptions) (*Resolver, error) {
	r := &Resolver{
		container:    c,
		registry:     c.registry,
		computations: make(map[schema.FieldRef]Computation),
		getters:      make(map[schema.FieldRef]DefaultGetter),
		statics:      gocache.New(gocache.NoExpiration, 0),
		tracer:       otel.Tracer("fieldcore/engine"),
	}

	for ref, entry := range options.computations {
		field, err := c.registry.FieldOf(ref.Type, ref.Field)
		if err != nil {
			return nil, fmt.Errorf("computation for %s: %w", ref, err)
		}
		if field.DataCore() == nil || field.DataCore().Kind() != schema.DataCoreDerived {
			return nil, fmt.Errorf("%w: %s is not a derived field", ErrMissingComputation, ref)
		}
		r.computations[field.Ref()] = entry.fn
	}
	for ref, fn := range options.getters {
		field, err := c.registry.FieldOf(ref.Type, ref.Field)
		if err != nil {
			return nil, fmt.Errorf("default getter for %s: %w", ref, err)
		}
		core := field.DataCore()
		if core == nil || core.Kind() != schema.DataCoreDirectDerived || !core.UseDefaultGetter() {
			return nil, fmt.Errorf("%w: %s does not use a default getter", ErrMissingGetter, ref)
		}
		r.getters[field.Ref()] = fn
	}

	for _, t := range c.registry.Types() {
		for _, f := range t.Fields() {
			core := f.DataCore()
			if core == nil {
				continue
			}
			switch core.Kind() {
			case schema.DataCoreDerived:
				if _, ok := r.computations[f.Ref()]; !ok {
					return nil, fmt.Errorf("%w: %s", ErrMissingComputation, f.Ref())
				}
			case schema.DataCoreDirectDerived:
				if core.UseDefaultGetter() {
					if _, ok := r.getters[f.Ref()]; !ok {
						return nil, fmt.Errorf("%w: %s", ErrMissingGetter, f.Ref())
					}
				}
			}
		}
	}
	return r, nil
}

// Resolve produces the value of the named field on inst. Stored fields are
// a plain read; derived fields go through the value cache, computing at
// most once per (instance, field) no matter how many callers race.
func (r *Resolver) Resolve(ctx context.Context, inst *Instance, fieldName string) (any, error) {
	return r.resolve(ctx, newResolveStack(), inst, fieldName)
}

func (r *Resolver) resolve(ctx context.Context, stack *resolveStack, inst *Instance, fieldName string) (any, error) {
	field, err := r.registry.FieldOf(inst.typ.Name(), fieldName)
	if err != nil {
		return nil, err
	}
	core := field.DataCore()
	if core == nil {
		return inst.storedValue(field)
	}

	// Defensive backstop: the graph is validated acyclic at startup, but
	// a re-entrant read from the same resolution stack would deadlock on
	// its own cache entry, so it is reported instead.
	key := stackKey{id: inst.id, field: field.Name()}
	if stack.contains(key) {
		return nil, fmt.Errorf("%w: %s", graph.ErrCycle, stack.pathWith(key))
	}

	if core.Kind() == schema.DataCoreStatic {
		return r.staticValue(field, core), nil
	}

	entry, owner := inst.cache.begin(field.Name())
	if !owner {
		<-entry.done
		return entry.value, entry.err
	}

	stack.push(key)
	value, err := r.compute(ctx, stack, inst, field, core)
	stack.pop()

	inst.cache.complete(field.Name(), entry, value, err)
	if err != nil {
		log.ErrorErr(log.CatResolve, "resolution failed", err, "field", field.Ref(), "instance", inst.id)
	} else {
		r.container.events.Publish(pubsub.FieldResolvedEvent, FieldEvent{InstanceID: inst.id, Ref: field.Ref()})
	}
	return value, err
}

// compute dispatches one cache-missing resolution under a span.
func (r *Resolver) compute(ctx context.Context, stack *resolveStack, inst *Instance, field *schema.Field, core *schema.DataCore) (any, error) {
	ctx, span := r.tracer.Start(ctx, "engine.resolve",
		trace.WithAttributes(
			attribute.String("field", field.Ref().String()),
			attribute.String("strategy", core.Kind().String()),
		))
	defer span.End()

	value, err := r.dispatch(ctx, stack, inst, field, core)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return value, err
}

func (r *Resolver) dispatch(ctx context.Context, stack *resolveStack, inst *Instance, field *schema.Field, core *schema.DataCore) (any, error) {
	switch core.Kind() {
	case schema.DataCoreInstanceStatic:
		return r.instanceStatic(field, core)

	case schema.DataCoreDirectDerived:
		return r.directDerived(ctx, stack, inst, field, core)

	case schema.DataCoreDerived:
		return r.derived(ctx, inst, field)

	case schema.DataCoreSelfParent:
		return r.selfParentList(inst, core), nil

	case schema.DataCoreMultiParentList:
		return r.multiParentList(ctx, stack, inst, core)

	default:
		return nil, fmt.Errorf("unhandled dataCore kind %s for %s", core.Kind(), field.Ref())
	}
}

// staticValue serves a Static literal from the process-wide cache.
func (r *Resolver) staticValue(field *schema.Field, core *schema.DataCore) any {
	key := field.Ref().String()
	if v, ok := r.statics.Get(key); ok {
		return v
	}
	r.statics.Set(key, core.StaticValue(), gocache.NoExpiration)
	return core.StaticValue()
}

// instanceStatic looks up the default or keyed special singleton of the
// field's value type.
func (r *Resolver) instanceStatic(field *schema.Field, core *schema.DataCore) (any, error) {
	target := field.Type().Entity()
	if key := core.SpecialKey(); key != "" {
		return r.container.SpecialInstance(target, key)
	}
	return r.container.DefaultInstance(target)
}

// directDerived walks the chain and falls back to the configured default
// policy when the chain is absent.
func (r *Resolver) directDerived(ctx context.Context, stack *resolveStack, inst *Instance, field *schema.Field, core *schema.DataCore) (any, error) {
	value, present, err := r.evalChain(ctx, stack, inst, core.Chain())
	if err != nil {
		return nil, err
	}
	if present {
		return value, nil
	}
	if core.UseDefaultGetter() {
		return r.getters[field.Ref()](ctx, inst)
	}
	return core.DefaultValue(), nil
}

// derived invokes the host computation. The declared chains are the
// invalidation contract and already live in the dependency graph; they are
// not consumed as direct inputs here.
func (r *Resolver) derived(ctx context.Context, inst *Instance, field *schema.Field) (any, error) {
	value, err := r.computations[field.Ref()](ctx, inst)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%w: computation for %s returned null", ErrNullValue, field.Ref())
	}
	return value, nil
}
