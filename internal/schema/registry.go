package schema

import (
	"fmt"
	"strings"
)

// Registry holds all registered entity types. Types must be registered
// parents-first; Finalize runs the cross-type checks (chain validity,
// singleton targets, parent field references) once every type is present.
// After Finalize the registry is immutable.
type Registry struct {
	types     map[string]*EntityType
	order     []string
	finalized bool
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*EntityType),
	}
}

// Register compiles and adds a type definition. The parent type named by
// Extends must already be registered. Field-level invariants that do not
// need other types are checked here; chain and singleton references are
// checked by Finalize.
func (r *Registry) Register(def TypeDef) (*EntityType, error) {
	if r.finalized {
		return nil, fmt.Errorf("%w: cannot register %q", ErrFinalized, def.Name)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("%w: empty type name", ErrInvalidField)
	}
	if _, exists := r.types[def.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, def.Name)
	}
	if def.Extends != "" {
		if _, exists := r.types[def.Extends]; !exists {
			return nil, fmt.Errorf("%w: %s extends unregistered type %s", ErrUnknownType, def.Name, def.Extends)
		}
	}

	t := &EntityType{
		name:           def.Name,
		extends:        def.Extends,
		implements:     append([]string(nil), def.Implements...),
		abstract:       def.Abstract,
		listDef:        def.ListDef,
		customToString: def.CustomToString,
		fieldsByName:   make(map[string]*Field),
	}

	stringSourceSeen := r.inheritedStringSource(def.Extends)
	for _, fd := range def.Fields {
		field, err := compileField(def.Name, fd)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", def.Name, fd.Name, err)
		}
		if _, dup := t.fieldsByName[field.name]; dup {
			return nil, fmt.Errorf("%w: %s.%s declared twice", ErrFieldCollision, def.Name, field.name)
		}
		if owner := r.fieldOwner(def.Extends, field.name); owner != "" {
			return nil, fmt.Errorf("%w: %s.%s already declared by ancestor %s", ErrFieldCollision, def.Name, field.name, owner)
		}
		if field.stringSource {
			if stringSourceSeen {
				return nil, fmt.Errorf("%w: %s declares a second string_source field %s", ErrInvalidField, def.Name, field.name)
			}
			stringSourceSeen = true
		}
		t.fields = append(t.fields, field)
		t.fieldsByName[field.name] = field
	}

	r.types[def.Name] = t
	r.order = append(r.order, def.Name)
	return t, nil
}

// Resolve returns the type with the given name.
func (r *Registry) Resolve(name string) (*EntityType, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []*EntityType {
	out := make([]*EntityType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// FieldsOf returns the type's own fields followed by inherited fields,
// walking up the ancestor chain.
func (r *Registry) FieldsOf(name string) ([]*Field, error) {
	t, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	var fields []*Field
	for t != nil {
		fields = append(fields, t.fields...)
		if t.extends == "" {
			break
		}
		t = r.types[t.extends]
	}
	return fields, nil
}

// FieldOf resolves a field by name against a type, searching the type
// itself and then its ancestors.
func (r *Registry) FieldOf(typeName, fieldName string) (*Field, error) {
	t, err := r.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	for t != nil {
		if f, ok := t.fieldsByName[fieldName]; ok {
			return f, nil
		}
		if t.extends == "" {
			break
		}
		t = r.types[t.extends]
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, typeName, fieldName)
}

// AssignableTo reports whether a value of type from may be held by a slot
// of type to: from is to itself or a descendant of it.
func (r *Registry) AssignableTo(from, to string) bool {
	for cur := from; cur != ""; {
		if cur == to {
			return true
		}
		t, ok := r.types[cur]
		if !ok {
			return false
		}
		cur = t.extends
	}
	return false
}

// Finalized reports whether Finalize has completed.
func (r *Registry) Finalized() bool { return r.finalized }

// Finalize runs all cross-type validation. After a successful call the
// registry rejects further registrations.
func (r *Registry) Finalize() error {
	if r.finalized {
		return ErrFinalized
	}
	for _, name := range r.order {
		t := r.types[name]
		for _, f := range t.fields {
			if err := r.validateFieldRefs(t, f); err != nil {
				return err
			}
		}
	}
	r.finalized = true
	return nil
}

// inheritedStringSource reports whether any ancestor already declares a
// string_source field.
func (r *Registry) inheritedStringSource(parent string) bool {
	for cur := parent; cur != ""; {
		t, ok := r.types[cur]
		if !ok {
			return false
		}
		for _, f := range t.fields {
			if f.stringSource {
				return true
			}
		}
		cur = t.extends
	}
	return false
}

// fieldOwner returns the name of the ancestor declaring fieldName, or "".
func (r *Registry) fieldOwner(parent, fieldName string) string {
	for cur := parent; cur != ""; {
		t, ok := r.types[cur]
		if !ok {
			return ""
		}
		if _, ok := t.fieldsByName[fieldName]; ok {
			return t.name
		}
		cur = t.extends
	}
	return ""
}

// compileField checks the field-local invariants and builds the immutable
// Field.
func compileField(owner string, def FieldDef) (*Field, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: empty field name", ErrInvalidField)
	}
	typ := typeRefFromName(def.Type)

	f := &Field{
		owner:            owner,
		name:             def.Name,
		typ:              typ,
		isList:           def.IsList,
		canBeNull:        def.CanBeNull,
		editable:         def.Editable,
		databaseSource:   def.DatabaseSource,
		stringSource:     def.StringSource,
		avoidConstructor: def.AvoidConstructor,
		isDefault:        def.IsDefault,
		isSpecial:        def.IsSpecial,
		attached:         def.AttachedProperties,
	}

	if def.DatabaseSource {
		if def.CanBeNull {
			return nil, fmt.Errorf("%w: database_source field cannot be nullable", ErrInvalidField)
		}
		if !typ.IsEntity() {
			return nil, fmt.Errorf("%w: database_source field must be entity-typed, got %s", ErrInvalidField, typ)
		}
	}
	if def.IsDefault || def.IsSpecial {
		if typ.Kind() != KindBoolean {
			return nil, fmt.Errorf("%w: default/special marker must be boolean-typed, got %s", ErrInvalidField, typ)
		}
		if def.Editable {
			return nil, fmt.Errorf("%w: default/special marker cannot be editable", ErrInvalidField)
		}
		if def.DataCore != nil {
			return nil, fmt.Errorf("%w: default/special marker cannot carry a dataCore", ErrInvalidField)
		}
	}

	if def.DataCore == nil {
		return f, nil
	}
	if def.CanBeNull {
		return nil, fmt.Errorf("%w: dataCore field cannot be nullable", ErrInvalidField)
	}
	if def.Editable {
		return nil, fmt.Errorf("%w: dataCore field cannot be editable", ErrInvalidField)
	}
	core, err := compileDataCore(*def.DataCore, def.IsList)
	if err != nil {
		return nil, err
	}
	f.dataCore = core
	return f, nil
}

// compileDataCore checks that exactly one variant is populated and
// compiles it.
func compileDataCore(def DataCoreDef, isList bool) (*DataCore, error) {
	variants := 0
	core := &DataCore{}

	if def.Static != nil {
		variants++
		core.kind = DataCoreStatic
		core.staticValue = def.Static.Value
	}
	if def.InstanceStatic != nil {
		variants++
		core.kind = DataCoreInstanceStatic
		core.specialKey = def.InstanceStatic.Key
	}
	if def.DirectDerived != nil {
		variants++
		core.kind = DataCoreDirectDerived
		chain, err := ParseChain(def.DirectDerived.Sources)
		if err != nil {
			return nil, err
		}
		core.chain = chain
		hasLiteral := def.DirectDerived.Default != nil
		if hasLiteral == def.DirectDerived.DefaultGetter {
			return nil, fmt.Errorf("%w: exactly one of default and defaultGetter must be set", ErrAmbiguousDefault)
		}
		core.defaultValue = def.DirectDerived.Default
		core.useDefaultGetter = def.DirectDerived.DefaultGetter
	}
	if def.Derived != nil {
		variants++
		core.kind = DataCoreDerived
		core.codeLine = def.Derived.CodeLine
		for _, src := range def.Derived.Sources {
			chain, err := ParseChain(src)
			if err != nil {
				return nil, err
			}
			core.chains = append(core.chains, chain)
		}
	}
	if def.SelfParent != nil {
		variants++
		core.kind = DataCoreSelfParent
		if !isList {
			return nil, fmt.Errorf("%w: selfParent requires a list field", ErrInvalidField)
		}
		if def.SelfParent.ClassType == "" {
			return nil, fmt.Errorf("%w: selfParent requires a classType", ErrInvalidField)
		}
		core.selfParentClass = def.SelfParent.ClassType
	}
	if def.MultiParentList != nil {
		variants++
		core.kind = DataCoreMultiParentList
		if !isList {
			return nil, fmt.Errorf("%w: multiParentList requires a list field", ErrInvalidField)
		}
		for _, p := range strings.Split(def.MultiParentList.Parents, ",") {
			if p = strings.TrimSpace(p); p != "" {
				core.parentFields = append(core.parentFields, p)
			}
		}
		if len(core.parentFields) == 0 {
			return nil, fmt.Errorf("%w: multiParentList requires at least one parent field", ErrInvalidField)
		}
	}

	if variants != 1 {
		return nil, fmt.Errorf("%w: dataCore must set exactly one variant, got %d", ErrInvalidField, variants)
	}
	return core, nil
}

// validateFieldRefs checks everything about a field that needs the full
// registry: value types, chain hops, singleton targets and parent field
// references.
func (r *Registry) validateFieldRefs(t *EntityType, f *Field) error {
	if f.typ.IsEntity() {
		if _, err := r.Resolve(f.typ.Entity()); err != nil {
			return fmt.Errorf("%s.%s: %w", t.name, f.name, err)
		}
	}
	core := f.dataCore
	if core == nil {
		return nil
	}

	switch core.kind {
	case DataCoreInstanceStatic:
		if !f.typ.IsEntity() {
			return fmt.Errorf("%w: %s.%s instanceStatic requires an entity-typed field", ErrInvalidField, t.name, f.name)
		}
		if key := core.specialKey; key != "" {
			marker, err := r.FieldOf(f.typ.Entity(), key)
			if err != nil {
				return fmt.Errorf("%s.%s special key: %w", t.name, f.name, err)
			}
			if !marker.isSpecial {
				return fmt.Errorf("%w: %s.%s special key %q is not an isSpecial marker on %s", ErrInvalidField, t.name, f.name, key, f.typ.Entity())
			}
		}

	case DataCoreDirectDerived:
		if err := r.validateChain(t.name, core.chain); err != nil {
			return fmt.Errorf("%s.%s: %w", t.name, f.name, err)
		}

	case DataCoreDerived:
		for _, chain := range core.chains {
			if err := r.validateChain(t.name, chain); err != nil {
				return fmt.Errorf("%s.%s: %w", t.name, f.name, err)
			}
		}

	case DataCoreSelfParent:
		child, err := r.Resolve(core.selfParentClass)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", t.name, f.name, err)
		}
		if f.typ.IsEntity() && !r.AssignableTo(child.name, f.typ.Entity()) {
			return fmt.Errorf("%w: %s.%s selfParent class %s is not assignable to element type %s", ErrInvalidField, t.name, f.name, child.name, f.typ.Entity())
		}

	case DataCoreMultiParentList:
		for _, name := range core.parentFields {
			parent, err := r.FieldOf(t.name, name)
			if err != nil {
				return fmt.Errorf("%s.%s parent field: %w", t.name, f.name, err)
			}
			if parent.isList {
				return fmt.Errorf("%w: %s.%s parent field %s is a list", ErrInvalidField, t.name, f.name, name)
			}
		}
	}
	return nil
}

// validateChain checks a source chain against the registry: the first hop
// owner must be the declaring type or an ancestor of it, every hop field
// must exist on its owner, and every non-terminal hop must produce a
// single entity instance to keep traversing.
func (r *Registry) validateChain(declaring string, chain SourceChain) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidChain)
	}
	if !r.AssignableTo(declaring, chain[0].Owner) {
		return fmt.Errorf("%w: first hop %s does not apply to %s", ErrInvalidChain, chain[0], declaring)
	}
	for i, hop := range chain {
		field, err := r.FieldOf(hop.Owner, hop.Field)
		if err != nil {
			return fmt.Errorf("%w: hop %s: %v", ErrInvalidChain, hop, err)
		}
		last := i == len(chain)-1
		if last {
			break
		}
		if field.isList {
			return fmt.Errorf("%w: mid-chain hop %s is a list", ErrInvalidChain, hop)
		}
		if !field.typ.IsEntity() {
			return fmt.Errorf("%w: mid-chain hop %s is %s, not an entity", ErrInvalidChain, hop, field.typ)
		}
		next := chain[i+1]
		if !r.AssignableTo(field.typ.Entity(), next.Owner) && !r.AssignableTo(next.Owner, field.typ.Entity()) {
			return fmt.Errorf("%w: hop %s yields %s, next hop owner is %s", ErrInvalidChain, hop, field.typ.Entity(), next.Owner)
		}
	}
	return nil
}
