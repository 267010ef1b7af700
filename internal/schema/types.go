// Package schema holds the immutable entity type model: entity types, their
// field definitions, and the DataCore strategies that govern how field
// values are produced at runtime. Types are registered once at startup and
// read-only afterwards.
package schema

import "fmt"

// Kind is the value kind of a field.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindDouble
	KindBoolean
	KindEntity
)

// String returns a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// TypeRef identifies a field's value type: either a primitive kind or a
// reference to another entity type.
type TypeRef struct {
	kind   Kind
	entity string // entity type name when kind == KindEntity
}

// Primitive returns a TypeRef for a primitive kind.
func Primitive(k Kind) TypeRef {
	return TypeRef{kind: k}
}

// Entity returns a TypeRef for an entity type.
func Entity(name string) TypeRef {
	return TypeRef{kind: KindEntity, entity: name}
}

// typeRefFromName maps a declared type name to a TypeRef. Names that are
// not recognized primitives are treated as entity type references and
// resolved against the registry at finalization.
func typeRefFromName(name string) TypeRef {
	switch name {
	case "string", "String":
		return Primitive(KindString)
	case "int", "integer", "Integer":
		return Primitive(KindInteger)
	case "double", "Double", "float", "Float":
		return Primitive(KindDouble)
	case "bool", "boolean", "Boolean":
		return Primitive(KindBoolean)
	default:
		return Entity(name)
	}
}

// Kind returns the value kind.
func (t TypeRef) Kind() Kind { return t.kind }

// IsEntity reports whether the reference points at an entity type.
func (t TypeRef) IsEntity() bool { return t.kind == KindEntity }

// Entity returns the referenced entity type name, or "" for primitives.
func (t TypeRef) Entity() string { return t.entity }

// String returns the declared name of the type.
func (t TypeRef) String() string {
	if t.kind == KindEntity {
		return t.entity
	}
	return t.kind.String()
}

// EntityType is an immutable, registered entity type definition.
type EntityType struct {
	name           string
	extends        string
	implements     []string
	abstract       bool
	listDef        bool
	customToString string
	fields         []*Field
	fieldsByName   map[string]*Field
}

// Name returns the type name.
func (t *EntityType) Name() string { return t.name }

// Extends returns the parent type name, or "" for a root type.
func (t *EntityType) Extends() string { return t.extends }

// Implements returns the capability names the type declares.
func (t *EntityType) Implements() []string { return t.implements }

// Abstract reports whether the type may be instantiated directly.
func (t *EntityType) Abstract() bool { return t.abstract }

// ListDef reports whether a typed list container must be generated for
// the type. Consumed by the code-generation collaborator only.
func (t *EntityType) ListDef() bool { return t.listDef }

// CustomToString returns the opaque display expression, or "".
func (t *EntityType) CustomToString() string { return t.customToString }

// Fields returns the type's own fields in declaration order, without
// inherited fields.
func (t *EntityType) Fields() []*Field { return t.fields }

// Field looks up one of the type's own fields by name.
func (t *EntityType) Field(name string) (*Field, bool) {
	f, ok := t.fieldsByName[name]
	return f, ok
}

// Field is an immutable field definition belonging to one entity type.
type Field struct {
	owner            string
	name             string
	typ              TypeRef
	isList           bool
	canBeNull        bool
	editable         bool
	databaseSource   bool
	stringSource     bool
	avoidConstructor bool
	isDefault        bool
	isSpecial        bool
	attached         map[string]any
	dataCore         *DataCore
}

// Owner returns the name of the declaring entity type.
func (f *Field) Owner() string { return f.owner }

// Name returns the field name, unique within the declaring type and its
// ancestors.
func (f *Field) Name() string { return f.name }

// Type returns the field's value type.
func (f *Field) Type() TypeRef { return f.typ }

// IsList reports whether the field holds an ordered sequence.
func (f *Field) IsList() bool { return f.isList }

// CanBeNull reports whether a null value is permitted.
func (f *Field) CanBeNull() bool { return f.canBeNull }

// Editable reports whether the host may write the field after construction.
func (f *Field) Editable() bool { return f.editable }

// DatabaseSource reports whether the field carries the instance's
// container reference at construction time.
func (f *Field) DatabaseSource() bool { return f.databaseSource }

// StringSource reports whether the field backs the instance's string form.
func (f *Field) StringSource() bool { return f.stringSource }

// AvoidConstructor reports whether the field is excluded from generated
// constructors. Consumed by the code-generation collaborator only.
func (f *Field) AvoidConstructor() bool { return f.avoidConstructor }

// IsDefault reports whether the field marks its instance as the type's
// default singleton when set true.
func (f *Field) IsDefault() bool { return f.isDefault }

// IsSpecial reports whether the field marks its instance as a special
// singleton when set true. The special key is the field's own name.
func (f *Field) IsSpecial() bool { return f.isSpecial }

// AttachedProperties returns the opaque property bag forwarded to the
// display collaborator. Never interpreted here.
func (f *Field) AttachedProperties() map[string]any { return f.attached }

// DataCore returns the field's derivation strategy, or nil for a plain
// stored field.
func (f *Field) DataCore() *DataCore { return f.dataCore }

// Ref returns the canonical "Owner_Name" key for the field.
func (f *Field) Ref() FieldRef {
	return FieldRef{Type: f.owner, Field: f.name}
}

// FieldRef names a (type, field) pair. It is the node identity used by the
// dependency graph and the cache invalidation machinery.
type FieldRef struct {
	Type  string
	Field string
}

// String returns the canonical "Type_Field" token form.
func (r FieldRef) String() string {
	return fmt.Sprintf("%s_%s", r.Type, r.Field)
}
