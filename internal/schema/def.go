package schema

// TypeDef is the declarative surface for one entity type, as read from a
// schema definition file or built programmatically by a host.
type TypeDef struct {
	Name           string
	Extends        string
	Implements     []string
	Abstract       bool
	ListDef        bool
	CustomToString string
	Fields         []FieldDef
}

// FieldDef is the declarative surface for one field.
type FieldDef struct {
	Name               string
	Type               string // primitive name or entity type name
	IsList             bool
	CanBeNull          bool
	Editable           bool
	DatabaseSource     bool
	StringSource       bool
	AvoidConstructor   bool
	IsDefault          bool
	IsSpecial          bool
	AttachedProperties map[string]any
	DataCore           *DataCoreDef
}

// DataCoreDef selects one derivation strategy for a field. Exactly one
// member must be set.
type DataCoreDef struct {
	Static          *StaticDef
	InstanceStatic  *InstanceStaticDef
	DirectDerived   *DirectDerivedDef
	Derived         *DerivedDef
	SelfParent      *SelfParentDef
	MultiParentList *MultiParentListDef
}

// StaticDef configures a literal value.
type StaticDef struct {
	Value any
}

// InstanceStaticDef configures a singleton lookup. An empty Key selects
// the value type's default instance; otherwise Key names an isSpecial
// marker field on the value type.
type InstanceStaticDef struct {
	Key string
}

// DirectDerivedDef configures a chain-derived value. Sources is a
// comma-separated list of "OwnerType_FieldName" tokens. Exactly one of
// Default (a non-nil literal) or DefaultGetter must be configured; the
// getter itself is registered with the engine by the host.
type DirectDerivedDef struct {
	Sources       string
	Default       any
	DefaultGetter bool
}

// DerivedDef configures a host-computed value. Sources lists the chains
// the computation depends on, for cache invalidation only. CodeLine is an
// opaque expression describing the computation; the engine never
// interprets it, hosts and tooling may.
type DerivedDef struct {
	Sources  []string
	CodeLine string
}

// SelfParentDef configures a list of all ClassType instances whose parent
// back-reference points at the owning instance. List fields only.
type SelfParentDef struct {
	ClassType string
}

// MultiParentListDef configures a list collecting the distinct non-null
// values of the named sibling fields, in declaration order. Parents is
// comma-separated. List fields only.
type MultiParentListDef struct {
	Parents string
}
