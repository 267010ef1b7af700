package schema

import (
	"fmt"
	"strings"
)

// DataCoreKind identifies the strategy a DataCore uses to produce values.
type DataCoreKind int

const (
	// DataCoreStatic returns a literal, identical for every instance.
	DataCoreStatic DataCoreKind = iota
	// DataCoreInstanceStatic returns the default or a keyed special
	// singleton of the field's value type.
	DataCoreInstanceStatic
	// DataCoreDirectDerived returns the terminal value of a source chain,
	// or a configured default when the chain is absent.
	DataCoreDirectDerived
	// DataCoreDerived invokes a host-supplied computation; its declared
	// chains are the invalidation contract, not direct inputs.
	DataCoreDerived
	// DataCoreSelfParent populates a list with all instances whose parent
	// back-reference points at the owning instance.
	DataCoreSelfParent
	// DataCoreMultiParentList populates a list with the distinct non-null
	// values of several named sibling fields.
	DataCoreMultiParentList
)

// String returns a human-readable representation of the DataCoreKind.
func (k DataCoreKind) String() string {
	switch k {
	case DataCoreStatic:
		return "static"
	case DataCoreInstanceStatic:
		return "instanceStatic"
	case DataCoreDirectDerived:
		return "directDerived"
	case DataCoreDerived:
		return "derived"
	case DataCoreSelfParent:
		return "selfParent"
	case DataCoreMultiParentList:
		return "multiParentList"
	default:
		return "unknown"
	}
}

// Hop is one step of a source chain: a field read off an instance of (a
// descendant of) the owner type.
type Hop struct {
	Owner string
	Field string
}

// Ref returns the hop as a FieldRef.
func (h Hop) Ref() FieldRef {
	return FieldRef{Type: h.Owner, Field: h.Field}
}

// String returns the canonical "Owner_Field" token.
func (h Hop) String() string {
	return fmt.Sprintf("%s_%s", h.Owner, h.Field)
}

// SourceChain is an ordered path of field hops across related instances.
type SourceChain []Hop

// String returns the comma-separated token form.
func (c SourceChain) String() string {
	tokens := make([]string, len(c))
	for i, h := range c {
		tokens[i] = h.String()
	}
	return strings.Join(tokens, ", ")
}

// ParseChain parses a comma-separated list of "OwnerType_FieldName"
// tokens. The split is at the last underscore: type names may themselves
// contain underscores, field names may not.
func ParseChain(s string) (SourceChain, error) {
	var chain SourceChain
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		idx := strings.LastIndex(token, "_")
		if idx <= 0 || idx == len(token)-1 {
			return nil, fmt.Errorf("%w: malformed hop token %q", ErrInvalidChain, token)
		}
		chain = append(chain, Hop{Owner: token[:idx], Field: token[idx+1:]})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrInvalidChain)
	}
	return chain, nil
}

// DataCore is a field's compiled derivation strategy. Exactly one variant
// is populated, selected by Kind.
type DataCore struct {
	kind DataCoreKind

	staticValue any

	specialKey string

	chain            SourceChain
	defaultValue     any
	useDefaultGetter bool

	chains   []SourceChain
	codeLine string

	selfParentClass string

	parentFields []string
}

// Kind returns the strategy variant.
func (d *DataCore) Kind() DataCoreKind { return d.kind }

// StaticValue returns the literal for DataCoreStatic.
func (d *DataCore) StaticValue() any { return d.staticValue }

// SpecialKey returns the special-instance key for DataCoreInstanceStatic,
// or "" when the type default is wanted.
func (d *DataCore) SpecialKey() string { return d.specialKey }

// Chain returns the single source chain of DataCoreDirectDerived.
func (d *DataCore) Chain() SourceChain { return d.chain }

// DefaultValue returns the literal fallback of DataCoreDirectDerived, nil
// when a getter is configured instead.
func (d *DataCore) DefaultValue() any { return d.defaultValue }

// UseDefaultGetter reports whether DataCoreDirectDerived falls back to a
// host-registered getter instead of a literal.
func (d *DataCore) UseDefaultGetter() bool { return d.useDefaultGetter }

// Chains returns the declared dependency chains of DataCoreDerived.
func (d *DataCore) Chains() []SourceChain { return d.chains }

// CodeLine returns the opaque computation expression of DataCoreDerived,
// if the definition carried one.
func (d *DataCore) CodeLine() string { return d.codeLine }

// SelfParentClass returns the child type name for DataCoreSelfParent.
func (d *DataCore) SelfParentClass() string { return d.selfParentClass }

// ParentFields returns the named sibling fields of
// DataCoreMultiParentList in declaration order.
func (d *DataCore) ParentFields() []string { return d.parentFields }

// Dependencies returns every (type, field) pair the strategy reads,
// deduplicated, in declaration order. This is the edge set contributed to
// the dependency graph.
func (d *DataCore) Dependencies(declaringType string) []FieldRef {
	seen := make(map[FieldRef]bool)
	var refs []FieldRef
	add := func(ref FieldRef) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	switch d.kind {
	case DataCoreDirectDerived:
		for _, hop := range d.chain {
			add(hop.Ref())
		}
	case DataCoreDerived:
		for _, chain := range d.chains {
			for _, hop := range chain {
				add(hop.Ref())
			}
		}
	case DataCoreMultiParentList:
		for _, name := range d.parentFields {
			add(FieldRef{Type: declaringType, Field: name})
		}
	}
	return refs
}
