package engine

import (
	"fmt"
	"sync"

	"github.com/zjrosen/fieldcore/internal/schema"
)

// defaultRegistry holds the per-type default and special singleton
// instances. Slots are claimed the first time an instance carrying the
// marker field set true is registered, and never overwritten: a second
// claimant is a configuration defect and fails loudly.
//
// Entries are keyed by the marker field's declaring type, so a subtype
// instance claiming an inherited marker is found when the ancestor type is
// looked up.
type defaultRegistry struct {
	registry *schema.Registry

	mu       sync.RWMutex
	defaults map[string]*Instance
	specials map[string]map[string]*Instance // type -> marker field name -> instance
}

func newDefaultRegistry(registry *schema.Registry) *defaultRegistry {
	return &defaultRegistry{
		registry: registry,
		defaults: make(map[string]*Instance),
		specials: make(map[string]map[string]*Instance),
	}
}

// markerClaim is one default/special slot claim gathered during
// construction. Key is empty for a default claim, the marker field's name
// for a special claim.
type markerClaim struct {
	typeName string
	key      string
}

// claim records inst in every claimed slot, or in none. Claims are
// gathered while initial values are validated and applied only once the
// whole construction is known to succeed, so an instance that fails
// construction never occupies a slot.
func (d *defaultRegistry) claim(claims []markerClaim, inst *Instance) error {
	if len(claims) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cl := range claims {
		if cl.key == "" {
			if existing, ok := d.defaults[cl.typeName]; ok {
				return fmt.Errorf("%w: %s already defaulted by %s", ErrDuplicateDefault, cl.typeName, existing.ID())
			}
			continue
		}
		if existing, ok := d.specials[cl.typeName][cl.key]; ok {
			return fmt.Errorf("%w: %s[%s] already claimed by %s", ErrDuplicateSpecial, cl.typeName, cl.key, existing.ID())
		}
	}

	for _, cl := range claims {
		if cl.key == "" {
			d.defaults[cl.typeName] = inst
			continue
		}
		byKey := d.specials[cl.typeName]
		if byKey == nil {
			byKey = make(map[string]*Instance)
			d.specials[cl.typeName] = byKey
		}
		byKey[cl.key] = inst
	}
	return nil
}

// defaultFor returns the default instance for typeName, searching the type
// and then its ancestors (the marker may be declared on an ancestor).
func (d *defaultRegistry) defaultFor(typeName string) (*Instance, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for cur := typeName; cur != ""; {
		if inst, ok := d.defaults[cur]; ok {
			return inst, true
		}
		t, err := d.registry.Resolve(cur)
		if err != nil {
			break
		}
		cur = t.Extends()
	}
	return nil, false
}

// specialFor returns the special instance for typeName under key,
// searching the type and then its ancestors.
func (d *defaultRegistry) specialFor(typeName, key string) (*Instance, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for cur := typeName; cur != ""; {
		if inst, ok := d.specials[cur][key]; ok {
			return inst, true
		}
		t, err := d.registry.Resolve(cur)
		if err != nil {
			break
		}
		cur = t.Extends()
	}
	return nil, false
}
