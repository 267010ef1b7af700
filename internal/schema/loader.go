package schema

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/fieldcore/internal/log"
)

// typeFile is the root structure of a schema definition file. One file
// describes one entity type; the type name is the file name without its
// extension.
type typeFile struct {
	Extends        string       `yaml:"extends"`
	Implements     string       `yaml:"implements"` // comma-separated capability names
	Abstract       bool         `yaml:"abstract"`
	ListDef        bool         `yaml:"listDef"`
	CustomToString string       `yaml:"customToString"`
	Fields         []fieldEntry `yaml:"fields"`
}

// fieldEntry describes a single field in a schema definition file.
type fieldEntry struct {
	Name               string         `yaml:"name"`
	Type               string         `yaml:"type"`
	IsList             bool           `yaml:"is_list"`
	CanBeNull          bool           `yaml:"canBeNull"`
	Editable           bool           `yaml:"editable"`
	DatabaseSource     bool           `yaml:"database_source"`
	StringSource       bool           `yaml:"string_source"`
	AvoidConstructor   bool           `yaml:"avoid_constructor"`
	IsDefault          bool           `yaml:"isDefault"`
	IsSpecial          bool           `yaml:"isSpecial"`
	AttachedProperties map[string]any `yaml:"attachedProperties"`
	DataCore           *dataCoreEntry `yaml:"dataCore"`
}

// dataCoreEntry holds the dataCore variants. At most one may be set.
type dataCoreEntry struct {
	Static          *staticEntry          `yaml:"static"`
	InstanceStatic  *instanceStaticEntry  `yaml:"instanceStatic"`
	DirectDerived   *directDerivedEntry   `yaml:"directDerived"`
	Derived         *derivedEntry         `yaml:"derived"`
	SelfParent      *selfParentEntry      `yaml:"selfParent"`
	MultiParentList *multiParentListEntry `yaml:"multiParentList"`
}

type staticEntry struct {
	Value any `yaml:"value"`
}

type instanceStaticEntry struct {
	Key string `yaml:"key"`
}

type directDerivedEntry struct {
	Sources       string `yaml:"sources"`
	Default       any    `yaml:"default"`
	DefaultGetter bool   `yaml:"defaultGetter"`
}

type derivedEntry struct {
	Sources []string `yaml:"sources"`
	// CodeLine is the opaque computation expression. It is handed to the
	// code-generation collaborator verbatim; the engine only needs the
	// host to register a computation under the field's key.
	CodeLine string `yaml:"codeLine"`
}

type selfParentEntry struct {
	ClassType string `yaml:"classType"`
}

type multiParentListEntry struct {
	Parents string `yaml:"parents"`
}

// Load reads every *.yaml / *.yml / *.json file under root in fsys,
// registers the resulting types parents-first, and finalizes the registry.
func Load(fsys fs.FS, root string) (*Registry, error) {
	defs := make(map[string]TypeDef)
	var names []string

	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSchemaFile(d.Name()) {
			return nil
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var file typeFile
		if err := yaml.Unmarshal(content, &file); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		name := typeNameFromFile(d.Name())
		if _, exists := defs[name]; exists {
			return fmt.Errorf("%w: %s (second definition in %s)", ErrDuplicateType, name, path)
		}
		defs[name] = buildTypeDef(name, file)
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no schema definition files found under %s", root)
	}

	registry := NewRegistry()
	if err := registerOrdered(registry, defs, names); err != nil {
		return nil, err
	}
	if err := registry.Finalize(); err != nil {
		return nil, err
	}
	log.Debug(log.CatSchema, "schema loaded", "types", len(defs))
	return registry, nil
}

// LoadDir is a convenience wrapper over Load for an on-disk directory.
func LoadDir(dir string) (*Registry, error) {
	return Load(os.DirFS(dir), ".")
}

// registerOrdered registers definitions parents-first regardless of file
// discovery order. Definitions whose parent never becomes registrable
// indicate a missing type or an inheritance cycle.
func registerOrdered(registry *Registry, defs map[string]TypeDef, names []string) error {
	sort.Strings(names)
	pending := names

	for len(pending) > 0 {
		var next []string
		progressed := false
		for _, name := range pending {
			def := defs[name]
			if def.Extends != "" {
				if _, ok := defs[def.Extends]; ok {
					if _, err := registry.Resolve(def.Extends); err != nil {
						next = append(next, name)
						continue
					}
				}
			}
			if _, err := registry.Register(def); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			sort.Strings(next)
			return fmt.Errorf("%w: unresolvable extends chain involving %s", ErrUnknownType, strings.Join(next, ", "))
		}
		pending = next
	}
	return nil
}

// buildTypeDef converts a decoded schema file to the registry's
// declarative form.
func buildTypeDef(name string, file typeFile) TypeDef {
	def := TypeDef{
		Name:           name,
		Extends:        file.Extends,
		Abstract:       file.Abstract,
		ListDef:        file.ListDef,
		CustomToString: file.CustomToString,
	}
	for _, capability := range strings.Split(file.Implements, ",") {
		if capability = strings.TrimSpace(capability); capability != "" {
			def.Implements = append(def.Implements, capability)
		}
	}
	for _, fe := range file.Fields {
		def.Fields = append(def.Fields, buildFieldDef(fe))
	}
	return def
}

func buildFieldDef(fe fieldEntry) FieldDef {
	fd := FieldDef{
		Name:               fe.Name,
		Type:               fe.Type,
		IsList:             fe.IsList,
		CanBeNull:          fe.CanBeNull,
		Editable:           fe.Editable,
		DatabaseSource:     fe.DatabaseSource,
		StringSource:       fe.StringSource,
		AvoidConstructor:   fe.AvoidConstructor,
		IsDefault:          fe.IsDefault,
		IsSpecial:          fe.IsSpecial,
		AttachedProperties: fe.AttachedProperties,
	}
	if fe.DataCore == nil {
		return fd
	}
	core := &DataCoreDef{}
	if fe.DataCore.Static != nil {
		core.Static = &StaticDef{Value: fe.DataCore.Static.Value}
	}
	if fe.DataCore.InstanceStatic != nil {
		core.InstanceStatic = &InstanceStaticDef{Key: fe.DataCore.InstanceStatic.Key}
	}
	if fe.DataCore.DirectDerived != nil {
		core.DirectDerived = &DirectDerivedDef{
			Sources:       fe.DataCore.DirectDerived.Sources,
			Default:       fe.DataCore.DirectDerived.Default,
			DefaultGetter: fe.DataCore.DirectDerived.DefaultGetter,
		}
	}
	if fe.DataCore.Derived != nil {
		core.Derived = &DerivedDef{
			Sources:  append([]string(nil), fe.DataCore.Derived.Sources...),
			CodeLine: fe.DataCore.Derived.CodeLine,
		}
	}
	if fe.DataCore.SelfParent != nil {
		core.SelfParent = &SelfParentDef{ClassType: fe.DataCore.SelfParent.ClassType}
	}
	if fe.DataCore.MultiParentList != nil {
		core.MultiParentList = &MultiParentListDef{Parents: fe.DataCore.MultiParentList.Parents}
	}
	fd.DataCore = core
	return fd
}

// isSchemaFile reports whether name is a definition file. JSON is a YAML
// subset, so .json trees decode through the same path.
func isSchemaFile(name string) bool {
	ext := strings.ToLower(name)
	return strings.HasSuffix(ext, ".yaml") || strings.HasSuffix(ext, ".yml") || strings.HasSuffix(ext, ".json")
}

func typeNameFromFile(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}
