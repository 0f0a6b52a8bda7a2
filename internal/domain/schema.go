package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownSchema = errors.New("unknown schema")
	ErrInvalidModel  = errors.New("invalid model")
)

//go:embed model.yaml
var defaultModelYAML []byte

// ── Model definition (YAML) ────────────────────────────────

type modelSpec struct {
	Schemata map[string]schemaSpec `yaml:"schemata"`
}

type schemaSpec struct {
	Extends    []string                `yaml:"extends"`
	Abstract   bool                    `yaml:"abstract"`
	Caption    []string                `yaml:"caption"`
	Featured   []string                `yaml:"featured"`
	Edge       *EdgeSpec               `yaml:"edge"`
	Properties map[string]propertySpec `yaml:"properties"`
}

type propertySpec struct {
	Type      string `yaml:"type"`
	Hidden    bool   `yaml:"hidden"`
	Matchable *bool  `yaml:"matchable"`
}

// ── Resolved model ─────────────────────────────────────────

// EdgeSpec names the properties holding the endpoints of an edge schema.
type EdgeSpec struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Property is a typed property definition.
type Property struct {
	Name      string
	Type      Type
	Hidden    bool
	Matchable bool
	Schema    string // schema that declares the property
}

// Schema is a resolved schema: inherited properties, featured set,
// caption properties and edge endpoints are flattened in.
type Schema struct {
	Name     string
	Abstract bool
	Edge     *EdgeSpec
	Caption  []string
	Featured map[string]bool

	parents    []*Schema
	ancestry   []*Schema
	properties map[string]*Property
	sorted     []*Property
}

// IsEdge reports whether entities of this schema are relationships.
func (s *Schema) IsEdge() bool { return s.Edge != nil }

// Property looks up a property by name, including inherited ones.
func (s *Schema) Property(name string) *Property { return s.properties[name] }

// SortedProperties returns all properties ordered by name.
func (s *Schema) SortedProperties() []*Property { return s.sorted }

// IsFeatured reports whether the named property is featured.
func (s *Schema) IsFeatured(name string) bool { return s.Featured[name] }

// FeaturedNames returns the featured property names in sorted order.
func (s *Schema) FeaturedNames() []string {
	names := make([]string, 0, len(s.Featured))
	for n := range s.Featured {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Ancestry returns the schema itself followed by all of its ancestors,
// nearest first, each listed once.
func (s *Schema) Ancestry() []*Schema { return s.ancestry }

// Schemata returns the non-abstract schemata in the ancestry,
// including s itself when it is not abstract.
func (s *Schema) Schemata() []*Schema {
	var out []*Schema
	for _, a := range s.ancestry {
		if !a.Abstract {
			out = append(out, a)
		}
	}
	return out
}

// IsA reports whether s is name or descends from it.
func (s *Schema) IsA(name string) bool {
	return slices.ContainsFunc(s.ancestry, func(a *Schema) bool { return a.Name == name })
}

// Model is a set of resolved schemata.
type Model struct {
	schemata map[string]*Schema
}

// Get returns the named schema.
func (m *Model) Get(name string) (*Schema, error) {
	s, ok := m.schemata[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, name)
	}
	return s, nil
}

// Names returns all schema names in sorted order.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.schemata))
	for n := range m.schemata {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultModel = sync.OnceValues(func() (*Model, error) {
	return ParseModel(defaultModelYAML)
})

// DefaultModel returns the built-in model.
func DefaultModel() (*Model, error) { return defaultModel() }

// LoadModel reads a model from path, or returns the built-in model
// when path is empty.
func LoadModel(path string) (*Model, error) {
	if path == "" {
		return DefaultModel()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	return ReadModel(f)
}

// ReadModel parses a YAML model from r.
func ReadModel(r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return ParseModel(data)
}

// ParseModel parses and resolves a YAML model definition.
func ParseModel(data []byte) (*Model, error) {
	var spec modelSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if len(spec.Schemata) == 0 {
		return nil, fmt.Errorf("%w: no schemata", ErrInvalidModel)
	}

	r := &resolver{specs: spec.Schemata, done: map[string]*Schema{}, visiting: map[string]bool{}}
	names := make([]string, 0, len(spec.Schemata))
	for n := range spec.Schemata {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := r.resolve(n); err != nil {
			return nil, err
		}
	}
	return &Model{schemata: r.done}, nil
}

type resolver struct {
	specs    map[string]schemaSpec
	done     map[string]*Schema
	visiting map[string]bool
}

func (r *resolver) resolve(name string) (*Schema, error) {
	if s, ok := r.done[name]; ok {
		return s, nil
	}
	spec, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrInvalidModel, ErrUnknownSchema, name)
	}
	if r.visiting[name] {
		return nil, fmt.Errorf("%w: inheritance cycle at %q", ErrInvalidModel, name)
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	s := &Schema{
		Name:       name,
		Abstract:   spec.Abstract,
		Featured:   map[string]bool{},
		properties: map[string]*Property{},
	}
	for _, pn := range spec.Extends {
		p, err := r.resolve(pn)
		if err != nil {
			return nil, err
		}
		s.parents = append(s.parents, p)
	}

	// Parents first, declared order; the schema's own definitions win.
	s.ancestry = []*Schema{s}
	for _, p := range s.parents {
		for _, a := range p.ancestry {
			if !slices.Contains(s.ancestry, a) {
				s.ancestry = append(s.ancestry, a)
			}
		}
		for pname, prop := range p.properties {
			if _, ok := s.properties[pname]; !ok {
				s.properties[pname] = prop
			}
		}
		for f := range p.Featured {
			s.Featured[f] = true
		}
		if s.Edge == nil && p.Edge != nil {
			e := *p.Edge
			s.Edge = &e
		}
		if len(s.Caption) == 0 {
			s.Caption = p.Caption
		}
	}
	for pname, ps := range spec.Properties {
		matchable := true
		if ps.Matchable != nil {
			matchable = *ps.Matchable
		}
		s.properties[pname] = &Property{
			Name:      pname,
			Type:      ParseType(ps.Type),
			Hidden:    ps.Hidden,
			Matchable: matchable,
			Schema:    name,
		}
	}
	for _, f := range spec.Featured {
		s.Featured[f] = true
	}
	if spec.Edge != nil {
		e := *spec.Edge
		s.Edge = &e
	}
	if len(spec.Caption) > 0 {
		s.Caption = spec.Caption
	}

	s.sorted = make([]*Property, 0, len(s.properties))
	for _, p := range s.properties {
		s.sorted = append(s.sorted, p)
	}
	sort.Slice(s.sorted, func(i, j int) bool { return s.sorted[i].Name < s.sorted[j].Name })

	r.done[name] = s
	return s, nil
}
