package graph

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"ftmgraph/internal/domain"
)

// ErrMalformedEdge is returned for edge entities whose schema lacks a
// definition for one of its endpoint properties.
var ErrMalformedEdge = errors.New("malformed edge schema")

// Config holds the reification noise filters.
type Config struct {
	// Identifier values shorter than this are not reified.
	MinIdentifierLength int
	// Name values without whitespace are not reified.
	NameRequiresSpace bool
}

// DefaultConfig returns the standard reification thresholds.
func DefaultConfig() Config {
	return Config{MinIdentifierLength: 7, NameRequiresSpace: true}
}

type projectedProperty struct {
	prop      *domain.Property
	treatment Treatment
}

// Projector turns entities into node and edge records. Column sets
// are computed once per schema so every entity of a schema yields
// rows with identical columns. A Projector is not safe for
// concurrent use.
type Projector struct {
	cfg   Config
	nodes map[*domain.Schema][]projectedProperty
	edges map[*domain.Schema][]*domain.Property
}

// NewProjector creates a Projector.
func NewProjector(cfg Config) *Projector {
	return &Projector{
		cfg:   cfg,
		nodes: map[*domain.Schema][]projectedProperty{},
		edges: map[*domain.Schema][]*domain.Property{},
	}
}

// Project projects one entity.
func (p *Projector) Project(e *domain.Entity) (Projection, error) {
	if e.Schema.IsEdge() {
		return p.projectEdge(e)
	}
	return p.projectNode(e), nil
}

// ── Edge schemata ──────────────────────────────────────────

func (p *Projector) projectEdge(e *domain.Entity) (Projection, error) {
	spec := e.Schema.Edge
	if e.Schema.Property(spec.Source) == nil || e.Schema.Property(spec.Target) == nil {
		return Projection{}, fmt.Errorf("%w: %s (%s -> %s)", ErrMalformedEdge, e.Schema.Name, spec.Source, spec.Target)
	}

	label := ConstCase(e.Schema.Name)
	caption := e.Caption()
	columns := p.edgeColumns(e.Schema)

	var out Projection
	for _, src := range e.Get(spec.Source) {
		src = strings.TrimSpace(src)
		for _, tgt := range e.Get(spec.Target) {
			tgt = strings.TrimSpace(tgt)
			if src == "" || tgt == "" || src == tgt {
				continue
			}
			row := NewRow(ColSourceID, src, ColTargetID, tgt, ColCaption, caption)
			for _, prop := range columns {
				row.Set(prop.Name, prop.Type.Join(e.Get(prop.Name)))
			}
			out.Edges = append(out.Edges, EdgeRecord{
				Label:       label,
				SourceLabel: EntityLabel,
				TargetLabel: EntityLabel,
				Row:         row,
			})
		}
	}
	return out, nil
}

func (p *Projector) edgeColumns(s *domain.Schema) []*domain.Property {
	if cols, ok := p.edges[s]; ok {
		return cols
	}
	var cols []*domain.Property
	for _, name := range s.FeaturedNames() {
		if name == s.Edge.Source || name == s.Edge.Target || reserved(name) {
			continue
		}
		prop := s.Property(name)
		if prop == nil || prop.Hidden {
			continue
		}
		cols = append(cols, prop)
	}
	p.edges[s] = cols
	return cols
}

// ── Node schemata ──────────────────────────────────────────

func (p *Projector) projectNode(e *domain.Entity) Projection {
	row := NewRow(ColID, e.ID, ColCaption, e.Caption())
	var (
		values   []NodeRecord
		edges    []EdgeRecord
		topicSet = map[string]bool{}
		topics   []NodeRecord
	)

	for _, pp := range p.nodeColumns(e.Schema) {
		prop := pp.prop
		vals := e.Get(prop.Name)
		if pp.treatment.Has(Inline) {
			row.Set(prop.Name, prop.Type.Join(vals))
		}

		for _, v := range vals {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if pp.treatment.Has(Reify) && p.reifiable(prop.Type, v) {
				id, ok := prop.Type.NodeID(v)
				if !ok {
					continue
				}
				caption, _ := prop.Type.Caption(v)
				values = append(values, NodeRecord{
					Label:     prop.Type.Label(),
					NodeLabel: prop.Type.Label(),
					Row:       NewRow(ColID, id, ColCaption, caption),
				})
				edges = append(edges, EdgeRecord{
					Label:       HasLabel(prop.Type),
					SourceLabel: EntityLabel,
					TargetLabel: prop.Type.Label(),
					Row:         NewRow(ColSourceID, e.ID, ColTargetID, id),
				})
			}
			if pp.treatment.Has(Link) {
				edges = append(edges, EdgeRecord{
					Label:       ConstCase(prop.Name),
					SourceLabel: EntityLabel,
					TargetLabel: EntityLabel,
					Row:         NewRow(ColSourceID, e.ID, ColTargetID, v),
				})
			}
			if pp.treatment.Has(Topic) {
				label, ok := TopicLabel(v)
				if !ok || topicSet[label] {
					continue
				}
				topicSet[label] = true
				topics = append(topics, NodeRecord{
					Label:       label,
					NodeLabel:   EntityLabel,
					ExtraLabels: []string{EntityLabel},
					Row:         NewRow(ColID, e.ID, ColCaption, row.Get(ColCaption)),
				})
			}
		}
	}

	primary := NodeRecord{
		Label:       e.Schema.Name,
		NodeLabel:   EntityLabel,
		ExtraLabels: extraLabels(e.Schema),
		Row:         row,
	}
	out := Projection{Edges: edges}
	out.Nodes = append(out.Nodes, primary)
	out.Nodes = append(out.Nodes, values...)
	out.Nodes = append(out.Nodes, topics...)
	return out
}

func (p *Projector) nodeColumns(s *domain.Schema) []projectedProperty {
	if cols, ok := p.nodes[s]; ok {
		return cols
	}
	var cols []projectedProperty
	for _, prop := range s.SortedProperties() {
		t := Classify(prop, s.IsFeatured(prop.Name))
		if t == Ignore {
			continue
		}
		if reserved(prop.Name) {
			t &^= Inline
		}
		cols = append(cols, projectedProperty{prop: prop, treatment: t})
	}
	p.nodes[s] = cols
	return cols
}

// reifiable applies the noise filters to a single value.
func (p *Projector) reifiable(t domain.Type, v string) bool {
	switch t {
	case domain.TypeIdentifier:
		return utf8.RuneCountInString(v) >= p.cfg.MinIdentifierLength
	case domain.TypeName:
		return !p.cfg.NameRequiresSpace || strings.ContainsFunc(v, unicode.IsSpace)
	}
	return true
}

func extraLabels(s *domain.Schema) []string {
	var labels []string
	for _, a := range s.Schemata() {
		if a != s {
			labels = append(labels, a.Name)
		}
	}
	return append(labels, EntityLabel)
}

func reserved(name string) bool {
	switch name {
	case ColID, ColCaption, ColSourceID, ColTargetID:
		return true
	}
	return false
}
