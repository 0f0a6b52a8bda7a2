package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEntity = errors.New("invalid entity")

// Entity is one typed input record: an id, a schema and an ordered
// list of string values per property.
type Entity struct {
	ID     string
	Schema *Schema

	props map[string][]string
}

// NewEntity creates an empty entity of the given schema.
func NewEntity(id string, schema *Schema) *Entity {
	return &Entity{ID: id, Schema: schema, props: map[string][]string{}}
}

// Add appends values to a property. Unknown properties and blank
// values are ignored.
func (e *Entity) Add(prop string, values ...string) {
	if e.Schema.Property(prop) == nil {
		return
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		e.props[prop] = append(e.props[prop], v)
	}
}

// Get returns the values of a property in input order.
func (e *Entity) Get(prop string) []string { return e.props[prop] }

// First returns the first value of a property, or "".
func (e *Entity) First(prop string) string {
	if vs := e.props[prop]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Caption is the display value of the entity: the first value of the
// schema's caption properties, falling back to the schema name.
func (e *Entity) Caption() string {
	for _, p := range e.Schema.Caption {
		if v := strings.TrimSpace(e.First(p)); v != "" {
			return v
		}
	}
	return e.Schema.Name
}

// ParseEntity decodes one JSON entity document.
func (m *Model) ParseEntity(data []byte) (*Entity, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	return m.EntityFromMap(raw)
}

// EntityFromMap builds an entity from a decoded {id, schema,
// properties} document.
func (m *Model) EntityFromMap(raw map[string]any) (*Entity, error) {
	id, _ := raw["id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidEntity)
	}
	schemaName, _ := raw["schema"].(string)
	if schemaName == "" {
		return nil, fmt.Errorf("%w: %s: missing schema", ErrInvalidEntity, id)
	}
	schema, err := m.Get(schemaName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidEntity, id, err)
	}

	e := NewEntity(id, schema)
	props, _ := raw["properties"].(map[string]any)
	for name, v := range props {
		e.Add(name, stringValues(v)...)
	}
	return e, nil
}

func stringValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, stringValues(x)...)
		}
		return out
	case float64:
		return []string{fmt.Sprintf("%v", t)}
	default:
		return []string{fmt.Sprint(t)}
	}
}
