package etl

import (
	"fmt"
	"strconv"
	"strings"

	"ftmgraph/internal/domain"
)

// ── Transformer ────────────────────────────────────────────
// Transformers act on raw records before they are parsed into
// entities. Each takes a record and returns a (possibly modified)
// record and whether to keep it.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// ── Built-in Transforms ────────────────────────────────────

// FilterTransform keeps records whose field matches. Field is "id",
// "schema" or a property name; a multi-valued property matches when
// any of its values does.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "contains" | "gt" | "lt" | "exists"
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	values := fieldValues(r, t.Field)
	if t.Op == "neq" {
		for _, v := range values {
			if v == fmt.Sprint(t.Value) {
				return r, false
			}
		}
		return r, true
	}
	for _, v := range values {
		if t.match(v) {
			return r, true
		}
	}
	return r, false
}

func (t *FilterTransform) match(v string) bool {
	want := fmt.Sprint(t.Value)
	switch t.Op {
	case "eq":
		return v == want
	case "contains":
		return strings.Contains(strings.ToLower(v), strings.ToLower(want))
	case "gt":
		return toFloat(v) > toFloat(t.Value)
	case "lt":
		return toFloat(v) < toFloat(t.Value)
	case "exists":
		return v != ""
	default:
		return true
	}
}

func fieldValues(r Record, field string) []string {
	switch field {
	case "id":
		return []string{r.ID()}
	case "schema":
		return []string{r.SchemaName()}
	}
	var out []string
	switch v := r.Properties()[field].(type) {
	case nil:
	case []any:
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
	case []string:
		out = v
	default:
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// SchemaTransform keeps records whose schema is, or descends from,
// one of Schemata. Records of unknown schemata pass through so the
// engine can count them as skipped.
type SchemaTransform struct {
	Model    *domain.Model
	Schemata []string
}

func (t *SchemaTransform) Transform(r Record) (Record, bool) {
	s, err := t.Model.Get(r.SchemaName())
	if err != nil {
		return r, true
	}
	for _, name := range t.Schemata {
		if s.IsA(name) {
			return r, true
		}
	}
	return r, false
}

// SelectTransform keeps only the listed properties of each record.
type SelectTransform struct {
	Properties []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool) {
	props := r.Properties()
	if props == nil {
		return r, true
	}
	filtered := make(map[string]any, len(t.Properties))
	for _, p := range t.Properties {
		if v, ok := props[p]; ok {
			filtered[p] = v
		}
	}
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	data["properties"] = filtered
	r.Data = data
	return r, true
}

// DedupeTransform drops records with an already seen entity id.
type DedupeTransform struct {
	seen map[string]bool
}

func NewDedupeTransform() *DedupeTransform {
	return &DedupeTransform{seen: make(map[string]bool)}
}

func (t *DedupeTransform) Transform(r Record) (Record, bool) {
	id := r.ID()
	if id == "" {
		return r, true
	}
	if t.seen[id] {
		return r, false
	}
	t.seen[id] = true
	return r, true
}

// LimitTransform caps the number of records.
type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(r Record) (Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// ── Helpers ────────────────────────────────────────────────

// buildTransformers converts declarative TransformConfig into Transformer instances.
func buildTransformers(configs []TransformConfig, model *domain.Model) ([]Transformer, error) {
	var (
		ts     []Transformer
		dedupe bool
	)
	for _, tc := range configs {
		switch tc.Type {
		case "filter":
			field, _ := tc.Config["field"].(string)
			op, _ := tc.Config["op"].(string)
			if field == "" || op == "" {
				return nil, fmt.Errorf("filter: field and op are required")
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: tc.Config["value"]})

		case "schema":
			names := stringList(tc.Config["schemata"])
			if len(names) == 0 {
				return nil, fmt.Errorf("schema: schemata is required")
			}
			for _, n := range names {
				if _, err := model.Get(n); err != nil {
					return nil, fmt.Errorf("schema transform: %w", err)
				}
			}
			ts = append(ts, &SchemaTransform{Model: model, Schemata: names})

		case "select":
			props := stringList(tc.Config["properties"])
			if len(props) == 0 {
				return nil, fmt.Errorf("select: properties is required")
			}
			ts = append(ts, &SelectTransform{Properties: props})

		case "limit":
			count := SourceConfig(tc.Config).Int("count", 0)
			if count <= 0 {
				return nil, fmt.Errorf("limit: count must be positive")
			}
			ts = append(ts, NewLimitTransform(count))

		case "dedupe":
			dedupe = true

		default:
			return nil, fmt.Errorf("unknown transform type: %q", tc.Type)
		}
	}

	// Dedupe is always applied last.
	if dedupe {
		ts = append(ts, NewDedupeTransform())
	}
	return ts, nil
}

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, x := range l {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		if l == "" {
			return nil
		}
		return strings.Split(l, ",")
	}
	return nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
