package graph

// EntityLabel is the generic supertype label carried by every
// schema-derived node.
const EntityLabel = "Entity"

// Well-known column names.
const (
	ColID       = "id"
	ColCaption  = "caption"
	ColSourceID = "source_id"
	ColTargetID = "target_id"
)

// Column is one named cell of a row.
type Column struct {
	Name  string
	Value string
}

// Row is an ordered set of columns. Insertion order is column order.
type Row struct {
	cols []Column
}

// NewRow builds a row from alternating name/value pairs.
func NewRow(pairs ...string) Row {
	var r Row
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], pairs[i+1])
	}
	return r
}

// Set assigns a column, appending it if new.
func (r *Row) Set(name, value string) {
	for i := range r.cols {
		if r.cols[i].Name == name {
			r.cols[i].Value = value
			return
		}
	}
	r.cols = append(r.cols, Column{Name: name, Value: value})
}

// Get returns the value of a column, or "".
func (r Row) Get(name string) string {
	for _, c := range r.cols {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Has reports whether the row carries a column.
func (r Row) Has(name string) bool {
	for _, c := range r.cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Names returns the column names in order.
func (r Row) Names() []string {
	names := make([]string, len(r.cols))
	for i, c := range r.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order.
func (r Row) Columns() []Column { return r.cols }

// Len returns the number of columns.
func (r Row) Len() int { return len(r.cols) }

// NodeRecord is one row destined for a node label file.
type NodeRecord struct {
	Label       string
	NodeLabel   string // label the load script merges on
	ExtraLabels []string
	Row         Row
}

// EdgeRecord is one row destined for an edge label file.
type EdgeRecord struct {
	Label       string
	SourceLabel string
	TargetLabel string
	Row         Row
}

// Projection is everything one entity contributes to the graph.
type Projection struct {
	Nodes []NodeRecord
	Edges []EdgeRecord
}
