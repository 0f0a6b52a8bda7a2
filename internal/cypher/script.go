package cypher

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"
)

const (
	DefaultBatchSize   = 50000
	DefaultPrefix      = "file:///"
	DefaultEntityLabel = "Entity"
	ScriptFileName     = "load.cypher"
)

// File describes one closed label file.
type File struct {
	Label       string
	Edge        bool
	NodeLabel   string
	ExtraLabels []string
	SourceLabel string
	TargetLabel string
	Columns     []string
	Name        string
	Rows        int
}

// Options parameterize the generated script.
type Options struct {
	// Prefix is prepended to file names in LOAD CSV URLs.
	Prefix    string
	BatchSize int
	// Reset clears the target graph before loading.
	Reset         bool
	EntityLabel   string
	ReifiedLabels []string
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.EntityLabel == "" {
		o.EntityLabel = DefaultEntityLabel
	}
	return o
}

// Kind classifies a statement.
type Kind string

const (
	KindReset      Kind = "reset"
	KindConstraint Kind = "constraint"
	KindNodeLoad   Kind = "node_load"
	KindEdgeLoad   Kind = "edge_load"
	KindPrune      Kind = "prune"
)

type Statement struct {
	Kind  Kind
	Label string
	Text  string
}

// Script is an ordered list of load statements.
type Script struct {
	Statements []Statement
}

// Count returns the number of statements of a kind.
func (s *Script) Count(k Kind) int {
	n := 0
	for _, st := range s.Statements {
		if st.Kind == k {
			n++
		}
	}
	return n
}

// Of returns the statements of a kind in script order.
func (s *Script) Of(k Kind) []Statement {
	var out []Statement
	for _, st := range s.Statements {
		if st.Kind == k {
			out = append(out, st)
		}
	}
	return out
}

const header = "// Generated by ftmgraph. Run with cypher-shell or `ftmgraph load`.\n"

func (s *Script) String() string {
	var b strings.Builder
	b.WriteString(header)
	for _, st := range s.Statements {
		b.WriteString("\n")
		b.WriteString(st.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// WriteTo writes the script text to w.
func (s *Script) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.String())
	return int64(n), err
}

// ── Templates ──────────────────────────────────────────────

var funcs = template.FuncMap{
	"q":   quoteIdent,
	"str": quoteString,
}

var tmpl = template.Must(template.New("cypher").Funcs(funcs).Parse(`
{{- define "reset" -}}
MATCH (n)
CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF {{.BatchSize}} ROWS;
{{- end}}

{{- define "constraint" -}}
CREATE CONSTRAINT {{q .Name}} IF NOT EXISTS FOR (n:{{q .Label}}) REQUIRE n.id IS UNIQUE;
{{- end}}

{{- define "node" -}}
LOAD CSV WITH HEADERS FROM {{str .URL}} AS row
WITH row WHERE row.id IS NOT NULL
CALL {
  WITH row
  MERGE (n{{if .NodeLabel}}:{{q .NodeLabel}}{{end}} {id: row.id})
{{- range .Properties}}
  SET n.{{q .}} = row.{{q .}}
{{- end}}
{{- if .Labels}}
  SET n{{range .Labels}}:{{q .}}{{end}}
{{- end}}
} IN TRANSACTIONS OF {{.BatchSize}} ROWS;
{{- end}}

{{- define "edge" -}}
LOAD CSV WITH HEADERS FROM {{str .URL}} AS row
WITH row WHERE row.source_id IS NOT NULL AND row.target_id IS NOT NULL
CALL {
  WITH row
  MERGE (s{{if .SourceLabel}}:{{q .SourceLabel}}{{end}} {id: row.source_id})
  MERGE (t{{if .TargetLabel}}:{{q .TargetLabel}}{{end}} {id: row.target_id})
  MERGE (s)-[r:{{q .Label}}]->(t)
{{- range .Properties}}
  SET r.{{q .}} = row.{{q .}}
{{- end}}
} IN TRANSACTIONS OF {{.BatchSize}} ROWS;
{{- end}}

{{- define "prune" -}}
MATCH (n:{{q .Label}})
WHERE COUNT { (n)--() } <= 1
CALL { WITH n DETACH DELETE n } IN TRANSACTIONS OF {{.BatchSize}} ROWS;
{{- end}}
`))

type loadData struct {
	File
	URL        string
	Properties []string
	Labels     []string
	BatchSize  int
}

// Generate renders the load script for a set of closed files. Node
// loads keep the order of files; edge loads follow all node loads.
// Constraints and prunes cover the entity label and only those
// reified labels that have a node file.
func Generate(files []File, opts Options) (*Script, error) {
	opts = opts.withDefaults()
	s := &Script{}

	emit := func(kind Kind, label, name string, data any) error {
		var b strings.Builder
		if err := tmpl.ExecuteTemplate(&b, name, data); err != nil {
			return fmt.Errorf("render %s %s: %w", kind, label, err)
		}
		s.Statements = append(s.Statements, Statement{Kind: kind, Label: label, Text: b.String()})
		return nil
	}

	if opts.Reset {
		if err := emit(KindReset, "", "reset", opts); err != nil {
			return nil, err
		}
	}

	present := map[string]bool{}
	for _, f := range files {
		if !f.Edge {
			present[f.Label] = true
		}
	}
	var reified []string
	for _, l := range opts.ReifiedLabels {
		if present[l] && l != opts.EntityLabel && !slices.Contains(reified, l) {
			reified = append(reified, l)
		}
	}

	for _, label := range append([]string{opts.EntityLabel}, reified...) {
		data := struct{ Name, Label string }{constraintName(label), label}
		if err := emit(KindConstraint, label, "constraint", data); err != nil {
			return nil, err
		}
	}

	for _, f := range files {
		if f.Edge {
			continue
		}
		data := loadData{
			File:       f,
			URL:        fileURL(opts.Prefix, f.Name),
			Properties: without(f.Columns, "id"),
			Labels:     nodeLabels(f),
			BatchSize:  opts.BatchSize,
		}
		if err := emit(KindNodeLoad, f.Label, "node", data); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		if !f.Edge {
			continue
		}
		data := loadData{
			File:       f,
			URL:        fileURL(opts.Prefix, f.Name),
			Properties: without(f.Columns, "source_id", "target_id"),
			BatchSize:  opts.BatchSize,
		}
		if err := emit(KindEdgeLoad, f.Label, "edge", data); err != nil {
			return nil, err
		}
	}

	for _, label := range reified {
		data := struct {
			Label     string
			BatchSize int
		}{label, opts.BatchSize}
		if err := emit(KindPrune, label, "prune", data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func nodeLabels(f File) []string {
	var labels []string
	for _, l := range append([]string{f.Label}, f.ExtraLabels...) {
		if l == "" || l == f.NodeLabel || slices.Contains(labels, l) {
			continue
		}
		labels = append(labels, l)
	}
	return labels
}

func without(cols []string, skip ...string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(skip, c) {
			out = append(out, c)
		}
	}
	return out
}

func fileURL(prefix, name string) string {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + name
}

func constraintName(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_id")
	return b.String()
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
