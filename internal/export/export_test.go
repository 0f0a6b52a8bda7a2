package export_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftmgraph/internal/export"
	"ftmgraph/internal/graph"
)

func newRegistry(t *testing.T) (*export.Registry, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "out")
	r, err := export.NewRegistry(export.Options{Dir: dir})
	require.NoError(t, err)
	return r, dir
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func person(id, name string) graph.NodeRecord {
	return graph.NodeRecord{
		Label:       "Person",
		NodeLabel:   graph.EntityLabel,
		ExtraLabels: []string{"LegalEntity", graph.EntityLabel},
		Row:         graph.NewRow("id", id, "caption", name, "name", name),
	}
}

func edge(label, src, tgt string) graph.EdgeRecord {
	return graph.EdgeRecord{
		Label:       label,
		SourceLabel: graph.EntityLabel,
		TargetLabel: graph.EntityLabel,
		Row:         graph.NewRow("source_id", src, "target_id", tgt),
	}
}

func TestIdempotentNodeWrites(t *testing.T) {
	r, dir := newRegistry(t)
	require.NoError(t, r.EmitNode(person("p1", "Jane Doe")))
	require.NoError(t, r.EmitNode(person("p1", "Jane Doe")))
	require.NoError(t, r.EmitNode(person("p1", "Someone Else")))
	require.NoError(t, r.Close())

	rows := readCSV(t, filepath.Join(dir, "Person.nodes.csv"))
	assert.Equal(t, [][]string{
		{"id", "caption", "name"},
		{"p1", "Jane Doe", "Jane Doe"},
	}, rows)
	assert.Equal(t, map[string]int{"Person": 1}, r.Stats())
}

func TestCompositeEdgeDedup(t *testing.T) {
	r, dir := newRegistry(t)
	require.NoError(t, r.EmitEdge(edge("OWNERSHIP", "a", "b")))
	require.NoError(t, r.EmitEdge(edge("OWNERSHIP", "a", "b")))
	require.NoError(t, r.EmitEdge(edge("OWNERSHIP", "b", "a")))
	require.NoError(t, r.EmitEdge(edge("DIRECTORSHIP", "a", "b")))
	require.NoError(t, r.Close())

	assert.Len(t, readCSV(t, filepath.Join(dir, "OWNERSHIP.edges.csv")), 3)
	assert.Len(t, readCSV(t, filepath.Join(dir, "DIRECTORSHIP.edges.csv")), 2)
	assert.Equal(t, map[string]int{"OWNERSHIP": 2, "DIRECTORSHIP": 1}, r.Stats())
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "foobar x", export.Sanitize("foo\x00bar\\   x", 0))
	assert.Equal(t, "a b", export.Sanitize("  a\n\t b  ", 0))
	assert.Equal(t, "abc", export.Sanitize("abcdef", 3))
	assert.Equal(t, "äöü", export.Sanitize("äöüß", 3))

	long := strings.Repeat("x", 6000)
	assert.Len(t, export.Sanitize(long, export.MaxFieldLength), export.MaxFieldLength)
}

func TestRowsAreSanitizedAndTruncated(t *testing.T) {
	r, dir := newRegistry(t)
	longID := strings.Repeat("i", 1200)
	require.NoError(t, r.EmitNode(graph.NodeRecord{
		Label: "Note",
		Row:   graph.NewRow("id", longID, "caption", "foo\x00bar\\   baz, \"quoted\"\nline"),
	}))
	// Same id after truncation: duplicate.
	require.NoError(t, r.EmitNode(graph.NodeRecord{
		Label: "Note",
		Row:   graph.NewRow("id", longID+"tail", "caption", "other"),
	}))
	require.NoError(t, r.Close())

	rows := readCSV(t, filepath.Join(dir, "Note.nodes.csv"))
	require.Len(t, rows, 2)
	assert.Len(t, rows[1][0], export.MaxIdentityLength)
	assert.Equal(t, `foobar baz, "quoted" line`, rows[1][1])
}

func TestEmptyIdentityIsDropped(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.EmitNode(graph.NodeRecord{Label: "Name", Row: graph.NewRow("id", " ", "caption", "x")}))
	require.NoError(t, r.EmitEdge(edge("LINK", "a", "")))
	require.NoError(t, r.Close())
	assert.Equal(t, map[string]int{"Name": 0, "LINK": 0}, r.Stats())
}

func TestColumnMismatchFails(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.EmitNode(person("p1", "Jane Doe")))

	err := r.EmitNode(graph.NodeRecord{Label: "Person", Row: graph.NewRow("id", "p2", "caption", "x")})
	assert.ErrorIs(t, err, export.ErrColumnMismatch)

	err = r.EmitNode(graph.NodeRecord{Label: "Person", Row: graph.NewRow("id", "p2", "caption", "x", "alias", "y")})
	assert.ErrorIs(t, err, export.ErrColumnMismatch)

	// Same set in another order is accepted and written in header order.
	require.NoError(t, r.EmitNode(graph.NodeRecord{Label: "Person", Row: graph.NewRow("name", "N", "id", "p3", "caption", "C")}))
	require.NoError(t, r.Close())
}

func TestKindMismatchFails(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.EmitNode(graph.NodeRecord{Label: "Thing", Row: graph.NewRow("id", "x")}))
	err := r.EmitEdge(graph.EdgeRecord{Label: "Thing", Row: graph.NewRow("source_id", "a", "target_id", "b")})
	assert.ErrorIs(t, err, export.ErrKindMismatch)
	require.NoError(t, r.Close())
}

func TestCloseOnceAndFiles(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.Files()
	assert.ErrorIs(t, err, export.ErrNotClosed)

	require.NoError(t, r.Emit(graph.Projection{
		Nodes: []graph.NodeRecord{person("p1", "Jane Doe"), {Label: "Name", NodeLabel: "Name", Row: graph.NewRow("id", "n1", "caption", "Jane Doe")}},
		Edges: []graph.EdgeRecord{{Label: "HAS_NAME", SourceLabel: graph.EntityLabel, TargetLabel: "Name", Row: graph.NewRow("source_id", "p1", "target_id", "n1")}},
	}))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	err = r.EmitNode(person("p2", "John Doe"))
	assert.ErrorIs(t, err, export.ErrClosed)

	files, err := r.Files()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "Person.nodes.csv", files[0].Name)
	assert.Equal(t, []string{"LegalEntity", graph.EntityLabel}, files[0].ExtraLabels)
	assert.Equal(t, "Name.nodes.csv", files[1].Name)
	assert.Equal(t, "HAS_NAME.edges.csv", files[2].Name)
	assert.True(t, files[2].Edge)
	assert.Equal(t, "Name", files[2].TargetLabel)
	assert.Equal(t, []string{"source_id", "target_id"}, files[2].Columns)
	assert.Equal(t, 1, files[2].Rows)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "HAS_NAME.edges.csv", export.FileName("HAS_NAME", true))
	assert.Equal(t, "Close_Associate.nodes.csv", export.FileName("Close Associate", false))
}

func TestFileNameCollision(t *testing.T) {
	r, _ := newRegistry(t)
	require.NoError(t, r.EmitNode(graph.NodeRecord{Label: "A-B", Row: graph.NewRow("id", "x")}))
	err := r.EmitNode(graph.NodeRecord{Label: "A_B", Row: graph.NewRow("id", "x")})
	assert.ErrorIs(t, err, export.ErrFileCollision)
	require.NoError(t, r.Close())
}

func TestMemoryKeySets(t *testing.T) {
	ks, err := export.MemoryKeySets()("Person")
	require.NoError(t, err)
	fresh, err := ks.Add("a")
	require.NoError(t, err)
	assert.True(t, fresh)
	fresh, err = ks.Add("a")
	require.NoError(t, err)
	assert.False(t, fresh)
}
