package export

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"ftmgraph/internal/cypher"
	"ftmgraph/internal/graph"
	"ftmgraph/internal/logger"
)

// Options configure a Registry.
type Options struct {
	Dir  string
	Keys KeySetFactory
	Log  *logger.Logger
	// ProgressEvery logs a progress line each time a label reaches a
	// multiple of this many rows. Zero disables progress logging.
	ProgressEvery int
}

// Registry owns one LabelWriter per output label for a single run.
type Registry struct {
	opts Options

	mu      sync.Mutex
	writers map[string]*LabelWriter
	files   map[string]string
	order   []*LabelWriter
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// NewRegistry creates the output directory and an empty registry.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Keys == nil {
		opts.Keys = MemoryKeySets()
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Registry{
		opts:    opts,
		writers: map[string]*LabelWriter{},
		files:   map[string]string{},
	}, nil
}

// EmitNode writes a node row to the writer of its label.
func (r *Registry) EmitNode(rec graph.NodeRecord) error {
	return r.emit(&LabelWriter{
		Label:       rec.Label,
		NodeLabel:   rec.NodeLabel,
		ExtraLabels: rec.ExtraLabels,
	}, rec.Row)
}

// EmitEdge writes an edge row to the writer of its label.
func (r *Registry) EmitEdge(rec graph.EdgeRecord) error {
	return r.emit(&LabelWriter{
		Label:       rec.Label,
		Edge:        true,
		SourceLabel: rec.SourceLabel,
		TargetLabel: rec.TargetLabel,
	}, rec.Row)
}

// Emit writes every node and then every edge of a projection.
func (r *Registry) Emit(p graph.Projection) error {
	for _, n := range p.Nodes {
		if err := r.EmitNode(n); err != nil {
			return err
		}
	}
	for _, e := range p.Edges {
		if err := r.EmitEdge(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) emit(proto *LabelWriter, row graph.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%s: %w", proto.Label, ErrClosed)
	}

	w, ok := r.writers[proto.Label]
	if !ok {
		var err error
		if w, err = r.open(proto, row); err != nil {
			return err
		}
	} else if w.Edge != proto.Edge {
		return fmt.Errorf("%w: %s", ErrKindMismatch, proto.Label)
	}

	fresh, err := w.write(row)
	if err != nil {
		return err
	}
	if fresh && r.opts.ProgressEvery > 0 && w.rows%r.opts.ProgressEvery == 0 {
		r.opts.Log.Info("label progress", "label", w.Label, "rows", w.rows)
	}
	return nil
}

func (r *Registry) open(proto *LabelWriter, row graph.Row) (*LabelWriter, error) {
	proto.FileName = FileName(proto.Label, proto.Edge)
	if other, taken := r.files[proto.FileName]; taken {
		return nil, fmt.Errorf("%w: %q and %q both map to %s", ErrFileCollision, other, proto.Label, proto.FileName)
	}
	keys, err := r.opts.Keys(proto.Label)
	if err != nil {
		return nil, fmt.Errorf("key set for %s: %w", proto.Label, err)
	}
	w, err := newLabelWriter(r.opts.Dir, proto, row.Names(), keys)
	if err != nil {
		return nil, err
	}
	r.writers[w.Label] = w
	r.files[w.FileName] = w.Label
	r.order = append(r.order, w)
	r.opts.Log.Debug("opened label file", "label", w.Label, "file", w.FileName, "columns", len(w.columns))
	return w, nil
}

// Writers returns the writers in first-seen order.
func (r *Registry) Writers() []*LabelWriter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*LabelWriter(nil), r.order...)
}

// Stats returns the row count per label.
func (r *Registry) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.order))
	for _, w := range r.order {
		out[w.Label] = w.rows
	}
	return out
}

// Close flushes and closes every writer. Only the first call does
// any work; later calls return the same result.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		writers := append([]*LabelWriter(nil), r.order...)
		r.mu.Unlock()

		g := new(errgroup.Group)
		g.SetLimit(8)
		for _, w := range writers {
			g.Go(w.close)
		}
		r.closeErr = g.Wait()
	})
	return r.closeErr
}

// Files describes the closed label files in first-seen order.
func (r *Registry) Files() ([]cypher.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		return nil, ErrNotClosed
	}
	files := make([]cypher.File, len(r.order))
	for i, w := range r.order {
		files[i] = w.descriptor()
	}
	return files, nil
}
