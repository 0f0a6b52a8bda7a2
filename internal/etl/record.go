package etl

import (
	"context"
	"fmt"
	"sort"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate format between sources and the engine.
// Data holds one decoded entity document: {id, schema, properties}.
// A source that cannot decode one item of its stream emits a Record
// with Err set instead of aborting the whole read.

// Record is a single raw entity flowing through the pipeline.
type Record struct {
	Data map[string]any `json:"data"`
	Err  error          `json:"-"`
}

// ID returns the entity id of the record, or "".
func (r Record) ID() string {
	id, _ := r.Data["id"].(string)
	return id
}

// SchemaName returns the schema name of the record, or "".
func (r Record) SchemaName() string {
	s, _ := r.Data["schema"].(string)
	return s
}

// Properties returns the properties object of the record.
func (r Record) Properties() map[string]any {
	p, _ := r.Data["properties"].(map[string]any)
	return p
}

// SchemaCount is the number of sampled records of one schema.
type SchemaCount struct {
	Schema string `json:"schema"`
	Count  int    `json:"count"`
}

// Summary describes a sample of a source's records.
type Summary struct {
	Sampled  int           `json:"sampled"`
	Invalid  int           `json:"invalid"`
	Schemata []SchemaCount `json:"schemata"`
}

// Sample reads up to max records from s and tallies their schemata.
func Sample(ctx context.Context, s Source, cfg SourceConfig, max int) (*Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recCh, errCh := s.Read(ctx, cfg)
	counts := map[string]int{}
	sum := &Summary{}
	stopped := false
	for rec := range recCh {
		if sum.Sampled+sum.Invalid >= max {
			stopped = true
			cancel()
			continue
		}
		if rec.Err != nil || rec.SchemaName() == "" {
			sum.Invalid++
			continue
		}
		sum.Sampled++
		counts[rec.SchemaName()]++
	}
	if err := <-errCh; err != nil && !stopped {
		return sum, fmt.Errorf("sample %s: %w", s.Spec().Type, err)
	}

	for name, n := range counts {
		sum.Schemata = append(sum.Schemata, SchemaCount{Schema: name, Count: n})
	}
	sortCounts(sum.Schemata)
	return sum, nil
}

// sortCounts orders by descending count, then by schema name.
func sortCounts(c []SchemaCount) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Count != c[j].Count {
			return c[i].Count > c[j].Count
		}
		return c[i].Schema < c[j].Schema
	})
}
