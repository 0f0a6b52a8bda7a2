package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"ftmgraph/internal/logger"
)

// LoadStats sums the update counters of a script run.
type LoadStats struct {
	Statements           int           `json:"statements"`
	NodesCreated         int           `json:"nodesCreated"`
	NodesDeleted         int           `json:"nodesDeleted"`
	RelationshipsCreated int           `json:"relationshipsCreated"`
	RelationshipsDeleted int           `json:"relationshipsDeleted"`
	PropertiesSet        int           `json:"propertiesSet"`
	LabelsAdded          int           `json:"labelsAdded"`
	ConstraintsAdded     int           `json:"constraintsAdded"`
	Duration             time.Duration `json:"duration"`
}

func (s *LoadStats) add(o LoadStats) {
	s.NodesCreated += o.NodesCreated
	s.NodesDeleted += o.NodesDeleted
	s.RelationshipsCreated += o.RelationshipsCreated
	s.RelationshipsDeleted += o.RelationshipsDeleted
	s.PropertiesSet += o.PropertiesSet
	s.LabelsAdded += o.LabelsAdded
	s.ConstraintsAdded += o.ConstraintsAdded
}

func countersStats(c neo4j.Counters) LoadStats {
	if c == nil {
		return LoadStats{}
	}
	return LoadStats{
		NodesCreated:         c.NodesCreated(),
		NodesDeleted:         c.NodesDeleted(),
		RelationshipsCreated: c.RelationshipsCreated(),
		RelationshipsDeleted: c.RelationshipsDeleted(),
		PropertiesSet:        c.PropertiesSet(),
		LabelsAdded:          c.LabelsAdded(),
		ConstraintsAdded:     c.ConstraintsAdded(),
	}
}

type execFunc func(ctx context.Context, stmt string) (LoadStats, error)

func runStatements(ctx context.Context, stmts []string, exec execFunc, log *logger.Logger) (*LoadStats, error) {
	start := time.Now()
	total := &LoadStats{}
	for i, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			total.Duration = time.Since(start)
			return total, err
		}
		stmtStart := time.Now()
		st, err := exec(ctx, stmt)
		if err != nil {
			total.Duration = time.Since(start)
			return total, fmt.Errorf("statement %d (%s): %w", i+1, summarize(stmt), err)
		}
		total.Statements++
		total.add(st)
		log.Debug("statement done", "n", i+1, "of", len(stmts), "stmt", summarize(stmt),
			"nodes", st.NodesCreated, "rels", st.RelationshipsCreated, "took", time.Since(stmtStart))
	}
	total.Duration = time.Since(start)
	return total, nil
}

// summarize returns the first line of stmt, shortened for logs.
func summarize(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	if len(line) > 80 {
		line = line[:77] + "..."
	}
	return line
}
