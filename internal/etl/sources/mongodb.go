package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"ftmgraph/internal/dbclient"
	"ftmgraph/internal/etl"
)

// ── MongoDB Source ─────────────────────────────────────────
// Reads entity documents from a collection. Each document is
// rendered as relaxed Extended JSON and decoded like a file line;
// the _id field is ignored by the entity parser.

type mongodbSource struct{}

func init() { etl.RegisterSource(&mongodbSource{}) }

func (s *mongodbSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "mongodb",
		Label: "MongoDB Collection",
		ConfigFields: []etl.ConfigField{
			{Key: "host", Label: "Host", Type: "string", Required: true, Help: "Hostname or a full mongodb:// / mongodb+srv:// connection string"},
			{Key: "port", Label: "Port", Type: "string", Required: false, Default: "27017"},
			{Key: "database", Label: "Database", Type: "string", Required: false},
			{Key: "username", Label: "Username", Type: "string", Required: false},
			{Key: "password", Label: "Password", Type: "password", Required: false},
			{Key: "collection", Label: "Collection", Type: "string", Required: true},
			{Key: "filter", Label: "Filter", Type: "textarea", Required: false, Help: "Extended JSON filter (e.g., {\"schema\": \"Person\"})"},
		},
	}
}

func (s *mongodbSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Summary, error) {
	return etl.Sample(ctx, s, cfg, 100)
}

func (s *mongodbSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		query, err := mongoQuery(cfg)
		if err != nil {
			errCh <- err
			return
		}
		conn := connectionFrom(cfg, dbclient.DatabaseDriverMongoDB)
		if err := readQuery(ctx, conn, cfg.String("password", ""), query, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// mongoQuery builds the connector query for cfg. The filter may be a
// JSON string or an already decoded object.
func mongoQuery(cfg etl.SourceConfig) (string, error) {
	q := dbclient.MongoQuery{Collection: cfg.String("collection", "")}
	switch f := cfg["filter"].(type) {
	case nil:
	case map[string]any:
		q.Filter = f
	case string:
		if f != "" {
			if err := json.Unmarshal([]byte(f), &q.Filter); err != nil {
				return "", fmt.Errorf("parse filter: %w", err)
			}
		}
	default:
		return "", fmt.Errorf("filter must be a JSON object, got %T", f)
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
