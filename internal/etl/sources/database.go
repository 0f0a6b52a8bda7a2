package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"ftmgraph/internal/dbclient"
	"ftmgraph/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads entities from a SQL query through a read-only dbclient
// connector. A row holds either a single JSON document column named
// "entity", or "id", "schema" and "properties" (JSON) columns.

const pageSize = 500

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []etl.ConfigField{
			{Key: "driver", Label: "Driver", Type: "select", Required: true, Options: []string{"sqlite", "mysql", "postgres"}},
			{Key: "host", Label: "Host", Type: "string", Required: true, Help: "Hostname, or the file path for sqlite"},
			{Key: "port", Label: "Port", Type: "string", Required: false},
			{Key: "database", Label: "Database", Type: "string", Required: false},
			{Key: "username", Label: "Username", Type: "string", Required: false},
			{Key: "password", Label: "Password", Type: "password", Required: false},
			{Key: "sslMode", Label: "SSL Mode", Type: "select", Required: false, Options: []string{"disable", "require", "verify-full"}},
			{Key: "query", Label: "Query", Type: "textarea", Required: true, Help: "SELECT returning an entity column, or id, schema and properties columns"},
		},
	}
}

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Summary, error) {
	return etl.Sample(ctx, s, cfg, 100)
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		driver := dbclient.DatabaseDriver(cfg.String("driver", ""))
		if driver == dbclient.DatabaseDriverMongoDB {
			errCh <- fmt.Errorf("use the mongodb source for %s", driver)
			return
		}
		if err := readQuery(ctx, connectionFrom(cfg, driver), cfg.String("password", ""), cfg.String("query", ""), out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func connectionFrom(cfg etl.SourceConfig, driver dbclient.DatabaseDriver) *dbclient.Connection {
	return &dbclient.Connection{
		Driver:   driver,
		Host:     cfg.String("host", ""),
		Port:     cfg.Int("port", 0),
		Database: cfg.String("database", ""),
		Username: cfg.String("username", ""),
		SSLMode:  cfg.String("sslMode", ""),
	}
}

// readQuery runs query on a fresh connector and emits every row until
// the cursor is exhausted.
func readQuery(ctx context.Context, conn *dbclient.Connection, password, query string, out chan<- etl.Record) error {
	if query == "" {
		return fmt.Errorf("query is required")
	}
	connector, err := dbclient.NewConnector(conn, password)
	if err != nil {
		return err
	}
	defer connector.Close()

	page, err := connector.Execute(ctx, query, pageSize)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if !emitPage(ctx, out, page) {
		return ctx.Err()
	}

	for page.HasMore {
		page, err = connector.FetchMore(ctx, pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch more: %w", err)
		}
		if !emitPage(ctx, out, page) {
			return ctx.Err()
		}
	}
	return nil
}

func emitPage(ctx context.Context, out chan<- etl.Record, page *dbclient.QueryPage) bool {
	for _, row := range page.Rows {
		if !send(ctx, out, rowRecord(page.Columns, row)) {
			return false
		}
	}
	return true
}

// rowRecord converts one result row into an entity record.
func rowRecord(columns []string, row []any) etl.Record {
	values := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(row) {
			values[col] = row[i]
		}
	}

	if doc, ok := values["entity"]; ok {
		raw, ok := doc.(string)
		if !ok {
			return etl.Record{Err: fmt.Errorf("entity column is %T, want JSON text", doc)}
		}
		return decodeEntity([]byte(raw))
	}

	if values["id"] == nil || values["schema"] == nil {
		return etl.Record{Err: fmt.Errorf("row needs an entity column or id and schema columns")}
	}
	data := map[string]any{
		"id":     fmt.Sprint(values["id"]),
		"schema": fmt.Sprint(values["schema"]),
	}
	switch p := values["properties"].(type) {
	case nil:
	case string:
		var props map[string]any
		if err := json.Unmarshal([]byte(p), &props); err != nil {
			return etl.Record{Err: fmt.Errorf("decode properties of %v: %w", values["id"], err)}
		}
		data["properties"] = props
	default:
		return etl.Record{Err: fmt.Errorf("properties column is %T, want JSON text", p)}
	}
	return etl.Record{Data: data}
}
