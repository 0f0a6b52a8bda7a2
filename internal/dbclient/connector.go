package dbclient

import (
	"context"
	"errors"
	"fmt"
)

// ErrWriteQuery is returned when a query would modify the database.
// Connectors only ever read.
var ErrWriteQuery = errors.New("write queries are not allowed")

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
}

// Connector abstracts read access to an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a read query and returns the first batch of rows.
	// The cursor stays open until it is exhausted, ctx is done, or
	// another query is executed.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
func NewConnector(conn *Connection, password string) (Connector, error) {
	switch conn.Driver {
	case DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case DatabaseDriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn, password))
	case DatabaseDriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn, password))
	case DatabaseDriverMongoDB:
		return newMongoConnector(conn, password)
	default:
		return nil, fmt.Errorf("unsupported driver: %q", conn.Driver)
	}
}
