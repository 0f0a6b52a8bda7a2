package dbclient

import (
	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an external SQLite file.
func newSQLiteConnector(conn *Connection) (*sqlConnector, error) {
	dsn := conn.Host + "?_pragma=busy_timeout(5000)"
	return newSQLConnector("sqlite", dsn)
}
