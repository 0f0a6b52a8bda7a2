package dbclient

// DatabaseDriver identifies the driver behind a Connection.
type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
)

// Connection describes an external database that entities are read
// from. For sqlite Host is the file path; for mongodb it may be a full
// connection string. The password is passed separately.
type Connection struct {
	Driver   DatabaseDriver    `json:"driver"`
	Host     string            `json:"host"`
	Port     int               `json:"port,omitempty"`
	Database string            `json:"database,omitempty"`
	Username string            `json:"username,omitempty"`
	SSLMode  string            `json:"sslMode,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"` // driver options, e.g. authSource
}
