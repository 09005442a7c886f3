package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var DB *sql.DB

// Init opens the SQLite database backing the session credential store.
// The default DSN points at an in-memory database, so session records are
// ephemeral and disappear when the process exits.
func Init(dsn string) error {
	var err error

	DB, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return err
	}

	// A shared in-memory database disappears once the last connection
	// closes, so keep at least one open.
	DB.SetMaxOpenConns(10)
	DB.SetMaxIdleConns(2)
	DB.SetConnMaxLifetime(time.Hour)

	if err = DB.Ping(); err != nil {
		return err
	}

	return createSchema()
}

// createSchema creates the sessions table if it doesn't exist
func createSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			key TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			user_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`
	_, err := DB.Exec(query)
	return err
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
