package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgresConnection opens the PostgreSQL pool. Connectivity is checked
// by the caller with PingContext.
func NewPostgresConnection(dbURL string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(max(1, maxOpenConns/5))
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
