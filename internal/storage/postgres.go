package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver registration.

	"pr_digest_bot/migrations"
)

// Postgres implements Storage backed by a PostgreSQL database.
type Postgres struct {
	sqlStore
}

// NewPostgres connects to dsn, verifies the connection and runs pending migrations.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrations.Run(db, "postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Postgres{sqlStore{db: db, numbered: true}}, nil
}
