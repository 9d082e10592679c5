package indexdb

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresIndex writes the same tables as SQLiteIndex to a shared
// PostgreSQL database, so several servers can be queried together.
type PostgresIndex struct {
	*writer
}

func OpenPostgres(dsn string, opts ...Option) (*PostgresIndex, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	p := &PostgresIndex{writer: newWriter(db, dialectPostgres, buildOptions(opts))}
	p.start()
	return p, nil
}
