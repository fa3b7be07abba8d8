package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type Config struct {
	URL          string `split_words:"true"`
	MaxOpenConns int    `split_words:"true" default:"10"`
	MaxIdleConns int    `split_words:"true" default:"5"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// New opens a pooled connection through lib/pq and verifies it with a ping.
func (p *Config) New(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", p.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(p.MaxOpenConns)
	db.SetMaxIdleConns(p.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(p.DialTimeout)*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
