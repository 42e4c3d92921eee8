package tokens

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	u "ogimage/internal/utils"
)

const tokensDDL = `CREATE TABLE IF NOT EXISTS tokens (
	token TEXT PRIMARY KEY,
	rate_limit INTEGER NOT NULL DEFAULT 60,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	comment TEXT
);`

// PostgresRepository reads tokens from the tokens table through pgx.
type PostgresRepository struct {
	cfg u.PostgresConfig

	mu       sync.Mutex
	db       *sql.DB
	migrated bool
}

// NewPostgresRepository returns a repository that connects lazily.
func NewPostgresRepository(cfg u.PostgresConfig) *PostgresRepository {
	return &PostgresRepository{cfg: cfg}
}

func postgresDSN(cfg u.PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", fmt.Errorf("postgres host is empty")
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	hostPort := cfg.Host
	switch {
	case strings.HasPrefix(hostPort, "["):
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	case strings.Count(hostPort, ":") >= 2:
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	case !strings.Contains(hostPort, ":"):
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	dsn := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		dsn.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		dsn.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		q := dsn.Query()
		q.Set("sslmode", cfg.SSLMode)
		dsn.RawQuery = q.Encode()
	}
	return dsn.String(), nil
}

func (r *PostgresRepository) conn(ctx context.Context) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		dsn, err := postgresDSN(r.cfg)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		// Small control-plane table; a handful of connections is plenty.
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		r.db = db
	}

	if !r.migrated {
		if _, err := r.db.ExecContext(ctx, tokensDDL); err != nil {
			return nil, fmt.Errorf("ensure tokens table: %w", err)
		}
		r.migrated = true
	}
	return r.db, nil
}

// LoadTokens returns every token with its rate limit.
func (r *PostgresRepository) LoadTokens(ctx context.Context) (map[string]Entry, error) {
	db, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT token, rate_limit, COALESCE(comment, '') FROM tokens`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var token string
		var e Entry
		if err := rows.Scan(&token, &e.RateLimit, &e.Comment); err != nil {
			return nil, err
		}
		out[token] = e
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.migrated = false
	return err
}
