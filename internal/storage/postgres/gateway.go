// Package postgres provides the Postgres-backed data gateway.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Tables names the three relations the gateway reads.
type Tables struct {
	Requests     string
	Genres       string
	Associations string
}

// DefaultTables matches the schema owned by the calling service.
func DefaultTables() Tables {
	return Tables{
		Requests:     "analysis_requests",
		Genres:       "genres",
		Associations: "analysis_genres",
	}
}

// GatewayConfig controls the Postgres connection pool used for reads.
type GatewayConfig struct {
	DSN             string
	Tables          Tables
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Gateway reads analysis requests and genre associations from Postgres.
// It never writes.
type Gateway struct {
	pool   querier
	tables Tables
}

// NewGateway creates a Postgres-backed Gateway using the provided config.
func NewGateway(ctx context.Context, cfg GatewayConfig) (*Gateway, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	tables, err := normalizeTables(cfg.Tables)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Gateway{pool: pool, tables: tables}, nil
}

// NewGatewayWithPool constructs a gateway from an existing pool (primarily for testing).
func NewGatewayWithPool(pool querier, tables Tables) (*Gateway, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	normalized, err := normalizeTables(tables)
	if err != nil {
		return nil, err
	}
	return &Gateway{pool: pool, tables: normalized}, nil
}

func normalizeTables(t Tables) (Tables, error) {
	def := DefaultTables()
	if t.Requests == "" {
		t.Requests = def.Requests
	}
	if t.Genres == "" {
		t.Genres = def.Genres
	}
	if t.Associations == "" {
		t.Associations = def.Associations
	}
	for _, name := range []string{t.Requests, t.Genres, t.Associations} {
		if !validTableName.MatchString(name) {
			return Tables{}, fmt.Errorf("invalid table name %q", name)
		}
	}
	return t, nil
}

// Close releases the underlying pool resources.
func (g *Gateway) Close() {
	if g == nil || g.pool == nil {
		return
	}
	g.pool.Close()
}

// Ping checks that the database is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w: %w", analysis.ErrStoreUnavailable, err)
	}
	return nil
}

// FetchRequest looks up an analysis request by primary key. A NULL text is returned as "".
func (g *Gateway) FetchRequest(ctx context.Context, id int64) (analysis.Request, error) {
	query := fmt.Sprintf(
		`SELECT COALESCE(text_to_analyse, '') FROM %s WHERE analysis_request_id = $1`,
		g.tables.Requests,
	)
	var text string
	err := g.pool.QueryRow(ctx, query, id).Scan(&text)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return analysis.Request{}, fmt.Errorf("analysis request %d: %w", id, analysis.ErrNotFound)
	case err != nil:
		return analysis.Request{}, fmt.Errorf("fetch analysis request %d: %w: %w", id, analysis.ErrStoreUnavailable, err)
	}
	return analysis.Request{ID: id, Text: text}, nil
}

// FetchGenreAssociations joins the request's associations to their genres, ordered by genre id.
func (g *Gateway) FetchGenreAssociations(ctx context.Context, requestID int64) ([]analysis.GenreAssociation, error) {
	query := fmt.Sprintf(`
SELECT
	g.genre_id,
	COALESCE(g.genre_name, ''),
	COALESCE(g.genre_keywords, '')
FROM %s ag
JOIN %s g ON g.genre_id = ag.genre_id
WHERE ag.analysis_request_id = $1
ORDER BY g.genre_id`, g.tables.Associations, g.tables.Genres)

	rows, err := g.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query genre associations: %w: %w", analysis.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make([]analysis.GenreAssociation, 0)
	for rows.Next() {
		var a analysis.GenreAssociation
		if err := rows.Scan(&a.GenreID, &a.GenreName, &a.GenreKeywords); err != nil {
			return nil, fmt.Errorf("scan genre association: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genre associations: %w: %w", analysis.ErrStoreUnavailable, err)
	}
	return out, nil
}
