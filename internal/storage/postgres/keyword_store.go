// Package postgres provides the Postgres-backed keyword repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serpwatch/rankscan/internal/rank"
)

// ErrKeywordNotFound is returned when an append targets a keyword that does
// not exist for the given tenant and project.
var ErrKeywordNotFound = errors.New("keyword not found for tenant")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// KeywordStore implements rank.KeywordRepository on Postgres. History is an
// append-only table: one INSERT per observation, so concurrent runs can
// never clobber each other's points.
type KeywordStore struct {
	pool pgxPool
}

// NewKeywordStore connects a pool and returns a store.
func NewKeywordStore(ctx context.Context, cfg Config) (*KeywordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	return &KeywordStore{pool: pool}, nil
}

// NewKeywordStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewKeywordStoreWithPool(pool pgxPool) (*KeywordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &KeywordStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *KeywordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the database is reachable. Used by readiness probes.
func (s *KeywordStore) Ping(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, "SELECT 1")
	if err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	rows.Close()
	return rows.Err()
}

const listTargetsSQL = `
	SELECT k.id, k.project_id, k.term, k.country, p.tenant_id, p.domain, p.scan_day
	FROM keywords k
	JOIN projects p ON p.id = k.project_id
	WHERE $1 = '' OR p.tenant_id = $1
	ORDER BY p.tenant_id, k.project_id, k.id`

const listHistorySQL = `
	SELECT keyword_id, checked_at, position
	FROM rank_history
	WHERE keyword_id = ANY($1)
	ORDER BY keyword_id, checked_at, id`

// ListScanTargets returns every keyword (optionally scoped to one tenant)
// with its project context and full history joined in.
func (s *KeywordStore) ListScanTargets(ctx context.Context, tenantID string) ([]rank.ScanTarget, error) {
	rows, err := s.pool.Query(ctx, listTargetsSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query scan targets: %w", err)
	}
	defer rows.Close()

	var targets []rank.ScanTarget
	index := map[string]int{}
	var ids []string
	for rows.Next() {
		var t rank.ScanTarget
		if err := rows.Scan(
			&t.Keyword.ID,
			&t.Keyword.ProjectID,
			&t.Keyword.Term,
			&t.Keyword.Country,
			&t.TenantID,
			&t.ProjectDomain,
			&t.ScanDay,
		); err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		t.ProjectID = t.Keyword.ProjectID
		index[t.Keyword.ID] = len(targets)
		ids = append(ids, t.Keyword.ID)
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan targets: %w", err)
	}
	if len(targets) == 0 {
		return targets, nil
	}

	histRows, err := s.pool.Query(ctx, listHistorySQL, ids)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer histRows.Close()

	for histRows.Next() {
		var keywordID string
		var point rank.HistoryPoint
		if err := histRows.Scan(&keywordID, &point.CheckedAt, &point.Position); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if i, ok := index[keywordID]; ok {
			targets[i].Keyword.History = append(targets[i].Keyword.History, point)
		}
	}
	if err := histRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return targets, nil
}

const appendHistorySQL = `
	INSERT INTO rank_history (keyword_id, checked_at, position)
	SELECT k.id, $4, $5
	FROM keywords k
	JOIN projects p ON p.id = k.project_id
	WHERE k.id = $3 AND p.id = $2 AND p.tenant_id = $1`

// AppendHistory inserts one observation row. The insert is conditioned on
// the tenant/project owning the keyword, so a mis-scoped call writes
// nothing instead of leaking across tenants.
func (s *KeywordStore) AppendHistory(ctx context.Context, tenantID, projectID, keywordID string, point rank.HistoryPoint) error {
	tag, err := s.pool.Exec(ctx, appendHistorySQL, tenantID, projectID, keywordID, point.CheckedAt, point.Position)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append history for %s: %w", keywordID, ErrKeywordNotFound)
	}
	return nil
}

const insertProjectSQL = `
	INSERT INTO projects (id, tenant_id, name, domain, scan_day)
	VALUES ($1, $2, $3, $4, $5)`

// CreateProject registers a project for a tenant.
func (s *KeywordStore) CreateProject(ctx context.Context, p rank.Project) error {
	if _, err := s.pool.Exec(ctx, insertProjectSQL, p.ID, p.TenantID, p.Name, p.Domain, p.ScanDay); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

const insertKeywordSQL = `
	INSERT INTO keywords (id, project_id, term, country)
	SELECT $3, p.id, $4, $5
	FROM projects p
	WHERE p.id = $2 AND p.tenant_id = $1`

const insertSentinelSQL = `
	INSERT INTO rank_history (keyword_id, checked_at, position)
	VALUES ($1, $2, NULL)`

// CreateKeyword registers a keyword together with its "not yet checked"
// sentinel point, atomically.
func (s *KeywordStore) CreateKeyword(ctx context.Context, tenantID string, kw rank.Keyword, registeredAt time.Time) error {
	if len([]rune(kw.Term)) < 3 {
		return fmt.Errorf("keyword term must be at least 3 characters")
	}
	if !rank.ValidCountry(kw.Country) {
		return fmt.Errorf("unsupported country %q", kw.Country)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, insertKeywordSQL, tenantID, kw.ProjectID, kw.ID, kw.Term, kw.Country)
	if err != nil {
		return fmt.Errorf("insert keyword: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert keyword %s: project not found for tenant", kw.ID)
	}
	if _, err := tx.Exec(ctx, insertSentinelSQL, kw.ID, registeredAt); err != nil {
		return fmt.Errorf("insert sentinel point: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
