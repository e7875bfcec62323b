package docstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PoolOptions tunes the PostgreSQL connection pool.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// Postgres is a Store that keeps every document as a JSONB row in a single
// documents table keyed by (collection, id).
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a pool, verifies connectivity and applies migrations.
func NewPostgres(ctx context.Context, url string, opts PoolOptions) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = opts.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("document store connected",
		"backend", "postgres",
		"max_conns", poolConfig.MaxConns,
		"min_conns", poolConfig.MinConns,
	)
	return &Postgres{pool: pool}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Insert implements Store.
func (p *Postgres) Insert(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateCollection("insert", collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	raw, err := encodeData(data)
	if err != nil {
		return "", newError(CodeInternal, "insert", collection, id, err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(raw))
	if err != nil {
		return "", fromPg(err, "insert", collection, id)
	}
	return id, nil
}

// Create implements Store.
func (p *Postgres) Create(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateCollection("create", collection); err != nil {
		return err
	}
	raw, err := encodeData(data)
	if err != nil {
		return newError(CodeInternal, "create", collection, id, err)
	}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, string(raw))
	if err != nil {
		return fromPg(err, "create", collection, id)
	}
	if tag.RowsAffected() == 0 {
		return newError(CodeAlreadyExists, "create", collection, id, nil)
	}
	return nil
}

// Set implements Store.
func (p *Postgres) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := validateCollection("set", collection); err != nil {
		return err
	}
	raw, err := encodeData(data)
	if err != nil {
		return newError(CodeInternal, "set", collection, id, err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`,
		collection, id, string(raw))
	if err != nil {
		return fromPg(err, "set", collection, id)
	}
	return nil
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, newError(CodeNotFound, "get", collection, id, nil)
		}
		return Document{}, fromPg(err, "get", collection, id)
	}
	data, err := decodeData(raw)
	if err != nil {
		return Document{}, newError(CodeInternal, "get", collection, id, err)
	}
	return Document{ID: id, Data: data}, nil
}

// List implements Store.
func (p *Postgres) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	query, args, err := buildListQuery(collection, q)
	if err != nil {
		return nil, newError(CodeInternal, "list", collection, "", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fromPg(err, "list", collection, "")
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fromPg(err, "list", collection, "")
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, newError(CodeInternal, "list", collection, id, err)
		}
		docs = append(docs, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fromPg(err, "list", collection, "")
	}
	return docs, nil
}

// buildListQuery renders a List query. Filters become one JSONB containment
// predicate so the GIN index serves them.
func buildListQuery(collection string, q Query) (string, []any, error) {
	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)

	if len(q.Filters) > 0 {
		contains := make(map[string]any, len(q.Filters))
		for _, f := range q.Filters {
			contains[f.Field] = f.Value
		}
		raw, err := encodeData(contains)
		if err != nil {
			return "", nil, fmt.Errorf("encode filters: %w", err)
		}
		args = append(args, string(raw))
		b.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)
	}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		n := strconv.Itoa(len(args))
		b.WriteString(` AND data ? $` + n)
		b.WriteString(` ORDER BY data -> $` + n + `, seq`)
	} else {
		b.WriteString(` ORDER BY seq`)
	}
	return b.String(), args, nil
}

// Update implements Store.
func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := encodeData(fields)
	if err != nil {
		return newError(CodeInternal, "update", collection, id, err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND id = $2`,
		collection, id, string(raw))
	if err != nil {
		return fromPg(err, "update", collection, id)
	}
	if tag.RowsAffected() == 0 {
		return newError(CodeNotFound, "update", collection, id, nil)
	}
	return nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id)
	if err != nil {
		return fromPg(err, "delete", collection, id)
	}
	return nil
}

// Collections implements Store.
func (p *Postgres) Collections(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fromPg(err, "collections", "", "")
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fromPg(err, "collections", "", "")
	}
	return names, nil
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// timeLayout is fixed width so that text ordering of stored timestamps
// matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// encodeData marshals a document, writing times in UTC with timeLayout.
func encodeData(data map[string]any) ([]byte, error) {
	return json.Marshal(encodeTimes(data))
}

func encodeTimes(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch tv := v.(type) {
		case time.Time:
			out[k] = tv.UTC().Format(timeLayout)
		case *time.Time:
			if tv == nil {
				out[k] = nil
			} else {
				out[k] = tv.UTC().Format(timeLayout)
			}
		case map[string]any:
			out[k] = encodeTimes(tv)
		default:
			out[k] = v
		}
	}
	return out
}

func decodeData(raw []byte) (map[string]any, error) {
	data := make(map[string]any)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}

// fromPg classifies PostgreSQL and connection errors by SQLSTATE class.
func fromPg(err error, op, collection, id string) error {
	code := CodeOf(err)
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == "42501":
			code = CodePermissionDenied
		case strings.HasPrefix(pgErr.Code, "28"):
			code = CodeUnauthenticated
		case strings.HasPrefix(pgErr.Code, "53"):
			code = CodeQuotaExceeded
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"):
			code = CodeUnavailable
		case pgErr.Code == "23505":
			code = CodeAlreadyExists
		default:
			code = CodeInternal
		}
	case pgconn.Timeout(err):
		code = CodeTimeout
	case pgconn.SafeToRetry(err):
		code = CodeUnavailable
	}
	return newError(code, op, collection, id, err)
}
