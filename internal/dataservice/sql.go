package dataservice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"entitycache/internal/core"
	"entitycache/pkg/domain"
)

var _ domain.DataService[domain.Record] = (*SQL[domain.Record])(nil)

// Dialect selects placeholder syntax and payload column type.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQL stores entities of one type in the shared entities table, one JSON
// payload per row. position keeps insertion order.
type SQL[T any] struct {
	db      *sql.DB
	def     *core.Definition[T]
	dialect Dialect
	assign  IDAssigner[T]
}

// SQLOption customises a SQL data service.
type SQLOption[T any] func(*SQL[T])

// WithSQLIDs assigns generated integer ids to entities added without one.
func WithSQLIDs[T any](assign IDAssigner[T]) SQLOption[T] {
	return func(s *SQL[T]) { s.assign = assign }
}

// NewSQL returns a data service for def's entity type on db. Call
// EnsureSchema once per database before use.
func NewSQL[T any](db *sql.DB, dialect Dialect, def *core.Definition[T], opts ...SQLOption[T]) *SQL[T] {
	s := &SQL[T]{db: db, def: def, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the entities table.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	payloadType := "TEXT"
	if dialect == DialectPostgres {
		payloadType = "JSONB"
	}
	ddl := `CREATE TABLE IF NOT EXISTS entities (
		entity_name TEXT NOT NULL,
		id TEXT NOT NULL,
		position BIGINT NOT NULL,
		payload ` + payloadType + ` NOT NULL,
		PRIMARY KEY (entity_name, id)
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create entities table: %w", err)
	}
	return nil
}

// Name implements domain.DataService.
func (s *SQL[T]) Name() string { return string(s.dialect) + ":" + s.def.EntityName() }

// bind rewrites ? placeholders as $n for postgres.
func (s *SQL[T]) bind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetAll implements domain.DataService.
func (s *SQL[T]) GetAll(ctx context.Context) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT payload FROM entities WHERE entity_name = ? ORDER BY position`), s.def.EntityName())
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.def.EntityName(), err)
	}
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		e, err := s.decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetByID implements domain.DataService.
func (s *SQL[T]) GetByID(ctx context.Context, id domain.ID) (T, error) {
	var zero T
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT payload FROM entities WHERE entity_name = ? AND id = ?`),
		s.def.EntityName(), id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, s.notFound(id)
	}
	if err != nil {
		return zero, fmt.Errorf("select %s %s: %w", s.def.EntityName(), id, err)
	}
	return s.decode(payload)
}

// GetWithQuery implements domain.DataService. Params are matched in Go
// against each entity's top-level JSON fields.
func (s *SQL[T]) GetWithQuery(ctx context.Context, params domain.QueryParams) ([]T, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, params)
}

// Add implements domain.DataService.
func (s *SQL[T]) Add(ctx context.Context, entity T) (T, error) {
	var out T
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.insert(ctx, tx, entity)
		return err
	})
	return out, err
}

// Update implements domain.DataService.
func (s *SQL[T]) Update(ctx context.Context, entity T) (T, error) {
	var out T
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = s.update(ctx, tx, entity)
		return err
	})
	return out, err
}

// Upsert implements domain.DataService.
func (s *SQL[T]) Upsert(ctx context.Context, entity T) (T, error) {
	var out T
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		id := s.def.ID(entity)
		exists := false
		if !unassigned(id) {
			var err error
			if exists, err = s.exists(ctx, tx, id); err != nil {
				return err
			}
		}
		var err error
		if exists {
			out, err = s.update(ctx, tx, entity)
		} else {
			out, err = s.insert(ctx, tx, entity)
		}
		return err
	})
	return out, err
}

// Delete implements domain.DataService.
func (s *SQL[T]) Delete(ctx context.Context, id domain.ID) error {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM entities WHERE entity_name = ? AND id = ?`), s.def.EntityName(), id.String())
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", s.def.EntityName(), id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.notFound(id)
	}
	return nil
}

func (s *SQL[T]) inTx(ctx context.Context, fn func(*sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQL[T]) exists(ctx context.Context, tx *sql.Tx, id domain.ID) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM entities WHERE entity_name = ? AND id = ?`),
		s.def.EntityName(), id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("select %s %s: %w", s.def.EntityName(), id, err)
	}
	return n > 0, nil
}

func (s *SQL[T]) insert(ctx context.Context, tx *sql.Tx, entity T) (T, error) {
	var zero T
	id := s.def.ID(entity)
	if unassigned(id) {
		if s.assign == nil {
			return zero, fmt.Errorf("%s: entity has no id", s.def.EntityName())
		}
		generated, err := s.nextID(ctx, tx)
		if err != nil {
			return zero, err
		}
		id = generated
		entity = s.assign(entity, id)
	} else {
		exists, err := s.exists(ctx, tx, id)
		if err != nil {
			return zero, err
		}
		if exists {
			return zero, fmt.Errorf("%s %s: %w", s.def.EntityName(), id, ErrDuplicateID)
		}
	}
	payload, err := json.Marshal(entity)
	if err != nil {
		return zero, fmt.Errorf("encode %s %s: %w", s.def.EntityName(), id, err)
	}
	var position int64
	if err := tx.QueryRowContext(ctx, s.bind(`SELECT COALESCE(MAX(position), 0) + 1 FROM entities WHERE entity_name = ?`),
		s.def.EntityName()).Scan(&position); err != nil {
		return zero, fmt.Errorf("next position: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.bind(`INSERT INTO entities(entity_name, id, position, payload) VALUES(?, ?, ?, ?)`),
		s.def.EntityName(), id.String(), position, string(payload)); err != nil {
		return zero, fmt.Errorf("insert %s %s: %w", s.def.EntityName(), id, err)
	}
	return entity, nil
}

func (s *SQL[T]) update(ctx context.Context, tx *sql.Tx, entity T) (T, error) {
	var zero T
	id := s.def.ID(entity)
	var payload []byte
	err := tx.QueryRowContext(ctx, s.bind(`SELECT payload FROM entities WHERE entity_name = ? AND id = ?`),
		s.def.EntityName(), id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, s.notFound(id)
	}
	if err != nil {
		return zero, fmt.Errorf("select %s %s: %w", s.def.EntityName(), id, err)
	}
	prev, err := s.decode(payload)
	if err != nil {
		return zero, err
	}
	merged := s.def.Merge(prev, entity)
	raw, err := json.Marshal(merged)
	if err != nil {
		return zero, fmt.Errorf("encode %s %s: %w", s.def.EntityName(), id, err)
	}
	if _, err := tx.ExecContext(ctx, s.bind(`UPDATE entities SET payload = ? WHERE entity_name = ? AND id = ?`),
		string(raw), s.def.EntityName(), id.String()); err != nil {
		return zero, fmt.Errorf("update %s %s: %w", s.def.EntityName(), id, err)
	}
	return merged, nil
}

// nextID scans the stored ids; integer ids are kept as decimal text.
func (s *SQL[T]) nextID(ctx context.Context, tx *sql.Tx) (domain.ID, error) {
	rows, err := tx.QueryContext(ctx, s.bind(`SELECT id FROM entities WHERE entity_name = ?`), s.def.EntityName())
	if err != nil {
		return domain.ID{}, fmt.Errorf("select ids: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []domain.ID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return domain.ID{}, err
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ids = append(ids, domain.IntID(n))
		}
	}
	if err := rows.Err(); err != nil {
		return domain.ID{}, err
	}
	return nextID(ids), nil
}

func (s *SQL[T]) decode(payload []byte) (T, error) {
	var e T
	if err := json.Unmarshal(payload, &e); err != nil {
		return e, fmt.Errorf("decode %s: %w", s.def.EntityName(), err)
	}
	return e, nil
}

func (s *SQL[T]) notFound(id domain.ID) error {
	return domain.NotFoundError{EntityName: s.def.EntityName(), ID: id}
}
