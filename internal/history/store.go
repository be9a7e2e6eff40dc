package history

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/hashicorp/go-hclog"
)

// Store is the interface for reading and writing history entries.
type Store interface {
	// Write stores entries. Entries whose EventID is already stored are ignored.
	Write(ctx context.Context, entries ...Entry) error

	// Query returns entries matching opts, newest first.
	Query(ctx context.Context, opts QueryOptions) (entries []Entry, nextCursor string, totalCount int, err error)
}

const table = "compile_history"

var columns = []string{
	"event_id", "event_type", "occurred_at", "summary", "category", "weight",
	"primary_entity", "dialect", "source", "filter_text", "statements",
	"stage", "error", "payload",
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS compile_history (
		event_id       TEXT PRIMARY KEY,
		event_type     TEXT NOT NULL,
		occurred_at    INTEGER NOT NULL,
		summary        TEXT NOT NULL,
		category       TEXT NOT NULL,
		weight         TEXT NOT NULL,
		primary_entity TEXT NOT NULL,
		dialect        TEXT NOT NULL DEFAULT '',
		source         TEXT NOT NULL DEFAULT '',
		filter_text    TEXT NOT NULL DEFAULT '',
		statements     INTEGER NOT NULL DEFAULT 0,
		stage          TEXT NOT NULL DEFAULT '',
		error          TEXT NOT NULL DEFAULT '',
		payload        BLOB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_compile_history_time
		ON compile_history (occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_compile_history_primary_time
		ON compile_history (primary_entity, occurred_at DESC)`,
}

// SQLStore implements Store over an ent SQL driver. Timestamps are stored
// as Unix nanoseconds so ordering does not depend on driver time formats.
type SQLStore struct {
	drv    *sql.Driver
	logger hclog.Logger
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store on an open driver. Call CreateTable before use.
func NewSQLStore(drv *sql.Driver, logger hclog.Logger) *SQLStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SQLStore{drv: drv, logger: logger.Named("history")}
}

// OpenSQLite opens a SQLite database at dsn and creates the history table.
// The caller must register the "sqlite" database/sql driver.
func OpenSQLite(ctx context.Context, dsn string, logger hclog.Logger) (*SQLStore, error) {
	db, err := stdsql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := NewSQLStore(sql.OpenDB(dialect.SQLite, db), logger)
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug("history store ready", "dsn", dsn)
	return s, nil
}

// CreateTable creates the history table and its indexes if missing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	for _, stmt := range ddl {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("creating history table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.drv.Close()
}

// Write inserts entries in one statement.
func (s *SQLStore) Write(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := sql.Dialect(s.drv.Dialect()).Insert(table).Columns(columns...)
	for _, e := range entries {
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UnixNano(), e.Summary, e.Category, e.Weight,
			e.Primary, e.Dialect, e.Source, e.Filter, e.Statements,
			e.Stage, e.Error, []byte(e.Payload),
		)
	}
	ins.OnConflict(sql.ConflictColumns("event_id"), sql.DoNothing())

	query, args, err := ins.QueryErr()
	if err != nil {
		return err
	}
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}

// Query returns entries matching opts with cursor pagination.
func (s *SQLStore) Query(ctx context.Context, opts QueryOptions) ([]Entry, string, int, error) {
	limit := opts.limit()
	cursor, err := opts.cursor()
	if err != nil {
		return nil, "", 0, err
	}

	total, err := s.count(ctx, opts)
	if err != nil {
		return nil, "", 0, err
	}

	sel := sql.Dialect(s.drv.Dialect()).Select(columns...).From(sql.Table(table))
	if p := where(opts, cursor); p != nil {
		sel.Where(p)
	}
	sel.OrderBy(sql.Desc("occurred_at"), sql.Desc("event_id")).Limit(limit + 1)

	query, args := sel.Query()
	if err := sel.Err(); err != nil {
		return nil, "", 0, err
	}
	rows := &sql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, "", 0, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			nanos   int64
			payload []byte
		)
		if err := rows.Scan(
			&e.EventID, &e.EventType, &nanos, &e.Summary, &e.Category, &e.Weight,
			&e.Primary, &e.Dialect, &e.Source, &e.Filter, &e.Statements,
			&e.Stage, &e.Error, &payload,
		); err != nil {
			return nil, "", 0, fmt.Errorf("scanning history: %w", err)
		}
		e.OccurredAt = time.Unix(0, nanos).UTC()
		if len(payload) > 0 {
			e.Payload = payload
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", 0, err
	}

	var next string
	if len(entries) > limit {
		entries = entries[:limit]
		next = cursorOf(entries[len(entries)-1])
	}
	return entries, next, total, nil
}

// count ignores the cursor so totals stay stable across pages.
func (s *SQLStore) count(ctx context.Context, opts QueryOptions) (int, error) {
	sel := sql.Dialect(s.drv.Dialect()).Select().From(sql.Table(table)).Count()
	if p := where(opts, nil); p != nil {
		sel.Where(p)
	}
	query, args := sel.Query()
	rows := &sql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return 0, fmt.Errorf("counting history: %w", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func where(opts QueryOptions, cursor *pageCursor) *sql.Predicate {
	var ps []*sql.Predicate
	if opts.Since != nil {
		ps = append(ps, sql.GTE("occurred_at", opts.Since.UnixNano()))
	}
	if opts.Until != nil {
		ps = append(ps, sql.LTE("occurred_at", opts.Until.UnixNano()))
	}
	if len(opts.EventTypes) > 0 {
		types := make([]any, len(opts.EventTypes))
		for i, t := range opts.EventTypes {
			types[i] = t
		}
		ps = append(ps, sql.In("event_type", types...))
	}
	if opts.Primary != "" {
		ps = append(ps, sql.EQ("primary_entity", opts.Primary))
	}
	if cursor != nil {
		at := cursor.at.UnixNano()
		ps = append(ps, sql.Or(
			sql.LT("occurred_at", at),
			sql.And(sql.EQ("occurred_at", at), sql.LT("event_id", cursor.eventID)),
		))
	}
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	default:
		return sql.And(ps...)
	}
}
