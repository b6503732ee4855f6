// Package schema caches PostgreSQL table and view metadata and turns it into
// models. The cache reloads when it receives NOTIFY adba, 'reload schema'.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pg "github.com/joneldiablo/adba/pkg/pgx"
	"go.uber.org/zap"
)

const (
	// Following PostgREST's notification convention
	// https://docs.postgrest.org/en/stable/references/schema_cache.html
	ReloadChannel = "adba"
	ReloadPayload = "reload schema"
)

type TableType string

const (
	TypeTable            TableType = "TABLE"
	TypeView             TableType = "VIEW"
	TypeMaterializedView TableType = "MATERIALIZED VIEW"
)

type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Type        TableType    `json:"type"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	ViewQuery   string       `json:"view_query,omitempty"`
}

type Column struct {
	Name         string  `json:"name"`
	DataType     string  `json:"data_type"`
	IsNullable   bool    `json:"is_nullable"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	Default      *string `json:"default,omitempty"`
	MaxLength    *int32  `json:"max_length,omitempty"`
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

func (t *Table) fullName() string {
	return fmt.Sprintf("%s.%s", t.Schema, t.Name)
}

// Option configures a Cache.
type Option func(*Cache)

// WithSchemas limits the cache to the given schemas. By default every
// non-system schema is loaded.
func WithSchemas(schemas ...string) Option {
	return func(c *Cache) { c.schemas = slices.Clone(schemas) }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache holds the last loaded tables keyed by schema.name.
type Cache struct {
	pool    *pgxpool.Pool
	conn    *pgx.Conn
	schemas []string
	logger  *zap.Logger
	tables  map[string]Table
	watch   chan map[string]Table
	cancel  context.CancelFunc
	mu      sync.RWMutex
}

// NewCache takes a dedicated connection from pool for LISTEN. The pool stays
// owned by the caller.
func NewCache(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*Cache, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool.Acquire: %w", err)
	}

	c := &Cache{
		pool:   pool,
		conn:   conn.Hijack(),
		logger: zap.L(),
		tables: make(map[string]Table),
		watch:  make(chan map[string]Table, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Init loads the tables and starts listening for reload notifications.
func (c *Cache) Init(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.reload(ctx); err != nil {
		cancel()
		return fmt.Errorf("initial load: %w", err)
	}

	if _, err := c.conn.Exec(ctx, "LISTEN "+ReloadChannel); err != nil {
		cancel()
		return fmt.Errorf("listen: %w", err)
	}

	go c.handleUpdates(ctx)
	return nil
}

func (c *Cache) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close(context.Background())
	}
}

// Watch delivers a snapshot after every reload. Only the latest snapshot is
// kept when the receiver falls behind.
func (c *Cache) Watch() <-chan map[string]Table {
	return c.watch
}

func (c *Cache) handleUpdates(ctx context.Context) {
	for {
		notification, err := c.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("schema notification", zap.Error(err))
			continue
		}

		if notification.Payload == ReloadPayload {
			if err := c.reload(ctx); err != nil {
				c.logger.Error("schema reload", zap.Error(err))
			}
		}
	}
}

func (c *Cache) reload(ctx context.Context) error {
	tables, err := Load(ctx, c.pool, c.schemas...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()

	c.logger.Info("schema loaded", zap.Int("tables", len(tables)))
	c.publish(c.Snapshot())
	return nil
}

func (c *Cache) publish(snap map[string]Table) {
	for {
		select {
		case c.watch <- snap:
			return
		default:
		}
		select {
		case <-c.watch:
		default:
		}
	}
}

func (c *Cache) Snapshot() map[string]Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := make(map[string]Table, len(c.tables))
	maps.Copy(snap, c.tables)
	return snap
}

// Load reads the tables of schemas, or of every non-system schema when none
// are given.
func Load(ctx context.Context, conn pg.Conn, schemas ...string) (map[string]Table, error) {
	if len(schemas) == 0 {
		all, err := querySchemas(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("query schemas: %w", err)
		}
		for _, s := range all {
			if !isSystem(s) {
				schemas = append(schemas, s)
			}
		}
	}

	tables := make(map[string]Table)
	for _, schema := range schemas {
		schemaTables, err := loadSchema(ctx, conn, schema)
		if err != nil {
			return nil, fmt.Errorf("load schema %s: %w", schema, err)
		}

		maps.Copy(tables, schemaTables)
	}
	return tables, nil
}

func loadSchema(ctx context.Context, conn pg.Conn, schema string) (map[string]Table, error) {
	tableRows, err := conn.Query(ctx, `
    SELECT table_schema, table_name, 'TABLE'::text as table_type
        FROM information_schema.tables
        WHERE table_schema = $1 AND table_type = 'BASE TABLE'
        UNION ALL
        SELECT table_schema, table_name, 'VIEW'::text as table_type
        FROM information_schema.views
        WHERE table_schema = $1
        UNION ALL
        SELECT schemaname, matviewname, 'MATERIALIZED VIEW'::text as table_type
        FROM pg_matviews
        WHERE schemaname = $1
        ORDER BY table_schema, table_name`, schema)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(tableRows, func(row pgx.CollectableRow) (Table, error) {
		var t Table
		var tableType string
		err := row.Scan(&t.Schema, &t.Name, &tableType)
		t.Type = TableType(tableType)
		return t, err
	})
	if err != nil {
		return nil, err
	}

	tables := make(map[string]Table, len(found))
	for _, t := range found {
		if t.Type == TypeView || t.Type == TypeMaterializedView {
			def := `SELECT view_definition FROM information_schema.views WHERE table_schema = $1 AND table_name = $2`
			if t.Type == TypeMaterializedView {
				def = `SELECT definition FROM pg_matviews WHERE schemaname = $1 AND matviewname = $2`
			}
			var viewDef *string
			if err := conn.QueryRow(ctx, def, t.Schema, t.Name).Scan(&viewDef); err != nil {
				return nil, fmt.Errorf("get view definition %s: %w", t.fullName(), err)
			}
			if viewDef != nil {
				t.ViewQuery = *viewDef
			}
		}

		// Get columns (works for both tables and views)
		cols, pkeys, err := queryColumns(ctx, conn, t.Schema, t.Name)
		if err != nil {
			return nil, fmt.Errorf("query columns %s: %w", t.fullName(), err)
		}
		t.Columns = cols
		t.PrimaryKeys = pkeys

		// For tables, get foreign keys (views don't have foreign keys directly)
		if t.Type == TypeTable {
			fkeys, err := queryForeignKeys(ctx, conn, t.Schema, t.Name)
			if err != nil {
				return nil, fmt.Errorf("query foreign keys %s: %w", t.fullName(), err)
			}
			t.ForeignKeys = fkeys
		}

		tables[t.fullName()] = t
	}
	return tables, nil
}

func queryColumns(ctx context.Context, conn pg.Conn, schema, table string) ([]Column, []string, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = $1
					AND tc.table_name = $2
					AND kcu.column_name = c.column_name
			) AS is_primary_key,
			c.column_default,
			c.character_maximum_length
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []Column
	var pkeys []string
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.IsPrimaryKey, &col.Default, &col.MaxLength); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		if col.IsPrimaryKey {
			pkeys = append(pkeys, col.Name)
		}
	}
	return cols, pkeys, rows.Err()
}

func queryForeignKeys(ctx context.Context, conn pg.Conn, schema, table string) ([]ForeignKey, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			kcu.column_name,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2`, schema, table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ForeignKey, error) {
		var fk ForeignKey
		err := row.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn)
		return fk, err
	})
}

func querySchemas(ctx context.Context, conn pg.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func isSystem(schema string) bool {
	switch schema {
	case "information_schema", "pg_catalog", "pg_toast", "pg_temp_1", "pg_toast_temp_1":
		return true
	default:
		return false
	}
}

// ServeHTTP serves the cached tables as JSON.
func (c *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Snapshot()); err != nil {
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
	}
}
