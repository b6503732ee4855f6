package pgx

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joneldiablo/adba/pkg/query"
	"go.uber.org/zap"
)

// Store runs squirrel statements on a Conn. It implements query.Store.
type Store struct {
	conn   Conn
	logger *zap.Logger
}

var _ query.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewStore(conn Conn, opts ...StoreOption) *Store {
	s := &Store{conn: conn, logger: zap.L()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query runs stmt and collects every row into a map keyed by column name.
func (s *Store) Query(ctx context.Context, stmt sq.Sqlizer) ([]map[string]any, error) {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	s.logger.Debug("query", zap.String("sql", sql), zap.Int("args", len(args)))

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	for _, row := range out {
		normalize(row)
	}
	return out, nil
}

// Exec runs stmt and returns the number of rows it affected.
func (s *Store) Exec(ctx context.Context, stmt sq.Sqlizer) (int64, error) {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	s.logger.Debug("exec", zap.String("sql", sql), zap.Int("args", len(args)))

	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// normalize rewrites values pgx decodes into shapes that do not serialize
// well: uuid columns arrive as [16]byte.
func normalize(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([16]byte); ok {
			row[k] = uuid.UUID(b).String()
		}
	}
}
