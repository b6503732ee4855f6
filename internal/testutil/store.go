package testutil

import (
	"context"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
)

// Statement is one SQL statement seen by a Store.
type Statement struct {
	SQL  string
	Args []any
}

// Store is an in-memory query.Store recording every statement. Handlers pick
// the canned response; without a handler queries return no rows and execs
// affect none.
type Store struct {
	mu         sync.Mutex
	Statements []Statement

	OnQuery func(sql string, args []any) ([]map[string]any, error)
	OnExec  func(sql string, args []any) (int64, error)
}

func (s *Store) record(stmt sq.Sqlizer) (string, []any, error) {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	s.Statements = append(s.Statements, Statement{SQL: sql, Args: args})
	s.mu.Unlock()
	return sql, args, nil
}

func (s *Store) Query(_ context.Context, stmt sq.Sqlizer) ([]map[string]any, error) {
	sql, args, err := s.record(stmt)
	if err != nil {
		return nil, err
	}
	if s.OnQuery == nil {
		return nil, nil
	}
	return s.OnQuery(sql, args)
}

func (s *Store) Exec(_ context.Context, stmt sq.Sqlizer) (int64, error) {
	sql, args, err := s.record(stmt)
	if err != nil {
		return 0, err
	}
	if s.OnExec == nil {
		return 0, nil
	}
	return s.OnExec(sql, args)
}

// Last returns the most recent statement.
func (s *Store) Last() Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Statements) == 0 {
		return Statement{}
	}
	return s.Statements[len(s.Statements)-1]
}

// Find returns the first statement whose SQL starts with prefix.
func (s *Store) Find(prefix string) (Statement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.Statements {
		if strings.HasPrefix(st.SQL, prefix) {
			return st, true
		}
	}
	return Statement{}, false
}

// Rows answers COUNT queries with total and everything else with rows.
func Rows(total int64, rows ...map[string]any) func(string, []any) ([]map[string]any, error) {
	return func(sql string, _ []any) ([]map[string]any, error) {
		if strings.HasPrefix(sql, "SELECT COUNT(*)") {
			return []map[string]any{{"total": total}}, nil
		}
		return rows, nil
	}
}
