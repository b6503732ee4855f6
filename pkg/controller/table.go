package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/joneldiablo/adba/pkg/format"
	"github.com/joneldiablo/adba/pkg/model"
	"github.com/joneldiablo/adba/pkg/query"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	errNoStore   = errors.New("no store configured")
	errNoColumns = errors.New("no known columns in input")
	errNoWhere   = errors.New("refusing to delete without criteria")
)

// Table is the generic controller serving every Action against one table.
// Custom controllers embed it and override Handler to add their own actions.
type Table struct {
	model      *model.Model
	env        Env
	translator *query.Translator
	rules      format.Rules
	log        *zap.Logger
	handlers   map[Action]Handler
}

// NewTable returns a Table controller for m.
func NewTable(m *model.Model, env Env) *Table {
	t := &Table{
		model: m,
		env:   env,
		rules: env.Format[m.Table],
		log:   env.logger().With(zap.String("table", m.Table)),
	}

	opts := []query.Option{query.WithLogger(t.log)}
	if cols, ok := env.SearchIn[m.Table]; ok {
		opts = append(opts, query.WithSearchIn(cols...))
	}
	t.translator = query.NewTranslator(m, opts...)

	t.handlers = map[Action]Handler{
		List:            t.List,
		SelectByID:      t.SelectByID,
		SelectByName:    t.SelectByName,
		SelectOne:       t.SelectOne,
		SelectOneActive: t.SelectOneActive,
		Insert:          t.Insert,
		Update:          t.Update,
		Delete:          t.Delete,
		DeleteWhere:     t.DeleteWhere,
		Meta:            t.Meta,
	}
	return t
}

func (t *Table) Model() *model.Model { return t.model }

// Env returns the environment the controller was built with.
func (t *Table) Env() Env { return t.env }

// Handler resolves a table action. Models without a table only serve meta.
func (t *Table) Handler(action string) (Handler, bool) {
	a, err := ParseAction(action)
	if err != nil {
		return nil, false
	}
	if t.model.Table == "" && a != Meta {
		return nil, false
	}
	h := t.handlers[a]
	if a == Meta {
		return h, true
	}
	return func(ctx context.Context, in map[string]any) Response {
		if t.env.Store == nil {
			return t.fail(a, errNoStore)
		}
		return h(ctx, in)
	}, true
}

// List runs the query translator over the input and returns the page.
func (t *Table) List(ctx context.Context, in map[string]any) Response {
	s, err := query.ParseSearch(in)
	if err != nil {
		return BadRequest(err)
	}
	plan, err := t.translator.Build(s, nil)
	if err != nil {
		return FromError(err)
	}
	res, err := plan.Run(ctx, t.env.Store)
	if err != nil {
		return t.fail(List, err)
	}
	if res.Data, err = t.formatRows(res.Data); err != nil {
		return t.fail(List, err)
	}
	return SuccessMerge(res)
}

func (t *Table) SelectByID(ctx context.Context, in map[string]any) Response {
	id := in["id"]
	key, err := t.coerce(t.model.PK(), id)
	if err != nil {
		return NotFound(id)
	}
	return t.first(ctx, SelectByID, sq.Eq{t.model.Qualify(t.model.PK()): key}, id)
}

func (t *Table) SelectByName(ctx context.Context, in map[string]any) Response {
	name := in["name"]
	return t.first(ctx, SelectByName, sq.Eq{t.model.Qualify("name"): name}, name)
}

// SelectOne returns the first row equal on every known column of the input.
func (t *Table) SelectOne(ctx context.Context, in map[string]any) Response {
	where, err := t.criteria(in)
	if err != nil {
		return BadRequest(err)
	}
	return t.first(ctx, SelectOne, where, in)
}

// SelectOneActive is SelectOne restricted to active rows.
func (t *Table) SelectOneActive(ctx context.Context, in map[string]any) Response {
	where, err := t.criteria(in)
	if err != nil {
		return BadRequest(err)
	}
	where[t.model.Qualify("active")] = true
	return t.first(ctx, SelectOneActive, where, in)
}

func (t *Table) first(ctx context.Context, action Action, where sq.Eq, criteria any) Response {
	rows, err := t.env.Store.Query(ctx, t.translator.Select().Where(where).Limit(1))
	if err != nil {
		return t.fail(action, err)
	}
	if len(rows) == 0 {
		return NotFound(criteria)
	}
	row, err := t.formatRow(rows[0])
	if err != nil {
		return t.fail(action, err)
	}
	return Success(row)
}

// Insert inserts the rows in data (an object or an array of objects), or the
// input itself when there is no data key. Unknown columns are dropped.
func (t *Table) Insert(ctx context.Context, in map[string]any) Response {
	rows, many, err := t.rows(in)
	if err != nil {
		return BadRequest(err)
	}
	out, err := t.insert(ctx, rows)
	if err != nil {
		if errors.Is(err, errNoColumns) {
			return BadRequest(err)
		}
		return t.fail(Insert, err)
	}
	return t.written(Insert, out, many)
}

func (t *Table) insert(ctx context.Context, rows []map[string]any) ([]map[string]any, error) {
	if len(rows) == 0 {
		return []map[string]any{}, nil
	}

	var cols []string
	seen := map[string]bool{}
	values := make([]map[string]any, len(rows))
	for i, row := range rows {
		values[i] = t.values(row, true)
		for col := range values[i] {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	if len(cols) == 0 {
		return nil, errNoColumns
	}
	sort.Strings(cols)

	stmt := psql.Insert(t.model.Table).Columns(cols...).Suffix("RETURNING *")
	for _, v := range values {
		row := make([]any, len(cols))
		for i, col := range cols {
			if val, ok := v[col]; ok {
				row[i] = val
			} else {
				row[i] = sq.Expr("DEFAULT")
			}
		}
		stmt = stmt.Values(row...)
	}
	return t.env.Store.Query(ctx, stmt)
}

// Update upserts: rows carrying the primary key are updated, the others are
// inserted. A keyed row that matches nothing is a 404.
func (t *Table) Update(ctx context.Context, in map[string]any) Response {
	rows, many, err := t.rows(in)
	if err != nil {
		return BadRequest(err)
	}

	pk := t.model.PK()
	out := make([]map[string]any, 0, len(rows))
	var inserts []map[string]any
	for _, row := range rows {
		id, keyed := row[pk]
		if !keyed || id == nil || id == "" {
			inserts = append(inserts, row)
			continue
		}
		key, err := t.coerce(pk, id)
		if err != nil {
			return NotFound(id)
		}
		set := t.values(row, false)
		if len(set) == 0 {
			return BadRequest(errNoColumns)
		}
		updated, err := t.env.Store.Query(ctx, psql.Update(t.model.Table).
			SetMap(set).
			Where(sq.Eq{pk: key}).
			Suffix("RETURNING *"))
		if err != nil {
			return t.fail(Update, err)
		}
		if len(updated) == 0 {
			return NotFound(id)
		}
		out = append(out, updated...)
	}

	if len(inserts) > 0 {
		created, err := t.insert(ctx, inserts)
		if err != nil {
			if errors.Is(err, errNoColumns) {
				return BadRequest(err)
			}
			return t.fail(Update, err)
		}
		out = append(out, created...)
	}
	return t.written(Update, out, many)
}

func (t *Table) written(action Action, rows []map[string]any, many bool) Response {
	rows, err := t.formatRows(rows)
	if err != nil {
		return t.fail(action, err)
	}
	if many {
		return Success(rows)
	}
	if len(rows) == 0 {
		return Success(nil)
	}
	return Success(rows[0])
}

type ids struct {
	ID  any `mapstructure:"id"`
	IDs any `mapstructure:"ids"`
}

// Delete removes rows by id and ids, each a scalar or an array. Empty values
// are discarded. The affected row count is returned.
func (t *Table) Delete(ctx context.Context, in map[string]any) Response {
	var req ids
	if err := mapstructure.Decode(in, &req); err != nil {
		return BadRequest(err)
	}

	pk := t.model.PK()
	var keys []any
	for _, v := range flatten(req.ID, req.IDs) {
		key, err := t.coerce(pk, v)
		if err != nil {
			return BadRequest(fmt.Errorf("id %v: %w", v, err))
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return Success(int64(0))
	}

	n, err := t.env.Store.Exec(ctx, psql.Delete(t.model.Table).Where(sq.Eq{pk: keys}))
	if err != nil {
		return t.fail(Delete, err)
	}
	return Success(n)
}

// DeleteWhere removes the rows equal on every known column of the input.
func (t *Table) DeleteWhere(ctx context.Context, in map[string]any) Response {
	where, err := t.criteria(in)
	if err != nil {
		return BadRequest(err)
	}
	if len(where) == 0 {
		return BadRequest(errNoWhere)
	}
	n, err := t.env.Store.Exec(ctx, psql.Delete(t.model.Table).Where(where))
	if err != nil {
		return t.fail(DeleteWhere, err)
	}
	return Success(n)
}

// Meta describes the table.
func (t *Table) Meta(context.Context, map[string]any) Response {
	return Success(map[string]any{
		"tableName":  t.model.Table,
		"jsonSchema": t.model.JSONSchema(),
		"columns":    t.model.Columns(),
	})
}

func (t *Table) fail(action Action, err error) Response {
	t.log.Error("action failed", zap.String("action", string(action)), zap.Error(err))
	return Fail(err)
}

func (t *Table) formatRow(row map[string]any) (map[string]any, error) {
	if t.rules == nil {
		return row, nil
	}
	return t.env.formatter().Format(row, t.rules)
}

func (t *Table) formatRows(rows []map[string]any) ([]map[string]any, error) {
	if t.rules == nil {
		return rows, nil
	}
	return t.env.formatter().FormatRows(rows, t.rules)
}
