package query

import (
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/joneldiablo/adba/pkg/model"
	"go.uber.org/zap"
)

// psql is the statement builder every plan is built with.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Option configures a Translator.
type Option func(*Translator)

// WithSearchIn sets the columns searched by q, replacing the model's string
// columns.
func WithSearchIn(columns ...string) Option {
	return func(t *Translator) {
		t.searchIn = slices.Clone(columns)
	}
}

// WithLogger sets the logger used for skipped steps.
func WithLogger(l *zap.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.logger = l
		}
	}
}

// Translator builds plans for one model. It holds no per-request state and
// is safe for concurrent use.
type Translator struct {
	model    *model.Model
	searchIn []string
	logger   *zap.Logger
}

// NewTranslator returns a Translator bound to m.
func NewTranslator(m *model.Model, opts ...Option) *Translator {
	t := &Translator{model: m, logger: zap.L()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Model returns the model the translator is bound to.
func (t *Translator) Model() *model.Model {
	return t.model
}

// Select returns the default builder for the model: every column of its table.
func (t *Translator) Select() sq.SelectBuilder {
	return psql.Select(t.model.Table + ".*").From(t.model.Table)
}

// Build translates s. When base is non-nil the plan starts from it instead of
// the model's default select; squirrel builders are values, so base itself is
// never modified and repeated calls with the same base give the same plan.
func (t *Translator) Build(s Search, base *sq.SelectBuilder) (*Plan, error) {
	sel := t.Select()
	if base != nil {
		sel = base.PlaceholderFormat(sq.Dollar)
	}

	// projection
	if len(s.Fields) > 0 {
		cols, err := t.projection(s.Fields)
		if err != nil {
			return nil, err
		}
		sel = sel.RemoveColumns().Columns(cols...)
	}

	var where []sq.Sqlizer
	var order []sq.Sqlizer

	// omni-search
	if s.Q != nil {
		pred, relevance := t.omniSearch(*s.Q)
		if pred != nil {
			where = append(where, pred)
		}
		if relevance != nil && len(s.OrderBy) == 0 {
			order = append(order, relevance)
		}
	}

	// explicit ordering, every pair in the order given
	for _, term := range s.OrderBy {
		clause, err := t.orderClause(term)
		if err != nil {
			t.logger.Warn("order term ignored",
				zap.String("table", t.model.Table),
				zap.String("column", term.Column),
				zap.Error(err),
				zap.Bool("skipped", true),
			)
			continue
		}
		order = append(order, sq.Expr(clause))
	}

	// filters
	if len(s.Filters) > 0 {
		pred, err := t.filters(s.Filters)
		if err != nil {
			return nil, err
		}
		if pred != nil {
			where = append(where, pred)
		}
	}

	for _, w := range where {
		sel = sel.Where(w)
	}
	filtered := sel
	for _, o := range order {
		sel = sel.OrderByClause(o)
	}

	return &Plan{
		filtered: filtered,
		ordered:  sel,
		Page:     Paginate(s),
	}, nil
}

func (t *Translator) projection(fields []string) ([]string, error) {
	pk := t.model.PK()
	qualifiedPK := t.model.Qualify(pk)

	cols := make([]string, 0, len(fields)+1)
	hasPK := false
	for _, f := range fields {
		if !projectionRe.MatchString(f) {
			return nil, fmt.Errorf("%w: field %q", ErrInvalidIdentifier, f)
		}
		if slices.Contains(cols, f) {
			continue
		}
		if f == pk || f == qualifiedPK {
			hasPK = true
		}
		cols = append(cols, f)
	}
	if !hasPK {
		cols = append(cols, qualifiedPK)
	}
	return cols, nil
}

func (t *Translator) orderClause(term OrderTerm) (string, error) {
	col := strings.TrimSpace(term.Column)
	if err := checkIdentifier("order column", col); err != nil {
		return "", err
	}
	dir := "asc"
	if term.Desc() {
		dir = "desc"
	}
	return t.model.Qualify(col) + " " + dir, nil
}

// EscapeSearch prepends a backslash to single quotes and backslashes. The
// result is safe inside a LIKE pattern, where backslash is the escape
// character.
func EscapeSearch(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 4)
	for _, r := range q {
		if r == '\'' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// searchColumns returns the qualified columns q is matched against.
func (t *Translator) searchColumns() []string {
	cols := t.searchIn
	if cols == nil {
		cols = t.model.StringColumns()
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !ValidIdentifier(c) {
			t.logger.Warn("search column ignored", zap.String("table", t.model.Table), zap.String("column", c), zap.Bool("skipped", true))
			continue
		}
		out = append(out, t.model.Qualify(c))
	}
	return out
}

// omniSearch returns the OR'ed LIKE predicate and the relevance ordering for
// q. Relevance ranks exact matches 0, prefix matches 1, suffix matches 4 and
// everything else 3, so rows with no positional match sort ahead of suffix
// matches. Both are nil when there is nothing to search.
func (t *Translator) omniSearch(q string) (sq.Sqlizer, sq.Sqlizer) {
	cols := t.searchColumns()
	if len(cols) == 0 {
		return nil, nil
	}

	escaped := EscapeSearch(q)
	or := make(sq.Or, 0, len(cols))
	var rank strings.Builder
	var args []any

	rank.WriteString("CASE")
	for _, col := range cols {
		or = append(or, sq.Like{col: "%" + escaped + "%"})
		fmt.Fprintf(&rank, " WHEN %[1]s = ? THEN 0 WHEN %[1]s LIKE ? THEN 1 WHEN %[1]s LIKE ? THEN 4", col)
		args = append(args, q, escaped+"%", "%"+escaped)
	}
	rank.WriteString(" ELSE 3 END")

	return or, sq.Expr(rank.String(), args...)
}
