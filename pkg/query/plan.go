package query

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/spf13/cast"
)

// Store executes built statements. pkg/pgx provides the pgx implementation.
type Store interface {
	// Query runs a statement returning rows, each row keyed by column name.
	Query(ctx context.Context, stmt sq.Sqlizer) ([]map[string]any, error)
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, stmt sq.Sqlizer) (int64, error)
}

// Pagination is the normalized paging of a Search.
type Pagination struct {
	Paged  bool
	Limit  int
	Offset int
	Page   int
	// RawPage is the page the caller sent, reported as-is when unpaged.
	RawPage *int
}

// Paginate normalizes limit, offset and page. With paging on, a missing (or
// zero) offset is page*limit and a missing (or zero) page is offset/limit,
// truncated. Negative page and offset count as zero.
func Paginate(s Search) Pagination {
	p := Pagination{RawPage: s.Page}
	if s.Unpaged {
		return p
	}

	p.Paged = true
	p.Limit = DefaultLimit
	if s.Limit != nil && *s.Limit > 0 {
		p.Limit = *s.Limit
	}
	page := 0
	if s.Page != nil && *s.Page > 0 {
		page = *s.Page
	}
	if s.Offset != nil && *s.Offset > 0 {
		p.Offset = *s.Offset
	} else {
		p.Offset = page * p.Limit
	}
	p.Page = page
	if p.Page == 0 {
		p.Page = p.Offset / p.Limit
	}
	return p
}

// Plan holds the statements built for one Search.
type Plan struct {
	filtered sq.SelectBuilder
	ordered  sq.SelectBuilder
	Page     Pagination
}

// Select returns the ordered select with the page window applied. The
// window starts at Page*Limit, the same row a page-number based fetch uses.
func (p *Plan) Select() sq.SelectBuilder {
	if !p.Page.Paged {
		return p.ordered
	}
	return p.ordered.
		Limit(uint64(p.Page.Limit)).
		Offset(uint64(p.Page.Page * p.Page.Limit))
}

// Count returns a statement counting every row the select matches.
func (p *Plan) Count() sq.SelectBuilder {
	return psql.Select("COUNT(*) AS total").FromSelect(p.filtered, "matched")
}

// Result is the outcome of a list query. Limit is the page size, or false
// when paging was disabled.
type Result struct {
	Total  int64            `json:"total"`
	Data   []map[string]any `json:"data"`
	Limit  any              `json:"limit"`
	Offset int              `json:"offset"`
	Page   *int             `json:"page,omitempty"`
}

// Run executes the plan. A paged plan issues a count and a page query; an
// unpaged plan issues one query and reports the row count as total.
func (p *Plan) Run(ctx context.Context, store Store) (*Result, error) {
	rows, err := store.Query(ctx, p.Select())
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	if !p.Page.Paged {
		return &Result{
			Total:  int64(len(rows)),
			Data:   rows,
			Limit:  false,
			Offset: 0,
			Page:   p.Page.RawPage,
		}, nil
	}

	counted, err := store.Query(ctx, p.Count())
	if err != nil {
		return nil, err
	}
	var total int64
	if len(counted) > 0 {
		if total, err = cast.ToInt64E(counted[0]["total"]); err != nil {
			return nil, fmt.Errorf("read total: %w", err)
		}
	}

	page := p.Page.Page
	return &Result{
		Total:  total,
		Data:   rows,
		Limit:  p.Page.Limit,
		Offset: p.Page.Offset,
		Page:   &page,
	}, nil
}
