// Package query translates a search request into SQL built with squirrel.
//
// A Search carries the caller's filters, free-text query (q), ordering,
// projection and pagination. A Translator bound to a model.Model turns it
// into a Plan whose statements are executed against a Store:
//
//	Key        | Example                        | Effect
//	-----------|--------------------------------|-----------------------------------------------
//	fields     | fields=id,name                 | SELECT restricted to the list (+ primary key)
//	q          | q=ann                          | OR'ed LIKE over string columns, relevance order
//	orderBy    | orderBy[name]=desc             | ORDER BY, every pair applied in order
//	filters    | filters[age][$gte]=18          | WHERE, all filters ANDed in one group
//	limit      | limit=10, limit=false          | page size (default 20), false disables paging
//	offset     | offset=20                      | derived from page*limit when absent
//	page       | page=2                         | derived from offset/limit when absent
//
// Filter values branch on shape and declared column type:
//
//	Shape             | Column type      | Predicate
//	------------------|------------------|----------------------------------
//	scalar            | string / unknown | col LIKE '%v%'
//	scalar            | numeric          | col = number(v)
//	scalar            | other            | col = v
//	array             | string, or len>2 | col IN (...)
//	array of 2        | non-string       | col BETWEEN a AND b
//	{"$op": v}        | any              | $gte $gt $lte $lt $ne $in $nin $between $nbetween $like $ilike
//
// Column names are validated as (optionally dotted) SQL identifiers and all
// values are bound as parameters.
package query
