package pgx

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/joneldiablo/adba/internal/testutil/pgtest"
	"github.com/joneldiablo/adba/pkg/model"
	"github.com/joneldiablo/adba/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	id := uuid.New()
	row := map[string]any{"id": [16]byte(id), "n": 1}
	normalize(row)
	assert.Equal(t, map[string]any{"id": id.String(), "n": 1}, row)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)
	pgtest.Table(ctx, t, pool, "adba_store_test", `
		CREATE TABLE adba_store_test (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			age INT
		)`)

	store := NewStore(pool)
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	rows, err := store.Query(ctx, psql.Insert("adba_store_test").
		Columns("name", "age").
		Values("ann", 30).
		Values("bob", 41).
		Values("anna", 25).
		Suffix("RETURNING *"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ann", rows[0]["name"])

	m := model.New("adba_store_test",
		model.Field{Name: "id", Property: model.Property{Type: model.TypeInteger}},
		model.Field{Name: "name", Property: model.Property{Type: model.TypeString}},
		model.Field{Name: "age", Property: model.Property{Type: model.TypeInteger}},
	)
	q := "ann"
	limit := 1
	plan, err := query.NewTranslator(m).Build(query.Search{Q: &q, Limit: &limit}, nil)
	require.NoError(t, err)

	res, err := plan.Run(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "ann", res.Data[0]["name"], "exact match ranks first")

	n, err := store.Exec(ctx, psql.Delete("adba_store_test").Where(sq.Gt{"age": 26}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
