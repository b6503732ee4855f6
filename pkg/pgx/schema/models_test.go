package schema

import (
	"testing"

	"github.com/joneldiablo/adba/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestTableModel(t *testing.T) {
	tbl := Table{
		Schema: "public",
		Name:   "order_items",
		Type:   TypeTable,
		Columns: []Column{
			{Name: "item_id", DataType: "integer", IsPrimaryKey: true, Default: ptr("nextval('order_items_item_id_seq'::regclass)")},
			{Name: "label", DataType: "character varying", MaxLength: ptr(int32(80))},
			{Name: "price", DataType: "numeric", IsNullable: true},
			{Name: "shipped_at", DataType: "timestamp with time zone", IsNullable: true},
			{Name: "paid", DataType: "boolean", Default: ptr("false")},
		},
		PrimaryKeys: []string{"item_id"},
	}

	m := tbl.Model()
	assert.Equal(t, "OrderItemsTableModel", m.Name)
	assert.Equal(t, "order_items", m.Table)
	assert.Equal(t, "public", m.Schema)
	assert.False(t, m.View)
	assert.Equal(t, "item_id", m.PK())
	assert.Equal(t, []string{"item_id", "label", "price", "shipped_at", "paid"}, m.ColumnNames())
	assert.Equal(t, []string{"label"}, m.Required)

	assert.Equal(t, model.Property{Type: model.TypeString, MaxLength: 80}, m.Properties["label"])
	assert.Equal(t, model.TypeNumber, m.Properties["price"].Type)
	assert.Equal(t, model.FormatDateTime, m.Properties["shipped_at"].Format)
	assert.Equal(t, model.TypeBoolean, m.Properties["paid"].Type)
}

func TestViewModel(t *testing.T) {
	m := Table{
		Schema:  "public",
		Name:    "active_users",
		Type:    TypeView,
		Columns: []Column{{Name: "id", DataType: "bigint", IsNullable: true}},
	}.Model()

	assert.Equal(t, "ActiveUsersViewModel", m.Name)
	assert.True(t, m.View)
	assert.Equal(t, "id", m.PK())
	assert.Empty(t, m.Required)
}

func TestModels(t *testing.T) {
	set := Models(map[string]Table{
		"public.users":  {Schema: "public", Name: "users", Type: TypeTable},
		"archive.users": {Schema: "archive", Name: "users", Type: TypeTable},
		"public.stats":  {Schema: "public", Name: "stats", Type: TypeMaterializedView},
	})

	require.Equal(t, []string{"StatsViewModel", "UsersTableModel"}, set.Names())
	assert.Equal(t, "archive", set["UsersTableModel"].Schema)
}
