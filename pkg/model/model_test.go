package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() *Model {
	return New("test_table",
		Field{Name: "id", Property: Property{Type: TypeInteger}, Required: true},
		Field{Name: "name", Property: Property{Type: TypeString, Title: "Name", MaxLength: 50}},
		Field{Name: "email", Property: Property{Type: TypeString}},
		Field{Name: "created", Property: Property{Type: TypeString, Format: FormatDate}},
		Field{Name: "avatar", Property: Property{Type: TypeBuffer}},
	)
}

func TestNew(t *testing.T) {
	m := testModel()
	assert.Equal(t, "TestTableTableModel", m.Name)
	assert.Equal(t, "test_table", m.Table)
	assert.Equal(t, "id", m.PK())
	assert.Equal(t, []string{"id", "name", "email", "created", "avatar"}, m.ColumnNames())
	assert.Equal(t, []string{"name", "email", "created"}, m.StringColumns())
}

func TestQualifyAndProperty(t *testing.T) {
	m := testModel()
	assert.Equal(t, "test_table.name", m.Qualify("name"))
	assert.Equal(t, "rel.b", m.Qualify("rel.b"))

	p, ok := m.Property("test_table.name")
	require.True(t, ok)
	assert.Equal(t, TypeString, p.Type)

	_, ok = m.Property("rel.name")
	assert.False(t, ok)
	assert.False(t, m.Has("ghost"))
	assert.Equal(t, "name", Base.Qualify("name"))
}

func TestColumns(t *testing.T) {
	m := New("t",
		Field{Name: "id", Property: Property{Type: TypeInteger}, Required: true},
		Field{Name: "name", Property: Property{Type: TypeString, Title: "Name"}},
		Field{Name: "created", Property: Property{Type: TypeString, Format: FormatDate}},
	)
	cols := m.Columns()
	assert.True(t, cols["id"].Required)
	assert.Equal(t, "Name", cols["name"].Label)
	assert.Equal(t, FormatDate, cols["created"].Format)
	assert.Equal(t, "created", cols["created"].Label)
}

func TestJSONSchema(t *testing.T) {
	s := testModel().JSONSchema()
	props := s["properties"].(map[string]any)

	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []string{"id"}, s["required"])
	assert.Equal(t, "string.date", props["created"].(map[string]any)["$comment"])
	assert.Contains(t, props, "x-avatar")
	assert.NotContains(t, props["x-avatar"], "type")
}

func TestTypeFor(t *testing.T) {
	tests := []struct {
		pg     string
		typ    Type
		format Format
	}{
		{"BOOLEAN", TypeBoolean, ""},
		{"bytea", TypeBuffer, ""},
		{"integer", TypeInteger, ""},
		{"bigint", TypeInteger, ""},
		{"numeric(10,2)", TypeNumber, ""},
		{"double precision", TypeNumber, ""},
		{"character varying", TypeString, ""},
		{"date", TypeString, FormatDate},
		{"timestamp with time zone", TypeString, FormatDateTime},
		{"TIMESTAMP", TypeString, FormatDateTime},
		{"time without time zone", TypeString, FormatTime},
		{"jsonb", TypeString, ""},
		{"integer[]", TypeString, ""},
	}
	for _, tt := range tests {
		t.Run(tt.pg, func(t *testing.T) {
			typ, format := TypeFor(tt.pg)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestSet(t *testing.T) {
	a := New("alpha")
	b := New("beta_items")
	s := NewSet(b, a)

	assert.Equal(t, []string{"AlphaTableModel", "BetaItemsTableModel"}, s.Names())
	got, ok := s.ByTable("beta_items")
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = s.ByTable("ghost")
	assert.False(t, ok)
	assert.Equal(t, "beta-items", Slug("beta_items"))
}
