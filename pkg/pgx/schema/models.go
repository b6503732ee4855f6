package schema

import (
	"slices"

	"github.com/joneldiablo/adba/pkg/model"
)

// Model converts an introspected table into a model. Columns that are not
// nullable and have no default are required.
func (t Table) Model() *model.Model {
	view := t.Type != TypeTable
	fields := make([]model.Field, 0, len(t.Columns))
	for _, col := range t.Columns {
		typ, format := model.TypeFor(col.DataType)
		p := model.Property{Type: typ, Format: format}
		if col.MaxLength != nil {
			p.MaxLength = int(*col.MaxLength)
		}
		fields = append(fields, model.Field{
			Name:     col.Name,
			Property: p,
			Required: !col.IsNullable && col.Default == nil,
		})
	}

	m := model.New(t.Name, fields...)
	m.Name = model.ClassName(t.Name, view)
	m.Schema = t.Schema
	m.View = view
	if len(t.PrimaryKeys) > 0 {
		m.PrimaryKey = t.PrimaryKeys[0]
	}
	return m
}

// Models converts tables into a model set. When two schemas hold a table of
// the same name, the first schema in sort order wins.
func Models(tables map[string]Table) model.Set {
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	set := make(model.Set, len(tables))
	for _, k := range keys {
		m := tables[k].Model()
		if _, ok := set[m.Name]; ok {
			continue
		}
		set[m.Name] = m
	}
	return set
}
