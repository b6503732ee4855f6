// Package model describes database tables as JSON-Schema-like models.
//
// A Model is derived once (from introspection or by hand) and is read-only
// afterwards: the query translator, the controllers and the route deriver
// consume it and never mutate it.
package model

import (
	"slices"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// Type is the semantic type of a column.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeBuffer  Type = "buffer"
)

// Numeric reports whether values of t compare as numbers. "float" and
// "decimal" are accepted for hand-written schemas.
func (t Type) Numeric() bool {
	switch t {
	case TypeInteger, TypeNumber, "float", "decimal":
		return true
	}
	return false
}

// Format refines a string column.
type Format string

const (
	FormatDate     Format = "date"
	FormatDateTime Format = "datetime"
	FormatTime     Format = "time"
)

// Property is the declared shape of one column.
type Property struct {
	Type      Type   `json:"type,omitempty" yaml:"type"`
	Format    Format `json:"format,omitempty" yaml:"format"`
	MaxLength int    `json:"maxLength,omitempty" yaml:"maxLength"`
	Title     string `json:"title,omitempty" yaml:"title"`
}

// Field declares a column when building a Model by hand.
type Field struct {
	Name     string
	Property Property
	Required bool
}

// Model is a named table (or view) with its column properties.
type Model struct {
	// Name is the model class name, eg UsersTableModel.
	Name       string
	Table      string
	Schema     string
	View       bool
	PrimaryKey string
	Properties map[string]Property
	Required   []string
	// order keeps column declaration order; Properties is unordered.
	order []string
}

// Base is the generic model custom endpoints are bound to. It has no table.
var Base = &Model{Name: "Model", PrimaryKey: "id", Properties: map[string]Property{}}

// New builds a table model with the given fields. The model name is derived
// from the table name.
func New(table string, fields ...Field) *Model {
	m := &Model{
		Name:       ClassName(table, false),
		Table:      table,
		PrimaryKey: "id",
		Properties: make(map[string]Property, len(fields)),
	}
	for _, f := range fields {
		m.add(f)
	}
	return m
}

func (m *Model) add(f Field) {
	if _, ok := m.Properties[f.Name]; !ok {
		m.order = append(m.order, f.Name)
	}
	m.Properties[f.Name] = f.Property
	if f.Required && !slices.Contains(m.Required, f.Name) {
		m.Required = append(m.Required, f.Name)
	}
}

// ClassName returns the PascalCase model name for a table or view.
func ClassName(table string, view bool) string {
	suffix := "TableModel"
	if view {
		suffix = "ViewModel"
	}
	return strcase.ToCamel(table) + suffix
}

// Slug returns the kebab-case URL segment for a table name.
func Slug(table string) string {
	return strcase.ToKebab(table)
}

// ColumnNames returns the columns in declaration order.
func (m *Model) ColumnNames() []string {
	if len(m.order) == len(m.Properties) {
		return slices.Clone(m.order)
	}
	names := make([]string, 0, len(m.Properties))
	for name := range m.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Property looks up a column. A name qualified with this model's table is
// accepted too.
func (m *Model) Property(column string) (Property, bool) {
	if p, ok := m.Properties[column]; ok {
		return p, true
	}
	if m.Table != "" {
		if bare, ok := strings.CutPrefix(column, m.Table+"."); ok {
			p, ok := m.Properties[bare]
			return p, ok
		}
	}
	return Property{}, false
}

// Has reports whether column is declared on the model.
func (m *Model) Has(column string) bool {
	_, ok := m.Property(column)
	return ok
}

// Qualify prefixes a bare column with the table name. Dotted names are
// returned unchanged.
func (m *Model) Qualify(column string) string {
	if strings.Contains(column, ".") || m.Table == "" {
		return column
	}
	return m.Table + "." + column
}

// PK returns the primary key column, "id" unless introspection said otherwise.
func (m *Model) PK() string {
	if m.PrimaryKey == "" {
		return "id"
	}
	return m.PrimaryKey
}

// StringColumns returns the string-typed columns in declaration order.
func (m *Model) StringColumns() []string {
	var cols []string
	for _, name := range m.ColumnNames() {
		if m.Properties[name].Type == TypeString {
			cols = append(cols, name)
		}
	}
	return cols
}

// IsRequired reports whether column is in the required list.
func (m *Model) IsRequired(column string) bool {
	return slices.Contains(m.Required, column)
}

// JSONSchema renders the model as a JSON Schema object. Buffer columns are
// emitted without a type and prefixed with "x-".
func (m *Model) JSONSchema() map[string]any {
	props := make(map[string]any, len(m.Properties))
	for name, p := range m.Properties {
		prop := map[string]any{}
		comment := string(p.Type)
		if p.Format != "" {
			comment += "." + string(p.Format)
			prop["format"] = string(p.Format)
		}
		prop["$comment"] = comment
		if p.MaxLength > 0 {
			prop["maxLength"] = p.MaxLength
		}
		if p.Title != "" {
			prop["title"] = p.Title
		}
		if p.Type == TypeBuffer {
			props["x-"+name] = prop
			continue
		}
		prop["type"] = string(p.Type)
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(m.Required) > 0 {
		schema["required"] = slices.Clone(m.Required)
	}
	return schema
}

// Set is a collection of models keyed by model name.
type Set map[string]*Model

// NewSet indexes models by their Name.
func NewSet(models ...*Model) Set {
	s := make(Set, len(models))
	for _, m := range models {
		s[m.Name] = m
	}
	return s
}

// Names returns the model names sorted, for deterministic iteration.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByTable finds the model bound to table.
func (s Set) ByTable(table string) (*Model, bool) {
	for _, name := range s.Names() {
		if s[name].Table == table {
			return s[name], true
		}
	}
	return nil, false
}
