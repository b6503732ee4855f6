package model

// Column describes a column for clients building forms or grids.
type Column struct {
	Name      string `json:"name"`
	Type      Type   `json:"type,omitempty"`
	Format    Format `json:"format,omitempty"`
	Required  bool   `json:"required"`
	Label     string `json:"label"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// Columns converts the model's properties into column descriptors keyed by
// column name. The label is the property title, or the column name.
func (m *Model) Columns() map[string]Column {
	cols := make(map[string]Column, len(m.Properties))
	for name, p := range m.Properties {
		label := p.Title
		if label == "" {
			label = name
		}
		cols[name] = Column{
			Name:      name,
			Type:      p.Type,
			Format:    p.Format,
			Required:  m.IsRequired(name),
			Label:     label,
			MaxLength: p.MaxLength,
		}
	}
	return cols
}
