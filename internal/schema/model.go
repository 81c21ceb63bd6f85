// Package schema introspects live PostgreSQL databases into a structural
// model that the rest of the pipeline indexes and retrieves over.
package schema

// ColumnDescriptor describes a single column of a table.
type ColumnDescriptor struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declared_type"`
	Nullable     bool   `json:"nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// ForeignKeyRef describes a foreign key edge from one column to another table.
type ForeignKeyRef struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// TableDescriptor describes one table with its columns and outgoing foreign keys.
type TableDescriptor struct {
	Name        string             `json:"name"`
	Columns     []ColumnDescriptor `json:"columns"`
	ForeignKeys []ForeignKeyRef    `json:"foreign_keys"`
}

// Model is the full structural snapshot of one database connection.
// Tables are sorted by name so repeated extractions of an unchanged
// schema produce identical models.
type Model struct {
	ConnectionID string            `json:"connection_id"`
	Tables       []TableDescriptor `json:"tables"`
}

// TableNames returns the names of all tables in the model, in order.
func (m *Model) TableNames() []string {
	names := make([]string, len(m.Tables))
	for i, table := range m.Tables {
		names[i] = table.Name
	}

	return names
}
