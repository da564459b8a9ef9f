// Package schema defines the application tables and renders them as
// Postgres migrations. Every table receives the default columns.
package schema

import (
	"fmt"
	"strings"
)

// Column is one column of a table definition.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
	NotNull    bool
	Unique     bool
	Default    string
	// References is "table(column)"; OnDelete is appended when set.
	References string
	OnDelete   string
	Index      bool
}

// Table is a table definition with the default columns already merged in.
type Table struct {
	Name    string
	Columns []Column
	// UniqueTogether holds multi-column unique constraints.
	UniqueTogether [][]string
}

// DefaultColumns returns the identifier and lifecycle timestamps shared by
// every table. updated_at is refreshed by the application on each UPDATE.
func DefaultColumns() []Column {
	return []Column{
		{Name: "id", Type: "uuid", PrimaryKey: true, Default: "gen_random_uuid()"},
		{Name: "created_at", Type: "timestamptz", NotNull: true, Default: "now()"},
		{Name: "updated_at", Type: "timestamptz", NotNull: true, Default: "now()"},
	}
}

// Define builds a table from the default columns followed by the given
// domain columns.
func Define(name string, columns ...Column) (Table, error) {
	if !validIdent(name) {
		return Table{}, fmt.Errorf("invalid table name %q", name)
	}

	t := Table{Name: name, Columns: DefaultColumns()}
	seen := make(map[string]bool, len(t.Columns)+len(columns))
	for _, c := range t.Columns {
		seen[c.Name] = true
	}
	for _, c := range columns {
		if !validIdent(c.Name) {
			return Table{}, fmt.Errorf("table %s: invalid column name %q", name, c.Name)
		}
		if c.Type == "" {
			return Table{}, fmt.Errorf("table %s: column %s has no type", name, c.Name)
		}
		if seen[c.Name] {
			return Table{}, fmt.Errorf("table %s: duplicate column %s", name, c.Name)
		}
		seen[c.Name] = true
		t.Columns = append(t.Columns, c)
	}
	return t, nil
}

// MustDefine is Define for package-level table declarations.
func MustDefine(name string, columns ...Column) Table {
	t, err := Define(name, columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// WithUnique adds a multi-column unique constraint.
func (t Table) WithUnique(columns ...string) Table {
	t.UniqueTogether = append(append([][]string{}, t.UniqueTogether...), columns)
	return t
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func validIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return !strings.HasPrefix(s, "pg_")
}
