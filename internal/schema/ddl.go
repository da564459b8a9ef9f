package schema

import (
	"fmt"
	"strings"
)

// CreateSQL renders the CREATE TABLE statement plus its indexes.
func (t Table) CreateSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)

	lines := make([]string, 0, len(t.Columns)+len(t.UniqueTogether))
	for _, c := range t.Columns {
		lines = append(lines, "    "+columnSQL(c))
	}
	for _, cols := range t.UniqueTogether {
		lines = append(lines, fmt.Sprintf("    CONSTRAINT %s_%s_key UNIQUE (%s)",
			t.Name, strings.Join(cols, "_"), strings.Join(cols, ", ")))
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);\n")

	for _, c := range t.Columns {
		if c.Index {
			fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s);\n", t.Name, c.Name, t.Name, c.Name)
		}
	}
	return b.String()
}

// DropSQL renders the statement reverting CreateSQL.
func (t Table) DropSQL() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\n", t.Name)
}

func columnSQL(c Column) string {
	parts := []string{c.Name, c.Type}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.NotNull && !c.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT "+c.Default)
	}
	if c.References != "" {
		parts = append(parts, "REFERENCES "+c.References)
		if c.OnDelete != "" {
			parts = append(parts, "ON DELETE "+c.OnDelete)
		}
	}
	return strings.Join(parts, " ")
}

// UpSQL renders the forward migration for tables, in order.
func UpSQL(tables []Table) string {
	var b strings.Builder
	b.WriteString("CREATE EXTENSION IF NOT EXISTS pgcrypto;\n")
	for _, t := range tables {
		b.WriteString("\n")
		b.WriteString(t.CreateSQL())
	}
	return b.String()
}

// DownSQL renders the reverse migration, dropping tables in reverse order.
func DownSQL(tables []Table) string {
	var b strings.Builder
	for i := len(tables) - 1; i >= 0; i-- {
		b.WriteString(tables[i].DropSQL())
	}
	return b.String()
}
