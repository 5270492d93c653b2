package sqlbuilderutil

import (
	"fmt"
	"strings"

	"fknsrs.biz/p/reflectutil"
	"fknsrs.biz/p/sqlbuilder"

	"fknsrs.biz/p/clipcatalog/internal/stringutil"
)

// Table is a sqlbuilder table built from a sorm record type. Columns can be
// named by Go field name, snake case column name or camel case JSON name,
// ignoring case.
type Table struct {
	*sqlbuilder.Table
	aliases map[string]string
}

// C returns the named column and panics if there is none. It is for names
// written in the program; use Column for names that come from requests.
func (t *Table) C(name string) *sqlbuilder.BasicColumn {
	c, ok := t.Column(name)
	if !ok {
		panic(fmt.Sprintf("sqlbuilderutil.Table.C: no column for %q", name))
	}

	return c
}

func (t *Table) Column(name string) (*sqlbuilder.BasicColumn, bool) {
	column, ok := t.aliases[strings.ToLower(name)]
	if !ok {
		return nil, false
	}

	return t.Table.C(column), true
}

// MakeTable reads the table name from a `sql:",table:name"` parameter on any
// field, defaulting to the snake case type name. Fields tagged `sql:"-"` are
// skipped.
func MakeTable(v interface{}) (*Table, error) {
	s, err := reflectutil.GetDescription(v)
	if err != nil {
		return nil, fmt.Errorf("sqlbuilderutil.MakeTable: %w", err)
	}

	tableName := stringutil.PascalToSnake(s.Name())
	aliases := make(map[string]string)

	var columns []string
	for _, f := range s.Fields().WithoutTagValue("sql", "-") {
		column := stringutil.PascalToSnake(f.Name())

		if tag := f.Tag("sql"); tag != nil {
			if tag.Value() != "" {
				column = tag.Value()
			}
			if p := tag.Parameter("table"); p != nil {
				tableName = p.Value()
			}
		}

		for _, alias := range []string{f.Name(), column, stringutil.SnakeToCamel(column)} {
			alias = strings.ToLower(alias)
			if other, ok := aliases[alias]; ok && other != column {
				return nil, fmt.Errorf("sqlbuilderutil.MakeTable: %s: %q names both %s and %s", s.Name(), alias, other, column)
			}
			aliases[alias] = column
		}

		columns = append(columns, column)
	}

	return &Table{Table: sqlbuilder.NewTable(tableName, columns...), aliases: aliases}, nil
}

func MustMakeTable(v interface{}) *Table {
	t, err := MakeTable(v)
	if err != nil {
		panic(err)
	}

	return t
}
