package dialect

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/builder"
)

// sqlBuilder is the common renderer; providers differ in quoting and
// parameter markers.
type sqlBuilder struct {
	name        string
	schema      *mapping.MappingSchema
	optimizer   SqlOptimizer
	flags       ProviderFlags
	quote       func(string) string
	placeholder func(int) string
}

// NewPostgresBuilder creates a PostgreSQL builder.
func NewPostgresBuilder(schema *mapping.MappingSchema, optimizer SqlOptimizer, flags ProviderFlags) SqlBuilder {
	return &sqlBuilder{
		name:      "postgres",
		schema:    schema,
		optimizer: optimizer,
		flags:     flags,
		quote:     doubleQuote,
		placeholder: func(i int) string {
			return fmt.Sprintf("$%d", i)
		},
	}
}

// NewMySQLBuilder creates a MySQL builder.
func NewMySQLBuilder(schema *mapping.MappingSchema, optimizer SqlOptimizer, flags ProviderFlags) SqlBuilder {
	return &sqlBuilder{
		name:        "mysql",
		schema:      schema,
		optimizer:   optimizer,
		flags:       flags,
		quote:       backtickQuote,
		placeholder: questionMark,
	}
}

// NewSQLiteBuilder creates a SQLite builder.
func NewSQLiteBuilder(schema *mapping.MappingSchema, optimizer SqlOptimizer, flags ProviderFlags) SqlBuilder {
	return &sqlBuilder{
		name:        "sqlite",
		schema:      schema,
		optimizer:   optimizer,
		flags:       flags,
		quote:       doubleQuote,
		placeholder: questionMark,
	}
}

func (g *sqlBuilder) Name() string                          { return g.name }
func (g *sqlBuilder) Flags() ProviderFlags                  { return g.flags }
func (g *sqlBuilder) MappingSchema() *mapping.MappingSchema { return g.schema }
func (g *sqlBuilder) QuoteIdentifier(name string) string    { return g.quote(name) }
func (g *sqlBuilder) Placeholder(index int) string          { return g.placeholder(index) }

// BuildSelect renders q, optimized first when the builder has an
// optimizer.
func (g *sqlBuilder) BuildSelect(q *builder.SelectQuery) (string, error) {
	if q == nil || q.From.Table == "" {
		return "", fmt.Errorf("%s: select without a source table", g.name)
	}
	if g.optimizer != nil {
		q = g.optimizer.Optimize(q)
	}

	var parts []string

	// SELECT columns, all columns of every source when none are listed
	var cols []string
	if len(q.Columns) == 0 {
		cols = append(cols, g.quote(q.From.Alias)+".*")
		for _, j := range q.Joins {
			cols = append(cols, g.quote(j.Source.Alias)+".*")
		}
	} else {
		for _, c := range q.Columns {
			cols = append(cols, g.column(c))
		}
	}
	parts = append(parts, "SELECT "+strings.Join(cols, ", "))

	parts = append(parts, "FROM "+g.table(q.From))

	for _, j := range q.Joins {
		joinType := strings.ToUpper(string(j.Type))
		if joinType == "" {
			joinType = string(builder.LeftJoin)
		}
		if len(j.Conditions) == 0 && j.Predicate == "" {
			return "", fmt.Errorf("%s: join %s has no condition", g.name, j.Source.Alias)
		}
		var on []string
		for _, c := range j.Conditions {
			on = append(on, g.column(c.Left)+" = "+g.column(c.Right))
		}
		if j.Predicate != "" {
			on = append(on, "("+j.Predicate+")")
		}
		parts = append(parts, fmt.Sprintf("%s JOIN %s ON %s", joinType, g.table(j.Source), strings.Join(on, " AND ")))
	}

	return strings.Join(parts, " "), nil
}

func (g *sqlBuilder) table(t builder.TableSource) string {
	if t.Alias == "" || t.Alias == t.Table {
		return g.quote(t.Table)
	}
	return g.quote(t.Table) + " AS " + g.quote(t.Alias)
}

func (g *sqlBuilder) column(c builder.ColumnRef) string {
	return g.quote(c.Alias) + "." + g.quote(c.Column)
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func backtickQuote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func questionMark(int) string {
	return "?"
}

// InlineParameters replaces the markers for args with SQL literals.
// Markers inside quoted strings are left alone.
func (g *sqlBuilder) InlineParameters(sql string, args []any) (string, error) {
	literals := make([]string, len(args))
	for i, a := range args {
		lit, err := Literal(a)
		if err != nil {
			return "", fmt.Errorf("%s: parameter %d: %w", g.name, i+1, err)
		}
		literals[i] = lit
	}

	var (
		sb      strings.Builder
		next    int
		inQuote bool
	)
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			sb.WriteByte(ch)
		case !inQuote && ch == '?' && g.placeholder(1) == "?":
			if next >= len(literals) {
				return "", fmt.Errorf("%s: more markers than parameters", g.name)
			}
			sb.WriteString(literals[next])
			next++
		case !inQuote && ch == '$' && g.placeholder(1) == "$1":
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if j == i+1 {
				sb.WriteByte(ch)
				continue
			}
			n, _ := strconv.Atoi(sql[i+1 : j])
			if n < 1 || n > len(literals) {
				return "", fmt.Errorf("%s: marker $%d has no parameter", g.name, n)
			}
			sb.WriteString(literals[n-1])
			i = j - 1
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String(), nil
}

// Literal renders v as a SQL literal.
func Literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32, float64:
		return fmt.Sprintf("%v", x), nil
	case json.Number:
		return x.String(), nil
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02 15:04:05.999999") + "'", nil
	}
	return "", fmt.Errorf("cannot inline %T", v)
}
