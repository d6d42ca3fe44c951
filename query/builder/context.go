package builder

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/relq/mapping"
)

// BuildContext is one logical step (table, join, subquery) of a query
// under construction.
type BuildContext interface {
	// ID is unique within one ExpressionBuilder.
	ID() int
	// ObjectType is the entity type the context produces.
	ObjectType() string
	// Alias is the table alias columns of this context are qualified with.
	Alias() string
	// SelectQuery is the query the context contributes to.
	SelectQuery() *SelectQuery
	// Parent is the enclosing context, nil for roots.
	Parent() BuildContext
}

// JoinType represents a SQL join type.
type JoinType string

const (
	// InnerJoin drops rows without a match.
	InnerJoin JoinType = "INNER"
	// LeftJoin keeps rows without a match.
	LeftJoin JoinType = "LEFT"
)

// TableSource is a table reference with its alias.
type TableSource struct {
	ObjectType string
	Table      string
	Alias      string
}

// ColumnRef is an alias-qualified column.
type ColumnRef struct {
	Alias  string
	Column string
}

func (c ColumnRef) String() string {
	return c.Alias + "." + c.Column
}

// JoinCondition equates a column of the joined table with one of its parent.
type JoinCondition struct {
	Left  ColumnRef
	Right ColumnRef
}

// Join is one joined table of a SelectQuery.
type Join struct {
	Type        JoinType
	Source      TableSource
	Conditions  []JoinCondition
	Predicate   string
	Association *mapping.AssociationDescriptor
}

// SelectQuery is the relational shape built for a query.
type SelectQuery struct {
	From    TableSource
	Joins   []*Join
	Columns []ColumnRef
}

// AddJoin appends j.
func (q *SelectQuery) AddJoin(j *Join) {
	q.Joins = append(q.Joins, j)
}

// HasAlias reports whether alias is already taken in the query.
func (q *SelectQuery) HasAlias(alias string) bool {
	if strings.EqualFold(q.From.Alias, alias) {
		return true
	}
	for _, j := range q.Joins {
		if strings.EqualFold(j.Source.Alias, alias) {
			return true
		}
	}
	return false
}

// UniqueAlias returns base, or base with a numeric suffix if taken.
func (q *SelectQuery) UniqueAlias(base string) string {
	if base == "" {
		base = "t"
	}
	if !q.HasAlias(base) {
		return base
	}
	for i := 1; ; i++ {
		alias := fmt.Sprintf("%s%d", base, i)
		if !q.HasAlias(alias) {
			return alias
		}
	}
}

// TableContext is the root context reading one entity table.
type TableContext struct {
	id    int
	query *SelectQuery
}

// ID implements BuildContext.
func (c *TableContext) ID() int { return c.id }

// ObjectType implements BuildContext.
func (c *TableContext) ObjectType() string { return c.query.From.ObjectType }

// Alias implements BuildContext.
func (c *TableContext) Alias() string { return c.query.From.Alias }

// SelectQuery implements BuildContext.
func (c *TableContext) SelectQuery() *SelectQuery { return c.query }

// Parent implements BuildContext.
func (c *TableContext) Parent() BuildContext { return nil }

func (c *TableContext) String() string {
	return fmt.Sprintf("Table#%d(%s AS %s)", c.id, c.query.From.Table, c.query.From.Alias)
}

// AssociationContext is a to-one association inlined as a join into the
// query of its parent.
type AssociationContext struct {
	id         int
	parent     BuildContext
	descriptor *mapping.AssociationDescriptor
	join       *Join
}

// ID implements BuildContext.
func (c *AssociationContext) ID() int { return c.id }

// ObjectType implements BuildContext.
func (c *AssociationContext) ObjectType() string { return c.join.Source.ObjectType }

// Alias implements BuildContext.
func (c *AssociationContext) Alias() string { return c.join.Source.Alias }

// SelectQuery implements BuildContext.
func (c *AssociationContext) SelectQuery() *SelectQuery { return c.parent.SelectQuery() }

// Parent implements BuildContext.
func (c *AssociationContext) Parent() BuildContext { return c.parent }

// Descriptor returns the association the join was built from.
func (c *AssociationContext) Descriptor() *mapping.AssociationDescriptor { return c.descriptor }

// Join returns the join this context added.
func (c *AssociationContext) Join() *Join { return c.join }

// IsOuter reports whether the join keeps unmatched parent rows.
func (c *AssociationContext) IsOuter() bool { return c.join.Type == LeftJoin }

func (c *AssociationContext) String() string {
	return fmt.Sprintf("Association#%d(%s AS %s)", c.id, c.descriptor.Member(), c.join.Source.Alias)
}
