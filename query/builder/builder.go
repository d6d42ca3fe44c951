// Package builder turns expression trees over mapped entities into
// relational query shapes, inlining to-one associations as joins.
package builder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/satishbabariya/relq/internal/debug"
	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/expr"
)

// Option configures an ExpressionBuilder.
type Option func(*ExpressionBuilder)

// WithAssociationBuilder replaces the default join builder.
func WithAssociationBuilder(ab AssociationBuilder) Option {
	return func(b *ExpressionBuilder) {
		b.joins = ab
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *ExpressionBuilder) {
		b.logger = l
	}
}

// Stats counts association cache lookups of one build pass.
type Stats struct {
	Hits   int
	Misses int
}

// ExpressionBuilder holds the state of one query build pass. It is not
// safe for concurrent use.
type ExpressionBuilder struct {
	schema *mapping.MappingSchema
	joins  AssociationBuilder
	logger *slog.Logger

	// created lazily on first association
	associations map[string]expr.Expr
	lastID       int
	stats        Stats
}

// NewExpressionBuilder creates a builder over schema.
func NewExpressionBuilder(schema *mapping.MappingSchema, opts ...Option) *ExpressionBuilder {
	b := &ExpressionBuilder{
		schema: schema,
		joins:  JoinAssociationBuilder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = debug.Or(b.logger, "builder")
	return b
}

// MappingSchema returns the schema the builder resolves against.
func (b *ExpressionBuilder) MappingSchema() *mapping.MappingSchema {
	return b.schema
}

// NextContextID allocates a context id unique within the pass.
func (b *ExpressionBuilder) NextContextID() int {
	b.lastID++
	return b.lastID
}

// Stats returns cache counters.
func (b *ExpressionBuilder) Stats() Stats {
	return b.stats
}

// NewTableContext starts a query reading objectType and returns its root
// context.
func (b *ExpressionBuilder) NewTableContext(objectType string) *TableContext {
	ed := b.schema.GetEntityDescriptor(objectType)
	id := b.NextContextID()
	return &TableContext{
		id: id,
		query: &SelectQuery{
			From: TableSource{
				ObjectType: objectType,
				Table:      ed.TableName(),
				Alias:      fmt.Sprintf("t%d", id),
			},
		},
	}
}

// Root returns a reference to ctx typed as its object type, the form
// query parameters take once bound to a table.
func (b *ExpressionBuilder) Root(ctx BuildContext) *ContextRefExpr {
	return NewContextRef(ctx.ObjectType(), ctx)
}

// ConvertToSQL resolves the associations in e and returns the column it
// denotes.
func (b *ExpressionBuilder) ConvertToSQL(e expr.Expr) (ColumnRef, error) {
	m, ok := e.(*expr.MemberExpr)
	if !ok {
		return ColumnRef{}, fmt.Errorf("cannot convert %s to a column: %w", e, ErrNotImplemented)
	}
	target, _, err := b.MakeAssociation(m.Target())
	if err != nil {
		return ColumnRef{}, err
	}
	ref, ok := target.(*ContextRefExpr)
	if !ok {
		return ColumnRef{}, fmt.Errorf("cannot convert %s to a column: %w", e, ErrNotImplemented)
	}
	return ColumnRef{Alias: ref.BuildContext().Alias(), Column: m.Member().Name}, nil
}

// Select resolves each of exprs and appends the resulting columns to the
// select list of ctx's query.
func (b *ExpressionBuilder) Select(ctx BuildContext, exprs ...expr.Expr) error {
	q := ctx.SelectQuery()
	var failed []string
	for _, e := range exprs {
		col, err := b.ConvertToSQL(e)
		if err != nil {
			return err
		}
		if !strings.EqualFold(col.Alias, ctx.Alias()) && !q.HasAlias(col.Alias) {
			failed = append(failed, col.String())
			continue
		}
		q.Columns = append(q.Columns, col)
	}
	if len(failed) > 0 {
		return fmt.Errorf("columns outside the query: %s", strings.Join(failed, ", "))
	}
	return nil
}
