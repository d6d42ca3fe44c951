package builder

import (
	"fmt"

	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/expr"
)

// BuildInfo carries the state of the expression being built.
type BuildInfo struct {
	Parent      BuildContext
	Expression  expr.Expr
	SelectQuery *SelectQuery
}

// AssociationBuilder produces the context for one inlined association.
type AssociationBuilder interface {
	// BuildAssociationInline adds the association desc to the query of
	// tableContext. isOuter carries the requested outer-ness in and the
	// effective one out.
	BuildAssociationInline(
		b *ExpressionBuilder,
		info BuildInfo,
		tableContext BuildContext,
		member mapping.MemberInfo,
		desc *mapping.AssociationDescriptor,
		inline bool,
		isOuter *bool,
	) (BuildContext, error)
}

// JoinAssociationBuilder inlines an association as a join on its key
// pairs. Nullable associations, and associations reached through an
// outer join, become LEFT joins.
type JoinAssociationBuilder struct{}

// BuildAssociationInline implements AssociationBuilder.
func (JoinAssociationBuilder) BuildAssociationInline(
	b *ExpressionBuilder,
	info BuildInfo,
	tableContext BuildContext,
	member mapping.MemberInfo,
	desc *mapping.AssociationDescriptor,
	inline bool,
	isOuter *bool,
) (BuildContext, error) {
	if !inline {
		return nil, fmt.Errorf("association %s as subquery: %w", member, ErrNotImplemented)
	}
	if parent, ok := tableContext.(*AssociationContext); ok && parent.IsOuter() {
		*isOuter = true
	}

	query := info.SelectQuery
	if query == nil {
		query = tableContext.SelectQuery()
	}

	target := b.MappingSchema().GetEntityDescriptor(desc.TargetType())
	join := &Join{
		Type: InnerJoin,
		Source: TableSource{
			ObjectType: desc.TargetType(),
			Table:      target.TableName(),
			Alias:      query.UniqueAlias(desc.GenerateAlias()),
		},
		Predicate:   desc.Predicate(),
		Association: desc,
	}
	if *isOuter {
		join.Type = LeftJoin
	}
	for _, kp := range desc.KeyPairs() {
		join.Conditions = append(join.Conditions, JoinCondition{
			Left:  ColumnRef{Alias: join.Source.Alias, Column: kp.OtherKey},
			Right: ColumnRef{Alias: tableContext.Alias(), Column: kp.ThisKey},
		})
	}
	query.AddJoin(join)

	return &AssociationContext{
		id:         b.NextContextID(),
		parent:     tableContext,
		descriptor: desc,
		join:       join,
	}, nil
}
