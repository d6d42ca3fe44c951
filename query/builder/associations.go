package builder

import (
	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/expr"
)

// IsAssociation reports whether e is a member access or method call the
// schema declares as a relationship.
func (b *ExpressionBuilder) IsAssociation(e expr.Expr) bool {
	switch n := e.(type) {
	case *expr.MemberExpr:
		return b.schema.IsAssociation(n.Member())
	case *expr.CallExpr:
		return b.schema.IsAssociation(n.Method())
	}
	return false
}

// GetAssociationDescriptor finds the descriptor for the association e
// denotes, along with the member that names it. With onlyCurrent unset
// the declaring type of the member is searched when the static type of
// the target has no match.
func (b *ExpressionBuilder) GetAssociationDescriptor(e expr.Expr, onlyCurrent bool) (*mapping.AssociationDescriptor, mapping.MemberInfo) {
	var (
		member     mapping.MemberInfo
		objectType string
	)

	switch n := e.(type) {
	case *expr.MemberExpr:
		member = n.Member()
		if !b.schema.IsAssociation(member) {
			return nil, member
		}
		objectType = member.DeclaringType
		if n.Target() != nil {
			objectType = n.Target().Type()
		}
	case *expr.CallExpr:
		member = n.Method()
		if !b.schema.IsAssociation(member) {
			return nil, member
		}
		objectType = member.DeclaringType
		if member.Static {
			if args := n.Args(); len(args) > 0 {
				objectType = args[0].Type()
			}
		}
	default:
		return nil, member
	}

	entity := b.schema.GetEntityDescriptor(objectType)
	desc := b.findAssociation(member, entity)
	if desc == nil && !onlyCurrent && member.DeclaringType != entity.ObjectType() {
		desc = b.findAssociation(member, b.schema.GetEntityDescriptor(member.DeclaringType))
	}
	return desc, member
}

func (b *ExpressionBuilder) findAssociation(member mapping.MemberInfo, entity *mapping.EntityDescriptor) *mapping.AssociationDescriptor {
	if member.IsMethod() {
		return b.schema.MethodAssociation(member, entity.ObjectType())
	}

	if d := entity.FindAssociation(member); d != nil {
		return d
	}

	var found *mapping.AssociationDescriptor
	for _, m := range entity.InheritanceMapping() {
		d := b.schema.GetEntityDescriptor(m.Type).FindAssociation(member)
		if d == nil {
			continue
		}
		if found == nil {
			found = d
			continue
		}
		if d != found {
			b.logger.Warn("ambiguous inherited association",
				"member", member.String(),
				"entity", entity.ObjectType(),
				"chosen", found.ObjectType(),
				"ignored", d.ObjectType())
		}
	}
	return found
}

// BuildAssociations rewrites the navigation chain rooted at e so every
// association on it becomes a ContextRefExpr. It returns the rewritten
// expression and the context reference the outermost step resolved
// against. A nil root means e is not anchored in a build context and is
// returned unchanged.
func (b *ExpressionBuilder) BuildAssociations(e expr.Expr) (expr.Expr, *ContextRefExpr, error) {
	switch n := e.(type) {
	case *ContextRefExpr:
		return n, n, nil

	case *expr.MemberExpr:
		if n.Target() == nil {
			return e, nil, nil
		}
		parent, root, err := b.BuildAssociations(n.Target())
		if err != nil || root == nil {
			return e, root, err
		}
		updated := n.Update(parent)
		if updated != n {
			return b.BuildAssociations(updated)
		}
		resolved, err := b.TryCreateAssociation(n, root)
		return resolved, root, err

	case *expr.CallExpr:
		if n.Method().Static {
			args := n.Args()
			if len(args) == 0 {
				return e, nil, nil
			}
			receiver, root, err := b.BuildAssociations(args[0])
			if err != nil || root == nil {
				return e, root, err
			}
			args[0] = receiver
			updated := n.Update(n.Object(), args)
			if updated != n {
				return b.BuildAssociations(updated)
			}
			resolved, err := b.TryCreateAssociation(n, root)
			return resolved, root, err
		}
		if n.Object() == nil {
			return e, nil, nil
		}
		object, root, err := b.BuildAssociations(n.Object())
		if err != nil || root == nil {
			return e, root, err
		}
		updated := n.Update(object, n.Args())
		if updated != n {
			return b.BuildAssociations(updated)
		}
		resolved, err := b.TryCreateAssociation(n, root)
		return resolved, root, err
	}

	return e, nil, nil
}

// MakeAssociation resolves the association chain e. Expressions that are
// not anchored in a context, or are not associations, are returned
// unchanged with a nil root. A context reference is its own root.
func (b *ExpressionBuilder) MakeAssociation(e expr.Expr) (expr.Expr, *ContextRefExpr, error) {
	resolved, root, err := b.BuildAssociations(e)
	if err != nil {
		return nil, nil, err
	}
	if root == nil || resolved != e {
		return resolved, root, nil
	}
	if ref, ok := e.(*ContextRefExpr); ok {
		return ref, root, nil
	}
	if !b.IsAssociation(e) {
		return e, nil, nil
	}
	resolved, err = b.TryCreateAssociation(e, root)
	if err != nil {
		return nil, nil, err
	}
	return resolved, root, nil
}

// TryCreateAssociation inlines the association e within root as a join
// and returns a reference to the new context. Resolved associations are
// memoized per root context, so resolving the same path twice yields the
// same reference and adds a single join.
func (b *ExpressionBuilder) TryCreateAssociation(e expr.Expr, root *ContextRefExpr) (expr.Expr, error) {
	if !b.IsAssociation(e) {
		return e, nil
	}

	key := SqlCacheKey{Expression: e, Context: root.BuildContext(), Flags: ProjectRoot}.String()
	if cached, ok := b.associations[key]; ok {
		b.stats.Hits++
		return cached, nil
	}
	b.stats.Misses++

	desc, member := b.GetAssociationDescriptor(e, false)
	if desc == nil {
		return e, nil
	}
	if desc.IsList() {
		return nil, &AssociationError{
			ObjectType: desc.ObjectType(),
			Member:     member,
			Cause:      ErrNotImplemented,
		}
	}

	parent := root.BuildContext()
	info := BuildInfo{
		Parent:      parent,
		Expression:  e,
		SelectQuery: parent.SelectQuery(),
	}
	isOuter := desc.CanBeNull()

	ctx, err := b.joins.BuildAssociationInline(b, info, parent, member, desc, true, &isOuter)
	if err != nil {
		return nil, &AssociationError{ObjectType: desc.ObjectType(), Member: member, Cause: err}
	}

	ref := NewContextRef(e.Type(), ctx)
	if b.associations == nil {
		b.associations = make(map[string]expr.Expr)
	}
	b.associations[key] = ref

	b.logger.Debug("association inlined",
		"member", member.String(),
		"context", ctx.ID(),
		"alias", ctx.Alias(),
		"outer", isOuter)
	return ref, nil
}
