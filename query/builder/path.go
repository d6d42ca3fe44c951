package builder

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/expr"
)

// MemberPath builds the member access chain a dotted path such as
// "Customer.Region" names, starting at the root of ctx. Every segment but
// the last must be an association; the last may also be a plain column.
// Associations inherited from a base entity are found by name.
func (b *ExpressionBuilder) MemberPath(ctx BuildContext, path string) (expr.Expr, error) {
	segments := strings.Split(path, ".")
	var cur expr.Expr = b.Root(ctx)

	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("member path %q: empty segment", path)
		}

		desc := b.associationNamed(cur.Type(), seg)
		if desc == nil {
			if i < len(segments)-1 {
				return nil, fmt.Errorf("member path %q: %s.%s is not an association", path, cur.Type(), seg)
			}
			return expr.Member(cur, mapping.Property(cur.Type(), seg), ""), nil
		}
		cur = expr.Member(cur, desc.Member(), desc.TargetType())
	}
	return cur, nil
}

// associationNamed finds the property association called name on typ,
// whether declared there or inherited.
func (b *ExpressionBuilder) associationNamed(typ, name string) *mapping.AssociationDescriptor {
	for _, d := range b.schema.GetEntityDescriptor(typ).Associations() {
		if m := d.Member(); !m.IsMethod() && m.Name == name {
			return d
		}
	}
	return nil
}
