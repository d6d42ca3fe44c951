package builder

import (
	"strconv"
	"strings"

	"github.com/satishbabariya/relq/query/expr"
)

// ProjectFlags selects how an expression is being projected.
type ProjectFlags uint8

const (
	// ProjectSQL projects into SQL.
	ProjectSQL ProjectFlags = 1 << iota
	// ProjectExpression projects into an object expression.
	ProjectExpression
	// ProjectRoot resolves the root of a navigation path.
	ProjectRoot
	// ProjectKeys projects key columns only.
	ProjectKeys
)

// SqlCacheKey identifies one resolved expression within a build pass.
type SqlCacheKey struct {
	Expression expr.Expr
	Context    BuildContext
	Flags      ProjectFlags
}

// String renders the key. Two keys are equal exactly when they reference
// the same context, carry the same flags and structurally equal
// expressions.
func (k SqlCacheKey) String() string {
	var sb strings.Builder
	if k.Context != nil {
		sb.WriteString(strconv.Itoa(k.Context.ID()))
	}
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(int(k.Flags)))
	sb.WriteByte('|')
	if k.Expression != nil {
		sb.WriteString(k.Expression.String())
	}
	return sb.String()
}

// Equal reports whether two keys are interchangeable.
func (k SqlCacheKey) Equal(other SqlCacheKey) bool {
	return k.String() == other.String()
}
