package builder

import (
	"strconv"

	"github.com/satishbabariya/relq/query/expr"
)

// ContextRefExpr is an expression node standing in for a build context.
type ContextRefExpr struct {
	typ string
	ctx BuildContext
}

// NewContextRef creates a reference to ctx with static type typ.
func NewContextRef(typ string, ctx BuildContext) *ContextRefExpr {
	return &ContextRefExpr{typ: typ, ctx: ctx}
}

// Kind implements expr.Expr.
func (r *ContextRefExpr) Kind() expr.Kind { return expr.KindExtension }

// Type implements expr.Expr.
func (r *ContextRefExpr) Type() string { return r.typ }

// BuildContext returns the referenced context.
func (r *ContextRefExpr) BuildContext() BuildContext { return r.ctx }

func (r *ContextRefExpr) String() string {
	return "ctx#" + strconv.Itoa(r.ctx.ID()) + ":" + r.typ
}
