package builder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/relq/mapping"
	"github.com/satishbabariya/relq/query/expr"
)

func northwind(t *testing.T) *mapping.MappingSchema {
	t.Helper()

	ms := mapping.NewMappingSchema("Northwind")
	b := mapping.NewBuilder(ms)
	b.Entity("Region").Table("regions")
	b.Entity("Customer").Table("customers").
		HasOne("Region", "Region", []string{"RegionID"}, []string{"ID"})
	b.Entity("Employee").Table("employees")
	b.Entity("Shipper").Table("shippers")
	b.Entity("Order").Table("orders").
		HasOne("Customer", "Customer", []string{"CustomerID"}, []string{"ID"}, mapping.Nullable(true)).
		HasOne("Employee", "Employee", []string{"EmployeeID"}, []string{"ID"}, mapping.WithPredicate("Active = 1")).
		HasMany("Lines", "OrderLine", []string{"ID"}, []string{"OrderID"}).
		Method("FindEmployee", "Employee", []string{"EmployeeID"}, []string{"ID"})
	b.Entity("SpecialOrder").Extends("Order").
		HasOne("Shipper", "Shipper", []string{"ShipVia"}, []string{"ID"})
	require.NoError(t, b.Build())
	return ms
}

func customerOf(target expr.Expr) *expr.MemberExpr {
	return expr.Member(target, mapping.Property("Order", "Customer"), "Customer")
}

func TestMakeAssociation_InlinesJoin(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")
	root := eb.Root(table)

	got, gotRoot, err := eb.MakeAssociation(customerOf(root))
	require.NoError(t, err)
	assert.Same(t, root, gotRoot)

	ref, ok := got.(*ContextRefExpr)
	require.True(t, ok, "association resolves to a context reference")
	assert.Equal(t, "Customer", ref.Type())

	q := table.SelectQuery()
	require.Len(t, q.Joins, 1)
	j := q.Joins[0]
	assert.Equal(t, LeftJoin, j.Type, "nullable association is an outer join")
	assert.Equal(t, "customers", j.Source.Table)
	assert.Equal(t, "customer", j.Source.Alias)
	assert.Equal(t, []JoinCondition{{
		Left:  ColumnRef{Alias: "customer", Column: "ID"},
		Right: ColumnRef{Alias: table.Alias(), Column: "CustomerID"},
	}}, j.Conditions)

	assoc, ok := ref.BuildContext().(*AssociationContext)
	require.True(t, ok)
	assert.Same(t, table, assoc.Parent())
	assert.Same(t, q, assoc.SelectQuery())
}

func TestMakeAssociation_SamePathTwiceJoinsOnce(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")
	root := eb.Root(table)

	first, _, err := eb.MakeAssociation(customerOf(root))
	require.NoError(t, err)
	second, _, err := eb.MakeAssociation(customerOf(root))
	require.NoError(t, err)

	assert.Same(t, first, second, "structurally equal paths share one reference")
	assert.Len(t, table.SelectQuery().Joins, 1)
	assert.Equal(t, 1, eb.Stats().Hits)
}

func TestMakeAssociation_CacheIsScopedToRoot(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	a := eb.NewTableContext("Order")
	b := eb.NewTableContext("Order")

	ra, _, err := eb.MakeAssociation(customerOf(eb.Root(a)))
	require.NoError(t, err)
	rb, _, err := eb.MakeAssociation(customerOf(eb.Root(b)))
	require.NoError(t, err)

	assert.NotSame(t, ra, rb)
	assert.Len(t, a.SelectQuery().Joins, 1)
	assert.Len(t, b.SelectQuery().Joins, 1)
}

func TestMakeAssociation_NestedPath(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")
	root := eb.Root(table)

	region := expr.Member(customerOf(root), mapping.Property("Customer", "Region"), "Region")
	got, _, err := eb.MakeAssociation(region)
	require.NoError(t, err)

	ref, ok := got.(*ContextRefExpr)
	require.True(t, ok)

	q := table.SelectQuery()
	require.Len(t, q.Joins, 2)
	assert.Equal(t, "customer", q.Joins[0].Source.Alias)
	assert.Equal(t, "region", q.Joins[1].Source.Alias)
	assert.Equal(t, LeftJoin, q.Joins[1].Type, "joins under an outer join stay outer")
	assert.Equal(t, "customer", q.Joins[1].Conditions[0].Right.Alias)

	parent := ref.BuildContext().Parent()
	require.NotNil(t, parent)
	assert.Equal(t, "Customer", parent.ObjectType())

	// The intermediate step is shared with a later, shorter path.
	again, _, err := eb.MakeAssociation(customerOf(root))
	require.NoError(t, err)
	assert.Same(t, parent, again.(*ContextRefExpr).BuildContext())
	assert.Len(t, q.Joins, 2)
}

func TestMakeAssociation_PredicateAndInnerJoin(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	e := expr.Member(eb.Root(table), mapping.Property("Order", "Employee"), "Employee")
	_, _, err := eb.MakeAssociation(e)
	require.NoError(t, err)

	j := table.SelectQuery().Joins[0]
	assert.Equal(t, InnerJoin, j.Type)
	assert.Equal(t, "Active = 1", j.Predicate)
}

func TestMakeAssociation_MethodCall(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	call := expr.Call(eb.Root(table), mapping.Method("Order", "FindEmployee"), "Employee")
	got, _, err := eb.MakeAssociation(call)
	require.NoError(t, err)

	_, ok := got.(*ContextRefExpr)
	assert.True(t, ok)
	require.Len(t, table.SelectQuery().Joins, 1)
	assert.Equal(t, "employees", table.SelectQuery().Joins[0].Source.Table)
}

func TestMakeAssociation_ListIsNotImplemented(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	lines := expr.Member(eb.Root(table), mapping.Property("Order", "Lines"), "[]OrderLine")
	_, _, err := eb.MakeAssociation(lines)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImplemented))

	var ae *AssociationError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "Lines", ae.Member.Name)
	assert.Empty(t, table.SelectQuery().Joins)
}

func TestMakeAssociation_Passthrough(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	t.Run("plain column", func(t *testing.T) {
		e := expr.Member(eb.Root(table), mapping.Property("Order", "OrderDate"), "time")
		got, root, err := eb.MakeAssociation(e)
		require.NoError(t, err)
		assert.Same(t, e, got)
		assert.Nil(t, root)
	})

	t.Run("unanchored parameter", func(t *testing.T) {
		e := customerOf(expr.Parameter("o", "Order"))
		got, root, err := eb.MakeAssociation(e)
		require.NoError(t, err)
		assert.Same(t, e, got)
		assert.Nil(t, root)
	})

	t.Run("context reference is its own root", func(t *testing.T) {
		ref := eb.Root(table)
		got, root, err := eb.BuildAssociations(ref)
		require.NoError(t, err)
		assert.Same(t, ref, got)
		assert.Same(t, ref, root)
	})

	t.Run("make association on a context reference", func(t *testing.T) {
		ref := eb.Root(table)
		got, root, err := eb.MakeAssociation(ref)
		require.NoError(t, err)
		assert.Same(t, ref, got)
		assert.Same(t, ref, root)
	})

	assert.Empty(t, table.SelectQuery().Joins)
}

func TestGetAssociationDescriptor(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))

	t.Run("inherited through derived mapping", func(t *testing.T) {
		e := expr.Member(expr.Parameter("o", "Order"), mapping.Property("SpecialOrder", "Shipper"), "Shipper")
		d, m := eb.GetAssociationDescriptor(e, true)
		require.NotNil(t, d)
		assert.Equal(t, "Shipper", d.TargetType())
		assert.Equal(t, "Shipper", m.Name)
	})

	t.Run("base member on derived target", func(t *testing.T) {
		e := customerOf(expr.Parameter("o", "SpecialOrder"))
		d, _ := eb.GetAssociationDescriptor(e, true)
		require.NotNil(t, d)
		assert.Equal(t, "Customer", d.TargetType())
	})

	t.Run("declaring type fallback", func(t *testing.T) {
		e := customerOf(expr.Parameter("x", "Unmapped"))
		d, _ := eb.GetAssociationDescriptor(e, true)
		assert.Nil(t, d)

		d, _ = eb.GetAssociationDescriptor(e, false)
		require.NotNil(t, d)
		assert.Equal(t, "Order", d.ObjectType())
	})

	t.Run("not an association", func(t *testing.T) {
		d, _ := eb.GetAssociationDescriptor(expr.Constant(1, "int"), false)
		assert.Nil(t, d)
	})
}

func TestExpressionBuilder_Select(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")
	root := eb.Root(table)

	city := expr.Member(customerOf(root), mapping.Property("Customer", "City"), "string")
	id := expr.Member(root, mapping.Property("Order", "ID"), "int")
	require.NoError(t, eb.Select(table, id, city))

	assert.Equal(t, []ColumnRef{
		{Alias: table.Alias(), Column: "ID"},
		{Alias: "customer", Column: "City"},
	}, table.SelectQuery().Columns)
}

func TestSelectQuery_UniqueAlias(t *testing.T) {
	q := &SelectQuery{From: TableSource{Alias: "customer"}}
	assert.Equal(t, "customer1", q.UniqueAlias("customer"))
	q.AddJoin(&Join{Source: TableSource{Alias: "customer1"}})
	assert.Equal(t, "customer2", q.UniqueAlias("customer"))
	assert.Equal(t, "t", q.UniqueAlias(""))
}

func TestSqlCacheKey(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	a := SqlCacheKey{Expression: customerOf(eb.Root(table)), Context: table, Flags: ProjectRoot}
	b := SqlCacheKey{Expression: customerOf(eb.Root(table)), Context: table, Flags: ProjectRoot}
	c := SqlCacheKey{Expression: customerOf(eb.Root(table)), Context: table, Flags: ProjectSQL}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
