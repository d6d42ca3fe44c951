package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberPath_ChainsAssociations(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	e, err := eb.MemberPath(table, "Customer.Region")
	require.NoError(t, err)
	assert.Equal(t, "Region", e.Type())

	got, _, err := eb.MakeAssociation(e)
	require.NoError(t, err)
	ref, ok := got.(*ContextRefExpr)
	require.True(t, ok)
	assert.Equal(t, "Region", ref.Type())

	joins := table.SelectQuery().Joins
	require.Len(t, joins, 2)
	assert.Equal(t, "customers", joins[0].Source.Table)
	assert.Equal(t, "regions", joins[1].Source.Table)
}

func TestMemberPath_TrailingColumn(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	e, err := eb.MemberPath(table, "Customer.Name")
	require.NoError(t, err)

	col, err := eb.ConvertToSQL(e)
	require.NoError(t, err)
	assert.Equal(t, ColumnRef{Alias: "customer", Column: "Name"}, col)
}

func TestMemberPath_Errors(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("Order")

	_, err := eb.MemberPath(table, "Missing.Region")
	assert.ErrorContains(t, err, "Order.Missing is not an association")

	_, err = eb.MemberPath(table, "Customer..Region")
	assert.ErrorContains(t, err, "empty segment")
}

func TestMemberPath_InheritedAssociation(t *testing.T) {
	eb := NewExpressionBuilder(northwind(t))
	table := eb.NewTableContext("SpecialOrder")

	e, err := eb.MemberPath(table, "Customer")
	require.NoError(t, err)
	assert.Equal(t, "Customer", e.Type(), "inherited navigation is not a column")

	e, err = eb.MemberPath(table, "Customer.Region")
	require.NoError(t, err)
	_, _, err = eb.MakeAssociation(e)
	require.NoError(t, err)

	joins := table.SelectQuery().Joins
	require.Len(t, joins, 2)
	assert.Equal(t, "customers", joins[0].Source.Table)
	assert.Equal(t, "regions", joins[1].Source.Table)

	e, err = eb.MemberPath(table, "Shipper")
	require.NoError(t, err)
	assert.Equal(t, "Shipper", e.Type())
}
