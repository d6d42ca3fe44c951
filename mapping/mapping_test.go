package mapping

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func northwindSchema(t *testing.T) *MappingSchema {
	t.Helper()

	ms := NewMappingSchema("Northwind")
	b := NewBuilder(ms)
	b.Entity("Customer").Table("customers")
	b.Entity("Order").Table("orders").
		HasOne("Customer", "Customer", []string{"CustomerID"}, []string{"ID"}, Nullable(true)).
		HasMany("Lines", "OrderLine", []string{"ID"}, []string{"OrderID"}).
		Method("FindEmployee", "Employee", []string{"EmployeeID"}, []string{"ID"})
	b.Entity("SpecialOrder").Extends("Order").
		HasOne("Shipper", "Shipper", []string{"ShipVia"}, []string{"ID"})
	require.NoError(t, b.Build())
	return ms
}

func TestNewAssociationDescriptor(t *testing.T) {
	t.Run("rejects key arity mismatch", func(t *testing.T) {
		_, err := NewAssociationDescriptor("Order", Property("Order", "Customer"), "Customer",
			[]string{"CustomerID", "RegionID"}, []string{"ID"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrKeyArity))
	})

	t.Run("copies key slices", func(t *testing.T) {
		keys := []string{"CustomerID"}
		d, err := NewAssociationDescriptor("Order", Property("Order", "Customer"), "Customer", keys, []string{"ID"})
		require.NoError(t, err)

		keys[0] = "changed"
		assert.Equal(t, []string{"CustomerID"}, d.ThisKey())

		got := d.ThisKey()
		got[0] = "changed again"
		assert.Equal(t, []string{"CustomerID"}, d.ThisKey())
	})

	t.Run("generates alias from member", func(t *testing.T) {
		d, err := NewAssociationDescriptor("Order", Property("Order", "Customer"), "Customer",
			[]string{"CustomerID"}, []string{"ID"})
		require.NoError(t, err)
		assert.Equal(t, "customer", d.GenerateAlias())

		aliased, err := NewAssociationDescriptor("Order", Property("Order", "Customer"), "Customer",
			[]string{"CustomerID"}, []string{"ID"}, WithAlias("c"))
		require.NoError(t, err)
		assert.Equal(t, "c", aliased.GenerateAlias())
	})
}

func TestMappingSchema_Lookup(t *testing.T) {
	ms := northwindSchema(t)

	order := ms.GetEntityDescriptor("Order")
	assert.Equal(t, "orders", order.TableName())
	require.Len(t, order.Associations(), 2)
	assert.Equal(t, []InheritanceMapping{{Type: "SpecialOrder"}}, order.InheritanceMapping())

	special := ms.GetEntityDescriptor("SpecialOrder")
	assert.Equal(t, "orders", special.TableName(), "table is inherited from the base type")
	assoc := special.Associations()
	require.Len(t, assoc, 3)
	assert.Equal(t, "Shipper", assoc[0].Member().Name, "own declarations come first")
	assert.NotNil(t, special.FindAssociation(Property("Order", "Customer")))

	unknown := ms.GetEntityDescriptor("Region")
	assert.Equal(t, "Region", unknown.TableName())
	assert.Empty(t, unknown.Associations())
	assert.False(t, ms.HasEntity("Region"))

	assert.True(t, ms.IsAssociation(Property("Order", "Customer")))
	assert.True(t, ms.IsAssociation(Method("Order", "FindEmployee")))
	assert.False(t, ms.IsAssociation(Property("Order", "OrderDate")))

	m := ms.MethodAssociation(Method("Order", "FindEmployee"), "SpecialOrder")
	require.NotNil(t, m)
	assert.Equal(t, "SpecialOrder", m.ObjectType())
	assert.Nil(t, ms.MethodAssociation(Method("Order", "Total"), "Order"))
}

func TestMappingSchema_Layering(t *testing.T) {
	base := northwindSchema(t)
	remote := NewMappingSchema("Remote.Northwind", base)

	assert.Equal(t, []string{"Remote.Northwind", "Northwind"}, remote.ConfigurationList())
	assert.True(t, remote.HasEntity("Order"))
	assert.True(t, remote.IsAssociation(Property("Order", "Customer")))
	assert.Contains(t, remote.EntityTypes(), "SpecialOrder")
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("invalid declaration installs nothing", func(t *testing.T) {
		ms := NewMappingSchema("")
		b := NewBuilder(ms)
		b.Entity("Customer")
		b.Entity("Order").HasOne("Customer", "Customer", []string{"A", "B"}, []string{"ID"})
		require.Error(t, b.Build())
		assert.False(t, ms.HasEntity("Customer"))
	})

	t.Run("inheritance cycle", func(t *testing.T) {
		b := NewBuilder(NewMappingSchema(""))
		b.Entity("A").Extends("B")
		b.Entity("B").Extends("A")
		err := b.Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})

	t.Run("unknown base", func(t *testing.T) {
		b := NewBuilder(NewMappingSchema(""))
		b.Entity("A").Extends("Missing")
		require.Error(t, b.Build())
	})
}

const northwindMapping = `
// Northwind sample
entity Customer table "customers" {}

entity Order table "orders" {
  one Customer: Customer (CustomerID -> ID) nullable as "c"
  many Lines: OrderLine (ID -> OrderID)
  method FindEmployee: Employee (EmployeeID -> ID) where "e.Active = 1"
}

entity SpecialOrder extends Order {
  one Shipper: Shipper (ShipVia -> ID, Region -> Region) storage shipper
}
`

func TestParseMapping(t *testing.T) {
	f, err := ParseMappingString("northwind.relq", northwindMapping)
	require.NoError(t, err)
	require.Len(t, f.Entities, 3)

	order := f.Entities[1]
	assert.Equal(t, "Order", order.Name)
	assert.Equal(t, "orders", order.Table)
	require.Len(t, order.Associations, 3)
	assert.Equal(t, "one", order.Associations[0].Kind)
	require.Len(t, order.Associations[0].Options, 2)

	special := f.Entities[2]
	assert.Equal(t, "Order", special.Extends)
	require.Len(t, special.Associations[0].Keys, 2)
	assert.Equal(t, "Region", special.Associations[0].Keys[1].Other)
}

func TestLoadSchema(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mapping/northwind.relq", []byte(northwindMapping), 0o644))

	ms, err := LoadSchemaFile(fs, "Northwind", "/mapping/northwind.relq")
	require.NoError(t, err)

	customer := ms.GetEntityDescriptor("Order").FindAssociation(Property("Order", "Customer"))
	require.NotNil(t, customer)
	assert.True(t, customer.CanBeNull())
	assert.Equal(t, "c", customer.AliasName())

	lines := ms.GetEntityDescriptor("Order").FindAssociation(Property("Order", "Lines"))
	require.NotNil(t, lines)
	assert.True(t, lines.IsList())

	emp := ms.MethodAssociation(Method("Order", "FindEmployee"), "Order")
	require.NotNil(t, emp)
	assert.Equal(t, "e.Active = 1", emp.Predicate())

	shipper := ms.GetEntityDescriptor("SpecialOrder").FindAssociation(Property("SpecialOrder", "Shipper"))
	require.NotNil(t, shipper)
	assert.Equal(t, "shipper", shipper.Storage())
	assert.Equal(t, []KeyPair{{"ShipVia", "ID"}, {"Region", "Region"}}, shipper.KeyPairs())
}

func TestParseMapping_SyntaxError(t *testing.T) {
	_, err := ParseMappingString("bad.relq", `entity Order { one Customer Customer }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.relq")
}

func TestSchemaTypes(t *testing.T) {
	base := northwindSchema(t)
	RegisterSchema("test-northwind", base)
	t.Cleanup(func() { SchemaTypes.Unregister("test-northwind") })

	ms, err := NewSchemaByName("test-northwind")
	require.NoError(t, err)
	assert.True(t, ms.HasEntity("Order"))

	other, err := NewSchemaByName("test-northwind")
	require.NoError(t, err)
	assert.NotSame(t, ms, other, "each instantiation yields a fresh schema")

	_, err = NewSchemaByName("no-such-schema")
	require.Error(t, err)
}
