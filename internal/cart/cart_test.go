package cart

import (
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id string, price int64, stock int) models.Product {
	return models.Product{ID: id, Name: "Producto " + id, Price: decimal.NewFromInt(price), Stock: stock}
}

func assertConsistent(t *testing.T, c models.Cart) {
	t.Helper()
	total := decimal.Zero
	count := 0
	for _, item := range c.Items {
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	assert.True(t, total.Equal(c.Total), "total %s, want %s", c.Total, total)
	assert.Equal(t, count, c.Count)
}

func TestAddScenario(t *testing.T) {
	p1 := product("p1", 10, 2)
	c := Empty()

	c, err := Add(c, p1, 1)
	require.NoError(t, err)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, c.Count)

	c, err = Add(c, p1, 1)
	require.NoError(t, err)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 2, c.Count)
	assert.Len(t, c.Items, 1)

	c, err = Add(c, p1, 1)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 2, ItemQuantity(c, "p1"))
}

func TestAddRejectsWholeRequest(t *testing.T) {
	c, err := Add(Empty(), product("p1", 5, 3), 2)
	require.NoError(t, err)

	// 2 + 2 > 3: nothing is added, not even the one unit that would fit
	c, err = Add(c, product("p1", 5, 3), 2)
	require.Error(t, err)
	assert.Equal(t, 2, ItemQuantity(c, "p1"))
}

func TestStockGuardNeverExceeded(t *testing.T) {
	p := product("p1", 3, 5)
	c := Empty()
	for _, qty := range []int{1, 3, 2, 1, 4, 1} {
		c, _ = Add(c, p, qty)
		assert.LessOrEqual(t, ItemQuantity(c, "p1"), p.Stock)
		assertConsistent(t, c)
	}
	assert.Equal(t, 5, ItemQuantity(c, "p1"))
}

func TestAddOutOfStock(t *testing.T) {
	c, err := Add(Empty(), product("p1", 10, 0), 1)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.False(t, HasItems(c))
}

func TestAddInvalidQuantity(t *testing.T) {
	_, err := Add(Empty(), product("p1", 10, 5), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddDoesNotMutateInput(t *testing.T) {
	c, err := Add(Empty(), product("p1", 10, 5), 1)
	require.NoError(t, err)

	next, err := Add(c, product("p1", 10, 5), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.Equal(t, 3, next.Items[0].Quantity)
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	c, err := Add(Empty(), product("p1", 10, 5), 2)
	require.NoError(t, err)

	next, removed := Remove(c, "missing")
	assert.Nil(t, removed)
	assert.Equal(t, c.Items, next.Items)
	assert.True(t, c.Total.Equal(next.Total))
	assert.Equal(t, c.Count, next.Count)
}

func TestRemove(t *testing.T) {
	c, _ := Add(Empty(), product("p1", 10, 5), 2)
	c, _ = Add(c, product("p2", 7, 5), 1)

	c, removed := Remove(c, "p1")
	require.NotNil(t, removed)
	assert.Equal(t, "p1", removed.Product.ID)
	assert.Len(t, c.Items, 1)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(7)))
	assertConsistent(t, c)
}

func TestUpdateQuantity(t *testing.T) {
	c, _ := Add(Empty(), product("p1", 10, 5), 1)

	c, err := UpdateQuantity(c, "p1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, ItemQuantity(c, "p1"))
	assertConsistent(t, c)

	c, err = UpdateQuantity(c, "p1", 6)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, ItemQuantity(c, "p1"))

	c, err = UpdateQuantity(c, "p1", 0)
	require.NoError(t, err)
	assert.False(t, HasItems(c))
	assertConsistent(t, c)

	_, err = UpdateQuantity(c, "p1", 1)
	assert.ErrorIs(t, err, ErrNotInCart)
}

func TestMixedSequenceKeepsTotalsConsistent(t *testing.T) {
	p1 := product("p1", 10, 10)
	p2 := product("p2", 25, 4)
	p3 := product("p3", 3, 1)

	c := Empty()
	steps := []func(models.Cart) models.Cart{
		func(c models.Cart) models.Cart { c, _ = Add(c, p1, 3); return c },
		func(c models.Cart) models.Cart { c, _ = Add(c, p2, 2); return c },
		func(c models.Cart) models.Cart { c, _ = Add(c, p3, 2); return c },
		func(c models.Cart) models.Cart { c, _ = UpdateQuantity(c, "p1", 7); return c },
		func(c models.Cart) models.Cart { c, _ = Remove(c, "p2"); return c },
		func(c models.Cart) models.Cart { c, _ = Add(c, p3, 1); return c },
		func(c models.Cart) models.Cart { c, _ = UpdateQuantity(c, "p3", -1); return c },
	}
	for _, step := range steps {
		c = step(c)
		assertConsistent(t, c)
	}
	assert.True(t, c.Total.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, 7, c.Count)
}

func TestClear(t *testing.T) {
	c, _ := Add(Empty(), product("p1", 10, 5), 2)
	c, _ = Add(c, product("p2", 1, 5), 1)

	c, removed := Clear(c)
	assert.Equal(t, 2, removed)
	assert.False(t, HasItems(c))
	assert.True(t, c.Total.IsZero())
	assert.Equal(t, 0, c.Count)
}
