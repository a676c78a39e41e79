package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yigitkonur/research-powerpack-mcp/internal/domain"
)

func TestAllocateTokens_FloorDivision(t *testing.T) {
	a := domain.AllocateTokens(32000, 3)
	assert.Equal(t, 10666, a.PerItem)
	assert.Equal(t, 32000, a.Total)
}

func TestAllocateTokens_DegenerateZeroItems(t *testing.T) {
	a := domain.AllocateTokens(32000, 0)
	assert.Equal(t, 32000, a.PerItem)
}

func TestAllocateTokens_Conservation(t *testing.T) {
	// P6: per_item * n <= total and per_item >= 0 for all n >= 1.
	for n := 1; n <= 10; n++ {
		a := domain.AllocateTokens(32000, n)
		assert.LessOrEqual(t, a.PerItem*n, 32000)
		assert.GreaterOrEqual(t, a.PerItem, 0)
	}
}

func TestAllocateComments_CappedAndUncapped(t *testing.T) {
	a := domain.AllocateComments(1000, 10, 500)
	assert.Equal(t, 100, a.PerItemUncapped)
	assert.Equal(t, 100, a.PerItemCapped)

	a = domain.AllocateComments(1000, 2, 400)
	assert.Equal(t, 500, a.PerItemUncapped)
	assert.Equal(t, 400, a.PerItemCapped)
}

func TestAllocateComments_NoCeiling(t *testing.T) {
	a := domain.AllocateComments(1000, 4, 0)
	assert.Equal(t, 250, a.PerItemUncapped)
	assert.Equal(t, 250, a.PerItemCapped)
}
