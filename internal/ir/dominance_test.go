package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDominanceDiamond(t *testing.T) {
	fn := lookup(t, build(t, contract("C", branchy())), "C", "f")
	d := ComputeDominance(fn)

	assert.Equal(t, []int{-1, 0, 1, 2, 2, 4}, d.Idom)
	assert.Equal(t, 0, d.Order[0])
	assert.Equal(t, []int{3, 4}, d.Children[2])
	assert.Equal(t, []int{4}, d.Frontier[3])
	assert.Empty(t, d.Frontier[2])

	assert.True(t, d.Dominates(2, 5))
	assert.True(t, d.Dominates(4, 4))
	assert.False(t, d.Dominates(3, 4))
}

func TestDominanceLoopFrontier(t *testing.T) {
	fn := lookup(t, build(t, contract("C", whileLoop())), "C", "f")
	d := ComputeDominance(fn)

	// the body's frontier is the loop header, which is in its own frontier
	assert.Equal(t, []int{3}, d.Frontier[5])
	assert.Equal(t, []int{3}, d.Frontier[3])
	assert.Equal(t, 3, d.Idom[4])
}
