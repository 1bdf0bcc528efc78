package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisjointSet(t *testing.T) {
	d := newDisjointSet(6)

	// Everything starts in its own component.
	for i := 0; i < 6; i++ {
		assert.Equal(t, i, d.find(i))
	}

	d.union(0, 1)
	d.union(1, 2)
	d.union(3, 4)

	assert.Equal(t, d.find(0), d.find(2))
	assert.Equal(t, d.find(3), d.find(4))
	assert.NotEqual(t, d.find(0), d.find(3))
	assert.NotEqual(t, d.find(5), d.find(0))

	// Union is idempotent and merges whole components.
	d.union(2, 2)
	d.union(2, 4)
	assert.Equal(t, d.find(0), d.find(3))
	assert.NotEqual(t, d.find(5), d.find(0))
}
