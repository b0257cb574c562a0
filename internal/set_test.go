package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSet(t *testing.T) {
	s := newSet("a", "b", "a")
	assert.Len(t, s, 2)
	_, ok := s["a"]
	assert.True(t, ok)
}

func TestUnion(t *testing.T) {
	x := newSet("a", "b")
	y := newSet("b", "c")
	u := union(x, y)

	assert.Len(t, u, 3)
	for _, k := range []string{"a", "b", "c"} {
		_, ok := u[k]
		assert.True(t, ok, "expected %q in union", k)
	}
	// Inputs are untouched.
	assert.Len(t, x, 2)
	assert.Len(t, y, 2)
}
