package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAuthorNameLastFirst(t *testing.T) {
	assert.Equal(t, "ursula le guin", NormalizeAuthorName("Le Guin, Ursula"))
}

func TestNormalizeAuthorNameStripsSuffix(t *testing.T) {
	assert.Equal(t, "martin luther king", NormalizeAuthorName("Martin Luther King, Jr."))
}

func TestNormalizeAuthorNameSuffixThenCommaReorder(t *testing.T) {
	assert.Equal(t, NormalizeAuthorName("J.K. Rowling"), NormalizeAuthorName("Rowling, J.K. Jr."))
}

func TestNormalizeAuthorNameCoAuthorSyntax(t *testing.T) {
	assert.Equal(t, "brandon sanderson", NormalizeAuthorName("Brandon Sanderson & Robert Jordan"))
	assert.Equal(t, "brandon sanderson", NormalizeAuthorName("Brandon Sanderson and Robert Jordan"))
}

func TestNormalizeAuthorNameCollectiveAlias(t *testing.T) {
	assert.Equal(t, "anonymous", NormalizeAuthorName("Unknown Author"))
	assert.Equal(t, "various authors", NormalizeAuthorName("Various"))
}

func TestNormalizeAuthorNameIsIdempotent(t *testing.T) {
	once := NormalizeAuthorName("J. K. Rowling")
	twice := NormalizeAuthorName(once)
	assert.Equal(t, once, twice)
}

func TestAddCollectiveAlias(t *testing.T) {
	AddCollectiveAlias("house staff", "anonymous")
	assert.Equal(t, "anonymous", NormalizeAuthorName("House Staff"))
}

func TestNormalizeAuthorNamePreservesNonASCIILetters(t *testing.T) {
	assert.Contains(t, NormalizeAuthorName("Gabriel García Márquez"), "garcía")
}
