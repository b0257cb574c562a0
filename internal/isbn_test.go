package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeISBN(t *testing.T) {
	cases := map[string]string{
		"978-0-13-468599-1": "9780134685991",
		"0-13-468599-x":      "013468599X",
		"  0321146530 ":      "0321146530",
		"ISBN: 9780134685991": "9780134685991",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeISBN(in), "input %q", in)
	}
}

func TestValidateISBN10(t *testing.T) {
	assert.True(t, ValidateISBN("0321146530"))
	assert.True(t, ValidateISBN("080442957X"))
	assert.False(t, ValidateISBN("0321146531")) // bad checksum
	assert.False(t, ValidateISBN("03211465"))   // wrong length
}

func TestValidateISBN13(t *testing.T) {
	assert.True(t, ValidateISBN("9780134685991"))
	assert.False(t, ValidateISBN("9780134685990")) // bad checksum
	assert.False(t, ValidateISBN("97801346859912"))
}

func TestISBN10to13RoundTrip(t *testing.T) {
	got := ISBN10to13("0321146530")
	assert.Len(t, got, 13)
	assert.True(t, ValidateISBN(got))
	assert.Equal(t, "978", got[:3])
}
