package internal

import "strings"

// NormalizeISBN strips non-alphanumerics and uppercases, per §3. It does
// not validate; call ValidateISBN on the result before trusting it.
func NormalizeISBN(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// ValidateISBN checks length and checksum for a normalized ISBN-10 or
// ISBN-13 string. Only validated ISBNs may enter the enrichment pipeline
// (§3 invariant).
func ValidateISBN(isbn string) bool {
	switch len(isbn) {
	case 10:
		return validateISBN10(isbn)
	case 13:
		return validateISBN13(isbn)
	default:
		return false
	}
}

func validateISBN10(isbn string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		var digit int
		c := isbn[i]
		switch {
		case c >= '0' && c <= '9':
			digit = int(c - '0')
		case c == 'X' && i == 9:
			digit = 10
		default:
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

func validateISBN13(isbn string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		c := isbn[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return sum%10 == 0
}

// ISBN10to13 losslessly converts a valid ISBN-10 to its ISBN-13 equivalent
// under the 978 prefix, recomputing the check digit. Callers must validate
// isbn10 first; behavior on an invalid input is undefined.
func ISBN10to13(isbn10 string) string {
	body := "978" + isbn10[:9]
	sum := 0
	for i := 0; i < 12; i++ {
		digit := int(body[i] - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	check := (10 - sum%10) % 10
	return body + string(rune('0'+check))
}
