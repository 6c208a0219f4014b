// Package textnorm canonicalizes free text for catalog lookups. Client
// names, product names, and route names all go through the same function so
// that "Café Olé", "CAFE OLE" and "cafe ole" collide on purpose.
package textnorm

import (
	"strings"
	"unicode"
)

// Spanish accent set folded to plain ASCII.
var accents = map[rune]rune{
	'Á': 'A', 'É': 'E', 'Í': 'I', 'Ó': 'O', 'Ú': 'U', 'Ü': 'U', 'Ñ': 'N', 'Ç': 'C',
	'á': 'A', 'é': 'E', 'í': 'I', 'ó': 'O', 'ú': 'U', 'ü': 'U', 'ñ': 'N', 'ç': 'C',
}

// Norm uppercases, folds the Spanish accent set, drops every character
// outside [A-Z0-9 ], collapses space runs to a single space, and trims.
// Deterministic and locale independent.
func Norm(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true // leading spaces are dropped
	for _, r := range s {
		if folded, ok := accents[r]; ok {
			r = folded
		} else {
			r = unicode.ToUpper(r)
		}
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimRight(b.String(), " ")
}
