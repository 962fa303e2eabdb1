package strsim

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// Fold applies the explicit normalization the scorers assume has already
// happened: transliteration to ASCII, upper case, and single spaces.
func Fold(s string) string {
	s = unidecode.Unidecode(s)
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
