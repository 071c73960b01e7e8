package masking

import (
	"strings"
	"unicode"
)

// FormatPreservation re-renders a masked value so that it keeps some of the
// shape of the value it replaces.
type FormatPreservation struct {
	// Suffix is appended to the masked value, e.g. "@masked.com".
	Suffix string `yaml:"suffix"`
	// PreserveSeparators keeps the punctuation and spaces of the original
	// value in place, filling the other positions from the masked value.
	PreserveSeparators bool `yaml:"preserve_separators"`
}

// Format applies the preservation rules to masked given the original value.
func (f *FormatPreservation) Format(original, masked string) string {
	if f == nil {
		return masked
	}
	if f.PreserveSeparators && original != "" && masked != "" {
		fill := []rune(masked)
		var (
			b strings.Builder
			i int
		)
		for _, r := range original {
			if isSeparator(r) {
				b.WriteRune(r)
				continue
			}
			b.WriteRune(fill[i%len(fill)])
			i++
		}
		masked = b.String()
	}
	return masked + f.Suffix
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
