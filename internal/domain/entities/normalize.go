package entities

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName maps a raw external name to its comparison key.
//
// Rules, in order: compatibility-normalize (full-width and ligature forms
// compare equal), trim, case-fold, collapse internal whitespace, then drop
// the separators space, hyphen and underscore so that "jake stl 314",
// "Jake-STL_314" and "jakestl314" share one key. The function is total and
// idempotent.
func NormalizeName(raw string) string {
	s := norm.NFKC.String(raw)
	s = strings.TrimSpace(s)
	s = foldCase(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return -1
		}
		return r
	}, s)
	// Folding can emit decomposed sequences; recompose so a second pass is a no-op.
	return norm.NFKC.String(s)
}

// CleanDisplayName trims a raw name and collapses internal whitespace while
// keeping its original case and separators.
func CleanDisplayName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// FoldName returns the case-insensitive form of a display name. Two active
// members may not share a folded display name.
func FoldName(name string) string {
	return foldCase(CleanDisplayName(norm.NFKC.String(name)))
}

// foldCase case-folds s and lowers the result. Folding alone is not stable
// for scripts whose fold target is the uppercase form (Cherokee), so the
// lowering pins both case forms to one fixed point.
func foldCase(s string) string {
	return strings.ToLower(cases.Fold().String(s))
}

func isSeparator(r rune) bool {
	return r == ' ' || r == '-' || r == '_'
}
