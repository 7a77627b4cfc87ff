package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// isNameSeparator reports runes that separate name parts in rosters and
// dataset folder names.
func isNameSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '-' || r == '_' || r == '.'
}

// CleanStudentName turns a roster or folder spelling such as
// "Jana_Nováková" or "  Jana  Nováková " into display form "Jana Nováková".
// Diacritics and case are kept.
func CleanStudentName(name string) string {
	return strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_'
	}), " ")
}

// NormalizePersonName folds a student name for comparison: lowercase, no
// diacritics, with dashes, underscores, dots and repeated spaces collapsed
// to single spaces.
func NormalizePersonName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	return strings.Join(strings.FieldsFunc(name, isNameSeparator), " ")
}

// SplitStudentFolder parses a dataset folder named "<student_id>_<name>".
// The ID ends at the first underscore; the rest is cleaned into the name.
func SplitStudentFolder(folder string) (studentID, name string, ok bool) {
	studentID, rest, found := strings.Cut(strings.TrimSpace(folder), "_")
	if !found || studentID == "" {
		return "", "", false
	}
	name = CleanStudentName(rest)
	if name == "" {
		return "", "", false
	}
	return studentID, name, true
}
