package utils

import (
	"unicode"
)

// IsSeparator reports whether r may appear between the words of a place name,
// as in "Saint-Denis", "N'Djamena" or "St. Louis".
func IsSeparator(r rune) bool {
	return r == ' ' || r == '-' || r == '\'' || r == '.' || r == '’'
}

// IsOnlyNumbers checks if a string consists entirely of numeric digits
func IsOnlyNumbers(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ContainsControl checks for control or format characters, which no city name
// carries.
func ContainsControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return true
		}
	}
	return false
}

// ContainsSpecialChars checks for anything that is not a letter, mark, digit
// or name separator.
func ContainsSpecialChars(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r) && !IsSeparator(r) {
			return true
		}
	}
	return false
}

// IsValidPrefix reports whether the interactive prompt should look s up.
// The index itself accepts any string; this only keeps obvious typos
// (bare numbers, punctuation runs) from flooding the terminal.
func IsValidPrefix(s string) bool {
	if len(s) == 0 {
		return false
	}
	if IsOnlyNumbers(s) {
		return false
	}
	return !ContainsControl(s) && !ContainsSpecialChars(s)
}
