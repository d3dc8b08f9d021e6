package matcher

import "strings"

// Normalize returns the canonical form of a search term or negative keyword.
// Only one outer pair of quotes or brackets is removed.
func Normalize(text string) string {
	text = strings.TrimSpace(strings.ToLower(text))
	text = stripOuterPair(text)
	return strings.Join(strings.Fields(text), " ")
}

// Tokenize splits normalized text on single spaces.
func Tokenize(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, " ")
}

func stripOuterPair(text string) string {
	if len(text) < 2 {
		return text
	}
	first, last := text[0], text[len(text)-1]
	switch {
	case first == '"' && last == '"',
		first == '\'' && last == '\'',
		first == '[' && last == ']':
		return text[1 : len(text)-1]
	}
	return text
}
