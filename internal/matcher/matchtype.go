package matcher

import (
	"errors"
	"fmt"
	"strings"
)

type MatchType string

const (
	Exact  MatchType = "EXACT"
	Phrase MatchType = "PHRASE"
	Broad  MatchType = "BROAD"
)

var ErrInvalidMatchType = errors.New("invalid match type")

// InvalidMatchTypeError reports the rule that carried an unknown label.
type InvalidMatchTypeError struct {
	Position int
	Keyword  string
	Label    string
}

func (e *InvalidMatchTypeError) Error() string {
	return fmt.Sprintf("rule %d (%q): invalid match type %q", e.Position, e.Keyword, e.Label)
}

func (e *InvalidMatchTypeError) Unwrap() error { return ErrInvalidMatchType }

// ParseMatchType trims and uppercases label and accepts only the three
// canonical match types.
func ParseMatchType(label string) (MatchType, error) {
	switch mt := MatchType(strings.ToUpper(strings.TrimSpace(label))); mt {
	case Exact, Phrase, Broad:
		return mt, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMatchType, label)
}

func (m MatchType) Valid() bool {
	return m == Exact || m == Phrase || m == Broad
}
