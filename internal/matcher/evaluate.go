package matcher

import (
	"fmt"
	"sort"
)

const ReasonNotMatched = "Not matched by any negative"

// Term is a search term prepared once for evaluation.
type Term struct {
	Raw        string
	Normalized string
	Tokens     []string
}

func NewTerm(raw string) Term {
	normalized := Normalize(raw)
	return Term{Raw: raw, Normalized: normalized, Tokens: Tokenize(normalized)}
}

// Verdict is the outcome of evaluating one search term.
type Verdict struct {
	Excluded    bool      `json:"excluded"`
	MatchType   MatchType `json:"match_type,omitempty"`
	MatchedRule string    `json:"matched_rule,omitempty"`
	Reason      string    `json:"reason"`
}

func excludedBy(mt MatchType, original string) Verdict {
	return Verdict{
		Excluded:    true,
		MatchType:   mt,
		MatchedRule: original,
		Reason:      fmt.Sprintf("Excluded by %s negative: %s", mt, original),
	}
}

var notMatched = Verdict{Reason: ReasonNotMatched}

// Match prepares raw and evaluates it.
func (ix *Index) Match(raw string) Verdict {
	return ix.Evaluate(NewTerm(raw))
}

// Evaluate checks EXACT, then PHRASE, then BROAD rules. Within a partition
// the earliest rule in input order is reported.
func (ix *Index) Evaluate(t Term) Verdict {
	if len(t.Tokens) == 0 || ix == nil {
		return notMatched
	}
	if original, ok := ix.exact[t.Normalized]; ok {
		return excludedBy(Exact, original)
	}
	if i, ok := ix.firstPhrase(t); ok {
		return excludedBy(Phrase, ix.phrases[i].original)
	}
	if i, ok := ix.firstBroad(t); ok {
		return excludedBy(Broad, ix.broad[i].original)
	}
	return notMatched
}

func (ix *Index) firstPhrase(t Term) (int, bool) {
	if ix.phraseScan == nil {
		for i, p := range ix.phrases {
			if containsPhrase(t.Tokens, p.tokens) {
				return i, true
			}
		}
		return 0, false
	}
	cands := ix.phraseScan.candidates(t.Normalized)
	sort.Ints(cands)
	for _, i := range cands {
		if containsPhrase(t.Tokens, ix.phrases[i].tokens) {
			return i, true
		}
	}
	return 0, false
}

func (ix *Index) firstBroad(t Term) (int, bool) {
	if len(ix.broad) == 0 {
		return 0, false
	}
	set := make(map[string]struct{}, len(t.Tokens))
	var cands []int
	for _, tok := range t.Tokens {
		if _, dup := set[tok]; dup {
			continue
		}
		set[tok] = struct{}{}
		cands = append(cands, ix.broadByToken[tok]...)
	}
	sort.Ints(cands)
	for _, i := range cands {
		if subsetOf(ix.broad[i].tokens, set) {
			return i, true
		}
	}
	return 0, false
}

// containsPhrase reports whether phrase occurs as a contiguous run of tokens.
func containsPhrase(tokens, phrase []string) bool {
	n := len(phrase)
	if n == 0 || n > len(tokens) {
		return false
	}
outer:
	for start := 0; start+n <= len(tokens); start++ {
		for j := range phrase {
			if tokens[start+j] != phrase[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

func subsetOf(sub, set map[string]struct{}) bool {
	if len(sub) > len(set) {
		return false
	}
	for tok := range sub {
		if _, ok := set[tok]; !ok {
			return false
		}
	}
	return true
}
