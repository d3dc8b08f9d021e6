package matcher

import (
	"strings"

	aho "github.com/petar-dambovaliev/aho-corasick"
)

// phraseAutomatonMin is the phrase partition size from which an
// Aho-Corasick automaton is compiled instead of scanning every rule.
var phraseAutomatonMin = 32

// Rule is one negative keyword as handed over by the loading layer.
type Rule struct {
	Keyword   string `json:"keyword"`
	MatchType string `json:"match_type"`
}

type phraseRule struct {
	tokens   []string
	original string
}

type broadRule struct {
	tokens   map[string]struct{}
	original string
}

// Index is the preprocessed, read-only form of a rule set. It is safe for
// concurrent use by any number of goroutines.
type Index struct {
	exact   map[string]string
	phrases []phraseRule
	broad   []broadRule

	// broadByToken maps the first token of every BROAD rule to the rule
	// positions carrying it, in insertion order.
	broadByToken map[string][]int

	phraseScan *phraseAutomaton
}

// Stats describes the partition sizes of an Index.
type Stats struct {
	Exact  int `json:"exact"`
	Phrase int `json:"phrase"`
	Broad  int `json:"broad"`
	Inert  int `json:"inert"`
}

// BuildIndex preprocesses rules in input order. Rules whose keyword
// normalizes to nothing are skipped. An unknown match type aborts the build
// with an *InvalidMatchTypeError.
func BuildIndex(rules []Rule) (*Index, error) {
	ix, _, err := BuildIndexStats(rules)
	return ix, err
}

// BuildIndexStats is BuildIndex that also reports partition sizes.
func BuildIndexStats(rules []Rule) (*Index, Stats, error) {
	ix := &Index{
		exact:        make(map[string]string),
		broadByToken: make(map[string][]int),
	}
	var st Stats
	for i, r := range rules {
		mt, err := ParseMatchType(r.MatchType)
		if err != nil {
			return nil, Stats{}, &InvalidMatchTypeError{Position: i, Keyword: r.Keyword, Label: r.MatchType}
		}
		normalized := Normalize(r.Keyword)
		tokens := Tokenize(normalized)
		if len(tokens) == 0 {
			st.Inert++
			continue
		}
		switch mt {
		case Exact:
			if _, ok := ix.exact[normalized]; !ok {
				ix.exact[normalized] = r.Keyword
			}
			st.Exact++
		case Phrase:
			ix.phrases = append(ix.phrases, phraseRule{tokens: tokens, original: r.Keyword})
			st.Phrase++
		case Broad:
			set := make(map[string]struct{}, len(tokens))
			for _, tok := range tokens {
				set[tok] = struct{}{}
			}
			ix.broadByToken[tokens[0]] = append(ix.broadByToken[tokens[0]], len(ix.broad))
			ix.broad = append(ix.broad, broadRule{tokens: set, original: r.Keyword})
			st.Broad++
		}
	}
	if len(ix.phrases) >= phraseAutomatonMin {
		ix.phraseScan = newPhraseAutomaton(ix.phrases)
	}
	return ix, st, nil
}

// Len returns the number of active rules across all partitions.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.exact) + len(ix.phrases) + len(ix.broad)
}

// phraseAutomaton finds every phrase rule whose space-delimited text occurs
// in a space-delimited term. Identical phrases share one pattern that points
// at their first rule.
type phraseAutomaton struct {
	automaton aho.AhoCorasick
	ruleOf    []int
}

func newPhraseAutomaton(phrases []phraseRule) *phraseAutomaton {
	seen := make(map[string]struct{}, len(phrases))
	patterns := make([]string, 0, len(phrases))
	ruleOf := make([]int, 0, len(phrases))
	for i, p := range phrases {
		pattern := " " + strings.Join(p.tokens, " ") + " "
		if _, ok := seen[pattern]; ok {
			continue
		}
		seen[pattern] = struct{}{}
		patterns = append(patterns, pattern)
		ruleOf = append(ruleOf, i)
	}
	builder := aho.NewAhoCorasickBuilder(aho.Opts{DFA: true})
	return &phraseAutomaton{automaton: builder.Build(patterns), ruleOf: ruleOf}
}

// candidates returns phrase rule positions found in normalized, unordered.
func (p *phraseAutomaton) candidates(normalized string) []int {
	iter := p.automaton.IterOverlappingByte([]byte(" " + normalized + " "))
	var out []int
	for next := iter.Next(); next != nil; next = iter.Next() {
		out = append(out, p.ruleOf[next.Pattern()])
	}
	return out
}
