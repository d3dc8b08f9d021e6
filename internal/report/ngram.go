package report

import (
	"sort"
	"strings"

	"negfilter/internal/filter"
	"negfilter/internal/matcher"
)

type NGram struct {
	Gram        string  `json:"ngram"`
	WordCount   int     `json:"word_count"`
	Occurrences int     `json:"occurrence_count"`
	Clicks      float64 `json:"clicks"`
	Cost        float64 `json:"cost"`
	Impressions float64 `json:"impressions"`
}

// NGrams aggregates the 1..maxN word n-grams of the terms that were not
// excluded. Each n-gram counts once per term and receives that term's
// metrics. Results are ordered by occurrence count, then n-gram text.
func NGrams(results []filter.Result, maxN int) []NGram {
	if maxN <= 0 {
		maxN = 3
	}
	stats := make(map[string]*NGram)
	for _, r := range results {
		if r.Verdict.Excluded {
			continue
		}
		tokens := matcher.Tokenize(matcher.Normalize(r.Term.Text))
		if len(tokens) == 0 {
			continue
		}
		seen := make(map[string]struct{})
		for n := 1; n <= maxN; n++ {
			for _, gram := range grams(tokens, n) {
				if _, ok := seen[gram]; ok {
					continue
				}
				seen[gram] = struct{}{}
				s, ok := stats[gram]
				if !ok {
					s = &NGram{Gram: gram, WordCount: n}
					stats[gram] = s
				}
				s.Occurrences++
				s.Clicks += r.Term.Clicks
				s.Cost += r.Term.Cost
				s.Impressions += r.Term.Impressions
			}
		}
	}
	out := make([]NGram, 0, len(stats))
	for _, s := range stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Gram < out[j].Gram
	})
	return out
}

func grams(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}
