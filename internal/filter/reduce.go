package filter

import "negfilter/internal/matcher"

type Counts struct {
	Total     int                       `json:"total"`
	Excluded  int                       `json:"excluded"`
	Remaining int                       `json:"remaining"`
	ByType    map[matcher.MatchType]int `json:"by_type"`
}

// RuleKey identifies a rule by the original keyword reported in verdicts.
type RuleKey struct {
	Keyword   string
	MatchType matcher.MatchType
}

func Remaining(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if !r.Verdict.Excluded {
			out = append(out, r)
		}
	}
	return out
}

func Excluded(results []Result) []Result {
	out := make([]Result, 0)
	for _, r := range results {
		if r.Verdict.Excluded {
			out = append(out, r)
		}
	}
	return out
}

func CountResults(results []Result) Counts {
	c := Counts{Total: len(results), ByType: map[matcher.MatchType]int{}}
	for _, r := range results {
		if r.Verdict.Excluded {
			c.Excluded++
			c.ByType[r.Verdict.MatchType]++
		}
	}
	c.Remaining = c.Total - c.Excluded
	return c
}

// AppliedCounts tallies how many terms each rule excluded.
func AppliedCounts(results []Result) map[RuleKey]int64 {
	out := make(map[RuleKey]int64)
	for _, r := range results {
		if !r.Verdict.Excluded {
			continue
		}
		out[RuleKey{Keyword: r.Verdict.MatchedRule, MatchType: r.Verdict.MatchType}]++
	}
	return out
}
