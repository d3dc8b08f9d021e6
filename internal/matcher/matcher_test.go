package matcher

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Steps(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"   ":                 "",
		"RUNNING   Shoes":     "running shoes",
		"\trunning\n shoes  ": "running shoes",
		`"running shoes"`:     "running shoes",
		`'running shoes'`:     "running shoes",
		"[running shoes]":     "running shoes",
		`"  running shoes "`:  "running shoes",
		`"`:                   `"`,
		`""`:                  "",
		`"running shoes`:      `"running shoes`,
		`"running shoes]`:     `"running shoes]`,
		`""nested""`:          `"nested"`,
		"kids' shoes":         "kids' shoes",
		"  [ Mixed Case ]  ":  "mixed case",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Running Shoes",
		"  buy   RUNNING shoes online ",
		`"running shoes"`,
		"[kids]",
		"'a'",
		"kids' shoes",
		"x",
		"",
		"\t\t",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestTokenize(t *testing.T) {
	assert.Nil(t, Tokenize(""))
	assert.Equal(t, []string{"kids'", "shoes"}, Tokenize(Normalize("kids' shoes")))
	assert.Equal(t, []string{"buy", "running", "shoes"}, Tokenize(Normalize(" Buy  running SHOES ")))
}

func TestParseMatchType(t *testing.T) {
	for _, label := range []string{"exact", " Phrase ", "BROAD"} {
		mt, err := ParseMatchType(label)
		require.NoError(t, err)
		assert.True(t, mt.Valid())
	}
	_, err := ParseMatchType("modified broad")
	assert.ErrorIs(t, err, ErrInvalidMatchType)
	_, err = ParseMatchType("")
	assert.ErrorIs(t, err, ErrInvalidMatchType)
}

func TestBuildIndex_InvalidMatchType(t *testing.T) {
	_, err := BuildIndex([]Rule{
		{Keyword: "ok", MatchType: "EXACT"},
		{Keyword: "bad", MatchType: "NEGATIVE"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMatchType))

	var mtErr *InvalidMatchTypeError
	require.ErrorAs(t, err, &mtErr)
	assert.Equal(t, 1, mtErr.Position)
	assert.Equal(t, "bad", mtErr.Keyword)
	assert.Equal(t, "NEGATIVE", mtErr.Label)
}

func TestBuildIndex_Stats(t *testing.T) {
	ix, st, err := BuildIndexStats([]Rule{
		{Keyword: "a", MatchType: "exact"},
		{Keyword: "A", MatchType: "EXACT"},
		{Keyword: "b c", MatchType: "phrase"},
		{Keyword: "d", MatchType: "broad"},
		{Keyword: "   ", MatchType: "BROAD"},
		{Keyword: `""`, MatchType: "PHRASE"},
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Exact: 2, Phrase: 1, Broad: 1, Inert: 2}, st)
	assert.Equal(t, 3, ix.Len())
}

func mustIndex(t *testing.T, rules ...Rule) *Index {
	t.Helper()
	ix, err := BuildIndex(rules)
	require.NoError(t, err)
	return ix
}

func TestEvaluate_ExactSemantics(t *testing.T) {
	ix := mustIndex(t, Rule{Keyword: "running shoes", MatchType: "EXACT"})

	v := ix.Match("running shoes")
	assert.True(t, v.Excluded)
	assert.Equal(t, Exact, v.MatchType)
	assert.Equal(t, "running shoes", v.MatchedRule)
	assert.Equal(t, "Excluded by EXACT negative: running shoes", v.Reason)

	assert.False(t, ix.Match("buy running shoes").Excluded)
}

func TestEvaluate_PhraseSemantics(t *testing.T) {
	ix := mustIndex(t, Rule{Keyword: "running shoes", MatchType: "PHRASE"})

	v := ix.Match("buy running shoes online")
	assert.True(t, v.Excluded)
	assert.Equal(t, Phrase, v.MatchType)
	assert.Equal(t, "Excluded by PHRASE negative: running shoes", v.Reason)

	assert.False(t, ix.Match("shoes for running").Excluded)
	assert.False(t, ix.Match("running").Excluded)
}

func TestEvaluate_BroadSemantics(t *testing.T) {
	ix := mustIndex(t, Rule{Keyword: "running shoes", MatchType: "BROAD"})

	v := ix.Match("shoes for running")
	assert.True(t, v.Excluded)
	assert.Equal(t, Broad, v.MatchType)
	assert.False(t, ix.Match("running sandals").Excluded)
	assert.True(t, ix.Match("shoes shoes running running").Excluded)
}

func TestEvaluate_PriorityOrder(t *testing.T) {
	all := mustIndex(t,
		Rule{Keyword: "running shoes", MatchType: "BROAD"},
		Rule{Keyword: "running shoes", MatchType: "PHRASE"},
		Rule{Keyword: "running shoes", MatchType: "EXACT"},
	)
	assert.Equal(t, Exact, all.Match("running shoes").MatchType)
	assert.Equal(t, Phrase, all.Match("cheap running shoes").MatchType)
	assert.Equal(t, Broad, all.Match("shoes for running").MatchType)

	noExact := mustIndex(t,
		Rule{Keyword: "shoes", MatchType: "BROAD"},
		Rule{Keyword: "running shoes", MatchType: "PHRASE"},
	)
	assert.Equal(t, Phrase, noExact.Match("running shoes").MatchType)
}

func TestEvaluate_FirstRuleWinsWithinPartition(t *testing.T) {
	ix := mustIndex(t,
		Rule{Keyword: "Running Shoes", MatchType: "EXACT"},
		Rule{Keyword: "running shoes", MatchType: "EXACT"},
		Rule{Keyword: "shoes online", MatchType: "PHRASE"},
		Rule{Keyword: "running", MatchType: "PHRASE"},
		Rule{Keyword: "zebra kids", MatchType: "BROAD"},
		Rule{Keyword: "kids", MatchType: "BROAD"},
		Rule{Keyword: "bike kids", MatchType: "BROAD"},
	)
	assert.Equal(t, "Running Shoes", ix.Match("running shoes").MatchedRule)
	assert.Equal(t, "shoes online", ix.Match("running shoes online").MatchedRule)
	assert.Equal(t, "kids", ix.Match("kids bike").MatchedRule)
	assert.Equal(t, "zebra kids", ix.Match("kids zebra bike").MatchedRule)
}

func TestEvaluate_EmptyTermNeverExcluded(t *testing.T) {
	ix := mustIndex(t,
		Rule{Keyword: "a", MatchType: "BROAD"},
		Rule{Keyword: "a", MatchType: "PHRASE"},
	)
	for _, term := range []string{"", "   ", `""`, "[]", "''"} {
		v := ix.Match(term)
		assert.False(t, v.Excluded, "term %q", term)
		assert.Equal(t, ReasonNotMatched, v.Reason)
		assert.Empty(t, v.MatchType)
	}
}

func TestEvaluate_InertRulesNeverMatch(t *testing.T) {
	ix := mustIndex(t,
		Rule{Keyword: "", MatchType: "EXACT"},
		Rule{Keyword: "  ", MatchType: "PHRASE"},
		Rule{Keyword: "[]", MatchType: "BROAD"},
	)
	assert.Equal(t, 0, ix.Len())
	assert.False(t, ix.Match("anything at all").Excluded)
}

func TestEvaluate_CaseAndWhitespaceInsensitive(t *testing.T) {
	for _, mt := range []string{"EXACT", "PHRASE", "BROAD"} {
		ix := mustIndex(t, Rule{Keyword: "running shoes", MatchType: mt})
		assert.Equal(t, ix.Match("running shoes"), ix.Match("RUNNING   Shoes"), mt)
	}
}

func TestEvaluate_QuotedKeyword(t *testing.T) {
	assert.Equal(t, Normalize("running shoes"), Normalize(`"running shoes"`))
	ix := mustIndex(t, Rule{Keyword: `"running shoes"`, MatchType: "EXACT"})
	v := ix.Match("Running Shoes")
	assert.True(t, v.Excluded)
	assert.Equal(t, `"running shoes"`, v.MatchedRule)
}

func TestEvaluate_PunctuationIsLiteral(t *testing.T) {
	ix := mustIndex(t, Rule{Keyword: "Kids", MatchType: "BROAD"})
	assert.False(t, ix.Match("buy kids' shoes").Excluded)
	assert.True(t, ix.Match("buy kids shoes").Excluded)
}

func TestEvaluate_Scenario(t *testing.T) {
	ix := mustIndex(t,
		Rule{Keyword: "running shoes", MatchType: "EXACT"},
		Rule{Keyword: "kids", MatchType: "BROAD"},
	)
	got := []Verdict{ix.Match("running shoes"), ix.Match("kids bike"), ix.Match("adult bike")}
	assert.True(t, got[0].Excluded)
	assert.Equal(t, Exact, got[0].MatchType)
	assert.True(t, got[1].Excluded)
	assert.Equal(t, Broad, got[1].MatchType)
	assert.False(t, got[2].Excluded)
	assert.Equal(t, ReasonNotMatched, got[2].Reason)
}

func TestEvaluate_NilIndex(t *testing.T) {
	var ix *Index
	assert.False(t, ix.Match("anything").Excluded)
	assert.Equal(t, 0, ix.Len())
}

func TestContainsPhrase(t *testing.T) {
	tokens := []string{"a", "b", "a", "b", "c"}
	assert.True(t, containsPhrase(tokens, []string{"a", "b", "c"}))
	assert.True(t, containsPhrase(tokens, []string{"b", "a"}))
	assert.False(t, containsPhrase(tokens, []string{"a", "c"}))
	assert.False(t, containsPhrase(tokens, []string{"a", "b", "a", "b", "c", "d"}))
	assert.False(t, containsPhrase(tokens, nil))
}

// The automaton path must agree with the plain sliding-window scan.
func TestEvaluate_PhraseAutomatonAgreesWithScan(t *testing.T) {
	var rules []Rule
	for i := 0; i < 40; i++ {
		rules = append(rules, Rule{Keyword: fmt.Sprintf("w%d w%d", i, i+1), MatchType: "PHRASE"})
	}
	rules = append(rules,
		Rule{Keyword: "running shoes", MatchType: "PHRASE"},
		Rule{Keyword: "Running  Shoes", MatchType: "PHRASE"},
		Rule{Keyword: "shoes", MatchType: "PHRASE"},
		Rule{Keyword: "a a", MatchType: "PHRASE"},
	)
	fast := mustIndex(t, rules...)
	require.NotNil(t, fast.phraseScan)

	prev := phraseAutomatonMin
	phraseAutomatonMin = len(rules) + 1
	slow := mustIndex(t, rules...)
	phraseAutomatonMin = prev
	require.Nil(t, slow.phraseScan)

	terms := []string{
		"running shoes",
		"buy running shoes",
		"cheap shoes",
		"w3 w4 w5",
		"w39 w40",
		"w4 w3",
		"a a a",
		"aa a",
		"w1w2",
		"shoes running",
		"nothing here",
	}
	for _, term := range terms {
		assert.Equal(t, slow.Match(term), fast.Match(term), "term %q", term)
	}
	assert.Equal(t, "running shoes", fast.Match("buy running shoes").MatchedRule)
	assert.Equal(t, "w3 w4", fast.Match("w3 w4 w5").MatchedRule)
	assert.False(t, fast.Match("aa a").Excluded)
}

func TestEvaluate_ConcurrentUse(t *testing.T) {
	rules := []Rule{
		{Keyword: "running shoes", MatchType: "EXACT"},
		{Keyword: "free", MatchType: "BROAD"},
	}
	for i := 0; i < 40; i++ {
		rules = append(rules, Rule{Keyword: fmt.Sprintf("brand%d shoes", i), MatchType: "PHRASE"})
	}
	ix, st, err := BuildIndexStats(rules)
	require.NoError(t, err)
	require.Equal(t, 40, st.Phrase)
	require.NotNil(t, ix.phraseScan)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				n := (g*200 + i) % 40
				v := ix.Match(fmt.Sprintf("cheap brand%d shoes sale", n))
				assert.True(t, v.Excluded)
				assert.Equal(t, Phrase, v.MatchType)
				assert.Equal(t, fmt.Sprintf("brand%d shoes", n), v.MatchedRule)
				assert.True(t, ix.Match("free shipping").Excluded)
				assert.False(t, ix.Match("paid shipping").Excluded)
				assert.False(t, ix.Match("shoes brand1").Excluded)
			}
		}(g)
	}
	wg.Wait()
}

func BenchmarkEvaluate(b *testing.B) {
	var rules []Rule
	for i := 0; i < 500; i++ {
		rules = append(rules,
			Rule{Keyword: fmt.Sprintf("brand%d shoes", i), MatchType: "PHRASE"},
			Rule{Keyword: fmt.Sprintf("cheap%d", i), MatchType: "BROAD"},
		)
	}
	ix, err := BuildIndex(rules)
	if err != nil {
		b.Fatal(err)
	}
	term := NewTerm("buy brand499 shoes online cheap499")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Evaluate(term)
	}
}
