package filter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"negfilter/internal/matcher"
	"negfilter/internal/model"
)

func terms(texts ...string) []model.SearchTerm {
	out := make([]model.SearchTerm, len(texts))
	for i, s := range texts {
		out[i] = model.SearchTerm{Text: s}
	}
	return out
}

func TestRun_ScenarioKeepsOrder(t *testing.T) {
	ix, err := matcher.BuildIndex([]matcher.Rule{
		{Keyword: "running shoes", MatchType: "EXACT"},
		{Keyword: "kids", MatchType: "BROAD"},
	})
	require.NoError(t, err)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := Run(context.Background(), ix, terms("running shoes", "kids bike", "adult bike"), Options{
		Workers:   2,
		ChunkSize: 1,
		Now:       func() time.Time { return fixed },
	})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, matcher.Exact, res[0].Verdict.MatchType)
	assert.Equal(t, matcher.Broad, res[1].Verdict.MatchType)
	assert.False(t, res[2].Verdict.Excluded)
	assert.Equal(t, "adult bike", res[2].Term.Text)
	assert.Equal(t, fixed, res[2].CheckedAt)
}

func TestRun_LargeBatchMatchesSequential(t *testing.T) {
	ix, err := matcher.BuildIndex([]matcher.Rule{
		{Keyword: "free", MatchType: "BROAD"},
		{Keyword: "jobs near", MatchType: "PHRASE"},
	})
	require.NoError(t, err)
	var in []model.SearchTerm
	for i := 0; i < 5000; i++ {
		switch i % 3 {
		case 0:
			in = append(in, model.SearchTerm{Text: fmt.Sprintf("free item %d", i)})
		case 1:
			in = append(in, model.SearchTerm{Text: fmt.Sprintf("jobs near %d", i)})
		default:
			in = append(in, model.SearchTerm{Text: fmt.Sprintf("near jobs %d", i)})
		}
	}
	res, err := Run(context.Background(), ix, in, Options{Workers: 4, ChunkSize: 64})
	require.NoError(t, err)
	for i, r := range res {
		assert.Equal(t, ix.Match(in[i].Text), r.Verdict, "term %d", i)
	}
	c := CountResults(res)
	assert.Equal(t, 5000, c.Total)
	assert.Equal(t, 1667, c.ByType[matcher.Broad])
	assert.Equal(t, 3334, c.Excluded)
	assert.Equal(t, 1667, c.ByType[matcher.Phrase])
	assert.Equal(t, 1666, c.Remaining)
}

func TestRun_Canceled(t *testing.T) {
	ix, err := matcher.BuildIndex(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, ix, terms("a", "b"), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Empty(t *testing.T) {
	ix, err := matcher.BuildIndex(nil)
	require.NoError(t, err)
	res, err := Run(context.Background(), ix, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestReductions(t *testing.T) {
	ix, err := matcher.BuildIndex([]matcher.Rule{
		{Keyword: "free", MatchType: "BROAD"},
		{Keyword: "cheap", MatchType: "EXACT"},
	})
	require.NoError(t, err)
	res, err := Run(context.Background(), ix, terms("free a", "free b", "cheap", "fine"), Options{})
	require.NoError(t, err)

	assert.Len(t, Excluded(res), 3)
	rem := Remaining(res)
	require.Len(t, rem, 1)
	assert.Equal(t, "fine", rem[0].Term.Text)
	assert.Equal(t, map[RuleKey]int64{
		{Keyword: "free", MatchType: matcher.Broad}:  2,
		{Keyword: "cheap", MatchType: matcher.Exact}: 1,
	}, AppliedCounts(res))
}
