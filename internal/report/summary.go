package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"negfilter/internal/filter"
)

// DefaultCostPerTerm is the spend assumed per term when a report has no
// cost column.
const DefaultCostPerTerm = 2.5

type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
)

type RiskTerm struct {
	Term        string    `json:"term"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	RiskLevel   RiskLevel `json:"risk_level"`
}

type Metrics struct {
	CostWastePrevented      float64    `json:"cost_waste_prevented"`
	TotalRemainingSpend     float64    `json:"total_remaining_spend"`
	CostReductionPercentage float64    `json:"cost_reduction_percentage"`
	QualityScore            float64    `json:"quality_score"`
	AvgClicksExcludedTerm   *float64   `json:"avg_clicks_excluded_term,omitempty"`
	ImpressionsEliminated   int64      `json:"impressions_eliminated"`
	HighRiskTerms           []RiskTerm `json:"high_risk_terms"`
	ActionScore             int        `json:"action_score"`
}

type Summary struct {
	Timestamp          time.Time     `json:"timestamp"`
	TotalTermsAnalyzed int           `json:"total_terms_analyzed"`
	TermsExcluded      int           `json:"terms_excluded"`
	TermsRemaining     int           `json:"terms_remaining"`
	Counts             filter.Counts `json:"counts"`
	Metrics            Metrics       `json:"metrics"`
	ActionRequired     bool          `json:"action_required"`
	Recommendation     []string      `json:"recommendation"`
}

type SummaryOptions struct {
	// HasCost is false when the report carried no cost column; spend is
	// then estimated with CostPerTerm.
	HasCost     bool
	CostPerTerm float64
	Now         time.Time
}

// Summarize computes the executive summary over all filter results.
func Summarize(results []filter.Result, opts SummaryOptions) Summary {
	if opts.CostPerTerm <= 0 {
		opts.CostPerTerm = DefaultCostPerTerm
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	excluded := filter.Excluded(results)
	remaining := filter.Remaining(results)
	counts := filter.CountResults(results)

	var m Metrics
	m.CostWastePrevented = round(spend(excluded, opts), 2)
	m.TotalRemainingSpend = round(spend(remaining, opts), 2)
	if m.TotalRemainingSpend > 0 {
		m.CostReductionPercentage = round(m.CostWastePrevented/(m.CostWastePrevented+m.TotalRemainingSpend)*100, 1)
	}
	if len(results) > 0 {
		m.QualityScore = round(float64(len(remaining))/float64(len(results))*100, 1)
	}
	if len(excluded) > 0 {
		var clicks float64
		for _, r := range excluded {
			clicks += r.Term.Clicks
			m.ImpressionsEliminated += int64(r.Term.Impressions)
		}
		avg := round(clicks/float64(len(excluded)), 1)
		m.AvgClicksExcludedTerm = &avg
	}
	m.HighRiskTerms = highRiskTerms(remaining)
	m.ActionScore = actionScore(m)

	return Summary{
		Timestamp:          opts.Now.UTC(),
		TotalTermsAnalyzed: counts.Total,
		TermsExcluded:      counts.Excluded,
		TermsRemaining:     counts.Remaining,
		Counts:             counts,
		Metrics:            m,
		ActionRequired:     m.ActionScore >= 60,
		Recommendation:     recommend(m),
	}
}

func spend(results []filter.Result, opts SummaryOptions) float64 {
	if !opts.HasCost {
		return float64(len(results)) * opts.CostPerTerm
	}
	var total float64
	for _, r := range results {
		total += r.Term.Cost
	}
	return total
}

// highRiskTerms flags remaining terms with no clicks whose impressions are
// above the 75th percentile, CRITICAL above the 90th. At most ten are
// returned, most impressions first.
func highRiskTerms(remaining []filter.Result) []RiskTerm {
	out := []RiskTerm{}
	if len(remaining) == 0 {
		return out
	}
	imps := make([]float64, len(remaining))
	for i, r := range remaining {
		imps[i] = r.Term.Impressions
	}
	q75 := quantile(imps, 0.75)
	q90 := quantile(imps, 0.90)
	for _, r := range remaining {
		if r.Term.Clicks != 0 || r.Term.Impressions <= q75 {
			continue
		}
		level := RiskHigh
		if r.Term.Impressions > q90 {
			level = RiskCritical
		}
		out = append(out, RiskTerm{
			Term:        r.Term.Text,
			Impressions: int64(r.Term.Impressions),
			Clicks:      int64(r.Term.Clicks),
			RiskLevel:   level,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Impressions > out[j].Impressions })
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}

// quantile uses linear interpolation between closest ranks.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func actionScore(m Metrics) int {
	score := 10.0
	switch {
	case m.CostReductionPercentage > 20:
		score = 40
	case m.CostReductionPercentage > 10:
		score = 25
	}
	score += math.Min(30, m.QualityScore/100*30)
	if n := len(m.HighRiskTerms); n > 0 {
		score += math.Min(30, float64(n)*3)
	}
	return int(math.Min(100, math.Round(score)))
}

func recommend(m Metrics) []string {
	var out []string
	if m.CostWastePrevented > 1000 {
		out = append(out, fmt.Sprintf("URGENT: %s in preventable spend identified", money(m.CostWastePrevented, 0)))
	}
	if n := len(m.HighRiskTerms); n > 5 {
		out = append(out, fmt.Sprintf("%d terms actively draining budget - implement negatives immediately", n))
	}
	if m.CostReductionPercentage > 30 {
		out = append(out, "Aggressive negative keyword implementation will significantly improve ROI")
	}
	if len(out) == 0 {
		out = append(out, "Continue current strategy - campaigns are well-optimized")
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
