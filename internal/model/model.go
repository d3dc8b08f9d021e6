package model

import "time"

type NegativeRule struct {
	ID           int64  `json:"id"`
	List         string `json:"list"`
	Keyword      string `json:"keyword"`
	MatchType    string `json:"match_type"`
	Enabled      bool   `json:"enabled"`
	AppliedCount int64  `json:"applied_count"`
}

// SearchTerm is one row of a search term report. Fields holds the raw
// record aligned with the header of the table it came from.
type SearchTerm struct {
	Text        string   `json:"text"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	Cost        float64  `json:"cost"`
	Fields      []string `json:"-"`
}

type Campaign struct {
	Name      string `json:"name" mapstructure:"name"`
	Terms     string `json:"terms" mapstructure:"terms"`
	Negatives string `json:"negatives" mapstructure:"negatives"`
	RuleList  string `json:"rule_list" mapstructure:"rule_list"`
}

type RunStatus string

const (
	RunOK     RunStatus = "ok"
	RunFailed RunStatus = "failed"
)

// FilterRun is the aggregate record of one filtering job.
type FilterRun struct {
	ID            string    `json:"id"`
	Campaign      string    `json:"campaign"`
	Source        string    `json:"source"`
	Status        RunStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	TotalTerms    int       `json:"total_terms"`
	ExcludedTerms int       `json:"excluded_terms"`
	CostPrevented float64   `json:"cost_prevented"`
	Error         string    `json:"error,omitempty"`
}
