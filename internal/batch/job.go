package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"negfilter/internal/filter"
	"negfilter/internal/ingest"
	"negfilter/internal/matcher"
	"negfilter/internal/model"
	"negfilter/internal/report"
	"negfilter/internal/store"
)

var (
	ErrNoTerms = errors.New("no search terms")
	ErrNoRules = errors.New("no negative keywords")
)

// Outputs names the files a job writes. Empty paths are skipped.
type Outputs struct {
	Review  string `json:"review,omitempty"`
	Audit   string `json:"audit,omitempty"`
	NGrams  string `json:"ngrams,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Job filters one search term report. Rules come from NegativesPath when
// set, otherwise from the stored RuleList.
type Job struct {
	Name          string
	Source        string
	TermsPath     string
	NegativesPath string
	RuleList      string
	Outputs       Outputs
}

type Outcome struct {
	RunID      string          `json:"run_id"`
	Job        string          `json:"job"`
	Rules      int             `json:"rules"`
	Index      matcher.Stats   `json:"index"`
	Coerced    int             `json:"coerced_match_types"`
	Summary    report.Summary  `json:"summary"`
	Outputs    Outputs         `json:"outputs"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []filter.Result `json:"-"`
}

// Executor runs jobs. Store may be nil, in which case jobs must name a
// negatives file and no run history is kept.
type Executor struct {
	Store        *store.Store
	MaxFileBytes int64
	EvalWorkers  int
	CostPerTerm  float64
	NGramMax     int
	Now          func() time.Time
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Executor) Execute(ctx context.Context, job Job) (*Outcome, error) {
	out := &Outcome{
		RunID:     uuid.NewString(),
		Job:       job.Name,
		StartedAt: e.now().UTC(),
	}
	logger := log.WithFields(log.Fields{"job": job.Name, "run": out.RunID})
	err := e.execute(ctx, job, out, logger)
	out.FinishedAt = e.now().UTC()

	if e.Store != nil {
		run := model.FilterRun{
			ID:            out.RunID,
			Campaign:      job.Name,
			Source:        job.Source,
			Status:        model.RunOK,
			StartedAt:     out.StartedAt,
			FinishedAt:    out.FinishedAt,
			TotalTerms:    out.Summary.TotalTermsAnalyzed,
			ExcludedTerms: out.Summary.TermsExcluded,
			CostPrevented: out.Summary.Metrics.CostWastePrevented,
		}
		if err != nil {
			run.Status = model.RunFailed
			run.Error = err.Error()
		}
		if rerr := e.Store.RecordRun(context.WithoutCancel(ctx), run); rerr != nil {
			logger.WithError(rerr).Warn("batch: record run failed")
		}
	}
	if err != nil {
		logger.WithError(err).Error("batch: job failed")
		return out, err
	}
	logger.WithFields(log.Fields{
		"terms":    out.Summary.TotalTermsAnalyzed,
		"excluded": out.Summary.TermsExcluded,
		"took":     out.FinishedAt.Sub(out.StartedAt).Round(time.Millisecond),
	}).Info("batch: job finished")
	return out, nil
}

func (e *Executor) execute(ctx context.Context, job Job, out *Outcome, logger *log.Entry) error {
	if strings.TrimSpace(job.TermsPath) == "" {
		return fmt.Errorf("%w: job has no terms file", ErrNoTerms)
	}
	if err := ingest.CheckFile(job.TermsPath, e.MaxFileBytes); err != nil {
		return err
	}
	rules, err := e.loadRules(ctx, job, out)
	if err != nil {
		return err
	}
	ix, stats, err := matcher.BuildIndexStats(rules)
	if err != nil {
		return err
	}
	out.Rules = len(rules)
	out.Index = stats

	terms, err := ingest.LoadSearchTerms(job.TermsPath, e.MaxFileBytes)
	if err != nil {
		return err
	}
	if len(terms.Terms) == 0 {
		return fmt.Errorf("%w: %s is empty after loading", ErrNoTerms, job.TermsPath)
	}
	logger.WithFields(log.Fields{
		"terms": len(terms.Terms),
		"rules": len(rules),
		"inert": stats.Inert,
	}).Info("batch: filtering")

	results, err := filter.Run(ctx, ix, terms.Terms, filter.Options{Workers: e.EvalWorkers, Now: e.Now})
	if err != nil {
		return err
	}
	out.Results = results
	out.Summary = report.Summarize(results, report.SummaryOptions{
		HasCost:     terms.HasCost,
		CostPerTerm: e.CostPerTerm,
		Now:         out.StartedAt,
	})

	if err := e.writeOutputs(job.Outputs, terms.Header, results, out.Summary); err != nil {
		return err
	}
	out.Outputs = job.Outputs

	if job.NegativesPath == "" && e.Store != nil {
		if err := e.Store.IncrementAppliedCounts(ctx, job.RuleList, filter.AppliedCounts(results)); err != nil {
			return fmt.Errorf("update applied counts: %w", err)
		}
	}
	return nil
}

func (e *Executor) loadRules(ctx context.Context, job Job, out *Outcome) ([]matcher.Rule, error) {
	if job.NegativesPath != "" {
		nt, err := ingest.LoadNegatives(job.NegativesPath, e.MaxFileBytes)
		if err != nil {
			return nil, err
		}
		if len(nt.Rules) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoRules, job.NegativesPath)
		}
		out.Coerced = nt.Coerced
		return nt.Rules, nil
	}
	if e.Store == nil {
		return nil, fmt.Errorf("%w: job names neither a negatives file nor a rule store", ErrNoRules)
	}
	stored, err := e.Store.ListEnabledRules(ctx, job.RuleList)
	if err != nil {
		return nil, fmt.Errorf("load rule list: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w in list %q", ErrNoRules, job.RuleList)
	}
	return store.MatcherRules(stored), nil
}

func (e *Executor) writeOutputs(o Outputs, header []string, results []filter.Result, s report.Summary) error {
	if o.Review != "" {
		remaining := filter.Remaining(results)
		if err := report.WriteFile(o.Review, func(w io.Writer) error {
			return report.WriteResults(w, header, remaining)
		}); err != nil {
			return err
		}
	}
	if o.Audit != "" {
		if err := report.WriteFile(o.Audit, func(w io.Writer) error {
			return report.WriteResults(w, header, results)
		}); err != nil {
			return err
		}
	}
	if o.NGrams != "" {
		grams := report.NGrams(results, e.NGramMax)
		if err := report.WriteFile(o.NGrams, func(w io.Writer) error {
			return report.WriteNGrams(w, grams)
		}); err != nil {
			return err
		}
	}
	if o.Summary != "" {
		if err := report.WriteFile(o.Summary, func(w io.Writer) error {
			return report.WriteJSON(w, s)
		}); err != nil {
			return err
		}
	}
	return nil
}

// OutputsFor lays out every output of a job named name under dir, stamped
// with at.
func OutputsFor(dir, name string, at time.Time) Outputs {
	prefix := filepath.Join(dir, fileSafe(name)+"_"+at.Format("20060102_150405"))
	return Outputs{
		Review:  prefix + "_review.csv",
		Audit:   prefix + "_audit.csv",
		NGrams:  prefix + "_ngrams.csv",
		Summary: prefix + "_summary.json",
	}
}

// FileJob builds a job for a term report dropped into a watched folder.
func FileJob(termsPath, ruleList, outputDir string, at time.Time) Job {
	name := strings.TrimSuffix(filepath.Base(termsPath), filepath.Ext(termsPath))
	return Job{
		Name:      name,
		Source:    "watch",
		TermsPath: termsPath,
		RuleList:  ruleList,
		Outputs:   OutputsFor(outputDir, name, at),
	}
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
}
