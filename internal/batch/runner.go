package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"negfilter/internal/model"
	"negfilter/internal/report"
)

var ErrNoCampaigns = errors.New("no campaigns configured")

const lastReportSetting = "last_batch_report"

type CampaignResult struct {
	Campaign      string          `json:"campaign"`
	RunID         string          `json:"run_id,omitempty"`
	Status        model.RunStatus `json:"status"`
	TotalTerms    int             `json:"total_terms"`
	ExcludedTerms int             `json:"excluded_terms"`
	CostPrevented float64         `json:"cost_prevented"`
	Outputs       Outputs         `json:"outputs"`
	Error         string          `json:"error,omitempty"`
}

// Report summarises one batch over all configured campaigns.
type Report struct {
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Campaigns   int              `json:"campaigns"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	SuccessRate float64          `json:"success_rate"`
	Results     []CampaignResult `json:"results"`
	Path        string           `json:"-"`
}

type Progress struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Running int `json:"running"`
}

// Runner filters every configured campaign in one pass. It satisfies
// scheduler.Runner.
type Runner struct {
	Executor   *Executor
	Campaigns  []model.Campaign
	OutputDir  string
	MaxWorkers int

	mu       sync.Mutex
	progress Progress
	last     *Report
}

func (r *Runner) Run(ctx context.Context) error {
	_, err := r.RunReport(ctx)
	return err
}

// RunReport runs every campaign, at most MaxWorkers at a time. A failing
// campaign does not stop the others; the returned error reports how many
// failed.
func (r *Runner) RunReport(ctx context.Context) (*Report, error) {
	if len(r.Campaigns) == 0 {
		return nil, ErrNoCampaigns
	}
	started := r.Executor.now()
	rep := &Report{
		StartedAt: started.UTC(),
		Campaigns: len(r.Campaigns),
		Results:   make([]CampaignResult, len(r.Campaigns)),
	}
	r.setProgress(Progress{Total: len(r.Campaigns)})

	var g errgroup.Group
	workers := r.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, c := range r.Campaigns {
		g.Go(func() error {
			r.update(func(p *Progress) { p.Running++ })
			res := r.runCampaign(ctx, c, started)
			rep.Results[i] = res
			r.update(func(p *Progress) {
				p.Running--
				p.Done++
				if res.Status == model.RunFailed {
					p.Failed++
				}
			})
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range rep.Results {
		if res.Status == model.RunOK {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}
	rep.SuccessRate = float64(rep.Succeeded) / float64(rep.Campaigns) * 100
	rep.FinishedAt = r.Executor.now().UTC()

	rep.Path = filepath.Join(r.OutputDir, "batch_report_"+started.Format("20060102_150405")+".json")
	if err := report.WriteFile(rep.Path, func(w io.Writer) error { return report.WriteJSON(w, rep) }); err != nil {
		return rep, fmt.Errorf("write batch report: %w", err)
	}
	if st := r.Executor.Store; st != nil {
		if err := st.SetSetting(context.WithoutCancel(ctx), lastReportSetting, rep.Path); err != nil {
			log.WithError(err).Warn("batch: remember last report failed")
		}
	}

	r.mu.Lock()
	r.last = rep
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"campaigns": rep.Campaigns,
		"failed":    rep.Failed,
		"report":    rep.Path,
	}).Info("batch: finished")
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if rep.Failed > 0 {
		return rep, fmt.Errorf("%d of %d campaigns failed", rep.Failed, rep.Campaigns)
	}
	return rep, nil
}

func (r *Runner) runCampaign(ctx context.Context, c model.Campaign, at time.Time) CampaignResult {
	job := Job{
		Name:          c.Name,
		Source:        "batch",
		TermsPath:     c.Terms,
		NegativesPath: c.Negatives,
		RuleList:      c.RuleList,
		Outputs:       OutputsFor(r.OutputDir, c.Name, at),
	}
	res := CampaignResult{Campaign: c.Name, Status: model.RunOK}
	out, err := r.Executor.Execute(ctx, job)
	if out != nil {
		res.RunID = out.RunID
		res.TotalTerms = out.Summary.TotalTermsAnalyzed
		res.ExcludedTerms = out.Summary.TermsExcluded
		res.CostPrevented = out.Summary.Metrics.CostWastePrevented
		res.Outputs = out.Outputs
	}
	if err != nil {
		res.Status = model.RunFailed
		res.Error = err.Error()
	}
	return res
}

func (r *Runner) setProgress(p Progress) {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
}

func (r *Runner) update(fn func(*Progress)) {
	r.mu.Lock()
	fn(&r.progress)
	r.mu.Unlock()
}

func (r *Runner) LastProgress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// LastReport returns the report of the most recent completed batch, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
