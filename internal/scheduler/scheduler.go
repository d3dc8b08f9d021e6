package scheduler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type Runner interface {
	Run(context.Context) error
}

type Scheduler struct {
	dailyHHMM string
	cooldown  time.Duration
	runner    Runner
	mu        sync.Mutex
	running   bool
	state     RunState
	now       func() time.Time
}

// New returns a scheduler that runs runner daily at dailyHHMM. Manual runs
// are refused within cooldown of the previous completion.
func New(dailyHHMM string, cooldown time.Duration, runner Runner) *Scheduler {
	return &Scheduler{dailyHHMM: dailyHHMM, cooldown: cooldown, runner: runner, now: time.Now}
}

type RunState struct {
	Running         bool      `json:"running"`
	CurrentSource   string    `json:"current_source"`
	StartedAt       time.Time `json:"started_at"`
	LastCompletedAt time.Time `json:"last_completed_at"`
	LastDurationMS  int64     `json:"last_duration_ms"`
	LastError       string    `json:"last_error"`
	LastSource      string    `json:"last_source"`
	NextRunAt       time.Time `json:"next_run_at"`
}

func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			next, err := nextRun(s.now(), s.dailyHHMM)
			if err != nil {
				log.WithError(err).WithField("daily_time", s.dailyHHMM).Error("scheduler: invalid daily time")
				return
			}
			s.mu.Lock()
			s.state.NextRunAt = next
			s.mu.Unlock()
			wait := time.Until(next)
			if wait < 0 {
				wait = 0
			}
			log.WithField("next", next.Format(time.RFC3339)).Info("scheduler: next batch scheduled")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if err := s.run(ctx, "scheduled"); err != nil {
				log.WithError(err).Warn("scheduler: batch run error")
			}
		}
	}()
}

func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.run(ctx, "manual")
}

func (s *Scheduler) run(ctx context.Context, source string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrBatchAlreadyRunning
	}
	if !s.state.LastCompletedAt.IsZero() && source != "scheduled" {
		if s.now().Sub(s.state.LastCompletedAt) < s.cooldown {
			s.mu.Unlock()
			return ErrBatchCooldown
		}
	}
	s.running = true
	s.state.Running = true
	s.state.CurrentSource = source
	s.state.StartedAt = s.now()
	s.mu.Unlock()

	logger := log.WithField("source", source)
	logger.Info("scheduler: batch started")
	start := s.now()
	err := s.runner.Run(ctx)
	took := s.now().Sub(start)

	s.mu.Lock()
	s.running = false
	s.state.Running = false
	s.state.CurrentSource = ""
	s.state.LastCompletedAt = s.now()
	s.state.LastDurationMS = took.Milliseconds()
	s.state.LastSource = source
	if err != nil {
		s.state.LastError = err.Error()
	} else {
		s.state.LastError = ""
	}
	s.mu.Unlock()

	logger = logger.WithField("took", took.Round(time.Millisecond))
	if err != nil {
		logger.WithError(err).Warn("scheduler: batch finished with error")
		return err
	}
	logger.Info("scheduler: batch finished")
	return nil
}

func (s *Scheduler) Snapshot() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

var (
	ErrBatchAlreadyRunning = &runErr{"batch already running"}
	ErrBatchCooldown       = &runErr{"batch just completed; wait before starting again"}
)

type runErr struct{ msg string }

func (e *runErr) Error() string { return e.msg }

func nextRun(now time.Time, hhmm string) (time.Time, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return time.Time{}, &runErr{"daily_batch_time must be HH:MM"}
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return time.Time{}, &runErr{"invalid hour"}
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return time.Time{}, &runErr{"invalid minute"}
	}
	loc := now.Location()
	t := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
