package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"negfilter/internal/auth"
	"negfilter/internal/batch"
	"negfilter/internal/config"
	"negfilter/internal/filter"
	"negfilter/internal/ingest"
	"negfilter/internal/matcher"
	"negfilter/internal/model"
	"negfilter/internal/scheduler"
	"negfilter/internal/store"
)

type API struct {
	cfg       config.Config
	store     *store.Store
	scheduler *scheduler.Scheduler
	progress  progressSource
	guard     *auth.Guard
	assets    http.Handler
}

type progressSource interface {
	LastProgress() batch.Progress
}

func New(cfg config.Config, st *store.Store, sched *scheduler.Scheduler, progress progressSource, guard *auth.Guard, assets http.Handler) *API {
	return &API{cfg: cfg, store: st, scheduler: sched, progress: progress, guard: guard, assets: assets}
}

func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	if a.assets != nil {
		mux.Handle("/", a.assets)
	}

	mux.Handle("/api/health", a.withJSON(http.HandlerFunc(a.handleHealth)))
	mux.Handle("/api/evaluate", a.withJSON(http.HandlerFunc(a.handleEvaluate)))
	mux.Handle("/api/rules", a.withJSON(http.HandlerFunc(a.handleRules)))
	mux.Handle("/api/lists", a.withJSON(http.HandlerFunc(a.handleLists)))

	mux.Handle("/admin/api/rules", a.guard.AdminOnly(a.withJSON(http.HandlerFunc(a.handleAdminRules))))
	mux.Handle("/admin/api/rules/import", a.guard.AdminOnly(a.withJSON(http.HandlerFunc(a.handleAdminImport))))
	mux.Handle("/admin/api/batch", a.guard.AdminOnly(a.withJSON(http.HandlerFunc(a.handleAdminBatch))))
	mux.Handle("/admin/api/status", a.guard.AdminOnly(a.withJSON(http.HandlerFunc(a.handleAdminStatus))))
	return a.logRequests(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.store.DB().PingContext(r.Context()); err != nil {
		respondErr(w, http.StatusServiceUnavailable, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type evaluateRequest struct {
	Terms []string       `json:"terms"`
	List  string         `json:"list"`
	Rules []matcher.Rule `json:"rules"`
}

type evaluation struct {
	Term    string          `json:"term"`
	Verdict matcher.Verdict `json:"verdict"`
}

// handleEvaluate checks ad hoc terms against inline rules, or against a
// stored list when no rules are given.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req evaluateRequest
	if err := decodeJSON(r, a.cfg.MaxBodyBytes, &req); err != nil {
		respondErr(w, http.StatusBadRequest, err)
		return
	}
	rules := req.Rules
	if len(rules) == 0 {
		stored, err := a.store.ListEnabledRules(r.Context(), req.List)
		if err != nil {
			respondErr(w, http.StatusInternalServerError, err)
			return
		}
		rules = store.MatcherRules(stored)
	}
	ix, stats, err := matcher.BuildIndexStats(rules)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err)
		return
	}
	terms := make([]model.SearchTerm, len(req.Terms))
	for i, t := range req.Terms {
		terms[i] = model.SearchTerm{Text: t}
	}
	results, err := filter.Run(r.Context(), ix, terms, filter.Options{Workers: a.cfg.EvalWorkers})
	if err != nil {
		respondErr(w, http.StatusServiceUnavailable, err)
		return
	}
	items := make([]evaluation, len(results))
	for i, res := range results {
		items[i] = evaluation{Term: res.Term.Text, Verdict: res.Verdict}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"counts": filter.CountResults(results),
		"index":  stats,
	})
}

func (a *API) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rules, err := a.store.ListRules(r.Context(), r.URL.Query().Get("list"))
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": nonNil(rules)})
}

func (a *API) handleLists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lists, err := a.store.Lists(r.Context())
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": nonNil(lists)})
}

func (a *API) handleAdminRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			List      string `json:"list"`
			Keyword   string `json:"keyword"`
			MatchType string `json:"match_type"`
			Enabled   *bool  `json:"enabled"`
		}
		if err := decodeJSON(r, a.cfg.MaxBodyBytes, &req); err != nil {
			respondErr(w, http.StatusBadRequest, err)
			return
		}
		rule := model.NegativeRule{List: req.List, Keyword: req.Keyword, MatchType: req.MatchType, Enabled: true}
		if req.Enabled != nil {
			rule.Enabled = *req.Enabled
		}
		id, err := a.store.UpsertRule(r.Context(), rule)
		if err != nil {
			if errors.Is(err, matcher.ErrInvalidMatchType) || errors.Is(err, store.ErrEmptyKeyword) {
				respondErr(w, http.StatusBadRequest, err)
				return
			}
			respondErr(w, http.StatusInternalServerError, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
	case http.MethodDelete:
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			respondErr(w, http.StatusBadRequest, err)
			return
		}
		if err := a.store.DeleteRule(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondErr(w, http.StatusNotFound, err)
				return
			}
			respondErr(w, http.StatusInternalServerError, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAdminImport loads a negatives CSV from the request body into a
// list, replacing it when replace=true and merging otherwise.
func (a *API) handleAdminImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	nt, err := ingest.ParseNegatives(http.MaxBytesReader(w, r.Body, a.maxBody()))
	if err != nil {
		respondErr(w, http.StatusBadRequest, err)
		return
	}
	list := r.URL.Query().Get("list")
	replace, _ := strconv.ParseBool(r.URL.Query().Get("replace"))
	imported := 0
	if replace {
		imported, err = a.store.ReplaceList(r.Context(), list, nt.Rules)
	} else {
		imported, err = upsertAll(r.Context(), a.store, list, nt.Rules)
	}
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"imported": imported,
		"coerced":  nt.Coerced,
		"replaced": replace,
	})
}

func upsertAll(ctx context.Context, st *store.Store, list string, rules []matcher.Rule) (int, error) {
	n := 0
	for _, rule := range rules {
		if strings.TrimSpace(rule.Keyword) == "" {
			continue
		}
		if _, err := st.UpsertRule(ctx, model.NegativeRule{List: list, Keyword: rule.Keyword, MatchType: rule.MatchType, Enabled: true}); err != nil {
			return n, fmt.Errorf("rule %q: %w", rule.Keyword, err)
		}
		n++
	}
	return n, nil
}

func (a *API) handleAdminBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Minute)
	defer cancel()
	if err := a.scheduler.RunNow(ctx); err != nil {
		if errors.Is(err, scheduler.ErrBatchAlreadyRunning) || errors.Is(err, scheduler.ErrBatchCooldown) {
			respondErr(w, http.StatusConflict, err)
			return
		}
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lists, err := a.store.Lists(r.Context())
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	runs, err := a.store.ListRuns(r.Context(), 20)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err)
		return
	}
	var progress batch.Progress
	if a.progress != nil {
		progress = a.progress.LastProgress()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"batch": map[string]any{
			"state":    a.scheduler.Snapshot(),
			"progress": progress,
		},
		"lists": nonNil(lists),
		"runs":  nonNil(runs),
	})
}

func (a *API) maxBody() int64 {
	if a.cfg.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return a.cfg.MaxBodyBytes
}

func decodeJSON(r *http.Request, maxBody int64, out any) error {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func (a *API) withJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": rec.code,
			"took":   time.Since(start).Round(time.Microsecond),
		}).Debug("http: request")
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondErr(w http.ResponseWriter, code int, err error) {
	respondJSON(w, code, map[string]any{"error": err.Error()})
}
