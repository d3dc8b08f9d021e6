package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"negfilter/internal/filter"
	"negfilter/internal/matcher"
	"negfilter/internal/model"
)

// DefaultList is the rule list used when none is named.
const DefaultList = "default"

// dbTimeLayout has fixed width so stored timestamps sort as text.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKeyword = errors.New("empty keyword")
)

type Store struct {
	db *sql.DB
}

type ListInfo struct {
	Name    string `json:"name"`
	Rules   int    `json:"rules"`
	Enabled int    `json:"enabled"`
	Applied int64  `json:"applied"`
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB { return s.db }

// ListRules returns the rules of list in insertion order, or of every list
// when list is empty.
func (s *Store) ListRules(ctx context.Context, list string) ([]model.NegativeRule, error) {
	q := `SELECT id, list_name, keyword, match_type, enabled, applied_count FROM negative_rules`
	var args []any
	if list != "" {
		q += ` WHERE list_name=?`
		args = append(args, list)
	}
	return s.queryRules(ctx, q+` ORDER BY id`, args...)
}

func (s *Store) ListEnabledRules(ctx context.Context, list string) ([]model.NegativeRule, error) {
	return s.queryRules(ctx, `
		SELECT id, list_name, keyword, match_type, enabled, applied_count
		FROM negative_rules
		WHERE list_name=? AND enabled=1
		ORDER BY id
	`, listName(list))
}

func (s *Store) queryRules(ctx context.Context, q string, args ...any) ([]model.NegativeRule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.NegativeRule
	for rows.Next() {
		var r model.NegativeRule
		var en int
		if err := rows.Scan(&r.ID, &r.List, &r.Keyword, &r.MatchType, &en, &r.AppliedCount); err != nil {
			return nil, err
		}
		r.Enabled = en == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Lists(ctx context.Context) ([]ListInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT list_name, COUNT(*), COALESCE(SUM(enabled), 0), COALESCE(SUM(applied_count), 0)
		FROM negative_rules
		GROUP BY list_name
		ORDER BY list_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ListInfo
	for rows.Next() {
		var li ListInfo
		if err := rows.Scan(&li.Name, &li.Rules, &li.Enabled, &li.Applied); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// UpsertRule inserts rule or updates the enabled flag of an existing rule
// with the same list, keyword and match type. The match type must be one
// of the canonical labels.
func (s *Store) UpsertRule(ctx context.Context, rule model.NegativeRule) (int64, error) {
	keyword := strings.TrimSpace(rule.Keyword)
	if keyword == "" {
		return 0, ErrEmptyKeyword
	}
	mt, err := matcher.ParseMatchType(rule.MatchType)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO negative_rules(list_name, keyword, match_type, enabled, updated_at)
		VALUES(?,?,?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(list_name, keyword, match_type) DO UPDATE SET
			enabled=excluded.enabled,
			updated_at=CURRENT_TIMESTAMP
		RETURNING id
	`, listName(rule.List), keyword, string(mt), boolInt(rule.Enabled)).Scan(&id)
	return id, err
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM negative_rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceList swaps the content of list for rules, keeping their order.
// Blank keywords and repeated rules are skipped. Rules must carry canonical
// match types.
func (s *Store) ReplaceList(ctx context.Context, list string, rules []matcher.Rule) (int, error) {
	list = listName(list)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM negative_rules WHERE list_name=?`, list); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO negative_rules(list_name, keyword, match_type, enabled)
		VALUES(?,?,?,1)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	inserted := 0
	for i, r := range rules {
		keyword := strings.TrimSpace(r.Keyword)
		if keyword == "" {
			continue
		}
		mt, err := matcher.ParseMatchType(r.MatchType)
		if err != nil {
			return 0, fmt.Errorf("rule %d: %w", i, err)
		}
		res, err := stmt.ExecContext(ctx, list, keyword, string(mt))
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, tx.Commit()
}

// IncrementAppliedCounts adds the number of terms each rule of list excluded.
func (s *Store) IncrementAppliedCounts(ctx context.Context, list string, counts map[filter.RuleKey]int64) error {
	if len(counts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		UPDATE negative_rules
		SET applied_count = applied_count + ?, updated_at=CURRENT_TIMESTAMP
		WHERE list_name=? AND keyword=? AND match_type=?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	list = listName(list)
	for key, n := range counts {
		if n <= 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, n, list, strings.TrimSpace(key.Keyword), string(key.MatchType)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RecordRun(ctx context.Context, run model.FilterRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO filter_runs(id, campaign, source, status, started_at, finished_at,
			total_terms, excluded_terms, cost_prevented, error)
		VALUES(?,?,?,?,?,?,?,?,?,?)
	`, run.ID, run.Campaign, run.Source, string(run.Status),
		run.StartedAt.UTC().Format(dbTimeLayout), run.FinishedAt.UTC().Format(dbTimeLayout),
		run.TotalTerms, run.ExcludedTerms, run.CostPrevented, run.Error)
	return err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.FilterRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign, source, status, started_at, finished_at,
			total_terms, excluded_terms, cost_prevented, error
		FROM filter_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.FilterRun
	for rows.Next() {
		var r model.FilterRun
		var status string
		var started, finished any
		if err := rows.Scan(&r.ID, &r.Campaign, &r.Source, &status, &started, &finished,
			&r.TotalTerms, &r.ExcludedTerms, &r.CostPrevented, &r.Error); err != nil {
			return nil, err
		}
		r.Status = model.RunStatus(status)
		r.StartedAt = parseDBTime(started)
		r.FinishedAt = parseDBTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings(key, value, updated_at) VALUES(?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) GetSettingInt(ctx context.Context, key string, defaultValue int) (int, error) {
	value, ok, err := s.GetSetting(ctx, key)
	if err != nil || !ok {
		return defaultValue, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, nil
	}
	return n, nil
}

// MatcherRules converts stored rules to engine input, keeping order.
func MatcherRules(rules []model.NegativeRule) []matcher.Rule {
	out := make([]matcher.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, matcher.Rule{Keyword: r.Keyword, MatchType: r.MatchType})
	}
	return out
}

func listName(list string) string {
	list = strings.TrimSpace(list)
	if list == "" {
		return DefaultList
	}
	return list
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseDBTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		return parseDBTimeString(t)
	case []byte:
		return parseDBTimeString(string(t))
	default:
		return time.Time{}
	}
}

func parseDBTimeString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
