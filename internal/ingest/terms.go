package ingest

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"negfilter/internal/model"
)

var ErrNoTermColumn = errors.New("could not find search term column")

var searchTermVariations = []string{
	"Search term", "Search Term", "Search keyword", "Keyword", "search_term",
	"search term", "search", "Search query", "Query", "Search terms", "Search terms report",
}

var (
	clickColumns      = []string{"clicks", "click"}
	impressionColumns = []string{"impressions", "impr.", "impr"}
	costColumns       = []string{"cost", "spend", "cost (usd)"}
)

// TermTable is a search term report with its search term column resolved.
type TermTable struct {
	Header     []string
	TermColumn string
	HasCost    bool
	Terms      []model.SearchTerm
	Encoding   string
	Skipped    int
}

func LoadSearchTerms(path string, maxBytes int64) (*TermTable, error) {
	if err := CheckFile(path, maxBytes); err != nil {
		return nil, err
	}
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return SearchTermsFromTable(t)
}

func ParseSearchTerms(r io.Reader) (*TermTable, error) {
	t, err := ParseTable(r, 0)
	if err != nil {
		return nil, err
	}
	return SearchTermsFromTable(t)
}

func SearchTermsFromTable(t *Table) (*TermTable, error) {
	col, err := termColumn(t)
	if err != nil {
		return nil, err
	}
	clicks := findColumn(t, clickColumns)
	imps := findColumn(t, impressionColumns)
	cost := findColumn(t, costColumns)

	out := &TermTable{
		Header:     t.Header,
		TermColumn: t.Header[col],
		HasCost:    cost >= 0,
		Terms:      make([]model.SearchTerm, 0, len(t.Rows)),
		Encoding:   t.Encoding,
		Skipped:    t.Skipped,
	}
	for _, row := range t.Rows {
		out.Terms = append(out.Terms, model.SearchTerm{
			Text:        row[col],
			Clicks:      cell(row, clicks),
			Impressions: cell(row, imps),
			Cost:        cell(row, cost),
			Fields:      row,
		})
	}
	log.WithFields(log.Fields{
		"column": out.TermColumn,
		"terms":  len(out.Terms),
		"cost":   out.HasCost,
	}).Debug("ingest: search terms resolved")
	return out, nil
}

func termColumn(t *Table) (int, error) {
	if len(t.Header) == 0 {
		return 0, errors.New("table has no columns")
	}
	for i, h := range t.Header {
		lower := strings.ToLower(h)
		for _, v := range searchTermVariations {
			if strings.Contains(lower, strings.ToLower(v)) {
				return i, nil
			}
		}
	}
	for i, row := range t.Rows {
		if i >= 5 {
			break
		}
		if strings.Contains(row[0], " ") || len(row[0]) > 10 {
			log.WithField("column", t.Header[0]).Warn("ingest: using first column as search term")
			return 0, nil
		}
	}
	return 0, fmt.Errorf("%w; available columns: %s", ErrNoTermColumn, strings.Join(t.Header, ", "))
}

func findColumn(t *Table, names []string) int {
	for _, n := range names {
		if i := t.Column(n); i >= 0 {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) float64 {
	if i < 0 || i >= len(row) {
		return 0
	}
	return parseNumber(row[i])
}

// parseNumber reads report figures such as "1,234", "$3.50" or "--".
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "").Replace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
