package ingest

import (
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"negfilter/internal/matcher"
)

// NegativeTable holds rules in file order with canonical match types.
type NegativeTable struct {
	Rules           []matcher.Rule
	KeywordColumn   string
	MatchTypeColumn string
	// Coerced counts rows whose match type was blank or unknown and was
	// routed to BROAD.
	Coerced int
}

func LoadNegatives(path string, maxBytes int64) (*NegativeTable, error) {
	if err := CheckFile(path, maxBytes); err != nil {
		return nil, err
	}
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return NegativesFromTable(t), nil
}

func ParseNegatives(r io.Reader) (*NegativeTable, error) {
	t, err := ParseTable(r, 0)
	if err != nil {
		return nil, err
	}
	return NegativesFromTable(t), nil
}

func NegativesFromTable(t *Table) *NegativeTable {
	kwCol, mtCol := negativeColumns(t.Header)
	if kwCol < 0 {
		kwCol = 0
		log.WithField("column", t.Header[0]).Warn("ingest: using first column as negative_keyword")
	}
	if mtCol == kwCol {
		mtCol = -1
	}
	out := &NegativeTable{
		Rules:         make([]matcher.Rule, 0, len(t.Rows)),
		KeywordColumn: t.Header[kwCol],
	}
	if mtCol >= 0 {
		out.MatchTypeColumn = t.Header[mtCol]
	} else {
		log.Info("ingest: no match type column, defaulting rules to BROAD")
	}
	for _, row := range t.Rows {
		label := ""
		if mtCol >= 0 {
			label = row[mtCol]
		}
		mt, ok := CoerceMatchType(label)
		if !ok {
			out.Coerced++
		}
		out.Rules = append(out.Rules, matcher.Rule{
			Keyword:   strings.TrimSpace(row[kwCol]),
			MatchType: string(mt),
		})
	}
	if out.Coerced > 0 && mtCol >= 0 {
		log.WithField("rows", out.Coerced).Warn("ingest: unknown match types routed to BROAD")
	}
	return out
}

// CoerceMatchType maps a raw label to a canonical match type. Blank and
// unknown labels become BROAD and report ok=false.
func CoerceMatchType(label string) (matcher.MatchType, bool) {
	mt, err := matcher.ParseMatchType(label)
	if err != nil {
		return matcher.Broad, false
	}
	return mt, true
}

func negativeColumns(header []string) (kw, mt int) {
	kw, mt = -1, -1
	for i, h := range header {
		lower := strings.ToLower(strings.TrimSpace(h))
		switch {
		case lower == "negative_keyword" || (strings.Contains(lower, "negative") && strings.Contains(lower, "keyword")):
			if kw < 0 {
				kw = i
			}
		case lower == "match_type" || (strings.Contains(lower, "match") && strings.Contains(lower, "type")):
			if mt < 0 {
				mt = i
			}
		}
	}
	if mt >= 0 {
		return kw, mt
	}
	for i, h := range header {
		if i == kw {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(h))
		if lower == "type" || lower == "match" || lower == "campaign" || strings.Contains(lower, "match") {
			return kw, i
		}
	}
	return kw, mt
}
