package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"negfilter/internal/matcher"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, CheckFile(filepath.Join(dir, "nope.csv"), 0), ErrFileMissing)

	empty := writeFile(t, "empty.csv", nil)
	assert.ErrorIs(t, CheckFile(empty, 0), ErrFileEmpty)

	big := writeFile(t, "big.csv", []byte(strings.Repeat("x", 64)))
	err := CheckFile(big, 10)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Contains(t, err.Error(), "64 B")
	assert.NoError(t, CheckFile(big, 0))
}

func TestReadTable_Unsupported(t *testing.T) {
	for _, name := range []string{"terms.xls", "terms.pdf"} {
		path := writeFile(t, name, []byte("PK"))
		_, err := ReadTable(path)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}
}

func writeWorkbook(t *testing.T, name string, rows map[string][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for cell, row := range rows {
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadTable_Workbook(t *testing.T) {
	path := writeWorkbook(t, "terms.xlsx", map[string][]any{
		"A1": {"Search term", "Clicks", "Impressions", "Cost"},
		"A2": {"running shoes", 3, 120, 4.5},
		"A4": {"kids bike"},
		"A5": {"cheap shoes", 0, 40, 0, "extra"},
	})
	require.True(t, Supported(path))

	tbl, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", tbl.Encoding)
	assert.Equal(t, []string{"Search term", "Clicks", "Impressions", "Cost"}, tbl.Header)
	assert.Equal(t, [][]string{
		{"running shoes", "3", "120", "4.5"},
		{"kids bike", "", "", ""},
		{"cheap shoes", "0", "40", "0"},
	}, tbl.Rows)

	tt, err := LoadSearchTerms(path, 1<<20)
	require.NoError(t, err)
	assert.True(t, tt.HasCost)
	require.Len(t, tt.Terms, 3)
	assert.Equal(t, 3.0, tt.Terms[0].Clicks)
	assert.Equal(t, 4.5, tt.Terms[0].Cost)
}

func TestLoadNegatives_FromWorkbook(t *testing.T) {
	path := writeWorkbook(t, "negatives.xlsx", map[string][]any{
		"A1": {"negative_keyword", "match_type"},
		"A2": {"running shoes", "exact"},
		"A3": {"free", ""},
	})
	nt, err := LoadNegatives(path, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, []matcher.Rule{
		{Keyword: "running shoes", MatchType: "EXACT"},
		{Keyword: "free", MatchType: "BROAD"},
	}, nt.Rules)
	assert.Equal(t, 1, nt.Coerced)
}

func TestReadTable_EmptyWorkbook(t *testing.T) {
	path := writeWorkbook(t, "empty.xlsx", nil)
	_, err := ReadTable(path)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestParseTable_RaggedAndBlankRows(t *testing.T) {
	in := "a,b,c\n1,2\n\n,,\n4,5,6,7\n"
	tbl, err := ParseTable(strings.NewReader(in), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", "2", ""}, {"4", "5", "6"}}, tbl.Rows)
	assert.Equal(t, "utf-8", tbl.Encoding)
}

func TestParseTable_SniffsDelimiter(t *testing.T) {
	tbl, err := ParseTable(strings.NewReader("Search term\tClicks\nrunning shoes\t3\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Search term", "Clicks"}, tbl.Header)

	tbl, err = ParseTable(strings.NewReader("keyword;match_type\nfree;EXACT\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"free", "EXACT"}}, tbl.Rows)
}

func TestParseTable_Encodings(t *testing.T) {
	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Search term\ncafé\n")...)
	tbl, err := ParseTable(strings.NewReader(string(bom)), 0)
	require.NoError(t, err)
	assert.Equal(t, "utf-8-sig", tbl.Encoding)
	assert.Equal(t, "Search term", tbl.Header[0])

	latin := []byte("Search term\ncaf\xe9 cr\xe8me\n")
	tbl, err = ParseTable(strings.NewReader(string(latin)), 0)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", tbl.Encoding)
	assert.Equal(t, "café crème", tbl.Rows[0][0])

	utf16 := []byte{0xFF, 0xFE}
	for _, r := range "q\nab\n" {
		utf16 = append(utf16, byte(r), 0)
	}
	tbl, err = ParseTable(strings.NewReader(string(utf16)), 0)
	require.NoError(t, err)
	assert.Equal(t, "utf-16", tbl.Encoding)
	assert.Equal(t, []string{"q"}, tbl.Header)
	assert.Equal(t, [][]string{{"ab"}}, tbl.Rows)
}

func TestParseTable_NoHeader(t *testing.T) {
	_, err := ParseTable(strings.NewReader("\n\n"), 0)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestSearchTerms_ColumnInference(t *testing.T) {
	in := "Campaign,Search Query,Clicks,Impr.,Cost\nc1,running shoes,\"1,200\",5000,$12.50\nc1,kids bike,--,10,0\n"
	tt, err := ParseSearchTerms(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "Search Query", tt.TermColumn)
	assert.True(t, tt.HasCost)
	require.Len(t, tt.Terms, 2)
	assert.Equal(t, "running shoes", tt.Terms[0].Text)
	assert.Equal(t, 1200.0, tt.Terms[0].Clicks)
	assert.Equal(t, 5000.0, tt.Terms[0].Impressions)
	assert.Equal(t, 12.5, tt.Terms[0].Cost)
	assert.Equal(t, 0.0, tt.Terms[1].Clicks)
	assert.Equal(t, []string{"c1", "kids bike", "--", "10", "0"}, tt.Terms[1].Fields)
}

func TestSearchTerms_FirstColumnFallback(t *testing.T) {
	tt, err := ParseSearchTerms(strings.NewReader("Phrase,Clicks\nbuy running shoes,2\n"))
	require.NoError(t, err)
	assert.Equal(t, "Phrase", tt.TermColumn)
	assert.False(t, tt.HasCost)

	_, err = ParseSearchTerms(strings.NewReader("id,n\n1,2\n3,4\n"))
	assert.ErrorIs(t, err, ErrNoTermColumn)
}

func TestNegatives_Columns(t *testing.T) {
	in := "Negative Keyword,Match Type\nrunning shoes, exact \nkids,phrase\nfree,modified\ncheap,\n"
	nt, err := ParseNegatives(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "Negative Keyword", nt.KeywordColumn)
	assert.Equal(t, "Match Type", nt.MatchTypeColumn)
	assert.Equal(t, 2, nt.Coerced)
	assert.Equal(t, []matcher.Rule{
		{Keyword: "running shoes", MatchType: "EXACT"},
		{Keyword: "kids", MatchType: "PHRASE"},
		{Keyword: "free", MatchType: "BROAD"},
		{Keyword: "cheap", MatchType: "BROAD"},
	}, nt.Rules)
}

func TestNegatives_Fallbacks(t *testing.T) {
	nt, err := ParseNegatives(strings.NewReader("term\nfree\njobs\n"))
	require.NoError(t, err)
	assert.Equal(t, "term", nt.KeywordColumn)
	assert.Empty(t, nt.MatchTypeColumn)
	for _, r := range nt.Rules {
		assert.Equal(t, "BROAD", r.MatchType)
	}

	nt, err = ParseNegatives(strings.NewReader("word,Type\nfree,EXACT\n"))
	require.NoError(t, err)
	assert.Equal(t, "word", nt.KeywordColumn)
	assert.Equal(t, "Type", nt.MatchTypeColumn)
	assert.Equal(t, "EXACT", nt.Rules[0].MatchType)
}

func TestLoadNegatives_FromFile(t *testing.T) {
	path := writeFile(t, "neg.csv", []byte("negative_keyword,match_type\n\"\"\"running shoes\"\"\",EXACT\n"))
	nt, err := LoadNegatives(path, 1<<20)
	require.NoError(t, err)
	require.Len(t, nt.Rules, 1)
	assert.Equal(t, `"running shoes"`, nt.Rules[0].Keyword)

	ix, err := matcher.BuildIndex(nt.Rules)
	require.NoError(t, err)
	assert.True(t, ix.Match("Running Shoes").Excluded)
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, 1234.5, parseNumber(" $1,234.50 "))
	assert.Equal(t, 0.0, parseNumber("n/a"))
	assert.Equal(t, 0.0, parseNumber(""))
}
