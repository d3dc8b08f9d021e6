package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrFileMissing       = errors.New("file not found")
	ErrFileEmpty         = errors.New("file is empty")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoHeader          = errors.New("no header row")
)

// Table is a decoded delimited file. Every row has exactly len(Header) cells.
type Table struct {
	Header   []string
	Rows     [][]string
	Encoding string
	Skipped  int
}

// CheckFile rejects files that are missing, empty or larger than maxBytes.
// maxBytes <= 0 disables the size limit.
func CheckFile(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrFileMissing, path)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrFileEmpty, path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return fmt.Errorf("%w (%s > %s): %s", ErrFileTooLarge,
			humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(maxBytes)), path)
	}
	return nil
}

// Supported reports whether ReadTable understands the file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt", ".xlsx":
		return true
	}
	return false
}

func ReadTable(path string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %q (use CSV, TSV or XLSX; export other spreadsheets to CSV first)", ErrUnsupportedFormat, ext)
	}
	var (
		t   *Table
		err error
	)
	if ext == ".xlsx" {
		t, err = readWorkbook(path)
	} else {
		t, err = readDelimited(path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	log.WithFields(log.Fields{
		"file":     path,
		"encoding": t.Encoding,
		"columns":  len(t.Header),
		"rows":     len(t.Rows),
		"skipped":  t.Skipped,
	}).Info("ingest: table loaded")
	return t, nil
}

func readDelimited(path, ext string) (*Table, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var delim rune
	if ext == ".tsv" {
		delim = '\t'
	}
	return ParseTable(f, delim)
}

// readWorkbook reads the first sheet of an xlsx workbook. Cells come back
// as displayed, so numeric columns go through the same parsing as CSV.
func readWorkbook(path string) (*Table, error) {
	f, err := excelize.OpenFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeader
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	t := &Table{Encoding: "xlsx"}
	for _, rec := range rows {
		t.add(rec)
	}
	if t.Header == nil {
		return nil, ErrNoHeader
	}
	return t, nil
}

// ParseTable decodes r and splits it into rows. A zero delim is sniffed
// from the header line.
func ParseTable(r io.Reader, delim rune) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text, enc, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if delim == 0 {
		delim = sniffDelimiter(text)
	}
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	t := &Table{Encoding: enc}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				t.Skipped++
				continue
			}
			return nil, err
		}
		t.add(rec)
	}
	if t.Header == nil {
		return nil, ErrNoHeader
	}
	return t, nil
}

// add takes the first non-blank record as the header and fits later
// records to its width. Blank records are dropped.
func (t *Table) add(rec []string) {
	if blankRecord(rec) {
		return
	}
	if t.Header == nil {
		t.Header = make([]string, len(rec))
		for i, h := range rec {
			t.Header[i] = strings.TrimSpace(h)
		}
		return
	}
	t.Rows = append(t.Rows, fitRecord(rec, len(t.Header)))
}

// Column returns the index of the header equal to name, ignoring case.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeText(raw []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
		return string(out), "utf-16", err
	case bytes.HasPrefix(raw, utf8BOM):
		return string(raw[len(utf8BOM):]), "utf-8-sig", nil
	case utf8.Valid(raw):
		return string(raw), "utf-8", nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
	return string(out), "windows-1252", err
}

func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{'\t', ';'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func fitRecord(rec []string, width int) []string {
	out := make([]string, width)
	copy(out, rec)
	return out
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
