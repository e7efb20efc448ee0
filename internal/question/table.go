package question

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const optionSeparator = "|"

var requiredColumns = []string{"id", "question", "options", "correct_answer"}

type rawTable struct {
	header []string
	rows   []rawRow
}

type rawRow struct {
	no    int
	cells []string
	err   error
}

func readCSV(path string) (*rawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parseCSV(f)
}

func parseCSV(r io.Reader) (*rawTable, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedTable)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", ErrMalformedTable, err)
	}

	table := &rawTable{header: header}
	rowNo := 1
	for {
		rowNo++
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			table.rows = append(table.rows, rawRow{no: rowNo, err: fmt.Errorf("csv parse error: %v", err)})
			continue
		}
		table.rows = append(table.rows, rawRow{no: rowNo, cells: rec})
	}
	return table, nil
}

func readXLSX(path string) (*rawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open excel: %v", ErrMalformedTable, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: excel has no sheets", ErrMalformedTable)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", ErrMalformedTable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrMalformedTable)
	}

	table := &rawTable{header: rows[0]}
	for i := 1; i < len(rows); i++ {
		table.rows = append(table.rows, rawRow{no: i + 1, cells: rows[i]})
	}
	return table, nil
}

// buildQuestions validates every row of the table. Invalid rows are skipped
// and recorded in the report; only a missing required column fails the load.
func buildQuestions(table *rawTable, examDir string) ([]Question, *LoadReport, error) {
	index := make(map[string]int, len(table.header))
	for i, h := range table.header {
		if n := normalizeHeader(h); n != "" {
			if _, dup := index[n]; !dup {
				index[n] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("%w: missing required column: %s", ErrMalformedTable, col)
		}
	}

	report := &LoadReport{Errors: make([]RowError, 0)}
	questions := make([]Question, 0, len(table.rows))
	seen := make(map[string]int, len(table.rows))

	for _, row := range table.rows {
		if row.err != nil {
			report.TotalRows++
			report.SkippedRows++
			report.Errors = append(report.Errors, RowError{Row: row.no, Error: row.err.Error()})
			continue
		}
		if isRowEmpty(row.cells) {
			continue
		}
		report.TotalRows++

		q, err := questionFromRow(row.cells, index, examDir)
		if err == nil {
			if first, dup := seen[q.ID]; dup {
				err = fmt.Errorf("duplicate id (first seen on row %d)", first)
			}
		}
		if err != nil {
			report.SkippedRows++
			report.Errors = append(report.Errors, RowError{Row: row.no, ID: cell(row.cells, index, "id"), Error: err.Error()})
			continue
		}

		seen[q.ID] = row.no
		if q.ContextImage != "" && !fileExists(q.ContextImage) {
			report.MissingImages = append(report.MissingImages, q.ContextImage)
		}
		questions = append(questions, q)
	}
	report.LoadedRows = len(questions)
	return questions, report, nil
}

func questionFromRow(rec []string, index map[string]int, examDir string) (Question, error) {
	q := Question{
		ID:            cell(rec, index, "id"),
		Prompt:        cell(rec, index, "question"),
		CorrectAnswer: cell(rec, index, "correct_answer"),
		Explanation:   cell(rec, index, "explanation"),
	}
	if q.ID == "" {
		return Question{}, errors.New("id is required")
	}
	if q.Prompt == "" {
		return Question{}, errors.New("question is required")
	}

	options, err := splitOptions(cell(rec, index, "options"))
	if err != nil {
		return Question{}, err
	}
	q.Options = options

	if q.CorrectAnswer == "" {
		return Question{}, errors.New("correct_answer is required")
	}
	if !containsOption(q.Options, q.CorrectAnswer) {
		return Question{}, fmt.Errorf("correct_answer %q is not one of the options", q.CorrectAnswer)
	}

	img, err := resolveImage(cell(rec, index, "context_image"), examDir)
	if err != nil {
		return Question{}, err
	}
	q.ContextImage = img
	return q, nil
}

func splitOptions(raw string) ([]string, error) {
	parts := strings.Split(raw, optionSeparator)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("duplicate option %q", p)
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("options are required")
	}
	return out, nil
}

func resolveImage(name, examDir string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "nan") {
		return "", nil
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("context_image %q must stay inside the exam directory", name)
	}
	return filepath.Join(examDir, clean), nil
}

func containsOption(options []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, o := range options {
		if strings.TrimSpace(o) == v {
			return true
		}
	}
	return false
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "-", "_")
	h = strings.ReplaceAll(h, " ", "_")
	return h
}

func cell(rec []string, idx map[string]int, key string) string {
	i, ok := idx[key]
	if !ok || i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isRowEmpty(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
