package report

import (
	"bytes"
	"fmt"

	"examprep/internal/exam"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	answersSheet = "Answers"
)

// ResultWorkbook renders a review as an XLSX file with a summary sheet and
// one row per question.
func ResultWorkbook(rv *exam.Review) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][]any{
		{"exam", rv.ExamID},
		{"score", rv.Grade.Score},
		{"total", rv.Grade.Total},
		{"answered", rv.Grade.Answered},
		{"accuracy", rv.Grade.AccuracyLabel},
		{"finished", rv.Grade.Finished},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "B", 18)

	if _, err := f.NewSheet(answersSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	headers := []string{"no", "id", "question", "selected", "correct_answer", "result", "explanation"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(answersSheet, cell, h)
	}
	for i, it := range rv.Items {
		values := []any{it.Number, it.QuestionID, it.Prompt, it.Selected, it.CorrectAnswer, it.Reason, it.Explanation}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(answersSheet, cell, v)
		}
	}
	_ = f.SetColWidth(answersSheet, "A", "B", 8)
	_ = f.SetColWidth(answersSheet, "C", "G", 28)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
