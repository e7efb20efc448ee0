package exam

import (
	"fmt"
	"strings"

	"examprep/internal/question"
)

// ScoreResult is the outcome of grading one question.
type ScoreResult struct {
	Answered      bool   `json:"answered"`
	IsCorrect     bool   `json:"is_correct"`
	Reason        string `json:"reason"`
	Selected      string `json:"selected,omitempty"`
	CorrectAnswer string `json:"correct_answer"`
}

// Grade is the aggregate score of a session.
type Grade struct {
	Score         int     `json:"score"`
	Total         int     `json:"total"`
	Answered      int     `json:"answered"`
	Finished      bool    `json:"finished"`
	Accuracy      float64 `json:"accuracy"`
	AccuracyLabel string  `json:"accuracy_label"`
}

// ScoreAnswer grades one recorded answer. Comparison trims surrounding
// whitespace on both sides and is otherwise exact, case included.
func ScoreAnswer(q question.Question, selected string, answered bool) ScoreResult {
	correct := strings.TrimSpace(q.CorrectAnswer)
	if !answered {
		return ScoreResult{Reason: "unanswered", CorrectAnswer: correct}
	}

	sel := strings.TrimSpace(selected)
	if sel == correct {
		return ScoreResult{Answered: true, IsCorrect: true, Reason: "correct", Selected: sel, CorrectAnswer: correct}
	}
	return ScoreResult{Answered: true, IsCorrect: false, Reason: "wrong", Selected: sel, CorrectAnswer: correct}
}

// GradeAnswers counts correct answers over every question. Unanswered
// questions count as incorrect; there is no partial credit.
func GradeAnswers(questions []question.Question, answers map[int]string) Grade {
	g := Grade{Total: len(questions)}
	for i, q := range questions {
		sel, ok := answers[i]
		if ok {
			g.Answered++
		}
		if ScoreAnswer(q, sel, ok).IsCorrect {
			g.Score++
		}
	}
	if g.Total > 0 {
		g.Accuracy = float64(g.Score) * 100 / float64(g.Total)
	}
	g.AccuracyLabel = fmt.Sprintf("%.1f%%", g.Accuracy)
	return g
}

func indexOfOption(options []string, v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return -1
	}
	for i, o := range options {
		if strings.TrimSpace(o) == v {
			return i
		}
	}
	return -1
}
