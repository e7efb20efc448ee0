package exam

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"examprep/internal/question"
)

var (
	ErrNoQuestions        = errors.New("exam has no questions")
	ErrNoExamSelected     = errors.New("no exam selected")
	ErrQuestionOutOfRange = errors.New("question number out of range")
	ErrInvalidSelection   = errors.New("select one of the listed options")
	ErrAlreadyLocked      = errors.New("question already checked")
	ErrSessionFinished    = errors.New("exam already finished")
)

type QuestionSource interface {
	LoadExam(ctx context.Context, examID string) ([]question.Question, *question.LoadReport, error)
}

// Engine applies quiz transitions to a State. Navigation follows the
// multi-check policy: moving around never touches lock state, Next stops at
// the last question and answered questions stay reviewable.
type Engine struct {
	src QuestionSource
	now func() time.Time
}

// View is what the presentation needs to render the current question.
type View struct {
	ExamID        string    `json:"exam_id"`
	Index         int       `json:"index"`
	Number        int       `json:"number"`
	Total         int       `json:"total"`
	Progress      string    `json:"progress"`
	Answered      int       `json:"answered"`
	QuestionID    string    `json:"question_id"`
	Prompt        string    `json:"prompt"`
	Options       []string  `json:"options"`
	HasImage      bool      `json:"has_image"`
	Locked        bool      `json:"locked"`
	Finished      bool      `json:"finished"`
	SelectedIndex int       `json:"selected_index"`
	Feedback      *Feedback `json:"feedback,omitempty"`
}

type Feedback struct {
	ScoreResult
	Explanation string `json:"explanation"`
}

type Review struct {
	ExamID string       `json:"exam_id"`
	Grade  Grade        `json:"grade"`
	Items  []ReviewItem `json:"items"`
}

type ReviewItem struct {
	Number     int    `json:"number"`
	QuestionID string `json:"question_id"`
	Prompt     string `json:"prompt"`
	ScoreResult
	Explanation string `json:"explanation"`
}

func NewEngine(src QuestionSource, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{src: src, now: now}
}

// SelectExam loads examID and starts a fresh attempt on it. Whatever the
// state held before is discarded, also when loading fails. Selecting the
// exam that is already active keeps its progress.
func (e *Engine) SelectExam(ctx context.Context, s *State, examID string) error {
	if s.HasExam() && s.examID == examID {
		e.touch(s)
		return nil
	}
	questions, _, err := e.src.LoadExam(ctx, examID)
	if err != nil {
		s.wipe()
		return err
	}
	if len(questions) == 0 {
		s.wipe()
		return fmt.Errorf("%w: %s", ErrNoQuestions, examID)
	}

	s.load(examID, questions)
	e.touch(s)
	return nil
}

func (e *Engine) JumpTo(s *State, n int) error {
	if !s.HasExam() {
		return ErrNoExamSelected
	}
	if !s.inRange(n) {
		return fmt.Errorf("%w: %d not in 1..%d", ErrQuestionOutOfRange, n+1, s.Total())
	}
	s.currentIndex = n
	e.touch(s)
	return nil
}

// Next moves forward one question; it is a no-op on the last one.
func (e *Engine) Next(s *State) error {
	if !s.HasExam() {
		return ErrNoExamSelected
	}
	if s.currentIndex < s.Total()-1 {
		s.currentIndex++
	}
	e.touch(s)
	return nil
}

// Previous moves back one question; it is a no-op on the first one.
func (e *Engine) Previous(s *State) error {
	if !s.HasExam() {
		return ErrNoExamSelected
	}
	if s.currentIndex > 0 {
		s.currentIndex--
	}
	e.touch(s)
	return nil
}

// SubmitAnswer records and locks the answer to question index. A rejected
// submission leaves the state untouched.
func (e *Engine) SubmitAnswer(s *State, index int, option string) (ScoreResult, error) {
	if !s.HasExam() {
		return ScoreResult{}, ErrNoExamSelected
	}
	if !s.inRange(index) {
		return ScoreResult{}, fmt.Errorf("%w: %d not in 1..%d", ErrQuestionOutOfRange, index+1, s.Total())
	}
	if s.finished {
		return ScoreResult{}, ErrSessionFinished
	}
	if s.IsLocked(index) {
		return ScoreResult{}, ErrAlreadyLocked
	}
	q := s.questions[index]
	if strings.TrimSpace(option) == "" || indexOfOption(q.Options, option) < 0 {
		return ScoreResult{}, ErrInvalidSelection
	}

	s.answers[index] = option
	s.locked[index] = struct{}{}
	e.touch(s)
	return ScoreAnswer(q, option, true), nil
}

// Grade reports the score so far. Before Finish it reflects partial progress.
func (e *Engine) Grade(s *State) (Grade, error) {
	if !s.HasExam() {
		return Grade{}, ErrNoExamSelected
	}
	e.touch(s)
	return s.grade(), nil
}

// Finish ends the attempt and rewinds to the first question for review.
// Calling it again changes nothing but the activity time.
func (e *Engine) Finish(s *State) (Grade, error) {
	if !s.HasExam() {
		return Grade{}, ErrNoExamSelected
	}
	if !s.finished {
		s.finished = true
		s.currentIndex = 0
	}
	e.touch(s)
	return s.grade(), nil
}

// Reset returns the attempt to the state right after SelectExam.
func (e *Engine) Reset(s *State) {
	if s.HasExam() {
		s.resetProgress()
	}
	e.touch(s)
}

// Expire wipes s when it has been idle for strictly longer than timeout.
// A state that has seen no activity yet never expires. Expire itself does
// not count as activity.
func (e *Engine) Expire(s *State, now time.Time, timeout time.Duration) bool {
	if s.lastActivity.IsZero() {
		return false
	}
	if now.Sub(s.lastActivity) <= timeout {
		return false
	}
	s.wipe()
	return true
}

// Review lists every question with the recorded option and its outcome.
// Before Finish it reflects partial progress.
func (e *Engine) Review(s *State) (*Review, error) {
	if !s.HasExam() {
		return nil, ErrNoExamSelected
	}
	e.touch(s)
	rv := &Review{
		ExamID: s.examID,
		Grade:  s.grade(),
		Items:  make([]ReviewItem, 0, len(s.questions)),
	}
	for i, q := range s.questions {
		sel, answered := s.answers[i]
		rv.Items = append(rv.Items, ReviewItem{
			Number:      i + 1,
			QuestionID:  q.ID,
			Prompt:      q.Prompt,
			ScoreResult: ScoreAnswer(q, sel, answered),
			Explanation: q.Explanation,
		})
	}
	return rv, nil
}

func (e *Engine) Current(s *State) (*View, error) {
	if !s.HasExam() {
		return nil, ErrNoExamSelected
	}
	e.touch(s)
	return s.view(), nil
}

// Question returns question index of the selected exam.
func (e *Engine) Question(s *State, index int) (question.Question, error) {
	if !s.HasExam() {
		return question.Question{}, ErrNoExamSelected
	}
	if !s.inRange(index) {
		return question.Question{}, fmt.Errorf("%w: %d not in 1..%d", ErrQuestionOutOfRange, index+1, s.Total())
	}
	e.touch(s)
	return s.questions[index], nil
}

func (e *Engine) touch(s *State) {
	s.lastActivity = e.now()
}

func (s *State) grade() Grade {
	g := GradeAnswers(s.questions, s.answers)
	g.Finished = s.finished
	return g
}

func (s *State) view() *View {
	i := s.currentIndex
	q := s.questions[i]
	v := &View{
		ExamID:        s.examID,
		Index:         i,
		Number:        i + 1,
		Total:         s.Total(),
		Progress:      strconv.Itoa(i+1) + "/" + strconv.Itoa(s.Total()),
		Answered:      s.AnsweredCount(),
		QuestionID:    q.ID,
		Prompt:        q.Prompt,
		Options:       q.Options,
		HasImage:      q.HasImage(),
		Locked:        s.IsLocked(i),
		Finished:      s.finished,
		SelectedIndex: -1,
	}

	sel, answered := s.answers[i]
	if answered {
		v.SelectedIndex = indexOfOption(q.Options, sel)
	}
	if v.Locked || v.Finished {
		v.Feedback = &Feedback{
			ScoreResult: ScoreAnswer(q, sel, answered),
			Explanation: q.Explanation,
		}
	}
	return v
}
