package exam

import (
	"time"

	"examprep/internal/question"
)

// State is the mutable record of one quiz attempt. A zero State has no exam
// selected. State is not safe for concurrent use; callers serialize access.
type State struct {
	examID       string
	questions    []question.Question
	currentIndex int
	answers      map[int]string
	locked       map[int]struct{}
	finished     bool
	lastActivity time.Time
}

func NewState() *State {
	return &State{}
}

func (s *State) ExamID() string          { return s.examID }
func (s *State) HasExam() bool           { return s.examID != "" }
func (s *State) Total() int              { return len(s.questions) }
func (s *State) CurrentIndex() int       { return s.currentIndex }
func (s *State) Finished() bool          { return s.finished }
func (s *State) LastActivity() time.Time { return s.lastActivity }

// Answer returns the option recorded for question i.
func (s *State) Answer(i int) (string, bool) {
	v, ok := s.answers[i]
	return v, ok
}

func (s *State) IsLocked(i int) bool {
	_, ok := s.locked[i]
	return ok
}

// AnsweredCount is the number of checked questions.
func (s *State) AnsweredCount() int {
	return len(s.locked)
}

func (s *State) load(examID string, questions []question.Question) {
	s.examID = examID
	s.questions = questions
	s.resetProgress()
}

func (s *State) resetProgress() {
	s.currentIndex = 0
	s.answers = make(map[int]string)
	s.locked = make(map[int]struct{})
	s.finished = false
}

func (s *State) wipe() {
	*s = State{}
}

func (s *State) inRange(i int) bool {
	return i >= 0 && i < len(s.questions)
}
