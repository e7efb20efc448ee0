package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"examprep/internal/question"
)

type fakeSource struct {
	exams map[string][]question.Question
	err   error
}

func (f *fakeSource) LoadExam(ctx context.Context, examID string) ([]question.Question, *question.LoadReport, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	qs, ok := f.exams[examID]
	if !ok {
		return nil, nil, question.ErrExamDataMissing
	}
	return qs, &question.LoadReport{ExamID: examID, LoadedRows: len(qs)}, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func abcExam() []question.Question {
	return []question.Question{
		{ID: "q1", Prompt: "First", Options: []string{"A", "B", "C"}, CorrectAnswer: "A", Explanation: "A is first."},
		{ID: "q2", Prompt: "Second", Options: []string{"A", "B", "C"}, CorrectAnswer: "B", Explanation: "B is second."},
		{ID: "q3", Prompt: "Third", Options: []string{"A", "B", "C"}, CorrectAnswer: "C", Explanation: "C is third."},
	}
}

func newTestEngine(t *testing.T) (*Engine, *State, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	src := &fakeSource{exams: map[string][]question.Question{
		"abc":   abcExam(),
		"empty": {},
		"other": {{ID: "x", Prompt: "Other", Options: []string{"yes", "no"}, CorrectAnswer: "yes"}},
	}}
	e := NewEngine(src, clock.Now)
	s := NewState()
	if err := e.SelectExam(context.Background(), s, "abc"); err != nil {
		t.Fatalf("select exam: %v", err)
	}
	return e, s, clock
}

func assertBaseline(t *testing.T, s *State, examID string) {
	t.Helper()
	if s.ExamID() != examID {
		t.Fatalf("expected exam %q, got %q", examID, s.ExamID())
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("expected index 0, got %d", s.CurrentIndex())
	}
	if len(s.answers) != 0 || s.AnsweredCount() != 0 {
		t.Fatalf("expected no answers, got answers=%v locked=%v", s.answers, s.locked)
	}
	if s.Finished() {
		t.Fatalf("expected finished=false")
	}
}

func TestSelectExamStartsAtBaseline(t *testing.T) {
	_, s, _ := newTestEngine(t)
	assertBaseline(t, s, "abc")
	if s.Total() != 3 {
		t.Fatalf("expected 3 questions, got %d", s.Total())
	}
}

func TestSelectExamDiscardsPreviousProgress(t *testing.T) {
	e, s, _ := newTestEngine(t)
	if _, err := e.SubmitAnswer(s, 0, "A"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.JumpTo(s, 2); err != nil {
		t.Fatalf("jump: %v", err)
	}

	if err := e.SelectExam(context.Background(), s, "other"); err != nil {
		t.Fatalf("select other: %v", err)
	}
	assertBaseline(t, s, "other")
}

func TestSelectExamSameExamKeepsProgress(t *testing.T) {
	e, s, clock := newTestEngine(t)
	if _, err := e.SubmitAnswer(s, 0, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.JumpTo(s, 1); err != nil {
		t.Fatalf("jump: %v", err)
	}
	clock.Advance(time.Minute)

	if err := e.SelectExam(context.Background(), s, "abc"); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if s.CurrentIndex() != 1 || !s.IsLocked(0) || s.AnsweredCount() != 1 {
		t.Fatalf("expected progress kept, got index=%d answered=%d", s.CurrentIndex(), s.AnsweredCount())
	}
	if !s.LastActivity().Equal(clock.Now()) {
		t.Fatalf("expected reselect to refresh activity")
	}
}

func TestSelectExamErrors(t *testing.T) {
	tests := []struct {
		name    string
		examID  string
		wantErr error
	}{
		{name: "no questions", examID: "empty", wantErr: ErrNoQuestions},
		{name: "missing data", examID: "ghost", wantErr: question.ErrExamDataMissing},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, s, _ := newTestEngine(t)
			err := e.SelectExam(context.Background(), s, tc.examID)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if s.HasExam() {
				t.Fatalf("state must not keep an exam after a failed select")
			}
			if _, err := e.Current(s); !errors.Is(err, ErrNoExamSelected) {
				t.Fatalf("expected ErrNoExamSelected, got %v", err)
			}
		})
	}
}

func TestJumpTo(t *testing.T) {
	e, s, _ := newTestEngine(t)

	if err := e.JumpTo(s, 2); err != nil {
		t.Fatalf("jump to 2: %v", err)
	}
	if s.CurrentIndex() != 2 {
		t.Fatalf("expected index 2, got %d", s.CurrentIndex())
	}

	for _, n := range []int{5, 3, -1} {
		if err := e.JumpTo(s, n); !errors.Is(err, ErrQuestionOutOfRange) {
			t.Fatalf("jump to %d: expected ErrQuestionOutOfRange, got %v", n, err)
		}
		if s.CurrentIndex() != 2 {
			t.Fatalf("rejected jump changed index to %d", s.CurrentIndex())
		}
	}
}

func TestJumpKeepsLocks(t *testing.T) {
	e, s, _ := newTestEngine(t)
	if _, err := e.SubmitAnswer(s, 0, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_ = e.JumpTo(s, 2)
	_ = e.JumpTo(s, 0)

	v, err := e.Current(s)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !v.Locked || v.Feedback == nil {
		t.Fatalf("expected revisited question to stay locked with feedback, got %+v", v)
	}
	if v.Feedback.IsCorrect || v.Feedback.Selected != "B" || v.Feedback.CorrectAnswer != "A" {
		t.Fatalf("unexpected feedback: %+v", v.Feedback)
	}
	if v.SelectedIndex != 1 {
		t.Fatalf("expected selected index 1, got %d", v.SelectedIndex)
	}
}

func TestNextPreviousClamp(t *testing.T) {
	e, s, _ := newTestEngine(t)

	if err := e.Previous(s); err != nil {
		t.Fatalf("previous: %v", err)
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("previous at 0 must be a no-op, got %d", s.CurrentIndex())
	}

	for i := 0; i < 5; i++ {
		if err := e.Next(s); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if s.CurrentIndex() != 2 {
		t.Fatalf("next must stop at the last question, got %d", s.CurrentIndex())
	}
	if s.Finished() {
		t.Fatalf("next at the last question must not finish the exam")
	}

	_ = e.Previous(s)
	if s.CurrentIndex() != 1 {
		t.Fatalf("expected index 1, got %d", s.CurrentIndex())
	}
}

func TestNextMovesPastUnansweredQuestion(t *testing.T) {
	e, s, _ := newTestEngine(t)
	_ = e.Next(s)
	if s.CurrentIndex() != 1 || s.IsLocked(0) {
		t.Fatalf("expected to move past unanswered question without locking it")
	}
}

func TestSubmitAnswerRejectsInvalidSelection(t *testing.T) {
	for _, opt := range []string{"", "   ", "D", "a"} {
		t.Run("option "+opt, func(t *testing.T) {
			e, s, clock := newTestEngine(t)
			before := s.LastActivity()
			clock.Advance(time.Minute)

			_, err := e.SubmitAnswer(s, 0, opt)
			if !errors.Is(err, ErrInvalidSelection) {
				t.Fatalf("expected ErrInvalidSelection, got %v", err)
			}
			if _, ok := s.Answer(0); ok || s.IsLocked(0) {
				t.Fatalf("rejected submission must not change state")
			}
			if !s.LastActivity().Equal(before) {
				t.Fatalf("rejected submission must not count as activity")
			}
		})
	}
}

func TestSubmitAnswerLocks(t *testing.T) {
	e, s, _ := newTestEngine(t)

	res, err := e.SubmitAnswer(s, 1, "C")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.IsCorrect {
		t.Fatalf("C is not the answer to q2")
	}
	if got, ok := s.Answer(1); !ok || got != "C" || !s.IsLocked(1) {
		t.Fatalf("expected answer C locked, got %q locked=%v", got, s.IsLocked(1))
	}

	if _, err := e.SubmitAnswer(s, 1, "B"); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}
	if got, _ := s.Answer(1); got != "C" {
		t.Fatalf("locked answer changed to %q", got)
	}
}

func TestSubmitAnswerOutOfRange(t *testing.T) {
	e, s, _ := newTestEngine(t)
	if _, err := e.SubmitAnswer(s, 3, "A"); !errors.Is(err, ErrQuestionOutOfRange) {
		t.Fatalf("expected ErrQuestionOutOfRange, got %v", err)
	}
}

func TestSubmitAnswerAfterFinish(t *testing.T) {
	e, s, _ := newTestEngine(t)
	if _, err := e.Finish(s); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := e.SubmitAnswer(s, 0, "A"); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
}

func TestGradeAllCorrect(t *testing.T) {
	e, s, _ := newTestEngine(t)
	for i, q := range abcExam() {
		if _, err := e.SubmitAnswer(s, i, q.CorrectAnswer); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	g, err := e.Grade(s)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if g.Score != g.Total || g.Total != 3 {
		t.Fatalf("expected full marks, got %+v", g)
	}
}

func TestGradeNoAnswers(t *testing.T) {
	e, s, _ := newTestEngine(t)
	g, err := e.Grade(s)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if g.Score != 0 || g.Answered != 0 {
		t.Fatalf("expected zero score, got %+v", g)
	}
}

func TestGradeIsCaseSensitive(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	src := &fakeSource{exams: map[string][]question.Question{
		"case": {{ID: "1", Options: []string{"A", "B"}, CorrectAnswer: " a "}},
	}}
	e := NewEngine(src, clock.Now)
	s := NewState()
	if err := e.SelectExam(context.Background(), s, "case"); err != nil {
		t.Fatalf("select: %v", err)
	}

	res, err := e.SubmitAnswer(s, 0, "A")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.IsCorrect {
		t.Fatalf("A must not match stored answer ' a '")
	}
	g, _ := e.Grade(s)
	if g.Score != 0 {
		t.Fatalf("expected score 0, got %d", g.Score)
	}
}

func TestScenarioPartialAttempt(t *testing.T) {
	e, s, _ := newTestEngine(t)

	res, err := e.SubmitAnswer(s, 0, "A")
	if err != nil || !res.IsCorrect {
		t.Fatalf("Q1: expected correct, got %+v err=%v", res, err)
	}
	_ = e.Next(s)
	res, err = e.SubmitAnswer(s, 1, "C")
	if err != nil || res.IsCorrect {
		t.Fatalf("Q2: expected incorrect, got %+v err=%v", res, err)
	}
	_ = e.Next(s)

	g, err := e.Finish(s)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if g.Score != 1 || g.Total != 3 {
		t.Fatalf("expected 1/3, got %d/%d", g.Score, g.Total)
	}
	if g.AccuracyLabel != "33.3%" {
		t.Fatalf("expected 33.3%%, got %s", g.AccuracyLabel)
	}
	if !g.Finished || s.CurrentIndex() != 0 {
		t.Fatalf("expected finished review from the top, got finished=%v index=%d", g.Finished, s.CurrentIndex())
	}

	_ = e.JumpTo(s, 2)
	v, err := e.Current(s)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if v.Feedback == nil || v.Feedback.Answered || v.Feedback.CorrectAnswer != "C" || v.Feedback.Explanation != "C is third." {
		t.Fatalf("expected unanswered feedback in review, got %+v", v.Feedback)
	}
}

func TestFinishIdempotent(t *testing.T) {
	e, s, _ := newTestEngine(t)
	_, _ = e.SubmitAnswer(s, 0, "A")
	first, _ := e.Finish(s)
	_ = e.JumpTo(s, 2)
	second, _ := e.Finish(s)

	if first != second {
		t.Fatalf("expected same grade, got %+v and %+v", first, second)
	}
	if s.CurrentIndex() != 2 {
		t.Fatalf("second finish must not move the review position, got %d", s.CurrentIndex())
	}
}

func TestResetReturnsToBaseline(t *testing.T) {
	e, s, _ := newTestEngine(t)
	_, _ = e.SubmitAnswer(s, 0, "A")
	_, _ = e.SubmitAnswer(s, 2, "B")
	_ = e.JumpTo(s, 1)
	_, _ = e.Finish(s)

	e.Reset(s)
	assertBaseline(t, s, "abc")

	if _, err := e.SubmitAnswer(s, 0, "B"); err != nil {
		t.Fatalf("expected question editable after reset, got %v", err)
	}
}

func TestResetWithoutExam(t *testing.T) {
	e := NewEngine(&fakeSource{}, nil)
	s := NewState()
	e.Reset(s)
	if s.HasExam() {
		t.Fatalf("reset must not invent an exam")
	}
}

func TestExpireBoundary(t *testing.T) {
	timeout := 30 * time.Minute

	tests := []struct {
		name    string
		idle    time.Duration
		expired bool
	}{
		{name: "well within", idle: time.Minute, expired: false},
		{name: "exactly at timeout", idle: timeout, expired: false},
		{name: "just past timeout", idle: timeout + time.Nanosecond, expired: true},
		{name: "long past", idle: 2 * timeout, expired: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, s, clock := newTestEngine(t)
			_, _ = e.SubmitAnswer(s, 0, "A")
			last := s.LastActivity()

			got := e.Expire(s, clock.Now().Add(tc.idle), timeout)
			if got != tc.expired {
				t.Fatalf("expected expired=%v, got %v", tc.expired, got)
			}
			if tc.expired {
				if s.HasExam() || s.AnsweredCount() != 0 || !s.LastActivity().IsZero() {
					t.Fatalf("expected full wipe, got exam=%q answered=%d", s.ExamID(), s.AnsweredCount())
				}
				return
			}
			if s.ExamID() != "abc" || !s.IsLocked(0) {
				t.Fatalf("state must be preserved")
			}
			if !s.LastActivity().Equal(last) {
				t.Fatalf("expire must not refresh activity")
			}
		})
	}
}

func TestExpireFreshStateNeverExpires(t *testing.T) {
	e := NewEngine(&fakeSource{}, nil)
	s := NewState()
	if e.Expire(s, time.Now().Add(24*time.Hour), time.Second) {
		t.Fatalf("state without activity must not expire")
	}
}

func TestOperationsRefreshActivity(t *testing.T) {
	e, s, clock := newTestEngine(t)

	ops := []struct {
		name string
		fn   func() error
	}{
		{name: "jump", fn: func() error { return e.JumpTo(s, 1) }},
		{name: "next", fn: func() error { return e.Next(s) }},
		{name: "previous", fn: func() error { return e.Previous(s) }},
		{name: "submit", fn: func() error { _, err := e.SubmitAnswer(s, 0, "A"); return err }},
		{name: "grade", fn: func() error { _, err := e.Grade(s); return err }},
		{name: "current", fn: func() error { _, err := e.Current(s); return err }},
		{name: "finish", fn: func() error { _, err := e.Finish(s); return err }},
		{name: "reset", fn: func() error { e.Reset(s); return nil }},
	}

	for _, op := range ops {
		clock.Advance(time.Minute)
		if err := op.fn(); err != nil {
			t.Fatalf("%s: %v", op.name, err)
		}
		if !s.LastActivity().Equal(clock.Now()) {
			t.Fatalf("%s did not refresh activity", op.name)
		}
	}
}

func TestCurrentView(t *testing.T) {
	e, s, _ := newTestEngine(t)
	_ = e.JumpTo(s, 1)

	v, err := e.Current(s)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if v.Progress != "2/3" || v.Number != 2 || v.Total != 3 || v.Prompt != "Second" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.Locked || v.Feedback != nil || v.SelectedIndex != -1 || v.HasImage {
		t.Fatalf("fresh question must have no feedback, got %+v", v)
	}
}

func TestQuestionWithUnreachableKeyDoesNotPanic(t *testing.T) {
	src := &fakeSource{exams: map[string][]question.Question{
		"bad": {{ID: "1", Prompt: "?", Options: []string{"A", "B"}, CorrectAnswer: "Z"}},
	}}
	e := NewEngine(src, nil)
	s := NewState()
	if err := e.SelectExam(context.Background(), s, "bad"); err != nil {
		t.Fatalf("select: %v", err)
	}
	res, err := e.SubmitAnswer(s, 0, "A")
	if err != nil || res.IsCorrect {
		t.Fatalf("expected graded incorrect without error, got %+v err=%v", res, err)
	}
	if _, err := e.Current(s); err != nil {
		t.Fatalf("current: %v", err)
	}
}

func TestReviewListsEveryQuestion(t *testing.T) {
	e, s, _ := newTestEngine(t)
	if _, err := e.SubmitAnswer(s, 0, "A"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.SubmitAnswer(s, 2, "A"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.Finish(s); err != nil {
		t.Fatalf("finish: %v", err)
	}

	rv, err := e.Review(s)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if rv.ExamID != "abc" || len(rv.Items) != 3 || rv.Grade.Score != 1 || !rv.Grade.Finished {
		t.Fatalf("unexpected review: %+v", rv)
	}
	reasons := []string{rv.Items[0].Reason, rv.Items[1].Reason, rv.Items[2].Reason}
	want := []string{"correct", "unanswered", "wrong"}
	for i := range want {
		if reasons[i] != want[i] {
			t.Fatalf("item %d: expected %s, got %s", i+1, want[i], reasons[i])
		}
	}
	if rv.Items[1].Number != 2 || rv.Items[1].Explanation != "B is second." {
		t.Fatalf("unexpected item: %+v", rv.Items[1])
	}

	if _, err := e.Review(NewState()); !errors.Is(err, ErrNoExamSelected) {
		t.Fatalf("expected ErrNoExamSelected, got %v", err)
	}
}
