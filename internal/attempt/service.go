package attempt

import (
	"context"
	"errors"

	"examprep/internal/exam"

	"go.uber.org/zap"
)

var ErrImageNotFound = errors.New("question has no image")

type ServiceConfig struct {
	Logger *zap.Logger
	// OnAnswer is called after every accepted submission with "correct" or
	// "wrong".
	OnAnswer func(result string)
}

// Service exposes the quiz affordances for a session id.
type Service struct {
	manager  *Manager
	logger   *zap.Logger
	onAnswer func(result string)
}

type SubmitResult struct {
	Result exam.ScoreResult `json:"result"`
	View   *exam.View       `json:"view"`
}

type FinishResult struct {
	Grade exam.Grade `json:"grade"`
	View  *exam.View `json:"view"`
}

func NewService(manager *Manager, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onAnswer := cfg.OnAnswer
	if onAnswer == nil {
		onAnswer = func(string) {}
	}
	return &Service{manager: manager, logger: logger, onAnswer: onAnswer}
}

func (s *Service) StartSession() string {
	return s.manager.Create()
}

func (s *Service) HasSession(sessionID string) bool {
	return s.manager.Exists(sessionID)
}

func (s *Service) SelectExam(ctx context.Context, sessionID, examID string) (*exam.View, error) {
	var v *exam.View
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		if err := e.SelectExam(ctx, st, examID); err != nil {
			return err
		}
		var err error
		v, err = e.Current(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("exam selected",
		zap.String("session_id", sessionID),
		zap.String("exam_id", examID),
		zap.Int("total", v.Total),
	)
	return v, nil
}

func (s *Service) Current(ctx context.Context, sessionID string) (*exam.View, error) {
	return s.view(sessionID, func(e *exam.Engine, st *exam.State) error { return nil })
}

// JumpTo moves to the 1-based question number.
func (s *Service) JumpTo(ctx context.Context, sessionID string, questionNo int) (*exam.View, error) {
	return s.view(sessionID, func(e *exam.Engine, st *exam.State) error {
		return e.JumpTo(st, questionNo-1)
	})
}

func (s *Service) Next(ctx context.Context, sessionID string) (*exam.View, error) {
	return s.view(sessionID, func(e *exam.Engine, st *exam.State) error { return e.Next(st) })
}

func (s *Service) Previous(ctx context.Context, sessionID string) (*exam.View, error) {
	return s.view(sessionID, func(e *exam.Engine, st *exam.State) error { return e.Previous(st) })
}

// Reset always succeeds. A session without an exam yields a nil view.
func (s *Service) Reset(ctx context.Context, sessionID string) (*exam.View, error) {
	var v *exam.View
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		e.Reset(st)
		if !st.HasExam() {
			return nil
		}
		var err error
		v, err = e.Current(st)
		return err
	})
	return v, err
}

// Submit checks option against the current question.
func (s *Service) Submit(ctx context.Context, sessionID, option string) (*SubmitResult, error) {
	var out SubmitResult
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		res, err := e.SubmitAnswer(st, st.CurrentIndex(), option)
		if err != nil {
			return err
		}
		out.Result = res
		out.View, err = e.Current(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.onAnswer(out.Result.Reason)
	return &out, nil
}

func (s *Service) Finish(ctx context.Context, sessionID string) (*FinishResult, error) {
	var out FinishResult
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		g, err := e.Finish(st)
		if err != nil {
			return err
		}
		out.Grade = g
		out.View, err = e.Current(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("exam finished",
		zap.String("session_id", sessionID),
		zap.String("exam_id", out.View.ExamID),
		zap.Int("score", out.Grade.Score),
		zap.Int("total", out.Grade.Total),
	)
	return &out, nil
}

func (s *Service) Result(ctx context.Context, sessionID string) (*exam.Grade, error) {
	var g exam.Grade
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		var err error
		g, err = e.Grade(st)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Service) Review(ctx context.Context, sessionID string) (*exam.Review, error) {
	var rv *exam.Review
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		var err error
		rv, err = e.Review(st)
		return err
	})
	return rv, err
}

// ImagePath returns the on-disk image of the 1-based question number.
func (s *Service) ImagePath(ctx context.Context, sessionID string, questionNo int) (string, error) {
	var path string
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		q, err := e.Question(st, questionNo-1)
		if err != nil {
			return err
		}
		if !q.HasImage() {
			return ErrImageNotFound
		}
		path = q.ContextImage
		return nil
	})
	return path, err
}

func (s *Service) view(sessionID string, op func(e *exam.Engine, st *exam.State) error) (*exam.View, error) {
	var v *exam.View
	err := s.manager.Do(sessionID, func(e *exam.Engine, st *exam.State) error {
		if err := op(e, st); err != nil {
			return err
		}
		var err error
		v, err = e.Current(st)
		return err
	})
	return v, err
}
