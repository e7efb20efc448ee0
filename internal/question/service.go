package question

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	csvTableName  = "questions.csv"
	xlsxTableName = "questions.xlsx"
)

var (
	ErrNoExamsFound    = errors.New("no exams found")
	ErrExamDataMissing = errors.New("exam has no question table")
	ErrMalformedTable  = errors.New("malformed question table")
	ErrInvalidExamID   = errors.New("invalid exam id")
)

// Question is one multiple-choice item. It is never modified after load.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	ContextImage  string   `json:"context_image,omitempty"`
}

// HasImage reports whether the question references an image file that is
// present on disk.
func (q Question) HasImage() bool {
	return q.ContextImage != "" && fileExists(q.ContextImage)
}

type RowError struct {
	Row   int    `json:"row"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type LoadReport struct {
	ExamID        string     `json:"exam_id"`
	Source        string     `json:"source"`
	TotalRows     int        `json:"total_rows"`
	LoadedRows    int        `json:"loaded_rows"`
	SkippedRows   int        `json:"skipped_rows"`
	Errors        []RowError `json:"errors"`
	MissingImages []string   `json:"missing_images,omitempty"`
	LoadedAt      time.Time  `json:"loaded_at"`
}

type ServiceConfig struct {
	Root   string
	Logger *zap.Logger
	// OnLoad is called once per table read with outcome "ok", "empty",
	// "missing" or "malformed". Cache hits are not reported.
	OnLoad func(outcome string)
}

type Service struct {
	root   string
	logger *zap.Logger
	onLoad func(outcome string)

	mu    sync.RWMutex
	cache map[string]cachedExam
	group singleflight.Group
}

type cachedExam struct {
	fingerprint tableFingerprint
	questions   []Question
	report      *LoadReport
}

type tableFingerprint struct {
	path    string
	size    int64
	modTime int64
}

type loadResult struct {
	questions []Question
	report    *LoadReport
}

func NewService(cfg ServiceConfig) *Service {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		root = "exams"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	onLoad := cfg.OnLoad
	if onLoad == nil {
		onLoad = func(string) {}
	}
	return &Service{
		root:   root,
		logger: logger,
		onLoad: onLoad,
		cache:  make(map[string]cachedExam),
	}
}

func (s *Service) Root() string {
	return s.root
}

// ListExams returns the sorted names of the exam directories under the root.
// A missing root is created and yields an empty list.
func (s *Service) ListExams(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(s.root, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create exam root: %w", mkErr)
		}
		s.logger.Info("created exam root", zap.String("root", s.root))
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read exam root: %w", err)
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !validExamID(e.Name()) {
			s.logger.Warn("skipped exam directory with invalid name", zap.String("name", e.Name()))
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// LoadExam returns the questions of one exam. A table that parses but has no
// valid rows yields an empty slice and a nil error. The returned slice is
// shared between callers and must not be modified.
func (s *Service) LoadExam(ctx context.Context, examID string) ([]Question, *LoadReport, error) {
	examDir, err := s.examDir(examID)
	if err != nil {
		return nil, nil, err
	}
	fp, err := locateTable(examDir)
	if err != nil {
		if errors.Is(err, ErrExamDataMissing) {
			s.onLoad("missing")
		}
		return nil, nil, err
	}

	s.mu.RLock()
	cached, ok := s.cache[examID]
	s.mu.RUnlock()
	if ok && cached.fingerprint == fp {
		return cached.questions, cached.report, nil
	}

	ch := s.group.DoChan(examID+"\x00"+fp.key(), func() (interface{}, error) {
		// A flight that finished between the cache check and DoChan already
		// filled the cache.
		s.mu.RLock()
		cached, ok := s.cache[examID]
		s.mu.RUnlock()
		if ok && cached.fingerprint == fp {
			return loadResult{questions: cached.questions, report: cached.report}, nil
		}
		return s.readExam(examID, examDir, fp)
	})
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, res.Err
		}
		lr := res.Val.(loadResult)
		return lr.questions, lr.report, nil
	}
}

// Report loads the exam and returns only its load report.
func (s *Service) Report(ctx context.Context, examID string) (*LoadReport, error) {
	_, report, err := s.LoadExam(ctx, examID)
	return report, err
}

func (s *Service) readExam(examID, examDir string, fp tableFingerprint) (loadResult, error) {
	var (
		table *rawTable
		err   error
	)
	switch filepath.Base(fp.path) {
	case xlsxTableName:
		table, err = readXLSX(fp.path)
	default:
		table, err = readCSV(fp.path)
	}
	if err != nil {
		s.onLoad("malformed")
		s.logger.Error("load exam failed",
			zap.String("exam_id", examID),
			zap.String("source", fp.path),
			zap.Error(err),
		)
		return loadResult{}, fmt.Errorf("load %s: %w", examID, err)
	}

	questions, report, err := buildQuestions(table, examDir)
	if err != nil {
		s.onLoad("malformed")
		s.logger.Error("load exam failed",
			zap.String("exam_id", examID),
			zap.String("source", fp.path),
			zap.Error(err),
		)
		return loadResult{}, fmt.Errorf("load %s: %w", examID, err)
	}
	report.ExamID = examID
	report.Source = filepath.Base(fp.path)
	report.LoadedAt = time.Now()

	for _, re := range report.Errors {
		s.logger.Warn("skipped question row",
			zap.String("exam_id", examID),
			zap.Int("row", re.Row),
			zap.String("question_id", re.ID),
			zap.String("reason", re.Error),
		)
	}
	outcome := "ok"
	if len(questions) == 0 {
		outcome = "empty"
	}
	s.onLoad(outcome)
	s.logger.Info("exam loaded",
		zap.String("exam_id", examID),
		zap.String("source", report.Source),
		zap.Int("questions", len(questions)),
		zap.Int("skipped", report.SkippedRows),
	)

	s.mu.Lock()
	s.cache[examID] = cachedExam{fingerprint: fp, questions: questions, report: report}
	s.mu.Unlock()

	return loadResult{questions: questions, report: report}, nil
}

func (s *Service) examDir(examID string) (string, error) {
	if !validExamID(examID) {
		return "", ErrInvalidExamID
	}
	return filepath.Join(s.root, examID), nil
}

// validExamID accepts a single path element without surrounding whitespace.
func validExamID(id string) bool {
	return id != "" && strings.TrimSpace(id) == id && id != "." && id != ".." &&
		!strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

func locateTable(examDir string) (tableFingerprint, error) {
	for _, name := range []string{csvTableName, xlsxTableName} {
		p := filepath.Join(examDir, name)
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return tableFingerprint{}, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			continue
		}
		return tableFingerprint{path: p, size: info.Size(), modTime: info.ModTime().UnixNano()}, nil
	}
	return tableFingerprint{}, ErrExamDataMissing
}

func (f tableFingerprint) key() string {
	return fmt.Sprintf("%s:%d:%d", f.path, f.size, f.modTime)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
