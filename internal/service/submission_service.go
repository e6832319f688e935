package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/repository"
	"quiz_engine/internal/util"
	"quiz_engine/pkg/logger"
	"quiz_engine/pkg/monitoring"
	"quiz_engine/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SubmissionService struct {
	Quizzes *repository.QuizRepository
	Ledger  *repository.SubmissionRepository

	retries atomic.Int32
	locks   *stripedLock
	now     func() time.Time
}

func NewSubmissionService(quizzes *repository.QuizRepository, ledger *repository.SubmissionRepository, retries int) *SubmissionService {
	s := &SubmissionService{
		Quizzes: quizzes,
		Ledger:  ledger,
		locks:   newStripedLock(64),
		now:     time.Now,
	}
	s.SetRetries(retries)
	return s
}

// WithClock 替换时间源，仅用于测试
func (s *SubmissionService) WithClock(now func() time.Time) *SubmissionService {
	s.now = now
	return s
}

// SetRetries 设置作答序号冲突后的重试次数
func (s *SubmissionService) SetRetries(n int) {
	if n < 0 {
		n = 0
	}
	s.retries.Store(int32(n))
}

func (s *SubmissionService) Retries() int {
	return int(s.retries.Load())
}

type SubmitResult struct {
	Submission    *model.QuizSubmission `json:"submission"`
	Score         float64               `json:"score"`
	Total         int                   `json:"total"`
	Percentage    float64               `json:"percentage"`
	AttemptNumber int                   `json:"attemptNumber"`
	MaxAttempts   int                   `json:"maxAttempts"`
	Performance   string                `json:"performance"`
}

// Submit 评分并记录一次作答，要么完整写入要么不写入
func (s *SubmissionService) Submit(ctx context.Context, caller model.Caller, quizID string, rawAnswers json.RawMessage) (res *SubmitResult, err error) {
	ctx, span := tracing.Tracer.Start(ctx, "quiz.submit", trace.WithAttributes(
		attribute.String("quiz.id", quizID),
		attribute.Int64("student.id", int64(caller.UserID)),
	))
	defer func() {
		outcome := submitOutcome(err)
		monitoring.SubmissionsTotal.WithLabelValues(outcome).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetAttributes(attribute.Int("quiz.attempt", res.AttemptNumber))
		}
		span.End()
	}()

	if err := requireStudent(caller); err != nil {
		return nil, err
	}

	quiz, err := loadQuizForCaller(ctx, s.Quizzes, caller, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.IsPublished {
		return nil, util.NewValidationError("quiz is not published")
	}

	answers, err := decodeAnswers(rawAnswers)
	if err != nil {
		return nil, err
	}

	if err := CheckSubmissionWindow(quiz, s.now()); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(quiz.ID, caller.UserID)
	defer unlock()

	retries := int(s.retries.Load())
	for try := 0; ; try++ {
		sub, err := s.record(ctx, quiz, caller.UserID, answers)
		if err == nil {
			logger.Log.Info("quiz submitted",
				zap.String("quiz_id", quiz.ID),
				zap.Uint("student_id", caller.UserID),
				zap.Int("attempt", sub.AttemptNumber),
				zap.Float64("score", sub.Score),
			)
			monitoring.ScorePercentage.Observe(sub.Percentage)
			return &SubmitResult{
				Submission:    sub,
				Score:         sub.Score,
				Total:         sub.TotalMarks,
				Percentage:    sub.Percentage,
				AttemptNumber: sub.AttemptNumber,
				MaxAttempts:   quiz.MaxAttempts,
				Performance:   PerformanceLabel(sub.Percentage),
			}, nil
		}
		if !errors.Is(err, util.ErrConcurrencyConflict) {
			return nil, err
		}
		monitoring.AttemptConflicts.Inc()
		if try >= retries {
			logger.Log.Error("attempt allocation retries exhausted",
				zap.String("quiz_id", quiz.ID),
				zap.Uint("student_id", caller.UserID),
				zap.Int("retries", retries),
			)
			return nil, err
		}
		logger.Log.Warn("attempt allocation conflict, retrying",
			zap.String("quiz_id", quiz.ID),
			zap.Uint("student_id", caller.UserID),
		)
	}
}

// record 在同一事务中完成读取记录、策略判定、评分和写入
func (s *SubmissionService) record(ctx context.Context, quiz *model.Quiz, studentID uint, answers []interface{}) (*model.QuizSubmission, error) {
	uow, err := s.Ledger.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Release()

	history, err := uow.History(quiz.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("read attempt history: %w", err)
	}

	now := s.now()
	decision := EvaluateAttempt(quiz, history, now)
	if !decision.Allowed {
		monitoring.PolicyDenials.WithLabelValues(string(decision.Reason)).Inc()
		logger.Log.Info("attempt denied",
			zap.String("quiz_id", quiz.ID),
			zap.Uint("student_id", studentID),
			zap.String("reason", string(decision.Reason)),
		)
		return nil, decision.Err()
	}

	graded, err := GradeQuiz(quiz, answers)
	if err != nil {
		return nil, err
	}

	sub := &model.QuizSubmission{
		QuizID:        quiz.ID,
		CourseID:      quiz.CourseID,
		StudentID:     studentID,
		AttemptNumber: decision.NextAttempt,
		Answers:       graded.Answers,
		Score:         graded.Score,
		Percentage:    graded.Percentage,
		TotalMarks:    graded.TotalMarks,
		SubmittedAt:   now,
	}
	if err := uow.Append(sub); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return sub, nil
}

func decodeAnswers(raw json.RawMessage) ([]interface{}, error) {
	var answers []interface{}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, util.NewValidationError("answers must be an array")
	}
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, util.NewValidationError("answers must be an array")
	}
	return answers, nil
}

func submitOutcome(err error) string {
	var (
		ve *util.ValidationError
		nf *util.NotFoundError
		fe *util.ForbiddenError
		pe *util.PolicyDeniedError
		we *util.WindowClosedError
	)
	switch {
	case err == nil:
		return "accepted"
	case errors.As(err, &pe):
		return "policy_denied"
	case errors.As(err, &we):
		return "window_closed"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &fe):
		return "forbidden"
	case errors.As(err, &nf):
		return "not_found"
	case errors.Is(err, util.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

// stripedLock 在进程内串行化同一 (测验, 学生) 的提交，跨进程依赖唯一索引和冲突重试
type stripedLock struct {
	stripes []sync.Mutex
}

func newStripedLock(n int) *stripedLock {
	return &stripedLock{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLock) Lock(quizID string, studentID uint) func() {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", quizID, studentID)
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
