package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/repository"
	"quiz_engine/internal/util"
	"quiz_engine/pkg/logger"
	"quiz_engine/pkg/monitoring"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type QuizService struct {
	Repo          *repository.QuizRepository
	Directory     Directory
	Notifier      Notifier
	NotifyTimeout time.Duration

	validate *validator.Validate
	now      func() time.Time
}

func NewQuizService(repo *repository.QuizRepository, dir Directory, notifier Notifier, notifyTimeout time.Duration) *QuizService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &QuizService{
		Repo:          repo,
		Directory:     dir,
		Notifier:      notifier,
		NotifyTimeout: notifyTimeout,
		validate:      validator.New(),
		now:           time.Now,
	}
}

// WithClock 替换时间源，仅用于测试
func (s *QuizService) WithClock(now func() time.Time) *QuizService {
	s.now = now
	return s
}

type QuizQuestionReq struct {
	Text               string   `json:"text" validate:"required"`
	Options            []string `json:"options" validate:"required,min=2,dive,required"`
	CorrectOptionIndex *int     `json:"correctOptionIndex" validate:"required"`
	Marks              float64  `json:"marks"`
}

type RetakePolicyReq struct {
	AllowRetake         *bool    `json:"allowRetake"`
	MinScoreToPass      *float64 `json:"minScoreToPass"`
	DaysBetweenAttempts *float64 `json:"daysBetweenAttempts"`
}

type CreateQuizReq struct {
	Title           string            `json:"title" validate:"required,max=255"`
	Description     string            `json:"description"`
	Questions       []QuizQuestionReq `json:"questions" validate:"required,min=1,dive"`
	TotalMarks      int               `json:"totalMarks" validate:"gt=0"`
	DurationMinutes *int              `json:"durationMinutes" validate:"omitempty,gt=0"`
	VisibleUntil    *time.Time        `json:"visibleUntil"`
	MaxAttempts     *int              `json:"maxAttempts" validate:"omitempty,gte=1"`
	RetakePolicy    *RetakePolicyReq  `json:"retakePolicy"`
}

// QuizQuestionView 返回给调用者的题目，仅课程教职人员可见 CorrectOptionIndex
type QuizQuestionView struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	Marks              float64  `json:"marks"`
	CorrectOptionIndex *int     `json:"correctOptionIndex,omitempty"`
}

type QuizView struct {
	ID              string             `json:"id"`
	CourseID        uint               `json:"courseId"`
	SchoolID        uint               `json:"schoolId"`
	CreatedBy       uint               `json:"createdBy"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Questions       []QuizQuestionView `json:"questions"`
	QuestionCount   int                `json:"questionCount"`
	TotalMarks      int                `json:"totalMarks"`
	DurationMinutes *int               `json:"durationMinutes,omitempty"`
	VisibleFrom     time.Time          `json:"visibleFrom"`
	VisibleUntil    *time.Time         `json:"visibleUntil,omitempty"`
	MaxAttempts     int                `json:"maxAttempts"`
	RetakePolicy    model.RetakePolicy `json:"retakePolicy"`
	IsPublished     bool               `json:"isPublished"`
	IsExpired       bool               `json:"isExpired"`
	CreatedAt       time.Time          `json:"createdAt"`
}

func NewQuizView(q *model.Quiz, withAnswers bool, now time.Time) QuizView {
	questions := make([]QuizQuestionView, len(q.Questions))
	for i, qq := range q.Questions {
		questions[i] = QuizQuestionView{
			Text:    qq.Text,
			Options: qq.Options,
			Marks:   QuestionMarks(q, i),
		}
		if withAnswers {
			idx := qq.CorrectOptionIndex
			questions[i].CorrectOptionIndex = &idx
		}
	}
	return QuizView{
		ID:              q.ID,
		CourseID:        q.CourseID,
		SchoolID:        q.SchoolID,
		CreatedBy:       q.CreatedBy,
		Title:           q.Title,
		Description:     q.Description,
		Questions:       questions,
		QuestionCount:   len(questions),
		TotalMarks:      q.TotalMarks,
		DurationMinutes: q.DurationMinutes,
		VisibleFrom:     q.VisibleFrom,
		VisibleUntil:    q.VisibleUntil,
		MaxAttempts:     q.MaxAttempts,
		RetakePolicy:    q.RetakePolicy,
		IsPublished:     q.IsPublished,
		IsExpired:       q.IsExpired(now),
		CreatedAt:       q.CreatedAt,
	}
}

// CreateQuiz 校验并发布课程测验，然后发送通知
func (s *QuizService) CreateQuiz(ctx context.Context, caller model.Caller, courseID uint, req CreateQuizReq) (*QuizView, error) {
	course, err := s.Directory.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !caller.SameSchool(course.SchoolID) {
		return nil, util.NewForbiddenError("course belongs to another school")
	}
	if err := requireCourseStaff(ctx, s.Directory, caller, course.ID); err != nil {
		return nil, err
	}

	now := s.now()
	quiz, err := s.buildQuiz(req, now)
	if err != nil {
		return nil, err
	}
	quiz.CourseID = course.ID
	quiz.SchoolID = course.SchoolID
	quiz.CreatedBy = caller.UserID

	if err := s.Repo.Create(ctx, quiz); err != nil {
		return nil, err
	}
	monitoring.QuizzesCreated.Inc()

	logger.Log.Info("quiz created",
		zap.String("quiz_id", quiz.ID),
		zap.Uint("course_id", quiz.CourseID),
		zap.Uint("created_by", caller.UserID),
		zap.Int("questions", len(quiz.Questions)),
	)

	s.announce(ctx, quiz)

	view := NewQuizView(quiz, true, now)
	return &view, nil
}

func (s *QuizService) buildQuiz(req CreateQuizReq, now time.Time) (*model.Quiz, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationMessage(err)
	}

	questions := make([]model.QuizQuestion, len(req.Questions))
	for i, q := range req.Questions {
		idx := *q.CorrectOptionIndex
		if idx < 0 || idx >= len(q.Options) {
			return nil, util.NewValidationError("question %d: correctOptionIndex %d is out of range [0, %d)", i+1, idx, len(q.Options))
		}
		questions[i] = model.QuizQuestion{
			Text:               strings.TrimSpace(q.Text),
			Options:            q.Options,
			CorrectOptionIndex: idx,
			Marks:              q.Marks,
		}
	}

	if req.VisibleUntil != nil && !req.VisibleUntil.After(now) {
		return nil, util.NewValidationError("visibleUntil must be in the future")
	}

	maxAttempts := 1
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}

	policy := model.DefaultRetakePolicy()
	if maxAttempts > 1 {
		policy.AllowRetake = true
		if p := req.RetakePolicy; p != nil {
			if p.AllowRetake != nil {
				policy.AllowRetake = *p.AllowRetake
			}
			if p.MinScoreToPass != nil {
				policy.MinScoreToPass = *p.MinScoreToPass
			}
			if p.DaysBetweenAttempts != nil {
				policy.DaysBetweenAttempts = *p.DaysBetweenAttempts
			}
		}
		if policy.MinScoreToPass < 0 || policy.MinScoreToPass > 100 {
			return nil, util.NewValidationError("retakePolicy.minScoreToPass must be between 0 and 100")
		}
		if policy.DaysBetweenAttempts < 0 {
			return nil, util.NewValidationError("retakePolicy.daysBetweenAttempts must be >= 0")
		}
	}

	return &model.Quiz{
		Title:           req.Title,
		Description:     req.Description,
		Questions:       questions,
		TotalMarks:      req.TotalMarks,
		DurationMinutes: req.DurationMinutes,
		VisibleFrom:     now,
		VisibleUntil:    req.VisibleUntil,
		MaxAttempts:     maxAttempts,
		RetakePolicy:    policy,
		IsPublished:     true,
	}, nil
}

// announce 通知失败只记录日志，测验已经创建成功
func (s *QuizService) announce(ctx context.Context, quiz *model.Quiz) {
	if s.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.NotifyTimeout)
		defer cancel()
	}

	recipients, err := s.Directory.CourseStudentIDs(ctx, quiz.CourseID)
	if err != nil {
		logger.Log.Warn("resolve quiz recipients failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
		return
	}

	evt := QuizPublishedEvent{
		Event:        EventQuizPublished,
		QuizID:       quiz.ID,
		CourseID:     quiz.CourseID,
		SchoolID:     quiz.SchoolID,
		Title:        quiz.Title,
		VisibleUntil: quiz.VisibleUntil,
		Recipients:   recipients,
		PublishedAt:  quiz.VisibleFrom,
	}
	if err := s.Notifier.QuizPublished(ctx, evt); err != nil {
		logger.Log.Warn("quiz published notification failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
	}
}

// ListQuizzes 获取课程已发布测验（不含答案），学生看不到已截止的测验
func (s *QuizService) ListQuizzes(ctx context.Context, caller model.Caller, courseID uint) ([]QuizView, error) {
	course, err := s.Directory.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !caller.SameSchool(course.SchoolID) {
		return nil, util.NewForbiddenError("course belongs to another school")
	}
	staff, err := isCourseStaff(ctx, s.Directory, caller, course.ID)
	if err != nil {
		return nil, err
	}

	quizzes, err := s.Repo.ListPublishedByCourse(ctx, course.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]QuizView, 0, len(quizzes))
	for i := range quizzes {
		if !staff && quizzes[i].IsExpired(now) {
			continue
		}
		views = append(views, NewQuizView(&quizzes[i], false, now))
	}
	return views, nil
}

// GetQuiz 获取单个测验，已截止的测验设置 IsExpired
func (s *QuizService) GetQuiz(ctx context.Context, caller model.Caller, quizID string) (*QuizView, error) {
	quiz, err := loadQuizForCaller(ctx, s.Repo, caller, quizID)
	if err != nil {
		return nil, err
	}
	staff, err := isCourseStaff(ctx, s.Directory, caller, quiz.CourseID)
	if err != nil {
		return nil, err
	}
	view := NewQuizView(quiz, staff, s.now())
	return &view, nil
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return util.NewValidationError("%s", err.Error())
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "CreateQuizReq.")
	switch fe.Tag() {
	case "required":
		return util.NewValidationError("%s is required", field)
	case "min":
		return util.NewValidationError("%s must have at least %s item(s)", field, fe.Param())
	case "gt":
		return util.NewValidationError("%s must be greater than %s", field, fe.Param())
	case "gte":
		return util.NewValidationError("%s must be at least %s", field, fe.Param())
	default:
		return util.NewValidationError("%s is invalid (%s)", field, fe.Tag())
	}
}
