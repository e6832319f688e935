package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/repository"
	"quiz_engine/internal/util"
	"quiz_engine/pkg/logger"

	"go.uber.org/zap"
)

type ResultService struct {
	Quizzes   *repository.QuizRepository
	Ledger    *repository.SubmissionRepository
	Directory Directory

	now func() time.Time
}

func NewResultService(quizzes *repository.QuizRepository, ledger *repository.SubmissionRepository, dir Directory) *ResultService {
	return &ResultService{
		Quizzes:   quizzes,
		Ledger:    ledger,
		Directory: dir,
		now:       time.Now,
	}
}

// WithClock 替换时间源，仅用于测试
func (s *ResultService) WithClock(now func() time.Time) *ResultService {
	s.now = now
	return s
}

// StudentResult 成绩单中的一行，即学生最近一次作答
type StudentResult struct {
	StudentID      uint                 `json:"studentId"`
	StudentName    string               `json:"studentName"`
	StudentEmail   string               `json:"studentEmail"`
	SubmissionID   string               `json:"submissionId"`
	AttemptNumber  int                  `json:"attemptNumber"`
	Score          float64              `json:"score"`
	TotalMarks     int                  `json:"totalMarks"`
	Percentage     float64              `json:"percentage"`
	CorrectCount   int                  `json:"correctCount"`
	IncorrectCount int                  `json:"incorrectCount"`
	QuestionCount  int                  `json:"questionCount"`
	Performance    string               `json:"performance"`
	SubmittedAt    time.Time            `json:"submittedAt"`
	Answers        []model.GradedAnswer `json:"answers"`
}

// MyLatestResult 获取调用者最近一次作答，尚未作答时返回 nil
func (s *ResultService) MyLatestResult(ctx context.Context, caller model.Caller, quizID string) (*model.QuizSubmission, error) {
	quiz, err := loadQuizForCaller(ctx, s.Quizzes, caller, quizID)
	if err != nil {
		return nil, err
	}
	return s.Ledger.Latest(ctx, quiz.ID, caller.UserID)
}

func (s *ResultService) AttemptsRemaining(ctx context.Context, caller model.Caller, quizID string) (*AttemptsStatus, error) {
	if err := requireStudent(caller); err != nil {
		return nil, err
	}
	quiz, err := loadQuizForCaller(ctx, s.Quizzes, caller, quizID)
	if err != nil {
		return nil, err
	}
	history, err := s.Ledger.History(ctx, quiz.ID, caller.UserID)
	if err != nil {
		return nil, err
	}
	status := AttemptsRemaining(quiz, history, s.now())
	return &status, nil
}

// LatestPerStudent 每个学生只保留最近一次作答，按提交时间倒序
func (s *ResultService) LatestPerStudent(ctx context.Context, caller model.Caller, quizID string) ([]StudentResult, error) {
	quiz, err := s.staffQuiz(ctx, caller, quizID)
	if err != nil {
		return nil, err
	}
	return s.latestPerStudent(ctx, quiz)
}

func (s *ResultService) latestPerStudent(ctx context.Context, quiz *model.Quiz) ([]StudentResult, error) {
	subs, err := s.Ledger.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	latest := make(map[uint]model.QuizSubmission)
	for _, sub := range subs {
		if cur, ok := latest[sub.StudentID]; !ok || sub.AttemptNumber > cur.AttemptNumber {
			latest[sub.StudentID] = sub
		}
	}

	ids := make([]uint, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	users, err := s.Directory.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]StudentResult, 0, len(latest))
	for id, sub := range latest {
		user, ok := users[id]
		if !ok {
			logger.Log.Warn("submission from unknown student",
				zap.String("quiz_id", quiz.ID),
				zap.Uint("student_id", id),
			)
		}
		correct := sub.CorrectCount()
		rows = append(rows, StudentResult{
			StudentID:      id,
			StudentName:    user.Name,
			StudentEmail:   user.Email,
			SubmissionID:   sub.ID,
			AttemptNumber:  sub.AttemptNumber,
			Score:          sub.Score,
			TotalMarks:     sub.TotalMarks,
			Percentage:     sub.Percentage,
			CorrectCount:   correct,
			IncorrectCount: len(sub.Answers) - correct,
			QuestionCount:  len(sub.Answers),
			Performance:    PerformanceLabel(sub.Percentage),
			SubmittedAt:    sub.SubmittedAt,
			Answers:        sub.Answers,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SubmittedAt.Equal(rows[j].SubmittedAt) {
			return rows[i].StudentID < rows[j].StudentID
		}
		return rows[i].SubmittedAt.After(rows[j].SubmittedAt)
	})
	return rows, nil
}

// StudentAttempts 获取某个学生的全部作答，按作答序号升序
func (s *ResultService) StudentAttempts(ctx context.Context, caller model.Caller, quizID string, studentID uint) ([]model.QuizSubmission, error) {
	quiz, err := s.staffQuiz(ctx, caller, quizID)
	if err != nil {
		return nil, err
	}
	student, err := s.Directory.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !caller.SameSchool(student.SchoolID) {
		return nil, util.NewForbiddenError("student belongs to another school")
	}

	history, err := s.Ledger.History(ctx, quiz.ID, student.ID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

var csvHeader = []string{
	"Student Name", "Student ID", "Email",
	"Obtained Marks", "Total Marks", "Percentage",
	"Correct", "Incorrect", "Questions", "Submitted At",
}

// ExportCSV 导出成绩单 CSV，返回文件内容和根据测验标题生成的文件名
func (s *ResultService) ExportCSV(ctx context.Context, caller model.Caller, quizID string) ([]byte, string, error) {
	quiz, err := s.staffQuiz(ctx, caller, quizID)
	if err != nil {
		return nil, "", err
	}
	rows, err := s.latestPerStudent(ctx, quiz)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, r := range rows {
		record := []string{
			r.StudentName,
			strconv.FormatUint(uint64(r.StudentID), 10),
			r.StudentEmail,
			strconv.FormatFloat(r.Score, 'f', -1, 64),
			strconv.Itoa(r.TotalMarks),
			strconv.FormatFloat(r.Percentage, 'f', 1, 64),
			strconv.Itoa(r.CorrectCount),
			strconv.Itoa(r.IncorrectCount),
			strconv.Itoa(r.QuestionCount),
			r.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}

	logger.Log.Info("quiz results exported",
		zap.String("quiz_id", quiz.ID),
		zap.Uint("exported_by", caller.UserID),
		zap.Int("rows", len(rows)),
	)
	return buf.Bytes(), exportFilename(quiz.Title, s.now()), nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func exportFilename(title string, now time.Time) string {
	base := strings.Trim(unsafeFilename.ReplaceAllString(title, "_"), "_")
	if base == "" {
		base = "quiz"
	}
	return fmt.Sprintf("%s_results_%s.csv", base, now.UTC().Format("20060102"))
}

func (s *ResultService) staffQuiz(ctx context.Context, caller model.Caller, quizID string) (*model.Quiz, error) {
	quiz, err := loadQuizForCaller(ctx, s.Quizzes, caller, quizID)
	if err != nil {
		return nil, err
	}
	if err := requireCourseStaff(ctx, s.Directory, caller, quiz.CourseID); err != nil {
		return nil, err
	}
	return quiz, nil
}
