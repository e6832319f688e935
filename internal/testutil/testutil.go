// Package testutil 测试用数据库和数据构造
package testutil

import (
	"fmt"
	"testing"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 创建独立的内存 sqlite 数据库并迁移表结构。
// 限制为单连接，事务之间串行执行
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// School 测试学校：一门课程、一名教师、两名选课学生和一名管理员
type School struct {
	ID       uint
	Course   model.Course
	Teacher  model.User
	Students []model.User
	Admin    model.User
}

func (s School) TeacherCaller() model.Caller {
	return model.Caller{UserID: s.Teacher.ID, Role: model.Teacher, SchoolID: s.ID}
}

func (s School) AdminCaller() model.Caller {
	return model.Caller{UserID: s.Admin.ID, Role: model.Admin, SchoolID: s.ID}
}

func (s School) StudentCaller(i int) model.Caller {
	return model.Caller{UserID: s.Students[i].ID, Role: model.Student, SchoolID: s.ID}
}

// SeedSchool 写入学校目录数据，邮箱包含学校 ID，多个学校可共用一个数据库
func SeedSchool(t *testing.T, db *gorm.DB, schoolID uint) School {
	t.Helper()

	s := School{ID: schoolID}
	s.Teacher = model.User{Name: "Teacher", Email: fmt.Sprintf("teacher%d@school.test", schoolID), Role: model.Teacher, SchoolID: schoolID}
	s.Admin = model.User{Name: "Admin", Email: fmt.Sprintf("admin%d@school.test", schoolID), Role: model.Admin, SchoolID: schoolID}
	s.Students = []model.User{
		{Name: "Alice", Email: fmt.Sprintf("alice%d@school.test", schoolID), Role: model.Student, SchoolID: schoolID},
		{Name: "Bob", Email: fmt.Sprintf("bob%d@school.test", schoolID), Role: model.Student, SchoolID: schoolID},
	}
	require.NoError(t, db.Create(&s.Teacher).Error)
	require.NoError(t, db.Create(&s.Admin).Error)
	require.NoError(t, db.Create(&s.Students).Error)

	s.Course = model.Course{SchoolID: schoolID, Title: "Algebra"}
	require.NoError(t, db.Create(&s.Course).Error)
	require.NoError(t, db.Create(&model.CourseTeacher{CourseID: s.Course.ID, UserID: s.Teacher.ID}).Error)
	for _, st := range s.Students {
		require.NoError(t, db.Create(&model.CourseStudent{CourseID: s.Course.ID, UserID: st.ID}).Error)
	}
	return s
}

// FourQuestionQuiz 四道题，总分 100，不设单题分值，正确选项均为 1
func FourQuestionQuiz(course model.Course, openedAt time.Time) *model.Quiz {
	questions := make([]model.QuizQuestion, 4)
	for i := range questions {
		questions[i] = model.QuizQuestion{
			Text:               fmt.Sprintf("Question %d", i+1),
			Options:            []string{"a", "b", "c"},
			CorrectOptionIndex: 1,
		}
	}
	return &model.Quiz{
		CourseID:     course.ID,
		SchoolID:     course.SchoolID,
		Title:        "Unit test",
		Questions:    questions,
		TotalMarks:   100,
		VisibleFrom:  openedAt,
		MaxAttempts:  1,
		RetakePolicy: model.DefaultRetakePolicy(),
		IsPublished:  true,
	}
}

// SeedQuiz 保存测验
func SeedQuiz(t *testing.T, db *gorm.DB, quiz *model.Quiz) *model.Quiz {
	t.Helper()
	require.NoError(t, db.Create(quiz).Error)
	return quiz
}

// LoseAttemptRaces 让接下来 n 次作答插入发生序号冲突：
// 在同一事务中先插入一条相同 (测验, 学生, 序号) 的记录
func LoseAttemptRaces(t *testing.T, db *gorm.DB, n int) {
	t.Helper()

	remaining := n
	inRival := false
	err := db.Callback().Create().Before("gorm:create").Register("testutil:rival_attempt", func(tx *gorm.DB) {
		sub, ok := tx.Statement.Dest.(*model.QuizSubmission)
		if !ok || inRival || remaining == 0 {
			return
		}
		remaining--
		inRival = true
		defer func() { inRival = false }()

		rival := *sub
		rival.ID = model.GenerateUUID()
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(&rival).Error; err != nil {
			tx.AddError(err)
		}
	})
	require.NoError(t, err)
}
