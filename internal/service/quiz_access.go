package service

import (
	"context"

	"quiz_engine/internal/model"
	"quiz_engine/internal/repository"
	"quiz_engine/internal/util"
)

// Directory 目录服务，查询课程和人员，引擎只读
type Directory interface {
	GetCourse(ctx context.Context, courseID uint) (*model.Course, error)
	IsCourseTeacher(ctx context.Context, courseID, userID uint) (bool, error)
	CourseStudentIDs(ctx context.Context, courseID uint) ([]uint, error)
	GetUser(ctx context.Context, userID uint) (*model.User, error)
	GetUsers(ctx context.Context, ids []uint) (map[uint]model.User, error)
}

// loadQuizForCaller 校验 ID、加载测验并检查学校归属
func loadQuizForCaller(ctx context.Context, repo *repository.QuizRepository, caller model.Caller, quizID string) (*model.Quiz, error) {
	if !model.IsUUID(quizID) {
		return nil, util.NewValidationError("invalid quiz id")
	}
	quiz, err := repo.FindByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !caller.SameSchool(quiz.SchoolID) {
		return nil, util.NewForbiddenError("quiz belongs to another school")
	}
	return quiz, nil
}

// isCourseStaff 管理员或该课程教师，调用前需已检查学校归属
func isCourseStaff(ctx context.Context, dir Directory, caller model.Caller, courseID uint) (bool, error) {
	switch {
	case caller.IsAdmin():
		return true, nil
	case caller.IsTeacher():
		return dir.IsCourseTeacher(ctx, courseID, caller.UserID)
	default:
		return false, nil
	}
}

func requireCourseStaff(ctx context.Context, dir Directory, caller model.Caller, courseID uint) error {
	ok, err := isCourseStaff(ctx, dir, caller, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return util.NewForbiddenError("only the course teacher or an admin can do this")
	}
	return nil
}

func requireStudent(caller model.Caller) error {
	if !caller.IsStudent() {
		return util.NewForbiddenError("only students can do this")
	}
	return nil
}
