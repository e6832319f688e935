package repository

import (
	"context"
	"errors"

	"quiz_engine/internal/model"
	"quiz_engine/internal/util"

	"gorm.io/gorm"
)

// DirectoryRepository 查询课程、任课教师和选课学生。
// 这些表由教务服务维护，此处只读
type DirectoryRepository struct {
	DB *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{DB: db}
}

func (r *DirectoryRepository) GetCourse(ctx context.Context, courseID uint) (*model.Course, error) {
	var course model.Course
	err := r.DB.WithContext(ctx).First(&course, courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NewNotFoundError("course")
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *DirectoryRepository) IsCourseTeacher(ctx context.Context, courseID, userID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&model.CourseTeacher{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *DirectoryRepository) CourseStudentIDs(ctx context.Context, courseID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Model(&model.CourseStudent{}).
		Where("course_id = ?", courseID).
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *DirectoryRepository) GetUser(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NewNotFoundError("student")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsers 按 ID 批量获取用户，不存在的 ID 不出现在结果中
func (r *DirectoryRepository) GetUsers(ctx context.Context, ids []uint) (map[uint]model.User, error) {
	out := make(map[uint]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []model.User
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
