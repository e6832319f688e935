package repository

import (
	"context"
	"errors"

	"quiz_engine/internal/model"
	"quiz_engine/internal/util"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) Create(ctx context.Context, quiz *model.Quiz) error {
	return r.DB.WithContext(ctx).Create(quiz).Error
}

func (r *QuizRepository) FindByID(ctx context.Context, id string) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.WithContext(ctx).First(&quiz, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NewNotFoundError("quiz")
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// ListPublishedByCourse 获取课程已发布的测验，按创建时间倒序
func (r *QuizRepository) ListPublishedByCourse(ctx context.Context, courseID uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.DB.WithContext(ctx).
		Where("course_id = ? AND is_published = ?", courseID, true).
		Order("created_at desc").
		Find(&quizzes).Error
	return quizzes, err
}
