package repository

import (
	"context"
	"errors"

	"quiz_engine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionRepository 作答记录仓储，只插入不更新
type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// ListByQuiz 获取测验下所有学生的全部作答
func (r *SubmissionRepository) ListByQuiz(ctx context.Context, quizID string) ([]model.QuizSubmission, error) {
	var subs []model.QuizSubmission
	err := r.DB.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("submitted_at desc").
		Find(&subs).Error
	return subs, err
}

// History 获取学生的作答记录，按作答序号倒序
func (r *SubmissionRepository) History(ctx context.Context, quizID string, studentID uint) ([]model.QuizSubmission, error) {
	return history(r.DB.WithContext(ctx), quizID, studentID)
}

// Latest 获取最近一次作答，没有时返回 nil
func (r *SubmissionRepository) Latest(ctx context.Context, quizID string, studentID uint) (*model.QuizSubmission, error) {
	var sub model.QuizSubmission
	err := r.DB.WithContext(ctx).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Order("attempt_number desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func history(db *gorm.DB, quizID string, studentID uint) ([]model.QuizSubmission, error) {
	var subs []model.QuizSubmission
	err := db.
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Order("attempt_number desc").
		Find(&subs).Error
	return subs, err
}

// Begin 为一次提交开启事务，调用方需 defer Release
func (r *SubmissionRepository) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx := r.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &UnitOfWork{tx: tx}, nil
}

// UnitOfWork 一次提交的读-写在同一事务中完成
type UnitOfWork struct {
	tx   *gorm.DB
	done bool
}

// History 在事务内读取该学生的作答记录并加行锁。MySQL 上空区间只加间隙锁，
// 并发的首次提交会在插入时死锁，由 Append 归类为冲突后重试。
func (u *UnitOfWork) History(quizID string, studentID uint) ([]model.QuizSubmission, error) {
	subs, err := history(u.tx.Clauses(clause.Locking{Strength: "UPDATE"}), quizID, studentID)
	if err != nil {
		return nil, asConflict(err, "lock attempt history of quiz %s student %d", quizID, studentID)
	}
	return subs, nil
}

// Append 插入一次作答。唯一键冲突、死锁和序列化失败都返回 util.ErrConcurrencyConflict
func (u *UnitOfWork) Append(sub *model.QuizSubmission) error {
	if err := u.tx.Create(sub).Error; err != nil {
		return asConflict(err, "quiz %s student %d attempt %d", sub.QuizID, sub.StudentID, sub.AttemptNumber)
	}
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.done {
		return errors.New("unit of work already finished")
	}
	u.done = true
	if err := u.tx.Commit().Error; err != nil {
		return asConflict(err, "commit attempt")
	}
	return nil
}

// Release 在未提交时回滚，可重复调用
func (u *UnitOfWork) Release() {
	if u.done {
		return
	}
	u.done = true
	u.tx.Rollback()
}
