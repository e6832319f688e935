package service

import (
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/util"
)

// IsOpenForSubmission 只限制提交，查看和导出不受影响
func IsOpenForSubmission(quiz *model.Quiz, now time.Time) bool {
	return quiz.IsPublished &&
		!quiz.VisibleFrom.After(now) &&
		(quiz.VisibleUntil == nil || !now.After(*quiz.VisibleUntil))
}

// CheckSubmissionWindow 不可提交时返回原因，否则返回 nil
func CheckSubmissionWindow(quiz *model.Quiz, now time.Time) error {
	if IsOpenForSubmission(quiz, now) {
		return nil
	}
	if quiz.VisibleFrom.After(now) {
		return &util.WindowClosedError{
			NotYetOpen: true,
			Message:    "Quiz has not started yet. It opens at " + quiz.VisibleFrom.Format(time.RFC3339),
		}
	}
	if quiz.VisibleUntil != nil && now.After(*quiz.VisibleUntil) {
		return &util.WindowClosedError{
			Message: "Quiz deadline has passed. It closed at " + quiz.VisibleUntil.Format(time.RFC3339),
		}
	}
	return util.NewValidationError("quiz is not published")
}
