package service

import (
	"fmt"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/util"
)

// AttemptDecision 下一次作答的策略判定结果
type AttemptDecision struct {
	Allowed     bool
	NextAttempt int
	Reason      util.PolicyReason
	Message     string
}

// Err 被拒绝时返回 *util.PolicyDeniedError，允许时返回 nil
func (d AttemptDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &util.PolicyDeniedError{Reason: d.Reason, Message: d.Message}
}

func deny(next int, reason util.PolicyReason, format string, args ...interface{}) AttemptDecision {
	return AttemptDecision{NextAttempt: next, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// EvaluateAttempt 判断学生能否再次作答，history 需按作答序号倒序
func EvaluateAttempt(quiz *model.Quiz, history []model.QuizSubmission, now time.Time) AttemptDecision {
	next := 1
	if len(history) > 0 {
		next = history[0].AttemptNumber + 1
	}

	if next > quiz.MaxAttempts {
		return deny(next, util.MaxAttemptsReached,
			"You have used all %d attempt(s) for this quiz", quiz.MaxAttempts)
	}

	if len(history) > 0 && quiz.MaxAttempts > 1 {
		policy := quiz.RetakePolicy
		last := history[0]

		if !policy.AllowRetake {
			return deny(next, util.RetakeNotAllowed, "Retakes are not allowed for this quiz")
		}

		elapsedDays := now.Sub(last.SubmittedAt).Hours() / 24
		if elapsedDays < policy.DaysBetweenAttempts {
			return deny(next, util.CooldownActive,
				"You can retake this quiz in %.1f day(s)", policy.DaysBetweenAttempts-elapsedDays)
		}

		if last.Score/float64(quiz.TotalMarks)*100 >= policy.MinScoreToPass {
			return deny(next, util.AlreadyPassed,
				"You have already passed this quiz (pass mark %.0f%%)", policy.MinScoreToPass)
		}
	}

	return AttemptDecision{Allowed: true, NextAttempt: next}
}

// AttemptsStatus 学生剩余作答次数
type AttemptsStatus struct {
	AttemptsUsed      int    `json:"attemptsUsed"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	MaxAttempts       int    `json:"maxAttempts"`
	CanRetake         bool   `json:"canRetake"`
	RetakeMessage     string `json:"retakeMessage"`
	Reason            string `json:"reason,omitempty"`
}

// AttemptsRemaining 查询剩余次数和重做状态，无副作用
func AttemptsRemaining(quiz *model.Quiz, history []model.QuizSubmission, now time.Time) AttemptsStatus {
	used := 0
	if len(history) > 0 {
		used = history[0].AttemptNumber
	}
	remaining := quiz.MaxAttempts - used
	if remaining < 0 {
		remaining = 0
	}

	status := AttemptsStatus{
		AttemptsUsed:      used,
		AttemptsRemaining: remaining,
		MaxAttempts:       quiz.MaxAttempts,
	}

	d := EvaluateAttempt(quiz, history, now)
	status.CanRetake = d.Allowed
	switch {
	case !d.Allowed:
		status.RetakeMessage = d.Message
		status.Reason = string(d.Reason)
	case used == 0:
		status.RetakeMessage = "You can take this quiz"
	default:
		status.RetakeMessage = fmt.Sprintf("You can retake this quiz. %d attempt(s) remaining", remaining)
	}
	return status
}
