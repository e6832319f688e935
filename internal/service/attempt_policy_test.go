package service

import (
	"testing"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/testutil"
	"quiz_engine/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var policyNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func retakeQuiz() *model.Quiz {
	quiz := testutil.FourQuestionQuiz(model.Course{}, policyNow.Add(-30*24*time.Hour))
	quiz.MaxAttempts = 2
	quiz.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 60, DaysBetweenAttempts: 1}
	return quiz
}

func attempt(n int, score float64, at time.Time) model.QuizSubmission {
	return model.QuizSubmission{AttemptNumber: n, Score: score, Percentage: score, TotalMarks: 100, SubmittedAt: at}
}

func TestEvaluateAttempt_FirstAttempt(t *testing.T) {
	d := EvaluateAttempt(retakeQuiz(), nil, policyNow)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.NextAttempt)
	assert.NoError(t, d.Err())
}

func TestEvaluateAttempt_CooldownActive(t *testing.T) {
	history := []model.QuizSubmission{attempt(1, 40, policyNow.Add(-12*time.Hour))}

	d := EvaluateAttempt(retakeQuiz(), history, policyNow)
	require.False(t, d.Allowed)
	assert.Equal(t, util.CooldownActive, d.Reason)
	assert.Equal(t, "You can retake this quiz in 0.5 day(s)", d.Message)
	assert.True(t, util.IsPolicyDenied(d.Err(), util.CooldownActive))
}

func TestEvaluateAttempt_AfterCooldown(t *testing.T) {
	history := []model.QuizSubmission{attempt(1, 40, policyNow.Add(-25*time.Hour))}

	d := EvaluateAttempt(retakeQuiz(), history, policyNow)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.NextAttempt)
}

func TestEvaluateAttempt_AlreadyPassed(t *testing.T) {
	history := []model.QuizSubmission{attempt(1, 70, policyNow.Add(-48*time.Hour))}

	d := EvaluateAttempt(retakeQuiz(), history, policyNow)
	require.False(t, d.Allowed)
	assert.Equal(t, util.AlreadyPassed, d.Reason)
}

func TestEvaluateAttempt_PassMarkIsInclusive(t *testing.T) {
	history := []model.QuizSubmission{attempt(1, 60, policyNow.Add(-48*time.Hour))}

	d := EvaluateAttempt(retakeQuiz(), history, policyNow)
	assert.Equal(t, util.AlreadyPassed, d.Reason)
}

func TestEvaluateAttempt_RetakeNotAllowed(t *testing.T) {
	quiz := retakeQuiz()
	quiz.RetakePolicy.AllowRetake = false
	history := []model.QuizSubmission{attempt(1, 10, policyNow.Add(-48*time.Hour))}

	d := EvaluateAttempt(quiz, history, policyNow)
	assert.Equal(t, util.RetakeNotAllowed, d.Reason)
}

func TestEvaluateAttempt_MaxAttemptsComesFirst(t *testing.T) {
	// 处于冷却期且已通过，但优先报告次数用尽
	history := []model.QuizSubmission{
		attempt(2, 90, policyNow.Add(-time.Hour)),
		attempt(1, 40, policyNow.Add(-72*time.Hour)),
	}

	d := EvaluateAttempt(retakeQuiz(), history, policyNow)
	require.False(t, d.Allowed)
	assert.Equal(t, util.MaxAttemptsReached, d.Reason)
	assert.Equal(t, "You have used all 2 attempt(s) for this quiz", d.Message)
}

func TestEvaluateAttempt_SingleAttemptQuizIgnoresRetakePolicy(t *testing.T) {
	quiz := testutil.FourQuestionQuiz(model.Course{}, policyNow.Add(-time.Hour))
	history := []model.QuizSubmission{attempt(1, 0, policyNow.Add(-time.Minute))}

	d := EvaluateAttempt(quiz, history, policyNow)
	assert.Equal(t, util.MaxAttemptsReached, d.Reason)
}

func TestEvaluateAttempt_ZeroCooldown(t *testing.T) {
	quiz := retakeQuiz()
	quiz.RetakePolicy.DaysBetweenAttempts = 0
	history := []model.QuizSubmission{attempt(1, 10, policyNow)}

	d := EvaluateAttempt(quiz, history, policyNow)
	assert.True(t, d.Allowed)
}

func TestAttemptsRemaining(t *testing.T) {
	quiz := retakeQuiz()
	quiz.MaxAttempts = 3

	fresh := AttemptsRemaining(quiz, nil, policyNow)
	assert.Equal(t, AttemptsStatus{
		AttemptsUsed:      0,
		AttemptsRemaining: 3,
		MaxAttempts:       3,
		CanRetake:         true,
		RetakeMessage:     "You can take this quiz",
	}, fresh)

	afterOne := AttemptsRemaining(quiz, []model.QuizSubmission{attempt(1, 20, policyNow.Add(-48*time.Hour))}, policyNow)
	assert.Equal(t, 1, afterOne.AttemptsUsed)
	assert.Equal(t, 2, afterOne.AttemptsRemaining)
	assert.True(t, afterOne.CanRetake)
	assert.Equal(t, "You can retake this quiz. 2 attempt(s) remaining", afterOne.RetakeMessage)

	cooling := AttemptsRemaining(quiz, []model.QuizSubmission{attempt(1, 20, policyNow)}, policyNow)
	assert.False(t, cooling.CanRetake)
	assert.Equal(t, string(util.CooldownActive), cooling.Reason)
	assert.Equal(t, 2, cooling.AttemptsRemaining)
}

func TestIsOpenForSubmission(t *testing.T) {
	quiz := retakeQuiz()
	assert.True(t, IsOpenForSubmission(quiz, policyNow))

	until := policyNow.Add(-time.Second)
	quiz.VisibleUntil = &until
	assert.False(t, IsOpenForSubmission(quiz, policyNow))
	var we *util.WindowClosedError
	require.ErrorAs(t, CheckSubmissionWindow(quiz, policyNow), &we)
	assert.False(t, we.NotYetOpen)
	assert.Contains(t, we.Message, "deadline has passed")

	edge := policyNow
	quiz.VisibleUntil = &edge
	assert.True(t, IsOpenForSubmission(quiz, policyNow))

	quiz.VisibleUntil = nil
	quiz.VisibleFrom = policyNow.Add(time.Hour)
	require.ErrorAs(t, CheckSubmissionWindow(quiz, policyNow), &we)
	assert.True(t, we.NotYetOpen)
	assert.Contains(t, we.Message, "has not started yet")

	quiz.VisibleFrom = policyNow.Add(-time.Hour)
	quiz.IsPublished = false
	assert.False(t, IsOpenForSubmission(quiz, policyNow))
	var ve *util.ValidationError
	assert.ErrorAs(t, CheckSubmissionWindow(quiz, policyNow), &ve)
}
