package repository

import (
	"context"
	"testing"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/testutil"
	"quiz_engine/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubmission(quiz *model.Quiz, studentID uint, attempt int, at time.Time) *model.QuizSubmission {
	return &model.QuizSubmission{
		QuizID:        quiz.ID,
		CourseID:      quiz.CourseID,
		StudentID:     studentID,
		AttemptNumber: attempt,
		Answers:       []model.GradedAnswer{{QuestionIndex: 0, SelectedOption: 1, CorrectAnswer: 1, IsCorrect: true, MarksAwarded: 25, Options: []string{"a", "b"}}},
		Score:         25,
		Percentage:    25,
		TotalMarks:    100,
		SubmittedAt:   at,
	}
}

func TestUnitOfWork_CommitAndHistory(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.SeedSchool(t, db, 1)
	quiz := testutil.SeedQuiz(t, db, testutil.FourQuestionQuiz(school.Course, time.Now()))
	repo := NewSubmissionRepository(db)
	ctx := context.Background()
	student := school.Students[0].ID
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for n := 1; n <= 3; n++ {
		uow, err := repo.Begin(ctx)
		require.NoError(t, err)
		history, err := uow.History(quiz.ID, student)
		require.NoError(t, err)
		assert.Len(t, history, n-1)
		require.NoError(t, uow.Append(newSubmission(quiz, student, n, start.Add(time.Duration(n)*time.Hour))))
		require.NoError(t, uow.Commit())
		uow.Release()
	}

	history, err := repo.History(ctx, quiz.ID, student)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{history[0].AttemptNumber, history[1].AttemptNumber, history[2].AttemptNumber})
	assert.True(t, history[0].Answers[0].IsCorrect)
	assert.Equal(t, []string{"a", "b"}, history[0].Answers[0].Options)

	latest, err := repo.Latest(ctx, quiz.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.AttemptNumber)

	none, err := repo.Latest(ctx, quiz.ID, school.Students[1].ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestUnitOfWork_ReleaseRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.SeedSchool(t, db, 1)
	quiz := testutil.SeedQuiz(t, db, testutil.FourQuestionQuiz(school.Course, time.Now()))
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Append(newSubmission(quiz, school.Students[0].ID, 1, time.Now())))
	uow.Release()
	uow.Release()

	history, err := repo.History(ctx, quiz.ID, school.Students[0].ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Error(t, uow.Commit())
}

func TestUnitOfWork_DuplicateAttemptIsConflict(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.SeedSchool(t, db, 1)
	quiz := testutil.SeedQuiz(t, db, testutil.FourQuestionQuiz(school.Course, time.Now()))
	repo := NewSubmissionRepository(db)
	ctx := context.Background()
	student := school.Students[0].ID

	require.NoError(t, db.Create(newSubmission(quiz, student, 1, time.Now())).Error)

	uow, err := repo.Begin(ctx)
	require.NoError(t, err)
	err = uow.Append(newSubmission(quiz, student, 1, time.Now()))
	assert.ErrorIs(t, err, util.ErrConcurrencyConflict)
	uow.Release()

	// 其他学生使用相同序号不冲突
	other, err := repo.Begin(ctx)
	require.NoError(t, err)
	defer other.Release()
	assert.NoError(t, other.Append(newSubmission(quiz, school.Students[1].ID, 1, time.Now())))
	assert.NoError(t, other.Commit())
}

func TestListByQuiz(t *testing.T) {
	db := testutil.NewDB(t)
	school := testutil.SeedSchool(t, db, 1)
	quiz := testutil.SeedQuiz(t, db, testutil.FourQuestionQuiz(school.Course, time.Now()))
	otherQuiz := testutil.SeedQuiz(t, db, testutil.FourQuestionQuiz(school.Course, time.Now()))
	repo := NewSubmissionRepository(db)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(newSubmission(quiz, school.Students[0].ID, 1, start)).Error)
	require.NoError(t, db.Create(newSubmission(quiz, school.Students[1].ID, 1, start.Add(time.Hour))).Error)
	require.NoError(t, db.Create(newSubmission(otherQuiz, school.Students[0].ID, 1, start)).Error)

	subs, err := repo.ListByQuiz(context.Background(), quiz.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, school.Students[1].ID, subs[0].StudentID)
}
