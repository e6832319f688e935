package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"testing"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMyLatestResult(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 2
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 100, DaysBetweenAttempts: 0}
	})
	ctx := context.Background()

	none, err := f.results.MyLatestResult(ctx, f.school.StudentCaller(0), quiz.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
	require.NoError(t, err)
	*f.now = f.now.Add(time.Minute)
	_, err = f.submit(0, quiz.ID, `[1, 1, 0, 0]`)
	require.NoError(t, err)

	latest, err := f.results.MyLatestResult(ctx, f.school.StudentCaller(0), quiz.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.AttemptNumber)
	assert.Equal(t, 50.0, latest.Score)

	_, err = f.results.MyLatestResult(ctx, f.school.StudentCaller(0), model.GenerateUUID())
	var nf *util.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestAttemptsRemainingService(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 2
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 60, DaysBetweenAttempts: 1}
	})
	ctx := context.Background()

	_, err := f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
	require.NoError(t, err)

	status, err := f.results.AttemptsRemaining(ctx, f.school.StudentCaller(0), quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.AttemptsUsed)
	assert.Equal(t, 1, status.AttemptsRemaining)
	assert.Equal(t, 2, status.MaxAttempts)
	assert.False(t, status.CanRetake)
	assert.Equal(t, "You can retake this quiz in 1.0 day(s)", status.RetakeMessage)

	_, err = f.results.AttemptsRemaining(ctx, f.school.TeacherCaller(), quiz.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestLatestPerStudent(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 3
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 100, DaysBetweenAttempts: 0}
	})
	ctx := context.Background()

	_, err := f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
	require.NoError(t, err)
	*f.now = f.now.Add(time.Minute)
	_, err = f.submit(1, quiz.ID, `[1, 1, 1, 0]`)
	require.NoError(t, err)
	*f.now = f.now.Add(time.Minute)
	_, err = f.submit(0, quiz.ID, `[1, 0, 0, 0]`)
	require.NoError(t, err)

	rows, err := f.results.LatestPerStudent(ctx, f.school.TeacherCaller(), quiz.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// 最近提交的排在前面
	assert.Equal(t, "Alice", rows[0].StudentName)
	assert.Equal(t, 2, rows[0].AttemptNumber)
	assert.Equal(t, 25.0, rows[0].Score)
	assert.Equal(t, 1, rows[0].CorrectCount)
	assert.Equal(t, 3, rows[0].IncorrectCount)
	assert.Equal(t, 4, rows[0].QuestionCount)
	assert.Equal(t, "Keep Practicing", rows[0].Performance)

	assert.Equal(t, "Bob", rows[1].StudentName)
	assert.Equal(t, f.school.Students[1].Email, rows[1].StudentEmail)
	assert.Equal(t, 75.0, rows[1].Percentage)

	_, err = f.results.LatestPerStudent(ctx, f.school.StudentCaller(0), quiz.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	adminRows, err := f.results.LatestPerStudent(ctx, f.school.AdminCaller(), quiz.ID)
	require.NoError(t, err)
	assert.Len(t, adminRows, 2)
}

func TestStudentAttempts(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 3
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 100, DaysBetweenAttempts: 0}
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
		require.NoError(t, err)
		*f.now = f.now.Add(time.Minute)
	}

	attempts, err := f.results.StudentAttempts(ctx, f.school.TeacherCaller(), quiz.ID, f.school.Students[0].ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.AttemptNumber)
	}

	none, err := f.results.StudentAttempts(ctx, f.school.TeacherCaller(), quiz.ID, f.school.Students[1].ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.results.StudentAttempts(ctx, f.school.TeacherCaller(), quiz.ID, 9999)
	var nf *util.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "student not found", nf.Error())

	_, err = f.results.StudentAttempts(ctx, f.school.StudentCaller(1), quiz.ID, f.school.Students[0].ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestExportCSV(t *testing.T) {
	f := newSubmissionFixture(t)
	until := serviceNow.Add(time.Hour)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.Title = "Week 3: Fractions/Decimals"
		q.VisibleUntil = &until
	})
	ctx := context.Background()

	_, err := f.submit(0, quiz.ID, `[1, 1, 0, 1]`)
	require.NoError(t, err)

	// 截止后仍可导出
	*f.now = until.Add(24 * time.Hour)
	body, filename, err := f.results.ExportCSV(ctx, f.school.TeacherCaller(), quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, "Week_3_Fractions_Decimals_results_20240311.csv", filename)

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{
		"Alice",
		strconv.FormatUint(uint64(f.school.Students[0].ID), 10),
		f.school.Students[0].Email,
		"75",
		"100",
		"75.0",
		"3",
		"1",
		"4",
		"2024-03-10T12:00:00Z",
	}, records[1])

	_, _, err = f.results.ExportCSV(ctx, f.school.StudentCaller(0), quiz.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestExportFilename(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "quiz_results_20240102.csv", exportFilename("***", day))
	assert.Equal(t, "Final_Exam_results_20240102.csv", exportFilename(" Final Exam ", day))
}
