package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"quiz_engine/internal/model"
	"quiz_engine/internal/repository"
	"quiz_engine/internal/testutil"
	"quiz_engine/internal/util"
	"quiz_engine/pkg/monitoring"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type submissionFixture struct {
	db      *gorm.DB
	svc     *SubmissionService
	results *ResultService
	ledger  *repository.SubmissionRepository
	school  testutil.School
	now     *time.Time
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	db := testutil.NewDB(t)
	now := serviceNow
	quizzes := repository.NewQuizRepository(db)
	ledger := repository.NewSubmissionRepository(db)
	return &submissionFixture{
		db:      db,
		svc:     NewSubmissionService(quizzes, ledger, 1).WithClock(fixedClock(&now)),
		results: NewResultService(quizzes, ledger, repository.NewDirectoryRepository(db)).WithClock(fixedClock(&now)),
		ledger:  ledger,
		school:  testutil.SeedSchool(t, db, 1),
		now:     &now,
	}
}

func (f *submissionFixture) seedQuiz(t *testing.T, mutate func(q *model.Quiz)) *model.Quiz {
	quiz := testutil.FourQuestionQuiz(f.school.Course, serviceNow.Add(-time.Hour))
	if mutate != nil {
		mutate(quiz)
	}
	return testutil.SeedQuiz(t, f.db, quiz)
}

func (f *submissionFixture) submit(student int, quizID string, raw string) (*SubmitResult, error) {
	return f.svc.Submit(context.Background(), f.school.StudentCaller(student), quizID, json.RawMessage(raw))
}

func TestSubmit_GradesAndRecords(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, nil)

	res, err := f.submit(0, quiz.ID, `[1, 1, 0, 1]`)
	require.NoError(t, err)

	assert.Equal(t, 75.0, res.Score)
	assert.Equal(t, 100, res.Total)
	assert.Equal(t, 75.0, res.Percentage)
	assert.Equal(t, 1, res.AttemptNumber)
	assert.Equal(t, 1, res.MaxAttempts)
	assert.Equal(t, "Good!", res.Performance)
	assert.Equal(t, serviceNow, res.Submission.SubmittedAt)

	stored, err := f.ledger.Latest(context.Background(), quiz.ID, f.school.Students[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Submission.ID, stored.ID)
	assert.Equal(t, 3, stored.CorrectCount())
	assert.Equal(t, "Question 1", stored.Answers[0].QuestionText)
}

func TestSubmit_SecondAttemptDeniedLedgerUnchanged(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, nil)

	_, err := f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
	require.NoError(t, err)

	_, err = f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
	assert.True(t, util.IsPolicyDenied(err, util.MaxAttemptsReached), "got %v", err)

	history, err := f.ledger.History(context.Background(), quiz.ID, f.school.Students[0].ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// 其他学生不受影响
	_, err = f.submit(1, quiz.ID, `[0, 0, 0, 0]`)
	assert.NoError(t, err)
}

func TestSubmit_AttemptNumbersAreSequential(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 5
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 100, DaysBetweenAttempts: 0}
	})

	for want := 1; want <= 5; want++ {
		res, err := f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
		require.NoError(t, err)
		assert.Equal(t, want, res.AttemptNumber)
		*f.now = f.now.Add(time.Minute)
	}

	_, err := f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
	assert.True(t, util.IsPolicyDenied(err, util.MaxAttemptsReached))
}

func TestSubmit_ConcurrentSingleAttempt(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, nil)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.True(t, util.IsPolicyDenied(err, util.MaxAttemptsReached), "got %v", err)
	}
	assert.Equal(t, 1, accepted)

	history, err := f.ledger.History(context.Background(), quiz.ID, f.school.Students[0].ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSubmit_ConcurrentAcrossServiceInstances(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 3
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 100, DaysBetweenAttempts: 0}
	})

	// 不同实例不共享进程内锁
	other := NewSubmissionService(f.svc.Quizzes, f.svc.Ledger, 1).WithClock(fixedClock(f.now))
	services := []*SubmissionService{f.svc, other, f.svc, other, f.svc, other}

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(svc *SubmissionService) {
			defer wg.Done()
			svc.Submit(context.Background(), f.school.StudentCaller(0), quiz.ID, json.RawMessage(`[0, 0, 0, 0]`))
		}(svc)
	}
	wg.Wait()

	history, err := f.ledger.History(context.Background(), quiz.ID, f.school.Students[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, sub := range history {
		assert.Equal(t, 3-i, sub.AttemptNumber)
	}
}

func TestSubmit_RetriesLostAttemptRace(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 3
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 100, DaysBetweenAttempts: 0}
	})
	_, err := f.submit(0, quiz.ID, `[0, 0, 0, 0]`)
	require.NoError(t, err)
	*f.now = f.now.Add(time.Minute)

	conflicts := promtest.ToFloat64(monitoring.AttemptConflicts)
	testutil.LoseAttemptRaces(t, f.db, 1)

	res, err := f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AttemptNumber)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, conflicts+1, promtest.ToFloat64(monitoring.AttemptConflicts))

	history, err := f.ledger.History(context.Background(), quiz.ID, f.school.Students[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, res.Submission.ID, history[0].ID)
}

func TestSubmit_ConflictAfterRetriesExhausted(t *testing.T) {
	cases := []struct {
		name    string
		retries int
	}{
		{"no retries", 0},
		{"one retry", 1},
		{"two retries", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSubmissionFixture(t)
			quiz := f.seedQuiz(t, nil)
			f.svc.SetRetries(tc.retries)

			conflicts := promtest.ToFloat64(monitoring.AttemptConflicts)
			rejected := promtest.ToFloat64(monitoring.SubmissionsTotal.WithLabelValues("conflict"))
			testutil.LoseAttemptRaces(t, f.db, tc.retries+1)

			_, err := f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
			require.ErrorIs(t, err, util.ErrConcurrencyConflict)
			assert.Equal(t, conflicts+float64(tc.retries+1), promtest.ToFloat64(monitoring.AttemptConflicts))
			assert.Equal(t, rejected+1, promtest.ToFloat64(monitoring.SubmissionsTotal.WithLabelValues("conflict")))

			history, err := f.ledger.History(context.Background(), quiz.ID, f.school.Students[0].ID)
			require.NoError(t, err)
			assert.Empty(t, history)

			// 竞争结束后再次提交成功
			res, err := f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
			require.NoError(t, err)
			assert.Equal(t, 1, res.AttemptNumber)
		})
	}
}

func TestSubmit_PolicyGates(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, func(q *model.Quiz) {
		q.MaxAttempts = 2
		q.RetakePolicy = model.RetakePolicy{AllowRetake: true, MinScoreToPass: 60, DaysBetweenAttempts: 1}
	})

	// 学生 0 得分 25%，未通过
	_, err := f.submit(0, quiz.ID, `[1, 0, 0, 0]`)
	require.NoError(t, err)
	// 学生 1 得分 75%，已通过
	_, err = f.submit(1, quiz.ID, `[1, 1, 1, 0]`)
	require.NoError(t, err)

	*f.now = serviceNow.Add(12 * time.Hour)
	_, err = f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
	assert.True(t, util.IsPolicyDenied(err, util.CooldownActive), "got %v", err)

	*f.now = serviceNow.Add(25 * time.Hour)
	res, err := f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AttemptNumber)

	_, err = f.submit(1, quiz.ID, `[1, 1, 1, 1]`)
	assert.True(t, util.IsPolicyDenied(err, util.AlreadyPassed), "got %v", err)
}

func TestSubmit_ExpiredQuizRejectsButStaysReadable(t *testing.T) {
	f := newSubmissionFixture(t)
	until := serviceNow.Add(time.Hour)
	quiz := f.seedQuiz(t, func(q *model.Quiz) { q.VisibleUntil = &until })

	_, err := f.submit(0, quiz.ID, `[1, 1, 1, 1]`)
	require.NoError(t, err)

	*f.now = until.Add(time.Second)
	_, err = f.submit(1, quiz.ID, `[1, 1, 1, 1]`)
	var we *util.WindowClosedError
	require.ErrorAs(t, err, &we)
	assert.False(t, we.NotYetOpen)

	ctx := context.Background()
	mine, err := f.results.MyLatestResult(ctx, f.school.StudentCaller(0), quiz.ID)
	require.NoError(t, err)
	require.NotNil(t, mine)

	rows, err := f.results.LatestPerStudent(ctx, f.school.TeacherCaller(), quiz.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSubmit_Rejections(t *testing.T) {
	f := newSubmissionFixture(t)
	quiz := f.seedQuiz(t, nil)
	draft := f.seedQuiz(t, func(q *model.Quiz) { q.IsPublished = false })
	future := f.seedQuiz(t, func(q *model.Quiz) { q.VisibleFrom = serviceNow.Add(time.Hour) })
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.school.TeacherCaller(), quiz.ID, json.RawMessage(`[1, 1, 1, 1]`))
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	foreign := model.Caller{UserID: f.school.Students[0].ID, Role: model.Student, SchoolID: 99}
	_, err = f.svc.Submit(ctx, foreign, quiz.ID, json.RawMessage(`[1, 1, 1, 1]`))
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.submit(0, model.GenerateUUID(), `[1, 1, 1, 1]`)
	var nf *util.NotFoundError
	assert.ErrorAs(t, err, &nf)

	var ve *util.ValidationError
	_, err = f.submit(0, draft.ID, `[1, 1, 1, 1]`)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quiz is not published", ve.Message)

	for _, body := range []string{`{"0": 1}`, `"1,1,1,1"`, `null`, ``} {
		_, err = f.submit(0, quiz.ID, body)
		require.ErrorAs(t, err, &ve, "body %q", body)
		assert.Equal(t, "answers must be an array", ve.Message)
	}

	_, err = f.submit(0, quiz.ID, `[1, 1, 1]`)
	assert.ErrorAs(t, err, &ve)

	_, err = f.submit(0, quiz.ID, `[1, 1, 9, 1]`)
	require.ErrorAs(t, err, &ve)
	require.NotNil(t, ve.QuestionIndex)
	assert.Equal(t, 2, *ve.QuestionIndex)

	var we *util.WindowClosedError
	_, err = f.submit(0, future.ID, `[1, 1, 1, 1]`)
	require.ErrorAs(t, err, &we)
	assert.True(t, we.NotYetOpen)

	// 被拒绝的提交均未写入
	history, err := f.ledger.History(ctx, quiz.ID, f.school.Students[0].ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStripedLock(t *testing.T) {
	l := newStripedLock(4)
	unlock := l.Lock("quiz", 1)

	done := make(chan struct{})
	go func() {
		l.Lock("quiz", 1)()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock on the same key did not block")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
