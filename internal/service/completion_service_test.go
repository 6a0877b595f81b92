package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(db *memory.DB, winners *fakeWinnerList) (*CompletionService, *ExamSessionService) {
	sessions := newSessionService(db)
	return NewCompletionService(db.Exams(), sessions, winners, zerolog.Nop()), sessions
}

func TestDetectCompletion_FixedExam(t *testing.T) {
	db := memory.New()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	ended := fixedExam(start, 60*time.Minute)
	ended.IsWinnerlistRequested = true
	running := fixedExam(start, 3*time.Hour)
	db.PutExam(ended)
	db.PutExam(running)

	winners := &fakeWinnerList{}
	detector, _ := newDetector(db, winners)

	detector.now = func() time.Time { return start.Add(59 * time.Minute) }
	report, err := detector.DetectCompletion(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.FixedCompleted)

	detector.now = func() time.Time { return start.Add(61 * time.Minute) }
	report, err = detector.DetectCompletion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ended.ID}, report.FixedCompleted)

	e, _ := db.Exam(ended.ID)
	assert.True(t, e.IsCompleted)
	r, _ := db.Exam(running.ID)
	assert.False(t, r.IsCompleted)
	assert.Equal(t, ended.ID, winners.requested[0])
	assert.Len(t, winners.requested, 1)
}

func TestDetectCompletion_FixedEndsExactlyAtBoundary(t *testing.T) {
	db := memory.New()
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	exam := fixedExam(start, time.Hour)
	db.PutExam(exam)

	detector, _ := newDetector(db, &fakeWinnerList{})
	detector.now = func() time.Time { return start.Add(time.Hour) }

	report, err := detector.DetectCompletion(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.FixedCompleted, 1)
}

func TestDetectCompletion_FlexibleWaitsForSessions(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusActive, 30*time.Minute)
	exam.IsWinnerlistRequested = true
	db.PutExam(exam)

	winners := &fakeWinnerList{}
	detector, sessions := newDetector(db, winners)
	ctx := context.Background()

	sess, err := sessions.StartSession(ctx, exam.ID, 1)
	require.NoError(t, err)

	report, err := detector.DetectCompletion(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.FlexibleCompleted)
	e, _ := db.Exam(exam.ID)
	assert.False(t, e.IsCompleted)

	_, err = sessions.CompleteSession(ctx, sess.ID)
	require.NoError(t, err)

	report, err = detector.DetectCompletion(ctx)
	require.NoError(t, err)
	assert.Len(t, report.FlexibleCompleted, 1)

	e, _ = db.Exam(exam.ID)
	assert.True(t, e.IsCompleted)
	sched, ok := e.Flexible()
	require.True(t, ok)
	assert.Equal(t, model.FlexibleStatusCompleted, sched.Status)
	assert.Len(t, winners.requested, 1)
}

func TestDetectCompletion_IgnoresPassiveFlexible(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusPassive, 30*time.Minute)
	db.PutExam(exam)

	detector, _ := newDetector(db, &fakeWinnerList{})
	report, err := detector.DetectCompletion(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.FlexibleCompleted)
}

func TestDetectCompletion_SweepsExhaustedSessions(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusActive, 30*time.Minute)
	db.PutExam(exam)
	stuck := db.PutSession(model.ExamSession{ExamID: exam.ID, UserID: 1, StartTime: time.Now(), RemainingSeconds: 0})
	live := db.PutSession(model.ExamSession{ExamID: exam.ID, UserID: 2, StartTime: time.Now(), RemainingSeconds: 30})

	detector, _ := newDetector(db, &fakeWinnerList{})
	report, err := detector.DetectCompletion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SessionsSwept)

	s, _ := db.Session(stuck.ID)
	assert.True(t, s.IsCompleted)
	assert.NotNil(t, s.EndTime)
	l, _ := db.Session(live.ID)
	assert.False(t, l.IsCompleted)

	// The live session still blocks the exam this run.
	e, _ := db.Exam(exam.ID)
	assert.False(t, e.IsCompleted)
}

func TestDetectCompletion_PassFailureIsIsolated(t *testing.T) {
	db := memory.New()
	flex := flexibleExam(model.FlexibleStatusActive, 30*time.Minute)
	db.PutExam(flex)
	db.FailNext("exams.ListOpenFixed", errBoom)

	detector, _ := newDetector(db, &fakeWinnerList{})
	report, err := detector.DetectCompletion(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, report.FlexibleCompleted, 1)
}

func TestDetectCompletion_WinnerListFailureDoesNotAbort(t *testing.T) {
	db := memory.New()
	start := time.Now().Add(-2 * time.Hour)
	a := fixedExam(start, time.Hour)
	a.IsWinnerlistRequested = true
	b := fixedExam(start, time.Hour)
	b.IsWinnerlistRequested = true
	db.PutExam(a)
	db.PutExam(b)

	winners := &fakeWinnerList{err: errBoom}
	detector, _ := newDetector(db, winners)
	report, err := detector.DetectCompletion(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.FixedCompleted, 2)
	assert.Len(t, winners.requested, 2)
}
