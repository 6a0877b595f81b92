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

func newSessionService(db *memory.DB) *ExamSessionService {
	return NewExamSessionService(db.Sessions(), db.Exams(), zerolog.Nop())
}

func TestStartSession_Idempotent(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusActive, 30*time.Minute)
	db.PutExam(exam)
	svc := newSessionService(db)
	ctx := context.Background()

	first, err := svc.StartSession(ctx, exam.ID, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1800, first.RemainingSeconds)

	_, err = svc.UpdateRemainingTime(ctx, first.ID, 1000*time.Second)
	require.NoError(t, err)

	again, err := svc.StartSession(ctx, exam.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.EqualValues(t, 1000, again.RemainingSeconds)
}

func TestStartSession_Rejections(t *testing.T) {
	db := memory.New()
	passive := flexibleExam(model.FlexibleStatusPassive, 30*time.Minute)
	done := fixedExam(time.Now().Add(-2*time.Hour), time.Hour)
	done.IsCompleted = true
	db.PutExam(passive)
	db.PutExam(done)
	svc := newSessionService(db)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.StartSession(ctx, passive.ID, 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	_, err = svc.StartSession(ctx, done.ID, 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestStartSession_FixedUsesWindowRemainder(t *testing.T) {
	db := memory.New()
	exam := fixedExam(time.Now().Add(-30*time.Minute), time.Hour)
	db.PutExam(exam)

	sess, err := newSessionService(db).StartSession(context.Background(), exam.ID, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1800, sess.RemainingSeconds, 5)
}

func TestStartSession_AfterCompletion(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusActive, 30*time.Minute)
	db.PutExam(exam)
	svc := newSessionService(db)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, exam.ID, 1)
	require.NoError(t, err)
	_, err = svc.CompleteSession(ctx, sess.ID)
	require.NoError(t, err)

	_, err = svc.StartSession(ctx, exam.ID, 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestUpdateRemainingTime_Clamps(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusActive, 10*time.Minute)
	db.PutExam(exam)
	svc := newSessionService(db)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, exam.ID, 1)
	require.NoError(t, err)

	// Never counts back up.
	up, err := svc.UpdateRemainingTime(ctx, sess.ID, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 600, up.RemainingSeconds)
	assert.False(t, up.IsCompleted)

	down, err := svc.UpdateRemainingTime(ctx, sess.ID, 90*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 90, down.RemainingSeconds)

	zero, err := svc.UpdateRemainingTime(ctx, sess.ID, -5*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 0, zero.RemainingSeconds)
	assert.True(t, zero.IsCompleted)
	assert.NotNil(t, zero.EndTime)

	stored, _ := db.Session(sess.ID)
	assert.True(t, stored.IsCompleted)

	_, err = svc.UpdateRemainingTime(ctx, sess.ID, time.Second)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	_, err = svc.UpdateRemainingTime(ctx, uuid.New(), time.Second)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCompleteSession_Idempotent(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusActive, 10*time.Minute)
	db.PutExam(exam)
	svc := newSessionService(db)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, exam.ID, 1)
	require.NoError(t, err)

	first, err := svc.CompleteSession(ctx, sess.ID)
	require.NoError(t, err)
	second, err := svc.CompleteSession(ctx, sess.ID)
	require.NoError(t, err)

	assert.True(t, second.IsCompleted)
	assert.Equal(t, first.EndTime.UnixNano(), second.EndTime.UnixNano())
	assert.EqualValues(t, 600, second.RemainingSeconds)

	_, err = svc.CompleteSession(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestActiveSessions(t *testing.T) {
	db := memory.New()
	exam := flexibleExam(model.FlexibleStatusActive, 10*time.Minute)
	db.PutExam(exam)
	svc := newSessionService(db)
	ctx := context.Background()

	a, err := svc.StartSession(ctx, exam.ID, 1)
	require.NoError(t, err)
	_, err = svc.StartSession(ctx, exam.ID, 2)
	require.NoError(t, err)
	_, err = svc.CompleteSession(ctx, a.ID)
	require.NoError(t, err)

	active, err := svc.ActiveSessions(ctx, exam.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].UserID)
}
