package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/scoring"
	"golang.org/x/sync/singleflight"
)

// AnswerKeyTTL bounds how long a cached answer key survives without a read-through.
const AnswerKeyTTL = 6 * time.Hour

// ResultService grades a finished exam and records the outcome.
type ResultService struct {
	participation *ParticipationService
	sessions      *ExamSessionService
	examRepo      ExamStore
	scoreRepo     ScoreStore
	keyRepo       AnswerKeyStore
	rdb           *redis.Client
	keyLoads      singleflight.Group
	log           zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(
	participation *ParticipationService,
	sessions *ExamSessionService,
	examRepo ExamStore,
	scoreRepo ScoreStore,
	keyRepo AnswerKeyStore,
	rdb *redis.Client,
	log zerolog.Logger,
) *ResultService {
	return &ResultService{
		participation: participation,
		sessions:      sessions,
		examRepo:      examRepo,
		scoreRepo:     scoreRepo,
		keyRepo:       keyRepo,
		rdb:           rdb,
		log:           log.With().Str("component", "result_service").Logger(),
	}
}

// Submit scores the answers, stores the score once, finishes the
// participation and closes the caller's open session on flexible exams.
func (s *ResultService) Submit(ctx context.Context, userID int, examID uuid.UUID, answers []model.SubmittedAnswer) (*model.Score, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.IsCompleted {
		return nil, fmt.Errorf("%w: exam %s is completed", model.ErrInvalidState, examID)
	}

	check, _, err := s.participation.CheckParticipation(ctx, userID, examID, false)
	if err != nil {
		return nil, err
	}
	switch check {
	case CheckNotParticipated:
		return nil, fmt.Errorf("%w: user %d has not joined exam %s", model.ErrNotFound, userID, examID)
	case CheckAlreadyFinished:
		return nil, fmt.Errorf("%w: user %d already finished exam %s", model.ErrInvalidState, userID, examID)
	}

	key, err := s.answerKey(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	result, err := scoring.Calculate(answers, key)
	if err != nil {
		return nil, err
	}

	score := &model.Score{
		UserID:         userID,
		ExamID:         examID,
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		CorrectCount:   result.CorrectCount,
		IsWinner:       scoring.IsWinner(result.Score, exam.Reward.PassingScore),
	}

	created, err := s.scoreRepo.Create(ctx, score)
	if err != nil {
		return nil, fmt.Errorf("create score: %w", err)
	}
	if !created {
		// A previous attempt stored the score but did not finish the
		// participation; scores are never overwritten.
		score, err = s.scoreRepo.GetByUserAndExam(ctx, userID, examID)
		if err != nil {
			return nil, fmt.Errorf("get existing score: %w", err)
		}
	}

	if err := s.participation.UpdateParticipationStatus(ctx, userID, examID, score.IsWinner); err != nil {
		return nil, err
	}

	if _, flexible := exam.Flexible(); flexible {
		s.closeSession(ctx, examID, userID)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Float64("score", score.Score).
		Bool("is_winner", score.IsWinner).
		Msg("Exam submitted")

	return score, nil
}

func (s *ResultService) closeSession(ctx context.Context, examID uuid.UUID, userID int) {
	sess, err := s.sessions.GetUserSession(ctx, examID, userID)
	if errors.Is(err, model.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Could not load session to close")
		return
	}
	if sess.IsCompleted {
		return
	}
	if _, err := s.sessions.CompleteSession(ctx, sess.ID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Could not close session")
	}
}

// answerKey reads the key from Redis, falling back to PostgreSQL and healing
// the cache on a miss. Concurrent misses for one exam share a single load.
func (s *ResultService) answerKey(ctx context.Context, examID uuid.UUID) ([]model.AnswerKeyEntry, error) {
	cacheKey := config.CacheKey.ExamAnswerKey(examID.String())

	if key, ok := s.cachedAnswerKey(ctx, cacheKey); ok {
		return key, nil
	}

	v, err, _ := s.keyLoads.Do(examID.String(), func() (any, error) {
		// Another caller may have filled the cache meanwhile.
		if key, ok := s.cachedAnswerKey(ctx, cacheKey); ok {
			return key, nil
		}

		key, err := s.keyRepo.ListAnswerKey(ctx, examID)
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return key, nil
		}

		fields := make(map[string]any, len(key))
		for _, k := range key {
			fields[k.QuestionID] = fmt.Sprint(k.CorrectAnswer)
		}
		pipe := s.rdb.TxPipeline()
		pipe.HSet(ctx, cacheKey, fields)
		pipe.Expire(ctx, cacheKey, AnswerKeyTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache answer key")
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.AnswerKeyEntry), nil
}

func (s *ResultService) cachedAnswerKey(ctx context.Context, cacheKey string) ([]model.AnswerKeyEntry, bool) {
	cached, err := s.rdb.HGetAll(ctx, cacheKey).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("cache_key", cacheKey).Msg("Answer key cache unavailable")
		return nil, false
	}
	if len(cached) == 0 {
		return nil, false
	}
	key := make([]model.AnswerKeyEntry, 0, len(cached))
	for qid, answer := range cached {
		key = append(key, model.AnswerKeyEntry{QuestionID: qid, CorrectAnswer: answer})
	}
	sort.Slice(key, func(i, j int) bool { return key[i].QuestionID < key[j].QuestionID })
	return key, true
}
