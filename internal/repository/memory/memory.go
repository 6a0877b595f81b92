// Package memory is an in-process implementation of the repositories. Every
// write touches one record under a single mutex, which matches the one-row
// statements of the PostgreSQL repositories. Used by tests and local tooling.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// DB holds all tables.
type DB struct {
	mu             sync.Mutex
	exams          map[uuid.UUID]model.Exam
	sessions       map[uuid.UUID]model.ExamSession
	participations map[uuid.UUID]model.Participation
	scores         map[uuid.UUID]model.Score
	users          map[int]model.User
	answerKeys     map[uuid.UUID][]model.AnswerKeyEntry
	faults         map[string]error
	answerKeyReads int
}

// New returns an empty store.
func New() *DB {
	return &DB{
		exams:          make(map[uuid.UUID]model.Exam),
		sessions:       make(map[uuid.UUID]model.ExamSession),
		participations: make(map[uuid.UUID]model.Participation),
		scores:         make(map[uuid.UUID]model.Score),
		users:          make(map[int]model.User),
		answerKeys:     make(map[uuid.UUID][]model.AnswerKeyEntry),
		faults:         make(map[string]error),
	}
}

// FailNext makes the next call of op (e.g. "participations.MarkRewardSent")
// return err.
func (db *DB) FailNext(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.faults[op] = err
}

// fault must be called with mu held.
func (db *DB) fault(op string) error {
	if err, ok := db.faults[op]; ok {
		delete(db.faults, op)
		return err
	}
	return nil
}

// PutExam inserts or replaces an exam.
func (db *DB) PutExam(e model.Exam) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	db.exams[e.ID] = e
}

// PutUser inserts or replaces a user.
func (db *DB) PutUser(u model.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
}

// PutParticipation inserts or replaces a participation.
func (db *DB) PutParticipation(p model.Participation) model.Participation {
	db.mu.Lock()
	defer db.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	db.participations[p.ID] = p
	return p
}

// PutSession inserts or replaces a session.
func (db *DB) PutSession(s model.ExamSession) model.ExamSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	db.sessions[s.ID] = s
	return s
}

// PutScore inserts or replaces a score.
func (db *DB) PutScore(s model.Score) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	db.scores[s.ID] = s
}

// PutAnswerKey replaces the answer key of an exam.
func (db *DB) PutAnswerKey(examID uuid.UUID, key []model.AnswerKeyEntry) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.answerKeys[examID] = append([]model.AnswerKeyEntry(nil), key...)
}

// Exam returns a copy of an exam.
func (db *DB) Exam(id uuid.UUID) (model.Exam, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.exams[id]
	return e, ok
}

// Participation returns a copy of a participation.
func (db *DB) Participation(id uuid.UUID) (model.Participation, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.participations[id]
	return p, ok
}

// Session returns a copy of a session.
func (db *DB) Session(id uuid.UUID) (model.ExamSession, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.sessions[id]
	return s, ok
}

// AnswerKeyReads counts ListAnswerKey calls.
func (db *DB) AnswerKeyReads() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.answerKeyReads
}

// Exams returns the exam repository view.
func (db *DB) Exams() *Exams { return &Exams{db: db} }

// Sessions returns the session repository view.
func (db *DB) Sessions() *Sessions { return &Sessions{db: db} }

// Participations returns the participation repository view.
func (db *DB) Participations() *Participations { return &Participations{db: db} }

// Scores returns the score repository view.
func (db *DB) Scores() *Scores { return &Scores{db: db} }

// Questions returns the answer-key repository view.
func (db *DB) Questions() *Questions { return &Questions{db: db} }

// ---------------------------------------------------------------------------
// Exams
// ---------------------------------------------------------------------------

// Exams mirrors repository.ExamRepository.
type Exams struct{ db *DB }

func (r *Exams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("exams.GetByID"); err != nil {
		return nil, err
	}
	e, ok := r.db.exams[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &e, nil
}

func (r *Exams) ListOpenFixed(_ context.Context) ([]model.Exam, error) {
	return r.filter("exams.ListOpenFixed", func(e model.Exam) bool {
		_, fixed := e.Fixed()
		return fixed && !e.IsCompleted
	})
}

func (r *Exams) ListActiveFlexible(_ context.Context) ([]model.Exam, error) {
	return r.filter("exams.ListActiveFlexible", func(e model.Exam) bool {
		f, ok := e.Flexible()
		return ok && !e.IsCompleted && f.Status == model.FlexibleStatusActive
	})
}

func (r *Exams) ListPendingDistribution(_ context.Context) ([]model.Exam, error) {
	return r.filter("exams.ListPendingDistribution", func(e model.Exam) bool {
		return e.IsCompleted && e.Reward.IsRewarded && !e.IsDistributed
	})
}

func (r *Exams) MarkCompleted(_ context.Context, ids []uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("exams.MarkCompleted"); err != nil {
		return err
	}
	now := time.Now()
	for _, id := range ids {
		if e, ok := r.db.exams[id]; ok && !e.IsCompleted {
			e.IsCompleted = true
			e.UpdatedAt = now
			r.db.exams[id] = e
		}
	}
	return nil
}

func (r *Exams) CompleteFlexible(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("exams.CompleteFlexible"); err != nil {
		return err
	}
	e, ok := r.db.exams[id]
	if !ok {
		return nil
	}
	f, ok := e.Flexible()
	if !ok {
		return nil
	}
	f.Status = model.FlexibleStatusCompleted
	e.Schedule = f
	e.IsCompleted = true
	e.UpdatedAt = time.Now()
	r.db.exams[id] = e
	return nil
}

func (r *Exams) ClaimDistribution(_ context.Context, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("exams.ClaimDistribution"); err != nil {
		return false, err
	}
	e, ok := r.db.exams[id]
	if !ok || e.IsDistributed {
		return false, nil
	}
	e.IsDistributed = true
	e.UpdatedAt = time.Now()
	r.db.exams[id] = e
	return true, nil
}

func (r *Exams) ReleaseDistribution(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("exams.ReleaseDistribution"); err != nil {
		return err
	}
	if e, ok := r.db.exams[id]; ok {
		e.IsDistributed = false
		e.UpdatedAt = time.Now()
		r.db.exams[id] = e
	}
	return nil
}

func (r *Exams) filter(op string, keep func(model.Exam) bool) ([]model.Exam, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault(op); err != nil {
		return nil, err
	}
	var out []model.Exam
	for _, e := range r.db.exams {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// Sessions mirrors repository.ExamSessionRepository.
type Sessions struct{ db *DB }

func (r *Sessions) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("sessions.GetByID"); err != nil {
		return nil, err
	}
	s, ok := r.db.sessions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &s, nil
}

func (r *Sessions) GetByExamAndUser(_ context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.sessions {
		if s.ExamID == examID && s.UserID == userID {
			return &s, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *Sessions) Create(_ context.Context, s *model.ExamSession) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("sessions.Create"); err != nil {
		return false, err
	}
	for _, existing := range r.db.sessions {
		if existing.ExamID == s.ExamID && existing.UserID == s.UserID {
			return false, nil
		}
	}
	s.ID = uuid.New()
	r.db.sessions[s.ID] = *s
	return true, nil
}

func (r *Sessions) UpdateRemaining(_ context.Context, id uuid.UUID, remaining int64, completedAt *time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("sessions.UpdateRemaining"); err != nil {
		return err
	}
	s, ok := r.db.sessions[id]
	if !ok || s.IsCompleted {
		return model.ErrInvalidState
	}
	s.RemainingSeconds = remaining
	s.IsCompleted = completedAt != nil
	s.EndTime = completedAt
	r.db.sessions[id] = s
	return nil
}

func (r *Sessions) Complete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("sessions.Complete"); err != nil {
		return err
	}
	s, ok := r.db.sessions[id]
	if !ok {
		return model.ErrNotFound
	}
	s.IsCompleted = true
	if s.EndTime == nil {
		s.EndTime = &at
	}
	r.db.sessions[id] = s
	return nil
}

func (r *Sessions) ListActiveByExam(_ context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	return r.filter("sessions.ListActiveByExam", func(s model.ExamSession) bool {
		return s.ExamID == examID && !s.IsCompleted
	})
}

func (r *Sessions) ListExhausted(_ context.Context) ([]model.ExamSession, error) {
	return r.filter("sessions.ListExhausted", func(s model.ExamSession) bool {
		return !s.IsCompleted && s.RemainingSeconds == 0
	})
}

func (r *Sessions) filter(op string, keep func(model.ExamSession) bool) ([]model.ExamSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault(op); err != nil {
		return nil, err
	}
	var out []model.ExamSession
	for _, s := range r.db.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Participations
// ---------------------------------------------------------------------------

// Participations mirrors repository.ParticipationRepository.
type Participations struct{ db *DB }

func (r *Participations) GetByUserAndExam(_ context.Context, userID int, examID uuid.UUID) (*model.Participation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("participations.GetByUserAndExam"); err != nil {
		return nil, err
	}
	for _, p := range r.db.participations {
		if p.UserID == userID && p.ExamID == examID {
			return &p, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *Participations) Create(_ context.Context, p *model.Participation) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("participations.Create"); err != nil {
		return false, err
	}
	for _, existing := range r.db.participations {
		if existing.UserID == p.UserID && existing.ExamID == p.ExamID {
			return false, nil
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	r.db.participations[p.ID] = *p
	return true, nil
}

func (r *Participations) MarkFinished(_ context.Context, id uuid.UUID, isWinner bool, at time.Time) error {
	return r.update("participations.MarkFinished", id, func(p *model.Participation) {
		p.IsFinished = true
		p.FinishTime = &at
		p.IsWinner = isWinner
	})
}

func (r *Participations) ListEligibleWinners(_ context.Context, examID uuid.UUID) ([]model.Winner, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("participations.ListEligibleWinners"); err != nil {
		return nil, err
	}
	if e, ok := r.db.exams[examID]; !ok || !e.IsCompleted {
		return nil, nil
	}

	var rows []model.Participation
	for _, p := range r.db.participations {
		if p.ExamID != examID || !p.IsFinished || !p.IsWinner || p.IsRewardSent {
			continue
		}
		u, ok := r.db.users[p.UserID]
		if !ok || u.WalletAddress == nil {
			continue
		}
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool { return finishedBefore(rows[i], rows[j]) })

	winners := make([]model.Winner, 0, len(rows))
	for _, p := range rows {
		winners = append(winners, model.Winner{
			ParticipationID: p.ID,
			UserID:          p.UserID,
			WalletAddress:   *r.db.users[p.UserID].WalletAddress,
		})
	}
	return winners, nil
}

func (r *Participations) MarkRewardSent(_ context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) error {
	return r.update("participations.MarkRewardSent", id, func(p *model.Participation) {
		p.IsRewardSent = true
		p.RewardAmount = &amount
		p.RewardSentDate = &at
	})
}

func (r *Participations) MarkRewardFailed(_ context.Context, id uuid.UUID) error {
	return r.update("participations.MarkRewardFailed", id, func(p *model.Participation) {
		p.IsRewardSent = false
	})
}

func (r *Participations) NextUnnotified(_ context.Context) (*model.ResultNotification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("participations.NextUnnotified"); err != nil {
		return nil, err
	}

	var candidates []model.Participation
	for _, p := range r.db.participations {
		if p.IsMailSent || !p.IsFinished || p.JobAdded {
			continue
		}
		if u, ok := r.db.users[p.UserID]; !ok || u.Email == nil {
			continue
		}
		if e, ok := r.db.exams[p.ExamID]; !ok || !e.IsCompleted {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil, model.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return finishedBefore(candidates[i], candidates[j]) })
	return r.snapshot(candidates[0]), nil
}

func (r *Participations) GetNotification(_ context.Context, id uuid.UUID) (*model.ResultNotification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("participations.GetNotification"); err != nil {
		return nil, err
	}
	p, ok := r.db.participations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return r.snapshot(p), nil
}

func (r *Participations) ClaimJob(_ context.Context, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("participations.ClaimJob"); err != nil {
		return false, err
	}
	p, ok := r.db.participations[id]
	if !ok || p.JobAdded {
		return false, nil
	}
	p.JobAdded = true
	r.db.participations[id] = p
	return true, nil
}

func (r *Participations) ReleaseJob(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("participations.ReleaseJob"); err != nil {
		return err
	}
	if p, ok := r.db.participations[id]; ok && !p.IsMailSent {
		p.JobAdded = false
		r.db.participations[id] = p
	}
	return nil
}

func (r *Participations) MarkMailSent(_ context.Context, id uuid.UUID) error {
	return r.update("participations.MarkMailSent", id, func(p *model.Participation) {
		p.IsMailSent = true
	})
}

func (r *Participations) update(op string, id uuid.UUID, fn func(*model.Participation)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault(op); err != nil {
		return err
	}
	p, ok := r.db.participations[id]
	if !ok {
		return model.ErrNotFound
	}
	fn(&p)
	r.db.participations[id] = p
	return nil
}

// snapshot must be called with mu held.
func (r *Participations) snapshot(p model.Participation) *model.ResultNotification {
	n := &model.ResultNotification{
		ParticipationID: p.ID,
		UserID:          p.UserID,
		ExamID:          p.ExamID,
		IsFinished:      p.IsFinished,
		IsMailSent:      p.IsMailSent,
		JobAdded:        p.JobAdded,
	}
	if u, ok := r.db.users[p.UserID]; ok {
		n.Email = u.Email
	}
	if e, ok := r.db.exams[p.ExamID]; ok {
		n.ExamName = e.Name
		n.ExamCompleted = e.IsCompleted
	}
	return n
}

func finishedBefore(a, b model.Participation) bool {
	switch {
	case a.FinishTime == nil && b.FinishTime == nil:
	case a.FinishTime == nil:
		return false
	case b.FinishTime == nil:
		return true
	case !a.FinishTime.Equal(*b.FinishTime):
		return a.FinishTime.Before(*b.FinishTime)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// ---------------------------------------------------------------------------
// Scores & questions
// ---------------------------------------------------------------------------

// Scores mirrors repository.ScoreRepository.
type Scores struct{ db *DB }

func (r *Scores) Create(_ context.Context, s *model.Score) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("scores.Create"); err != nil {
		return false, err
	}
	for _, existing := range r.db.scores {
		if existing.UserID == s.UserID && existing.ExamID == s.ExamID {
			return false, nil
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	r.db.scores[s.ID] = *s
	return true, nil
}

func (r *Scores) GetByUserAndExam(_ context.Context, userID int, examID uuid.UUID) (*model.Score, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fault("scores.GetByUserAndExam"); err != nil {
		return nil, err
	}
	for _, s := range r.db.scores {
		if s.UserID == userID && s.ExamID == examID {
			return &s, nil
		}
	}
	return nil, model.ErrNotFound
}

// Questions mirrors repository.QuestionRepository.
type Questions struct{ db *DB }

func (r *Questions) ListAnswerKey(_ context.Context, examID uuid.UUID) ([]model.AnswerKeyEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.answerKeyReads++
	if err := r.db.fault("questions.ListAnswerKey"); err != nil {
		return nil, err
	}
	return append([]model.AnswerKeyEntry(nil), r.db.answerKeys[examID]...), nil
}
