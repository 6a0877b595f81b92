package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScheduleMode enumerates how an exam decides that it has ended.
type ScheduleMode string

const (
	ScheduleModeFixed    ScheduleMode = "fixed"
	ScheduleModeFlexible ScheduleMode = "flexible"
)

// FlexibleStatus enumerates the lifecycle of a flexible exam.
type FlexibleStatus string

const (
	FlexibleStatusPassive   FlexibleStatus = "passive"
	FlexibleStatusActive    FlexibleStatus = "active"
	FlexibleStatusCompleted FlexibleStatus = "completed"
)

// ExamSchedule is either a FixedSchedule or a FlexibleSchedule.
type ExamSchedule interface {
	Mode() ScheduleMode
}

// FixedSchedule ends for everybody at StartDate + Duration.
type FixedSchedule struct {
	StartDate time.Time
	Duration  time.Duration
}

// Mode implements ExamSchedule.
func (FixedSchedule) Mode() ScheduleMode { return ScheduleModeFixed }

// EndsAt returns the wall-clock end of the exam window.
func (s FixedSchedule) EndsAt() time.Time {
	return s.StartDate.Add(s.Duration)
}

// HasEnded reports whether the window is over at now (end <= now).
func (s FixedSchedule) HasEnded(now time.Time) bool {
	return !s.EndsAt().After(now)
}

// FlexibleSchedule gives every participant their own TimeLimit; the exam ends
// once it is active and no participant session remains open.
type FlexibleSchedule struct {
	TimeLimit time.Duration
	Status    FlexibleStatus
}

// Mode implements ExamSchedule.
func (FlexibleSchedule) Mode() ScheduleMode { return ScheduleModeFlexible }

// RewardConfig describes the payout attached to an exam.
type RewardConfig struct {
	IsRewarded      bool
	RewardPerWinner decimal.Decimal
	PassingScore    float64
	// ContractAddress is the settlement target handed to the proof service.
	ContractAddress string
}

// Exam represents the completion-relevant part of an exam.
type Exam struct {
	ID                    uuid.UUID
	Name                  string
	QuestionCount         int
	Schedule              ExamSchedule
	Reward                RewardConfig
	IsCompleted           bool
	IsDistributed         bool
	IsWinnerlistRequested bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Fixed returns the fixed schedule if the exam uses one.
func (e *Exam) Fixed() (FixedSchedule, bool) {
	s, ok := e.Schedule.(FixedSchedule)
	return s, ok
}

// Flexible returns the flexible schedule if the exam uses one.
func (e *Exam) Flexible() (FlexibleSchedule, bool) {
	s, ok := e.Schedule.(FlexibleSchedule)
	return s, ok
}
