package model

import (
	"time"

	"github.com/google/uuid"
)

// Score is the immutable grading record written when a participant finishes.
type Score struct {
	ID             uuid.UUID `json:"id"`
	UserID         int       `json:"user_id"`
	ExamID         uuid.UUID `json:"exam_id"`
	Score          float64   `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CorrectCount   int       `json:"correct_count"`
	IsWinner       bool      `json:"is_winner"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubmittedAnswer is one answer as sent by the participant.
type SubmittedAnswer struct {
	QuestionID string `json:"question_id" binding:"required"`
	Answer     any    `json:"answer"`
}

// AnswerKeyEntry is the correct answer of one question.
type AnswerKeyEntry struct {
	QuestionID    string
	CorrectAnswer any
}

// SubmitExamRequest is the payload for finishing an exam.
type SubmitExamRequest struct {
	Answers []SubmittedAnswer `json:"answers" binding:"required,dive"`
}
