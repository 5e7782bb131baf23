package util

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAssessmentNotFound   = errors.New("assessment not found")
	ErrAssessmentNotOpen    = errors.New("assessment not published or not accessible")
	ErrSessionNotFound      = errors.New("no active test session")
	ErrSessionExists        = errors.New("a test session for this assessment is already active")
	ErrSessionFinished      = errors.New("test session already finished")
	ErrSessionNotActive     = errors.New("test session is not active")
	ErrConfirmRequired      = errors.New("submission requires confirmation")
	ErrAlreadySubmitted     = errors.New("assessment already submitted")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrSubmissionFinalized  = errors.New("submission already finalized")
	ErrScoreOutOfRange      = errors.New("score out of range for question")
	ErrQuestionIndexInvalid = errors.New("question index out of range")
)

// GradingIncompleteError 定稿时仍有未评分答案，指向第一道未评分的题
type GradingIncompleteError struct {
	QuestionIndex int
	QuestionID    uint
}

func (e *GradingIncompleteError) Error() string {
	return fmt.Sprintf("grading incomplete: question %d not yet scored", e.QuestionIndex+1)
}
