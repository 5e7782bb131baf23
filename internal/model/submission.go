package model

import (
	"encoding/json"
	"time"
)

type SubmissionStatus string

const (
	// SubmissionInProgress 仅存在于会话内存中，不落库
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionSubmitted  SubmissionStatus = "submitted"
	SubmissionGraded     SubmissionStatus = "graded"
)

// Answer 与题目同序的作答记录。Correct/Score 为空表示尚未（自动或人工）判分。
type Answer struct {
	QuestionID uint         `json:"questionId"`
	Kind       QuestionKind `json:"kind"`

	SelectedOption *int   `json:"selectedOption,omitempty"` // multiple_choice
	Code           string `json:"code,omitempty"`           // coding
	Text           string `json:"text,omitempty"`           // free_text

	Correct  *bool  `json:"correct"`            // null = 无法自动判定
	Score    *int   `json:"score"`              // null = 待人工评分
	Feedback string `json:"feedback,omitempty"` // 教师评语
}

// Submission 学生对一次测评的完整作答，一人一测评至多一条
// swagger:model Submission
type Submission struct {
	BaseModel
	AssessmentID uint             `gorm:"index;type:bigint unsigned" json:"assessmentId"`
	UserID       uint             `gorm:"index;type:bigint unsigned" json:"userId"`
	User         *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Answers      json.RawMessage  `gorm:"type:json" json:"answers"` // JSON: []Answer，与题目同序
	TotalScore   int              `json:"totalScore"`
	Status       SubmissionStatus `gorm:"size:20;default:'submitted'" json:"status"`
	ClientToken  string           `gorm:"size:36;index" json:"-"` // 会话生成，用于幂等提交
	StartedAt    time.Time        `json:"startedAt"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

// AnswerList 解码答案数组
func (s *Submission) AnswerList() ([]Answer, error) {
	var answers []Answer
	if len(s.Answers) == 0 {
		return answers, nil
	}
	if err := json.Unmarshal(s.Answers, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// SetAnswers 编码并回写答案数组
func (s *Submission) SetAnswers(answers []Answer) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	s.Answers = raw
	return nil
}
