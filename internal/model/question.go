package model

import (
	"encoding/json"
	"fmt"
)

// QuestionKind 封闭的题型枚举，评分引擎和会话视图都对其穷举匹配
type QuestionKind string

const (
	MultipleChoice QuestionKind = "multiple_choice"
	Coding         QuestionKind = "coding"
	FreeText       QuestionKind = "free_text"
)

func (k QuestionKind) Valid() bool {
	switch k {
	case MultipleChoice, Coding, FreeText:
		return true
	}
	return false
}

// TestCase 编程题的一条用例；Hidden 的用例不回显给学生
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Hidden   bool   `json:"hidden"`
}

// Question 测评中的一道题。发布且有进行中会话后不可变（会话持有开始时的快照）。
// swagger:model Question
type Question struct {
	BaseModel
	AssessmentID uint            `gorm:"index;type:bigint unsigned" json:"assessmentId"`
	Kind         QuestionKind    `gorm:"size:50;not null" json:"kind"`
	Prompt       string          `gorm:"type:text;not null" json:"prompt"`
	Points       int             `gorm:"default:0" json:"points"`
	Order        int             `gorm:"default:0" json:"order"`
	Explanation  string          `gorm:"type:text" json:"explanation"`

	// multiple_choice
	Options       json.RawMessage `gorm:"type:json" json:"options,omitempty"` // JSON: []string
	CorrectOption *int            `json:"-"`                                  // 不下发给学生

	// coding
	StarterCode string          `gorm:"type:text" json:"starterCode,omitempty"`
	TestCases   json.RawMessage `gorm:"type:json" json:"testCases,omitempty"` // JSON: []TestCase
}

func (Question) TableName() string {
	return "questions"
}

// OptionList 解析选择题选项
func (q *Question) OptionList() ([]string, error) {
	if len(q.Options) == 0 {
		return nil, nil
	}
	var opts []string
	if err := json.Unmarshal(q.Options, &opts); err != nil {
		return nil, fmt.Errorf("question %d: malformed options: %w", q.ID, err)
	}
	return opts, nil
}

// TestCaseList 解析编程题用例
func (q *Question) TestCaseList() ([]TestCase, error) {
	if len(q.TestCases) == 0 {
		return nil, nil
	}
	var cases []TestCase
	if err := json.Unmarshal(q.TestCases, &cases); err != nil {
		return nil, fmt.Errorf("question %d: malformed test cases: %w", q.ID, err)
	}
	return cases, nil
}

// VisibleTestCases 过滤掉 hidden 用例
func (q *Question) VisibleTestCases() []TestCase {
	cases, err := q.TestCaseList()
	if err != nil {
		return nil
	}
	visible := make([]TestCase, 0, len(cases))
	for _, tc := range cases {
		if !tc.Hidden {
			visible = append(visible, tc)
		}
	}
	return visible
}

// Validate 作者保存题目时的结构校验
func (q *Question) Validate() error {
	if !q.Kind.Valid() {
		return fmt.Errorf("unknown question kind %q", q.Kind)
	}
	if q.Points <= 0 {
		return fmt.Errorf("points must be positive, got %d", q.Points)
	}
	switch q.Kind {
	case MultipleChoice:
		opts, err := q.OptionList()
		if err != nil {
			return err
		}
		if len(opts) < 2 {
			return fmt.Errorf("multiple-choice question needs at least 2 options, got %d", len(opts))
		}
		if q.CorrectOption == nil || *q.CorrectOption < 0 || *q.CorrectOption >= len(opts) {
			return fmt.Errorf("correct option index out of range")
		}
	case Coding:
		if _, err := q.TestCaseList(); err != nil {
			return err
		}
	case FreeText:
		// 无附加载荷
	}
	return nil
}
