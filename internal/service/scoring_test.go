package service

import (
	"encoding/json"
	"testing"

	"exam_engine_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func mcQuestion(id uint, points, correct int) model.Question {
	opts, _ := json.Marshal([]string{"A", "B", "C"})
	q := model.Question{
		Kind:          model.MultipleChoice,
		Prompt:        "pick one",
		Points:        points,
		Options:       opts,
		CorrectOption: intPtr(correct),
	}
	q.ID = id
	return q
}

func codingQuestion(id uint, points int) model.Question {
	q := model.Question{
		Kind:        model.Coding,
		Prompt:      "write code",
		Points:      points,
		StarterCode: "// your solution here",
	}
	q.ID = id
	return q
}

func TestGradeAnswers_MultipleChoice(t *testing.T) {
	questions := []model.Question{
		mcQuestion(1, 2, 0),
		mcQuestion(2, 3, 1),
	}

	tests := []struct {
		name      string
		selected  []*int
		wantTotal int
		wantOK    []bool
	}{
		{name: "all correct", selected: []*int{intPtr(0), intPtr(1)}, wantTotal: 5, wantOK: []bool{true, true}},
		{name: "first wrong", selected: []*int{intPtr(1), intPtr(1)}, wantTotal: 3, wantOK: []bool{false, true}},
		{name: "all wrong", selected: []*int{intPtr(1), intPtr(0)}, wantTotal: 0, wantOK: []bool{false, false}},
		{name: "blank selection scores zero", selected: []*int{nil, intPtr(1)}, wantTotal: 3, wantOK: []bool{false, true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			answers := make([]model.Answer, len(questions))
			for i, sel := range tc.selected {
				answers[i] = model.Answer{QuestionID: questions[i].ID, Kind: model.MultipleChoice, SelectedOption: sel}
			}

			total, graded := GradeAnswers(questions, answers)

			assert.Equal(t, tc.wantTotal, total)
			require.Len(t, graded, len(questions))
			for i, want := range tc.wantOK {
				require.NotNil(t, graded[i].Correct, "multiple-choice correctness is never nil")
				require.NotNil(t, graded[i].Score)
				assert.Equal(t, want, *graded[i].Correct)
				if want {
					assert.Equal(t, questions[i].Points, *graded[i].Score)
				} else {
					assert.Equal(t, 0, *graded[i].Score)
				}
			}
		})
	}
}

func TestGradeAnswers_CodingAndFreeTextStayUngraded(t *testing.T) {
	ft := model.Question{Kind: model.FreeText, Prompt: "explain", Points: 5}
	ft.ID = 3
	questions := []model.Question{codingQuestion(1, 10), ft}
	answers := []model.Answer{
		{QuestionID: 1, Kind: model.Coding, Code: "while(1){}"},
		{QuestionID: 3, Kind: model.FreeText, Text: "because"},
	}

	total, graded := GradeAnswers(questions, answers)

	assert.Equal(t, 0, total, "ungraded answers contribute nothing at submission time")
	require.Len(t, graded, 2)
	for _, a := range graded {
		assert.Nil(t, a.Correct)
		assert.Nil(t, a.Score)
	}
	// 原始作答原样保留
	assert.Equal(t, "while(1){}", graded[0].Code)
	assert.Equal(t, "because", graded[1].Text)
}

func TestGradeAnswers_Deterministic(t *testing.T) {
	questions := []model.Question{mcQuestion(1, 2, 0), codingQuestion(2, 10), mcQuestion(3, 3, 2)}
	answers := []model.Answer{
		{QuestionID: 1, Kind: model.MultipleChoice, SelectedOption: intPtr(0)},
		{QuestionID: 2, Kind: model.Coding, Code: "print(1)"},
		{QuestionID: 3, Kind: model.MultipleChoice, SelectedOption: intPtr(1)},
	}

	total1, graded1 := GradeAnswers(questions, answers)
	total2, graded2 := GradeAnswers(questions, answers)

	assert.Equal(t, total1, total2)
	assert.Equal(t, graded1, graded2)
}

func TestGradeAnswers_EmptyAssessment(t *testing.T) {
	total, graded := GradeAnswers(nil, nil)
	assert.Equal(t, 0, total)
	assert.Empty(t, graded)
}

func TestGradeAnswers_MissingAnswersTreatedAsBlank(t *testing.T) {
	questions := []model.Question{mcQuestion(1, 2, 0), mcQuestion(2, 3, 1)}

	total, graded := GradeAnswers(questions, []model.Answer{{QuestionID: 1, Kind: model.MultipleChoice, SelectedOption: intPtr(0)}})

	assert.Equal(t, 2, total)
	require.Len(t, graded, 2, "every question gets an answer slot, no gaps")
	assert.Equal(t, uint(2), graded[1].QuestionID)
	assert.False(t, *graded[1].Correct)
}

func TestPassed_BoundaryInclusive(t *testing.T) {
	questions := []model.Question{mcQuestion(1, 2, 0), mcQuestion(2, 3, 1)}
	max := MaxPossibleScore(questions)
	require.Equal(t, 5, max)

	// spec 场景：passingScore 60
	assert.True(t, Passed(5, max, 60), "100% passes")
	assert.True(t, Passed(3, max, 60), "exactly 60% passes")
	assert.False(t, Passed(0, max, 60), "0% fails")
}

func TestPercentage_ZeroQuestions(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
}

func TestRecomputeTotal(t *testing.T) {
	answers := []model.Answer{
		{Score: intPtr(2)},
		{Score: nil},
		{Score: intPtr(7)},
	}
	assert.Equal(t, 9, RecomputeTotal(answers))
}

func TestFullyGraded(t *testing.T) {
	ok, idx := FullyGraded([]model.Answer{{Score: intPtr(1)}, {Score: nil}})
	assert.False(t, ok)
	assert.Equal(t, 1, idx)

	ok, idx = FullyGraded([]model.Answer{{Score: intPtr(1)}, {Score: intPtr(0)}})
	assert.True(t, ok)
	assert.Equal(t, -1, idx)
}
