package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestQuestionKind_Valid(t *testing.T) {
	assert.True(t, MultipleChoice.Valid())
	assert.True(t, Coding.Valid())
	assert.True(t, FreeText.Valid())
	assert.False(t, QuestionKind("essay").Valid())
	assert.False(t, QuestionKind("").Valid())
}

func TestQuestion_Validate_MultipleChoice(t *testing.T) {
	correct := 1
	q := Question{
		Kind:          MultipleChoice,
		Prompt:        "pick",
		Points:        2,
		Options:       nil,
		CorrectOption: &correct,
	}

	assert.Error(t, q.Validate(), "no options")

	q.Options = mustJSON(t, []string{"only one"})
	assert.Error(t, q.Validate(), "needs at least two options")

	q.Options = mustJSON(t, []string{"a", "b", "c"})
	assert.NoError(t, q.Validate())

	out := 3
	q.CorrectOption = &out
	assert.Error(t, q.Validate(), "correct index out of range")

	q.CorrectOption = nil
	assert.Error(t, q.Validate(), "correct option required")
}

func TestQuestion_Validate_Points(t *testing.T) {
	q := Question{Kind: FreeText, Prompt: "explain", Points: 0}
	assert.Error(t, q.Validate())
	q.Points = 5
	assert.NoError(t, q.Validate())
}

func TestQuestion_VisibleTestCases(t *testing.T) {
	q := Question{
		Kind:   Coding,
		Points: 10,
		TestCases: mustJSON(t, []TestCase{
			{Input: "1", Expected: "1"},
			{Input: "2", Expected: "4", Hidden: true},
			{Input: "3", Expected: "9"},
		}),
	}

	visible := q.VisibleTestCases()
	require.Len(t, visible, 2)
	assert.Equal(t, "1", visible[0].Input)
	assert.Equal(t, "3", visible[1].Input)
}

func TestQuestion_MalformedPayloads(t *testing.T) {
	q := Question{Kind: MultipleChoice, Points: 2, Options: json.RawMessage(`{not json`)}
	_, err := q.OptionList()
	assert.Error(t, err)

	q2 := Question{Kind: Coding, Points: 2, TestCases: json.RawMessage(`"nope"`)}
	_, err = q2.TestCaseList()
	assert.Error(t, err)
	assert.Nil(t, q2.VisibleTestCases())
}

func TestQuestion_CorrectOptionNeverSerialized(t *testing.T) {
	correct := 0
	q := Question{
		Kind:          MultipleChoice,
		Prompt:        "secret",
		Points:        2,
		Options:       mustJSON(t, []string{"a", "b"}),
		CorrectOption: &correct,
	}

	raw, err := json.Marshal(q)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correctOption")
	assert.NotContains(t, string(raw), "CorrectOption")
}
