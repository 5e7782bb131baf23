package service

import (
	"context"
	"testing"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmissionStore struct {
	subs map[uint]*model.Submission
}

func newFakeSubmissionStore(subs ...*model.Submission) *fakeSubmissionStore {
	s := &fakeSubmissionStore{subs: make(map[uint]*model.Submission)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (f *fakeSubmissionStore) FindSubmissionByID(id uint) (*model.Submission, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, util.ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubmissionStore) FindByUserAndAssessment(userID, assessmentID uint) (*model.Submission, error) {
	for _, sub := range f.subs {
		if sub.UserID == userID && sub.AssessmentID == assessmentID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, util.ErrSubmissionNotFound
}

func (f *fakeSubmissionStore) ListByAssessment(assessmentID uint) ([]model.Submission, error) {
	var out []model.Submission
	for _, sub := range f.subs {
		if sub.AssessmentID == assessmentID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubmissionStore) UpdateSubmission(ctx context.Context, sub *model.Submission) error {
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

type fakeAssessmentLookup struct {
	assessment *model.Assessment
}

func (f *fakeAssessmentLookup) FindWithQuestions(id uint) (*model.Assessment, error) {
	if f.assessment == nil || f.assessment.ID != id {
		return nil, util.ErrAssessmentNotFound
	}
	return f.assessment, nil
}

// 一份已提交的作答：选择题已自动判分（2/2 分），编程题待人工评分
func gradingFixture(t *testing.T) (*GradingService, *fakeSubmissionStore) {
	t.Helper()

	a := sampleAssessment(0)
	sub := &model.Submission{
		AssessmentID: a.ID,
		UserID:       42,
		Status:       model.SubmissionSubmitted,
		StartedAt:    time.Now(),
	}
	sub.ID = 100
	require.NoError(t, sub.SetAnswers([]model.Answer{
		{QuestionID: 1, Kind: model.MultipleChoice, SelectedOption: intPtr(0), Correct: boolPtr(true), Score: intPtr(2)},
		{QuestionID: 2, Kind: model.MultipleChoice, SelectedOption: intPtr(0), Correct: boolPtr(false), Score: intPtr(0)},
		{QuestionID: 3, Kind: model.Coding, Code: "print(1)"},
	}))
	sub.TotalScore = 2

	store := newFakeSubmissionStore(sub)
	return NewGradingService(store, &fakeAssessmentLookup{assessment: a}), store
}

func boolPtr(v bool) *bool { return &v }

func TestSetAnswerScore_UpdatesAndRecomputesTotal(t *testing.T) {
	svc, store := gradingFixture(t)

	sub, err := svc.SetAnswerScore(context.Background(), 100, 2, 8, "solid approach")
	require.NoError(t, err)
	assert.Equal(t, 10, sub.TotalScore, "2 auto-graded points + 8 manual")

	answers, err := store.subs[100].AnswerList()
	require.NoError(t, err)
	require.NotNil(t, answers[2].Score)
	assert.Equal(t, 8, *answers[2].Score)
	assert.Equal(t, "solid approach", answers[2].Feedback)
	assert.Nil(t, answers[2].Correct, "manual scoring does not fabricate correctness")
}

func TestSetAnswerScore_Bounds(t *testing.T) {
	svc, _ := gradingFixture(t)

	_, err := svc.SetAnswerScore(context.Background(), 100, 2, 11, "")
	assert.ErrorIs(t, err, util.ErrScoreOutOfRange, "coding question is worth 10 points")

	_, err = svc.SetAnswerScore(context.Background(), 100, 2, -1, "")
	assert.ErrorIs(t, err, util.ErrScoreOutOfRange)

	// 边界值合法
	_, err = svc.SetAnswerScore(context.Background(), 100, 2, 0, "")
	assert.NoError(t, err)
	_, err = svc.SetAnswerScore(context.Background(), 100, 2, 10, "")
	assert.NoError(t, err)

	_, err = svc.SetAnswerScore(context.Background(), 100, 9, 1, "")
	assert.ErrorIs(t, err, util.ErrQuestionIndexInvalid)

	_, err = svc.SetAnswerScore(context.Background(), 999, 0, 1, "")
	assert.ErrorIs(t, err, util.ErrSubmissionNotFound)
}

func TestFinalize_RequiresEveryAnswerScored(t *testing.T) {
	svc, _ := gradingFixture(t)

	_, err := svc.Finalize(context.Background(), 100)
	var incomplete *util.GradingIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 2, incomplete.QuestionIndex, "first ungraded answer is named")
	assert.Equal(t, uint(3), incomplete.QuestionID)

	_, err = svc.SetAnswerScore(context.Background(), 100, 2, 7, "")
	require.NoError(t, err)

	sub, err := svc.Finalize(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionGraded, sub.Status)
	assert.Equal(t, 9, sub.TotalScore)
}

func TestFinalize_FreezesScores(t *testing.T) {
	svc, _ := gradingFixture(t)

	_, err := svc.SetAnswerScore(context.Background(), 100, 2, 10, "")
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), 100)
	require.NoError(t, err)

	_, err = svc.SetAnswerScore(context.Background(), 100, 2, 5, "second thoughts")
	assert.ErrorIs(t, err, util.ErrSubmissionFinalized)

	_, err = svc.Finalize(context.Background(), 100)
	assert.ErrorIs(t, err, util.ErrSubmissionFinalized)
}

func TestResult_PassFailAndRetry(t *testing.T) {
	svc, _ := gradingFixture(t)

	// 未定稿：当前 2/15，不及格但还不能重考
	res, err := svc.Result(42, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionSubmitted, res.Status)
	assert.Equal(t, 2, res.TotalScore)
	assert.Equal(t, 15, res.MaxScore)
	assert.False(t, res.Passed)
	assert.False(t, res.RetryAllowed, "retry only after grading is final")

	// 打满编程题：12/15 = 80% ≥ 60% 通过
	_, err = svc.SetAnswerScore(context.Background(), 100, 2, 10, "")
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), 100)
	require.NoError(t, err)

	res, err = svc.Result(42, 7)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionGraded, res.Status)
	assert.True(t, res.Passed)
	assert.False(t, res.RetryAllowed)
	assert.InDelta(t, 80.0, res.Percentage, 0.001)
}

func TestResult_FailedGradedAllowsRetry(t *testing.T) {
	svc, _ := gradingFixture(t)

	_, err := svc.SetAnswerScore(context.Background(), 100, 2, 0, "does not compile")
	require.NoError(t, err)
	_, err = svc.Finalize(context.Background(), 100)
	require.NoError(t, err)

	res, err := svc.Result(42, 7)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.True(t, res.RetryAllowed)
}
