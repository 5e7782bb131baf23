package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssessments struct {
	assessment *model.Assessment
	err        error
}

func (f *fakeAssessments) FindPublishedWithQuestions(id uint) (*model.Assessment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assessment, nil
}

type fakeSink struct {
	mu        sync.Mutex
	failures  int // 先失败 N 次再成功
	submitted []*model.Submission
	has       bool
	nextID    uint
}

func (f *fakeSink) SubmitAssessment(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("database unavailable")
	}
	f.nextID++
	sub.ID = f.nextID
	f.submitted = append(f.submitted, sub)
	return sub, nil
}

func (f *fakeSink) HasSubmission(ctx context.Context, userID, assessmentID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.has, nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func sampleAssessment(durationMinutes int) *model.Assessment {
	a := &model.Assessment{
		Title:           "Go 基础测评",
		PassingScore:    60,
		DurationMinutes: durationMinutes,
		Questions: []model.Question{
			mcQuestion(1, 2, 0),
			mcQuestion(2, 3, 1),
			codingQuestion(3, 10),
		},
	}
	a.ID = 7
	return a
}

func newTestService(a *model.Assessment, sink *fakeSink, tick time.Duration) *SessionService {
	sandbox := NewSandboxService(config.SandboxConfig{
		Command:        "sh",
		Args:           []string{"-c", `cat "$0"`},
		TimeoutSeconds: 5,
		MaxOutputLines: 100,
	})
	svc := NewSessionService(&fakeAssessments{assessment: a}, sink, sandbox)
	svc.Tick = tick
	return svc
}

func TestStartSession_InitialState(t *testing.T) {
	svc := newTestService(sampleAssessment(30), &fakeSink{}, time.Second)

	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	v := session.View()
	assert.Equal(t, SessionActive, v.State)
	assert.Equal(t, 0, v.CurrentIndex)
	assert.Equal(t, 3, v.QuestionCount)
	assert.True(t, v.Timed)
	assert.Equal(t, 30*60, v.RemainingSeconds)
	require.NotNil(t, v.Question)
	assert.Equal(t, model.MultipleChoice, v.Question.Kind)
	require.NotNil(t, v.Answer)
	assert.Nil(t, v.Answer.SelectedOption, "multiple choice starts with no selection")
}

func TestStartSession_CodingAnswerSeededWithStarterCode(t *testing.T) {
	svc := newTestService(sampleAssessment(0), &fakeSink{}, time.Second)

	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	_, err = session.GoToQuestion(2)
	require.NoError(t, err)
	v := session.View()
	require.NotNil(t, v.Answer)
	assert.Equal(t, "// your solution here", v.Answer.Code)
	assert.False(t, v.Timed)
}

func TestStartSession_RejectsConcurrentAndRepeatAttempts(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sampleAssessment(30), sink, time.Second)

	_, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	_, err = svc.StartSession(context.Background(), 42, 7)
	assert.ErrorIs(t, err, util.ErrSessionExists)

	// 其他学生不受影响
	_, err = svc.StartSession(context.Background(), 43, 7)
	assert.NoError(t, err)

	sink.has = true
	_, err = svc.StartSession(context.Background(), 44, 7)
	assert.ErrorIs(t, err, util.ErrAlreadySubmitted)
}

func TestSession_Navigation(t *testing.T) {
	svc := newTestService(sampleAssessment(0), &fakeSink{}, time.Second)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	idx, err := session.GoToQuestion(99)
	require.NoError(t, err)
	assert.Equal(t, 2, idx, "out-of-range index clamps to last question")

	idx, err = session.GoToQuestion(-5)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	submitReq, err := session.Next()
	require.NoError(t, err)
	assert.False(t, submitReq)
	assert.Equal(t, 1, session.View().CurrentIndex)

	require.NoError(t, session.Previous())
	assert.Equal(t, 0, session.View().CurrentIndex)

	// 第一题再往前不动
	require.NoError(t, session.Previous())
	assert.Equal(t, 0, session.View().CurrentIndex)

	// 末题 Next 不前进，只表示请求提交
	_, err = session.GoToQuestion(2)
	require.NoError(t, err)
	submitReq, err = session.Next()
	require.NoError(t, err)
	assert.True(t, submitReq)
	assert.Equal(t, 2, session.View().CurrentIndex)
	assert.Equal(t, SessionActive, session.State(), "requesting submission does not leave Active")
}

func TestSession_SetAnswer(t *testing.T) {
	svc := newTestService(sampleAssessment(0), &fakeSink{}, time.Second)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	require.NoError(t, session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(1)}))
	v := session.View()
	require.NotNil(t, v.Answer.SelectedOption)
	assert.Equal(t, 1, *v.Answer.SelectedOption)

	// 重复作答直接覆盖
	require.NoError(t, session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(0)}))
	assert.Equal(t, 0, *session.View().Answer.SelectedOption)

	err = session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(9)})
	assert.Error(t, err, "option index outside the question's options")

	err = session.SetAnswer(5, AnswerValue{SelectedOption: intPtr(0)})
	assert.ErrorIs(t, err, util.ErrQuestionIndexInvalid)

	code := "fmt.Println(42)"
	require.NoError(t, session.SetAnswer(2, AnswerValue{Code: &code}))
}

func TestSession_RunCode(t *testing.T) {
	svc := newTestService(sampleAssessment(0), &fakeSink{}, time.Second)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	res, err := session.RunCode(context.Background(), 2, "hello from sandbox")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello from sandbox"}, res.Lines)

	// 运行即保存最新代码
	_, err = session.GoToQuestion(2)
	require.NoError(t, err)
	assert.Equal(t, "hello from sandbox", session.View().Answer.Code)

	_, err = session.RunCode(context.Background(), 0, "x")
	assert.Error(t, err, "only coding questions can run code")
}

func TestSession_SubmitRequiresConfirmation(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sampleAssessment(0), sink, time.Second)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	_, err = session.Submit(context.Background(), false)
	assert.ErrorIs(t, err, util.ErrConfirmRequired)
	assert.Equal(t, SessionActive, session.State())
	assert.Equal(t, 0, sink.count())
}

func TestSession_SubmitGradesAndFinishes(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sampleAssessment(0), sink, time.Second)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	require.NoError(t, session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(0)})) // 对，2 分
	require.NoError(t, session.SetAnswer(1, AnswerValue{SelectedOption: intPtr(0)})) // 错

	res, err := session.Submit(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, SessionFinished, session.State())
	assert.Equal(t, 2, res.TotalScore)
	assert.Equal(t, 15, res.MaxScore)
	assert.False(t, res.Forced)

	require.Equal(t, 1, sink.count())
	sub := sink.submitted[0]
	assert.Equal(t, model.SubmissionSubmitted, sub.Status)
	assert.NotEmpty(t, sub.ClientToken)
	assert.NotNil(t, sub.CompletedAt)

	answers, err := sub.AnswerList()
	require.NoError(t, err)
	require.Len(t, answers, 3)
	assert.Nil(t, answers[2].Score, "coding answer awaits manual grading")

	// 结束后一切操作拒绝，结果仍可取
	assert.ErrorIs(t, session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(1)}), util.ErrSessionNotActive)
	again, err := session.Submit(context.Background(), true)
	assert.ErrorIs(t, err, util.ErrSessionFinished)
	assert.Equal(t, res, again, "finished session still exposes its result")
	assert.Equal(t, 1, sink.count(), "no duplicate persistence")
}

func TestSession_ManualSubmitFailureRevertsToActive(t *testing.T) {
	sink := &fakeSink{failures: 1}
	svc := newTestService(sampleAssessment(30), sink, time.Second)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	require.NoError(t, session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(0)}))

	_, err = session.Submit(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, SessionActive, session.State(), "recoverable failure returns the session to Active")

	// 答案完好，重试成功
	v := session.View()
	require.NotNil(t, v.Answer.SelectedOption)
	assert.Equal(t, 0, *v.Answer.SelectedOption)

	res, err := session.Submit(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalScore)
	assert.Equal(t, SessionFinished, session.State())
}

func TestSession_TimerForcesSubmission(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sampleAssessment(1), sink, time.Millisecond)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	require.NoError(t, session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(0)}))

	require.Eventually(t, func() bool {
		return session.State() == SessionFinished
	}, 5*time.Second, 5*time.Millisecond, "expiry must force submission without confirmation")

	res, err := session.Result()
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.Equal(t, 2, res.TotalScore, "whatever is answered so far gets graded")
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 0, session.View().RemainingSeconds)
}

func TestSession_ForcedSubmitFailureStaysSubmitting(t *testing.T) {
	sink := &fakeSink{failures: 1}
	svc := newTestService(sampleAssessment(1), sink, time.Millisecond)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return session.State() == SessionSubmitting
	}, 5*time.Second, 5*time.Millisecond)

	v := session.View()
	assert.NotEmpty(t, v.SubmitError, "persistence failure is surfaced, not swallowed")

	// 强制提交不可撤销：会话不再回到 Active，但可重试持久化
	assert.ErrorIs(t, session.SetAnswer(0, AnswerValue{SelectedOption: intPtr(1)}), util.ErrSessionNotActive)

	res, err := session.RetrySubmit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Forced)
	assert.Equal(t, SessionFinished, session.State())
	assert.Empty(t, session.View().SubmitError)
}

func TestSession_TimerStopsAfterManualSubmit(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sampleAssessment(30), sink, time.Millisecond)
	session, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	_, err = session.Submit(context.Background(), true)
	require.NoError(t, err)

	frozen := session.View().RemainingSeconds
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, session.View().RemainingSeconds, "no ticks after leaving Active")
}

func TestGetSession(t *testing.T) {
	svc := newTestService(sampleAssessment(0), &fakeSink{}, time.Second)

	_, err := svc.GetSession(42, 7)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)

	started, err := svc.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)

	got, err := svc.GetSession(42, 7)
	require.NoError(t, err)
	assert.Same(t, started, got)
}
