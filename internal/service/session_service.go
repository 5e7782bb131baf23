package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// 考试会话状态机。
//
// NotStarted → Active → Submitting → Finished
//
// Active 是唯一有内部结构的状态：当前题目下标 + 剩余秒数（不限时则无）。
// 倒计时是会话中唯一自主运行的操作；离开 Active 的瞬间计时器必须停止，
// 且恰好停止一次，保证提交之后不会再有过期的 tick 触发。
type SessionState string

const (
	SessionNotStarted SessionState = "not_started"
	SessionActive     SessionState = "active"
	SessionSubmitting SessionState = "submitting"
	SessionFinished   SessionState = "finished"
)

// AssessmentSource 会话启动时读取测评快照的边界
type AssessmentSource interface {
	FindPublishedWithQuestions(id uint) (*model.Assessment, error)
}

// SubmissionSink 提交持久化边界（外部协作方，服务端负责重复提交判定）
type SubmissionSink interface {
	SubmitAssessment(ctx context.Context, sub *model.Submission) (*model.Submission, error)
	HasSubmission(ctx context.Context, userID, assessmentID uint) (bool, error)
}

// AnswerValue setAnswer 的值载荷；只替换目标答案的作答内容，
// 判分字段归评分引擎所有，这里永远不碰。
type AnswerValue struct {
	SelectedOption *int    `json:"selectedOption,omitempty"`
	Code           *string `json:"code,omitempty"`
	Text           *string `json:"text,omitempty"`
}

// SubmitResult 服务端确认后的最终结果
type SubmitResult struct {
	SubmissionID uint    `json:"submissionId"`
	TotalScore   int     `json:"totalScore"`
	MaxScore     int     `json:"maxScore"`
	Percentage   float64 `json:"percentage"`
	Forced       bool    `json:"forced"`
}

// TestSession 单个学生对单个测评的进行中会话
type TestSession struct {
	mu sync.Mutex

	state      SessionState
	userID     uint
	assessment model.Assessment // 启动时的快照；此后作者端的修改不影响本次会话
	questions  []model.Question
	answers    []model.Answer
	current    int
	timed      bool
	remaining  int // 秒
	startedAt  time.Time
	token      string // 幂等提交令牌

	tick      time.Duration
	stopTimer chan struct{}
	timerOn   bool

	sink    SubmissionSink
	sandbox *SandboxService

	result  *SubmitResult
	lastErr error // 强制提交持久化失败时暴露给调用方
}

func newTestSession(userID uint, a *model.Assessment, sink SubmissionSink, sandbox *SandboxService, tick time.Duration) *TestSession {
	s := &TestSession{
		state:      SessionNotStarted,
		userID:     userID,
		assessment: *a,
		questions:  a.Questions,
		tick:       tick,
		sink:       sink,
		sandbox:    sandbox,
		token:      model.GenerateUUID(),
	}
	return s
}

// start 进入 Active：为每道题分配中性默认答案，限时则启动倒计时
func (s *TestSession) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers = make([]model.Answer, len(s.questions))
	for i, q := range s.questions {
		a := model.Answer{QuestionID: q.ID, Kind: q.Kind}
		if q.Kind == model.Coding {
			a.Code = q.StarterCode
		}
		s.answers[i] = a
	}

	s.current = 0
	s.startedAt = time.Now()
	if s.assessment.DurationMinutes > 0 {
		s.timed = true
		s.remaining = s.assessment.DurationMinutes * 60
	}

	s.state = SessionActive
	monitoring.ActiveSessions.Inc()
	s.startTimerLocked()
}

func (s *TestSession) startTimerLocked() {
	if !s.timed || s.remaining <= 0 {
		return
	}
	stop := make(chan struct{})
	s.stopTimer = stop
	s.timerOn = true
	go s.runTimer(stop)
}

// stopTimerLocked 在离开 Active 的同一时刻调用，恰好一次
func (s *TestSession) stopTimerLocked() {
	if s.timerOn {
		close(s.stopTimer)
		s.timerOn = false
	}
}

func (s *TestSession) runTimer(stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.decrementOnce() {
				s.forceSubmit()
				return
			}
		}
	}
}

// decrementOnce 每个 tick 减一秒；归零返回 true 触发强制提交
func (s *TestSession) decrementOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining == 0
}

// GoToQuestion 纯导航：下标收敛到 [0, n-1]，不影响计时器
func (s *TestSession) GoToQuestion(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return s.current, util.ErrSessionNotActive
	}
	if index > len(s.questions)-1 {
		index = len(s.questions) - 1
	}
	if index < 0 {
		index = 0
	}
	s.current = index
	return s.current, nil
}

// Next 前进一题；已在末题时返回 submitRequested=true（提交需确认，不越界）
func (s *TestSession) Next() (submitRequested bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return false, util.ErrSessionNotActive
	}
	if s.current >= len(s.questions)-1 {
		return true, nil
	}
	s.current++
	return false, nil
}

func (s *TestSession) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return util.ErrSessionNotActive
	}
	if s.current > 0 {
		s.current--
	}
	return nil
}

// SetAnswer 只替换目标答案的作答值；Correct/Score/Feedback 永不在此处变动
func (s *TestSession) SetAnswer(index int, value AnswerValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return util.ErrSessionNotActive
	}
	if index < 0 || index >= len(s.questions) {
		return util.ErrQuestionIndexInvalid
	}

	q := s.questions[index]
	a := &s.answers[index]

	switch q.Kind {
	case model.MultipleChoice:
		if value.SelectedOption != nil {
			opts, err := q.OptionList()
			if err != nil {
				return err
			}
			if *value.SelectedOption < 0 || *value.SelectedOption >= len(opts) {
				return fmt.Errorf("selected option %d out of range", *value.SelectedOption)
			}
		}
		a.SelectedOption = value.SelectedOption
	case model.Coding:
		if value.Code != nil {
			a.Code = *value.Code
		}
	case model.FreeText:
		if value.Text != nil {
			a.Text = *value.Text
		}
	}
	return nil
}

// RunCode 在沙箱中执行当前编程题的代码，顺带把代码写入答案缓冲。
// 沙箱自身永不返回错误——失败都在输出行里。
func (s *TestSession) RunCode(ctx context.Context, index int, code string) (RunResult, error) {
	s.mu.Lock()
	if s.state != SessionActive {
		s.mu.Unlock()
		return RunResult{}, util.ErrSessionNotActive
	}
	if index < 0 || index >= len(s.questions) {
		s.mu.Unlock()
		return RunResult{}, util.ErrQuestionIndexInvalid
	}
	q := s.questions[index]
	if q.Kind != model.Coding {
		s.mu.Unlock()
		return RunResult{}, fmt.Errorf("question %d is not a coding question", index)
	}
	s.answers[index].Code = code
	visible := q.VisibleTestCases()
	s.mu.Unlock()

	// 执行期间不持锁：计时器 tick 与导航不被学生代码阻塞
	return s.sandbox.Run(ctx, code, visible), nil
}

// Submit 学生主动提交；confirm=false 时拒绝（前端的确认步骤）
func (s *TestSession) Submit(ctx context.Context, confirm bool) (*SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionFinished:
		return s.result, util.ErrSessionFinished
	case SessionSubmitting:
		return nil, util.ErrAlreadySubmitted
	case SessionActive:
	default:
		return nil, util.ErrSessionNotActive
	}
	if !confirm {
		return nil, util.ErrConfirmRequired
	}

	res, err := s.submitLocked(ctx, false)
	if err != nil {
		// 可恢复：回到 Active，答案原样保留，学生可重试
		s.state = SessionActive
		monitoring.ActiveSessions.Inc()
		s.startTimerLocked()
		return nil, err
	}
	return res, nil
}

// forceSubmit 计时归零触发，与手动提交走同一条评分/持久化路径，跳过确认且不可取消
func (s *TestSession) forceSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionActive {
		return
	}

	if _, err := s.submitLocked(context.Background(), true); err != nil {
		// 留在 Submitting，错误暴露给查询方；RetrySubmit 可再次尝试
		s.lastErr = err
		logger.Log.Error("forced submission failed to persist",
			zap.Uint("userId", s.userID),
			zap.Uint("assessmentId", s.assessment.ID),
			zap.Error(err))
	}
}

// RetrySubmit 强制提交持久化失败后的重试（状态仍为 Submitting）
func (s *TestSession) RetrySubmit(ctx context.Context) (*SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionSubmitting {
		if s.state == SessionFinished {
			return s.result, util.ErrSessionFinished
		}
		return nil, util.ErrSessionNotActive
	}

	res, err := s.persistLocked(ctx, true)
	if err != nil {
		s.lastErr = err
		return nil, err
	}
	return res, nil
}

// submitLocked Active → Submitting → Finished。调用方必须已持锁且状态为 Active。
func (s *TestSession) submitLocked(ctx context.Context, forced bool) (*SubmitResult, error) {
	s.state = SessionSubmitting
	s.stopTimerLocked()
	monitoring.ActiveSessions.Dec()

	return s.persistLocked(ctx, forced)
}

func (s *TestSession) persistLocked(ctx context.Context, forced bool) (*SubmitResult, error) {
	totalScore, graded := GradeAnswers(s.questions, s.answers)

	now := time.Now()
	sub := &model.Submission{
		AssessmentID: s.assessment.ID,
		UserID:       s.userID,
		TotalScore:   totalScore,
		Status:       model.SubmissionSubmitted,
		ClientToken:  s.token,
		StartedAt:    s.startedAt,
		CompletedAt:  &now,
	}
	if err := sub.SetAnswers(graded); err != nil {
		return nil, err
	}

	saved, err := s.sink.SubmitAssessment(ctx, sub)
	if err != nil {
		return nil, err
	}

	max := MaxPossibleScore(s.questions)
	s.result = &SubmitResult{
		SubmissionID: saved.ID,
		TotalScore:   saved.TotalScore,
		MaxScore:     max,
		Percentage:   Percentage(saved.TotalScore, max),
		Forced:       forced,
	}
	s.state = SessionFinished
	s.lastErr = nil

	mode := "manual"
	if forced {
		mode = "forced"
	}
	monitoring.SubmissionCounter.WithLabelValues(mode).Inc()
	logger.Log.Info("assessment submitted",
		zap.Uint("userId", s.userID),
		zap.Uint("assessmentId", s.assessment.ID),
		zap.Uint("submissionId", saved.ID),
		zap.Int("totalScore", saved.TotalScore),
		zap.String("mode", mode))

	return s.result, nil
}

// SessionView 给前端渲染的只读快照
type SessionView struct {
	State            SessionState    `json:"state"`
	AssessmentID     uint            `json:"assessmentId"`
	QuestionCount    int             `json:"questionCount"`
	CurrentIndex     int             `json:"currentIndex"`
	Question         *QuestionView   `json:"question,omitempty"`
	Answer           *model.Answer   `json:"answer,omitempty"`
	Timed            bool            `json:"timed"`
	RemainingSeconds int             `json:"remainingSeconds"`
	Result           *SubmitResult   `json:"result,omitempty"`
	SubmitError      string          `json:"submitError,omitempty"`
}

// QuestionView 下发给学生的题目视图：不携带正确答案与隐藏用例
type QuestionView struct {
	ID        uint               `json:"id"`
	Kind      model.QuestionKind `json:"kind"`
	Prompt    string             `json:"prompt"`
	Points    int                `json:"points"`
	Options   []string           `json:"options,omitempty"`
	Starter   string             `json:"starterCode,omitempty"`
	TestCases []model.TestCase   `json:"testCases,omitempty"`
}

func (s *TestSession) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		State:            s.state,
		AssessmentID:     s.assessment.ID,
		QuestionCount:    len(s.questions),
		CurrentIndex:     s.current,
		Timed:            s.timed,
		RemainingSeconds: s.remaining,
		Result:           s.result,
	}
	if s.lastErr != nil {
		v.SubmitError = s.lastErr.Error()
	}
	if s.state == SessionActive && s.current < len(s.questions) {
		q := s.questions[s.current]
		opts, _ := q.OptionList()
		v.Question = &QuestionView{
			ID:        q.ID,
			Kind:      q.Kind,
			Prompt:    q.Prompt,
			Points:    q.Points,
			Options:   opts,
			Starter:   q.StarterCode,
			TestCases: q.VisibleTestCases(),
		}
		a := s.answers[s.current]
		v.Answer = &a
	}
	return v
}

func (s *TestSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result 仅在 Finished 后可用
func (s *TestSession) Result() (*SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionFinished || s.result == nil {
		return nil, util.ErrSessionNotFound
	}
	return s.result, nil
}

// SessionService 管理进行中的会话：同一（学生, 测评）至多一个活动会话。
// 会话保存在进程内存中；跨实例/跨设备的重复尝试由服务端提交锁兜底。
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*TestSession

	assessments AssessmentSource
	sink        SubmissionSink
	sandbox     *SandboxService

	// Tick 默认 1 秒；测试注入更短间隔
	Tick time.Duration
}

func NewSessionService(assessments AssessmentSource, sink SubmissionSink, sandbox *SandboxService) *SessionService {
	return &SessionService{
		sessions:    make(map[string]*TestSession),
		assessments: assessments,
		sink:        sink,
		sandbox:     sandbox,
		Tick:        time.Second,
	}
}

func sessionKey(userID, assessmentID uint) string {
	return fmt.Sprintf("%d:%d", userID, assessmentID)
}

// StartSession 开启一次作答。已有活动会话或已提交过都会被拒绝。
func (s *SessionService) StartSession(ctx context.Context, userID, assessmentID uint) (*TestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(userID, assessmentID)
	if existing, ok := s.sessions[key]; ok {
		switch existing.State() {
		case SessionActive, SessionSubmitting:
			return nil, util.ErrSessionExists
		}
	}

	done, err := s.sink.HasSubmission(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, util.ErrAlreadySubmitted
	}

	a, err := s.assessments.FindPublishedWithQuestions(assessmentID)
	if err != nil {
		return nil, err
	}

	session := newTestSession(userID, a, s.sink, s.sandbox, s.Tick)
	session.start()
	s.sessions[key] = session

	logger.Log.Info("test session started",
		zap.Uint("userId", userID),
		zap.Uint("assessmentId", assessmentID),
		zap.Int("questions", len(a.Questions)),
		zap.Int("durationMinutes", a.DurationMinutes))

	return session, nil
}

// GetSession 返回进行中（或刚结束）的会话
func (s *SessionService) GetSession(userID, assessmentID uint) (*TestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionKey(userID, assessmentID)]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	return session, nil
}
