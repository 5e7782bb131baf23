package service

import (
	"context"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"

	"go.uber.org/zap"
)

// SubmissionStore 评分工作流的持久化边界
type SubmissionStore interface {
	FindSubmissionByID(id uint) (*model.Submission, error)
	FindByUserAndAssessment(userID, assessmentID uint) (*model.Submission, error)
	ListByAssessment(assessmentID uint) ([]model.Submission, error)
	UpdateSubmission(ctx context.Context, sub *model.Submission) error
}

// AssessmentLookup 评分时取题目定义（含正确答案与分值）
type AssessmentLookup interface {
	FindWithQuestions(id uint) (*model.Assessment, error)
}

// GradingService 教师人工评分工作流。
//
// 提交后的作答不可再被学生改动；教师对编程题/简答题逐题打分，
// 全部打完后定稿，状态 submitted → graded，此后分数冻结。
type GradingService struct {
	submissions SubmissionStore
	assessments AssessmentLookup
}

func NewGradingService(submissions SubmissionStore, assessments AssessmentLookup) *GradingService {
	return &GradingService{submissions: submissions, assessments: assessments}
}

// PendingSubmissions 列出某测评下待评分与已定稿的全部提交
func (g *GradingService) PendingSubmissions(assessmentID uint) ([]model.Submission, error) {
	return g.submissions.ListByAssessment(assessmentID)
}

// SubmissionDetail 评分界面需要的提交 + 题目定义
func (g *GradingService) SubmissionDetail(submissionID uint) (*model.Submission, []model.Question, error) {
	sub, err := g.submissions.FindSubmissionByID(submissionID)
	if err != nil {
		return nil, nil, err
	}
	a, err := g.assessments.FindWithQuestions(sub.AssessmentID)
	if err != nil {
		return nil, nil, err
	}
	return sub, a.Questions, nil
}

// SetAnswerScore 对单题打分（或改分），范围 [0, 题目分值]，同时重算总分。
// 已定稿的提交拒绝改动。
func (g *GradingService) SetAnswerScore(ctx context.Context, submissionID uint, questionIndex, score int, feedback string) (*model.Submission, error) {
	sub, err := g.submissions.FindSubmissionByID(submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubmissionGraded {
		return nil, util.ErrSubmissionFinalized
	}

	answers, err := sub.AnswerList()
	if err != nil {
		return nil, err
	}
	if questionIndex < 0 || questionIndex >= len(answers) {
		return nil, util.ErrQuestionIndexInvalid
	}

	a, err := g.assessments.FindWithQuestions(sub.AssessmentID)
	if err != nil {
		return nil, err
	}
	if questionIndex >= len(a.Questions) {
		return nil, util.ErrQuestionIndexInvalid
	}
	q := a.Questions[questionIndex]
	if score < 0 || score > q.Points {
		return nil, util.ErrScoreOutOfRange
	}

	answers[questionIndex].Score = &score
	answers[questionIndex].Feedback = feedback
	if err := sub.SetAnswers(answers); err != nil {
		return nil, err
	}
	sub.TotalScore = RecomputeTotal(answers)

	if err := g.submissions.UpdateSubmission(ctx, sub); err != nil {
		return nil, err
	}

	logger.Log.Info("answer scored",
		zap.Uint("submissionId", sub.ID),
		zap.Int("questionIndex", questionIndex),
		zap.Int("score", score))
	return sub, nil
}

// Finalize 定稿：所有答案都必须有分数，否则报出第一道未评分的题
func (g *GradingService) Finalize(ctx context.Context, submissionID uint) (*model.Submission, error) {
	sub, err := g.submissions.FindSubmissionByID(submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubmissionGraded {
		return nil, util.ErrSubmissionFinalized
	}

	answers, err := sub.AnswerList()
	if err != nil {
		return nil, err
	}
	if ok, idx := FullyGraded(answers); !ok {
		return nil, &util.GradingIncompleteError{QuestionIndex: idx, QuestionID: answers[idx].QuestionID}
	}

	sub.TotalScore = RecomputeTotal(answers)
	sub.Status = model.SubmissionGraded
	if err := g.submissions.UpdateSubmission(ctx, sub); err != nil {
		return nil, err
	}

	logger.Log.Info("submission finalized",
		zap.Uint("submissionId", sub.ID),
		zap.Int("totalScore", sub.TotalScore))
	return sub, nil
}

// ResultView 学生端成绩视图
type ResultView struct {
	SubmissionID uint                   `json:"submissionId"`
	Status       model.SubmissionStatus `json:"status"`
	TotalScore   int                    `json:"totalScore"`
	MaxScore     int                    `json:"maxScore"`
	Percentage   float64                `json:"percentage"`
	PassingScore int                    `json:"passingScore"`
	Passed       bool                   `json:"passed"`
	RetryAllowed bool                   `json:"retryAllowed"`
	Answers      []model.Answer         `json:"answers"`
}

// Result 学生查看自己的成绩；未定稿时 Passed 以当前总分计算，仅供参考
func (g *GradingService) Result(userID, assessmentID uint) (*ResultView, error) {
	sub, err := g.submissions.FindByUserAndAssessment(userID, assessmentID)
	if err != nil {
		return nil, err
	}
	a, err := g.assessments.FindWithQuestions(assessmentID)
	if err != nil {
		return nil, err
	}
	answers, err := sub.AnswerList()
	if err != nil {
		return nil, err
	}

	max := MaxPossibleScore(a.Questions)
	passed := Passed(sub.TotalScore, max, a.PassingScore)
	return &ResultView{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		TotalScore:   sub.TotalScore,
		MaxScore:     max,
		Percentage:   Percentage(sub.TotalScore, max),
		PassingScore: a.PassingScore,
		Passed:       passed,
		RetryAllowed: sub.Status == model.SubmissionGraded && !passed,
		Answers:      answers,
	}, nil
}
