package controller

import (
	"errors"

	"exam_engine_backend/internal/service"
	"exam_engine_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// GradingController 教师人工评分接口
type GradingController struct {
	Service *service.GradingService
}

func NewGradingController(svc *service.GradingService) *GradingController {
	return &GradingController{Service: svc}
}

func gradingError(ctx *gin.Context, err error) {
	var incomplete *util.GradingIncompleteError
	switch {
	case errors.Is(err, util.ErrSubmissionNotFound),
		errors.Is(err, util.ErrAssessmentNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrSubmissionFinalized):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrScoreOutOfRange),
		errors.Is(err, util.ErrQuestionIndexInvalid):
		util.BadRequest(ctx, err.Error())
	case errors.As(err, &incomplete):
		util.Error(ctx, 422, incomplete.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 某测评的全部提交
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id}/submissions [get]
func (c *GradingController) ListSubmissions(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	subs, err := c.Service.PendingSubmissions(id)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, subs)
}

// @Summary 提交详情（含题目定义，评分界面用）
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/submissions/{id} [get]
func (c *GradingController) SubmissionDetail(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	sub, questions, err := c.Service.SubmissionDetail(id)
	if err != nil {
		gradingError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"submission": sub, "questions": questions})
}

type scoreRequest struct {
	QuestionIndex int    `json:"questionIndex"`
	Score         int    `json:"score"`
	Feedback      string `json:"feedback"`
}

// @Summary 给单题打分
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Param body body scoreRequest true "评分"
// @Success 200 {object} util.Response
// @Router /api/teacher/submissions/{id}/score [put]
func (c *GradingController) SetScore(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var req scoreRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.Service.SetAnswerScore(ctx.Request.Context(), id, req.QuestionIndex, req.Score, req.Feedback)
	if err != nil {
		gradingError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// @Summary 定稿：全部评分完成后冻结分数
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path int true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/submissions/{id}/finalize [post]
func (c *GradingController) Finalize(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	sub, err := c.Service.Finalize(ctx.Request.Context(), id)
	if err != nil {
		gradingError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}
