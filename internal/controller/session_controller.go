package controller

import (
	"errors"

	"exam_engine_backend/internal/service"
	"exam_engine_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// SessionController 学生作答会话接口。会话本体在服务端内存中，
// 前端只拿到视图快照，所有状态变更都经由这里。
type SessionController struct {
	Sessions *service.SessionService
	Grading  *service.GradingService
}

func NewSessionController(sessions *service.SessionService, grading *service.GradingService) *SessionController {
	return &SessionController{Sessions: sessions, Grading: grading}
}

func (c *SessionController) session(ctx *gin.Context) (*service.TestSession, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return nil, false
	}
	session, err := c.Sessions.GetSession(user.UserID, id)
	if err != nil {
		util.NotFound(ctx)
		return nil, false
	}
	return session, true
}

func sessionError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSessionExists),
		errors.Is(err, util.ErrAlreadySubmitted),
		errors.Is(err, util.ErrSessionFinished):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrAssessmentNotFound),
		errors.Is(err, util.ErrAssessmentNotOpen),
		errors.Is(err, util.ErrSessionNotFound):
		util.Error(ctx, 404, err.Error())
	case errors.Is(err, util.ErrSessionNotActive),
		errors.Is(err, util.ErrConfirmRequired),
		errors.Is(err, util.ErrQuestionIndexInvalid):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 开始作答
// @Tags 考试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 201 {object} util.Response
// @Router /api/assessments/{id}/session [post]
func (c *SessionController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	session, err := c.Sessions.StartSession(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Created(ctx, session.View())
}

// @Summary 会话当前状态
// @Tags 考试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session [get]
func (c *SessionController) View(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	util.Success(ctx, session.View())
}

type gotoRequest struct {
	Index int `json:"index"`
}

// @Summary 跳转到指定题目
// @Tags 考试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body gotoRequest true "题目下标"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session/goto [post]
func (c *SessionController) GoToQuestion(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	var req gotoRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if _, err := session.GoToQuestion(req.Index); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, session.View())
}

// @Summary 下一题；已在末题时返回 submitRequested=true
// @Tags 考试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session/next [post]
func (c *SessionController) Next(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	submitRequested, err := session.Next()
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"submitRequested": submitRequested,
		"session":         session.View(),
	})
}

// @Summary 上一题
// @Tags 考试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session/previous [post]
func (c *SessionController) Previous(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	if err := session.Previous(); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, session.View())
}

type answerRequest struct {
	Index int `json:"index"`
	service.AnswerValue
}

// @Summary 保存作答
// @Tags 考试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body answerRequest true "作答内容"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session/answer [put]
func (c *SessionController) SetAnswer(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	var req answerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := session.SetAnswer(req.Index, req.AnswerValue); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

type runCodeRequest struct {
	Index int    `json:"index"`
	Code  string `json:"code" binding:"required"`
}

// @Summary 运行编程题代码
// @Tags 考试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body runCodeRequest true "代码"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session/run [post]
func (c *SessionController) RunCode(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	var req runCodeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := session.RunCode(ctx.Request.Context(), req.Index, req.Code)
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

type submitRequest struct {
	Confirm bool `json:"confirm"`
}

// @Summary 提交测评（需 confirm=true）
// @Tags 考试会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body submitRequest true "确认标记"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session/submit [post]
func (c *SessionController) Submit(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	var req submitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := session.Submit(ctx.Request.Context(), req.Confirm)
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 重试持久化（强制提交落库失败后）
// @Tags 考试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/session/retry [post]
func (c *SessionController) RetrySubmit(ctx *gin.Context) {
	session, ok := c.session(ctx)
	if !ok {
		return
	}
	res, err := session.RetrySubmit(ctx.Request.Context())
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 学生查询自己的成绩
// @Tags 考试会话
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{id}/result [get]
func (c *SessionController) Result(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	res, err := c.Grading.Result(user.UserID, id)
	if err != nil {
		if errors.Is(err, util.ErrSubmissionNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
