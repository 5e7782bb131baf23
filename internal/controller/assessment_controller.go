package controller

import (
	"errors"
	"strconv"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/service"
	"exam_engine_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AssessmentController 教师侧测评编排接口 + 学生侧课程入口查询
type AssessmentController struct {
	Service *service.AssessmentService
}

func NewAssessmentController(svc *service.AssessmentService) *AssessmentController {
	return &AssessmentController{Service: svc}
}

func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// @Summary 创建测评
// @Tags 测评管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.Assessment true "测评信息"
// @Success 201 {object} util.Response
// @Router /api/teacher/assessments [post]
func (c *AssessmentController) Create(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var a model.Assessment
	if err := ctx.ShouldBindJSON(&a); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.Service.CreateAssessment(user.UserID, &a); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, a)
}

// @Summary 测评列表
// @Tags 测评管理
// @Produce json
// @Security BearerAuth
// @Param courseId query int false "课程ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	courseID := uint(0)
	if idStr := ctx.Query("courseId"); idStr != "" {
		if id, err := strconv.Atoi(idStr); err == nil {
			courseID = uint(id)
		}
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	as, total, err := c.Service.ListAssessments(courseID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{List: as, Total: total, Page: page, Limit: limit})
}

// @Summary 测评详情（含题目与答案，教师侧）
// @Tags 测评管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id} [get]
func (c *AssessmentController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	a, err := c.Service.GetAssessment(id)
	if err != nil {
		if errors.Is(err, util.ErrAssessmentNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 更新测评
// @Tags 测评管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body model.Assessment true "测评信息"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id} [put]
func (c *AssessmentController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var updates model.Assessment
	if err := ctx.ShouldBindJSON(&updates); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.UpdateAssessment(id, &updates)
	if err != nil {
		if errors.Is(err, util.ErrAssessmentNotFound) {
			util.NotFound(ctx)
			return
		}
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, a)
}

// @Summary 删除测评
// @Tags 测评管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id} [delete]
func (c *AssessmentController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	if err := c.Service.DeleteAssessment(id); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// @Summary 发布测评
// @Tags 测评管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id}/publish [post]
func (c *AssessmentController) Publish(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	a, err := c.Service.Publish(id)
	if err != nil {
		if errors.Is(err, util.ErrAssessmentNotFound) {
			util.NotFound(ctx)
			return
		}
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, a)
}

// @Summary 添加题目
// @Tags 测评管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body model.Question true "题目信息"
// @Success 201 {object} util.Response
// @Router /api/teacher/assessments/{id}/questions [post]
func (c *AssessmentController) AddQuestion(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var q model.Question
	if err := ctx.ShouldBindJSON(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.Service.AddQuestion(id, &q); err != nil {
		if errors.Is(err, util.ErrAssessmentNotFound) {
			util.NotFound(ctx)
			return
		}
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, q)
}

// @Summary 更新题目
// @Tags 测评管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param questionId path int true "题目ID"
// @Param body body model.Question true "题目信息"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id}/questions/{questionId} [put]
func (c *AssessmentController) UpdateQuestion(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	qid, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}

	var q model.Question
	if err := ctx.ShouldBindJSON(&q); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	updated, err := c.Service.UpdateQuestion(id, qid, &q)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, updated)
}

// @Summary 删除题目
// @Tags 测评管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param questionId path int true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/assessments/{id}/questions/{questionId} [delete]
func (c *AssessmentController) DeleteQuestion(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	qid, ok := pathID(ctx, "questionId")
	if !ok {
		return
	}
	if err := c.Service.DeleteQuestion(id, qid); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Success(ctx, nil)
}

// @Summary 学生端：查询课程的测评入口
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param courseId path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{courseId}/assessment [get]
func (c *AssessmentController) ForCourse(ctx *gin.Context) {
	courseID, ok := pathID(ctx, "courseId")
	if !ok {
		return
	}

	a, err := c.Service.AssessmentForCourse(courseID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if a == nil {
		// 课程没配测评是正常状态，前端据此隐藏入口
		util.Success(ctx, nil)
		return
	}
	util.Success(ctx, gin.H{
		"id":              a.ID,
		"title":           a.Title,
		"description":     a.Description,
		"passingScore":    a.PassingScore,
		"durationMinutes": a.DurationMinutes,
	})
}
