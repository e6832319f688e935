package controller

import (
	"encoding/json"
	"fmt"
	"net/http"

	"quiz_engine/internal/service"
	"quiz_engine/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService       *service.QuizService
	SubmissionService *service.SubmissionService
	ResultService     *service.ResultService
}

func NewQuizController(quizSvc *service.QuizService, submissionSvc *service.SubmissionService, resultSvc *service.ResultService) *QuizController {
	return &QuizController{
		QuizService:       quizSvc,
		SubmissionService: submissionSvc,
		ResultService:     resultSvc,
	}
}

// SubmitQuizReq answers 保留原始 JSON，非数组时返回校验错误而不是绑定失败
type SubmitQuizReq struct {
	Answers json.RawMessage `json:"answers" swaggertype:"array,integer"`
}

// @Summary 创建测验
// @Description 课程教师或管理员为课程创建并发布测验
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param body body service.CreateQuizReq true "测验信息"
// @Success 201 {object} util.Response{data=service.QuizView}
// @Failure 400 {object} util.ErrorResponse
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id} [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	courseID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	var req service.CreateQuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	quiz, err := c.QuizService.CreateQuiz(ctx.Request.Context(), caller, courseID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}

// @Summary 获取课程测验列表
// @Description 学生看不到已截止的测验，答案不返回
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=[]service.QuizView}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id} [get]
func (c *QuizController) ListQuizzes(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	courseID, ok := util.ParseID(ctx.Param("id"))
	if !ok {
		util.BadRequest(ctx, "invalid course id")
		return
	}

	quizzes, err := c.QuizService.ListQuizzes(ctx.Request.Context(), caller, courseID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, quizzes)
}

// @Summary 获取测验详情
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=service.QuizView}
// @Failure 400 {object} util.ErrorResponse
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/quiz/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	quiz, err := c.QuizService.GetQuiz(ctx.Request.Context(), caller, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, quiz)
}

// @Summary 提交测验
// @Description 自动评分并记录一次作答
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param body body SubmitQuizReq true "答案"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.ErrorResponse
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/submit [post]
func (c *QuizController) SubmitQuiz(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitQuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "invalid request body")
		return
	}

	result, err := c.SubmissionService.Submit(ctx.Request.Context(), caller, ctx.Param("id"), req.Answers)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 获取我的最新成绩
// @Description 尚未作答时 data 为 null
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=model.QuizSubmission}
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/my-result [get]
func (c *QuizController) MyResult(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	sub, err := c.ResultService.MyLatestResult(ctx.Request.Context(), caller, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if sub == nil {
		util.SuccessNullable(ctx, "no attempt yet", nil)
		return
	}
	util.SuccessNullable(ctx, "success", sub)
}

// @Summary 获取测验提交列表
// @Description 每个学生只返回最新一次作答，按提交时间倒序
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=[]service.StudentResult}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/submissions [get]
func (c *QuizController) ListSubmissions(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	rows, err := c.ResultService.LatestPerStudent(ctx.Request.Context(), caller, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, rows)
}

// @Summary 获取剩余作答次数
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=service.AttemptsStatus}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/attempts-remaining [get]
func (c *QuizController) AttemptsRemaining(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	status, err := c.ResultService.AttemptsRemaining(ctx.Request.Context(), caller, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary 获取学生的全部作答记录
// @Description 按作答顺序返回
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param studentId path int true "学生ID"
// @Success 200 {object} util.Response{data=[]model.QuizSubmission}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/student/{studentId}/attempts [get]
func (c *QuizController) StudentAttempts(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}
	studentID, ok := util.ParseID(ctx.Param("studentId"))
	if !ok {
		util.BadRequest(ctx, "invalid student id")
		return
	}

	attempts, err := c.ResultService.StudentAttempts(ctx.Request.Context(), caller, ctx.Param("id"), studentID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// @Summary 导出测验成绩
// @Tags 测验
// @Produce text/csv
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {file} file
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/export [get]
func (c *QuizController) ExportResults(ctx *gin.Context) {
	caller, ok := util.GetCallerFromContext(ctx)
	if !ok {
		util.Unauthorized(ctx)
		return
	}

	body, filename, err := c.ResultService.ExportCSV(ctx.Request.Context(), caller, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Data(http.StatusOK, util.MimeCSV, body)
}
