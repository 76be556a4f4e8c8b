package controller

import (
	"net/http"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/service"
	"phrasal_tutor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

type AdvanceResponse struct {
	NextPhrasalVerb string          `json:"next_phrasal_verb"`
	Level           model.CEFRLevel `json:"level"`
	Completed       bool            `json:"completed"`
}

type ProgressResponse struct {
	CurrentIndex       int             `json:"current_index"`
	CurrentPhrasalVerb string          `json:"current_phrasal_verb"`
	Level              model.CEFRLevel `json:"level"`
	Total              int             `json:"total"`
}

// Advance godoc
// @Summary 进入下一个短语动词
// @Description 课程下标加一，到达最后一个后保持不变；已在末尾再次调用时 completed 为 true
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} AdvanceResponse
// @Failure 401 {object} util.Response
// @Router /api/progress/advance [post]
func (ctrl *ProgressController) Advance(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	res, err := ctrl.ProgressService.Advance(c.Request.Context(), claims.UserID())
	if err != nil {
		util.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, AdvanceResponse{
		NextPhrasalVerb: res.Entry.Verb,
		Level:           res.Entry.Level,
		Completed:       res.Completed,
	})
}

// GetProgress godoc
// @Summary 获取当前学习进度
// @Tags 学习进度
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} ProgressResponse
// @Failure 401 {object} util.Response
// @Router /api/progress [get]
func (ctrl *ProgressController) GetProgress(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	snap, err := ctrl.ProgressService.GetOrCreate(c.Request.Context(), claims.UserID())
	if err != nil {
		util.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProgressResponse{
		CurrentIndex:       snap.Index,
		CurrentPhrasalVerb: snap.Entry.Verb,
		Level:              snap.Entry.Level,
		Total:              ctrl.ProgressService.Curriculum.Len(),
	})
}

// GetCurriculum godoc
// @Summary 课程表
// @Description 按顺序返回全部短语动词及其 CEFR 等级
// @Tags 学习进度
// @Produce json
// @Success 200 {array} model.CurriculumEntry
// @Router /api/curriculum [get]
func (ctrl *ProgressController) GetCurriculum(c *gin.Context) {
	c.JSON(http.StatusOK, ctrl.ProgressService.Curriculum.Entries())
}
