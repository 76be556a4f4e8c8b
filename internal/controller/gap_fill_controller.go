package controller

import (
	"net/http"
	"phrasal_tutor_backend/internal/service"
	"phrasal_tutor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GapFillController struct {
	GapFillService *service.GapFillService
}

func NewGapFillController(gapFillService *service.GapFillService) *GapFillController {
	return &GapFillController{GapFillService: gapFillService}
}

// Generate godoc
// @Summary 生成填空练习
// @Description 根据会话记录生成 3-5 道短语动词填空题并保存
// @Tags 练习
// @Produce json
// @Security ApiKeyAuth
// @Param conversation_id path string true "会话ID"
// @Success 200 {object} service.GapFillResult
// @Failure 400 {object} util.Response
// @Failure 401 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 502 {object} util.Response
// @Router /api/gap-fill/{conversation_id} [post]
func (ctrl *GapFillController) Generate(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	result, err := ctrl.GapFillService.Generate(c.Request.Context(), c.Param("conversation_id"), claims.UserID())
	if err != nil {
		util.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
