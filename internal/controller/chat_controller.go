package controller

import (
	"errors"
	"net/http"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/internal/service"
	"phrasal_tutor_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const timeLayout = time.RFC3339Nano

// ChatController 会话 WebSocket 与会话记录查询
type ChatController struct {
	Proxy    *service.ChatProxy
	ConvRepo *repository.ConversationRepository
}

func NewChatController(proxy *service.ChatProxy, convRepo *repository.ConversationRepository) *ChatController {
	return &ChatController{Proxy: proxy, ConvRepo: convRepo}
}

// HandleWS godoc
// @Summary 练习会话 WebSocket
// @Description 建立会话连接。连接后服务端先发送 session_start，之后每条文本消息对应一条模型回复；令牌无效时以 4001 关闭
// @Tags 会话
// @Param   token query string true "JWT Token"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws/chat [get]
func (ctrl *ChatController) HandleWS(c *gin.Context) {
	// 鉴权在 ChatProxy 内部完成，失败时需要通过关闭帧通知客户端
	ctrl.Proxy.ServeWs(c.Writer, c.Request)
}

type TranscriptResponse struct {
	ConversationID    string                      `json:"conversation_id"`
	TargetPhrasalVerb *string                     `json:"target_phrasal_verb"`
	StartedAt         string                      `json:"started_at"`
	EndedAt           *string                     `json:"ended_at"`
	Messages          []model.ConversationMessage `json:"messages"`
}

// GetMessages godoc
// @Summary 获取会话记录
// @Description 按追加顺序返回会话中的全部消息，仅会话所有者可见
// @Tags 会话
// @Produce json
// @Security ApiKeyAuth
// @Param conversation_id path string true "会话ID"
// @Success 200 {object} TranscriptResponse
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/conversations/{conversation_id}/messages [get]
func (ctrl *ChatController) GetMessages(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		util.Unauthorized(c)
		return
	}

	id := c.Param("conversation_id")
	if !model.IsValidUUID(id) {
		util.HandleServiceError(c, util.ErrInvalidConversationID)
		return
	}

	conv, err := ctrl.ConvRepo.GetConversation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = util.ErrConversationNotFound
		}
		util.HandleServiceError(c, err)
		return
	}
	if conv.UserID != claims.UserID() {
		util.HandleServiceError(c, util.ErrNotConversationOwner)
		return
	}

	resp := TranscriptResponse{
		ConversationID:    conv.ID,
		TargetPhrasalVerb: conv.TargetPhrasalVerb,
		StartedAt:         conv.StartedAt.UTC().Format(timeLayout),
		Messages:          conv.Messages,
	}
	if resp.Messages == nil {
		resp.Messages = []model.ConversationMessage{}
	}
	if conv.EndedAt != nil {
		ended := conv.EndedAt.UTC().Format(timeLayout)
		resp.EndedAt = &ended
	}
	c.JSON(http.StatusOK, resp)
}
