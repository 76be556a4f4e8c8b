package service

import (
	"context"
	"errors"
	"fmt"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/util"
	"phrasal_tutor_backend/pkg/monitoring"
	"phrasal_tutor_backend/pkg/tracing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer 一次请求/应答的模型调用
type Completer interface {
	Complete(ctx context.Context, messages []AIChatMessage) (string, error)
}

// ModelConn 归属于单个会话的模型连接，会话结束时关闭
type ModelConn interface {
	Reply(ctx context.Context, system string, history []model.ConversationMessage) (string, error)
	Close() error
}

// ModelBackend 为每个会话建立模型连接
type ModelBackend interface {
	Connect(ctx context.Context) (ModelConn, error)
}

type AIService struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewAIService(cfg config.AIConfig) *AIService {
	s := &AIService{model: cfg.Model, timeout: cfg.RequestTimeout}
	if cfg.APIKey == "" {
		return s
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return s
}

func (s *AIService) Complete(ctx context.Context, messages []AIChatMessage) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("%w: completion api is not configured", util.ErrUpstream)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := tracing.Tracer.Start(ctx, "ai.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", s.model),
		attribute.Int("ai.messages", len(messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	monitoring.ModelRequestDuration.WithLabelValues("completion").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("%w: AI returned no choices", util.ErrUpstream)
	}
	return resp.Choices[0].Message.Content, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: AI API error (status %d): %s", util.ErrUpstream, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", util.ErrUpstream, err)
}

// Connect 请求/应答模式没有持久连接，每轮携带完整历史
func (s *AIService) Connect(ctx context.Context) (ModelConn, error) {
	return &completionConn{completer: s}, nil
}

type completionConn struct {
	completer Completer
}

func (c *completionConn) Reply(ctx context.Context, system string, history []model.ConversationMessage) (string, error) {
	return c.completer.Complete(ctx, BuildChatMessages(system, history))
}

func (c *completionConn) Close() error {
	return nil
}

// BuildChatMessages 可选系统提示 + 按追加顺序的完整历史
func BuildChatMessages(system string, history []model.ConversationMessage) []AIChatMessage {
	messages := make([]AIChatMessage, 0, len(history)+1)
	if system != "" {
		messages = append(messages, AIChatMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range history {
		messages = append(messages, AIChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return messages
}
