package service

import (
	"context"
	"fmt"
	"net/http"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/util"
	"phrasal_tutor_backend/pkg/monitoring"
	"phrasal_tutor_backend/pkg/tracing"
	"time"

	"github.com/gorilla/websocket"
)

// WSModelBackend 上游模型通过持久 WebSocket 提供服务：每轮发送一帧文本，读取一帧回复
// 上游自行维护上下文，因此只发送本轮的用户消息；系统指令放在首轮帧的开头，与用户消息空一行
type WSModelBackend struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

func NewWSModelBackend(url string) *WSModelBackend {
	return &WSModelBackend{
		URL: url,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

func (b *WSModelBackend) Connect(ctx context.Context) (ModelConn, error) {
	conn, resp, err := b.Dialer.DialContext(ctx, b.URL, b.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial model backend (status %d): %v", util.ErrUpstream, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dial model backend: %v", util.ErrUpstream, err)
	}
	return &wsModelConn{conn: conn}, nil
}

type wsModelConn struct {
	conn   *websocket.Conn
	primed bool
}

const systemFrameSeparator = "\n\n"

// frame 首轮带上系统指令，之后只发送用户消息
func (c *wsModelConn) frame(system, text string) string {
	if c.primed || system == "" {
		return text
	}
	return system + systemFrameSeparator + text
}

func (c *wsModelConn) Reply(ctx context.Context, system string, history []model.ConversationMessage) (string, error) {
	if len(history) == 0 || history[len(history)-1].Role != model.RoleUser {
		return "", fmt.Errorf("%w: no pending user message", util.ErrUpstream)
	}

	ctx, span := tracing.Tracer.Start(ctx, "ai.ws_exchange")
	defer span.End()

	// ctx 取消时关闭连接以打断阻塞的读写，会话随即结束
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	start := time.Now()
	defer func() {
		monitoring.ModelRequestDuration.WithLabelValues("ws_exchange").Observe(time.Since(start).Seconds())
	}()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		c.conn.SetReadDeadline(deadline)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(c.frame(system, history[len(history)-1].Content))); err != nil {
		span.RecordError(err)
		return "", c.wrap(ctx, err)
	}
	c.primed = true

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			span.RecordError(err)
			return "", c.wrap(ctx, err)
		}
		if msgType == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (c *wsModelConn) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: model socket: %v", util.ErrUpstream, err)
}

func (c *wsModelConn) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
