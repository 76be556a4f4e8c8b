package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/util"
	"phrasal_tutor_backend/pkg/logger"
	"phrasal_tutor_backend/pkg/monitoring"
	"phrasal_tutor_backend/pkg/security"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	finalizeTimeout = 10 * time.Second

	// CloseInvalidToken 身份校验失败时的关闭码
	CloseInvalidToken = 4001
)

const systemPromptTemplate = "You are an English language tutor specializing in phrasal verbs. " +
	"Focus this conversation entirely on the phrasal verb '%s' (CEFR %s). " +
	"Introduce it naturally, use it in context, explain its meaning and usage, " +
	"and encourage the student to use it themselves."

func BuildSystemPrompt(entry model.CurriculumEntry) string {
	return fmt.Sprintf(systemPromptTemplate, entry.Verb, entry.Level)
}

// TranscriptLedger 会话记录的追加写入接口，由 ConversationRepository 实现
type TranscriptLedger interface {
	CreateConversation(ctx context.Context, userID string, targetVerb *string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, role model.MessageRole, content string) error
	GetMessages(ctx context.Context, conversationID string) ([]model.ConversationMessage, error)
	Finalize(ctx context.Context, conversationID string) (bool, error)
}

type SessionStart struct {
	Type               string `json:"type"`
	ConversationID     string `json:"conversation_id"`
	CurrentPhrasalVerb string `json:"current_phrasal_verb"`
	Level              string `json:"level"`
}

var errClientGone = errors.New("client disconnected")

// ChatProxy 每个客户端连接一个会话：鉴权、建档、转发、结束时补写 ended_at
type ChatProxy struct {
	Auth     TokenVerifier
	Progress *ProgressService
	Ledger   TranscriptLedger
	Backend  ModelBackend
	Presence *SessionPresence
	Archiver *TranscriptArchiver

	TurnsPerMinute  int
	MaxMessageBytes int64

	upgrader websocket.Upgrader

	// 停机时取消所有会话并等待其结束
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu 保护 closing 与 live；closing 置位后不再 wg.Add
	mu      sync.Mutex
	closing bool
	live    map[string]struct{}
}

func NewChatProxy(
	auth TokenVerifier,
	progress *ProgressService,
	ledger TranscriptLedger,
	backend ModelBackend,
	presence *SessionPresence,
	archiver *TranscriptArchiver,
	chatCfg config.ChatConfig,
	allowedOrigins []string,
) *ChatProxy {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatProxy{
		Auth:            auth,
		Progress:        progress,
		Ledger:          ledger,
		Backend:         backend,
		Presence:        presence,
		Archiver:        archiver,
		TurnsPerMinute:  chatCfg.TurnsPerMinute,
		MaxMessageBytes: chatCfg.MaxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     security.OriginAllowed(allowedOrigins),
		},
		ctx:    ctx,
		cancel: cancel,
		live:   make(map[string]struct{}),
	}
}

// acquire 停机开始后拒绝新连接
func (p *ChatProxy) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return false
	}
	p.wg.Add(1)
	return true
}

// IsLive 会话是否仍由本实例持有连接
func (p *ChatProxy) IsLive(conversationID string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[conversationID]
	return ok
}

func (p *ChatProxy) setLive(conversationID string, live bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if live {
		p.live[conversationID] = struct{}{}
	} else {
		delete(p.live, conversationID)
	}
}

// TokenFromRequest 优先 ?token=，其次 Authorization: Bearer
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// ServeWs 阻塞到会话结束
func (p *ChatProxy) ServeWs(w http.ResponseWriter, r *http.Request) {
	if !p.acquire() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer p.wg.Done()

	claims, err := p.Auth.Verify(TokenFromRequest(r))
	if err != nil {
		p.reject(w, r, err)
		return
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	p.Serve(ctx, conn, claims.UserID())
}

// reject 先升级再发送 4001 关闭帧，客户端才能拿到关闭原因
func (p *ChatProxy) reject(w http.ResponseWriter, r *http.Request, cause error) {
	logger.Log.Info("WebSocket auth rejected", zap.String("remote", r.RemoteAddr), zap.Error(cause))
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	closeWith(conn, CloseInvalidToken, "Invalid token")
	monitoring.ChatSessionsTotal.WithLabelValues("rejected").Inc()
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}

// Serve 在已鉴权的连接上运行一个完整会话，返回前连接已关闭
func (p *ChatProxy) Serve(ctx context.Context, conn *websocket.Conn, userID string) {
	defer conn.Close()
	log := logger.Log.With(zap.String("userId", userID))

	progress, err := p.Progress.GetOrCreate(ctx, userID)
	if err != nil {
		log.Error("Failed to resolve lesson target", zap.Error(err))
		closeWith(conn, websocket.CloseInternalServerErr, "progress unavailable")
		monitoring.ChatSessionsTotal.WithLabelValues("setup_error").Inc()
		return
	}

	modelConn, err := p.Backend.Connect(ctx)
	if err != nil {
		log.Error("Failed to connect model backend", zap.Error(err))
		closeWith(conn, websocket.CloseInternalServerErr, "model backend unavailable")
		monitoring.ChatSessionsTotal.WithLabelValues("setup_error").Inc()
		return
	}

	verb := progress.Entry.Verb
	conv, err := p.Ledger.CreateConversation(ctx, userID, &verb)
	if err != nil {
		modelConn.Close()
		log.Error("Failed to open session", zap.Error(err))
		closeWith(conn, websocket.CloseInternalServerErr, "session unavailable")
		monitoring.ChatSessionsTotal.WithLabelValues("setup_error").Inc()
		return
	}

	p.setLive(conv.ID, true)
	s := &chatSession{
		proxy:  p,
		conn:   conn,
		model:  modelConn,
		id:     conv.ID,
		userID: userID,
		entry:  progress.Entry,
		system: BuildSystemPrompt(progress.Entry),
		log:    log.With(zap.String("conversationId", conv.ID)),
	}
	if p.TurnsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(p.TurnsPerMinute)), p.TurnsPerMinute)
	}

	monitoring.ChatSessionsActive.Inc()
	s.log.Info("Chat session started",
		zap.String("phrasalVerb", progress.Entry.Verb),
		zap.String("level", string(progress.Entry.Level)))

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic in relay loop: %v", r)
			s.log.Error("Relay loop panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		s.finalize(ctx, runErr)
	}()

	runErr = s.run(ctx)
}

// Shutdown 取消所有会话，等待它们完成 finalize
func (p *ChatProxy) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type chatSession struct {
	proxy   *ChatProxy
	conn    *websocket.Conn
	model   ModelConn
	limiter *rate.Limiter
	id      string
	userID  string
	entry   model.CurriculumEntry
	system  string
	log     *zap.Logger
}

func (s *chatSession) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := s.proxy.Presence.MarkOpen(ctx, s.id, s.userID); err != nil {
		s.log.Warn("Failed to mark session open", zap.Error(err))
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(SessionStart{
		Type:               "session_start",
		ConversationID:     s.id,
		CurrentPhrasalVerb: s.entry.Verb,
		Level:              string(s.entry.Level),
	}); err != nil {
		return fmt.Errorf("send session_start: %w", err)
	}

	inbound := make(chan string)
	readErr := make(chan error, 1)
	go s.readPump(ctx, cancel, inbound, readErr)
	go s.keepAlive(ctx)

	for {
		select {
		case <-ctx.Done():
			// 读端先结束时优先报告读错误
			select {
			case err := <-readErr:
				return err
			default:
				return ctx.Err()
			}
		case text := <-inbound:
			if err := s.turn(ctx, text); err != nil {
				// 会话已取消时，模型或存储的报错只是取消的结果
				if ctx.Err() != nil {
					select {
					case rerr := <-readErr:
						return rerr
					default:
						return ctx.Err()
					}
				}
				return err
			}
		}
	}
}

// readPump 按到达顺序投递入站帧；读失败即取消会话
func (s *chatSession) readPump(ctx context.Context, cancel context.CancelFunc, inbound chan<- string, readErr chan<- error) {
	defer cancel()
	if s.proxy.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.proxy.MaxMessageBytes)
	}
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				readErr <- errClientGone
			} else {
				readErr <- fmt.Errorf("%w: %v", errClientGone, err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		select {
		case inbound <- string(data):
		case <-ctx.Done():
			return
		}
	}
}

// keepAlive 定时 ping 客户端并续期在线标记
func (s *chatSession) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.proxy.Presence.Refresh(ctx, s.id); err != nil {
				s.log.Warn("Failed to refresh session presence", zap.Error(err))
			}
		}
	}
}

// turn 一轮：记录用户消息、读取完整历史、请求模型、记录并转发回复
func (s *chatSession) turn(ctx context.Context, text string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := s.proxy.Ledger.AppendMessage(ctx, s.id, model.RoleUser, text); err != nil {
		monitoring.ChatTurnsTotal.WithLabelValues("store_error").Inc()
		return fmt.Errorf("append user message: %w", err)
	}

	history, err := s.proxy.Ledger.GetMessages(ctx, s.id)
	if err != nil {
		monitoring.ChatTurnsTotal.WithLabelValues("store_error").Inc()
		return fmt.Errorf("read history: %w", err)
	}

	reply, err := s.model.Reply(ctx, s.system, history)
	if err != nil {
		monitoring.ChatTurnsTotal.WithLabelValues("model_error").Inc()
		return err
	}

	if err := s.proxy.Ledger.AppendMessage(ctx, s.id, model.RoleAssistant, reply); err != nil {
		monitoring.ChatTurnsTotal.WithLabelValues("store_error").Inc()
		return fmt.Errorf("append assistant message: %w", err)
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
		monitoring.ChatTurnsTotal.WithLabelValues("relay_error").Inc()
		return fmt.Errorf("relay reply: %w", err)
	}
	monitoring.ChatTurnsTotal.WithLabelValues("ok").Inc()
	return nil
}

// finalize 所有退出路径都会执行；会话 ctx 可能已取消，改用脱离取消的 ctx
func (s *chatSession) finalize(ctx context.Context, runErr error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	outcome := sessionOutcome(runErr)
	switch outcome {
	case "model_error":
		closeWith(s.conn, websocket.CloseInternalServerErr, "model backend error")
	case "error":
		closeWith(s.conn, websocket.CloseInternalServerErr, "internal error")
	case "shutdown":
		closeWith(s.conn, websocket.CloseGoingAway, "server shutting down")
	case "ended":
		closeWith(s.conn, websocket.CloseNormalClosure, "session ended")
	}

	if _, err := s.proxy.Ledger.Finalize(fctx, s.id); err != nil {
		s.log.Error("Failed to finalize session", zap.Error(err))
	}
	s.proxy.setLive(s.id, false)
	if err := s.model.Close(); err != nil {
		s.log.Debug("Model connection close failed", zap.Error(err))
	}
	if err := s.proxy.Presence.MarkClosed(fctx, s.id); err != nil {
		s.log.Warn("Failed to clear session presence", zap.Error(err))
	}
	if _, err := s.proxy.Archiver.Archive(fctx, s.id); err != nil {
		s.log.Warn("Failed to archive transcript", zap.Error(err))
	}

	monitoring.ChatSessionsActive.Dec()
	monitoring.ChatSessionsTotal.WithLabelValues(outcome).Inc()

	if outcome == "closed" || outcome == "shutdown" || outcome == "ended" {
		s.log.Info("Chat session ended", zap.String("outcome", outcome), zap.NamedError("cause", runErr))
	} else {
		s.log.Error("Chat session ended with error", zap.String("outcome", outcome), zap.Error(runErr))
	}
}

func sessionOutcome(err error) string {
	switch {
	case err == nil, errors.Is(err, errClientGone):
		return "closed"
	case errors.Is(err, model.ErrConversationEnded):
		return "ended"
	case errors.Is(err, context.Canceled):
		return "shutdown"
	case errors.Is(err, util.ErrUpstream):
		return "model_error"
	default:
		return "error"
	}
}
