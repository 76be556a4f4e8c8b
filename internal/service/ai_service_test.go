package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/util"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAIService(t *testing.T, handler http.HandlerFunc) *AIService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAIService(config.AIConfig{
		Transport: "openai",
		APIKey:    "test-key",
		BaseURL:   server.URL + "/v1",
		Model:     "gpt-4o-mini",
	})
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
}

func TestAIService_ReplySendsSystemAndHistory(t *testing.T) {
	var got struct {
		Model    string          `json:"model"`
		Messages []AIChatMessage `json:"messages"`
	}
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody("Great use of 'look up'!"))
	})

	conn, err := svc.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	reply, err := conn.Reply(context.Background(), "be a tutor", []model.ConversationMessage{
		{Role: model.RoleUser, Content: "I looked it up."},
	})
	require.NoError(t, err)
	assert.Equal(t, "Great use of 'look up'!", reply)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, []AIChatMessage{
		{Role: "system", Content: "be a tutor"},
		{Role: "user", Content: "I looked it up."},
	}, got.Messages)
}

func TestAIService_ServerError(t *testing.T) {
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "boom", "type": "server_error"},
		})
	})

	_, err := svc.Complete(context.Background(), []AIChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, util.ErrUpstream)
}

func TestAIService_NoChoices(t *testing.T) {
	svc := newTestAIService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := completionBody("")
		body["choices"] = []map[string]any{}
		json.NewEncoder(w).Encode(body)
	})

	_, err := svc.Complete(context.Background(), []AIChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, util.ErrUpstream)
}

func TestAIService_NotConfigured(t *testing.T) {
	svc := NewAIService(config.AIConfig{Transport: "websocket"})

	_, err := svc.Complete(context.Background(), []AIChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, util.ErrUpstream)
}

func TestBuildChatMessages_NoSystem(t *testing.T) {
	msgs := BuildChatMessages("", []model.ConversationMessage{
		{Role: model.RoleUser, Content: "a"},
		{Role: model.RoleAssistant, Content: "b"},
	})
	assert.Equal(t, []AIChatMessage{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}, msgs)
}

type echoModelServer struct {
	url    string
	mu     sync.Mutex
	frames []string
}

func (e *echoModelServer) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.frames...)
}

func newEchoModelServer(t *testing.T) *echoModelServer {
	t.Helper()
	e := &echoModelServer{}
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			e.mu.Lock()
			e.frames = append(e.frames, string(data))
			e.mu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, []byte("echo: "+string(data))); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	e.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return e
}

func TestWSModelBackend_SendsInstructionThenLatestUserMessage(t *testing.T) {
	upstream := newEchoModelServer(t)
	backend := NewWSModelBackend(upstream.url)

	conn, err := backend.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	system := BuildSystemPrompt(model.CurriculumEntry{Verb: "give in", Level: model.LevelB1})
	history := []model.ConversationMessage{{Role: model.RoleUser, Content: "hi"}}
	_, err = conn.Reply(context.Background(), system, history)
	require.NoError(t, err)

	history = append(history,
		model.ConversationMessage{Role: model.RoleAssistant, Content: "hello"},
		model.ConversationMessage{Role: model.RoleUser, Content: "second"},
	)
	reply, err := conn.Reply(context.Background(), system, history)
	require.NoError(t, err)
	assert.Equal(t, "echo: second", reply)

	frames := upstream.seen()
	require.Len(t, frames, 2)
	assert.Equal(t, system+"\n\nhi", frames[0])
	assert.Contains(t, frames[0], "'give in' (CEFR B1)")
	assert.Equal(t, "second", frames[1])

	_, err = conn.Reply(context.Background(), system, []model.ConversationMessage{
		{Role: model.RoleAssistant, Content: "dangling"},
	})
	assert.ErrorIs(t, err, util.ErrUpstream)
}

func TestWSModelBackend_NoInstruction(t *testing.T) {
	upstream := newEchoModelServer(t)
	conn, err := NewWSModelBackend(upstream.url).Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	reply, err := conn.Reply(context.Background(), "", []model.ConversationMessage{{Role: model.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", reply)
	assert.Equal(t, []string{"hi"}, upstream.seen())
}

func TestWSModelBackend_DialFailure(t *testing.T) {
	backend := NewWSModelBackend("ws://127.0.0.1:1/unreachable")

	_, err := backend.Connect(context.Background())
	assert.ErrorIs(t, err, util.ErrUpstream)
}
