package service

import (
	"context"
	"testing"
	"time"

	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/internal/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSweeper_FinalizesStaleSessions(t *testing.T) {
	db := testutil.DB(t)
	convs := repository.NewConversationRepository(db)
	ctx := context.Background()

	stale, err := convs.CreateConversation(ctx, "user-1", nil)
	require.NoError(t, err)
	fresh, err := convs.CreateConversation(ctx, "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.Conversation{}).Where("id = ?", stale.ID).
		Update("started_at", time.Now().UTC().Add(-13*time.Hour)).Error)

	sweeper := NewSessionSweeper(convs, NewSessionPresence(nil), nil, config.SweeperConfig{
		Enabled:    true,
		StaleAfter: 12 * time.Hour,
	})
	assert.Equal(t, 10*time.Minute, sweeper.Interval)

	swept, err := sweeper.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := convs.GetConversation(ctx, stale.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.EndedAt)

	got, err = convs.GetConversation(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Nil(t, got.EndedAt)

	swept, err = sweeper.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestSessionPresence_DisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	for _, p := range []*SessionPresence{nil, NewSessionPresence(nil)} {
		assert.False(t, p.Enabled())
		assert.NoError(t, p.MarkOpen(ctx, "id", "user"))
		assert.NoError(t, p.Refresh(ctx, "id"))
		assert.NoError(t, p.MarkClosed(ctx, "id"))
		open, err := p.IsOpen(ctx, "id")
		assert.NoError(t, err)
		assert.False(t, open)
	}
}

func TestSessionSweeper_SkipsSessionsWithLiveConnection(t *testing.T) {
	f := newProxyFixture(t, echoReply)
	conn, start := f.start(t, "user-1")
	assert.Equal(t, "re: hi", exchange(t, conn, "hi"))
	assert.True(t, f.proxy.IsLive(start.ConversationID))

	sweeper := NewSessionSweeper(f.convs, NewSessionPresence(nil), f.proxy, config.SweeperConfig{StaleAfter: 12 * time.Hour})
	swept, err := sweeper.Sweep(context.Background(), time.Now().UTC().Add(13*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, swept)

	assert.Equal(t, "re: again", exchange(t, conn, "again"))
	conv, err := f.convs.GetConversation(context.Background(), start.ConversationID)
	require.NoError(t, err)
	assert.Nil(t, conv.EndedAt)
	assert.Len(t, conv.Messages, 4)

	closeGracefully(t, conn)
	f.requireEnded(t, start.ConversationID)
	require.Eventually(t, func() bool { return !f.proxy.IsLive(start.ConversationID) }, 5*time.Second, 20*time.Millisecond)
}

func TestChatProxy_EndsSessionFinalizedElsewhere(t *testing.T) {
	f := newProxyFixture(t, echoReply)
	conn, start := f.start(t, "user-1")
	assert.Equal(t, "re: hi", exchange(t, conn, "hi"))

	// 其他进程（没有连接信息）补写了 ended_at
	sweeper := NewSessionSweeper(f.convs, NewSessionPresence(nil), nil, config.SweeperConfig{StaleAfter: 12 * time.Hour})
	swept, err := sweeper.Sweep(context.Background(), time.Now().UTC().Add(13*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, swept)
	before, err := f.convs.GetConversation(context.Background(), start.ConversationID)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("after")))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)

	after, err := f.convs.GetConversation(context.Background(), start.ConversationID)
	require.NoError(t, err)
	assert.Len(t, after.Messages, 2)
	assert.True(t, before.EndedAt.Equal(*after.EndedAt))
}
