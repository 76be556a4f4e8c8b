package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const presenceTTL = 2 * time.Minute

// SessionPresence 在 redis 中记录本实例正在服务的会话，心跳续期
// 实例崩溃后 key 自然过期，清扫任务据此识别孤儿会话。rdb 为 nil 时所有操作为空操作
type SessionPresence struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewSessionPresence(rdb *redis.Client) *SessionPresence {
	return &SessionPresence{Redis: rdb, TTL: presenceTTL}
}

func (p *SessionPresence) Enabled() bool {
	return p != nil && p.Redis != nil
}

func presenceKey(conversationID string) string {
	return fmt.Sprintf("chat:session:open:%s", conversationID)
}

func (p *SessionPresence) MarkOpen(ctx context.Context, conversationID, userID string) error {
	if !p.Enabled() {
		return nil
	}
	return p.Redis.Set(ctx, presenceKey(conversationID), userID, p.TTL).Err()
}

func (p *SessionPresence) Refresh(ctx context.Context, conversationID string) error {
	if !p.Enabled() {
		return nil
	}
	return p.Redis.Expire(ctx, presenceKey(conversationID), p.TTL).Err()
}

func (p *SessionPresence) MarkClosed(ctx context.Context, conversationID string) error {
	if !p.Enabled() {
		return nil
	}
	return p.Redis.Del(ctx, presenceKey(conversationID)).Err()
}

// IsOpen 未启用 redis 时无法判断，返回 false
func (p *SessionPresence) IsOpen(ctx context.Context, conversationID string) (bool, error) {
	if !p.Enabled() {
		return false, nil
	}
	n, err := p.Redis.Exists(ctx, presenceKey(conversationID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
