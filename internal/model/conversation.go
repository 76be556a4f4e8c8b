package model

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrConversationEnded 会话已写入 ended_at，不再接受追加
var ErrConversationEnded = errors.New("conversation already ended")

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation 一次 WebSocket 连接对应的会话记录
type Conversation struct {
	UUIDBase
	UserID            string                `gorm:"size:128;not null;index" json:"userId"`
	StartedAt         time.Time             `gorm:"not null" json:"startedAt"`
	EndedAt           *time.Time            `gorm:"index" json:"endedAt"`
	TargetPhrasalVerb *string               `gorm:"size:64" json:"targetPhrasalVerb,omitempty"`
	Messages          []ConversationMessage `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.UserID == "" {
		return fmt.Errorf("%w: conversation user id is empty", ErrInvalidRecord)
	}
	if c.EndedAt != nil {
		return fmt.Errorf("%w: conversation must start open", ErrInvalidRecord)
	}
	return c.UUIDBase.BeforeCreate(tx)
}

// ConversationMessage 追加写入的消息，自增 ID 即追加顺序
type ConversationMessage struct {
	ID             uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string      `gorm:"type:varchar(36);not null;index" json:"-"`
	Role           MessageRole `gorm:"size:16;not null" json:"role"`
	Content        string      `gorm:"type:text" json:"content"`
	Timestamp      time.Time   `gorm:"not null" json:"timestamp"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

func (m *ConversationMessage) BeforeCreate(tx *gorm.DB) error {
	return m.Validate()
}

func (m *ConversationMessage) Validate() error {
	if m.ConversationID == "" {
		return fmt.Errorf("%w: message conversation id is empty", ErrInvalidRecord)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown message role %q", ErrInvalidRecord, m.Role)
	}
	return nil
}
