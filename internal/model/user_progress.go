package model

import (
	"fmt"

	"gorm.io/gorm"
)

// UserProgress 用户在课程表中的当前位置，首次会话时惰性创建
type UserProgress struct {
	BaseModel
	UserID       string `gorm:"size:128;not null;uniqueIndex" json:"userId"`
	CurrentIndex int    `gorm:"not null;default:0" json:"currentIndex"`
}

func (UserProgress) TableName() string {
	return "user_progresses"
}

func (p *UserProgress) BeforeSave(tx *gorm.DB) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: progress user id is empty", ErrInvalidRecord)
	}
	if p.CurrentIndex < 0 {
		return fmt.Errorf("%w: negative curriculum index", ErrInvalidRecord)
	}
	return nil
}
