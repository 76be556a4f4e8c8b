package model

import (
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GapFillExerciseItem struct {
	PhrasalVerb   string `json:"phrasal_verb"`
	Sentence      string `json:"sentence"`
	BlankSentence string `json:"blank_sentence"`
}

// GapFillExercise 一次生成请求产生的填空练习集，创建后不再修改
type GapFillExercise struct {
	UUIDBase
	UserID            string                                   `gorm:"size:128;not null;index" json:"userId"`
	ConversationID    string                                   `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	TargetPhrasalVerb string                                   `gorm:"size:64" json:"targetPhrasalVerb"`
	PhrasalVerbs      datatypes.JSONSlice[string]              `json:"phrasalVerbs"`
	Exercises         datatypes.JSONSlice[GapFillExerciseItem] `json:"exercises"`
}

func (GapFillExercise) TableName() string {
	return "gap_fill_exercises"
}

func (g *GapFillExercise) BeforeCreate(tx *gorm.DB) error {
	if g.UserID == "" || g.ConversationID == "" {
		return fmt.Errorf("%w: exercise set needs user and conversation", ErrInvalidRecord)
	}
	return g.UUIDBase.BeforeCreate(tx)
}

