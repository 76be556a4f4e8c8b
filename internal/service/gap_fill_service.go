package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/internal/util"
	"phrasal_tutor_backend/pkg/logger"
	"phrasal_tutor_backend/pkg/monitoring"
	"strings"
	"sync"
	"unicode"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const gapFillPromptTemplate = `The target phrasal verb for this lesson is '%[1]s'.
Generate gap-fill exercises specifically using this verb, drawn from the conversation below.

Conversation:
%[2]s

Generate a JSON response with EXACTLY this structure (no other text, just the JSON):
{
  "phrasal_verbs": ["%[1]s"],
  "exercises": [
    {
      "phrasal_verb": "%[1]s",
      "sentence": "Original sentence using the phrasal verb.",
      "blank_sentence": "Original sentence with _____ replacing the phrasal verb."
    }
  ]
}

Generate 3-5 exercises using '%[1]s'. Draw sentences from the conversation where possible;
if the conversation contains fewer than 3 uses, create new natural example sentences using the same verb.`

// 没有目标短语动词的会话使用的泛化目标
const defaultGapFillTarget = "phrasal verbs"

const gapFillSchemaURL = "gap_fill_reply.json"

// 只约束类型；顶层字段可缺省，缺省时返回空数组
const gapFillSchema = `{
  "type": "object",
  "properties": {
    "phrasal_verbs": {
      "type": "array",
      "items": {"type": "string"}
    },
    "exercises": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["phrasal_verb", "sentence", "blank_sentence"],
        "properties": {
          "phrasal_verb": {"type": "string"},
          "sentence": {"type": "string"},
          "blank_sentence": {"type": "string"}
        }
      }
    }
  }
}`

var (
	gapFillSchemaOnce     sync.Once
	gapFillCompiledSchema *jsonschema.Schema
	gapFillSchemaErr      error
)

func compiledGapFillSchema() (*jsonschema.Schema, error) {
	gapFillSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(gapFillSchema))
		if err != nil {
			gapFillSchemaErr = fmt.Errorf("parse gap-fill schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(gapFillSchemaURL, doc); err != nil {
			gapFillSchemaErr = fmt.Errorf("add gap-fill schema: %w", err)
			return
		}
		gapFillCompiledSchema, gapFillSchemaErr = c.Compile(gapFillSchemaURL)
	})
	return gapFillCompiledSchema, gapFillSchemaErr
}

type GapFillResult struct {
	PhrasalVerbs []string                    `json:"phrasal_verbs"`
	Exercises    []model.GapFillExerciseItem `json:"exercises"`
}

type GapFillService struct {
	ConvRepo    *repository.ConversationRepository
	GapFillRepo *repository.GapFillRepository
	AI          Completer
}

func NewGapFillService(convRepo *repository.ConversationRepository, gapFillRepo *repository.GapFillRepository, ai Completer) *GapFillService {
	return &GapFillService{ConvRepo: convRepo, GapFillRepo: gapFillRepo, AI: ai}
}

// Generate 校验顺序：ID 格式、存在、归属、非空；任何一步失败都不会调用模型
func (s *GapFillService) Generate(ctx context.Context, conversationID, userID string) (*GapFillResult, error) {
	result, err := s.generate(ctx, conversationID, userID)
	if err != nil {
		monitoring.GapFillTotal.WithLabelValues(gapFillOutcome(err)).Inc()
		return nil, err
	}
	monitoring.GapFillTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (s *GapFillService) generate(ctx context.Context, conversationID, userID string) (*GapFillResult, error) {
	if !model.IsValidUUID(conversationID) {
		return nil, util.ErrInvalidConversationID
	}

	conv, err := s.ConvRepo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrConversationNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, util.ErrNotConversationOwner
	}
	if len(conv.Messages) == 0 {
		return nil, util.ErrEmptyTranscript
	}

	target := defaultGapFillTarget
	if conv.TargetPhrasalVerb != nil && *conv.TargetPhrasalVerb != "" {
		target = *conv.TargetPhrasalVerb
	}

	prompt := BuildGapFillPrompt(target, RenderTranscript(conv.Messages))
	reply, err := s.AI.Complete(ctx, []AIChatMessage{{Role: string(model.RoleUser), Content: prompt}})
	if err != nil {
		if !errors.Is(err, util.ErrUpstream) {
			err = fmt.Errorf("%w: %v", util.ErrUpstream, err)
		}
		return nil, err
	}

	result, err := ParseGapFillReply(reply)
	if err != nil {
		logger.Log.Warn("Gap-fill reply rejected",
			zap.String("conversationId", conversationID),
			zap.Error(err))
		return nil, err
	}

	set := &model.GapFillExercise{
		UserID:            userID,
		ConversationID:    conversationID,
		TargetPhrasalVerb: target,
		PhrasalVerbs:      result.PhrasalVerbs,
		Exercises:         result.Exercises,
	}
	if err := s.GapFillRepo.Create(ctx, set); err != nil {
		return nil, err
	}

	logger.Log.Info("Gap-fill exercises generated",
		zap.String("conversationId", conversationID),
		zap.String("exerciseSetId", set.ID),
		zap.Int("exercises", len(result.Exercises)))
	return result, nil
}

func gapFillOutcome(err error) string {
	switch {
	case errors.Is(err, util.ErrUpstream):
		return "upstream_error"
	case errors.Is(err, util.ErrParseResponse):
		return "parse_error"
	case errors.Is(err, util.ErrInvalidConversationID),
		errors.Is(err, util.ErrConversationNotFound),
		errors.Is(err, util.ErrNotConversationOwner),
		errors.Is(err, util.ErrEmptyTranscript):
		return "rejected"
	default:
		return "error"
	}
}

func BuildGapFillPrompt(target, transcript string) string {
	return fmt.Sprintf(gapFillPromptTemplate, target, transcript)
}

// RenderTranscript 每条消息一行，形如 "User: ..." / "Assistant: ..."
func RenderTranscript(messages []model.ConversationMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, capitalize(string(m.Role))+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// ParseGapFillReply 去掉代码围栏后解码并按 schema 校验
func ParseGapFillReply(reply string) (*GapFillResult, error) {
	payload := extractJSON(reply)

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrParseResponse, err)
	}

	sch, err := compiledGapFillSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrParseResponse, err)
	}

	var result GapFillResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrParseResponse, err)
	}
	if result.PhrasalVerbs == nil {
		result.PhrasalVerbs = []string{}
	}
	if result.Exercises == nil {
		result.Exercises = []model.GapFillExerciseItem{}
	}
	return &result, nil
}

// extractJSON 支持 ```json ... ``` 和 ``` ... ``` 两种围栏，没有围栏时原样返回
func extractJSON(reply string) string {
	start := strings.Index(reply, "```")
	if start < 0 {
		return strings.TrimSpace(reply)
	}
	body := reply[start+3:]

	// 语言标记
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}

	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
