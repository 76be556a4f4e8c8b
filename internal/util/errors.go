package util

import "errors"

var (
	ErrMissingToken          = errors.New("missing bearer token")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrNotConversationOwner  = errors.New("not your conversation")
	ErrEmptyTranscript       = errors.New("conversation has no messages")
	ErrUpstream              = errors.New("llm service error")
	ErrParseResponse         = errors.New("failed to parse model response")
)
