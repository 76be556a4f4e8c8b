package service

import (
	"fmt"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/util"
)

// TokenVerifier 身份令牌校验，WebSocket 握手和 HTTP 中间件共用
type TokenVerifier interface {
	Verify(token string) (*util.Claims, error)
}

type AuthService struct {
	secret string
	opts   util.JWTOptions
}

func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{
		secret: cfg.Secret,
		opts: util.JWTOptions{
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
		},
	}
}

func (s *AuthService) Verify(token string) (*util.Claims, error) {
	if token == "" {
		return nil, util.ErrMissingToken
	}
	claims, err := util.ParseJWT(token, s.secret, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidToken, err)
	}
	return claims, nil
}
