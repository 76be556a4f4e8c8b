package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"phrasal_tutor_backend/internal/config"
	"phrasal_tutor_backend/internal/model"
	"phrasal_tutor_backend/internal/repository"
	"phrasal_tutor_backend/pkg/logger"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 定义通用存储接口
type StorageProvider interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	GetURL(filename string) string
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Config.LocalPath, filename)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *LocalStorageProvider) GetURL(filename string) string {
	return filepath.ToSlash(filepath.Join(p.Config.LocalPath, filename))
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(ctx context.Context, cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioStorageProvider) GetURL(filename string) string {
	return "/" + p.Config.MinioBucket + "/" + filename
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}

	if err := bucket.PutObject(filename, reader, oss.WithContext(ctx), oss.ContentType(contentType)); err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *OSSStorageProvider) GetURL(filename string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Config.OSSBucket, p.Config.OSSEndpoint, filename)
}

// NewStorageProvider storage.type 为 none 或空时不归档，返回 nil
func NewStorageProvider(ctx context.Context, cfg *config.StorageConfig) (StorageProvider, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "local":
		return &LocalStorageProvider{Config: cfg}, nil
	case "minio":
		return NewMinioStorageProvider(ctx, cfg)
	case "oss":
		return NewOSSStorageProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// TranscriptArchive 归档文件内容，ended_at 已写入之后生成
type TranscriptArchive struct {
	ConversationID    string                      `json:"conversation_id"`
	UserID            string                      `json:"user_id"`
	TargetPhrasalVerb *string                     `json:"target_phrasal_verb"`
	StartedAt         time.Time                   `json:"started_at"`
	EndedAt           *time.Time                  `json:"ended_at"`
	Messages          []model.ConversationMessage `json:"messages"`
}

// TranscriptArchiver 会话结束后把完整记录写入对象存储，失败只记录日志
type TranscriptArchiver struct {
	Provider StorageProvider
	ConvRepo *repository.ConversationRepository
}

func NewTranscriptArchiver(provider StorageProvider, convRepo *repository.ConversationRepository) *TranscriptArchiver {
	if provider == nil {
		return nil
	}
	return &TranscriptArchiver{Provider: provider, ConvRepo: convRepo}
}

func archiveObjectName(conv *model.Conversation) string {
	return fmt.Sprintf("transcripts/%s/%s.json", conv.StartedAt.UTC().Format("2006/01/02"), conv.ID)
}

// Archive 接收者为 nil 时不做任何事
func (a *TranscriptArchiver) Archive(ctx context.Context, conversationID string) (string, error) {
	if a == nil {
		return "", nil
	}
	conv, err := a.ConvRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(TranscriptArchive{
		ConversationID:    conv.ID,
		UserID:            conv.UserID,
		TargetPhrasalVerb: conv.TargetPhrasalVerb,
		StartedAt:         conv.StartedAt,
		EndedAt:           conv.EndedAt,
		Messages:          conv.Messages,
	})
	if err != nil {
		return "", err
	}

	url, err := a.Provider.Upload(ctx, archiveObjectName(conv), bytes.NewReader(data), int64(len(data)), "application/json")
	if err != nil {
		return "", err
	}
	logger.Log.Debug("Transcript archived", zap.String("conversationId", conv.ID), zap.String("url", url))
	return url, nil
}
