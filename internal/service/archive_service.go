package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/model"
	"exam_engine_backend/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ArchiveProvider 代码归档的通用存储接口
type ArchiveProvider interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	GetURL(filename string) string
}

// LocalArchiveProvider 本地磁盘归档
type LocalArchiveProvider struct {
	Config *config.ArchiveConfig
}

func (p *LocalArchiveProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
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

func (p *LocalArchiveProvider) GetURL(filename string) string {
	return "/archive/" + filename
}

// MinioArchiveProvider MinIO 对象存储归档
type MinioArchiveProvider struct {
	Config *config.ArchiveConfig
	Client *minio.Client
}

func NewMinioArchiveProvider(cfg *config.ArchiveConfig) (*MinioArchiveProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArchiveProvider{Config: cfg, Client: client}, nil
}

func (p *MinioArchiveProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioArchiveProvider) GetURL(filename string) string {
	return "/" + p.Config.MinioBucket + "/" + filename
}

// ArchiveService 提交后归档编程题代码，供教师评分界面回溯与留档审计。
// 归档是尽力而为：归档失败不影响提交本身。
type ArchiveService struct {
	Provider ArchiveProvider
}

func NewArchiveService(cfg *config.Config) *ArchiveService {
	var provider ArchiveProvider
	switch cfg.Archive.Type {
	case "minio":
		p, err := NewMinioArchiveProvider(&cfg.Archive)
		if err != nil {
			logger.Log.Warn("minio archive unavailable, falling back to local", zap.Error(err))
		} else {
			provider = p
		}
	case "local":
		provider = &LocalArchiveProvider{Config: &cfg.Archive}
	case "", "none":
		return &ArchiveService{}
	}

	if provider == nil && cfg.Archive.Type != "none" {
		provider = &LocalArchiveProvider{Config: &cfg.Archive}
	}
	return &ArchiveService{Provider: provider}
}

// ArchiveSubmissionCode 把提交里每道编程题的代码存成一个对象
func (s *ArchiveService) ArchiveSubmissionCode(ctx context.Context, sub *model.Submission) {
	if s.Provider == nil {
		return
	}
	answers, err := sub.AnswerList()
	if err != nil {
		logger.Log.Warn("cannot decode answers for archival",
			zap.Uint("submissionId", sub.ID), zap.Error(err))
		return
	}

	for _, a := range answers {
		if a.Kind != model.Coding || a.Code == "" {
			continue
		}
		name := fmt.Sprintf("submissions/%d/question_%d.txt", sub.ID, a.QuestionID)
		reader := strings.NewReader(a.Code)
		if _, err := s.Provider.Upload(ctx, name, reader, int64(len(a.Code)), "text/plain"); err != nil {
			logger.Log.Warn("code archival failed",
				zap.Uint("submissionId", sub.ID),
				zap.Uint("questionId", a.QuestionID),
				zap.Error(err))
		}
	}
}

// ArchivingSink 在持久化成功后追加归档的提交通道
type ArchivingSink struct {
	Sink    SubmissionSink
	Archive *ArchiveService
}

func (s *ArchivingSink) SubmitAssessment(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	saved, err := s.Sink.SubmitAssessment(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.Archive.ArchiveSubmissionCode(ctx, saved)
	return saved, nil
}

func (s *ArchivingSink) HasSubmission(ctx context.Context, userID, assessmentID uint) (bool, error) {
	return s.Sink.HasSubmission(ctx, userID, assessmentID)
}
