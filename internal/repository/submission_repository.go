package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 提交锁存活时间：覆盖一次提交事务的最坏耗时即可
const submitLockTTL = 30 * time.Second

// SubmissionRepository 提交的持久化与服务端重复提交判定。
// 客户端的确认弹窗只是体验层；真正的权威在这里：
// Redis SETNX 挡并发双击，数据库唯一记录挡跨实例重复。
type SubmissionRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewSubmissionRepository(db *gorm.DB, rdb *redis.Client) *SubmissionRepository {
	return &SubmissionRepository{DB: db, Redis: rdb}
}

func submitLockKey(userID, assessmentID uint) string {
	return fmt.Sprintf("exam:submit_lock:%d:%d", userID, assessmentID)
}

// SubmitAssessment 幂等落库。同一 ClientToken 的重试返回已有记录；
// 不同来源的重复提交返回 ErrAlreadySubmitted。
func (r *SubmissionRepository) SubmitAssessment(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	if r.Redis != nil {
		ok, err := r.Redis.SetNX(ctx, submitLockKey(sub.UserID, sub.AssessmentID), sub.ClientToken, submitLockTTL).Result()
		if err != nil {
			// Redis 不可用不拦截提交，靠数据库查重兜底
			logger.Log.Warn("submit lock unavailable, falling back to database check",
				zap.Error(err))
		} else if !ok {
			holder, _ := r.Redis.Get(ctx, submitLockKey(sub.UserID, sub.AssessmentID)).Result()
			if holder != sub.ClientToken {
				return nil, util.ErrAlreadySubmitted
			}
		}
	}

	existing, err := r.FindByUserAndAssessment(sub.UserID, sub.AssessmentID)
	if err != nil && !errors.Is(err, util.ErrSubmissionNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.ClientToken == sub.ClientToken {
			return existing, nil
		}
		return nil, util.ErrAlreadySubmitted
	}

	if err := r.DB.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *SubmissionRepository) HasSubmission(ctx context.Context, userID, assessmentID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Submission{}).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Count(&count).Error
	return count > 0, err
}

func (r *SubmissionRepository) FindSubmissionByID(id uint) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.Preload("User").First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSubmissionNotFound
	}
	return &s, err
}

func (r *SubmissionRepository) FindByUserAndAssessment(userID, assessmentID uint) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.Where("user_id = ? AND assessment_id = ?", userID, assessmentID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepository) ListByAssessment(assessmentID uint) ([]model.Submission, error) {
	var ss []model.Submission
	err := r.DB.Preload("User").
		Where("assessment_id = ?", assessmentID).
		Order("created_at desc").Find(&ss).Error
	return ss, err
}

func (r *SubmissionRepository) UpdateSubmission(ctx context.Context, sub *model.Submission) error {
	return r.DB.WithContext(ctx).Save(sub).Error
}
