package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"ctonjob/internal/database"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/storage"
)

// Recruiters 实现招聘方审核状态机。
type Recruiters struct {
	db     *gorm.DB
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecruiters 构造招聘方服务。
func NewRecruiters(db *gorm.DB, store storage.Store, logger *slog.Logger) *Recruiters {
	return &Recruiters{db: db, store: store, logger: loggerOrDefault(logger), now: func() time.Time { return time.Now().UTC() }}
}

// Decide 将 pending 招聘方迁移到 approved 或 rejected。
// 使用条件更新（WHERE status = 'pending'），并发审批时只有一个成功，其余返回 ErrInvalidTransition。
// 审核通过后 SIREN 文件不再需要，提交后尽力删除。
func (r *Recruiters) Decide(ctx context.Context, recruiterID uint, to lifecycle.RecruiterStatus) (*database.Recruiter, error) {
	var recruiter database.Recruiter
	if err := r.db.WithContext(ctx).First(&recruiter, recruiterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load recruiter: %w", err)
	}
	if err := lifecycle.CheckRecruiterTransition(recruiter.Status, to); err != nil {
		return nil, err
	}

	updates := map[string]any{"status": to}
	var docPath string
	if to == lifecycle.RecruiterApproved && recruiter.DocSirenPath != nil {
		docPath = *recruiter.DocSirenPath
		updates["doc_siren_path"] = nil
	}

	res := r.db.WithContext(ctx).Model(&database.Recruiter{}).
		Where("id = ? AND status = ?", recruiterID, lifecycle.RecruiterPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update recruiter status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: recruiter %d is no longer pending", lifecycle.ErrInvalidTransition, recruiterID)
	}

	recruiter.Status = to
	if docPath != "" {
		recruiter.DocSirenPath = nil
		removeObjects(ctx, r.store, r.logger, []objectRef{{bucket: storage.BucketCompanyVerifications, key: docPath}})
	}
	return &recruiter, nil
}

// IssueConfirmation 生成新的确认令牌，只保存其哈希；重新发送会使旧令牌失效。
func (r *Recruiters) IssueConfirmation(ctx context.Context, recruiterID uint, ttl time.Duration) (lifecycle.ConfirmationToken, error) {
	token, err := lifecycle.NewConfirmationToken(r.now(), ttl)
	if err != nil {
		return lifecycle.ConfirmationToken{}, err
	}

	res := r.db.WithContext(ctx).Model(&database.Recruiter{}).
		Where("id = ? AND status = ?", recruiterID, lifecycle.RecruiterPending).
		Updates(map[string]any{
			"confirmation_token_hash": token.Hash,
			"confirmation_expires_at": token.ExpiresAt,
			"is_confirmed":            false,
		})
	if res.Error != nil {
		return lifecycle.ConfirmationToken{}, fmt.Errorf("store confirmation token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return lifecycle.ConfirmationToken{}, fmt.Errorf("%w: recruiter %d is not pending", lifecycle.ErrInvalidTransition, recruiterID)
	}
	return token, nil
}

// Confirm 消费确认令牌：哈希匹配、未过期且仍为 pending 时，原子地置为 approved 并清除哈希。
// 重放或过期的令牌返回 ErrInvalidToken。
func (r *Recruiters) Confirm(ctx context.Context, plainToken string) (*database.Recruiter, error) {
	if strings.TrimSpace(plainToken) == "" {
		return nil, ErrInvalidToken
	}
	hash := lifecycle.HashConfirmationToken(plainToken)
	now := r.now()

	var recruiter database.Recruiter
	err := r.db.WithContext(ctx).
		Where("confirmation_token_hash = ?", hash).
		First(&recruiter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup confirmation token: %w", err)
	}

	res := r.db.WithContext(ctx).Model(&database.Recruiter{}).
		Where("id = ? AND confirmation_token_hash = ? AND confirmation_expires_at > ? AND status = ?",
			recruiter.ID, hash, now, lifecycle.RecruiterPending).
		Updates(map[string]any{
			"status":                  lifecycle.RecruiterApproved,
			"is_confirmed":            true,
			"confirmation_token_hash": nil,
			"confirmation_expires_at": nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("consume confirmation token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidToken
	}

	recruiter.Status = lifecycle.RecruiterApproved
	recruiter.IsConfirmed = true
	recruiter.ConfirmationTokenHash = nil
	recruiter.ConfirmationExpiresAt = nil
	return &recruiter, nil
}
