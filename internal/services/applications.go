package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ctonjob/internal/database"
	"ctonjob/internal/lifecycle"
)

// MaxRejectionMessage 拒绝留言的最大字符数。
const MaxRejectionMessage = 2000

// Applications 实现申请状态机。
type Applications struct {
	db *gorm.DB
}

// NewApplications 构造申请服务。
func NewApplications(db *gorm.DB) *Applications {
	return &Applications{db: db}
}

// Transition 以条件更新把 en_attente 申请迁移到终态；rejectionMessage 仅在 declinee 时保存。
// model 必须是 *database.Application 或 *database.VideoApplication，并已加载当前状态。
func (a *Applications) Transition(ctx context.Context, model any, to lifecycle.ApplicationStatus, rejectionMessage string) error {
	var (
		id   uint
		from lifecycle.ApplicationStatus
	)
	switch m := model.(type) {
	case *database.Application:
		id, from = m.ID, m.Status
	case *database.VideoApplication:
		id, from = m.ID, m.Status
	default:
		return fmt.Errorf("unsupported application model %T", model)
	}

	if err := lifecycle.CheckApplicationTransition(from, to); err != nil {
		return err
	}
	if to != lifecycle.ApplicationDeclined {
		rejectionMessage = ""
	}

	res := a.db.WithContext(ctx).Model(model).
		Where("id = ? AND status = ?", id, lifecycle.ApplicationPending).
		Updates(map[string]any{
			"status":            to,
			"rejection_message": rejectionMessage,
		})
	if res.Error != nil {
		return fmt.Errorf("update application status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: application %d is no longer pending", lifecycle.ErrInvalidTransition, id)
	}

	switch m := model.(type) {
	case *database.Application:
		m.Status, m.RejectionMessage = to, rejectionMessage
	case *database.VideoApplication:
		m.Status, m.RejectionMessage = to, rejectionMessage
	}
	return nil
}

// LoadApplication 按 id 读取职位申请。
func (a *Applications) LoadApplication(ctx context.Context, id uint) (*database.Application, error) {
	var app database.Application
	if err := a.db.WithContext(ctx).First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	return &app, nil
}

// LoadVideoApplication 按 id 读取视频职位申请。
func (a *Applications) LoadVideoApplication(ctx context.Context, id uint) (*database.VideoApplication, error) {
	var app database.VideoApplication
	if err := a.db.WithContext(ctx).First(&app, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load video application: %w", err)
	}
	return &app, nil
}
