package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ctonjob/internal/database"
)

// 审核操作名称。
const (
	ActionRecruiterApproved   = "recruiter.approved"
	ActionRecruiterRejected   = "recruiter.rejected"
	ActionRecruiterDeleted    = "recruiter.deleted"
	ActionRecruiterDocDeleted = "recruiter.document_deleted"
	ActionUserDeleted         = "user.deleted"
	ActionJobValidity         = "job.validity"
	ActionJobDeleted          = "job.deleted"
	ActionVideoJobCreated     = "video_job.created"
	ActionVideoJobUpdated     = "video_job.updated"
	ActionVideoJobDeleted     = "video_job.deleted"
	ActionApplicationStatus   = "application.status"
	ActionVideoAppStatus      = "video_application.status"
	ActionVideoAppDeleted     = "video_application.deleted"
)

// Moderation 记录管理员操作审计日志。
type Moderation struct {
	db *gorm.DB
}

func NewModeration(db *gorm.DB) *Moderation {
	return &Moderation{db: db}
}

// Record appends one log entry. details may be nil.
func (m *Moderation) Record(ctx context.Context, actorID, action, targetType, targetID string, details map[string]any) error {
	var raw datatypes.JSON
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode moderation details: %w", err)
		}
		raw = datatypes.JSON(b)
	}
	entry := database.ModerationLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    raw,
	}
	if err := m.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("insert moderation log: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (m *Moderation) List(ctx context.Context, offset, limit int) ([]database.ModerationLog, int64, error) {
	var (
		entries []database.ModerationLog
		total   int64
	)
	q := m.db.WithContext(ctx).Model(&database.ModerationLog{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count moderation log: %w", err)
	}
	if err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("list moderation log: %w", err)
	}
	return entries, total, nil
}
