package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"ctonjob/internal/database"
	"ctonjob/internal/storage"
)

// Accounts 负责用户与招聘方账号的级联删除。
type Accounts struct {
	db     *gorm.DB
	store  storage.Store
	logger *slog.Logger
}

// NewAccounts 构造账号服务。
func NewAccounts(db *gorm.DB, store storage.Store, logger *slog.Logger) *Accounts {
	return &Accounts{db: db, store: store, logger: loggerOrDefault(logger)}
}

// DeleteUser 在单个事务中删除用户的所有数据库记录，提交后尽力清理存储对象。
// 用户不存在视为成功。
func (a *Accounts) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	log := a.logger.With(slog.String("user_id", userID))

	refs := []objectRef{
		{bucket: storage.BucketCVPublic, key: userID + "/", prefix: true},
		{bucket: storage.BucketCVUploads, key: userID + "/", prefix: true},
		{bucket: storage.BucketCompanyVerifications, key: userID + "/", prefix: true},
		{bucket: storage.BucketLogos, key: "recruiters/" + userID + "/", prefix: true},
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recruiter database.Recruiter
		err := tx.Where("user_id = ?", userID).First(&recruiter).Error
		switch {
		case err == nil:
			recruiterRefs, err := deleteRecruiterRows(tx, &recruiter)
			if err != nil {
				return err
			}
			refs = append(refs, recruiterRefs...)
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("load recruiter: %w", err)
		}

		steps := []struct {
			name  string
			model any
			where string
		}{
			{"applications", &database.Application{}, "user_id = ?"},
			{"video applications", &database.VideoApplication{}, "user_id = ?"},
			{"user sectors", &database.UserSector{}, "user_id = ?"},
			{"profile", &database.Profile{}, "id = ?"},
			{"user", &database.User{}, "id = ?"},
		}
		for _, step := range steps {
			if err := tx.Where(step.where, userID).Delete(step.model).Error; err != nil {
				return fmt.Errorf("delete %s: %w", step.name, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("delete user transaction failed", slog.Any("error", err))
		return err
	}

	if failed := removeObjects(ctx, a.store, log, refs); failed > 0 {
		log.Warn("user deleted with leftover storage objects", slog.Int("failed", failed))
	} else {
		log.Info("user deleted")
	}
	return nil
}

// DeleteRecruiter 删除招聘方、其职位及职位下的申请，并尽力删除 logo 与 SIREN 文件。
// 用户资料保留，角色回退为 candidat。
func (a *Accounts) DeleteRecruiter(ctx context.Context, recruiterID uint) (*database.Recruiter, error) {
	var recruiter database.Recruiter
	var refs []objectRef

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&recruiter, recruiterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load recruiter: %w", err)
		}

		var err error
		refs, err = deleteRecruiterRows(tx, &recruiter)
		if err != nil {
			return err
		}

		if err := tx.Model(&database.Profile{}).
			Where("id = ? AND role = ?", recruiter.UserID, database.RoleRecruiter).
			Update("role", database.RoleCandidate).Error; err != nil {
			return fmt.Errorf("reset profile role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := a.logger.With(slog.Uint64("recruiter_id", uint64(recruiterID)))
	removeObjects(ctx, a.store, log, refs)
	log.Info("recruiter deleted")
	return &recruiter, nil
}

func deleteRecruiterRows(tx *gorm.DB, recruiter *database.Recruiter) ([]objectRef, error) {
	jobIDs := tx.Model(&database.Job{}).Select("id").Where("recruiter_id = ?", recruiter.ID)
	if err := tx.Where("recruiter_id = ? OR job_id IN (?)", recruiter.ID, jobIDs).
		Delete(&database.Application{}).Error; err != nil {
		return nil, fmt.Errorf("delete recruiter applications: %w", err)
	}
	if err := tx.Where("recruiter_id = ?", recruiter.ID).Delete(&database.Job{}).Error; err != nil {
		return nil, fmt.Errorf("delete recruiter jobs: %w", err)
	}
	if err := tx.Delete(&database.Recruiter{}, recruiter.ID).Error; err != nil {
		return nil, fmt.Errorf("delete recruiter: %w", err)
	}

	refs := []objectRef{{bucket: storage.BucketLogos, key: recruiter.LogoPath}}
	if recruiter.DocSirenPath != nil {
		refs = append(refs, objectRef{bucket: storage.BucketCompanyVerifications, key: *recruiter.DocSirenPath})
	}
	return refs, nil
}
