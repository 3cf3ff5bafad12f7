// Package policy resolves the caller's role and decides resource access.
package policy

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ctonjob/internal/database"
	"ctonjob/internal/lifecycle"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNoProfile = errors.New("profile not found")
)

// Actor 表示当前请求的调用者：资料、角色以及（若存在）招聘方记录。
type Actor struct {
	UserID    string
	Role      database.Role
	Profile   *database.Profile
	Recruiter *database.Recruiter
}

// IsAdmin reports whether the actor has the admin role.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == database.RoleAdmin
}

// IsApprovedRecruiter 要求角色为 recruiter 且招聘方记录已审核通过。
func (a *Actor) IsApprovedRecruiter() bool {
	return a != nil &&
		a.Role == database.RoleRecruiter &&
		a.Recruiter != nil &&
		a.Recruiter.Status == lifecycle.RecruiterApproved
}

// RecruiterID returns the actor's recruiter id or 0.
func (a *Actor) RecruiterID() uint {
	if a == nil || a.Recruiter == nil {
		return 0
	}
	return a.Recruiter.ID
}

// Resolver loads actors from the profiles and recruiters tables.
type Resolver struct {
	db *gorm.DB
}

// NewResolver 构造 Resolver。
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve reads the profile (required) and recruiter row (optional) of userID.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Actor, error) {
	var profile database.Profile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoProfile
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	actor := &Actor{
		UserID:  userID,
		Role:    profile.Role,
		Profile: &profile,
	}

	// 招聘方记录可选，用 Find 避免每次请求都产生 record not found 日志
	var recruiters []database.Recruiter
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&recruiters).Error; err != nil {
		return nil, fmt.Errorf("load recruiter: %w", err)
	}
	if len(recruiters) > 0 {
		actor.Recruiter = &recruiters[0]
	}

	return actor, nil
}
