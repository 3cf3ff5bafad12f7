package database

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ctonjob/internal/lifecycle"
)

// Role 表示账号在站内的角色，保存在 Profile 上。
type Role string

const (
	RoleCandidate Role = "candidat"
	RoleRecruiter Role = "recruiter"
	RoleAdmin     Role = "admin"
)

// User 表示认证身份（邮箱 + 密码哈希），与 Profile 一一对应。
type User struct {
	ID                 string `gorm:"primaryKey;size:36"`
	Email              string `gorm:"uniqueIndex;size:255"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// BeforeCreate assigns a UUID when none was set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(u.ID) == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Profile 表示用户资料与角色。
type Profile struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	FullName         string     `gorm:"size:255" json:"full_name"`
	Email            string     `gorm:"size:255;index" json:"email"`
	Role             Role       `gorm:"size:16;index;default:candidat" json:"role"`
	Consentement     bool       `json:"consentement"`
	MentionsLegales  bool       `json:"mentions_legales"`
	DateConsentement *time.Time `json:"date_consentement,omitempty"`
	CVPublic         *string    `gorm:"size:512" json:"cv_public,omitempty"`
	DesiredJob       string     `gorm:"size:255" json:"desired_job"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Recruiter 表示企业招聘方账号，需要管理员审核或邮件确认。
type Recruiter struct {
	ID                    uint                      `gorm:"primaryKey" json:"id"`
	UserID                string                    `gorm:"uniqueIndex;size:36" json:"user_id"`
	CompanyName           string                    `gorm:"size:255" json:"company_name"`
	ContactName           string                    `gorm:"size:255" json:"contact_name"`
	Phone                 string                    `gorm:"size:32" json:"phone"`
	Sector                string                    `gorm:"size:128" json:"sector"`
	Website               string                    `gorm:"size:512" json:"website"`
	Description           string                    `gorm:"type:text" json:"description"`
	Size                  string                    `gorm:"size:64" json:"size"`
	Location              string                    `gorm:"size:255" json:"location"`
	Siret                 string                    `gorm:"size:14" json:"siret"`
	Status                lifecycle.RecruiterStatus `gorm:"size:16;index;default:pending" json:"status"`
	DocSirenPath          *string                   `gorm:"size:512" json:"docsiren_path,omitempty"`
	LogoPath              string                    `gorm:"size:512" json:"logo_path"`
	LogoURL               string                    `gorm:"size:1024" json:"logo_url"`
	ConfirmationTokenHash *string                   `gorm:"size:64;index" json:"-"`
	ConfirmationExpiresAt *time.Time                `json:"-"`
	IsConfirmed           bool                      `gorm:"default:false" json:"is_confirmed"`
	AcceptedCGU           bool                      `json:"accepted_cgu"`
	CreatedAt             time.Time                 `json:"created_at"`
	UpdatedAt             time.Time                 `json:"updated_at"`
}

// Sector 行业分类。
type Sector struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;size:128" json:"name"`
}

// UserSector 用户关注的行业（多对多）。
type UserSector struct {
	UserID    string `gorm:"primaryKey;size:36" json:"user_id"`
	SectorID  uint   `gorm:"primaryKey" json:"sector_id"`
	CreatedAt time.Time
}

// Job 招聘方发布的职位，IsValid 为 false 时不对外展示。
type Job struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RecruiterID  uint      `gorm:"index" json:"recruiter_id"`
	SectorID     *uint     `gorm:"index" json:"sector_id,omitempty"`
	Title        string    `gorm:"size:255" json:"title"`
	Sector       string    `gorm:"size:128" json:"sector"`
	Location     string    `gorm:"size:255" json:"location"`
	Type         string    `gorm:"size:64" json:"type"`
	SalaryRange  string    `gorm:"size:128" json:"salary_range"`
	Description  string    `gorm:"type:text" json:"description"`
	Requirements string    `gorm:"type:text" json:"requirements"`
	IsValid      bool      `gorm:"index;default:false" json:"is_valid"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VideoJob 管理员发布的视频职位。
type VideoJob struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:255" json:"title"`
	VideoURL     string    `gorm:"size:1024" json:"video_url"`
	VideoPath    string    `gorm:"size:512" json:"video_path"`
	Location     string    `gorm:"size:255" json:"location"`
	ContractType string    `gorm:"size:64" json:"contract_type"`
	Salary       string    `gorm:"size:128" json:"salary"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Application 候选人对职位的申请，(job_id, user_id) 唯一。
type Application struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	JobID            uint                        `gorm:"uniqueIndex:idx_applications_job_user" json:"job_id"`
	UserID           string                      `gorm:"uniqueIndex:idx_applications_job_user;size:36;index" json:"user_id"`
	RecruiterID      uint                        `gorm:"index" json:"recruiter_id"`
	FullName         string                      `gorm:"size:255" json:"full_name"`
	Email            string                      `gorm:"size:255" json:"email"`
	Message          string                      `gorm:"type:text" json:"message"`
	CVURL            string                      `gorm:"size:512" json:"cv_url"`
	Status           lifecycle.ApplicationStatus `gorm:"size:16;index;default:en_attente" json:"status"`
	RejectionMessage string                      `gorm:"type:text" json:"rejection_message,omitempty"`
	CreatedAt        time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// VideoApplication 候选人对视频职位的申请，(video_job_id, user_id) 唯一。
type VideoApplication struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	VideoJobID       uint                        `gorm:"uniqueIndex:idx_video_applications_job_user" json:"videojob_id"`
	UserID           string                      `gorm:"uniqueIndex:idx_video_applications_job_user;size:36;index" json:"users_id"`
	FullName         string                      `gorm:"size:255" json:"full_name"`
	Email            string                      `gorm:"size:255" json:"email"`
	Message          string                      `gorm:"type:text" json:"message"`
	CVURL            string                      `gorm:"size:512" json:"cv_url"`
	Status           lifecycle.ApplicationStatus `gorm:"size:16;index;default:en_attente" json:"status"`
	RejectionMessage string                      `gorm:"type:text" json:"rejection_message,omitempty"`
	CreatedAt        time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// ModerationLog 记录管理员的审核操作。
type ModerationLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ActorID    string         `gorm:"size:36;index" json:"actor_id"`
	Action     string         `gorm:"size:64" json:"action"`
	TargetType string         `gorm:"size:32" json:"target_type"`
	TargetID   string         `gorm:"size:64" json:"target_id"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{
		&User{},
		&Profile{},
		&Recruiter{},
		&Sector{},
		&UserSector{},
		&Job{},
		&VideoJob{},
		&Application{},
		&VideoApplication{},
		&ModerationLog{},
	}
}
