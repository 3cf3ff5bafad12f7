package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ctonjob/internal/api/middleware"
	"ctonjob/internal/database"
	"ctonjob/internal/events"
	"ctonjob/internal/export"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/metrics"
	"ctonjob/internal/policy"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
)

const (
	adminUsersPageSize = 20
	adminPageSize      = 50
)

// AdminHandler 提供管理员后台：用户、招聘方审核、职位审核与申请管理。
type AdminHandler struct {
	db         *gorm.DB
	files      *fileStore
	accounts   *services.Accounts
	recruiters *services.Recruiters
	apps       *services.Applications
	moderation *services.Moderation
	gate       *policy.Gate
	events     EventPublisher
}

type AdminDeps struct {
	DB         *gorm.DB
	Files      *fileStore
	Accounts   *services.Accounts
	Recruiters *services.Recruiters
	Apps       *services.Applications
	Moderation *services.Moderation
	Gate       *policy.Gate
	Events     EventPublisher
}

func NewAdminHandler(d AdminDeps) *AdminHandler {
	return &AdminHandler{
		db:         d.DB,
		files:      d.Files,
		accounts:   d.Accounts,
		recruiters: d.Recruiters,
		apps:       d.Apps,
		moderation: d.Moderation,
		gate:       d.Gate,
		events:     publisherOrNop(d.Events),
	}
}

// ListUsers 分页列出用户（每页 20，最新在前）并返回总数。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&database.Profile{})
	if role := c.Query("role"); role != "" {
		q = q.Where("role = ?", role)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, err, "")
		return
	}
	p := pageFromQuery(c, adminUsersPageSize)
	var profiles []database.Profile
	if err := q.Order("created_at DESC, id DESC").Offset(p.Offset()).Limit(p.Size).Find(&profiles).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": profiles, "total": total, "page": p.Number, "page_size": p.Size})
}

// ExportUsers 导出全部用户为 xlsx。
func (h *AdminHandler) ExportUsers(c *gin.Context) {
	var profiles []database.Profile
	if err := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Find(&profiles).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="utilisateurs.xlsx"`)
	c.Status(http.StatusOK)
	if err := export.WriteUsersXLSX(c.Writer, profiles); err != nil {
		middleware.LoggerFromContext(c).Error("export users failed", slog.Any("error", err))
	}
}

// DeleteUser 级联删除用户。用户不存在时同样返回成功。
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	targetID := strings.TrimSpace(c.Param("id"))
	if targetID == "" {
		BadRequest(c, msgInvalidID)
		return
	}
	if self, _ := userIDFromContext(c); self == targetID {
		BadRequest(c, "Impossible de supprimer votre propre compte")
		return
	}
	if err := h.accounts.DeleteUser(c.Request.Context(), targetID); err != nil {
		respondError(c, err, "")
		return
	}
	recordModeration(c, h.moderation, services.ActionUserDeleted, "user", targetID, nil)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListRecruiters 按状态过滤招聘方。
func (h *AdminHandler) ListRecruiters(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context())
	if raw := c.Query("status"); raw != "" {
		status, err := lifecycle.ParseRecruiterStatus(raw)
		if err != nil {
			respondError(c, err, "")
			return
		}
		q = q.Where("status = ?", status)
	}
	var recruiters []database.Recruiter
	if err := q.Order("created_at DESC").Find(&recruiters).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": recruiters})
}

func (h *AdminHandler) ApproveRecruiter(c *gin.Context) {
	h.decideRecruiter(c, lifecycle.RecruiterApproved, services.ActionRecruiterApproved)
}

func (h *AdminHandler) RejectRecruiter(c *gin.Context) {
	h.decideRecruiter(c, lifecycle.RecruiterRejected, services.ActionRecruiterRejected)
}

func (h *AdminHandler) decideRecruiter(c *gin.Context, to lifecycle.RecruiterStatus, action string) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	recruiter, err := h.recruiters.Decide(ctx, id, to)
	if err != nil {
		respondError(c, err, msgRecruiterMissing)
		return
	}
	metrics.ObserveTransition("recruiter", string(to))
	recordModeration(c, h.moderation, action, "recruiter", strconv.FormatUint(uint64(id), 10), map[string]any{
		"company_name": recruiter.CompanyName,
	})

	var profile database.Profile
	_ = h.db.WithContext(ctx).Select("id", "email").First(&profile, "id = ?", recruiter.UserID).Error
	h.events.RecruiterStatusChanged(events.RecruiterStatusChanged{
		RecruiterID:   recruiter.ID,
		UserID:        recruiter.UserID,
		Email:         profile.Email,
		CompanyName:   recruiter.CompanyName,
		Status:        recruiter.Status,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	c.JSON(http.StatusOK, recruiter)
}

func (h *AdminHandler) loadRecruiter(c *gin.Context) (*database.Recruiter, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var recruiter database.Recruiter
	if err := h.db.WithContext(c.Request.Context()).First(&recruiter, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, msgRecruiterMissing)
			return nil, false
		}
		respondError(c, err, "")
		return nil, false
	}
	return &recruiter, true
}

// RecruiterDocumentURL 为 SIREN 文件签发 60 秒 URL。
func (h *AdminHandler) RecruiterDocumentURL(c *gin.Context) {
	recruiter, ok := h.loadRecruiter(c)
	if !ok {
		return
	}
	if recruiter.DocSirenPath == nil {
		NotFound(c, "Document introuvable")
		return
	}
	h.files.writeSignedURL(c, storage.BucketCompanyVerifications, *recruiter.DocSirenPath)
}

func (h *AdminHandler) DeleteRecruiterDocument(c *gin.Context) {
	recruiter, ok := h.loadRecruiter(c)
	if !ok {
		return
	}
	if recruiter.DocSirenPath == nil || *recruiter.DocSirenPath == "" {
		NotFound(c, "Document introuvable")
		return
	}
	if err := clearSirenDocument(c, h.db, recruiter.ID); err != nil {
		respondError(c, err, "")
		return
	}
	h.files.remove(c, storage.BucketCompanyVerifications, *recruiter.DocSirenPath)
	recordModeration(c, h.moderation, services.ActionRecruiterDocDeleted, "recruiter", strconv.FormatUint(uint64(recruiter.ID), 10), nil)
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) DeleteRecruiter(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	recruiter, err := h.accounts.DeleteRecruiter(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, msgRecruiterMissing)
		return
	}
	recordModeration(c, h.moderation, services.ActionRecruiterDeleted, "recruiter", strconv.FormatUint(uint64(id), 10), map[string]any{
		"company_name": recruiter.CompanyName,
		"user_id":      recruiter.UserID,
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListJobs 列出全部职位，?is_valid=true|false 过滤。
func (h *AdminHandler) ListJobs(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context())
	if raw := c.Query("is_valid"); raw != "" {
		valid, err := strconv.ParseBool(raw)
		if err != nil {
			BadRequest(c, "Filtre invalide")
			return
		}
		q = q.Where("is_valid = ?", valid)
	}
	p := pageFromQuery(c, adminPageSize)
	var jobs []database.Job
	if err := q.Order("created_at DESC").Offset(p.Offset()).Limit(p.Size).Find(&jobs).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": jobs, "page": p.Number})
}

type validityRequest struct {
	IsValid *bool `json:"is_valid" binding:"required"`
}

// SetJobValidity 审核职位：is_valid=true 后才公开展示。
func (h *AdminHandler) SetJobValidity(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req validityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "is_valid requis")
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&database.Job{}).Where("id = ?", id).Update("is_valid", *req.IsValid)
	if res.Error != nil {
		respondError(c, res.Error, "")
		return
	}
	if res.RowsAffected == 0 {
		NotFound(c, msgJobNotFound)
		return
	}
	recordModeration(c, h.moderation, services.ActionJobValidity, "job", strconv.FormatUint(uint64(id), 10), map[string]any{
		"is_valid": *req.IsValid,
	})
	c.JSON(http.StatusOK, gin.H{"id": id, "is_valid": *req.IsValid})
}

func (h *AdminHandler) DeleteJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var job database.Job
	if err := h.db.WithContext(c.Request.Context()).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, msgJobNotFound)
			return
		}
		respondError(c, err, "")
		return
	}
	if err := deleteJob(c, h.db, job.ID); err != nil {
		respondError(c, err, "")
		return
	}
	recordModeration(c, h.moderation, services.ActionJobDeleted, "job", strconv.FormatUint(uint64(id), 10), map[string]any{
		"title": job.Title,
	})
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) ListApplications(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context())
	if raw := c.Query("status"); raw != "" {
		status, err := lifecycle.ParseApplicationStatus(raw)
		if err != nil {
			respondError(c, err, "")
			return
		}
		q = q.Where("status = ?", status)
	}
	p := pageFromQuery(c, adminPageSize)
	var apps []database.Application
	if err := q.Order("created_at DESC").Offset(p.Offset()).Limit(p.Size).Find(&apps).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": apps, "page": p.Number})
}

func (h *AdminHandler) UpdateApplicationStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, msgInvalidStatus)
		return
	}
	app, err := decideApplication(c, h.apps, h.gate, actor, id, req)
	if err != nil {
		respondError(c, err, msgApplicationMissing)
		return
	}
	recordModeration(c, h.moderation, services.ActionApplicationStatus, "application", strconv.FormatUint(uint64(id), 10), map[string]any{
		"status": app.Status,
	})
	publishApplicationDecision(c, h.db, h.events, app)
	c.JSON(http.StatusOK, app)
}

func (h *AdminHandler) ListVideoApplications(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context())
	if raw := c.Query("videojob_id"); raw != "" {
		videoJobID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "Offre invalide")
			return
		}
		q = q.Where("video_job_id = ?", videoJobID)
	}
	p := pageFromQuery(c, adminPageSize)
	var apps []database.VideoApplication
	if err := q.Order("created_at DESC").Offset(p.Offset()).Limit(p.Size).Find(&apps).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": apps, "page": p.Number})
}

// UpdateVideoApplicationStatus 视频申请状态只能由管理员修改。
func (h *AdminHandler) UpdateVideoApplicationStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, msgInvalidStatus)
		return
	}
	to, err := lifecycle.ParseApplicationStatus(req.Status)
	if err != nil {
		respondError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	app, err := h.apps.LoadVideoApplication(ctx, id)
	if err != nil {
		respondError(c, err, msgApplicationMissing)
		return
	}
	if err := h.gate.Authorize(actor, policy.ActionDecide, app); err != nil {
		respondError(c, err, "")
		return
	}
	if err := h.apps.Transition(ctx, app, to, sanitizeRejection(req.RejectionMessage)); err != nil {
		respondError(c, err, msgApplicationMissing)
		return
	}
	metrics.ObserveTransition("video_application", string(to))
	recordModeration(c, h.moderation, services.ActionVideoAppStatus, "video_application", strconv.FormatUint(uint64(id), 10), map[string]any{
		"status": app.Status,
	})

	var video database.VideoJob
	_ = h.db.WithContext(ctx).Select("id", "title").First(&video, app.VideoJobID).Error
	h.events.ApplicationStatusChanged(events.ApplicationStatusChanged{
		ApplicationID:    app.ID,
		Kind:             events.KindVideo,
		UserID:           app.UserID,
		Email:            app.Email,
		FullName:         app.FullName,
		JobTitle:         video.Title,
		Status:           app.Status,
		RejectionMessage: app.RejectionMessage,
		CorrelationID:    middleware.GetCorrelationID(c),
	})
	c.JSON(http.StatusOK, app)
}

// DeleteVideoApplication 删除视频申请记录；简历文件保留在用户目录下，随账号删除清理。
func (h *AdminHandler) DeleteVideoApplication(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&database.VideoApplication{}, id)
	if res.Error != nil {
		respondError(c, res.Error, "")
		return
	}
	if res.RowsAffected == 0 {
		NotFound(c, msgApplicationMissing)
		return
	}
	recordModeration(c, h.moderation, services.ActionVideoAppDeleted, "video_application", strconv.FormatUint(uint64(id), 10), nil)
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) VideoApplicationCVURL(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	app, err := h.apps.LoadVideoApplication(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, msgApplicationMissing)
		return
	}
	h.files.writeSignedURL(c, storage.BucketCVUploads, app.CVURL)
}

func (h *AdminHandler) ModerationLog(c *gin.Context) {
	p := pageFromQuery(c, adminPageSize)
	entries, total, err := h.moderation.List(c.Request.Context(), p.Offset(), p.Size)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries, "total": total, "page": p.Number})
}
