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
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/metrics"
	"ctonjob/internal/policy"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

// WorkspaceHandler 是审核通过的招聘方的工作台：职位、收到的申请与候选人。
type WorkspaceHandler struct {
	db     *gorm.DB
	files  *fileStore
	apps   *services.Applications
	gate   *policy.Gate
	events EventPublisher
}

func NewWorkspaceHandler(db *gorm.DB, files *fileStore, apps *services.Applications, gate *policy.Gate, publisher EventPublisher) *WorkspaceHandler {
	return &WorkspaceHandler{db: db, files: files, apps: apps, gate: gate, events: publisherOrNop(publisher)}
}

type jobRequest struct {
	Title        string `json:"title" binding:"required,max=255"`
	SectorID     *uint  `json:"sector_id"`
	Location     string `json:"location" binding:"required,max=255"`
	Type         string `json:"type" binding:"required,max=64"`
	SalaryRange  string `json:"salary_range" binding:"max=128"`
	Description  string `json:"description" binding:"required"`
	Requirements string `json:"requirements"`
}

// apply 将请求写入职位；行业名由 sector_id 推导。
func (r jobRequest) apply(c *gin.Context, db *gorm.DB, job *database.Job) bool {
	job.Title = strings.TrimSpace(r.Title)
	job.Location = strings.TrimSpace(r.Location)
	job.Type = strings.TrimSpace(r.Type)
	job.SalaryRange = strings.TrimSpace(r.SalaryRange)
	job.Description = strings.TrimSpace(r.Description)
	job.Requirements = strings.TrimSpace(r.Requirements)
	job.SectorID = nil
	job.Sector = ""
	if r.SectorID != nil {
		var sector database.Sector
		if err := db.WithContext(c.Request.Context()).First(&sector, *r.SectorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				BadRequest(c, "Secteur invalide")
				return false
			}
			respondError(c, err, "")
			return false
		}
		job.SectorID = &sector.ID
		job.Sector = sector.Name
	}
	return true
}

// CreateJob 发布职位，初始 is_valid=false，等待管理员审核。
func (h *WorkspaceHandler) CreateJob(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if !actor.IsApprovedRecruiter() {
		Forbidden(c, "Compte recruteur non validé")
		return
	}
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Champs requis manquants")
		return
	}
	job := database.Job{RecruiterID: actor.RecruiterID(), IsValid: false}
	if !req.apply(c, h.db, &job) {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&job).Error; err != nil {
		respondError(c, err, "")
		return
	}
	middleware.LoggerFromContext(c).Info("job created",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.Uint64("recruiter_id", uint64(job.RecruiterID)),
	)
	c.JSON(http.StatusCreated, job)
}

func (h *WorkspaceHandler) ListJobs(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var jobs []database.Job
	if err := h.db.WithContext(c.Request.Context()).
		Where("recruiter_id = ?", actor.RecruiterID()).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": jobs})
}

// loadOwnedJob 读取职位并校验归属，失败时已写入响应。
func (h *WorkspaceHandler) loadOwnedJob(c *gin.Context, actor *policy.Actor, action policy.Action) (*database.Job, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var job database.Job
	if err := h.db.WithContext(c.Request.Context()).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, msgJobNotFound)
			return nil, false
		}
		respondError(c, err, "")
		return nil, false
	}
	if err := h.gate.Authorize(actor, action, &job); err != nil {
		respondError(c, err, "")
		return nil, false
	}
	return &job, true
}

// UpdateJob 修改职位后重新进入审核（is_valid=false）。
func (h *WorkspaceHandler) UpdateJob(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Champs requis manquants")
		return
	}
	job, ok := h.loadOwnedJob(c, actor, policy.ActionUpdate)
	if !ok {
		return
	}
	if !req.apply(c, h.db, job) {
		return
	}
	job.IsValid = false
	if err := h.db.WithContext(c.Request.Context()).Model(job).Updates(map[string]any{
		"title":        job.Title,
		"sector_id":    job.SectorID,
		"sector":       job.Sector,
		"location":     job.Location,
		"type":         job.Type,
		"salary_range": job.SalaryRange,
		"description":  job.Description,
		"requirements": job.Requirements,
		"is_valid":     false,
	}).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeleteJob 删除职位及其申请。
func (h *WorkspaceHandler) DeleteJob(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	job, ok := h.loadOwnedJob(c, actor, policy.ActionDelete)
	if !ok {
		return
	}
	if err := deleteJob(c, h.db, job.ID); err != nil {
		respondError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

func deleteJob(c *gin.Context, db *gorm.DB, jobID uint) error {
	return db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", jobID).Delete(&database.Application{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Job{}, jobID).Error
	})
}

// ListApplications 列出投递到自己职位的申请，可按 job_id 过滤。
func (h *WorkspaceHandler) ListApplications(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	q := h.db.WithContext(c.Request.Context()).Where("recruiter_id = ?", actor.RecruiterID())
	if raw := c.Query("job_id"); raw != "" {
		jobID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "Offre invalide")
			return
		}
		q = q.Where("job_id = ?", jobID)
	}
	var apps []database.Application
	if err := q.Order("created_at DESC").Find(&apps).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": apps})
}

type statusRequest struct {
	Status           string `json:"status" binding:"required"`
	RejectionMessage string `json:"rejection_message"`
}

// UpdateApplicationStatus 招聘方接受或拒绝申请。
func (h *WorkspaceHandler) UpdateApplicationStatus(c *gin.Context) {
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
	publishApplicationDecision(c, h.db, h.events, app)
	c.JSON(http.StatusOK, app)
}

// decideApplication 校验权限后执行状态迁移。
func decideApplication(c *gin.Context, apps *services.Applications, gate *policy.Gate, actor *policy.Actor, id uint, req statusRequest) (*database.Application, error) {
	to, err := lifecycle.ParseApplicationStatus(req.Status)
	if err != nil {
		return nil, err
	}
	ctx := c.Request.Context()
	app, err := apps.LoadApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := gate.Authorize(actor, policy.ActionDecide, app); err != nil {
		return nil, err
	}
	msg := sanitizeRejection(req.RejectionMessage)
	if err := apps.Transition(ctx, app, to, msg); err != nil {
		return nil, err
	}
	metrics.ObserveTransition("application", string(to))
	return app, nil
}

func sanitizeRejection(raw string) string {
	return upload.SanitizeMessage(raw, services.MaxRejectionMessage)
}

func publishApplicationDecision(c *gin.Context, db *gorm.DB, publisher EventPublisher, app *database.Application) {
	var job database.Job
	_ = db.WithContext(c.Request.Context()).Select("id", "title").First(&job, app.JobID).Error
	publisher.ApplicationStatusChanged(events.ApplicationStatusChanged{
		ApplicationID:    app.ID,
		Kind:             events.KindJob,
		UserID:           app.UserID,
		Email:            app.Email,
		FullName:         app.FullName,
		JobTitle:         job.Title,
		Status:           app.Status,
		RejectionMessage: app.RejectionMessage,
		CorrelationID:    middleware.GetCorrelationID(c),
	})
}

// ApplicationCVURL 为收到的申请简历签发临时 URL。
func (h *WorkspaceHandler) ApplicationCVURL(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	app, err := h.apps.LoadApplication(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, msgApplicationMissing)
		return
	}
	if err := h.gate.Authorize(actor, policy.ActionView, app); err != nil {
		respondError(c, err, "")
		return
	}
	h.files.writeSignedURL(c, storage.BucketCVUploads, app.CVURL)
}

type candidateView struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	DesiredJob  string `json:"desired_job"`
	CVPublicURL string `json:"cv_public_url"`
}

// ListCandidates 浏览公开了简历的候选人，?q= 按姓名或期望职位搜索。
func (h *WorkspaceHandler) ListCandidates(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).
		Where("role = ? AND cv_public IS NOT NULL AND cv_public <> ''", database.RoleCandidate)
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(full_name) LIKE ? OR LOWER(desired_job) LIKE ?", like, like)
	}
	p := pageFromQuery(c, catalogPageSize)
	var profiles []database.Profile
	if err := q.Order("created_at DESC").Offset(p.Offset()).Limit(p.Size).Find(&profiles).Error; err != nil {
		respondError(c, err, "")
		return
	}
	items := make([]candidateView, 0, len(profiles))
	for _, pr := range profiles {
		url, _ := h.files.store.PublicURL(storage.BucketCVPublic, *pr.CVPublic)
		items = append(items, candidateView{ID: pr.ID, FullName: pr.FullName, DesiredJob: pr.DesiredJob, CVPublicURL: url})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "page": p.Number})
}

// CandidateCVURL 返回候选人公开简历的地址。
func (h *WorkspaceHandler) CandidateCVURL(c *gin.Context) {
	var profile database.Profile
	err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND cv_public IS NOT NULL", c.Param("id")).
		First(&profile).Error
	if err != nil || profile.CVPublic == nil || *profile.CVPublic == "" {
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "CV introuvable")
			return
		}
		respondError(c, err, "")
		return
	}
	url, err := h.files.store.PublicURL(storage.BucketCVPublic, *profile.CVPublic)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
