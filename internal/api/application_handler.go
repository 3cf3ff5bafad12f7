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
	"ctonjob/internal/metrics"
	"ctonjob/internal/policy"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

const (
	maxApplicationMessage = 5000
	msgAlreadyApplied     = "Vous avez déjà postulé à cette offre"
	msgJobNotFound        = "Offre introuvable"
	msgVideoJobNotFound   = "Offre vidéo introuvable"
	msgApplicationMissing = "Candidature introuvable"
)

// ApplicationHandler 处理候选人的简历上传与职位申请。
type ApplicationHandler struct {
	db     *gorm.DB
	files  *fileStore
	apps   *services.Applications
	gate   *policy.Gate
	events EventPublisher
}

func NewApplicationHandler(db *gorm.DB, files *fileStore, apps *services.Applications, gate *policy.Gate, publisher EventPublisher) *ApplicationHandler {
	return &ApplicationHandler{db: db, files: files, apps: apps, gate: gate, events: publisherOrNop(publisher)}
}

// UploadCV 上传私有简历到 cv_uploads，返回对象路径供后续申请引用。
func (h *ApplicationHandler) UploadCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	file, ok := h.files.accept(c, "file", storage.BucketCVUploads, upload.CVRule)
	if !ok {
		return
	}
	key := upload.UserObjectKey(userID, file.Name, h.files.now())
	if err := h.files.put(c.Request.Context(), storage.BucketCVUploads, key, file); err != nil {
		middleware.LoggerFromContext(c).Error("upload cv failed", slog.String("user_id", userID), slog.Any("error", err))
		Internal(c, "Échec de l'upload")
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": key})
}

// applicant 从表单或资料中取得申请人姓名与邮箱。
func applicant(c *gin.Context, actor *policy.Actor) (string, string) {
	fullName := strings.TrimSpace(c.PostForm("full_name"))
	if fullName == "" {
		fullName = actor.Profile.FullName
	}
	email := strings.TrimSpace(c.PostForm("email"))
	if email == "" {
		email = actor.Profile.Email
	}
	return fullName, email
}

// ApplyJob 投递职位：multipart job_id、message、cv。
// 同一 (job, user) 只能申请一次，预检查与唯一索引冲突都返回 409。
func (h *ApplicationHandler) ApplyJob(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	jobID, err := strconv.ParseUint(c.PostForm("job_id"), 10, 64)
	if err != nil || jobID == 0 {
		BadRequest(c, "Offre invalide")
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(
		slog.String("user_id", actor.UserID),
		slog.Uint64("job_id", jobID),
	)

	var job database.Job
	if err := visibleJobs(h.db.WithContext(ctx)).First(&job, jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, msgJobNotFound)
			return
		}
		respondError(c, err, "")
		return
	}

	var existing int64
	if err := h.db.WithContext(ctx).Model(&database.Application{}).
		Where("job_id = ? AND user_id = ?", job.ID, actor.UserID).
		Count(&existing).Error; err != nil {
		respondError(c, err, "")
		return
	}
	if existing > 0 {
		Conflict(c, msgAlreadyApplied)
		return
	}

	file, ok := h.files.accept(c, "cv", storage.BucketCVUploads, upload.ApplicationCVRule)
	if !ok {
		return
	}
	key := upload.UserObjectKey(actor.UserID, file.Name, h.files.now())
	if err := h.files.put(ctx, storage.BucketCVUploads, key, file); err != nil {
		log.Error("upload application cv failed", slog.Any("error", err))
		Internal(c, "Échec de l'upload")
		return
	}

	fullName, email := applicant(c, actor)
	app := database.Application{
		JobID:       job.ID,
		UserID:      actor.UserID,
		RecruiterID: job.RecruiterID,
		FullName:    fullName,
		Email:       email,
		Message:     upload.SanitizeMessage(c.PostForm("message"), maxApplicationMessage),
		CVURL:       key,
	}
	if err := h.db.WithContext(ctx).Create(&app).Error; err != nil {
		h.files.remove(c, storage.BucketCVUploads, key)
		if database.IsUniqueViolation(err) {
			Conflict(c, msgAlreadyApplied)
			return
		}
		respondError(c, err, "")
		return
	}

	metrics.ObserveApplication(string(events.KindJob))
	log.Info("application submitted", slog.Uint64("application_id", uint64(app.ID)))

	var recruiter database.Recruiter
	if err := h.db.WithContext(ctx).Select("id", "user_id").First(&recruiter, job.RecruiterID).Error; err == nil {
		h.events.ApplicationSubmitted(events.ApplicationSubmitted{
			ApplicationID:   app.ID,
			Kind:            events.KindJob,
			RecruiterUserID: recruiter.UserID,
			JobTitle:        job.Title,
			CorrelationID:   middleware.GetCorrelationID(c),
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "path": key})
}

// ApplyVideoJob 投递视频职位：message，以及 cv 文件或此前上传的 cv_path。
func (h *ApplicationHandler) ApplyVideoJob(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	videoJobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(
		slog.String("user_id", actor.UserID),
		slog.Uint64("video_job_id", uint64(videoJobID)),
	)

	var video database.VideoJob
	if err := h.db.WithContext(ctx).First(&video, videoJobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, msgVideoJobNotFound)
			return
		}
		respondError(c, err, "")
		return
	}

	var existing int64
	if err := h.db.WithContext(ctx).Model(&database.VideoApplication{}).
		Where("video_job_id = ? AND user_id = ?", video.ID, actor.UserID).
		Count(&existing).Error; err != nil {
		respondError(c, err, "")
		return
	}
	if existing > 0 {
		Conflict(c, msgAlreadyApplied)
		return
	}

	var (
		key      string
		uploaded bool
	)
	if path := strings.TrimSpace(c.PostForm("cv_path")); path != "" {
		if !upload.OwnedBy(path, actor.UserID) {
			Forbidden(c, msgForbidden)
			return
		}
		key = path
	} else {
		file, ok := h.files.accept(c, "cv", storage.BucketCVUploads, upload.ApplicationCVRule)
		if !ok {
			return
		}
		key = upload.UserObjectKey(actor.UserID, file.Name, h.files.now())
		if err := h.files.put(ctx, storage.BucketCVUploads, key, file); err != nil {
			log.Error("upload video application cv failed", slog.Any("error", err))
			Internal(c, "Échec de l'upload")
			return
		}
		uploaded = true
	}

	fullName, email := applicant(c, actor)
	app := database.VideoApplication{
		VideoJobID: video.ID,
		UserID:     actor.UserID,
		FullName:   fullName,
		Email:      email,
		Message:    upload.SanitizeMessage(c.PostForm("message"), maxApplicationMessage),
		CVURL:      key,
	}
	if err := h.db.WithContext(ctx).Create(&app).Error; err != nil {
		if uploaded {
			h.files.remove(c, storage.BucketCVUploads, key)
		}
		if database.IsUniqueViolation(err) {
			Conflict(c, msgAlreadyApplied)
			return
		}
		respondError(c, err, "")
		return
	}

	metrics.ObserveApplication(string(events.KindVideo))
	log.Info("video application submitted", slog.Uint64("application_id", uint64(app.ID)))
	c.JSON(http.StatusOK, gin.H{"success": true, "path": key})
}

// MyCVURL 为自己的申请简历签发临时 URL；?kind=video 表示视频申请。
func (h *ApplicationHandler) MyCVURL(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var (
		resource any
		key      string
		err      error
	)
	if c.Query("kind") == string(events.KindVideo) {
		var app *database.VideoApplication
		app, err = h.apps.LoadVideoApplication(c.Request.Context(), id)
		if app != nil {
			resource, key = app, app.CVURL
		}
	} else {
		var app *database.Application
		app, err = h.apps.LoadApplication(c.Request.Context(), id)
		if app != nil {
			resource, key = app, app.CVURL
		}
	}
	if err != nil {
		respondError(c, err, msgApplicationMissing)
		return
	}
	if err := h.gate.Authorize(actor, policy.ActionView, resource); err != nil {
		respondError(c, err, "")
		return
	}
	h.files.writeSignedURL(c, storage.BucketCVUploads, key)
}
