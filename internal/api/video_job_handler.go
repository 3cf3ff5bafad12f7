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
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

// VideoJobHandler 管理员维护视频职位。
type VideoJobHandler struct {
	db         *gorm.DB
	files      *fileStore
	moderation *services.Moderation
}

func NewVideoJobHandler(db *gorm.DB, files *fileStore, moderation *services.Moderation) *VideoJobHandler {
	return &VideoJobHandler{db: db, files: files, moderation: moderation}
}

// UploadVideo 上传视频到 video_job（公开读），返回路径与 URL。
func (h *VideoJobHandler) UploadVideo(c *gin.Context) {
	file, ok := h.files.accept(c, "file", storage.BucketVideoJob, upload.VideoRule)
	if !ok {
		return
	}
	key := upload.VideoObjectKey(file.Name, h.files.now())
	if err := h.files.put(c.Request.Context(), storage.BucketVideoJob, key, file); err != nil {
		middleware.LoggerFromContext(c).Error("upload video failed", slog.Any("error", err))
		Internal(c, "Échec de l'upload de la vidéo")
		return
	}
	url, err := h.files.store.PublicURL(storage.BucketVideoJob, key)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": key, "url": url})
}

type videoJobRequest struct {
	Title        string `json:"title" binding:"required,max=255"`
	VideoPath    string `json:"video_path" binding:"required"`
	Location     string `json:"location" binding:"max=255"`
	ContractType string `json:"contract_type" binding:"max=64"`
	Salary       string `json:"salary" binding:"max=128"`
}

func (r videoJobRequest) apply(h *VideoJobHandler, v *database.VideoJob) error {
	path := strings.TrimSpace(r.VideoPath)
	if !strings.HasPrefix(path, "admin/") || strings.Contains(path, "..") {
		return &upload.Error{Err: upload.ErrInvalidType, Message: "Vidéo invalide"}
	}
	url, err := h.files.store.PublicURL(storage.BucketVideoJob, path)
	if err != nil {
		return err
	}
	v.Title = strings.TrimSpace(r.Title)
	v.VideoPath = path
	v.VideoURL = url
	v.Location = strings.TrimSpace(r.Location)
	v.ContractType = strings.TrimSpace(r.ContractType)
	v.Salary = strings.TrimSpace(r.Salary)
	return nil
}

func (h *VideoJobHandler) Create(c *gin.Context) {
	var req videoJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Champs requis manquants")
		return
	}
	var video database.VideoJob
	if err := req.apply(h, &video); err != nil {
		respondError(c, err, "")
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&video).Error; err != nil {
		respondError(c, err, "")
		return
	}
	recordModeration(c, h.moderation, services.ActionVideoJobCreated, "video_job", strconv.FormatUint(uint64(video.ID), 10), map[string]any{
		"title": video.Title,
	})
	c.JSON(http.StatusCreated, video)
}

func (h *VideoJobHandler) load(c *gin.Context) (*database.VideoJob, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var video database.VideoJob
	if err := h.db.WithContext(c.Request.Context()).First(&video, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, msgVideoJobNotFound)
			return nil, false
		}
		respondError(c, err, "")
		return nil, false
	}
	return &video, true
}

// Update 修改视频职位；更换视频后尽力删除旧文件。
func (h *VideoJobHandler) Update(c *gin.Context) {
	var req videoJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Champs requis manquants")
		return
	}
	video, ok := h.load(c)
	if !ok {
		return
	}
	oldPath := video.VideoPath
	if err := req.apply(h, video); err != nil {
		respondError(c, err, "")
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Save(video).Error; err != nil {
		respondError(c, err, "")
		return
	}
	if oldPath != "" && oldPath != video.VideoPath {
		h.files.remove(c, storage.BucketVideoJob, oldPath)
	}
	recordModeration(c, h.moderation, services.ActionVideoJobUpdated, "video_job", strconv.FormatUint(uint64(video.ID), 10), nil)
	c.JSON(http.StatusOK, video)
}

// Delete 删除视频职位及其申请，随后尽力删除视频文件。
func (h *VideoJobHandler) Delete(c *gin.Context) {
	video, ok := h.load(c)
	if !ok {
		return
	}
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_job_id = ?", video.ID).Delete(&database.VideoApplication{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.VideoJob{}, video.ID).Error
	})
	if err != nil {
		respondError(c, err, "")
		return
	}
	h.files.remove(c, storage.BucketVideoJob, video.VideoPath)
	recordModeration(c, h.moderation, services.ActionVideoJobDeleted, "video_job", strconv.FormatUint(uint64(video.ID), 10), map[string]any{
		"title": video.Title,
	})
	c.Status(http.StatusNoContent)
}
