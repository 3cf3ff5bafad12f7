package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ctonjob/internal/api/middleware"
	"ctonjob/internal/database"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

const recommendationLimit = 20

// MeHandler 处理当前登录用户的资料、关注行业、公开简历与申请记录。
type MeHandler struct {
	db       *gorm.DB
	files    *fileStore
	accounts *services.Accounts
}

func NewMeHandler(db *gorm.DB, files *fileStore, accounts *services.Accounts) *MeHandler {
	return &MeHandler{db: db, files: files, accounts: accounts}
}

type meResponse struct {
	Profile         *database.Profile          `json:"profile"`
	CVPublicURL     string                     `json:"cv_public_url,omitempty"`
	RecruiterStatus *lifecycle.RecruiterStatus `json:"recruiter_status,omitempty"`
}

// GetMe 返回资料及招聘方状态（若存在）。
func (h *MeHandler) GetMe(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	resp := meResponse{Profile: actor.Profile}
	if actor.Profile.CVPublic != nil && *actor.Profile.CVPublic != "" {
		if url, err := h.files.store.PublicURL(storage.BucketCVPublic, *actor.Profile.CVPublic); err == nil {
			resp.CVPublicURL = url
		}
	}
	if actor.Recruiter != nil {
		status := actor.Recruiter.Status
		resp.RecruiterStatus = &status
	}
	c.JSON(http.StatusOK, resp)
}

type updateMeRequest struct {
	FullName   *string `json:"full_name" binding:"omitempty,max=255"`
	DesiredJob *string `json:"desired_job" binding:"omitempty,max=255"`
}

func (h *MeHandler) UpdateMe(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Données invalides")
		return
	}

	updates := map[string]any{}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			BadRequest(c, "Le nom est requis")
			return
		}
		updates["full_name"] = name
	}
	if req.DesiredJob != nil {
		updates["desired_job"] = strings.TrimSpace(*req.DesiredJob)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, actor.Profile)
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(&database.Profile{}).Where("id = ?", actor.UserID).Updates(updates).Error; err != nil {
		respondError(c, err, "")
		return
	}
	var profile database.Profile
	if err := h.db.WithContext(ctx).First(&profile, "id = ?", actor.UserID).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// DeleteMe 级联删除自己的账号。
func (h *MeHandler) DeleteMe(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if err := h.accounts.DeleteUser(c.Request.Context(), userID); err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *MeHandler) ListSectors(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var sectors []database.Sector
	err := h.db.WithContext(c.Request.Context()).
		Joins("JOIN user_sectors ON user_sectors.sector_id = sectors.id").
		Where("user_sectors.user_id = ?", userID).
		Order("sectors.name ASC").
		Find(&sectors).Error
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sectors})
}

// AddSector 关注行业，重复关注视为成功。
func (h *MeHandler) AddSector(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	sectorID, ok := parseIDParam(c, "sectorID")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var sector database.Sector
	if err := h.db.WithContext(ctx).First(&sector, sectorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Secteur introuvable")
			return
		}
		respondError(c, err, "")
		return
	}

	link := database.UserSector{UserID: userID, SectorID: sector.ID}
	if err := h.db.WithContext(ctx).Where(link).FirstOrCreate(&link).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, sector)
}

func (h *MeHandler) RemoveSector(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	sectorID, ok := parseIDParam(c, "sectorID")
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND sector_id = ?", userID, sectorID).
		Delete(&database.UserSector{}).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

// Recommendations 返回用户关注行业下的有效职位。
func (h *MeHandler) Recommendations(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	sectorIDs := h.db.WithContext(ctx).Model(&database.UserSector{}).Select("sector_id").Where("user_id = ?", userID)

	var jobs []database.Job
	if err := visibleJobs(h.db.WithContext(ctx)).
		Where("sector_id IN (?)", sectorIDs).
		Order("created_at DESC").
		Limit(recommendationLimit).
		Find(&jobs).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": jobs})
}

// UploadPublicCV 上传公开简历（cv_public），替换旧文件。
func (h *MeHandler) UploadPublicCV(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	file, ok := h.files.accept(c, "file", storage.BucketCVPublic, upload.CVRule)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("user_id", actor.UserID))
	key := upload.UserObjectKey(actor.UserID, file.Name, h.files.now())
	if err := h.files.put(ctx, storage.BucketCVPublic, key, file); err != nil {
		log.Error("upload public cv failed", slog.Any("error", err))
		Internal(c, "Échec de l'upload")
		return
	}

	if err := h.db.WithContext(ctx).Model(&database.Profile{}).
		Where("id = ?", actor.UserID).
		Update("cv_public", key).Error; err != nil {
		h.files.remove(c, storage.BucketCVPublic, key)
		respondError(c, err, "")
		return
	}
	if old := actor.Profile.CVPublic; old != nil && *old != "" && *old != key {
		h.files.remove(c, storage.BucketCVPublic, *old)
	}

	url, _ := h.files.store.PublicURL(storage.BucketCVPublic, key)
	c.JSON(http.StatusOK, gin.H{"path": key, "url": url})
}

func (h *MeHandler) DeletePublicCV(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if actor.Profile.CVPublic == nil || *actor.Profile.CVPublic == "" {
		NotFound(c, "Aucun CV public")
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&database.Profile{}).
		Where("id = ?", actor.UserID).
		Update("cv_public", nil).Error; err != nil {
		respondError(c, err, "")
		return
	}
	h.files.remove(c, storage.BucketCVPublic, *actor.Profile.CVPublic)
	c.Status(http.StatusNoContent)
}

// myApplication 合并职位申请与视频申请的展示结构。
type myApplication struct {
	ID               uint                        `json:"id"`
	Kind             string                      `json:"kind"`
	TargetID         uint                        `json:"target_id"`
	Title            string                      `json:"title"`
	Status           lifecycle.ApplicationStatus `json:"status"`
	StatusLabel      string                      `json:"status_label"`
	RejectionMessage string                      `json:"rejection_message,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
}

// ListApplications 返回两类申请，按时间倒序。
func (h *MeHandler) ListApplications(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()

	var apps []database.Application
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).Find(&apps).Error; err != nil {
		respondError(c, err, "")
		return
	}
	var videoApps []database.VideoApplication
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).Find(&videoApps).Error; err != nil {
		respondError(c, err, "")
		return
	}

	jobTitles, err := titlesByID[database.Job](h.db.WithContext(ctx), collectIDs(apps, func(a database.Application) uint { return a.JobID }))
	if err != nil {
		respondError(c, err, "")
		return
	}
	videoTitles, err := titlesByID[database.VideoJob](h.db.WithContext(ctx), collectIDs(videoApps, func(a database.VideoApplication) uint { return a.VideoJobID }))
	if err != nil {
		respondError(c, err, "")
		return
	}

	items := make([]myApplication, 0, len(apps)+len(videoApps))
	for _, a := range apps {
		items = append(items, myApplication{
			ID: a.ID, Kind: "job", TargetID: a.JobID, Title: jobTitles[a.JobID],
			Status: a.Status, StatusLabel: a.Status.Label(), RejectionMessage: a.RejectionMessage, CreatedAt: a.CreatedAt,
		})
	}
	for _, a := range videoApps {
		items = append(items, myApplication{
			ID: a.ID, Kind: "video", TargetID: a.VideoJobID, Title: videoTitles[a.VideoJobID],
			Status: a.Status, StatusLabel: a.Status.Label(), RejectionMessage: a.RejectionMessage, CreatedAt: a.CreatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func collectIDs[T any](rows []T, id func(T) uint) []uint {
	out := make([]uint, 0, len(rows))
	for _, r := range rows {
		out = append(out, id(r))
	}
	return out
}

// titlesByID 读取 jobs / video_jobs 的 id → title 映射。
func titlesByID[T database.Job | database.VideoJob](db *gorm.DB, ids []uint) (map[uint]string, error) {
	out := map[uint]string{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID    uint
		Title string
	}
	var model T
	if err := db.Model(&model).Select("id", "title").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.Title
	}
	return out, nil
}
