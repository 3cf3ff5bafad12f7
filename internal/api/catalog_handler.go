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
	"ctonjob/internal/lifecycle"
)

const catalogPageSize = 20

// CatalogHandler 提供公开浏览接口：职位、视频职位、企业与行业。
type CatalogHandler struct {
	db *gorm.DB
}

func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

// companyView 是企业的公开字段，不含审核文件与确认信息。
type companyView struct {
	ID          uint   `json:"id"`
	CompanyName string `json:"company_name"`
	Sector      string `json:"sector"`
	Website     string `json:"website"`
	Description string `json:"description"`
	Size        string `json:"size"`
	Location    string `json:"location"`
	LogoURL     string `json:"logo_url"`
}

func toCompanyView(r database.Recruiter) companyView {
	return companyView{
		ID:          r.ID,
		CompanyName: r.CompanyName,
		Sector:      r.Sector,
		Website:     r.Website,
		Description: r.Description,
		Size:        r.Size,
		Location:    r.Location,
		LogoURL:     r.LogoURL,
	}
}

type jobView struct {
	database.Job
	Company *companyView `json:"company,omitempty"`
}

// visibleJobs 只返回已审核（is_valid）的职位。
func visibleJobs(db *gorm.DB) *gorm.DB {
	return db.Model(&database.Job{}).Where("is_valid = ?", true)
}

// ListJobs 支持 sector_id、location、type、q 过滤与分页。
func (h *CatalogHandler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	q := visibleJobs(h.db.WithContext(ctx))

	if raw := c.Query("sector_id"); raw != "" {
		sectorID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "Secteur invalide")
			return
		}
		q = q.Where("sector_id = ?", sectorID)
	}
	if loc := strings.TrimSpace(c.Query("location")); loc != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(loc)+"%")
	}
	if typ := strings.TrimSpace(c.Query("type")); typ != "" {
		q = q.Where("type = ?", typ)
	}
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		respondError(c, err, "")
		return
	}

	p := pageFromQuery(c, catalogPageSize)
	var jobs []database.Job
	if err := q.Order("created_at DESC, id DESC").Offset(p.Offset()).Limit(p.Size).Find(&jobs).Error; err != nil {
		respondError(c, err, "")
		return
	}

	items, err := h.withCompanies(c, jobs)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": p.Number})
}

// GetJob 返回单个有效职位，未审核的职位视为不存在。
func (h *CatalogHandler) GetJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var job database.Job
	if err := visibleJobs(h.db.WithContext(c.Request.Context())).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Offre introuvable")
			return
		}
		respondError(c, err, "")
		return
	}
	items, err := h.withCompanies(c, []database.Job{job})
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, items[0])
}

func (h *CatalogHandler) withCompanies(c *gin.Context, jobs []database.Job) ([]jobView, error) {
	ids := make([]uint, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.RecruiterID)
	}
	companies := map[uint]companyView{}
	if len(ids) > 0 {
		var recruiters []database.Recruiter
		if err := h.db.WithContext(c.Request.Context()).Where("id IN ?", ids).Find(&recruiters).Error; err != nil {
			return nil, err
		}
		for _, r := range recruiters {
			companies[r.ID] = toCompanyView(r)
		}
	}

	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := jobView{Job: j}
		if company, ok := companies[j.RecruiterID]; ok {
			v.Company = &company
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *CatalogHandler) ListVideoJobs(c *gin.Context) {
	var videos []database.VideoJob
	if err := h.db.WithContext(c.Request.Context()).Order("created_at DESC, id DESC").Find(&videos).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": videos})
}

func (h *CatalogHandler) GetVideoJob(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var video database.VideoJob
	if err := h.db.WithContext(c.Request.Context()).First(&video, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Offre vidéo introuvable")
			return
		}
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, video)
}

// ListCompanies 仅列出审核通过的企业。
func (h *CatalogHandler) ListCompanies(c *gin.Context) {
	var recruiters []database.Recruiter
	if err := h.db.WithContext(c.Request.Context()).
		Where("status = ?", lifecycle.RecruiterApproved).
		Order("company_name ASC").
		Find(&recruiters).Error; err != nil {
		respondError(c, err, "")
		return
	}
	items := make([]companyView, 0, len(recruiters))
	for _, r := range recruiters {
		items = append(items, toCompanyView(r))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetCompany 返回企业信息及其有效职位。
func (h *CatalogHandler) GetCompany(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var recruiter database.Recruiter
	if err := h.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, lifecycle.RecruiterApproved).
		First(&recruiter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Entreprise introuvable")
			return
		}
		respondError(c, err, "")
		return
	}

	var jobs []database.Job
	if err := visibleJobs(h.db.WithContext(ctx)).
		Where("recruiter_id = ?", recruiter.ID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list company jobs failed", slog.Any("error", err))
		Internal(c, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"company": toCompanyView(recruiter), "jobs": jobs})
}

func (h *CatalogHandler) ListSectors(c *gin.Context) {
	var sectors []database.Sector
	if err := h.db.WithContext(c.Request.Context()).Order("name ASC").Find(&sectors).Error; err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sectors})
}
