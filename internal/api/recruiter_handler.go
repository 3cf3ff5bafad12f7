package api

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ctonjob/internal/api/middleware"
	"ctonjob/internal/config"
	"ctonjob/internal/database"
	"ctonjob/internal/events"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/mail"
	"ctonjob/internal/metrics"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

var (
	phonePattern = regexp.MustCompile(`^\+?\d{6,15}$`)
	siretPattern = regexp.MustCompile(`^\d{14}$`)
	phoneNoise   = strings.NewReplacer(" ", "", ".", "", "-", "")
)

const msgRecruiterMissing = "Profil recruteur introuvable"

// RecruiterHandler 处理企业入驻：上传材料、提交资料、邮件确认与注销。
type RecruiterHandler struct {
	db              *gorm.DB
	files           *fileStore
	recruiters      *services.Recruiters
	accounts        *services.Accounts
	events          EventPublisher
	approvalMode    string
	confirmationTTL time.Duration
}

func NewRecruiterHandler(db *gorm.DB, files *fileStore, recruiters *services.Recruiters, accounts *services.Accounts, publisher EventPublisher, cfg config.RecruiterConfig) *RecruiterHandler {
	mode := cfg.ApprovalMode
	if mode == "" {
		mode = config.ApprovalModeAdmin
	}
	ttl := cfg.ConfirmationTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RecruiterHandler{
		db:              db,
		files:           files,
		recruiters:      recruiters,
		accounts:        accounts,
		events:          publisherOrNop(publisher),
		approvalMode:    mode,
		confirmationTTL: ttl,
	}
}

func (h *RecruiterHandler) emailMode() bool { return h.approvalMode == config.ApprovalModeEmail }

// Uploads 上传 logo（必填）与 SIREN 证明（管理员审核模式下必填）。
// 表单中的 website 字段是蜜罐，必须为空。
func (h *RecruiterHandler) Uploads(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if strings.TrimSpace(c.PostForm("website")) != "" {
		BadRequest(c, msgBot)
		return
	}

	logo, ok := h.files.accept(c, "logo", storage.BucketLogos, upload.LogoRule)
	if !ok {
		return
	}

	var doc *upload.File
	if _, err := c.FormFile("file"); err == nil || !h.emailMode() {
		doc, ok = h.files.accept(c, "file", storage.BucketCompanyVerifications, upload.SirenRule)
		if !ok {
			return
		}
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("user_id", userID))

	logoKey := upload.LogoObjectKey(userID, logo.Extension)
	if err := h.files.put(ctx, storage.BucketLogos, logoKey, logo); err != nil {
		log.Error("upload logo failed", slog.Any("error", err))
		Internal(c, "Échec de l'upload du logo")
		return
	}
	logoURL, err := h.files.store.PublicURL(storage.BucketLogos, logoKey)
	if err != nil {
		respondError(c, err, "")
		return
	}

	var pdfPath string
	if doc != nil {
		pdfPath = upload.UserObjectKey(userID, doc.Name, h.files.now())
		if err := h.files.put(ctx, storage.BucketCompanyVerifications, pdfPath, doc); err != nil {
			log.Error("upload siren document failed", slog.Any("error", err))
			Internal(c, "Échec de l'upload du PDF")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"logoUrl": logoURL, "logoPath": logoKey, "pdfPath": pdfPath})
}

type createRecruiterRequest struct {
	CompanyName  string `json:"company_name"`
	ContactName  string `json:"contact_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Sector       string `json:"sector"`
	Website      string `json:"website"`
	Description  string `json:"description"`
	Size         string `json:"size"`
	Location     string `json:"location"`
	Siret        string `json:"siret"`
	AcceptedCGU  bool   `json:"accepted_cgu"`
	LogoPath     string `json:"logo_path"`
	DocSirenPath string `json:"docsiren_path"`
	Honeypot     string `json:"honeypot"`
}

// validate 返回第一个校验失败的提示；通过时规范化 phone 与 siret。
func (r *createRecruiterRequest) validate(userID string, emailMode bool) string {
	if strings.TrimSpace(r.Honeypot) != "" {
		return msgBot
	}
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.ContactName = strings.TrimSpace(r.ContactName)
	if r.CompanyName == "" || r.ContactName == "" || strings.TrimSpace(r.Sector) == "" || strings.TrimSpace(r.Location) == "" {
		return "Champs requis manquants"
	}
	r.Phone = phoneNoise.Replace(strings.TrimSpace(r.Phone))
	if !phonePattern.MatchString(r.Phone) {
		return "Numéro de téléphone invalide"
	}
	r.Siret = strings.ReplaceAll(r.Siret, " ", "")
	if !siretPattern.MatchString(r.Siret) {
		return "SIRET invalide (14 chiffres)"
	}
	if !r.AcceptedCGU {
		return "Vous devez accepter les CGU"
	}
	if r.LogoPath == "" || !strings.HasPrefix(r.LogoPath, "recruiters/"+userID+"/") {
		return "Logo requis"
	}
	if r.DocSirenPath != "" && !upload.OwnedBy(r.DocSirenPath, userID) {
		return "Document invalide"
	}
	if !emailMode && r.DocSirenPath == "" {
		return "Justificatif SIREN requis"
	}
	if emailMode && !mail.IsProfessionalEmail(r.Email) {
		return "Veuillez utiliser une adresse email professionnelle"
	}
	return ""
}

// Create 提交企业资料，状态为 pending，并将资料角色设为 recruiter。
// 邮件确认模式下生成确认令牌并异步发送确认邮件。
func (h *RecruiterHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req createRecruiterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Données invalides")
		return
	}
	if req.Email == "" {
		req.Email = actor.Profile.Email
	}
	if msg := req.validate(actor.UserID, h.emailMode()); msg != "" {
		BadRequest(c, msg)
		return
	}
	if actor.Recruiter != nil {
		Conflict(c, "Profil recruteur déjà existant")
		return
	}
	if actor.IsAdmin() {
		Forbidden(c, msgForbidden)
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("user_id", actor.UserID))

	recruiter := database.Recruiter{
		UserID:      actor.UserID,
		CompanyName: req.CompanyName,
		ContactName: req.ContactName,
		Phone:       req.Phone,
		Sector:      strings.TrimSpace(req.Sector),
		Website:     strings.TrimSpace(req.Website),
		Description: upload.SanitizeMessage(req.Description, 5000),
		Size:        strings.TrimSpace(req.Size),
		Location:    strings.TrimSpace(req.Location),
		Siret:       req.Siret,
		Status:      lifecycle.RecruiterPending,
		LogoPath:    req.LogoPath,
		AcceptedCGU: true,
	}
	// logo_url 只由服务端根据已校验的 logo_path 生成
	logoURL, err := h.files.store.PublicURL(storage.BucketLogos, req.LogoPath)
	if err != nil {
		respondError(c, err, "")
		return
	}
	recruiter.LogoURL = logoURL
	if req.DocSirenPath != "" {
		doc := req.DocSirenPath
		recruiter.DocSirenPath = &doc
	}

	// 邮件模式下令牌哈希随记录一起写入，避免出现没有令牌的 pending 记录
	var token lifecycle.ConfirmationToken
	if h.emailMode() {
		token, err = lifecycle.NewConfirmationToken(h.files.now(), h.confirmationTTL)
		if err != nil {
			log.Error("issue confirmation token failed", slog.Any("error", err))
			Internal(c, msgInternal)
			return
		}
		recruiter.ConfirmationTokenHash = &token.Hash
		recruiter.ConfirmationExpiresAt = &token.ExpiresAt
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&recruiter).Error; err != nil {
			return err
		}
		return tx.Model(&database.Profile{}).
			Where("id = ?", actor.UserID).
			Update("role", database.RoleRecruiter).Error
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			Conflict(c, "Profil recruteur déjà existant")
			return
		}
		respondError(c, err, "")
		return
	}
	log.Info("recruiter submitted", slog.Uint64("recruiter_id", uint64(recruiter.ID)))

	evt := events.RecruiterSubmitted{
		RecruiterID:   recruiter.ID,
		UserID:        actor.UserID,
		Email:         strings.TrimSpace(req.Email),
		ContactName:   recruiter.ContactName,
		CompanyName:   recruiter.CompanyName,
		CorrelationID: middleware.GetCorrelationID(c),
	}
	if h.emailMode() {
		evt.Token = token.Plain
	}
	h.events.RecruiterSubmitted(evt)

	c.JSON(http.StatusCreated, recruiter)
}

// Get 返回自己的招聘方记录。
func (h *RecruiterHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if actor.Recruiter == nil {
		NotFound(c, msgRecruiterMissing)
		return
	}
	c.JSON(http.StatusOK, actor.Recruiter)
}

// ResendConfirmation 重新生成令牌并发送确认邮件，旧令牌随之失效。
func (h *RecruiterHandler) ResendConfirmation(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if !h.emailMode() {
		BadRequest(c, "Confirmation par email désactivée")
		return
	}
	if actor.Recruiter == nil {
		NotFound(c, msgRecruiterMissing)
		return
	}
	if actor.Recruiter.Status != lifecycle.RecruiterPending {
		Conflict(c, msgStatusFinal)
		return
	}

	token, err := h.recruiters.IssueConfirmation(c.Request.Context(), actor.Recruiter.ID, h.confirmationTTL)
	if err != nil {
		respondError(c, err, msgRecruiterMissing)
		return
	}
	h.events.RecruiterSubmitted(events.RecruiterSubmitted{
		RecruiterID:   actor.Recruiter.ID,
		UserID:        actor.UserID,
		Email:         actor.Profile.Email,
		ContactName:   actor.Recruiter.ContactName,
		CompanyName:   actor.Recruiter.CompanyName,
		Token:         token.Plain,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type confirmRequest struct {
	Token string `json:"token" binding:"required"`
}

// Confirm 消费确认令牌（公开接口）。
func (h *RecruiterHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, msgInvalidToken)
		return
	}
	recruiter, err := h.recruiters.Confirm(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err, "")
		return
	}

	metrics.ObserveTransition("recruiter", string(recruiter.Status))
	middleware.LoggerFromContext(c).Info("recruiter confirmed", slog.Uint64("recruiter_id", uint64(recruiter.ID)))
	h.events.RecruiterStatusChanged(events.RecruiterStatusChanged{
		RecruiterID:   recruiter.ID,
		UserID:        recruiter.UserID,
		CompanyName:   recruiter.CompanyName,
		Status:        recruiter.Status,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "status": recruiter.Status})
}

// DeleteDocument 删除自己的 SIREN 文件；?path= 若提供必须与记录一致。
func (h *RecruiterHandler) DeleteDocument(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if actor.Recruiter == nil {
		NotFound(c, msgRecruiterMissing)
		return
	}
	doc := actor.Recruiter.DocSirenPath
	if doc == nil || *doc == "" {
		NotFound(c, "Document introuvable")
		return
	}
	if p := c.Query("path"); p != "" && p != *doc {
		Forbidden(c, msgForbidden)
		return
	}
	if err := clearSirenDocument(c, h.db, actor.Recruiter.ID); err != nil {
		respondError(c, err, "")
		return
	}
	h.files.remove(c, storage.BucketCompanyVerifications, *doc)
	c.Status(http.StatusNoContent)
}

func clearSirenDocument(c *gin.Context, db *gorm.DB, recruiterID uint) error {
	return db.WithContext(c.Request.Context()).Model(&database.Recruiter{}).
		Where("id = ?", recruiterID).
		Update("doc_siren_path", nil).Error
}

// Delete 注销自己的招聘方账号（职位与申请一并删除），用户账号保留。
func (h *RecruiterHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if actor.Recruiter == nil {
		NotFound(c, msgRecruiterMissing)
		return
	}
	if _, err := h.accounts.DeleteRecruiter(c.Request.Context(), actor.Recruiter.ID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			NotFound(c, msgRecruiterMissing)
			return
		}
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
