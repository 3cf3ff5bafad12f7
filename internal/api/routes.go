package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"ctonjob/internal/api/middleware"
	"ctonjob/internal/auth"
	"ctonjob/internal/config"
	"ctonjob/internal/policy"
	"ctonjob/internal/ratelimit"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

// Deps 汇总路由注册所需的依赖。
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     redis.UniversalClient
	Auth      *auth.AuthService
	Store     storage.Store
	Validator *upload.Validator
	Limiter   ratelimit.Limiter
	Events    EventPublisher
	Logger    *slog.Logger
}

// RegisterRoutes 注册 /v1 下的全部路由。
func RegisterRoutes(router *gin.Engine, d Deps) {
	cfg := d.Config
	files := newFileStore(d.Store, d.Validator)
	gate := policy.NewGate()
	accounts := services.NewAccounts(d.DB, d.Store, d.Logger)
	recruiterSvc := services.NewRecruiters(d.DB, d.Store, d.Logger)
	appSvc := services.NewApplications(d.DB)
	moderation := services.NewModeration(d.DB)

	authHandler := NewAuthHandler(d.DB, d.Auth, d.Redis, d.Logger,
		cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL, cfg.Auth.CookieDomain)
	wsHandler := NewWsHandler(d.Redis, d.Auth, d.Logger, cfg.API.Origins())
	catalog := NewCatalogHandler(d.DB)
	me := NewMeHandler(d.DB, files, accounts)
	applications := NewApplicationHandler(d.DB, files, appSvc, gate, d.Events)
	recruiter := NewRecruiterHandler(d.DB, files, recruiterSvc, accounts, d.Events, cfg.Recruiter)
	workspace := NewWorkspaceHandler(d.DB, files, appSvc, gate, d.Events)
	admin := NewAdminHandler(AdminDeps{
		DB:         d.DB,
		Files:      files,
		Accounts:   accounts,
		Recruiters: recruiterSvc,
		Apps:       appSvc,
		Moderation: moderation,
		Gate:       gate,
		Events:     d.Events,
	})
	videoJobs := NewVideoJobHandler(d.DB, files, moderation)

	authMiddleware := middleware.AuthMiddleware(d.Auth)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()
	actor := middleware.ActorMiddleware(policy.NewResolver(d.DB))
	limit := func(rule ratelimit.Rule, key middleware.KeyFunc) gin.HandlerFunc {
		return middleware.RateLimit(d.Limiter, rule, key)
	}
	perUser := limit(ratelimit.Default, middleware.ByUser)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/signup", limit(ratelimit.Signup, middleware.ByIP), authHandler.Signup)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/password", authMiddleware, authHandler.ChangePassword)
		}

		v1.GET("/jobs", catalog.ListJobs)
		v1.GET("/jobs/:id", catalog.GetJob)
		v1.GET("/video-jobs", catalog.ListVideoJobs)
		v1.GET("/video-jobs/:id", catalog.GetVideoJob)
		v1.GET("/companies", catalog.ListCompanies)
		v1.GET("/companies/:id", catalog.GetCompany)
		v1.GET("/sectors", catalog.ListSectors)
		v1.POST("/recruiters/confirm", recruiter.Confirm)

		authed := v1.Group("")
		authed.Use(authMiddleware, passwordGate, actor)
		{
			meGroup := authed.Group("/me")
			{
				meGroup.GET("", me.GetMe)
				meGroup.PATCH("", me.UpdateMe)
				meGroup.DELETE("", me.DeleteMe)
				meGroup.GET("/sectors", me.ListSectors)
				meGroup.PUT("/sectors/:sectorID", me.AddSector)
				meGroup.DELETE("/sectors/:sectorID", me.RemoveSector)
				meGroup.GET("/recommendations", me.Recommendations)
				meGroup.POST("/cv-public", perUser, me.UploadPublicCV)
				meGroup.DELETE("/cv-public", me.DeletePublicCV)
				meGroup.GET("/applications", me.ListApplications)
				meGroup.GET("/applications/:id/cv-url", applications.MyCVURL)
			}

			authed.POST("/uploads/cv", perUser, applications.UploadCV)
			authed.POST("/applications", perUser, applications.ApplyJob)
			authed.POST("/video-jobs/:id/applications", perUser, applications.ApplyVideoJob)

			recruiterGroup := authed.Group("/recruiter")
			{
				recruiterGroup.POST("/uploads", perUser, recruiter.Uploads)
				recruiterGroup.POST("", recruiter.Create)
				recruiterGroup.GET("", recruiter.Get)
				recruiterGroup.POST("/confirmation", recruiter.ResendConfirmation)
				recruiterGroup.DELETE("/document", recruiter.DeleteDocument)
				recruiterGroup.DELETE("", recruiter.Delete)

				workspaceGroup := recruiterGroup.Group("")
				workspaceGroup.Use(middleware.RequireApprovedRecruiter())
				{
					workspaceGroup.POST("/jobs", limit(ratelimit.PostJob, middleware.ByUser), workspace.CreateJob)
					workspaceGroup.GET("/jobs", workspace.ListJobs)
					workspaceGroup.PUT("/jobs/:id", workspace.UpdateJob)
					workspaceGroup.DELETE("/jobs/:id", workspace.DeleteJob)
					workspaceGroup.GET("/applications", workspace.ListApplications)
					workspaceGroup.PATCH("/applications/:id/status", workspace.UpdateApplicationStatus)
					workspaceGroup.GET("/applications/:id/cv-url", workspace.ApplicationCVURL)
					workspaceGroup.GET("/candidates", workspace.ListCandidates)
					workspaceGroup.GET("/candidates/:id/cv-url", workspace.CandidateCVURL)
				}
			}

			adminGroup := authed.Group("/admin")
			adminGroup.Use(middleware.RequireAdmin())
			{
				adminGroup.GET("/users", admin.ListUsers)
				adminGroup.GET("/users/export", admin.ExportUsers)
				adminGroup.DELETE("/users/:id", admin.DeleteUser)

				adminGroup.GET("/recruiters", admin.ListRecruiters)
				adminGroup.POST("/recruiters/:id/approve", admin.ApproveRecruiter)
				adminGroup.POST("/recruiters/:id/reject", admin.RejectRecruiter)
				adminGroup.GET("/recruiters/:id/document-url", admin.RecruiterDocumentURL)
				adminGroup.DELETE("/recruiters/:id/document", admin.DeleteRecruiterDocument)
				adminGroup.DELETE("/recruiters/:id", admin.DeleteRecruiter)

				adminGroup.GET("/jobs", admin.ListJobs)
				adminGroup.PATCH("/jobs/:id/validity", admin.SetJobValidity)
				adminGroup.DELETE("/jobs/:id", admin.DeleteJob)

				adminGroup.POST("/video-jobs/upload", perUser, videoJobs.UploadVideo)
				adminGroup.POST("/video-jobs", limit(ratelimit.CreateVideo, middleware.ByUser), videoJobs.Create)
				adminGroup.PUT("/video-jobs/:id", videoJobs.Update)
				adminGroup.DELETE("/video-jobs/:id", videoJobs.Delete)

				adminGroup.GET("/applications", admin.ListApplications)
				adminGroup.PATCH("/applications/:id/status", admin.UpdateApplicationStatus)

				adminGroup.GET("/video-applications", admin.ListVideoApplications)
				adminGroup.PATCH("/video-applications/:id/status", admin.UpdateVideoApplicationStatus)
				adminGroup.DELETE("/video-applications/:id", admin.DeleteVideoApplication)
				adminGroup.GET("/video-applications/:id/cv-url", admin.VideoApplicationCVURL)

				adminGroup.GET("/moderation-log", admin.ModerationLog)
			}
		}
	}
}
