package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ctonjob/internal/api/middleware"
	"ctonjob/internal/config"
	"ctonjob/internal/metrics"
)

// NewRouter 构建 Gin 引擎：恢复、Correlation ID、日志、CORS、指标，以及 /health 与 /metrics。
func NewRouter(cfg *config.Config, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		middleware.CORSMiddleware(cfg.API.Origins()),
		metrics.GinMiddleware(),
	)
	// 上传视频最大 100MB，multipart 超出内存部分落临时文件
	router.MaxMultipartMemory = 32 << 20

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
