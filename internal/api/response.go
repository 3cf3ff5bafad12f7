package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ctonjob/internal/api/middleware"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/policy"
	"ctonjob/internal/services"
	"ctonjob/internal/upload"
)

const (
	msgInternal        = "Erreur serveur"
	msgUnauthenticated = "Utilisateur non authentifié"
	msgForbidden       = "Accès refusé"
	msgInvalidID       = "Identifiant invalide"
	msgInvalidStatus   = "Statut invalide"
	msgStatusFinal     = "Statut déjà défini"
	msgInvalidToken    = "Lien invalide ou expiré"
	msgBot             = "Bot détecté"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgUnauthenticated})
}

func Unauthorized(c *gin.Context)                { Error(c, http.StatusUnauthorized, msgUnauthenticated) }
func BadRequest(c *gin.Context, msg string)      { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)       { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)        { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)        { Error(c, http.StatusConflict, msg) }
func TooManyRequests(c *gin.Context, msg string) { Error(c, http.StatusTooManyRequests, msg) }
func Internal(c *gin.Context, msg string)        { Error(c, http.StatusInternalServerError, msg) }

// respondError 将领域错误映射为 HTTP 状态；未识别的错误记日志并返回 500。
func respondError(c *gin.Context, err error, notFoundMsg string) {
	var uploadErr *upload.Error
	switch {
	case errors.As(err, &uploadErr):
		BadRequest(c, uploadErr.Message)
	case errors.Is(err, services.ErrNotFound):
		NotFound(c, notFoundMsg)
	case errors.Is(err, services.ErrInvalidToken):
		BadRequest(c, msgInvalidToken)
	case errors.Is(err, policy.ErrForbidden):
		Forbidden(c, msgForbidden)
	case errors.Is(err, lifecycle.ErrUnknownStatus):
		BadRequest(c, msgInvalidStatus)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		Conflict(c, msgStatusFinal)
	default:
		middleware.LoggerFromContext(c).Error("request failed", slog.Any("error", err))
		Internal(c, msgInternal)
	}
}

func userIDFromContext(c *gin.Context) (string, bool) {
	return middleware.UserID(c)
}

// actorFromContext 读取 ActorMiddleware 注入的调用者，缺失时直接返回 401。
func actorFromContext(c *gin.Context) (*policy.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	return actor, true
}

// parseIDParam 解析路径中的数字 id，非法时写入 400。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, msgInvalidID)
		return 0, false
	}
	return uint(id), true
}

type page struct {
	Number int
	Size   int
}

func (p page) Offset() int { return (p.Number - 1) * p.Size }

// pageFromQuery reads ?page= (1-based) with a fixed page size.
func pageFromQuery(c *gin.Context, size int) page {
	n, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || n < 1 {
		n = 1
	}
	return page{Number: n, Size: size}
}
