package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ctonjob/internal/database"
	"ctonjob/internal/policy"
)

const actorKey = "actor"

// ActorResolver loads the caller's profile and recruiter record.
type ActorResolver interface {
	Resolve(ctx context.Context, userID string) (*policy.Actor, error)
}

// ActorMiddleware 读取 Profile 解析调用者角色，必须位于 AuthMiddleware 之后。
func ActorMiddleware(resolver ActorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			abortUnauthorized(c, msgUnauthenticated)
			return
		}

		actor, err := resolver.Resolve(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, policy.ErrNoProfile) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Profil introuvable"})
				return
			}
			LoggerFromContext(c).Error("resolve actor failed", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Erreur serveur"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFromContext returns the actor set by ActorMiddleware.
func ActorFromContext(c *gin.Context) (*policy.Actor, bool) {
	value, ok := c.Get(actorKey)
	if !ok {
		return nil, false
	}
	actor, ok := value.(*policy.Actor)
	return actor, ok && actor != nil
}

// RequireAdmin 仅允许管理员访问。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok || !actor.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Accès réservé aux administrateurs"})
			return
		}
		c.Next()
	}
}

// RequireApprovedRecruiter 仅允许审核通过的招聘方访问（管理员除外不放行）。
func RequireApprovedRecruiter() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok || actor.Role != database.RoleRecruiter || actor.Recruiter == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Accès réservé aux recruteurs"})
			return
		}
		if !actor.IsApprovedRecruiter() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Compte recruteur non validé"})
			return
		}
		c.Next()
	}
}
