package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ctonjob/internal/api/middleware"
	"ctonjob/internal/events"
	"ctonjob/internal/metrics"
	"ctonjob/internal/services"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

// EventPublisher 是处理器发布领域事件所需的最小接口，由 *events.Bus 实现。
type EventPublisher interface {
	RecruiterSubmitted(evt events.RecruiterSubmitted)
	RecruiterStatusChanged(evt events.RecruiterStatusChanged)
	ApplicationSubmitted(evt events.ApplicationSubmitted)
	ApplicationStatusChanged(evt events.ApplicationStatusChanged)
}

type nopPublisher struct{}

func (nopPublisher) RecruiterSubmitted(events.RecruiterSubmitted)             {}
func (nopPublisher) RecruiterStatusChanged(events.RecruiterStatusChanged)     {}
func (nopPublisher) ApplicationSubmitted(events.ApplicationSubmitted)         {}
func (nopPublisher) ApplicationStatusChanged(events.ApplicationStatusChanged) {}

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// fileStore 封装校验后的上传与签名 URL 生成，供多个处理器复用。
type fileStore struct {
	store     storage.Store
	validator *upload.Validator
	now       func() time.Time
}

func newFileStore(store storage.Store, validator *upload.Validator) *fileStore {
	if validator == nil {
		validator = upload.NewValidator(nil)
	}
	return &fileStore{store: store, validator: validator, now: time.Now}
}

// accept 读取表单文件并按规则校验，失败时已写入响应。
func (f *fileStore) accept(c *gin.Context, field string, bucket storage.Bucket, rule upload.Rule) (*upload.File, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		BadRequest(c, "Fichier manquant")
		return nil, false
	}
	file, err := f.validator.CheckHeader(c.Request.Context(), fh, rule)
	if err != nil {
		metrics.ObserveUpload(string(bucket), "rejected")
		respondError(c, err, "")
		return nil, false
	}
	return file, true
}

// put 上传文件，记录指标。
func (f *fileStore) put(ctx context.Context, bucket storage.Bucket, key string, file *upload.File) error {
	if err := f.store.Upload(ctx, bucket, key, file.Reader(), file.Size(), file.MIME); err != nil {
		metrics.ObserveUpload(string(bucket), "error")
		return err
	}
	metrics.ObserveUpload(string(bucket), "accepted")
	return nil
}

// signedURL 每次请求都重新签发 60 秒有效的 URL，不做缓存。
func (f *fileStore) signedURL(ctx context.Context, bucket storage.Bucket, key string) (string, error) {
	return f.store.PresignedURL(ctx, bucket, key, storage.SignedURLTTL)
}

// remove 尽力删除对象，失败只记录 WARN。
func (f *fileStore) remove(c *gin.Context, bucket storage.Bucket, key string) {
	if key == "" {
		return
	}
	if err := f.store.Delete(c.Request.Context(), bucket, key); err != nil {
		middleware.LoggerFromContext(c).Warn("storage cleanup failed",
			slog.String("bucket", string(bucket)),
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

// writeSignedURL 响应 {"url": ..., "expires_in": 60}。
func (f *fileStore) writeSignedURL(c *gin.Context, bucket storage.Bucket, key string) {
	if key == "" {
		NotFound(c, "Document introuvable")
		return
	}
	url, err := f.signedURL(c.Request.Context(), bucket, key)
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign failed",
			slog.String("bucket", string(bucket)),
			slog.String("key", key),
			slog.Any("error", err),
		)
		Internal(c, "Impossible de générer le lien")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(storage.SignedURLTTL.Seconds())})
}

// recordModeration 写入审核日志，失败不影响请求结果。
func recordModeration(c *gin.Context, log *services.Moderation, action, targetType, targetID string, details map[string]any) {
	if log == nil {
		return
	}
	actorID, _ := userIDFromContext(c)
	if err := log.Record(c.Request.Context(), actorID, action, targetType, targetID, details); err != nil {
		middleware.LoggerFromContext(c).Warn("write moderation log failed",
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}
