// Package services holds the multi-table workflows shared by HTTP handlers and the admin CLI.
package services

import (
	"context"
	"errors"
	"log/slog"

	"ctonjob/internal/storage"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// objectRef 指向一个待清理的存储对象或前缀。
type objectRef struct {
	bucket storage.Bucket
	key    string
	prefix bool
}

// removeObjects 在事务提交之后尽力删除存储对象，失败只记录 WARN。
func removeObjects(ctx context.Context, store storage.Store, logger *slog.Logger, refs []objectRef) int {
	if store == nil {
		return 0
	}
	failed := 0
	for _, ref := range refs {
		if ref.key == "" {
			continue
		}
		var err error
		if ref.prefix {
			err = store.DeletePrefix(ctx, ref.bucket, ref.key)
		} else {
			err = store.Delete(ctx, ref.bucket, ref.key)
		}
		if err != nil {
			failed++
			logger.Warn("storage cleanup failed",
				slog.String("bucket", string(ref.bucket)),
				slog.String("key", ref.key),
				slog.Bool("prefix", ref.prefix),
				slog.Any("error", err),
			)
		}
	}
	return failed
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
