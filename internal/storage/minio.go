package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ctonjob/internal/config"
)

// SignedURLTTL 私有对象签名链接的有效期，每次请求重新签发。
const SignedURLTTL = 60 * time.Second

// Bucket 是逻辑 Bucket 名称，由 Client 映射到实际的 MinIO Bucket。
type Bucket string

const (
	BucketCompanyVerifications Bucket = "company_verifications"
	BucketCVUploads            Bucket = "cv_uploads"
	BucketCVPublic             Bucket = "cv_public"
	BucketLogos                Bucket = "logos"
	BucketVideoJob             Bucket = "video_job"
)

// Public reports whether objects in the bucket are readable without signature.
func (b Bucket) Public() bool {
	switch b {
	case BucketCVPublic, BucketLogos, BucketVideoJob:
		return true
	default:
		return false
	}
}

// AllBuckets lists every logical bucket.
var AllBuckets = []Bucket{
	BucketCompanyVerifications,
	BucketCVUploads,
	BucketCVPublic,
	BucketLogos,
	BucketVideoJob,
}

// ErrPrivateBucket is returned when a public URL is requested for a private bucket.
var ErrPrivateBucket = errors.New("bucket is private")

// Store 是处理器与服务依赖的对象存储接口，便于测试替换。
type Store interface {
	Upload(ctx context.Context, bucket Bucket, key string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, bucket Bucket, key string, ttl time.Duration) (string, error)
	PublicURL(bucket Bucket, key string) (string, error)
	Delete(ctx context.Context, bucket Bucket, key string) error
	DeletePrefix(ctx context.Context, bucket Bucket, prefix string) error
}

// Client 封装 MinIO 客户端，提供多 Bucket 的上传、签名与删除。
type Client struct {
	internalClient *minio.Client
	publicClient   *minio.Client
	publicBase     *url.URL
	region         string
	buckets        map[Bucket]string
}

var _ Store = (*Client)(nil)

// NewClient 根据配置初始化 MinIO 客户端。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	bucketLookup := minio.BucketLookupAuto
	switch strings.ToLower(strings.TrimSpace(cfg.BucketLookup)) {
	case "", "auto":
		bucketLookup = minio.BucketLookupAuto
	case "dns":
		bucketLookup = minio.BucketLookupDNS
	case "path":
		bucketLookup = minio.BucketLookupPath
	default:
		return nil, fmt.Errorf("invalid minio bucket lookup %q", cfg.BucketLookup)
	}

	internalClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	parsedPublicEndpoint, err := url.Parse(cfg.PublicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse minio public endpoint: %w", err)
	}
	if parsedPublicEndpoint.Host == "" {
		return nil, fmt.Errorf("invalid minio public endpoint, host missing")
	}

	// 签名链接由浏览器直接访问，必须使用对外域名签名。
	publicClient, err := minio.New(parsedPublicEndpoint.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       parsedPublicEndpoint.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init public minio client: %w", err)
	}

	return &Client{
		internalClient: internalClient,
		publicClient:   publicClient,
		publicBase:     parsedPublicEndpoint,
		region:         cfg.Region,
		buckets: map[Bucket]string{
			BucketCompanyVerifications: cfg.Buckets.CompanyVerifications,
			BucketCVUploads:            cfg.Buckets.CVUploads,
			BucketCVPublic:             cfg.Buckets.CVPublic,
			BucketLogos:                cfg.Buckets.Logos,
			BucketVideoJob:             cfg.Buckets.VideoJob,
		},
	}, nil
}

// EnsureBuckets 检查所有 Bucket 是否存在，按需创建，并为公开 Bucket 设置匿名只读策略。
func (c *Client) EnsureBuckets(ctx context.Context, autoCreate bool) error {
	for _, logical := range AllBuckets {
		name, err := c.bucketName(logical)
		if err != nil {
			return err
		}

		exists, err := c.internalClient.BucketExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check bucket %q: %w", name, err)
		}
		if !exists {
			if !autoCreate {
				return fmt.Errorf("bucket %q does not exist (auto create disabled)", name)
			}
			if err := c.internalClient.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: c.region}); err != nil {
				return fmt.Errorf("make bucket %q: %w", name, err)
			}
		}

		if logical.Public() {
			if err := c.internalClient.SetBucketPolicy(ctx, name, publicReadPolicy(name)); err != nil {
				return fmt.Errorf("set public policy on %q: %w", name, err)
			}
		}
	}
	return nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

func (c *Client) bucketName(b Bucket) (string, error) {
	name, ok := c.buckets[b]
	if !ok || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("unknown bucket %q", b)
	}
	return name, nil
}

// Upload 将对象写入指定 Bucket。
func (c *Client) Upload(ctx context.Context, bucket Bucket, key string, reader io.Reader, size int64, contentType string) error {
	name, err := c.bucketName(bucket)
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := c.internalClient.PutObject(ctx, name, key, reader, size, opts); err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// PresignedURL 生成对象的限时下载链接。
func (c *Client) PresignedURL(ctx context.Context, bucket Bucket, key string, ttl time.Duration) (string, error) {
	name, err := c.bucketName(bucket)
	if err != nil {
		return "", err
	}
	presignedURL, err := c.publicClient.PresignedGetObject(ctx, name, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("generate presigned url for %q: %w", key, err)
	}
	return presignedURL.String(), nil
}

// PublicURL 返回公开 Bucket 中对象的直链；私有 Bucket 返回 ErrPrivateBucket。
func (c *Client) PublicURL(bucket Bucket, key string) (string, error) {
	if !bucket.Public() {
		return "", ErrPrivateBucket
	}
	name, err := c.bucketName(bucket)
	if err != nil {
		return "", err
	}
	return c.publicBase.JoinPath(name, key).String(), nil
}

// Delete 删除指定对象。
// 若对象不存在会被视为成功（幂等）。
func (c *Client) Delete(ctx context.Context, bucket Bucket, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	name, err := c.bucketName(bucket)
	if err != nil {
		return err
	}
	if err := c.internalClient.RemoveObject(ctx, name, key, minio.RemoveObjectOptions{}); err != nil {
		if IsNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// DeletePrefix 删除指定前缀下的所有对象。
// 若某些对象已不存在会被忽略；其余错误会聚合返回。
func (c *Client) DeletePrefix(ctx context.Context, bucket Bucket, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}
	name, err := c.bucketName(bucket)
	if err != nil {
		return err
	}

	objCh := c.internalClient.ListObjects(ctx, name, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	keys := make([]string, 0, 32)
	for object := range objCh {
		if object.Err != nil {
			if IsNoSuchBucket(object.Err) {
				return nil
			}
			return fmt.Errorf("list objects under %q: %w", prefix, object.Err)
		}
		if strings.TrimSpace(object.Key) != "" {
			keys = append(keys, object.Key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	errs := make([]error, 0)
	for _, key := range keys {
		if err := c.Delete(ctx, bucket, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	slog.Default().Error("delete minio objects under prefix failed",
		slog.String("bucket", name),
		slog.String("prefix", prefix),
		slog.Int("failed_count", len(errs)),
	)
	return fmt.Errorf("delete objects under %q: %d errors", prefix, len(errs))
}
