package storage

import (
	"errors"
	"strings"
	"testing"

	"ctonjob/internal/config"
)

func testConfig() config.MinIOConfig {
	return config.MinIOConfig{
		Endpoint:        "minio:9000",
		PublicEndpoint:  "https://files.example.com",
		AccessKeyID:     "access",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		Buckets: config.BucketsConfig{
			CompanyVerifications: "company-verifications",
			CVUploads:            "cv-uploads",
			CVPublic:             "cv-public",
			Logos:                "logos",
			VideoJob:             "video-job",
		},
	}
}

func TestPublicURL(t *testing.T) {
	client, err := NewClient(testConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got, err := client.PublicURL(BucketLogos, "recruiters/u1/logo.png")
	if err != nil {
		t.Fatalf("public url: %v", err)
	}
	if got != "https://files.example.com/logos/recruiters/u1/logo.png" {
		t.Fatalf("unexpected url %q", got)
	}

	if _, err := client.PublicURL(BucketCVUploads, "u1/cv.pdf"); !errors.Is(err, ErrPrivateBucket) {
		t.Fatalf("expected ErrPrivateBucket, got %v", err)
	}
}

func TestPresignedURLUsesPublicHostAndTTL(t *testing.T) {
	client, err := NewClient(testConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got, err := client.PresignedURL(t.Context(), BucketCVUploads, "u1/123_cv.pdf", SignedURLTTL)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(got, "https://files.example.com/") {
		t.Fatalf("expected public host, got %q", got)
	}
	if !strings.Contains(got, "X-Amz-Expires=60") {
		t.Fatalf("expected 60s expiry, got %q", got)
	}
}

func TestNewClientRejectsBadLookup(t *testing.T) {
	cfg := testConfig()
	cfg.BucketLookup = "weird"
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected error")
	}
}
