package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ctonjob/internal/auth"
	"ctonjob/internal/config"
	"ctonjob/internal/database"
	"ctonjob/internal/events"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/ratelimit"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

type presignCall struct {
	bucket storage.Bucket
	key    string
	ttl    time.Duration
}

type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	presigns []presignCall
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) Upload(_ context.Context, bucket storage.Bucket, key string, r io.Reader, _ int64, _ string) error {
	data, _ := io.ReadAll(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[string(bucket)+"/"+key] = data
	return nil
}

func (s *fakeStorage) PresignedURL(_ context.Context, bucket storage.Bucket, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presigns = append(s.presigns, presignCall{bucket: bucket, key: key, ttl: ttl})
	return fmt.Sprintf("https://signed.invalid/%s/%s?X-Amz-Expires=%d", bucket, key, int(ttl.Seconds())), nil
}

func (s *fakeStorage) PublicURL(bucket storage.Bucket, key string) (string, error) {
	if !bucket.Public() {
		return "", storage.ErrPrivateBucket
	}
	return fmt.Sprintf("https://public.invalid/%s/%s", bucket, key), nil
}

func (s *fakeStorage) Delete(_ context.Context, bucket storage.Bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, string(bucket)+"/"+key)
	return nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, bucket storage.Bucket, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := string(bucket) + "/" + prefix
	for k := range s.objects {
		if strings.HasPrefix(k, full) {
			delete(s.objects, k)
		}
	}
	return nil
}

func (s *fakeStorage) has(bucket storage.Bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[string(bucket)+"/"+key]
	return ok
}

// recordingPublisher 记录发布的事件，供断言使用。
type recordingPublisher struct {
	mu                 sync.Mutex
	recruiterSubmitted []events.RecruiterSubmitted
	recruiterStatus    []events.RecruiterStatusChanged
	appSubmitted       []events.ApplicationSubmitted
	appStatus          []events.ApplicationStatusChanged
}

func (p *recordingPublisher) RecruiterSubmitted(e events.RecruiterSubmitted) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recruiterSubmitted = append(p.recruiterSubmitted, e)
}

func (p *recordingPublisher) RecruiterStatusChanged(e events.RecruiterStatusChanged) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recruiterStatus = append(p.recruiterStatus, e)
}

func (p *recordingPublisher) ApplicationSubmitted(e events.ApplicationSubmitted) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appSubmitted = append(p.appSubmitted, e)
}

func (p *recordingPublisher) ApplicationStatusChanged(e events.ApplicationStatusChanged) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appStatus = append(p.appStatus, e)
}

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
	store  *fakeStorage
	auth   *auth.AuthService
	events *recordingPublisher
	redis  *miniredis.Miniredis
}

var testKey struct {
	once sync.Once
	key  *rsa.PrivateKey
}

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKey.once.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		testKey.key = key
	})
	return testKey.key
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			LoginRateLimitPerHour: 10,
			LoginLockThreshold:    5,
			LoginLockTTL:          15 * time.Minute,
		},
		Recruiter: config.RecruiterConfig{
			ApprovalMode:    config.ApprovalModeAdmin,
			ConfirmationTTL: 48 * time.Hour,
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	key := signingKey(t)
	authService := auth.NewAuthServiceWithKey(key, &key.PublicKey, time.Minute, time.Hour)
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	env := &testEnv{
		t:      t,
		db:     newTestDB(t),
		store:  newFakeStorage(),
		auth:   authService,
		events: &recordingPublisher{},
		redis:  mr,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.router = NewRouter(cfg, logger)
	RegisterRoutes(env.router, Deps{
		Config:    cfg,
		DB:        env.db,
		Redis:     redisClient,
		Auth:      authService,
		Store:     env.store,
		Validator: upload.NewValidator(nil),
		Limiter:   ratelimit.NewMemoryLimiter(),
		Events:    env.events,
		Logger:    logger,
	})
	return env
}

// user 创建 User + Profile 并返回访问令牌。
func (e *testEnv) user(id string, role database.Role) string {
	e.t.Helper()
	email := id + "@example.fr"
	if err := e.db.Create(&database.User{ID: id, Email: email}).Error; err != nil {
		e.t.Fatalf("create user: %v", err)
	}
	if err := e.db.Create(&database.Profile{ID: id, FullName: "User " + id, Email: email, Role: role}).Error; err != nil {
		e.t.Fatalf("create profile: %v", err)
	}
	pair, err := e.auth.GenerateTokenPair(id, false)
	if err != nil {
		e.t.Fatalf("token: %v", err)
	}
	return pair.AccessToken
}

func (e *testEnv) recruiter(userID string, status lifecycle.RecruiterStatus) (*database.Recruiter, string) {
	e.t.Helper()
	token := e.user(userID, database.RoleRecruiter)
	r := &database.Recruiter{UserID: userID, CompanyName: "ACME " + userID, ContactName: "RH", Status: status}
	if err := e.db.Create(r).Error; err != nil {
		e.t.Fatalf("create recruiter: %v", err)
	}
	return r, token
}

func (e *testEnv) job(recruiterID uint, title string, valid bool) *database.Job {
	e.t.Helper()
	j := &database.Job{RecruiterID: recruiterID, Title: title, Location: "Lyon", Type: "CDI", Description: "desc", IsValid: valid}
	if err := e.db.Create(j).Error; err != nil {
		e.t.Fatalf("create job: %v", err)
	}
	return j
}

func (e *testEnv) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path, token string, payload any) *httptest.ResponseRecorder {
	e.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return e.do(method, path, token, body, "application/json")
}

type formFile struct {
	field, name string
	data        []byte
}

func (e *testEnv) doMultipart(path, token string, fields map[string]string, files ...formFile) *httptest.ResponseRecorder {
	e.t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			e.t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			e.t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			e.t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		e.t.Fatalf("close writer: %v", err)
	}
	return e.do(http.MethodPost, path, token, body, writer.FormDataContentType())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if got := decode(t, w)["error"]; got != msg {
		t.Fatalf("expected error %q, got %q", msg, got)
	}
}
