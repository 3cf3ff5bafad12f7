package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ctonjob/internal/database"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) put(bucket storage.Bucket, key string) {
	s.objects[string(bucket)+"/"+key] = []byte("x")
}

func (s *fakeStore) has(bucket storage.Bucket, key string) bool {
	_, ok := s.objects[string(bucket)+"/"+key]
	return ok
}

func (s *fakeStore) Upload(_ context.Context, bucket storage.Bucket, key string, r io.Reader, _ int64, _ string) error {
	data, _ := io.ReadAll(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[string(bucket)+"/"+key] = data
	return nil
}

func (s *fakeStore) PresignedURL(_ context.Context, bucket storage.Bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.invalid/%s/%s?ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

func (s *fakeStore) PublicURL(bucket storage.Bucket, key string) (string, error) {
	return fmt.Sprintf("https://public.invalid/%s/%s", bucket, key), nil
}

func (s *fakeStore) Delete(_ context.Context, bucket storage.Bucket, key string) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, string(bucket)+"/"+key)
	return nil
}

func (s *fakeStore) DeletePrefix(_ context.Context, bucket storage.Bucket, prefix string) error {
	if s.failWith != nil {
		return s.failWith
	}
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

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func count(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestDeleteUserCascades(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	ctx := context.Background()

	doc := "u1/siren.pdf"
	db.Create(&database.User{ID: "u1", Email: "rh@acme.fr"})
	db.Create(&database.Profile{ID: "u1", Role: database.RoleRecruiter})
	recruiter := database.Recruiter{UserID: "u1", CompanyName: "ACME", Status: lifecycle.RecruiterApproved, LogoPath: "recruiters/u1/logo.png", DocSirenPath: &doc}
	db.Create(&recruiter)
	job := database.Job{RecruiterID: recruiter.ID, Title: "Dev", IsValid: true}
	db.Create(&job)
	db.Create(&database.Application{JobID: job.ID, UserID: "cand", RecruiterID: recruiter.ID})
	db.Create(&database.Application{JobID: 999, UserID: "u1"})
	db.Create(&database.VideoApplication{VideoJobID: 1, UserID: "u1"})
	db.Create(&database.Sector{Name: "BTP"})
	db.Create(&database.UserSector{UserID: "u1", SectorID: 1})

	store.put(storage.BucketCVPublic, "u1/cv.pdf")
	store.put(storage.BucketCVUploads, "u1/123_cv.pdf")
	store.put(storage.BucketCVUploads, "u10/keep.pdf")
	store.put(storage.BucketLogos, "recruiters/u1/logo.png")
	store.put(storage.BucketCompanyVerifications, doc)
	store.put(storage.BucketCompanyVerifications, "u1/1700000000000_old_siren.pdf")
	store.put(storage.BucketLogos, "recruiters/u1/logo.jpg")
	store.put(storage.BucketLogos, "recruiters/u10/logo.png")

	if err := NewAccounts(db, store, nil).DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	checks := []struct {
		name  string
		model any
		where string
		arg   any
	}{
		{"user", &database.User{}, "id = ?", "u1"},
		{"profile", &database.Profile{}, "id = ?", "u1"},
		{"recruiter", &database.Recruiter{}, "user_id = ?", "u1"},
		{"jobs", &database.Job{}, "recruiter_id = ?", recruiter.ID},
		{"applications to jobs", &database.Application{}, "job_id = ?", job.ID},
		{"own applications", &database.Application{}, "user_id = ?", "u1"},
		{"video applications", &database.VideoApplication{}, "user_id = ?", "u1"},
		{"sectors", &database.UserSector{}, "user_id = ?", "u1"},
	}
	for _, c := range checks {
		if n := count(t, db, c.model, c.where, c.arg); n != 0 {
			t.Errorf("%s: expected 0 rows, got %d", c.name, n)
		}
	}

	if store.has(storage.BucketCVPublic, "u1/cv.pdf") || store.has(storage.BucketCVUploads, "u1/123_cv.pdf") {
		t.Fatal("cv objects under the user prefix must be removed")
	}
	if store.has(storage.BucketLogos, "recruiters/u1/logo.png") || store.has(storage.BucketCompanyVerifications, doc) {
		t.Fatal("recruiter objects must be removed")
	}
	if store.has(storage.BucketCompanyVerifications, "u1/1700000000000_old_siren.pdf") || store.has(storage.BucketLogos, "recruiters/u1/logo.jpg") {
		t.Fatal("earlier uploads under the user prefix must be removed")
	}
	if !store.has(storage.BucketCVUploads, "u10/keep.pdf") || !store.has(storage.BucketLogos, "recruiters/u10/logo.png") {
		t.Fatal("objects of other users must survive")
	}
}

func TestDeleteUserIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	accounts := NewAccounts(db, newFakeStore(), nil)
	if err := accounts.DeleteUser(context.Background(), "ghost"); err != nil {
		t.Fatalf("deleting a missing user must succeed: %v", err)
	}
}

func TestDeleteUserStorageFailureIsNotSurfaced(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	store.failWith = errors.New("minio down")
	db.Create(&database.Profile{ID: "u2"})

	if err := NewAccounts(db, store, nil).DeleteUser(context.Background(), "u2"); err != nil {
		t.Fatalf("storage errors are best effort: %v", err)
	}
	if n := count(t, db, &database.Profile{}, "id = ?", "u2"); n != 0 {
		t.Fatal("profile must be deleted")
	}
}

func TestDeleteRecruiterKeepsProfile(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	db.Create(&database.Profile{ID: "u3", Role: database.RoleRecruiter})
	rec := database.Recruiter{UserID: "u3", CompanyName: "Beta", LogoPath: "recruiters/u3/logo.png"}
	db.Create(&rec)
	db.Create(&database.Job{RecruiterID: rec.ID, Title: "Ops"})
	store.put(storage.BucketLogos, "recruiters/u3/logo.png")

	accounts := NewAccounts(db, store, nil)
	if _, err := accounts.DeleteRecruiter(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete recruiter: %v", err)
	}

	var profile database.Profile
	if err := db.First(&profile, "id = ?", "u3").Error; err != nil {
		t.Fatalf("profile must remain: %v", err)
	}
	if profile.Role != database.RoleCandidate {
		t.Fatalf("expected role reset, got %s", profile.Role)
	}
	if n := count(t, db, &database.Job{}, "recruiter_id = ?", rec.ID); n != 0 {
		t.Fatal("jobs must be deleted")
	}
	if store.has(storage.BucketLogos, "recruiters/u3/logo.png") {
		t.Fatal("logo must be deleted")
	}

	if _, err := accounts.DeleteRecruiter(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideRecruiter(t *testing.T) {
	db := newTestDB(t)
	store := newFakeStore()
	doc := "u4/siren.pdf"
	store.put(storage.BucketCompanyVerifications, doc)
	rec := database.Recruiter{UserID: "u4", CompanyName: "Gamma", DocSirenPath: &doc}
	db.Create(&rec)

	svc := NewRecruiters(db, store, nil)
	got, err := svc.Decide(context.Background(), rec.ID, lifecycle.RecruiterApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != lifecycle.RecruiterApproved || got.DocSirenPath != nil {
		t.Fatalf("unexpected recruiter %+v", got)
	}
	if store.has(storage.BucketCompanyVerifications, doc) {
		t.Fatal("siren document must be removed after approval")
	}

	if _, err := svc.Decide(context.Background(), rec.ID, lifecycle.RecruiterRejected); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("approved is terminal, got %v", err)
	}
	if _, err := svc.Decide(context.Background(), 4242, lifecycle.RecruiterRejected); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmationTokenIsSingleUse(t *testing.T) {
	db := newTestDB(t)
	rec := database.Recruiter{UserID: "u5", CompanyName: "Delta"}
	db.Create(&rec)

	svc := NewRecruiters(db, nil, nil)
	ctx := context.Background()

	token, err := svc.IssueConfirmation(ctx, rec.ID, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var stored database.Recruiter
	db.First(&stored, rec.ID)
	if stored.ConfirmationTokenHash == nil || *stored.ConfirmationTokenHash == token.Plain {
		t.Fatal("only the hash may be stored")
	}

	got, err := svc.Confirm(ctx, token.Plain)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != lifecycle.RecruiterApproved || !got.IsConfirmed {
		t.Fatalf("unexpected recruiter %+v", got)
	}

	if _, err := svc.Confirm(ctx, token.Plain); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("replay must fail, got %v", err)
	}
}

func TestConfirmationTokenExpires(t *testing.T) {
	db := newTestDB(t)
	rec := database.Recruiter{UserID: "u6", CompanyName: "Epsilon"}
	db.Create(&rec)

	svc := NewRecruiters(db, nil, nil)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	token, err := svc.IssueConfirmation(context.Background(), rec.ID, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := svc.Confirm(context.Background(), token.Plain); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must fail, got %v", err)
	}

	var stored database.Recruiter
	db.First(&stored, rec.ID)
	if stored.Status != lifecycle.RecruiterPending {
		t.Fatalf("status must stay pending, got %s", stored.Status)
	}
}

func TestApplicationTransition(t *testing.T) {
	db := newTestDB(t)
	app := database.Application{JobID: 1, UserID: "c1", RecruiterID: 1}
	db.Create(&app)

	svc := NewApplications(db)
	ctx := context.Background()

	loaded, err := svc.LoadApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != lifecycle.ApplicationPending {
		t.Fatalf("default status must be en_attente, got %q", loaded.Status)
	}

	if err := svc.Transition(ctx, loaded, lifecycle.ApplicationDeclined, "Profil non retenu"); err != nil {
		t.Fatalf("decline: %v", err)
	}

	var stored database.Application
	db.First(&stored, app.ID)
	if stored.Status != lifecycle.ApplicationDeclined || stored.RejectionMessage != "Profil non retenu" {
		t.Fatalf("unexpected stored application %+v", stored)
	}

	// stale copy still believes the application is pending
	stale := &database.Application{ID: app.ID, Status: lifecycle.ApplicationPending}
	if err := svc.Transition(ctx, stale, lifecycle.ApplicationAccepted, ""); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("conditional update must reject, got %v", err)
	}
}

func TestVideoApplicationTransitionDropsMessageOnAccept(t *testing.T) {
	db := newTestDB(t)
	app := database.VideoApplication{VideoJobID: 1, UserID: "c2"}
	db.Create(&app)

	svc := NewApplications(db)
	loaded, err := svc.LoadVideoApplication(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := svc.Transition(context.Background(), loaded, lifecycle.ApplicationAccepted, "ignored"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if loaded.RejectionMessage != "" {
		t.Fatalf("message must be dropped on accept, got %q", loaded.RejectionMessage)
	}
}
