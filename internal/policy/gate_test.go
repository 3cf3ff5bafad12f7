package policy

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ctonjob/internal/database"
	"ctonjob/internal/lifecycle"
)

func approvedRecruiter(userID string, recruiterID uint) *Actor {
	return &Actor{
		UserID:    userID,
		Role:      database.RoleRecruiter,
		Recruiter: &database.Recruiter{ID: recruiterID, UserID: userID, Status: lifecycle.RecruiterApproved},
	}
}

func TestGateJobOwnership(t *testing.T) {
	g := NewGate()
	job := &database.Job{ID: 1, RecruiterID: 7}

	if err := g.Authorize(approvedRecruiter("u1", 7), ActionUpdate, job); err != nil {
		t.Fatalf("owner should update: %v", err)
	}
	if err := g.Authorize(approvedRecruiter("u2", 8), ActionUpdate, job); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other recruiter must be forbidden, got %v", err)
	}

	pending := approvedRecruiter("u1", 7)
	pending.Recruiter.Status = lifecycle.RecruiterPending
	if err := g.Authorize(pending, ActionUpdate, job); !errors.Is(err, ErrForbidden) {
		t.Fatalf("pending recruiter must be forbidden, got %v", err)
	}

	admin := &Actor{UserID: "admin", Role: database.RoleAdmin}
	if err := g.Authorize(admin, ActionDelete, job); err != nil {
		t.Fatalf("admin bypass: %v", err)
	}
}

func TestGateApplications(t *testing.T) {
	g := NewGate()
	app := &database.Application{ID: 3, UserID: "cand", RecruiterID: 7}
	candidate := &Actor{UserID: "cand", Role: database.RoleCandidate}

	if err := g.Authorize(candidate, ActionView, app); err != nil {
		t.Fatalf("candidate should view own application: %v", err)
	}
	if err := g.Authorize(candidate, ActionDecide, app); !errors.Is(err, ErrForbidden) {
		t.Fatalf("candidate must not decide, got %v", err)
	}
	if err := g.Authorize(approvedRecruiter("r", 7), ActionDecide, app); err != nil {
		t.Fatalf("job owner should decide: %v", err)
	}

	video := &database.VideoApplication{ID: 4, UserID: "cand"}
	if err := g.Authorize(approvedRecruiter("r", 7), ActionDecide, video); !errors.Is(err, ErrForbidden) {
		t.Fatalf("video applications are admin only, got %v", err)
	}
}

func TestGateUnknownResource(t *testing.T) {
	g := NewGate()
	if err := g.Authorize(&Actor{UserID: "u"}, ActionView, struct{}{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unknown resource must be denied, got %v", err)
	}
	if err := g.Authorize(nil, ActionView, &database.Profile{ID: "u"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("nil actor must be denied, got %v", err)
	}
}

func TestResolver(t *testing.T) {
	var sqlLog bytes.Buffer
	db, err := gorm.Open(sqlite.Open("file:policy_resolver?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.New(log.New(&sqlLog, "", 0), logger.Config{LogLevel: logger.Error}),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db.Create(&database.Profile{ID: "u1", Role: database.RoleRecruiter})
	db.Create(&database.Recruiter{UserID: "u1", CompanyName: "ACME", Status: lifecycle.RecruiterApproved})
	db.Create(&database.Profile{ID: "u2", Role: database.RoleCandidate})

	r := NewResolver(db)
	ctx := context.Background()

	actor, err := r.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("resolve u1: %v", err)
	}
	if !actor.IsApprovedRecruiter() || actor.RecruiterID() == 0 {
		t.Fatalf("expected approved recruiter, got %+v", actor)
	}

	sqlLog.Reset()
	actor, err = r.Resolve(ctx, "u2")
	if err != nil {
		t.Fatalf("resolve u2: %v", err)
	}
	if actor.Recruiter != nil || actor.IsAdmin() {
		t.Fatalf("unexpected actor %+v", actor)
	}
	// 没有招聘方记录属于正常情况，不应写错误日志
	if sqlLog.Len() != 0 {
		t.Fatalf("unexpected gorm log output: %s", sqlLog.String())
	}

	if _, err := r.Resolve(ctx, "missing"); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
}
