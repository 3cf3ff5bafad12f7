package database

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:db_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSeedSectorsIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	created, err := SeedSectors(db, DefaultSectors)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != len(DefaultSectors) {
		t.Fatalf("expected %d sectors, got %d", len(DefaultSectors), created)
	}

	created, err = SeedSectors(db, append(DefaultSectors, "Agriculture"))
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected only the new sector, got %d", created)
	}
}

func TestApplicationUniquePerJobAndUser(t *testing.T) {
	db := newTestDB(t)

	first := Application{JobID: 1, UserID: "u1"}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var stored Application
	db.First(&stored, first.ID)
	if stored.Status != "en_attente" {
		t.Fatalf("expected default status, got %q", stored.Status)
	}

	err := db.Create(&Application{JobID: 1, UserID: "u1"}).Error
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if err := db.Create(&Application{JobID: 2, UserID: "u1"}).Error; err != nil {
		t.Fatalf("other job should be allowed: %v", err)
	}
}

func TestUserGetsUUID(t *testing.T) {
	db := newTestDB(t)
	u := User{Email: "a@example.fr"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(u.ID) != 36 {
		t.Fatalf("expected uuid, got %q", u.ID)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{errors.New(`ERROR: duplicate key value violates unique constraint "idx" (SQLSTATE 23505)`), true},
		{errors.New("UNIQUE constraint failed: users.email"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Errorf("IsUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestGormLoggerIgnoresRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	dsn := fmt.Sprintf("file:db_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: NewGormLogger(&buf, logger.Warn)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	buf.Reset()

	var sector Sector
	if err := db.First(&sector, "name = ?", "absent").Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("record not found must not be logged: %s", buf.String())
	}

	if err := db.Exec("SELECT * FROM missing_table").Error; err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(buf.String(), "missing_table") {
		t.Fatalf("real errors must still be logged, got %q", buf.String())
	}
}
