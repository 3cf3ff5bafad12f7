package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"ctonjob/internal/testutil"
)

type stubScanner struct {
	err   error
	calls int
}

func (s *stubScanner) Scan(_ context.Context, r io.Reader) error {
	s.calls++
	_, _ = io.Copy(io.Discard, r)
	return s.err
}

func TestCheckAcceptsPDF(t *testing.T) {
	v := NewValidator(nil)
	f, err := v.Check(context.Background(), "cv.pdf", bytes.NewReader(testutil.PDF(2*MB)), CVRule)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if f.MIME != "application/pdf" || f.Extension != ".pdf" {
		t.Fatalf("unexpected detection %s %s", f.MIME, f.Extension)
	}
}

func TestApplicationCVRuleAcceptsWordDocuments(t *testing.T) {
	v := NewValidator(nil)
	f, err := v.Check(context.Background(), "cv.docx", bytes.NewReader(testutil.DOCX()), ApplicationCVRule)
	if err != nil {
		t.Fatalf("docx should be accepted: %v", err)
	}
	if f.MIME != "application/vnd.openxmlformats-officedocument.wordprocessingml.document" {
		t.Fatalf("unexpected detection %s", f.MIME)
	}
	if _, err := v.Check(context.Background(), "cv.pdf", bytes.NewReader(testutil.PDF(1024)), ApplicationCVRule); err != nil {
		t.Fatalf("pdf should be accepted: %v", err)
	}

	// 公开简历仍然只接受 PDF
	_, err = v.Check(context.Background(), "cv.docx", bytes.NewReader(testutil.DOCX()), CVRule)
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType for docx under CVRule, got %v", err)
	}

	_, err = v.Check(context.Background(), "cv.docx", bytes.NewReader(testutil.PNG(512)), ApplicationCVRule)
	if !errors.Is(err, ErrInvalidType) || err.Error() != "Type de fichier non autorisé" {
		t.Fatalf("expected Type de fichier non autorisé, got %v", err)
	}
}

func TestCheckRejectsSpoofedContent(t *testing.T) {
	v := NewValidator(nil)
	// PNG content declared as cv.pdf
	_, err := v.Check(context.Background(), "cv.pdf", bytes.NewReader(testutil.PNG(1024)), CVRule)
	var uerr *Error
	if !errors.As(err, &uerr) || !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}

	// PDF content declared as logo.png
	_, err = v.Check(context.Background(), "logo.png", bytes.NewReader(testutil.PDF(1024)), LogoRule)
	if !errors.Is(err, ErrInvalidType) || err.Error() != "Logo invalide" {
		t.Fatalf("expected Logo invalide, got %v", err)
	}
}

func TestCheckRejectsOversizedLogo(t *testing.T) {
	v := NewValidator(nil)
	_, err := v.Check(context.Background(), "logo.png", bytes.NewReader(testutil.PNG(6*MB)), LogoRule)
	if !errors.Is(err, ErrTooLarge) || err.Error() != "Logo trop lourd" {
		t.Fatalf("expected Logo trop lourd, got %v", err)
	}
}

func TestCheckRejectsBrokenPDF(t *testing.T) {
	v := NewValidator(nil)
	_, err := v.Check(context.Background(), "doc.pdf", strings.NewReader("%PDF-1.4\nnot really a pdf"), SirenRule)
	if !errors.Is(err, ErrInvalidPDF) || err.Error() != "PDF invalide" {
		t.Fatalf("expected PDF invalide, got %v", err)
	}
}

func TestCheckEmpty(t *testing.T) {
	v := NewValidator(nil)
	if _, err := v.Check(context.Background(), "x", bytes.NewReader(nil), CVRule); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestCheckRunsScanner(t *testing.T) {
	scanner := &stubScanner{}
	v := NewValidator(scanner)
	if _, err := v.Check(context.Background(), "cv.pdf", bytes.NewReader(testutil.PDF(0)), CVRule); err != nil {
		t.Fatalf("check: %v", err)
	}
	if scanner.calls != 1 {
		t.Fatalf("expected scanner call, got %d", scanner.calls)
	}

	scanner.err = ErrInfected
	if _, err := v.Check(context.Background(), "cv.pdf", bytes.NewReader(testutil.PDF(0)), CVRule); !errors.Is(err, ErrInfected) {
		t.Fatalf("expected ErrInfected, got %v", err)
	}
}

func TestObjectKeys(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	if got := UserObjectKey("U1", "mon CV (final).pdf", now); got != "U1/1700000000123_mon_CV__final_.pdf" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := UserObjectKey("U1", "../../etc/passwd", now); got != "U1/1700000000123_passwd" {
		t.Fatalf("path traversal must be stripped, got %q", got)
	}
	if got := LogoObjectKey("U1", ".jpg"); got != "recruiters/U1/logo.jpg" {
		t.Fatalf("unexpected logo key %q", got)
	}
	if got := VideoObjectKey("présentation.mp4", now); got != "admin/1700000000123-pr_sentation.mp4" {
		t.Fatalf("unexpected video key %q", got)
	}
}

func TestOwnedBy(t *testing.T) {
	if !OwnedBy("U1/123_cv.pdf", "U1") {
		t.Fatal("expected ownership")
	}
	if OwnedBy("U10/123_cv.pdf", "U1") {
		t.Fatal("prefix must include separator")
	}
	if OwnedBy("U1/../U2/cv.pdf", "U1") {
		t.Fatal("dot segments must be rejected")
	}
}

func TestSanitizeMessage(t *testing.T) {
	got := SanitizeMessage("  <b>Bonjour</b>\x00 je suis\nmotivé <script>x</script> ", 0)
	if got != "Bonjour je suis\nmotivé x" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := SanitizeMessage("ééééé", 3); got != "ééé" {
		t.Fatalf("expected rune truncation, got %q", got)
	}
}
