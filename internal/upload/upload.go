// Package upload validates user supplied files before they reach object storage.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrEmpty       = errors.New("empty file")
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidType = errors.New("file type not allowed")
	ErrInvalidPDF  = errors.New("invalid pdf")
	ErrInfected    = errors.New("malicious file detected")
)

// Error carries the message returned to the client next to a sentinel error.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// Rule 描述一种上传文件的约束。
type Rule struct {
	MaxBytes     int64
	AllowedMIME  []string
	TooLargeMsg  string
	InvalidMsg   string
	RequirePages bool // 仅对嗅探为 PDF 的内容生效
}

const (
	MB = 1 << 20
)

var (
	LogoRule = Rule{
		MaxBytes:    5 * MB,
		AllowedMIME: []string{"image/png", "image/jpeg"},
		TooLargeMsg: "Logo trop lourd",
		InvalidMsg:  "Logo invalide",
	}
	SirenRule = Rule{
		MaxBytes:     10 * MB,
		AllowedMIME:  []string{"application/pdf"},
		TooLargeMsg:  "PDF trop lourd",
		InvalidMsg:   "PDF invalide",
		RequirePages: true,
	}
	CVRule = Rule{
		MaxBytes:     10 * MB,
		AllowedMIME:  []string{"application/pdf"},
		TooLargeMsg:  "Fichier trop volumineux",
		InvalidMsg:   "Seuls les fichiers PDF sont acceptés",
		RequirePages: true,
	}
	// ApplicationCVRule 用于职位申请，额外接受 Word 文档。
	ApplicationCVRule = Rule{
		MaxBytes: 10 * MB,
		AllowedMIME: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		},
		TooLargeMsg:  "Fichier trop volumineux",
		InvalidMsg:   "Type de fichier non autorisé",
		RequirePages: true,
	}
	VideoRule = Rule{
		MaxBytes:    100 * MB,
		AllowedMIME: []string{"video/mp4", "video/webm", "video/quicktime"},
		TooLargeMsg: "Vidéo trop lourde",
		InvalidMsg:  "Format vidéo non supporté",
	}
)

// File 是通过校验的文件内容。
type File struct {
	Name      string
	Data      []byte
	MIME      string
	Extension string
}

// Size returns the byte length of the file.
func (f *File) Size() int64 { return int64(len(f.Data)) }

// Reader returns a fresh reader over the content.
func (f *File) Reader() io.Reader { return bytes.NewReader(f.Data) }

// Scanner 对文件内容进行病毒扫描。
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// Validator applies a Rule to uploaded files.
type Validator struct {
	scanner Scanner
}

// NewValidator returns a validator. scanner may be nil to skip antivirus checks.
func NewValidator(scanner Scanner) *Validator {
	return &Validator{scanner: scanner}
}

// CheckHeader opens a multipart file and validates it.
func (v *Validator) CheckHeader(ctx context.Context, fh *multipart.FileHeader, rule Rule) (*File, error) {
	if fh == nil || fh.Size == 0 {
		return nil, &Error{Err: ErrEmpty, Message: "Fichier manquant"}
	}
	if rule.MaxBytes > 0 && fh.Size > rule.MaxBytes {
		return nil, &Error{Err: ErrTooLarge, Message: rule.TooLargeMsg}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return v.Check(ctx, fh.Filename, f, rule)
}

// Check 读取内容并按嗅探出的 MIME 类型校验，不信任客户端声明的类型或扩展名。
func (v *Validator) Check(ctx context.Context, name string, r io.Reader, rule Rule) (*File, error) {
	limit := rule.MaxBytes
	if limit <= 0 {
		limit = 100 * MB
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, &Error{Err: ErrEmpty, Message: "Fichier manquant"}
	}
	if int64(len(data)) > limit {
		return nil, &Error{Err: ErrTooLarge, Message: rule.TooLargeMsg}
	}

	detected := mimetype.Detect(data)
	if !mimetype.EqualsAny(detected.String(), rule.AllowedMIME...) {
		return nil, &Error{Err: ErrInvalidType, Message: rule.InvalidMsg}
	}

	if rule.RequirePages && detected.Is("application/pdf") {
		if err := CheckPDF(data); err != nil {
			return nil, &Error{Err: err, Message: rule.InvalidMsg}
		}
	}

	if v.scanner != nil {
		if err := v.scanner.Scan(ctx, bytes.NewReader(data)); err != nil {
			if errors.Is(err, ErrInfected) {
				return nil, &Error{Err: ErrInfected, Message: "Fichier malveillant détecté"}
			}
			return nil, fmt.Errorf("scan upload: %w", err)
		}
	}

	return &File{
		Name:      name,
		Data:      data,
		MIME:      detected.String(),
		Extension: detected.Extension(),
	}, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// SanitizeName 将文件名中除字母、数字、点、连字符外的字符替换为下划线。
func SanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return unsafeNameChars.ReplaceAllString(base, "_")
}

// UserObjectKey builds "<userID>/<unixMillis>_<sanitized name>".
func UserObjectKey(userID, name string, now time.Time) string {
	return fmt.Sprintf("%s/%d_%s", userID, now.UnixMilli(), SanitizeName(name))
}

// LogoObjectKey builds "recruiters/<userID>/logo<ext>".
func LogoObjectKey(userID, ext string) string {
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("recruiters/%s/logo%s", userID, ext)
}

// VideoObjectKey builds "admin/<unixMillis>-<sanitized name>".
func VideoObjectKey(name string, now time.Time) string {
	return fmt.Sprintf("admin/%d-%s", now.UnixMilli(), SanitizeName(name))
}

// OwnedBy reports whether key lives under the "<userID>/" prefix.
func OwnedBy(key, userID string) bool {
	if userID == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, userID+"/")
}
