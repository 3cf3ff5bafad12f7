package upload

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// CheckPDF parses the document structure and requires at least one page.
func CheckPDF(data []byte) (err error) {
	// 解析器在畸形输入上可能 panic。
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if reader.NumPage() < 1 {
		return fmt.Errorf("%w: no pages", ErrInvalidPDF)
	}
	return nil
}
