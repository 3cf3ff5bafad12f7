package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// ClamdScanner streams content to a clamd daemon.
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner returns nil when address is empty so scanning stays optional.
func NewClamdScanner(address string) *ClamdScanner {
	if address == "" {
		return nil
	}
	return &ClamdScanner{client: clamd.NewClamd(address)}
}

// Scan 将内容发送给 clamd；发现病毒时返回 ErrInfected。
func (s *ClamdScanner) Scan(ctx context.Context, r io.Reader) error {
	abort := make(chan bool)
	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("clamd scan stream: %w", err)
	}
	defer close(abort)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				return nil
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				return fmt.Errorf("%w: %s", ErrInfected, result.Description)
			default:
				return fmt.Errorf("clamd: %s %s", result.Status, result.Description)
			}
		}
	}
}
