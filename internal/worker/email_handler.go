package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"ctonjob/internal/errcode"
	"ctonjob/internal/events"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/mail"
	"ctonjob/internal/tasks"
)

// EmailTaskHandler 负责消费邮件任务。
type EmailTaskHandler struct {
	sender          mail.Sender
	notifier        events.Notifier
	logger          *slog.Logger
	siteURL         string
	confirmationTTL time.Duration
}

// NewEmailTaskHandler 创建任务处理器。notifier 可为 nil。
func NewEmailTaskHandler(sender mail.Sender, notifier events.Notifier, logger *slog.Logger, siteURL string, confirmationTTL time.Duration) *EmailTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailTaskHandler{
		sender:          sender,
		notifier:        notifier,
		logger:          logger,
		siteURL:         strings.TrimRight(strings.TrimSpace(siteURL), "/"),
		confirmationTTL: confirmationTTL,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *EmailTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	switch t.Type() {
	case tasks.TypeRecruiterConfirmation:
		return h.recruiterConfirmation(ctx, t.Payload())
	case tasks.TypeRecruiterDecision:
		return h.recruiterDecision(ctx, t.Payload())
	case tasks.TypeApplicationDecision:
		return h.applicationDecision(ctx, t.Payload())
	default:
		return fmt.Errorf("unexpected task type %q: %w", t.Type(), asynq.SkipRetry)
	}
}

func (h *EmailTaskHandler) recruiterConfirmation(ctx context.Context, raw []byte) (retErr error) {
	var payload tasks.RecruiterConfirmationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("recruiter_id", uint64(payload.RecruiterID)),
	)

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		// 最后一次重试仍失败时提示前端可以重新发送确认邮件
		h.notifyFailure(ctx, log, payload.UserID, events.Notification{
			Type:          "recruiter_confirmation_email",
			ResourceID:    payload.RecruiterID,
			Status:        "error",
			Message:       "Impossible d'envoyer l'email de confirmation",
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.DeliveryFailed,
		})
	}()

	link := mail.ConfirmationLink(h.siteURL, payload.Token)
	msg := mail.RecruiterConfirmation(payload.Email, payload.ContactName, payload.CompanyName, link, int(h.confirmationTTL.Hours()))
	if err := h.sender.Send(ctx, msg); err != nil {
		log.Error("send confirmation email failed", slog.Any("error", err))
		return err
	}

	log.Info("confirmation email sent")
	return nil
}

func (h *EmailTaskHandler) recruiterDecision(ctx context.Context, raw []byte) error {
	var payload tasks.RecruiterDecisionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}

	approved := lifecycle.RecruiterStatus(payload.Status) == lifecycle.RecruiterApproved
	msg := mail.RecruiterDecision(payload.Email, payload.CompanyName, approved)
	if err := h.sender.Send(ctx, msg); err != nil {
		h.logger.Error("send recruiter decision email failed",
			slog.String("correlation_id", payload.CorrelationID),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (h *EmailTaskHandler) applicationDecision(ctx context.Context, raw []byte) error {
	var payload tasks.ApplicationDecisionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}

	status, err := lifecycle.ParseApplicationStatus(payload.Status)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	msg := mail.ApplicationDecision(payload.Email, payload.FullName, payload.JobTitle, status.Label(), payload.RejectionMessage)
	if err := h.sender.Send(ctx, msg); err != nil {
		h.logger.Error("send application decision email failed",
			slog.String("correlation_id", payload.CorrelationID),
			slog.Uint64("application_id", uint64(payload.ApplicationID)),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (h *EmailTaskHandler) notifyFailure(ctx context.Context, log *slog.Logger, userID string, n events.Notification) {
	if h.notifier == nil || userID == "" {
		return
	}
	if err := h.notifier.Notify(ctx, userID, n); err != nil {
		log.Error("publish failure notification failed", slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
