package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"ctonjob/internal/errcode"
	"ctonjob/internal/lifecycle"
	"ctonjob/internal/tasks"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

const deliveryTimeout = 5 * time.Second

// Subscribers 将事件转成实时通知与邮件任务。失败只记录日志，不影响请求。
type Subscribers struct {
	notifier Notifier
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewSubscribers wires notifier and enqueuer; either may be nil.
func NewSubscribers(notifier Notifier, enqueuer Enqueuer, logger *slog.Logger) *Subscribers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscribers{notifier: notifier, enqueuer: enqueuer, logger: logger}
}

// Register subscribes all handlers on bus.
func (s *Subscribers) Register(bus *Bus) error {
	subs := map[string]any{
		TopicRecruiterSubmitted:   s.onRecruiterSubmitted,
		TopicRecruiterStatus:      s.onRecruiterStatus,
		TopicApplicationSubmitted: s.onApplicationSubmitted,
		TopicApplicationStatus:    s.onApplicationStatus,
	}
	for topic, fn := range subs {
		if err := bus.Subscribe(topic, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscribers) onRecruiterSubmitted(evt RecruiterSubmitted) {
	if evt.Token == "" {
		return
	}
	task, err := tasks.NewRecruiterConfirmationTask(tasks.RecruiterConfirmationPayload{
		RecruiterID:   evt.RecruiterID,
		UserID:        evt.UserID,
		Email:         evt.Email,
		ContactName:   evt.ContactName,
		CompanyName:   evt.CompanyName,
		Token:         evt.Token,
		CorrelationID: evt.CorrelationID,
	})
	s.enqueue(task, err, slog.Uint64("recruiter_id", uint64(evt.RecruiterID)))
}

func (s *Subscribers) onRecruiterStatus(evt RecruiterStatusChanged) {
	s.notify(evt.UserID, Notification{
		Type:          "recruiter_status",
		ResourceID:    evt.RecruiterID,
		Status:        string(evt.Status),
		CorrelationID: evt.CorrelationID,
		ErrorCode:     errcode.OK,
	})

	if !evt.Status.Terminal() || evt.Email == "" {
		return
	}
	task, err := tasks.NewRecruiterDecisionTask(tasks.RecruiterDecisionPayload{
		RecruiterID:   evt.RecruiterID,
		Email:         evt.Email,
		CompanyName:   evt.CompanyName,
		Status:        string(evt.Status),
		CorrelationID: evt.CorrelationID,
	})
	s.enqueue(task, err, slog.Uint64("recruiter_id", uint64(evt.RecruiterID)))
}

func (s *Subscribers) onApplicationSubmitted(evt ApplicationSubmitted) {
	if evt.RecruiterUserID == "" {
		return
	}
	s.notify(evt.RecruiterUserID, Notification{
		Type:          "application_received",
		ResourceID:    evt.ApplicationID,
		Status:        string(lifecycle.ApplicationPending),
		Message:       evt.JobTitle,
		CorrelationID: evt.CorrelationID,
		ErrorCode:     errcode.OK,
	})
}

func (s *Subscribers) onApplicationStatus(evt ApplicationStatusChanged) {
	s.notify(evt.UserID, Notification{
		Type:          string(evt.Kind) + "_application_status",
		ResourceID:    evt.ApplicationID,
		Status:        string(evt.Status),
		Label:         evt.Status.Label(),
		Message:       evt.RejectionMessage,
		CorrelationID: evt.CorrelationID,
		ErrorCode:     errcode.OK,
	})

	if !evt.Status.Terminal() || evt.Email == "" {
		return
	}
	task, err := tasks.NewApplicationDecisionTask(tasks.ApplicationDecisionPayload{
		ApplicationID:    evt.ApplicationID,
		Kind:             string(evt.Kind),
		Email:            evt.Email,
		FullName:         evt.FullName,
		JobTitle:         evt.JobTitle,
		Status:           string(evt.Status),
		RejectionMessage: evt.RejectionMessage,
		CorrelationID:    evt.CorrelationID,
	})
	s.enqueue(task, err, slog.Uint64("application_id", uint64(evt.ApplicationID)))
}

func (s *Subscribers) notify(userID string, n Notification) {
	if s.notifier == nil || userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, userID, n); err != nil {
		s.logger.Warn("publish notification failed",
			slog.String("user_id", userID),
			slog.String("type", n.Type),
			slog.Any("error", err),
		)
	}
}

func (s *Subscribers) enqueue(task *asynq.Task, buildErr error, attr slog.Attr) {
	if buildErr != nil {
		s.logger.Error("build mail task failed", attr, slog.Any("error", buildErr))
		return
	}
	if s.enqueuer == nil {
		return
	}
	if _, err := s.enqueuer.Enqueue(task); err != nil {
		s.logger.Error("enqueue mail task failed",
			attr,
			slog.String("task_type", task.Type()),
			slog.Any("error", err),
		)
	}
}
