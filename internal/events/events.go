// Package events fans domain events out to notifications and the mail queue.
package events

import (
	evbus "github.com/asaskevich/EventBus"

	"ctonjob/internal/lifecycle"
)

// 事件主题。
const (
	TopicRecruiterSubmitted   = "recruiter:submitted"
	TopicRecruiterStatus      = "recruiter:status"
	TopicApplicationSubmitted = "application:submitted"
	TopicApplicationStatus    = "application:status"
)

// ApplicationKind distinguishes job and video-job applications.
type ApplicationKind string

const (
	KindJob   ApplicationKind = "job"
	KindVideo ApplicationKind = "video"
)

// RecruiterSubmitted 招聘方提交资料；邮件确认模式下 Token 非空。
type RecruiterSubmitted struct {
	RecruiterID   uint
	UserID        string
	Email         string
	ContactName   string
	CompanyName   string
	Token         string
	CorrelationID string
}

// RecruiterStatusChanged 招聘方审核状态变化。
type RecruiterStatusChanged struct {
	RecruiterID   uint
	UserID        string
	Email         string
	CompanyName   string
	Status        lifecycle.RecruiterStatus
	CorrelationID string
}

// ApplicationSubmitted 新申请提交，通知职位所属招聘方。
type ApplicationSubmitted struct {
	ApplicationID   uint
	Kind            ApplicationKind
	RecruiterUserID string
	JobTitle        string
	CorrelationID   string
}

// ApplicationStatusChanged 申请状态变化。
type ApplicationStatusChanged struct {
	ApplicationID    uint
	Kind             ApplicationKind
	UserID           string
	Email            string
	FullName         string
	JobTitle         string
	Status           lifecycle.ApplicationStatus
	RejectionMessage string
	CorrelationID    string
}

// Bus wraps an in-process event bus.
type Bus struct {
	bus evbus.Bus
}

// NewBus 创建事件总线。
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Subscribe registers fn asynchronously for topic.
func (b *Bus) Subscribe(topic string, fn any) error {
	return b.bus.SubscribeAsync(topic, fn, false)
}

// Wait blocks until all asynchronous handlers returned.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}

func (b *Bus) RecruiterSubmitted(evt RecruiterSubmitted) {
	b.bus.Publish(TopicRecruiterSubmitted, evt)
}

func (b *Bus) RecruiterStatusChanged(evt RecruiterStatusChanged) {
	b.bus.Publish(TopicRecruiterStatus, evt)
}

func (b *Bus) ApplicationSubmitted(evt ApplicationSubmitted) {
	b.bus.Publish(TopicApplicationSubmitted, evt)
}

func (b *Bus) ApplicationStatusChanged(evt ApplicationStatusChanged) {
	b.bus.Publish(TopicApplicationStatus, evt)
}
