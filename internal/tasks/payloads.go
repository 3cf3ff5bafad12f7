package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeRecruiterConfirmation = "email:recruiter_confirmation"
	TypeRecruiterDecision     = "email:recruiter_decision"
	TypeApplicationDecision   = "email:application_decision"
)

const mailQueue = "mail"

// RecruiterConfirmationPayload 招聘方确认邮件所需信息。Token 为明文，仅出现在邮件链接中。
type RecruiterConfirmationPayload struct {
	RecruiterID   uint   `json:"recruiter_id"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	ContactName   string `json:"contact_name"`
	CompanyName   string `json:"company_name"`
	Token         string `json:"token"`
	CorrelationID string `json:"correlation_id"`
}

// RecruiterDecisionPayload 招聘方审核结果通知。
type RecruiterDecisionPayload struct {
	RecruiterID   uint   `json:"recruiter_id"`
	Email         string `json:"email"`
	CompanyName   string `json:"company_name"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
}

// ApplicationDecisionPayload 申请被接受或拒绝时发给候选人的通知。
type ApplicationDecisionPayload struct {
	ApplicationID    uint   `json:"application_id"`
	Kind             string `json:"kind"`
	Email            string `json:"email"`
	FullName         string `json:"full_name"`
	JobTitle         string `json:"job_title"`
	Status           string `json:"status"`
	RejectionMessage string `json:"rejection_message,omitempty"`
	CorrelationID    string `json:"correlation_id"`
}

// NewRecruiterConfirmationTask 构造确认邮件任务。
func NewRecruiterConfirmationTask(p RecruiterConfirmationPayload) (*asynq.Task, error) {
	return newMailTask(TypeRecruiterConfirmation, p)
}

// NewRecruiterDecisionTask 构造审核结果邮件任务。
func NewRecruiterDecisionTask(p RecruiterDecisionPayload) (*asynq.Task, error) {
	return newMailTask(TypeRecruiterDecision, p)
}

// NewApplicationDecisionTask 构造申请结果邮件任务。
func NewApplicationDecisionTask(p ApplicationDecisionPayload) (*asynq.Task, error) {
	return newMailTask(TypeApplicationDecision, p)
}

func newMailTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, data, asynq.Queue(mailQueue), asynq.MaxRetry(5)), nil
}

// Queues returns the queue weights used by the worker server.
func Queues() map[string]int {
	return map[string]int{
		mailQueue: 5,
		"default": 1,
	}
}
