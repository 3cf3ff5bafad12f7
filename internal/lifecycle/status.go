// Package lifecycle holds the recruiter and application status machines.
package lifecycle

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition 表示状态迁移不被允许（例如已终结的状态再次变更）。
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrUnknownStatus 表示请求中的状态值无法识别。
var ErrUnknownStatus = errors.New("unknown status")

// RecruiterStatus 招聘方审核状态。
type RecruiterStatus string

const (
	RecruiterPending  RecruiterStatus = "pending"
	RecruiterApproved RecruiterStatus = "approved"
	RecruiterRejected RecruiterStatus = "rejected"
)

// ParseRecruiterStatus validates a raw status value.
func ParseRecruiterStatus(raw string) (RecruiterStatus, error) {
	switch s := RecruiterStatus(raw); s {
	case RecruiterPending, RecruiterApproved, RecruiterRejected:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// Terminal reports whether no further transition is possible.
func (s RecruiterStatus) Terminal() bool {
	return s == RecruiterApproved || s == RecruiterRejected
}

// CheckRecruiterTransition 校验 pending → approved | rejected。
func CheckRecruiterTransition(from, to RecruiterStatus) error {
	if from != RecruiterPending || !to.Terminal() {
		return fmt.Errorf("%w: recruiter %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ApplicationStatus 候选人申请状态。
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "en_attente"
	ApplicationAccepted ApplicationStatus = "acceptee"
	ApplicationDeclined ApplicationStatus = "declinee"
)

// ParseApplicationStatus validates a raw status value.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	switch s := ApplicationStatus(raw); s {
	case ApplicationPending, ApplicationAccepted, ApplicationDeclined:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// Terminal reports whether no further transition is possible.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationAccepted || s == ApplicationDeclined
}

// Label returns the French label shown to candidates.
func (s ApplicationStatus) Label() string {
	switch s {
	case ApplicationAccepted:
		return "Acceptée"
	case ApplicationDeclined:
		return "Déclinée"
	default:
		return "En attente"
	}
}

// CheckApplicationTransition 校验 en_attente → acceptee | declinee。
func CheckApplicationTransition(from, to ApplicationStatus) error {
	if from != ApplicationPending || !to.Terminal() {
		return fmt.Errorf("%w: application %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
