package policy

import (
	"ctonjob/internal/database"
)

// Action 表示对资源的操作类型。
type Action string

const (
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionDecide Action = "decide"
)

// Policy decides whether an actor may perform action on resource.
type Policy interface {
	Can(actor *Actor, action Action, resource any) bool
}

// OwnershipPolicy 根据资源归属判断权限，未知资源类型一律拒绝。
type OwnershipPolicy struct{}

// Can checks ownership for the job board resources.
func (OwnershipPolicy) Can(actor *Actor, action Action, resource any) bool {
	if actor == nil || resource == nil {
		return false
	}

	switch r := resource.(type) {
	case *database.Profile:
		return r.ID == actor.UserID
	case *database.Recruiter:
		return r.UserID == actor.UserID
	case *database.Job:
		return actor.IsApprovedRecruiter() && r.RecruiterID == actor.RecruiterID()
	case *database.Application:
		if action == ActionView && r.UserID == actor.UserID {
			return true
		}
		return actor.IsApprovedRecruiter() && r.RecruiterID == actor.RecruiterID()
	case *database.VideoApplication:
		// 视频申请的状态只能由管理员变更
		return action == ActionView && r.UserID == actor.UserID
	default:
		return false
	}
}

// AdminBypassPolicy wraps another policy and always allows admins.
type AdminBypassPolicy struct {
	inner Policy
}

// NewAdminBypassPolicy creates a policy that bypasses ownership for admins.
func NewAdminBypassPolicy(inner Policy) *AdminBypassPolicy {
	return &AdminBypassPolicy{inner: inner}
}

// Can returns true for admins, otherwise defers to the inner policy.
func (p *AdminBypassPolicy) Can(actor *Actor, action Action, resource any) bool {
	if actor.IsAdmin() {
		return true
	}
	return p.inner.Can(actor, action, resource)
}

// Gate is the central authorization point used by handlers.
type Gate struct {
	policy Policy
}

// NewGate returns a gate with admin bypass over ownership checks.
func NewGate() *Gate {
	return &Gate{policy: NewAdminBypassPolicy(OwnershipPolicy{})}
}

// Authorize returns ErrForbidden when the actor may not act on resource.
func (g *Gate) Authorize(actor *Actor, action Action, resource any) error {
	if !g.policy.Can(actor, action, resource) {
		return ErrForbidden
	}
	return nil
}
