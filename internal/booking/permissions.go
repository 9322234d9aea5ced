package booking

import (
	"shelf/internal/apperr"
)

// Role is an organization member's role.
type Role string

const (
	RoleOwner       Role = "OWNER"
	RoleAdmin       Role = "ADMIN"
	RoleBase        Role = "BASE"
	RoleSelfService Role = "SELF_SERVICE"
	// RoleSystem is used by background jobs.
	RoleSystem Role = "SYSTEM"
)

// Actor is the caller of a booking operation.
type Actor struct {
	OrganizationID string
	UserID         string
	Role           Role
}

// SystemActor acts on behalf of background jobs in an organization.
func SystemActor(orgID string) Actor {
	return Actor{OrganizationID: orgID, UserID: "system", Role: RoleSystem}
}

// Privileged reports whether the actor may manage any booking.
func (a Actor) Privileged() bool {
	return a.Role == RoleOwner || a.Role == RoleAdmin || a.Role == RoleSystem
}

func (a Actor) owns(b *Booking) bool {
	return a.UserID != "" && (b.CreatorID == a.UserID || b.CustodianID == a.UserID)
}

// Authorize decides whether actor may perform action on b. Bookings of
// another organization are reported as not found.
func Authorize(actor Actor, action Action, b *Booking) error {
	op := string(action)
	if b == nil || b.OrganizationID != actor.OrganizationID {
		return apperr.NotFound(op, "Booking not found")
	}
	switch actor.Role {
	case RoleOwner, RoleAdmin, RoleSystem:
		return nil
	case RoleBase, RoleSelfService:
	default:
		return apperr.Unauthorized(op, "Unknown role").With("role", string(actor.Role))
	}

	if action == ActionRevertToDraft || action == ActionMarkOverdue {
		return apperr.Unauthorized(op, "You are not allowed to perform this action").
			With("role", string(actor.Role))
	}
	if !actor.owns(b) {
		return apperr.Unauthorized(op, "You can only manage your own bookings").
			With("bookingId", b.ID)
	}
	if b.Status != StatusDraft {
		return apperr.Unauthorized(op, "You can only modify bookings that are in draft").
			With("status", string(b.Status))
	}
	return nil
}
