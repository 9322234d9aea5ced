package booking

import (
	"shelf/internal/apperr"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusReserved  Status = "RESERVED"
	StatusOngoing   Status = "ONGOING"
	StatusOverdue   Status = "OVERDUE"
	StatusComplete  Status = "COMPLETE"
	StatusCancelled Status = "CANCELLED"
	StatusArchived  Status = "ARCHIVED"
)

// IsTerminal reports whether no further work happens on the booking.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusArchived
}

// IsActive reports whether the booking holds its assets.
func (s Status) IsActive() bool {
	return s == StatusReserved || s == StatusOngoing || s == StatusOverdue
}

// IsCheckedOut reports whether the assets are physically out.
func (s Status) IsCheckedOut() bool {
	return s == StatusOngoing || s == StatusOverdue
}

// Action is an operation that may change a booking's status.
type Action string

const (
	ActionReserve        Action = "reserve"
	ActionCheckOut       Action = "checkout"
	ActionCheckIn        Action = "checkin"
	ActionPartialCheckIn Action = "partial_checkin"
	ActionCancel         Action = "cancel"
	ActionArchive        Action = "archive"
	ActionRevertToDraft  Action = "revert_to_draft"
	ActionMarkOverdue    Action = "mark_overdue"
	ActionExtend         Action = "extend"

	// Non-transition actions, used by authorization.
	ActionCreate       Action = "create"
	ActionSave         Action = "save"
	ActionDelete       Action = "delete"
	ActionManageAssets Action = "manage_assets"
)

type rule struct {
	from []Status
	// to is empty when the action keeps the current status.
	to Status
}

var transitions = map[Action]rule{
	ActionReserve:        {from: []Status{StatusDraft}, to: StatusReserved},
	ActionCheckOut:       {from: []Status{StatusReserved, StatusOngoing, StatusOverdue}, to: StatusOngoing},
	ActionCheckIn:        {from: []Status{StatusOngoing, StatusOverdue}, to: StatusComplete},
	ActionPartialCheckIn: {from: []Status{StatusOngoing, StatusOverdue}},
	ActionCancel:         {from: []Status{StatusDraft, StatusReserved, StatusOngoing, StatusOverdue}, to: StatusCancelled},
	ActionArchive:        {from: []Status{StatusComplete}, to: StatusArchived},
	ActionRevertToDraft:  {from: []Status{StatusReserved, StatusOngoing, StatusOverdue, StatusComplete}, to: StatusDraft},
	ActionMarkOverdue:    {from: []Status{StatusOngoing}, to: StatusOverdue},
	ActionExtend:         {from: []Status{StatusOngoing, StatusOverdue}, to: StatusOngoing},
}

// Machine validates booking status transitions.
type Machine struct {
	rules map[Action]rule
}

func NewMachine() *Machine {
	return &Machine{rules: transitions}
}

// Can reports whether action is allowed from the given status.
func (m *Machine) Can(action Action, from Status) bool {
	r, ok := m.rules[action]
	if !ok {
		return false
	}
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// Next returns the status that results from applying action to from.
func (m *Machine) Next(action Action, from Status) (Status, error) {
	if !m.Can(action, from) {
		return "", apperr.Validationf(string(action), "cannot %s a booking in status %s", humanAction(action), from).
			With("status", string(from))
	}
	if to := m.rules[action].to; to != "" {
		return to, nil
	}
	return from, nil
}

// Allowed lists the actions valid from a status.
func (m *Machine) Allowed(from Status) []Action {
	var out []Action
	for _, a := range []Action{
		ActionReserve, ActionCheckOut, ActionCheckIn, ActionPartialCheckIn, ActionCancel,
		ActionArchive, ActionRevertToDraft, ActionMarkOverdue, ActionExtend,
	} {
		if m.Can(a, from) {
			out = append(out, a)
		}
	}
	return out
}

func humanAction(a Action) string {
	switch a {
	case ActionCheckOut:
		return "check out"
	case ActionCheckIn:
		return "check in"
	case ActionPartialCheckIn:
		return "partially check in"
	case ActionRevertToDraft:
		return "revert to draft"
	case ActionMarkOverdue:
		return "mark overdue"
	default:
		return string(a)
	}
}
