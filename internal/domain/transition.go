package domain

import (
	"errors"
	"fmt"
	"slices"
)

type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	ActionMarkMissed Action = "mark_missed"
	// ActionUpdate edits descriptive fields and never changes status.
	ActionUpdate     Action = "update"
)

var ErrInvalidTransition = errors.New("invalid appointment status transition")

type TransitionError struct {
	From   Status
	Action Action
	Role   Role
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s appointment in status %s as %s", e.Action, e.From, e.Role)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type transitionRule struct {
	from  []Status
	to    Status
	roles []Role
}

//	scheduled → confirmed → in_progress → completed
//	scheduled|confirmed → cancelled | rescheduled
//	scheduled|confirmed|in_progress → missed
var transitions = map[Action]transitionRule{
	ActionConfirm: {
		from:  []Status{StatusScheduled},
		to:    StatusConfirmed,
		roles: []Role{RoleProvider, RoleAdmin},
	},
	ActionStart: {
		from:  []Status{StatusConfirmed},
		to:    StatusInProgress,
		roles: []Role{RoleProvider},
	},
	ActionComplete: {
		from:  []Status{StatusConfirmed, StatusInProgress},
		to:    StatusCompleted,
		roles: []Role{RoleProvider},
	},
	ActionCancel: {
		from:  []Status{StatusScheduled, StatusConfirmed},
		to:    StatusCancelled,
		roles: []Role{RolePatient, RoleProvider, RoleAdmin},
	},
	ActionReschedule: {
		from:  []Status{StatusScheduled, StatusConfirmed},
		to:    StatusRescheduled,
		roles: []Role{RolePatient, RoleProvider, RoleAdmin},
	},
	ActionMarkMissed: {
		from:  []Status{StatusScheduled, StatusConfirmed, StatusInProgress},
		to:    StatusMissed,
		roles: []Role{RoleProvider, RoleAdmin, RoleSystem},
	},
}

// Transition is the appointment state machine: it returns the status an
// appointment moves to when role performs action on it, or a *TransitionError.
func Transition(current Status, role Role, action Action) (Status, error) {
	rule, ok := transitions[action]
	if !ok {
		return current, &TransitionError{From: current, Action: action, Role: role, Reason: "unknown action"}
	}
	if current.Terminal() {
		return current, &TransitionError{From: current, Action: action, Role: role, Reason: "status is terminal"}
	}
	if !slices.Contains(rule.from, current) {
		return current, &TransitionError{From: current, Action: action, Role: role}
	}
	if !slices.Contains(rule.roles, role) {
		return current, &TransitionError{From: current, Action: action, Role: role, Reason: "role not permitted"}
	}
	return rule.to, nil
}

// InitialStatus is Confirmed for emergencies and Scheduled otherwise.
func InitialStatus(isEmergency bool) Status {
	if isEmergency {
		return StatusConfirmed
	}
	return StatusScheduled
}

// Decide runs Transition for a concrete appointment and additionally requires
// patients and providers to be the appointment's own seeker or provider.
func Decide(a Appointment, actor Actor, action Action) (Status, error) {
	next, err := Transition(a.Status, actor.Role, action)
	if err != nil {
		return a.Status, err
	}
	switch actor.Role {
	case RolePatient:
		if actor.ID != a.SeekerID {
			return a.Status, &TransitionError{From: a.Status, Action: action, Role: actor.Role, Reason: "caller is not the appointment's patient"}
		}
	case RoleProvider:
		if actor.ID != a.ProviderID {
			return a.Status, &TransitionError{From: a.Status, Action: action, Role: actor.Role, Reason: "caller is not the assigned provider"}
		}
	}
	return next, nil
}

// CanEdit reports whether actor may change the descriptive fields of a. Only
// appointments that have not reached a terminal status can be edited.
func CanEdit(a Appointment, actor Actor) error {
	if a.Status.Terminal() {
		return &TransitionError{From: a.Status, Action: ActionUpdate, Role: actor.Role, Reason: "status is terminal"}
	}
	switch actor.Role {
	case RolePatient:
		if actor.ID != a.SeekerID {
			return &TransitionError{From: a.Status, Action: ActionUpdate, Role: actor.Role, Reason: "caller is not the appointment's patient"}
		}
	case RoleProvider:
		if actor.ID != a.ProviderID {
			return &TransitionError{From: a.Status, Action: ActionUpdate, Role: actor.Role, Reason: "caller is not the assigned provider"}
		}
	case RoleAdmin:
	default:
		return &TransitionError{From: a.Status, Action: ActionUpdate, Role: actor.Role, Reason: "role not permitted"}
	}
	return nil
}
