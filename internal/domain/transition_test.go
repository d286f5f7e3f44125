package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		role    Role
		action  Action
		want    Status
		wantErr bool
	}{
		{name: "patient cancels scheduled", from: StatusScheduled, role: RolePatient, action: ActionCancel, want: StatusCancelled},
		{name: "provider cancels confirmed", from: StatusConfirmed, role: RoleProvider, action: ActionCancel, want: StatusCancelled},
		{name: "cancel in progress", from: StatusInProgress, role: RoleAdmin, action: ActionCancel, wantErr: true},
		{name: "reschedule scheduled", from: StatusScheduled, role: RolePatient, action: ActionReschedule, want: StatusRescheduled},
		{name: "reschedule in progress", from: StatusInProgress, role: RoleProvider, action: ActionReschedule, wantErr: true},
		{name: "provider completes confirmed", from: StatusConfirmed, role: RoleProvider, action: ActionComplete, want: StatusCompleted},
		{name: "provider completes in progress", from: StatusInProgress, role: RoleProvider, action: ActionComplete, want: StatusCompleted},
		{name: "patient completes", from: StatusInProgress, role: RolePatient, action: ActionComplete, wantErr: true},
		{name: "admin completes", from: StatusInProgress, role: RoleAdmin, action: ActionComplete, wantErr: true},
		{name: "complete scheduled", from: StatusScheduled, role: RoleProvider, action: ActionComplete, wantErr: true},
		{name: "provider confirms", from: StatusScheduled, role: RoleProvider, action: ActionConfirm, want: StatusConfirmed},
		{name: "patient confirms", from: StatusScheduled, role: RolePatient, action: ActionConfirm, wantErr: true},
		{name: "provider starts", from: StatusConfirmed, role: RoleProvider, action: ActionStart, want: StatusInProgress},
		{name: "start scheduled", from: StatusScheduled, role: RoleProvider, action: ActionStart, wantErr: true},
		{name: "system marks missed", from: StatusConfirmed, role: RoleSystem, action: ActionMarkMissed, want: StatusMissed},
		{name: "patient marks missed", from: StatusConfirmed, role: RolePatient, action: ActionMarkMissed, wantErr: true},
		{name: "unknown action", from: StatusScheduled, role: RoleAdmin, action: "archive", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.role, tt.action)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("err = %v, want ErrInvalidTransition", err)
				}
				if got != tt.from {
					t.Fatalf("status = %s, want unchanged %s", got, tt.from)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transition error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	actions := []Action{ActionConfirm, ActionStart, ActionComplete, ActionCancel, ActionReschedule, ActionMarkMissed}
	roles := []Role{RolePatient, RoleProvider, RoleAdmin, RoleSystem}

	for _, s := range AllStatuses() {
		if !s.Terminal() {
			continue
		}
		for _, a := range actions {
			for _, r := range roles {
				if _, err := Transition(s, r, a); !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Transition(%s, %s, %s) err = %v, want ErrInvalidTransition", s, r, a, err)
				}
			}
		}
	}
}

func TestDecide_RequiresParty(t *testing.T) {
	provider := uuid.MustParse("00000000-0000-0000-0000-0000000000d1")
	patient := uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	stranger := uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
	a := Appointment{ProviderID: provider, SeekerID: patient, Status: StatusConfirmed}

	if _, err := Decide(a, Actor{ID: stranger, Role: RoleProvider}, ActionComplete); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("foreign provider err = %v, want ErrInvalidTransition", err)
	}
	if _, err := Decide(a, Actor{ID: stranger, Role: RolePatient}, ActionCancel); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("foreign patient err = %v, want ErrInvalidTransition", err)
	}
	got, err := Decide(a, Actor{ID: provider, Role: RoleProvider}, ActionComplete)
	if err != nil || got != StatusCompleted {
		t.Fatalf("assigned provider = (%s, %v), want (completed, nil)", got, err)
	}
	got, err = Decide(a, Actor{ID: stranger, Role: RoleAdmin}, ActionCancel)
	if err != nil || got != StatusCancelled {
		t.Fatalf("admin = (%s, %v), want (cancelled, nil)", got, err)
	}
}

func TestInitialStatus(t *testing.T) {
	if InitialStatus(false) != StatusScheduled {
		t.Fatalf("non-emergency initial status = %s", InitialStatus(false))
	}
	if InitialStatus(true) != StatusConfirmed {
		t.Fatalf("emergency initial status = %s", InitialStatus(true))
	}
}

func TestCanEdit(t *testing.T) {
	provider := uuid.MustParse("00000000-0000-0000-0000-0000000000d1")
	patient := uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	stranger := uuid.MustParse("00000000-0000-0000-0000-0000000000ff")

	tests := []struct {
		name    string
		status  Status
		actor   Actor
		wantErr bool
	}{
		{name: "patient own", status: StatusScheduled, actor: Actor{ID: patient, Role: RolePatient}},
		{name: "provider own", status: StatusInProgress, actor: Actor{ID: provider, Role: RoleProvider}},
		{name: "admin", status: StatusConfirmed, actor: Actor{ID: stranger, Role: RoleAdmin}},
		{name: "foreign patient", status: StatusScheduled, actor: Actor{ID: stranger, Role: RolePatient}, wantErr: true},
		{name: "system", status: StatusScheduled, actor: Actor{ID: stranger, Role: RoleSystem}, wantErr: true},
		{name: "terminal", status: StatusCompleted, actor: Actor{ID: provider, Role: RoleProvider}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Appointment{ProviderID: provider, SeekerID: patient, Status: tt.status}
			err := CanEdit(a, tt.actor)
			if tt.wantErr != (err != nil) {
				t.Fatalf("CanEdit err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
		})
	}
}
