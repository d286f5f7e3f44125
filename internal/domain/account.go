package domain

import "github.com/google/uuid"

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Account is the slice of an account record the booking core needs. Accounts
// are owned by the account subsystem and never mutated here.
type Account struct {
	ID     uuid.UUID
	Role   Role
	Active bool
}

// Actor is the already-authenticated caller of a lifecycle operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}
