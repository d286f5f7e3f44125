package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"carebook/backend/internal/domain"
)

// accountRow is a read-only projection of the account subsystem's table.
type accountRow struct {
	bun.BaseModel `bun:"table:accounts"`

	ID       uuid.UUID `bun:"id,pk,type:uuid"`
	Role     string    `bun:"role,notnull"`
	IsActive bool      `bun:"is_active,notnull"`
}

type AccountRepo struct {
	db *bun.DB
}

func NewAccountRepo(db *bun.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) ResolveAccount(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	var row accountRow
	err := r.db.NewSelect().
		Model(&row).
		Column("id", "role", "is_active").
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Account{}, classify(err)
	}
	return domain.Account{ID: row.ID, Role: accountRole(row.Role), Active: row.IsActive}, nil
}

func accountRole(raw string) domain.Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "doctor", "provider", "practitioner":
		return domain.RoleProvider
	case "patient", "seeker":
		return domain.RolePatient
	case "admin":
		return domain.RoleAdmin
	default:
		return domain.Role(raw)
	}
}
