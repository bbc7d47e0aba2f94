package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/goph-accounts/internal/repository"
	"github.com/gofrs/uuid/v5"
)

const (
	qRoleExists = `SELECT EXISTS (SELECT 1 FROM account_roles WHERE account_id = $1 AND role = $2)`
	qRoleGrant  = `INSERT INTO account_roles (account_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

// RoleRepo implements RoleRepository using PostgreSQL.
type RoleRepo struct{ db *DB }

var _ repository.RoleRepository = (*RoleRepo)(nil)

// NewRoleRepo constructs a role repository.
func NewRoleRepo(db *DB) *RoleRepo { return &RoleRepo{db: db} }

// HasRole reports whether the account holds role.
func (r *RoleRepo) HasRole(ctx context.Context, accountID uuid.UUID, role string) (bool, error) {
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, qRoleExists, accountID, role).Scan(&ok); err != nil {
		return false, fmt.Errorf("account_roles: select: %w", err)
	}
	return ok, nil
}

// Grant adds role to the account.
func (r *RoleRepo) Grant(ctx context.Context, accountID uuid.UUID, role string) error {
	if _, err := r.db.Pool.Exec(ctx, qRoleGrant, accountID, role); err != nil {
		return fmt.Errorf("account_roles: grant: %w", err)
	}
	return nil
}
