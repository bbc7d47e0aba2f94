// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// RoleAdmin is the role reported as is_admin on login.
const RoleAdmin = "admin"

// Account is a registered user. Hashes are never serialized.
type Account struct {
	ID                    uuid.UUID  // PK, immutable
	Username              string     // unique (case-insensitive), 3-10 chars
	Email                 string     // unique, stored lower-cased
	PasswordHash          string     // encoded KDF digest
	Verified              bool       // false at signup
	VerificationTokenHash *string    // set while email verification is pending
	ResetTokenHash        *string    // set while a password reset is pending
	DeletedAt             *time.Time // set while soft-deleted
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Trashed reports whether the account is soft-deleted.
func (a *Account) Trashed() bool { return a.DeletedAt != nil }

// Snapshot is the public view of an account returned on login.
type Snapshot struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Verified  bool       `json:"verified"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// SnapshotOf builds the public view of a.
func SnapshotOf(a *Account) Snapshot {
	return Snapshot{
		ID:        a.ID.String(),
		Username:  a.Username,
		Email:     a.Email,
		Verified:  a.Verified,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		DeletedAt: a.DeletedAt,
	}
}

// AuthToken is a stored bearer credential. Only the hash of its secret is kept.
type AuthToken struct {
	ID         uuid.UUID // PK, also the public prefix of the bearer string
	AccountID  uuid.UUID // FK -> accounts.id
	Name       string
	TokenHash  string // hex sha256 of the secret part
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// LoginResult is what a successful login hands back to the caller.
type LoginResult struct {
	Token       string
	Account     Snapshot
	IsAdmin     bool
	SoftDeleted bool
}
