// Package memory keeps accounts, tokens and roles in process memory.
// It backs the "memory" database driver and the service tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// Store is a mutex-guarded set of tables. Rows are copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]model.Account
	tokens   map[uuid.UUID]model.AuthToken
	roles    map[uuid.UUID]map[string]struct{}
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]model.Account),
		tokens:   make(map[uuid.UUID]model.AuthToken),
		roles:    make(map[uuid.UUID]map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Accounts returns the account table view.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Tokens returns the token table view.
func (s *Store) Tokens() *TokenRepo { return &TokenRepo{s: s} }

// Roles returns the role table view.
func (s *Store) Roles() *RoleRepo { return &RoleRepo{s: s} }

// AccountRepo implements repository.AccountRepository.
type AccountRepo struct{ s *Store }

var _ repository.AccountRepository = (*AccountRepo)(nil)

func (r *AccountRepo) find(match func(*model.Account) bool, includeSoftDeleted bool) (*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accounts {
		if !includeSoftDeleted && a.Trashed() {
			continue
		}
		if match(&a) {
			return cloneAccount(&a), nil
		}
	}
	return nil, errs.ErrNotFound
}

// FindByEmail loads an account by email.
func (r *AccountRepo) FindByEmail(_ context.Context, email string, includeSoftDeleted bool) (*model.Account, error) {
	return r.find(func(a *model.Account) bool { return strings.EqualFold(a.Email, email) }, includeSoftDeleted)
}

// FindByUsername loads an account by username.
func (r *AccountRepo) FindByUsername(_ context.Context, username string, includeSoftDeleted bool) (*model.Account, error) {
	return r.find(func(a *model.Account) bool { return strings.EqualFold(a.Username, username) }, includeSoftDeleted)
}

// FindByID loads an account by ID.
func (r *AccountRepo) FindByID(_ context.Context, id uuid.UUID, includeSoftDeleted bool) (*model.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok || (!includeSoftDeleted && a.Trashed()) {
		return nil, errs.ErrNotFound
	}
	return cloneAccount(&a), nil
}

// Create inserts a new account. Uniqueness spans soft-deleted rows.
func (r *AccountRepo) Create(_ context.Context, a *model.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; ok {
		return &repository.DuplicateKeyError{Field: "id"}
	}
	for _, other := range r.s.accounts {
		if strings.EqualFold(other.Username, a.Username) {
			return &repository.DuplicateKeyError{Field: repository.FieldUsername}
		}
		if strings.EqualFold(other.Email, a.Email) {
			return &repository.DuplicateKeyError{Field: repository.FieldEmail}
		}
	}
	now := r.s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.accounts[a.ID] = *cloneAccount(a)
	return nil
}

// SetResetToken stores a pending reset code hash on an active account.
func (r *AccountRepo) SetResetToken(_ context.Context, id uuid.UUID, tokenHash string) error {
	return r.update(id, func(a *model.Account) bool {
		a.ResetTokenHash = &tokenHash
		return true
	})
}

// ConsumeResetToken replaces the password while tokenHash is still pending.
func (r *AccountRepo) ConsumeResetToken(_ context.Context, id uuid.UUID, tokenHash, passwordHash string) error {
	return r.update(id, func(a *model.Account) bool {
		if a.ResetTokenHash == nil || *a.ResetTokenHash != tokenHash {
			return false
		}
		a.PasswordHash = passwordHash
		a.ResetTokenHash = nil
		return true
	})
}

// ConsumeVerificationToken marks the account verified while tokenHash is still pending.
func (r *AccountRepo) ConsumeVerificationToken(_ context.Context, id uuid.UUID, tokenHash string) error {
	return r.update(id, func(a *model.Account) bool {
		if a.VerificationTokenHash == nil || *a.VerificationTokenHash != tokenHash {
			return false
		}
		a.Verified = true
		a.VerificationTokenHash = nil
		return true
	})
}

// update applies fn to an active account under the write lock; fn returning false leaves
// the row untouched and reports ErrNotFound.
func (r *AccountRepo) update(id uuid.UUID, fn func(*model.Account) bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.accounts[id]
	if !ok || cur.Trashed() || !fn(&cur) {
		return errs.ErrNotFound
	}
	cur.UpdatedAt = r.s.now()
	r.s.accounts[id] = cur
	return nil
}

// SoftDelete stamps DeletedAt on an active account.
func (r *AccountRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.accounts[id]
	if !ok || cur.Trashed() {
		return errs.ErrNotFound
	}
	now := r.s.now()
	cur.DeletedAt = &now
	cur.UpdatedAt = now
	r.s.accounts[id] = cur
	return nil
}

// Restore clears DeletedAt on a soft-deleted account.
func (r *AccountRepo) Restore(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.accounts[id]
	if !ok || !cur.Trashed() {
		return errs.ErrNotFound
	}
	cur.DeletedAt = nil
	cur.UpdatedAt = r.s.now()
	r.s.accounts[id] = cur
	return nil
}

// TokenRepo implements repository.TokenRepository.
type TokenRepo struct{ s *Store }

var _ repository.TokenRepository = (*TokenRepo)(nil)

// Create inserts a token record.
func (r *TokenRepo) Create(_ context.Context, t *model.AuthToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.ID]; ok {
		return &repository.DuplicateKeyError{Field: "id"}
	}
	t.CreatedAt = r.s.now()
	r.s.tokens[t.ID] = *t
	return nil
}

// GetByID loads a token record.
func (r *TokenRepo) GetByID(_ context.Context, id uuid.UUID) (*model.AuthToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

// DeleteByAccount removes every token of the account.
func (r *TokenRepo) DeleteByAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.tokens {
		if t.AccountID == accountID {
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

// Touch records the last use of a token.
func (r *TokenRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok {
		return nil
	}
	t.LastUsedAt = &at
	r.s.tokens[id] = t
	return nil
}

// RoleRepo implements repository.RoleRepository.
type RoleRepo struct{ s *Store }

var _ repository.RoleRepository = (*RoleRepo)(nil)

// HasRole reports whether the account holds role.
func (r *RoleRepo) HasRole(_ context.Context, accountID uuid.UUID, role string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.roles[accountID][role]
	return ok, nil
}

// Grant adds role to the account.
func (r *RoleRepo) Grant(_ context.Context, accountID uuid.UUID, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set, ok := r.s.roles[accountID]
	if !ok {
		set = make(map[string]struct{})
		r.s.roles[accountID] = set
	}
	set[role] = struct{}{}
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	c.VerificationTokenHash = cloneString(a.VerificationTokenHash)
	c.ResetTokenHash = cloneString(a.ResetTokenHash)
	if a.DeletedAt != nil {
		d := *a.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
