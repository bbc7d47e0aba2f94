// Package service contains the account lifecycle use cases.
package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/goph-accounts/internal/courier"
	"github.com/and161185/goph-accounts/internal/errs"
	"github.com/and161185/goph-accounts/internal/lifecycle"
	"github.com/and161185/goph-accounts/internal/metrics"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/repository"
	"github.com/and161185/goph-accounts/internal/validate"
)

// User-visible outcomes.
const (
	MsgSignupCode      = "Your email verification code is  "
	MsgSignupSent      = "Your email verification code has been sent to your email address."
	MsgVerified        = "Email verified successfully. You can now login to your account."
	MsgVerifyInvalid   = "Invalid email or verification token."
	MsgUserNotFound    = "User not found."
	MsgVerifyFirst     = "Please verify your email address first."
	MsgAccountDeleted  = "Your account has been deleted. Please contact support for assistance."
	MsgBadCredentials  = "Invalid credentials."
	MsgUnauthenticated = "Unauthenticated."
	MsgLoggedOut       = "You have logged out."
	MsgResetCode       = "Your password reset code is  "
	MsgResetSent       = "Your password reset code has been sent to your email address."
	MsgResetInvalid    = "Invalid verification code."
	MsgResetDone       = "Password reset successful."
	MsgDeleted         = "Your account has been deleted."
	MsgNotSoftDeleted  = "Account is not soft-deleted."
	MsgRestored        = "User account has been undeleted."
	msgSignupFailed    = "An error occurred while signing up. Please try again."
	msgVerifyFailed    = "An error occurred while verifying your email. Please try again."
	msgLoginFailed     = "An error occurred while logging in. Please try again."
	msgLogoutFailed    = "An error occurred while logging out. Please try again."
	msgForgotFailed    = "An error occurred while requesting a password reset. Please try again."
	msgResetFailed     = "An error occurred while resetting your password. Please try again."
	msgDeleteFailed    = "An error occurred while deleting your account. Please try again."
	msgRestoreFailed   = "An error occurred while restoring the account. Please try again."
)

// Operation names used in logs and metrics.
const (
	OpSignup         = "signup"
	OpVerifyEmail    = "verify_email"
	OpLogin          = "login"
	OpLogout         = "logout"
	OpForgotPassword = "forgot_password"
	OpResetPassword  = "reset_password"
	OpSoftDelete     = "soft_delete"
	OpRestore        = "restore"
)

// AccountService is the account lifecycle exposed to transports.
// Every failure is an *errs.Error whose Kind is one of the errs sentinels.
type AccountService interface {
	Signup(ctx context.Context, in SignupInput) (string, error)
	VerifyEmail(ctx context.Context, in VerifyEmailInput) (string, error)
	Login(ctx context.Context, in LoginInput) (*model.LoginResult, error)
	Logout(ctx context.Context) (string, error)
	ForgotPassword(ctx context.Context, in ForgotPasswordInput) (string, error)
	ResetPassword(ctx context.Context, in ResetPasswordInput) (string, error)
	SoftDeleteAccount(ctx context.Context) (string, error)
	RestoreAccount(ctx context.Context, in RestoreInput) (string, error)
}

// Hasher derives and checks digests of passwords and one-time codes.
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, digest string) bool
}

// Generator produces one-time codes.
type Generator interface {
	Generate() (string, error)
}

// TokenIssuer manages bearer tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, accountID uuid.UUID) (string, error)
	RevokeAll(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// AuthContext resolves the authenticated caller of a request.
type AuthContext interface {
	Caller(ctx context.Context) (uuid.UUID, bool)
}

// Validator checks request structs.
type Validator interface {
	Struct(s any, msgs validate.Messages) error
}

// Deps are the collaborators of AccountServiceImpl. Courier, Validator, Machine,
// Log and Metrics fall back to defaults when nil.
type Deps struct {
	Accounts  repository.AccountRepository
	Roles     repository.RoleRepository
	Hasher    Hasher
	Generator Generator
	Tokens    TokenIssuer
	Auth      AuthContext
	Courier   courier.Courier
	Validator Validator
	Machine   *lifecycle.Machine
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

// AccountServiceImpl implements AccountService.
type AccountServiceImpl struct {
	accounts  repository.AccountRepository
	roles     repository.RoleRepository
	hasher    Hasher
	gen       Generator
	tokens    TokenIssuer
	auth      AuthContext
	courier   courier.Courier
	validator Validator
	machine   *lifecycle.Machine
	log       *zap.Logger
	metrics   *metrics.Metrics
}

var _ AccountService = (*AccountServiceImpl)(nil)

// NewAccountService constructs the service.
func NewAccountService(d Deps) *AccountServiceImpl {
	s := &AccountServiceImpl{
		accounts:  d.Accounts,
		roles:     d.Roles,
		hasher:    d.Hasher,
		gen:       d.Generator,
		tokens:    d.Tokens,
		auth:      d.Auth,
		courier:   d.Courier,
		validator: d.Validator,
		machine:   d.Machine,
		log:       d.Log,
		metrics:   d.Metrics,
	}
	if s.courier == nil {
		s.courier = courier.InBand{}
	}
	if s.validator == nil {
		s.validator = validate.New()
	}
	if s.machine == nil {
		s.machine = lifecycle.New()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Signup creates an unverified account and hands out its verification code.
func (s *AccountServiceImpl) Signup(ctx context.Context, in SignupInput) (msg string, err error) {
	defer func() { err = s.finish(ctx, OpSignup, err) }()

	in.Username = trim(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := s.validator.Struct(in, signupMessages); err != nil {
		return "", err
	}
	if err := s.checkUnique(ctx, in.Username, in.Email); err != nil {
		return "", err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", errs.Internal(msgSignupFailed, err)
	}
	code, codeHash, err := s.newCode(ctx)
	if err != nil {
		return "", errs.Internal(msgSignupFailed, err)
	}
	pwdHash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return "", errs.Internal(msgSignupFailed, err)
	}

	a := &model.Account{
		ID:                    id,
		Username:              in.Username,
		Email:                 in.Email,
		PasswordHash:          pwdHash,
		VerificationTokenHash: &codeHash,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		var dup *repository.DuplicateKeyError
		if errors.As(err, &dup) {
			return "", errs.Conflict(takenMessage(dup.Field))
		}
		return "", errs.Internal(msgSignupFailed, err)
	}

	return s.deliver(ctx, a, courier.PurposeVerification, code, MsgSignupCode, MsgSignupSent, msgSignupFailed)
}

// VerifyEmail marks the account verified when the code matches.
// Unknown email and wrong code are indistinguishable to the caller.
func (s *AccountServiceImpl) VerifyEmail(ctx context.Context, in VerifyEmailInput) (msg string, err error) {
	defer func() { err = s.finish(ctx, OpVerifyEmail, err) }()

	in.Email = normalizeEmail(in.Email)
	if err := s.validator.Struct(in, verifyMessages); err != nil {
		return "", err
	}
	invalid := errs.New(errs.ErrUnauthorized, MsgVerifyInvalid)

	a, err := s.accounts.FindByEmail(ctx, in.Email, false)
	if errors.Is(err, errs.ErrNotFound) {
		return "", invalid
	}
	if err != nil {
		return "", errs.Internal(msgVerifyFailed, err)
	}
	if a.VerificationTokenHash == nil || !s.hasher.Verify(ctx, in.Token, *a.VerificationTokenHash) {
		return "", invalid
	}
	pending := *a.VerificationTokenHash
	if _, err := s.machine.Apply(a, lifecycle.EventVerify); err != nil {
		return "", invalid
	}
	// the code is consumed only if no concurrent verify got there first
	err = s.accounts.ConsumeVerificationToken(ctx, a.ID, pending)
	if errors.Is(err, errs.ErrNotFound) {
		return "", invalid
	}
	if err != nil {
		return "", errs.Internal(msgVerifyFailed, err)
	}
	return MsgVerified, nil
}

// Login checks, in order, existence, verification, deletion and password, then issues a token.
func (s *AccountServiceImpl) Login(ctx context.Context, in LoginInput) (res *model.LoginResult, err error) {
	defer func() { err = s.finish(ctx, OpLogin, err) }()

	in.Email = normalizeEmail(in.Email)
	if err := s.validator.Struct(in, loginMessages); err != nil {
		return nil, err
	}

	a, err := s.accounts.FindByEmail(ctx, in.Email, true)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.New(errs.ErrNotFound, MsgUserNotFound)
	}
	if err != nil {
		return nil, errs.Internal(msgLoginFailed, err)
	}
	if !a.Verified {
		return nil, errs.New(errs.ErrUnauthorized, MsgVerifyFirst)
	}
	if a.Trashed() {
		return nil, errs.New(errs.ErrUnauthorized, MsgAccountDeleted)
	}
	if !s.hasher.Verify(ctx, in.Password, a.PasswordHash) {
		return nil, errs.New(errs.ErrUnauthorized, MsgBadCredentials)
	}

	isAdmin, err := s.roles.HasRole(ctx, a.ID, model.RoleAdmin)
	if err != nil {
		return nil, errs.Internal(msgLoginFailed, err)
	}
	tok, err := s.tokens.Issue(ctx, a.ID)
	if err != nil {
		return nil, errs.Internal(msgLoginFailed, err)
	}
	return &model.LoginResult{
		Token:       tok,
		Account:     model.SnapshotOf(a),
		IsAdmin:     isAdmin,
		SoftDeleted: a.Trashed(),
	}, nil
}

// Logout revokes every token of the caller.
func (s *AccountServiceImpl) Logout(ctx context.Context) (msg string, err error) {
	defer func() { err = s.finish(ctx, OpLogout, err) }()

	id, ok := s.auth.Caller(ctx)
	if !ok {
		return "", errs.New(errs.ErrUnauthorized, MsgUnauthenticated)
	}
	n, err := s.tokens.RevokeAll(ctx, id)
	if err != nil {
		return "", errs.Internal(msgLogoutFailed, err)
	}
	s.metrics.Revoked(n)
	return MsgLoggedOut, nil
}

// ForgotPassword stores a fresh reset code for an active account.
func (s *AccountServiceImpl) ForgotPassword(ctx context.Context, in ForgotPasswordInput) (msg string, err error) {
	defer func() { err = s.finish(ctx, OpForgotPassword, err) }()

	in.Email = normalizeEmail(in.Email)
	if err := s.validator.Struct(in, forgotMessages); err != nil {
		return "", err
	}
	a, err := s.activeByEmail(ctx, in.Email, msgForgotFailed)
	if err != nil {
		return "", err
	}

	code, codeHash, err := s.newCode(ctx)
	if err != nil {
		return "", errs.Internal(msgForgotFailed, err)
	}
	err = s.accounts.SetResetToken(ctx, a.ID, codeHash)
	if errors.Is(err, errs.ErrNotFound) {
		return "", errs.New(errs.ErrUnauthorized, MsgAccountDeleted)
	}
	if err != nil {
		return "", errs.Internal(msgForgotFailed, err)
	}
	a.ResetTokenHash = &codeHash
	return s.deliver(ctx, a, courier.PurposePasswordReset, code, MsgResetCode, MsgResetSent, msgForgotFailed)
}

// ResetPassword replaces the password and consumes the reset code.
func (s *AccountServiceImpl) ResetPassword(ctx context.Context, in ResetPasswordInput) (msg string, err error) {
	defer func() { err = s.finish(ctx, OpResetPassword, err) }()

	in.Email = normalizeEmail(in.Email)
	if err := s.validator.Struct(in, resetMessages); err != nil {
		return "", err
	}
	a, err := s.activeByEmail(ctx, in.Email, msgResetFailed)
	if err != nil {
		return "", err
	}
	if a.ResetTokenHash == nil || !s.hasher.Verify(ctx, in.Token, *a.ResetTokenHash) {
		return "", errs.New(errs.ErrNotFound, MsgResetInvalid)
	}

	pwdHash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return "", errs.Internal(msgResetFailed, err)
	}
	err = s.accounts.ConsumeResetToken(ctx, a.ID, *a.ResetTokenHash, pwdHash)
	if errors.Is(err, errs.ErrNotFound) {
		return "", errs.New(errs.ErrNotFound, MsgResetInvalid)
	}
	if err != nil {
		return "", errs.Internal(msgResetFailed, err)
	}
	return MsgResetDone, nil
}

// SoftDeleteAccount revokes the caller's tokens, then soft-deletes the account.
func (s *AccountServiceImpl) SoftDeleteAccount(ctx context.Context) (msg string, err error) {
	defer func() { err = s.finish(ctx, OpSoftDelete, err) }()

	id, ok := s.auth.Caller(ctx)
	if !ok {
		return "", errs.New(errs.ErrUnauthorized, MsgUnauthenticated)
	}
	a, err := s.accounts.FindByID(ctx, id, false)
	if errors.Is(err, errs.ErrNotFound) {
		return "", errs.New(errs.ErrUnauthorized, MsgUnauthenticated)
	}
	if err != nil {
		return "", errs.Internal(msgDeleteFailed, err)
	}
	if _, err := s.machine.Apply(a, lifecycle.EventSoftDelete); err != nil {
		return "", errs.New(errs.ErrBadRequest, err.Error())
	}

	n, err := s.tokens.RevokeAll(ctx, a.ID)
	if err != nil {
		return "", errs.Internal(msgDeleteFailed, err)
	}
	s.metrics.Revoked(n)
	if err := s.accounts.SoftDelete(ctx, a.ID); err != nil {
		return "", errs.Internal(msgDeleteFailed, err)
	}
	return MsgDeleted, nil
}

// RestoreAccount clears the deletion mark of a soft-deleted account. No token is issued.
func (s *AccountServiceImpl) RestoreAccount(ctx context.Context, in RestoreInput) (msg string, err error) {
	defer func() { err = s.finish(ctx, OpRestore, err) }()

	in.UserID = trim(in.UserID)
	if err := s.validator.Struct(in, restoreMessages); err != nil {
		return "", err
	}
	notFound := errs.New(errs.ErrNotFound, MsgUserNotFound)
	id, err := uuid.FromString(in.UserID)
	if err != nil {
		return "", notFound
	}

	a, err := s.accounts.FindByID(ctx, id, true)
	if errors.Is(err, errs.ErrNotFound) {
		return "", notFound
	}
	if err != nil {
		return "", errs.Internal(msgRestoreFailed, err)
	}
	if _, err := s.machine.Apply(a, lifecycle.EventRestore); err != nil {
		return "", errs.New(errs.ErrBadRequest, MsgNotSoftDeleted)
	}
	if err := s.accounts.Restore(ctx, a.ID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// restored concurrently
			return "", errs.New(errs.ErrBadRequest, MsgNotSoftDeleted)
		}
		return "", errs.Internal(msgRestoreFailed, err)
	}
	return MsgRestored, nil
}

// activeByEmail loads an account for the password flows, rejecting soft-deleted ones explicitly.
func (s *AccountServiceImpl) activeByEmail(ctx context.Context, email, failMsg string) (*model.Account, error) {
	a, err := s.accounts.FindByEmail(ctx, email, true)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.New(errs.ErrNotFound, MsgUserNotFound)
	}
	if err != nil {
		return nil, errs.Internal(failMsg, err)
	}
	if a.Trashed() {
		return nil, errs.New(errs.ErrUnauthorized, MsgAccountDeleted)
	}
	return a, nil
}

// checkUnique reports every taken field at once, soft-deleted accounts included.
func (s *AccountServiceImpl) checkUnique(ctx context.Context, username, email string) error {
	var taken []string
	if _, err := s.accounts.FindByUsername(ctx, username, true); err == nil {
		taken = append(taken, MsgUsernameTaken)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return errs.Internal(msgSignupFailed, err)
	}
	if _, err := s.accounts.FindByEmail(ctx, email, true); err == nil {
		taken = append(taken, MsgEmailTaken)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return errs.Internal(msgSignupFailed, err)
	}
	if len(taken) > 0 {
		return errs.Conflict(taken...)
	}
	return nil
}

func (s *AccountServiceImpl) newCode(ctx context.Context) (code, digest string, err error) {
	code, err = s.gen.Generate()
	if err != nil {
		return "", "", err
	}
	digest, err = s.hasher.Hash(ctx, code)
	if err != nil {
		return "", "", err
	}
	return code, digest, nil
}

// deliver returns the in-band message carrying code, or sends it through the courier.
func (s *AccountServiceImpl) deliver(ctx context.Context, a *model.Account, p courier.Purpose, code, inBand, sent, failMsg string) (string, error) {
	if s.courier.InBand() {
		return inBand + code, nil
	}
	d := courier.Delivery{To: a.Email, Username: a.Username, Purpose: p, Code: code}
	if err := s.courier.Deliver(ctx, d); err != nil {
		return "", errs.Internal(failMsg, err)
	}
	return sent, nil
}

// finish normalizes err into an *errs.Error, logs internal failures and records the outcome.
func (s *AccountServiceImpl) finish(ctx context.Context, op string, err error) error {
	if err != nil {
		var e *errs.Error
		if !errors.As(err, &e) {
			err = errs.Internal("internal error", err)
		}
		if errors.Is(err, errs.ErrInternal) {
			fields := []zap.Field{zap.String("op", op), zap.Error(err)}
			if id, ok := s.callerID(ctx); ok {
				fields = append(fields, zap.String("account_id", id.String()))
			}
			s.log.Error("account operation failed", fields...)
		}
	}
	s.metrics.Observe(op, Outcome(err))
	return err
}

func (s *AccountServiceImpl) callerID(ctx context.Context) (uuid.UUID, bool) {
	if s.auth == nil {
		return uuid.Nil, false
	}
	return s.auth.Caller(ctx)
}

// Outcome labels err by kind for metrics and logs.
func Outcome(err error) string {
	switch errs.KindOf(err) {
	case nil:
		return "ok"
	case errs.ErrValidation:
		return "validation"
	case errs.ErrNotFound:
		return "not_found"
	case errs.ErrUnauthorized:
		return "unauthorized"
	case errs.ErrAlreadyExists:
		return "conflict"
	case errs.ErrBadRequest, errs.ErrInvalidTransition:
		return "bad_request"
	default:
		return "internal"
	}
}

func takenMessage(field string) string {
	if field == repository.FieldUsername {
		return MsgUsernameTaken
	}
	return MsgEmailTaken
}
