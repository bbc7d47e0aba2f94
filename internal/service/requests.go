package service

import (
	"strings"

	"github.com/and161185/goph-accounts/internal/validate"
)

// SignupInput registers a new account.
type SignupInput struct {
	Username string `json:"username" validate:"required,min=3,max=10"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,password_policy"`
}

// VerifyEmailInput confirms an email address with the code sent at signup.
type VerifyEmailInput struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

// LoginInput exchanges credentials for a bearer token.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordInput requests a password reset code.
type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordInput sets a new password using a reset code.
type ResetPasswordInput struct {
	Email    string `json:"email" validate:"required,email"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,password_policy"`
}

// RestoreInput names the soft-deleted account to bring back.
type RestoreInput struct {
	UserID string `json:"user_id" validate:"required"`
}

// normalizeEmail trims and lower-cases so lookups agree with the unique index.
func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

const (
	msgEmailRequired    = "Please enter an email address."
	msgEmailInvalid     = "Please enter a valid email address."
	msgPasswordRequired = "Please enter a password."
	msgPasswordMin      = "Password must be at least :min characters long."
	msgPasswordPolicy   = "Password must contain at least one uppercase letter, one lowercase letter, and one number."
)

var (
	signupMessages = validate.Messages{
		"username.required":        "Please enter a username.",
		"username.min":             "Username must be at least :min characters long.",
		"username.max":             "Username must not be more than :max characters long.",
		"email.required":           msgEmailRequired,
		"email.email":              msgEmailInvalid,
		"password.required":        msgPasswordRequired,
		"password.min":             msgPasswordMin,
		"password.password_policy": msgPasswordPolicy,
	}
	verifyMessages = validate.Messages{
		"email.required": msgEmailRequired,
		"email.email":    msgEmailInvalid,
		"token.required": "Please enter a verification token.",
	}
	loginMessages = validate.Messages{
		"email.required":    msgEmailRequired,
		"email.email":       msgEmailInvalid,
		"password.required": msgPasswordRequired,
	}
	forgotMessages = validate.Messages{
		"email.required": msgEmailRequired,
		"email.email":    msgEmailInvalid,
	}
	resetMessages = validate.Messages{
		"email.required":           msgEmailRequired,
		"email.email":              msgEmailInvalid,
		"token.required":           "Please enter a verification code.",
		"password.required":        msgPasswordRequired,
		"password.min":             msgPasswordMin,
		"password.password_policy": msgPasswordPolicy,
	}
	restoreMessages = validate.Messages{
		"user_id.required": "Please enter a user ID.",
	}
)

// Messages for unique-field collisions at signup.
const (
	MsgUsernameTaken = "This username is already in use."
	MsgEmailTaken    = "This email address is already in use."
)

func trim(s string) string { return strings.TrimSpace(s) }
