// Package courier delivers one-time codes to account holders.
package courier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Modes accepted by New.
const (
	ModeInBand = "inband"
	ModeLog    = "log"
	ModeSMTP   = "smtp"
)

// Purpose tells the recipient what a code is for.
type Purpose string

const (
	PurposeVerification  Purpose = "email_verification"
	PurposePasswordReset Purpose = "password_reset"
)

// Delivery is one code addressed to one account holder.
type Delivery struct {
	To       string
	Username string
	Purpose  Purpose
	Code     string
}

// Courier sends codes. An in-band courier sends nothing: the caller hands the
// code back in its own response instead.
type Courier interface {
	InBand() bool
	Deliver(ctx context.Context, d Delivery) error
}

// Config selects and configures a courier.
type Config struct {
	Mode string
	SMTP SMTPSettings
}

// New builds the courier for cfg.Mode ("" means in-band).
func New(cfg Config, log *zap.Logger) (Courier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeInBand:
		return InBand{}, nil
	case ModeLog:
		return NewLog(log), nil
	case ModeSMTP:
		return NewSMTP(cfg.SMTP)
	default:
		return nil, fmt.Errorf("courier: unknown mode %q", cfg.Mode)
	}
}

// InBand leaves delivery to the caller.
type InBand struct{}

func (InBand) InBand() bool { return true }

func (InBand) Deliver(context.Context, Delivery) error { return nil }

// Log writes codes to the log. Meant for development setups without mail.
type Log struct{ log *zap.Logger }

// NewLog returns a logging courier.
func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("courier")}
}

func (*Log) InBand() bool { return false }

func (l *Log) Deliver(_ context.Context, d Delivery) error {
	l.log.Info("one-time code",
		zap.String("to", d.To),
		zap.String("purpose", string(d.Purpose)),
		zap.String("code", d.Code))
	return nil
}

func subject(p Purpose) string {
	if p == PurposePasswordReset {
		return "Your password reset code"
	}
	return "Your email verification code"
}

func body(d Delivery) string {
	switch d.Purpose {
	case PurposePasswordReset:
		return fmt.Sprintf("Hello %s,\r\n\r\nYour password reset code is %s\r\n", d.Username, d.Code)
	default:
		return fmt.Sprintf("Hello %s,\r\n\r\nYour email verification code is %s\r\n", d.Username, d.Code)
	}
}
