package courier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// SMTPSettings configure the SMTP courier.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

// SMTP sends codes as plain-text mail.
type SMTP struct {
	cfg  SMTPSettings
	send func(ctx context.Context, cfg SMTPSettings, from, to string, msg []byte) error
}

// NewSMTP validates cfg and returns an SMTP courier.
func NewSMTP(cfg SMTPSettings) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port == 0 {
		return nil, errors.New("courier: smtp host and port are required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("courier: invalid from address: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTP{cfg: cfg, send: sendMail}, nil
}

func (*SMTP) InBand() bool { return false }

// Deliver mails the code to d.To.
func (s *SMTP) Deliver(ctx context.Context, d Delivery) error {
	if _, err := mail.ParseAddress(d.To); err != nil {
		return fmt.Errorf("courier: invalid recipient %q: %w", d.To, err)
	}
	return s.send(ctx, s.cfg, s.cfg.From, d.To, formatMessage(s.cfg.From, d.To, subject(d.Purpose), body(d)))
}

func sendMail(ctx context.Context, cfg SMTPSettings, from, to string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.UseTLS {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("courier: dial %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("courier: smtp client: %w", err)
	}
	defer c.Close()

	if !cfg.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				return fmt.Errorf("courier: starttls: %w", err)
			}
		}
	}
	if cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("courier: auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("courier: mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("courier: rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("courier: data: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return fmt.Errorf("courier: write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("courier: close data: %w", err)
	}
	return c.Quit()
}

func formatMessage(from, to, subj, text string) []byte {
	var b strings.Builder
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + strings.NewReplacer("\r", " ", "\n", " ").Replace(subj),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	for _, h := range headers {
		_, _ = io.WriteString(&b, h+"\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(text)
	return []byte(b.String())
}
