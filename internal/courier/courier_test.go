package courier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Modes(t *testing.T) {
	c, err := New(Config{}, zap.NewNop())
	require.NoError(t, err)
	require.True(t, c.InBand())

	c, err = New(Config{Mode: "LOG"}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, c.InBand())

	_, err = New(Config{Mode: ModeSMTP}, zap.NewNop())
	require.Error(t, err, "smtp without host must be rejected")

	c, err = New(Config{Mode: ModeSMTP, SMTP: SMTPSettings{Host: "mail.local", Port: 25, From: "noreply@x.com"}}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, c.InBand())

	_, err = New(Config{Mode: "pigeon"}, zap.NewNop())
	require.Error(t, err)
}

func TestLog_Deliver(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewLog(zap.New(core))
	require.NoError(t, c.Deliver(context.Background(), Delivery{To: "b@x.com", Purpose: PurposeVerification, Code: "abcDEF1234"}))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "abcDEF1234", entries[0].ContextMap()["code"])
	require.Equal(t, string(PurposeVerification), entries[0].ContextMap()["purpose"])
}

func TestSMTP_Deliver(t *testing.T) {
	s, err := NewSMTP(SMTPSettings{Host: "mail.local", Port: 25, From: "noreply@x.com"})
	require.NoError(t, err)

	var gotTo string
	var gotMsg []byte
	s.send = func(_ context.Context, cfg SMTPSettings, from, to string, msg []byte) error {
		require.Equal(t, "noreply@x.com", from)
		gotTo, gotMsg = to, msg
		return nil
	}

	err = s.Deliver(context.Background(), Delivery{To: "b@x.com", Username: "bob", Purpose: PurposePasswordReset, Code: "Zz9Zz9Zz9Z"})
	require.NoError(t, err)
	require.Equal(t, "b@x.com", gotTo)
	msg := string(gotMsg)
	require.True(t, strings.HasPrefix(msg, "From: noreply@x.com\r\nTo: b@x.com\r\nSubject: Your password reset code\r\n"))
	require.Contains(t, msg, "Your password reset code is Zz9Zz9Zz9Z")

	require.Error(t, s.Deliver(context.Background(), Delivery{To: "not an address"}))

	s.send = func(context.Context, SMTPSettings, string, string, []byte) error { return errors.New("refused") }
	require.Error(t, s.Deliver(context.Background(), Delivery{To: "b@x.com"}))
}
