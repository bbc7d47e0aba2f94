package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/goph-accounts/internal/courier"
	"github.com/and161185/goph-accounts/internal/crypto"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, ":8081", cfg.Server.HTTPAddr)
	require.Equal(t, ":9443", cfg.Server.GRPCAddr)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	require.False(t, cfg.Server.TLSEnabled())

	require.Equal(t, DriverMemory, cfg.Database.Driver)
	require.Equal(t, crypto.AlgorithmBcrypt, cfg.Hasher.Algorithm)
	require.Equal(t, 4, cfg.Hasher.Workers)
	require.Equal(t, "operator-secret", cfg.Admin.JWTKey)

	require.False(t, cfg.Metrics.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Metrics.Path)

	cs := cfg.CourierSettings()
	require.Equal(t, courier.ModeSMTP, cs.Mode)
	require.Equal(t, "smtp.example.com", cs.SMTP.Host)
	require.Equal(t, 2525, cs.SMTP.Port)
	require.Equal(t, "no-reply@example.com", cs.SMTP.From)
	require.False(t, cs.SMTP.UseTLS)
	require.Equal(t, 3*time.Second, cs.SMTP.Timeout)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.HTTPAddr)
	require.Equal(t, ":9090", cfg.Server.GRPCAddr)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.NotEmpty(t, cfg.Database.DSN)
	require.Equal(t, crypto.AlgorithmArgon2id, cfg.Hasher.Algorithm)
	require.Equal(t, courier.ModeInBand, cfg.Courier.Mode)
	require.Equal(t, 587, cfg.Courier.SMTP.Port)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
	require.Empty(t, cfg.Admin.JWTKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ACCOUNTS_DATABASE_DRIVER", "postgres")
	t.Setenv("ACCOUNTS_DATABASE_DSN", "postgres://env@db:5432/accounts")
	t.Setenv("ACCOUNTS_ADMIN_JWT_KEY", "from-env")
	t.Setenv("ACCOUNTS_SERVER_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join("testdata"))
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.Equal(t, "postgres://env@db:5432/accounts", cfg.Database.DSN)
	require.Equal(t, "from-env", cfg.Admin.JWTKey)
	require.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Server:   ServerConfig{HTTPAddr: ":8080"},
			Database: DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://x"},
			Hasher:   HasherConfig{Algorithm: crypto.AlgorithmArgon2id},
		}
	}

	cases := map[string]func(*Config){
		"unknown driver": func(c *Config) { c.Database.Driver = "sqlite" },
		"missing dsn":    func(c *Config) { c.Database.DSN = "" },
		"unknown hasher": func(c *Config) { c.Hasher.Algorithm = "md5" },
		"half tls pair":  func(c *Config) { c.Server.TLSCert = "cert.pem" },
		"no listeners":   func(c *Config) { c.Server.HTTPAddr = "" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}

	cfg := base()
	cfg.Database.Driver = " Memory "
	cfg.Database.DSN = ""
	require.NoError(t, cfg.Validate())
	require.Equal(t, DriverMemory, cfg.Database.Driver)
}
