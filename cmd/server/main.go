// Command accounts-server serves the account lifecycle API over gRPC and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/goph-accounts/internal/admin"
	"github.com/and161185/goph-accounts/internal/authctx"
	"github.com/and161185/goph-accounts/internal/config"
	"github.com/and161185/goph-accounts/internal/courier"
	"github.com/and161185/goph-accounts/internal/crypto"
	"github.com/and161185/goph-accounts/internal/logging"
	"github.com/and161185/goph-accounts/internal/metrics"
	"github.com/and161185/goph-accounts/internal/migrate"
	"github.com/and161185/goph-accounts/internal/model"
	"github.com/and161185/goph-accounts/internal/repository"
	"github.com/and161185/goph-accounts/internal/repository/memory"
	"github.com/and161185/goph-accounts/internal/repository/postgres"
	"github.com/and161185/goph-accounts/internal/rpc"
	grpcserver "github.com/and161185/goph-accounts/internal/server/grpc"
	httpserver "github.com/and161185/goph-accounts/internal/server/http"
	"github.com/and161185/goph-accounts/internal/service"
	"github.com/and161185/goph-accounts/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	configDir := flag.String("config", "", "directory containing config.yaml")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	grantAdmin := flag.String("grant-admin", "", "grant the admin role to the account with this email and exit")
	flag.Parse()

	if err := run(*configDir, *migrateOnly, *grantAdmin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// storage bundles the repositories of one backend.
type storage struct {
	accounts repository.AccountRepository
	tokens   repository.TokenRepository
	roles    repository.RoleRepository
	ready    func(ctx context.Context) error
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on exit")
		s := memory.NewStore()
		return &storage{
			accounts: s.Accounts(),
			tokens:   s.Tokens(),
			roles:    s.Roles(),
			close:    func() {},
		}, nil
	}

	if _, err := migrate.Up(ctx, cfg.Database.DSN, log); err != nil {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	db, err := postgres.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return &storage{
		accounts: postgres.NewAccountRepo(db),
		tokens:   postgres.NewTokenRepo(db),
		roles:    postgres.NewRoleRepo(db),
		ready:    db.Ping,
		close:    db.Close,
	}, nil
}

func run(configDir string, migrateOnly bool, grantAdmin string) (err error) {
	var paths []string
	if configDir != "" {
		paths = append(paths, configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("driver", cfg.Database.Driver),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrateOnly {
		if cfg.Database.Driver != config.DriverPostgres {
			return errors.New("-migrate requires the postgres driver")
		}
		v, err := migrate.Up(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Int64("version", v))
		return nil
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	if grantAdmin != "" {
		return grant(ctx, store, grantAdmin, logger)
	}

	kdf, err := crypto.NewKDF(cfg.Hasher.Algorithm)
	if err != nil {
		return err
	}
	post, err := courier.New(cfg.CourierSettings(), logger)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	issuer := token.NewIssuer(store.tokens, store.accounts, token.WithLogger(logger))
	guard := admin.NewGuard([]byte(cfg.Admin.JWTKey))
	if !guard.Enabled() {
		logger.Warn("admin.jwt_key is empty, account restore is not guarded")
	}

	svc := service.NewAccountService(service.Deps{
		Accounts:  store.accounts,
		Roles:     store.roles,
		Hasher:    crypto.NewPooledHasher(kdf, cfg.Hasher.Workers),
		Generator: crypto.NewSecretGenerator(),
		Tokens:    issuer,
		Auth:      authctx.Context{},
		Courier:   post,
		Log:       logger,
		Metrics:   m,
	})

	gs, err := newGRPCServer(cfg, svc, issuer, guard, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	hs := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.Config{
			Accounts:    svc,
			Auth:        issuer,
			Guard:       guard,
			Log:         logger,
			Metrics:     m,
			MetricsPath: cfg.Metrics.Path,
			Ready:       store.ready,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr), zap.Bool("tls", cfg.Server.TLSEnabled()))
			errCh <- gs.Serve(lis)
		}()
	}
	if cfg.Server.HTTPAddr != "" {
		go func() {
			logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr), zap.Bool("tls", cfg.Server.TLSEnabled()))
			var serveErr error
			if cfg.Server.TLSEnabled() {
				serveErr = hs.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
			} else {
				serveErr = hs.ListenAndServe()
			}
			if errors.Is(serveErr, http.ErrServerClosed) {
				serveErr = nil
			}
			errCh <- serveErr
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownErr := shutdown(gs, hs, cfg.Server.ShutdownTimeout)
	logger.Info("shutdown complete")
	return multierr.Append(err, shutdownErr)
}

func newGRPCServer(cfg *config.Config, svc service.AccountService, issuer *token.Issuer, guard *admin.Guard, logger *zap.Logger) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(issuer, logger),
		),
	}
	if cfg.Server.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	s := grpc.NewServer(opts...)
	rpc.RegisterAccountsServer(s, grpcserver.New(svc, guard))

	// Health & reflection (dev)
	hs := health.NewServer()
	hs.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Server.Reflection {
		reflection.Register(s)
	}
	return s, nil
}

// shutdown stops both servers, forcing the gRPC side once timeout elapses.
func shutdown(gs *grpc.Server, hs *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()

	err := hs.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		gs.Stop()
		err = multierr.Append(err, errors.New("grpc: graceful stop timed out"))
	}
	return err
}

func grant(ctx context.Context, store *storage, email string, log *zap.Logger) error {
	a, err := store.accounts.FindByEmail(ctx, email, true)
	if err != nil {
		return fmt.Errorf("grant admin to %s: %w", email, err)
	}
	if err := store.roles.Grant(ctx, a.ID, model.RoleAdmin); err != nil {
		return fmt.Errorf("grant admin to %s: %w", email, err)
	}
	log.Info("admin role granted", zap.String("account_id", a.ID.String()))
	return nil
}
