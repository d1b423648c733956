package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"qmark.app/internal/auth"
	"qmark.app/internal/config"
	"qmark.app/internal/httpapi"
	"qmark.app/internal/oauth"
	"qmark.app/internal/obs"
	"qmark.app/internal/secret"
	"qmark.app/internal/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const (
	cleanupEvery   = 15 * time.Minute
	healthEvery    = 10 * time.Second
	shutdownPeriod = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "qmark-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := obs.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	obs.SetLogger(log)
	if err := cfg.Validate(); err != nil {
		return err
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	codec, err := secret.LoadCodec(cfg.Security.EncryptionKey, cfg.Development(), log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.URL,
		store.WithCodec(codec),
		store.WithMaxConns(cfg.Database.MaxConns),
		store.WithOpTimeout(cfg.Database.OpTimeout),
		store.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if cfg.Database.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	authSecret := []byte(cfg.Security.AuthSecret)
	if len(authSecret) == 0 {
		// Validate only lets this through in development.
		token, err := secret.GenerateToken(32)
		if err != nil {
			return err
		}
		authSecret = []byte(token)
		log.Warn("auth secret not configured; using an ephemeral one, issued tokens end with the process",
			zap.String("env", "QMARK_AUTH_SECRET"))
	}
	gate, err := auth.NewGate(st, authSecret,
		auth.WithTokenTTL(cfg.Security.TokenTTL),
		auth.WithSessionTTL(cfg.Security.SessionTTL),
		auth.WithLogger(log),
	)
	if err != nil {
		return err
	}
	registry := oauth.NewRegistry(cfg.CallbackURL(), st, []oauth.Provider{
		oauth.GoogleProvider(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret),
		oauth.FacebookProvider(cfg.OAuth.FacebookClientID, cfg.OAuth.FacebookClientSecret),
	}, oauth.WithStateTTL(cfg.OAuth.StateTTL))

	api := httpapi.New(cfg, st, gate, registry, version)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if addr := cfg.GRPCAddr(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCServer(httpapi.ReadyProbe{Store: st})
		health.Register(grpcSrv)
		go health.Run(ctx, healthEvery)
		go func() {
			log.Info("grpc listening", zap.String("addr", addr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	go cleanup(ctx, st, log)

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", zap.Error(serr))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	gate.Wait()
	log.Info("stopped")
	return err
}

// cleanup purges expired sessions and OAuth states until ctx is done.
func cleanup(ctx context.Context, st *store.Store, log *zap.Logger) {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			sessions, err := st.DeleteExpiredSessions(ctx, now)
			if err != nil {
				log.Warn("session cleanup failed", zap.Error(err))
			}
			states, err := st.DeleteExpiredOAuthStates(ctx, now)
			if err != nil {
				log.Warn("oauth state cleanup failed", zap.Error(err))
			}
			if sessions+states > 0 {
				log.Info("expired rows purged", zap.Int64("sessions", sessions), zap.Int64("oauth_states", states))
			}
		}
	}
}
