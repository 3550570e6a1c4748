package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/broadcast"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/identity"
	"github.com/park285/cheese-arena/internal/jsonclient"
	"github.com/park285/cheese-arena/internal/leaderboard"
	"github.com/park285/cheese-arena/internal/metrics"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/internal/wsserver"
)

func main() {
	cmd := &cli.Command{
		Name:  "arena-server",
		Usage: "live two-player chess arena",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Usage: "dotenv files loaded before the environment is read", Value: []string{".env"}},
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides HTTP_ADDR)"},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "arena-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if err := appcfg.LoadDotEnv(cmd.StringSlice("env-file")...); err != nil {
		return err
	}
	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	log := obslog.Named("server")
	defer func() { _ = obslog.Close() }()

	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if v := cmd.String("addr"); v != "" {
		cfg.HTTPAddr = v
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreBackend, cfg.StoreFile, cfg.RedisURL, cfg.RedisStateKey)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = st.Close() }()

	var archiver arena.Archiver
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		defer func() { _ = repo.Close() }()
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("archive schema: %w", err)
		}
		archiver = repo
	} else {
		log.Info("archive disabled (DATABASE_URL not set)")
	}

	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	boards, err := leaderboard.New(cfg.TimeZone, cfg.LeaderboardLocale)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}
	m := metrics.New()
	router := broadcast.NewRouter(cfg.WSOutboxSize, obslog.Named("broadcast"))

	coord, err := arena.NewCoordinator(arena.Deps{
		Engine:       rules.NewChess(),
		Store:        st,
		Archive:      archiver,
		Notifier:     router,
		Leaderboard:  boards,
		Messages:     messages,
		Metrics:      m,
		ChallengeTTL: cfg.ChallengeTTL,
		Logger:       obslog.Named("arena"),
	})
	if err != nil {
		return err
	}
	if err := coord.Restore(ctx); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	hub := arena.NewHub(context.Background(), coord, cfg.ChallengeSweep, obslog.Named("hub"))
	defer hub.Close()

	issuer, err := identity.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	api := httpapi.New(httpapi.Deps{
		Hub:          hub,
		Issuer:       issuer,
		Verifier:     verifierFor(cfg),
		AllowDevAuth: cfg.AllowDevAuth,
		Metrics:      m,
		Messages:     messages,
		LogLevel:     obslog.LevelHandler(),
		Logger:       obslog.Named("http"),
	})
	ws := wsserver.New(hub, router, api.Authenticate,
		wsserver.WithPingInterval(cfg.WSPing),
		wsserver.WithLogger(obslog.Named("ws")),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(ws),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend), zap.String("tz", cfg.TimeZone))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

func verifierFor(cfg *appcfg.AppConfig) identity.Verifier {
	switch cfg.IdentityMode {
	case "remote":
		client := jsonclient.New(cfg.IdentityRemoteURL, jsonclient.WithTimeout(5*time.Second), jsonclient.WithRetry(2))
		return identity.NewRemoteVerifier(client, cfg.IdentityRemotePath)
	case "jwt":
		if cfg.IdentitySecret == "" {
			return nil
		}
		return identity.NewJWTVerifier(cfg.IdentitySecret, cfg.IdentityIssuer, cfg.IdentityAudience)
	}
	return nil
}
