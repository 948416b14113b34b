package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"reviewhub.org/internal/audit"
	"reviewhub.org/internal/auth"
	"reviewhub.org/internal/config"
	"reviewhub.org/internal/kv"
	"reviewhub.org/internal/obs"
)

var commit = "unknown"

// application bundles the wired identity subsystem for the transport layer,
// which is mounted by the embedding deployment, not here.
type application struct {
	svc      *auth.Service
	resolver *auth.PermissionResolver
	delivery auth.DeliveryPolicy
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := obs.SetupLogger(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(cfg.Version, commit)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Error("open db", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	defer db.Close()

	redis := kv.NewRedis(kv.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redis.Close()

	store := auth.NewPGStore(db)

	tokens, err := auth.NewTokenService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret,
		auth.WithTokenPolicy(auth.TokenPolicy{
			AccessTTL:        cfg.AccessTokenTTL,
			RefreshTTL:       cfg.RefreshTokenTTL,
			RefreshThreshold: cfg.RefreshThreshold,
		}),
	)
	if err != nil {
		log.Error("token service", "error", err)
		os.Exit(1)
	}

	sessions := auth.NewSessionRegistry(redis, auth.SessionPolicy{
		InactivityTimeout: cfg.SessionInactivityTimeout,
		MaxDuration:       cfg.MaxSessionDuration,
	}, auth.WithSessionLogger(log))

	// Revocation markers must outlive the longest-lived token they cover.
	revocations := auth.NewRevocationStore(redis, cfg.RefreshTokenTTL+24*time.Hour)

	oauth := auth.NewFederationManager([]auth.ProviderConfig{
		auth.GitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.RedirectURI),
		auth.GoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI),
		auth.GitLabProvider(cfg.GitLab.ClientID, cfg.GitLab.ClientSecret, cfg.GitLab.RedirectURI),
		auth.BitbucketProvider(cfg.Bitbucket.ClientID, cfg.Bitbucket.ClientSecret, cfg.Bitbucket.RedirectURI),
	})
	states := auth.NewStateStore(redis)

	svc, err := auth.NewService(store, tokens, sessions, revocations, oauth, states,
		auth.WithServiceLogger(log),
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithLoginLimiter(auth.NewLoginLimiter(float64(cfg.LoginRatePerMinute), cfg.LoginRateBurst)),
		auth.WithAuditHook(func(ctx context.Context, event string, fields map[string]any) {
			_ = audit.LogEvent(ctx, event, fields)
		}),
	)
	if err != nil {
		log.Error("auth service", "error", err)
		os.Exit(1)
	}

	resolverOpts := []auth.ResolverOption{
		auth.WithResolverLogger(log),
		auth.WithResolverAuditHook(func(ctx context.Context, event string, fields map[string]any) {
			_ = audit.LogEvent(ctx, event, fields)
		}),
	}
	if cfg.AdminOverrideSecret != "" {
		resolverOpts = append(resolverOpts, auth.WithAdminOverride(cfg.AdminOverrideSecret))
	}
	resolver, err := auth.NewPermissionResolver(store, resolverOpts...)
	if err != nil {
		log.Error("permission resolver", "error", err)
		os.Exit(1)
	}

	app := &application{
		svc:      svc,
		resolver: resolver,
		delivery: auth.NewDeliveryPolicy(
			auth.DeliveryStrategy(cfg.TokenDelivery),
			cfg.CookieSecure,
			parseSameSite(cfg.CookieSameSite),
			tokens.Policy(),
			sessions.Policy(),
		),
	}
	log.Info("identity subsystem wired",
		"delivery", app.delivery.Strategy,
		"admin_override", app.resolver.OverrideEnabled())

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Permissions().Ensure(bootCtx, auth.BuiltinPermissions); err != nil {
		bootCancel()
		log.Error("ensure permission catalog", "error", err)
		os.Exit(1)
	}
	bootCancel()

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweepSessions(sweepCtx, sessions, cfg.SessionSweepInterval, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redis.Ping(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting reviewhub-identity", "version", cfg.Version, "addr", srv.Addr,
		"providers", oauth.Providers())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("stopped")
}

func parseSameSite(mode string) http.SameSite {
	switch mode {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func sweepSessions(ctx context.Context, sessions *auth.SessionRegistry, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.Sweep(ctx)
			if err != nil {
				log.Warn("session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("session sweep", "removed", removed)
			}
		}
	}
}
