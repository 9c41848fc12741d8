package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/welldanyogia/contact-mailer/internal/captcha"
	"github.com/welldanyogia/contact-mailer/internal/config"
	"github.com/welldanyogia/contact-mailer/internal/contact"
	"github.com/welldanyogia/contact-mailer/internal/health"
	"github.com/welldanyogia/contact-mailer/internal/logger"
	"github.com/welldanyogia/contact-mailer/internal/middleware"
	"github.com/welldanyogia/contact-mailer/internal/origin"
	"github.com/welldanyogia/contact-mailer/internal/relay"
	sesrelay "github.com/welldanyogia/contact-mailer/internal/relay/ses"
	smtprelay "github.com/welldanyogia/contact-mailer/internal/relay/smtp"
	"github.com/welldanyogia/contact-mailer/internal/relay/stdout"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file (env vars override it)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured JSON logger
	appLogger := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := buildRegistry(cfg.Origins, appLogger)

	store, err := buildCaptcha(cfg.Captcha)
	if err != nil {
		appLogger.Error("Invalid captcha configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	counter, checks, closeCounter := buildCounter(ctx, cfg, appLogger)
	defer closeCounter()

	captchaGuard := middleware.NewGuard(middleware.GuardConfig{
		Endpoint: "captcha",
		Limit:    cfg.RateLimit.CaptchaMax,
		Window:   cfg.RateLimit.CaptchaWindow,
		Message:  contact.MsgCaptchaLimit,
	}, counter, appLogger)
	sendGuard := middleware.NewGuard(middleware.GuardConfig{
		Endpoint: "send",
		Limit:    cfg.RateLimit.SendMax,
		Window:   cfg.RateLimit.SendWindow,
		Message:  contact.SendLimitMessage(cfg.RateLimit.SendMax, cfg.RateLimit.SendWindow),
	}, counter, appLogger)

	mailRelay, err := buildRelay(cfg.Relay, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize mail relay", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher := contact.NewDispatcher(registry, mailRelay, cfg.Relay.Timeout, appLogger)
	handler := contact.NewHandler(contact.NewValidator(cfg.Validation.PhoneRequired), store, dispatcher, appLogger)
	healthHandler := health.NewHandler(health.Config{Checks: checks, Version: version})

	router := newRouter(routerDeps{
		registry:       registry,
		handler:        handler,
		captchaGuard:   captchaGuard,
		sendGuard:      sendGuard,
		health:         healthHandler,
		logger:         appLogger,
		trustProxyHops: cfg.Server.TrustProxyHops,
		requestTimeout: requestTimeout(cfg.Relay.Timeout),
	})

	// Create server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout(cfg.Relay.Timeout) + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("Starting contact mailer",
			slog.String("addr", addr),
			slog.String("version", version),
			slog.String("relay", mailRelay.Name()),
			slog.Bool("captcha", handler.CaptchaEnabled()),
			slog.Int("origins", registry.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	appLogger.Info("Shutting down server...")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.String("error", err.Error()))
	}
	appLogger.Info("Server exited")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// buildRegistry binds every configured origin to its credentials. Incomplete
// bundles are kept so that their origin fails with a misconfiguration error
// instead of being reported as unknown.
func buildRegistry(origins []config.OriginConfig, log *slog.Logger) *origin.Registry {
	entries := make(map[string]origin.CredentialBundle, len(origins))
	for _, o := range origins {
		bundle := origin.CredentialBundle{
			SenderIdentity:   o.Sender,
			TransportSecret:  o.Secret,
			RecipientAddress: o.Recipient,
		}
		entries[o.Origin] = bundle

		if !bundle.Complete() {
			log.Warn("Origin credentials incomplete",
				slog.String("name", o.Name),
				slog.String("origin", o.Origin),
				slog.Any("missing", bundle.MissingFields()),
			)
			continue
		}
		log.Info("Origin registered",
			slog.String("name", o.Name),
			slog.String("origin", o.Origin),
			slog.Any("bundle", bundle),
		)
	}

	registry := origin.NewRegistry(entries)
	log.Info("Origin registry loaded",
		slog.Int("count", registry.Len()),
		slog.Any("origins", registry.Origins()),
	)
	return registry
}

// buildCaptcha returns nil when the captcha is disabled.
func buildCaptcha(cfg config.CaptchaConfig) (*captcha.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	questions, err := captcha.Parse(cfg.Questions, captcha.PairSeparator, captcha.FieldSeparator)
	if err != nil {
		return nil, err
	}
	return captcha.New(questions), nil
}

// buildCounter selects the rate limit counter backend. Redis is used when
// configured; an unreachable Redis at startup is logged and requests are
// admitted until it recovers.
func buildCounter(ctx context.Context, cfg *config.Config, log *slog.Logger) (middleware.Counter, map[string]health.CheckFunc, func()) {
	if !cfg.RedisEnabled() {
		counter := middleware.NewMemoryCounter()
		counter.StartCleanup(ctx, time.Minute)
		return counter, nil, func() {}
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Error("Invalid REDIS_URL, falling back to in-memory rate limiting", slog.String("error", err.Error()))
		counter := middleware.NewMemoryCounter()
		counter.StartCleanup(ctx, time.Minute)
		return counter, nil, func() {}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis is not reachable", slog.String("addr", opts.Addr), slog.String("error", err.Error()))
	} else {
		log.Info("Connected to Redis", slog.String("addr", opts.Addr))
	}

	checks := map[string]health.CheckFunc{"redis": health.RedisCheck(client)}
	return middleware.NewRedisCounter(client), checks, func() { client.Close() }
}

func buildRelay(cfg config.RelayConfig, log *slog.Logger) (relay.Relay, error) {
	switch cfg.Provider {
	case "smtp", "":
		return smtprelay.New(smtprelay.Config{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			SOCKS5Proxy: cfg.SOCKS5Proxy,
		}, log)
	case "ses":
		return sesrelay.New(cfg.SESRegion, log)
	case "stdout":
		return stdout.New(), nil
	default:
		return nil, fmt.Errorf("unknown relay provider %q (want smtp, ses or stdout)", cfg.Provider)
	}
}
