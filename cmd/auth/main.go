package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsvc/internal/config"
	"github.com/Skotchmaster/authsvc/internal/db"
	"github.com/Skotchmaster/authsvc/internal/directory"
	"github.com/Skotchmaster/authsvc/internal/events"
	"github.com/Skotchmaster/authsvc/internal/hash"
	"github.com/Skotchmaster/authsvc/internal/httpserver"
	"github.com/Skotchmaster/authsvc/internal/logging"
	"github.com/Skotchmaster/authsvc/internal/mailer"
	"github.com/Skotchmaster/authsvc/internal/middleware"
	"github.com/Skotchmaster/authsvc/internal/migrations"
	"github.com/Skotchmaster/authsvc/internal/repo"
	"github.com/Skotchmaster/authsvc/internal/service"
	"github.com/Skotchmaster/authsvc/internal/tokens"
)

func main() {
	cfg := config.Load()
	cfg.Validate()

	logger := logging.New(cfg.LogLevel, cfg.ServiceName)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gdb, err := db.Open(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("db() error: %v", err)
	}
	if cfg.MigrateOnStart {
		if err := migrations.Up(initCtx, sqlDB, cfg.DBDriver); err != nil {
			log.Fatalf("migrations: %v", err)
		}
	}

	rp := repo.NewGormRepo(gdb)
	sessions, closeSessions := sessionStore(initCtx, cfg, rp)
	publisher, closePublisher := eventPublisher(cfg, logger)
	dir := userDirectory(initCtx, cfg, logger)

	codec := tokens.NewCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	hasher := hash.NewBcrypt(cfg.BcryptCost)

	authSvc := &service.AuthService{
		Users:     rp,
		Sessions:  sessions,
		Codec:     codec,
		Hasher:    hasher,
		Mailer:    activationMailer(cfg, logger),
		Events:    publisher,
		Directory: dir,
		Options: service.Options{
			APIURL:            cfg.APIURL,
			ActivationConsume: cfg.ActivationConsume,
			ActivationTTL:     cfg.ActivationTTL,
			RequireActivation: cfg.RequireActivation,
		},
	}
	userSvc := &service.UserService{
		Users:     rp,
		Hasher:    hasher,
		Events:    publisher,
		Directory: dir,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Common(logger)...)

	httpserver.Register(e, &httpserver.Deps{
		DB:    gdb,
		Codec: codec,
		Auth: &httpserver.AuthHTTP{
			Svc:          authSvc,
			ClientURL:    cfg.ClientURL,
			RefreshTTL:   cfg.RefreshTTL,
			CookieSecure: cfg.CookieSecure,
		},
		Users: &httpserver.UsersHTTP{Svc: userSvc},
		CSRF:  cfg.CSRFEnabled,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	closePublisher()
	closeSessions()
	closeDB(gdb, logger)

	logger.Info("shutdown complete")
}

func sessionStore(ctx context.Context, cfg config.Config, rp *repo.GormRepo) (service.SessionStore, func()) {
	switch cfg.SessionBackend {
	case "sql":
		return rp, func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		return repo.NewRedisSessions(client), func() { _ = client.Close() }
	default:
		log.Fatalf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
		return nil, nil
	}
}

func eventPublisher(cfg config.Config, logger *slog.Logger) (service.EventPublisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers not set, user events disabled")
		return events.Nop{}, func() {}
	}
	p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
}

func userDirectory(ctx context.Context, cfg config.Config, logger *slog.Logger) service.UserDirectory {
	if cfg.ESURL == "" {
		logger.Info("elasticsearch url not set, user search disabled")
		return nil
	}
	client, err := directory.NewClient(ctx, cfg.ESURL, cfg.ESUser, cfg.ESPassword)
	if err != nil {
		log.Fatalf("elasticsearch: %v", err)
	}
	return directory.New(client, cfg.ESIndex)
}

func activationMailer(cfg config.Config, logger *slog.Logger) service.ActivationMailer {
	if cfg.SMTPHost == "" {
		logger.Warn("smtp host not set, activation links are only logged")
		return mailer.Log{}
	}
	m := mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, cfg.ClientURL)
	m.Timeout = cfg.SMTPTimeout
	return m
}

func closeDB(gdb *gorm.DB, logger *slog.Logger) {
	sqlDB, err := gdb.DB()
	if err != nil {
		logger.Error("db() error", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("db close error", "error", err)
	}
}
