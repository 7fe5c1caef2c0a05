package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/config"
	apphttp "careerpath-api/internal/http"
	"careerpath-api/internal/mailer"
	"careerpath-api/internal/metrics"
	"careerpath-api/internal/repository/sqlite"
	"careerpath-api/internal/service"
	"careerpath-api/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if cfg.Production() {
		logger.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Fatalf("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	accountRepo := sqlite.NewAccountRepository(db)
	if err := accountRepo.Init(ctx); err != nil {
		logger.Fatalf("init account repository: %v", err)
	}

	registry, appMetrics := metrics.NewRegistry()

	dispatcher := mailer.NewDispatcher(mailer.Config{
		Workers: cfg.Mail.Workers,
		Logger:  logger,
	}, buildSender(cfg, logger))
	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatalf("start mail dispatcher: %v", err)
	}

	accounts := service.NewAccountService(service.AccountConfig{
		ClientURL:            cfg.Server.ClientURL,
		PasswordResetTTL:     cfg.Auth.PasswordResetTTL,
		EmailVerificationTTL: cfg.Auth.EmailVerificationTTL,
		Logger:               logger,
		Recorder:             appMetrics,
	}, accountRepo, dispatcher)

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:        cfg.Auth.JWTSecret,
		Algorithm:     cfg.Auth.JWTAlgorithm,
		TokenTTL:      cfg.Auth.TokenTTL,
		CookieTTL:     cfg.Auth.CookieTTL,
		SecureCookies: cfg.Production(),
	})
	if err != nil {
		logger.Fatalf("setup token issuer: %v", err)
	}

	avatars, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup avatar storage: %v", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Options{
		Accounts:        accounts,
		Issuer:          issuer,
		Authorizer:      auth.NewAuthorizer(issuer, accounts, logger, appMetrics),
		Storage:         avatars,
		Metrics:         appMetrics,
		Registry:        registry,
		Logger:          logger,
		ClientURL:       cfg.Server.ClientURL,
		TokenDelivery:   cfg.Auth.TokenDelivery,
		AvatarKeyPrefix: cfg.Avatar.KeyPrefix,
		AvatarMaxBytes:  cfg.Avatar.MaxBytes,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s (%s)", cfg.Server.Addr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	dispatcher.Shutdown()

	logger.Info("bye")
}

func buildSender(cfg config.Config, logger *logrus.Logger) mailer.Sender {
	if cfg.Mail.SMTPAddr == "" {
		logger.Warn("SMTP_ADDR not set, outbound mail is logged instead of sent")
		return mailer.LogSender{Logger: logger}
	}
	return mailer.NewSMTPSender(cfg.Mail.SMTPAddr, cfg.Mail.From, cfg.Mail.Username, cfg.Mail.Password)
}

// buildStorage returns a nil service when no bucket is configured; avatar
// uploads then answer 503.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Avatar.Bucket == "" {
		logger.Warn("AVATAR_BUCKET not set, avatar uploads are disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Avatar.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Avatar.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Avatar.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s) for avatars", cfg.Avatar.Bucket, cfg.Avatar.Region)
	return storage.NewS3Service(client, cfg.Avatar.Bucket), nil
}
