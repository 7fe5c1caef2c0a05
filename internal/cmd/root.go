package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"careerpath-api/internal/auth"
	"careerpath-api/internal/config"
	"careerpath-api/internal/mailer"
	"careerpath-api/internal/repository/sqlite"
	"careerpath-api/internal/service"
)

// App is what the admin commands operate on.
type App struct {
	Accounts service.AccountService
	// Issuer is nil when JWT_SECRET is unset.
	Issuer *auth.Issuer
	Close  func()
}

// AppFactory builds an App for a single command invocation.
type AppFactory func(ctx context.Context, logger *logrus.Logger) (*App, error)

// NewRootCommand returns the careerpathctl command tree.
func NewRootCommand(newApp AppFactory) *cobra.Command {
	var verbose bool
	logger := logrus.New()

	root := &cobra.Command{
		Use:   "careerpathctl",
		Short: "Administer CareerPath accounts",
		Long: `careerpathctl works directly against the CareerPath database configured by
the same environment as the API server (DATABASE_PATH, JWT_SECRET, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.SetOutput(cmd.ErrOrStderr())
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	withApp := func(run func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return run(cmd, args, app)
		}
	}

	root.AddCommand(
		newCreateAdminCommand(withApp),
		newSetRoleCommand(withApp),
		newDeactivateCommand(withApp),
		newIssueTokenCommand(withApp),
	)
	return root
}

// Execute runs careerpathctl against the configured database.
func Execute(ctx context.Context) error {
	return NewRootCommand(DefaultApp).ExecuteContext(ctx)
}

// DefaultApp opens the configured database. Outbound mail is logged, never sent.
func DefaultApp(ctx context.Context, logger *logrus.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repo := sqlite.NewAccountRepository(db)
	if err := repo.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init account repository: %w", err)
	}

	dispatcher := mailer.NewDispatcher(mailer.Config{Workers: 1, Logger: logger}, mailer.LogSender{Logger: logger})
	if err := dispatcher.Start(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("start mail dispatcher: %w", err)
	}

	app := &App{
		Accounts: service.NewAccountService(service.AccountConfig{
			ClientURL:            cfg.Server.ClientURL,
			PasswordResetTTL:     cfg.Auth.PasswordResetTTL,
			EmailVerificationTTL: cfg.Auth.EmailVerificationTTL,
			Logger:               logger,
		}, repo, dispatcher),
		Close: func() {
			dispatcher.Shutdown()
			db.Close()
		},
	}

	if cfg.Auth.JWTSecret != "" {
		app.Issuer, err = auth.NewIssuer(auth.IssuerConfig{
			Secret:    cfg.Auth.JWTSecret,
			Algorithm: cfg.Auth.JWTAlgorithm,
			TokenTTL:  cfg.Auth.TokenTTL,
			CookieTTL: cfg.Auth.CookieTTL,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("setup token issuer: %w", err)
		}
	}
	return app, nil
}
