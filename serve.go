package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/denisenanni/portfolio/internal/config"
	"github.com/denisenanni/portfolio/internal/contact"
	"github.com/denisenanni/portfolio/internal/content"
	"github.com/denisenanni/portfolio/internal/logging"
	"github.com/denisenanni/portfolio/internal/ratelimit"
	"github.com/denisenanni/portfolio/internal/server"
	"github.com/denisenanni/portfolio/internal/store"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the web server. Settings come from the environment and an
optional .env file; see the config package for the full list.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return configError{err}
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return configError{err}
	}
	defer func() { _ = log.Sync() }()
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	site, err := content.Load(cfg.ContentPath)
	if err != nil {
		return configError{err}
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	limiter, err := ratelimit.New(ctx, ratelimit.Config{
		Backend:       cfg.RateLimitBackend,
		PerMinute:     cfg.RateLimitPerMinute,
		Burst:         cfg.RateLimitBurst,
		RedisAddress:  cfg.RedisAddress,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	if c, ok := limiter.(io.Closer); ok {
		defer c.Close()
	}

	srv, err := server.New(server.Deps{
		Config:  cfg,
		Site:    site,
		Store:   st,
		Sender:  newSender(cfg, log),
		Limiter: limiter,
		Log:     log,
	})
	if err != nil {
		return configError{err}
	}

	if cfg.TrackVisitors {
		cleanup, err := srv.ScheduleCleanup()
		if err != nil {
			return configError{err}
		}
		cleanup.Start()
		defer cleanup.Stop()
	}

	log.Info("starting portfolio",
		zap.String("version", Version),
		zap.String("mode", cfg.GinMode),
		zap.String("contact_backend", cfg.ContactBackend),
		zap.String("rate_limit_backend", cfg.RateLimitBackend),
	)
	return srv.Run(ctx)
}

// newSender picks the contact delivery backend. Validate has already checked
// that the chosen backend is fully configured.
func newSender(cfg *config.Config, log *zap.Logger) contact.Sender {
	switch cfg.ContactBackend {
	case "script":
		return contact.NewScriptSender(cfg.ContactScriptURL)
	case "smtp":
		return &contact.SMTPSender{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			To:   cfg.ToEmail,
		}
	default:
		return contact.NopSender{Log: log.Named("contact")}
	}
}
