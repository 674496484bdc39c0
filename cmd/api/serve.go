package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/guestpass-service/internal/api/http"
	"github.com/spec-kit/guestpass-service/internal/api/http/handlers"
	"github.com/spec-kit/guestpass-service/internal/auth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background scheduler",
	RunE:  runServe,
}

var serveNoScheduler bool

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "serve the API without running background jobs")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	schedulerDone := make(chan struct{})
	if cfg.Scheduler.Enabled && !serveNoScheduler {
		go func() {
			defer close(schedulerDone)
			if err := app.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", zap.Error(err))
			}
		}()
	} else {
		close(schedulerDone)
		logger.Info("scheduler disabled")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	if cfg.Auth.ClientKeyHash == "" {
		logger.Warn("AUTH_CLIENT_KEY_HASH not set, token issuance is disabled")
	}
	registrations := handlers.NewRegistrationsHandler(app.lifecycle, time.Duration(cfg.Scheduler.NoticeWindowHours)*time.Hour)

	server := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, logger, app.metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, app.health),
		Auth:           handlers.NewAuthHandler(auth.NewTokenIssuer(tokens, cfg.Auth.ClientKeyHash, cfg.Auth.AdminIDs)),
		Registrations:  registrations,
		Admin:          handlers.NewAdminHandler(registrations, app.scheduler),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        app.metrics.Handler(),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- server.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		stop()
		<-schedulerDone
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-schedulerDone
	return nil
}
