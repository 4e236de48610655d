package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/enrichman/httpgrace"
	"github.com/gin-gonic/gin"

	route "github.com/bassista/sheetwatch/internal/api/route"
	appctx "github.com/bassista/sheetwatch/internal/app"
	"github.com/bassista/sheetwatch/internal/config"
	"github.com/bassista/sheetwatch/internal/logger"
)

func runWatch(ctx context.Context, configDir string) error {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := logger.SetLevel(cfg.Misc.LogLevel); err != nil {
		logger.WithComponent("main").Warnf("invalid log level '%s', keeping '%s': %v", cfg.Misc.LogLevel, logger.Logger.GetLevel(), err)
	}
	logger.WithComponent("main").Debugf("log level set to: %s", logger.Logger.GetLevel())
	logger.WithComponent("main").Infof("watching %d resource(s) with the %s trigger", len(cfg.Watch.Resources), cfg.Watch.Trigger)

	app, err := appctx.NewFromConfig(cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("cannot init app: %w", err)
	}
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		return err
	}

	if !cfg.Server.Enabled {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		<-ctx.Done()
		logger.WithComponent("main").Info("shutting down")
		return nil
	}

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	r := route.SetupRoutes(app, logger.Logger)
	srv := createGraceHttpServer(app.BaseCtx, "api-server", cfg.Server, r)
	logger.WithComponent("main").Infof("API will run on port: %d", cfg.Server.Port)

	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func createGraceHttpServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
