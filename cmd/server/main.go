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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/draft-relay/internal/broadcast"
	"github.com/DoyleJ11/draft-relay/internal/config"
	"github.com/DoyleJ11/draft-relay/internal/engine"
	"github.com/DoyleJ11/draft-relay/internal/httpapi"
	"github.com/DoyleJ11/draft-relay/internal/hub"
	"github.com/DoyleJ11/draft-relay/internal/session"
	"github.com/DoyleJ11/draft-relay/internal/ws"
)

var (
	flagEnvFile string
	flagAddr    string
	flagLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "draft-server",
	Short: "Real-time pick/ban draft rooms over websockets",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagEnvFile, "env-file", ".env", "optional dotenv file")
	flags.StringVar(&flagAddr, "addr", "", "listen address (overrides DRAFT_ADDR)")
	flags.StringVar(&flagLevel, "log-level", "", "log level (overrides DRAFT_LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagLevel != "" {
		cfg.LogLevel = flagLevel
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := engine.DefaultCatalog()
	if _, err := catalog.Lookup(cfg.DefaultStyle); err != nil {
		return fmt.Errorf("default style: %w", err)
	}

	h := hub.NewHub(ctx, catalog, log.Named("hub"))
	bc := broadcast.New(log.Named("broadcast"), broadcast.Options{SendTimeout: cfg.WriteTimeout})
	sessions := session.NewManager(h, bc, log.Named("session"), session.WithDefaultStyle(cfg.DefaultStyle))

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:      h,
		Sessions: sessions,
		Log:      log.Named("http"),
		WS: ws.Options{
			OutboxSize:     cfg.OutboxSize,
			WriteTimeout:   cfg.WriteTimeout,
			ReadTimeout:    cfg.ReadTimeout,
			OriginPatterns: cfg.AllowedOrigins,
		},
		DefaultStyle: cfg.DefaultStyle,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	h.Shutdown()
	log.Info("shutdown complete")
	return nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Env == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
