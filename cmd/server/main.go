// Command server runs the notification API: the REST routes, the badge
// stream and the scheduled cache purge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/pkg/logger"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	minSecretLength   = 16
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	err := run(ctx, os.Args[1:])
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return
	default:
		fmt.Fprintf(os.Stderr, "runmate-server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runmate-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	configPath := fs.String("config", "", "Path to configuration directory or file")
	port := fs.Int("port", 0, "Listen port, overrides server.port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(*configPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	if err := cfg.Server.ConfigureLogging(); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	log := logger.WithModule("bootstrap")
	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Shutdown(context.Background(), log)

	return serve(ctx, &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           stack.Router,
		ReadHeaderTimeout: readHeaderTimeout,
	}, log)
}

// serve blocks until ctx is cancelled or the listener fails, then drains
// in-flight requests.
func serve(ctx context.Context, server *http.Server, log *zap.Logger) error {
	failed := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		failed <- server.ListenAndServe()
	}()

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-failed; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// loadApplicationConfig accepts either a config directory or the path of a
// file inside it. An empty path uses the default search locations.
func loadApplicationConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	case err != nil:
		return nil, fmt.Errorf("stat config path: %w", err)
	case info.IsDir():
		return app.LoadConfig(path)
	default:
		return app.LoadConfig(filepath.Dir(path))
	}
}

// ensureSecretsPresent refuses to start without a signing secret. Tokens are
// issued by the account service, so a generated secret could never verify them.
func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	secret := strings.TrimSpace(cfg.Auth.JWT.Secret)
	switch {
	case secret == "":
		return errors.New("auth.jwt.secret must be configured")
	case len(secret) < minSecretLength:
		return fmt.Errorf("auth.jwt.secret must be at least %d characters (current: %d)", minSecretLength, len(secret))
	}
	cfg.Auth.JWT.Secret = secret
	return nil
}
