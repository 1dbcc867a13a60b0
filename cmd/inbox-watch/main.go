// Command inbox-watch signs a user into the notification inbox and logs every
// badge change until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/internal/inbox"
	"github.com/charlesng35/runmate/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inbox-watch", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath, userID string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")
	fs.StringVar(&userID, "user", "", "User whose inbox to watch")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("-user is required")
	}

	var (
		cfg *app.Config
		err error
	)
	if strings.TrimSpace(configPath) == "" {
		cfg, err = app.LoadConfig()
	} else {
		cfg, err = app.LoadConfig(configPath)
	}
	if err != nil {
		return err
	}

	if err := cfg.Server.ConfigureLogging("development"); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync()

	log := logger.WithModule("inbox-watch")

	w, err := newWatcher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer w.Close()

	unsubscribe := w.store.OnChange(func(snap inbox.Snapshot) {
		logSnapshot(log, snap)
	})
	defer unsubscribe()

	if err := w.store.SignIn(ctx, userID); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	log.Info("watching inbox", zap.String("user_id", userID), zap.String("backend", cfg.Notifications.Backend))

	<-ctx.Done()
	log.Info("stopping")
	return nil
}

func logSnapshot(log *zap.Logger, snap inbox.Snapshot) {
	if snap.Loading {
		log.Debug("inbox loading", zap.String("user_id", snap.UserID))
		return
	}

	fields := []zap.Field{
		zap.Uint64("version", snap.Version),
		zap.Int("notifications", len(snap.Notifications)),
	}
	for _, badge := range snap.Badges {
		fields = append(fields, zap.Bool(string(badge.Tab), badge.Visible))
	}
	log.Info("badges", fields...)
}
