// Command notify creates or deletes a notification in the configured
// collection, the way backend producers do. With notifications.backend set
// to firestore the document id is assigned by firestore.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/internal/services"
	"github.com/charlesng35/runmate/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		configPath, deleteID string
		input                services.CreateNotificationInput
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")
	fs.StringVar(&input.TargetUserID, "user", "", "Runner the notification is addressed to")
	fs.StringVar(&input.Type, "type", "", "Notification type, e.g. message, like, rating")
	fs.StringVar(&input.Title, "title", "", "Title; defaults to the type's template")
	fs.StringVar(&input.Message, "message", "", "Message; defaults to the type's template")
	fs.StringVar(&input.ChatID, "chat", "", "Chat room id")
	fs.StringVar(&input.EventID, "event", "", "Meeting event id")
	fs.StringVar(&input.PostID, "post", "", "Board post id")
	fs.StringVar(&input.CommentID, "comment", "", "Board comment id")
	fs.StringVar(&input.ParticipantID, "participant", "", "Participant id")
	fs.StringVar(&input.Version, "version", "", "App version for update notices")
	fs.StringVar(&deleteID, "delete", "", "Delete this notification id instead of creating one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(input.TargetUserID) == "" {
		return errors.New("-user is required")
	}
	if deleteID == "" && strings.TrimSpace(input.Type) == "" {
		return errors.New("-type is required unless -delete is given")
	}

	paths := []string{}
	if configPath = strings.TrimSpace(configPath); configPath != "" {
		paths = append(paths, configPath)
	}
	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}
	if err := cfg.Server.ConfigureLogging("development"); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	log := logger.WithModule("notify")

	pub, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("close backend", zap.Error(err))
		}
	}()

	if deleteID != "" {
		if err := pub.Delete(ctx, input.TargetUserID, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", deleteID)
		return nil
	}

	id, err := pub.Create(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}
