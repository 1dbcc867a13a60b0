package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/app"
	"github.com/charlesng35/runmate/internal/database"
	"github.com/charlesng35/runmate/internal/remote/firestore"
	"github.com/charlesng35/runmate/internal/services"
	apperrors "github.com/charlesng35/runmate/pkg/errors"
)

// publisher writes notifications to the collection the app reads.
type publisher interface {
	Create(ctx context.Context, input services.CreateNotificationInput) (string, error)
	Delete(ctx context.Context, userID, id string) error
	Close() error
}

// newPublisher picks the backend named by notifications.backend.
func newPublisher(ctx context.Context, cfg *app.Config, log *zap.Logger) (publisher, error) {
	if cfg.Notifications.Backend == app.FeedBackendFirestore {
		remote, err := firestore.New(ctx, cfg.Firebase.RemoteConfig())
		if err != nil {
			return nil, fmt.Errorf("connect firestore: %w", err)
		}
		return &firestorePublisher{remote: remote, now: time.Now}, nil
	}

	db, err := database.Open(cfg.Database.ConnectionConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pub := &sqlPublisher{db: db}
	if err := database.Migrate(db); err != nil {
		return nil, errors.Join(err, pub.Close())
	}
	if pub.svc, err = services.NewNotificationService(db, nil); err != nil {
		return nil, errors.Join(err, pub.Close())
	}
	log.Debug("publishing to sql", zap.String("driver", cfg.Database.Driver))
	return pub, nil
}

// firestorePublisher adds documents so firestore assigns their ids.
type firestorePublisher struct {
	remote *firestore.Remote
	now    func() time.Time
}

func (p *firestorePublisher) Create(ctx context.Context, input services.CreateNotificationInput) (string, error) {
	rec, err := services.BuildRecord(input, p.now())
	if err != nil {
		return "", err
	}
	return p.remote.Create(ctx, rec)
}

func (p *firestorePublisher) Delete(ctx context.Context, userID, id string) error {
	if err := p.remote.Delete(ctx, userID, id); errors.Is(err, firestore.ErrNotFound) {
		return apperrors.ErrNotFound
	} else if err != nil {
		return err
	}
	return nil
}

func (p *firestorePublisher) Close() error { return p.remote.Close() }

type sqlPublisher struct {
	db  *gorm.DB
	svc *services.NotificationService
}

func (p *sqlPublisher) Create(ctx context.Context, input services.CreateNotificationInput) (string, error) {
	dto, err := p.svc.Create(ctx, input)
	if err != nil {
		return "", err
	}
	return dto.ID, nil
}

func (p *sqlPublisher) Delete(ctx context.Context, userID, id string) error {
	return p.svc.Delete(ctx, userID, id)
}

func (p *sqlPublisher) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
