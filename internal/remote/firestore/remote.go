// Package firestore mirrors the notification collection kept in Cloud
// Firestore, the document store the mobile app writes to.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	fs "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/charlesng35/runmate/internal/notifications"
	"github.com/charlesng35/runmate/pkg/logger"
	"github.com/charlesng35/runmate/pkg/metrics"
)

const (
	// DefaultCollection is the collection holding notification documents.
	DefaultCollection = "notifications"

	backendLabel = "firestore"
)

// ErrNotFound is returned by Delete for ids the user does not own.
var ErrNotFound = errors.New("firestore: notification not found")

// Config locates the Firebase project. When FIRESTORE_EMULATOR_HOST is set
// the client talks to the emulator and credentials are not required.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

// Remote reads and writes notification documents in Firestore.
type Remote struct {
	client     *fs.Client
	collection string
	log        *zap.Logger
}

// New initialises a Firebase app and its Firestore client.
func New(ctx context.Context, cfg Config) (*Remote, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firestore: project id is required")
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore: open client: %w", err)
	}
	return NewFromClient(client, cfg.Collection), nil
}

// NewFromClient wraps an existing Firestore client.
func NewFromClient(client *fs.Client, collection string) *Remote {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultCollection
	}
	return &Remote{client: client, collection: collection, log: logger.WithModule("firestore")}
}

// Close releases the underlying client.
func (r *Remote) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Remote) coll() *fs.CollectionRef {
	return r.client.Collection(r.collection)
}

// Watch runs a snapshot listener over the user's notifications, newest
// first, and hands every snapshot to fn. It returns nil when ctx is
// cancelled and the listener error otherwise.
func (r *Remote) Watch(ctx context.Context, userID string, fn func([]notifications.Notification)) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("firestore: user id is required")
	}

	it := r.coll().
		Where(fieldTargetUserID, "==", userID).
		OrderBy(fieldTimestamp, fs.Desc).
		Snapshots(ctx)
	defer it.Stop()

	gauge := metrics.FeedSubscriptions.WithLabelValues(backendLabel)
	gauge.Inc()
	defer gauge.Dec()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || isCancelled(err) {
				return nil
			}
			metrics.FeedErrors.WithLabelValues(backendLabel).Inc()
			return fmt.Errorf("firestore: watch notifications: %w", err)
		}

		docs, err := snap.Documents.GetAll()
		if err != nil {
			if ctx.Err() != nil || isCancelled(err) {
				return nil
			}
			metrics.FeedErrors.WithLabelValues(backendLabel).Inc()
			return fmt.Errorf("firestore: read snapshot: %w", err)
		}

		items := make([]notifications.Notification, 0, len(docs))
		for _, doc := range docs {
			items = append(items, DecodeDocument(doc.Ref.ID, doc.Data()).Decode())
		}
		fn(items)
	}
}

// MarkRead sets isRead on each listed document and touches no other field.
// Writes are batched through a BulkWriter; per-document failures are
// combined into one error.
func (r *Remote) MarkRead(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	bw := r.client.BulkWriter(ctx)
	type pending struct {
		id  string
		job *fs.BulkWriterJob
	}
	jobs := make([]pending, 0, len(ids))

	var errs error
	for _, id := range ids {
		job, err := bw.Update(r.coll().Doc(id), []fs.Update{{Path: fieldIsRead, Value: true}})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		jobs = append(jobs, pending{id: id, job: job})
	}
	bw.End()

	for _, p := range jobs {
		if _, err := p.job.Results(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.id, err))
		}
	}

	if errs != nil {
		r.log.Warn("mark read partially failed",
			zap.String("user_id", userID),
			zap.Int("requested", len(ids)),
			zap.Int("failed", len(multierr.Errors(errs))),
		)
		return fmt.Errorf("firestore: mark read: %w", errs)
	}
	return nil
}

// Create adds a notification document and returns its generated id.
func (r *Remote) Create(ctx context.Context, rec notifications.Record) (string, error) {
	if strings.TrimSpace(rec.TargetUserID) == "" {
		return "", errors.New("firestore: target user id is required")
	}
	ref, _, err := r.coll().Add(ctx, EncodeRecord(rec))
	if err != nil {
		return "", fmt.Errorf("firestore: create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(rec.Type).Inc()
	return ref.ID, nil
}

// Delete removes one of the user's notification documents. A document that
// is missing or addressed to someone else yields ErrNotFound.
func (r *Remote) Delete(ctx context.Context, userID, id string) error {
	userID, id = strings.TrimSpace(userID), strings.TrimSpace(id)
	if userID == "" || id == "" {
		return ErrNotFound
	}

	ref := r.coll().Doc(id)
	doc, err := ref.Get(ctx)
	switch {
	case status.Code(err) == codes.NotFound:
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("firestore: load notification: %w", err)
	}
	if owner, _ := doc.Data()[fieldTargetUserID].(string); owner != userID {
		return ErrNotFound
	}

	if _, err := ref.Delete(ctx, fs.LastUpdateTime(doc.UpdateTime)); err != nil {
		return fmt.Errorf("firestore: delete notification: %w", err)
	}
	return nil
}

// isCancelled reports whether a listener error means the listener was stopped.
func isCancelled(err error) bool {
	if errors.Is(err, iterator.Done) || errors.Is(err, context.Canceled) {
		return true
	}
	return status.Code(err) == codes.Canceled
}
