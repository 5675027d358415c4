// Package events republishes the imported-asset index's change
// notifications and the import pipeline's progress onto NATS, so a UI
// process (or any other out-of-process collaborator, per spec §1's
// "oblivious to how a human answers" framing) can subscribe without
// the core engine packages taking a network dependency of their own.
// internal/index and internal/download stay free of NATS; this
// package is the one place that subscribes to their observer
// callbacks and marshals onto subjects. Grounded on the teacher's
// reconciler.publishEvent marshal-and-publish idiom.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/vaultbridge/importengine/internal/model"
	"go.uber.org/zap"
)

// Subject names published by this package.
const (
	SubjectAdded    = "imported.added"
	SubjectUpdated  = "imported.updated"
	SubjectRemoved  = "imported.removed"
	SubjectProgress = "import.progress"
)

// ProgressEvent is published once per coarsened download-progress
// update (spec §4.H's 5%/1MiB throttle is applied by the caller
// before reaching this package).
type ProgressEvent struct {
	OperationID string  `json:"operation_id"`
	AssetID     string  `json:"asset_id"`
	Fraction    float64 `json:"fraction"`
	Status      string  `json:"status"`
}

// Publisher publishes marshaled payloads to a NATS subject. Satisfied
// by *nats.Conn; kept as a narrow interface so tests can substitute a
// recording fake.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bus republishes index change events and pipeline progress onto
// NATS subjects.
type Bus struct {
	conn   Publisher
	logger *zap.Logger
}

// New creates a Bus publishing through conn.
func New(conn Publisher, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{conn: conn, logger: logger}
}

// Connect dials NATS at url and returns a ready *nats.Conn, the
// Publisher Bus expects.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return conn, nil
}

// SubscribeToIndex registers with idx's Subscribe method and
// republishes every non-empty IndexChangeEvent as up to three
// subject publishes (added/updated/removed), mirroring the teacher's
// one-event-per-subject reconciler.publishEvent convention rather
// than batching everything onto one subject.
func (b *Bus) SubscribeToIndex(subscribe func(func(model.IndexChangeEvent)) func()) func() {
	return subscribe(func(ev model.IndexChangeEvent) {
		b.publishTracked(SubjectAdded, ev.Added)
		b.publishTracked(SubjectUpdated, ev.Updated)
		b.publishTracked(SubjectRemoved, ev.Removed)
	})
}

func (b *Bus) publishTracked(subject string, ids []model.TrackedID) {
	if len(ids) == 0 {
		return
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		b.logger.Error("marshaling event payload", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := b.conn.Publish(subject, payload); err != nil {
		b.logger.Error("publishing event", zap.String("subject", subject), zap.Error(err))
	}
}

// DownloadEvent is the minimal shape SubscribeToDownloads needs from
// internal/download.Event, kept narrow so this package does not import
// internal/download (downloads are driven by the pipeline; events only
// republishes what the pipeline hands it).
type DownloadEvent struct {
	ID         string
	Status     string
	BytesDone  int64
	TotalBytes int64
	Done       bool
}

// SubscribeToDownloads registers with a download manager's Subscribe
// method and republishes every event as a progress publish.
func (b *Bus) SubscribeToDownloads(subscribe func(func(DownloadEvent)) func()) func() {
	return subscribe(func(ev DownloadEvent) {
		fraction := 0.0
		if ev.TotalBytes > 0 {
			fraction = float64(ev.BytesDone) / float64(ev.TotalBytes)
		}
		b.PublishProgress(context.Background(), ProgressEvent{
			OperationID: ev.ID,
			Fraction:    fraction,
			Status:      ev.Status,
		})
	})
}

// PublishProgress publishes one coarsened progress update.
func (b *Bus) PublishProgress(_ context.Context, ev ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("marshaling progress event", zap.Error(err))
		return
	}
	if err := b.conn.Publish(SubjectProgress, payload); err != nil {
		b.logger.Error("publishing progress event", zap.Error(err))
	}
}
