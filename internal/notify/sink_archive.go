package notify

import (
	"context"

	"stockledger-api/internal/model"
	"stockledger-api/internal/repository"
)

// ArchiveSink stores published notifications in the notification archive.
type ArchiveSink struct {
	archive repository.NotificationArchive
}

// NewArchiveSink creates a sink for archive.
func NewArchiveSink(archive repository.NotificationArchive) *ArchiveSink {
	return &ArchiveSink{archive: archive}
}

// Name implements Sink.
func (a *ArchiveSink) Name() string { return "archive" }

// Deliver stores n.
func (a *ArchiveSink) Deliver(ctx context.Context, n model.Notification) error {
	return a.archive.InsertNotification(ctx, &n)
}

var _ Sink = (*ArchiveSink)(nil)
