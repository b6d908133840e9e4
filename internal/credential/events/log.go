package events

import (
	"context"
	"log/slog"
)

// Log writes each notification to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) PublishIssued(ctx context.Context, event Issued) error {
	l.logger.InfoContext(ctx, "credential issued",
		"record_id", uint64(event.RecordID),
		"issuer", event.Issuer.String(),
		"holder", event.Holder.String(),
		"metadata_ref", event.MetadataRef,
		"policy", event.Policy.String(),
	)
	return nil
}
