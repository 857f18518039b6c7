package daemon

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	"git.home.luguber.info/inful/ghsync/internal/eventstore"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
	"git.home.luguber.info/inful/ghsync/internal/metrics"
)

// consumerBuffer bounds how far a consumer may lag behind the sync queue
// before Publish blocks.
const consumerBuffer = 32

// journalWriter appends sync events to the history journal until ch closes.
// Writes use a context detached from shutdown so the final cycle is recorded.
func journalWriter(ctx context.Context, store eventstore.Store, ch <-chan events.Event, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	for evt := range ch {
		row, err := journalRow(evt)
		if err != nil {
			log.Warn("Failed to encode journal entry", slog.String("event", evt.EventName()), logfields.Error(err))
			continue
		}
		if row == nil {
			continue
		}
		if err := store.Append(ctx, row); err != nil {
			log.Warn("Failed to append journal entry", slog.String("event", evt.EventName()), logfields.Error(err))
		}
	}
}

func journalRow(evt events.Event) (eventstore.Event, error) {
	switch e := evt.(type) {
	case events.SyncCompleted:
		return eventstore.NewSyncCompleted(e)
	case events.BackupCreated:
		return eventstore.NewBackupCreated(e)
	default:
		return nil, nil
	}
}

// metricsRecorder mirrors sync events into the metrics recorder until ch closes.
func metricsRecorder(rec metrics.Recorder, ch <-chan events.Event) {
	for evt := range ch {
		switch e := evt.(type) {
		case events.SyncCompleted:
			rec.ObserveSyncDuration(e.Op, e.Duration)
			rec.IncSyncOutcome(e.Op, metrics.OutcomeLabel(e.Outcome))
			if e.PullOutcome != "" {
				rec.IncPullOutcome(e.PullOutcome)
			}
		case events.BackupCreated:
			rec.IncBackupBranch()
		}
	}
}
