package supabase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PollWatcher implements port.Watcher by polling a collection's newest
// modification marker. Supabase realtime channels would push the same
// signal over a websocket; polling keeps the adapter on plain PostgREST
// and the consumer contract identical: callbacks fire at-least-once and
// consumers recompute from a full snapshot, so a missed or duplicate tick
// is harmless.
type PollWatcher struct {
	client   *Client
	interval time.Duration
	logger   *zap.Logger
}

// NewPollWatcher creates a watcher polling at the given interval.
func NewPollWatcher(client *Client, interval time.Duration, logger *zap.Logger) *PollWatcher {
	return &PollWatcher{client: client, interval: interval, logger: logger}
}

// Subscribe starts polling the collection and invokes onChange whenever the
// observed row fingerprint moves. The returned func stops the watcher.
func (w *PollWatcher) Subscribe(ctx context.Context, collection string, onChange func()) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fp, err := w.fingerprint(ctx, collection)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					w.logger.Warn("watcher: poll failed",
						zap.String("collection", collection),
						zap.Error(err),
					)
					continue
				}
				if fp != last {
					if last != "" {
						w.logger.Debug("watcher: change detected",
							zap.String("collection", collection),
						)
						onChange()
					}
					last = fp
				}
			}
		}
	}()

	return cancel
}

// fingerprint fetches a cheap change marker: row count plus the newest
// created_at and last_payment_at visible in the collection.
func (w *PollWatcher) fingerprint(ctx context.Context, collection string) (string, error) {
	path := fmt.Sprintf("%s?select=id,created_at&order=created_at.desc&limit=1", collection)
	if collection == "loans" {
		path = "loans?select=id,created_at,installments_paid,status,last_payment_at&order=created_at.desc&limit=25"
	}
	body, err := w.client.doGet(ctx, path)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
