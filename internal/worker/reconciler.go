package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"poll-engine/internal/domain/poll"
	"poll-engine/internal/domain/vote"
	"poll-engine/internal/metrics"
	"poll-engine/internal/retry"
)

// VoteEvent signals that a poll's tally was touched; the HTTP layer
// pushes these best-effort after every accepted vote.
type VoteEvent struct {
	PollID   uuid.UUID
	OptionID string
	VoterID  uuid.UUID
}

// Reconciler keeps the cached tallies honest: the vote ledger is the
// source of truth and this worker recomputes the tally for any poll
// voted on since the last tick, repairing drift left by a crash between
// the ledger write and the tally write. It also runs the expiry sweep
// so inactive polls do not depend on request traffic alone.
type Reconciler struct {
	Ch       <-chan VoteEvent
	interval time.Duration
	polls    *poll.Service
	entries  vote.Repository
	log      *slog.Logger
}

func NewReconciler(ch <-chan VoteEvent, interval time.Duration, polls *poll.Service, entries vote.Repository, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		Ch:       ch,
		interval: interval,
		polls:    polls,
		entries:  entries,
		log:      log,
	}
}

func (w *Reconciler) Run(ctx context.Context) {
	w.log.Info("reconciler started", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	dirty := make(map[uuid.UUID]struct{})

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconciler stopped")
			return

		case ev := <-w.Ch:
			dirty[ev.PollID] = struct{}{}

		case <-ticker.C:
			w.sweep(ctx, dirty)
			dirty = make(map[uuid.UUID]struct{})
		}
	}
}

func (w *Reconciler) sweep(ctx context.Context, dirty map[uuid.UUID]struct{}) {
	if n, err := w.polls.DeactivateExpired(ctx); err != nil {
		w.log.Error("expiry sweep failed", "err", err)
	} else if n > 0 {
		w.log.Info("deactivated expired polls", "count", n)
	}

	for pollID := range dirty {
		var repaired, gone bool
		err := retry.DoWithRetry(ctx, 3, 100*time.Millisecond, func() error {
			var err error
			_, repaired, err = w.entries.RecomputeTally(ctx, pollID)
			if errors.Is(err, poll.ErrPollNotFound) {
				gone = true
				return nil
			}
			return err
		})
		switch {
		case gone:
			// Poll was deleted after the vote event; nothing to repair.
		case err != nil:
			w.log.Error("tally recompute failed", "poll_id", pollID, "err", err)
		case repaired:
			metrics.IncReconciliation("repaired")
			w.log.Warn("tally drift repaired", "poll_id", pollID)
		default:
			metrics.IncReconciliation("clean")
		}
	}
}
