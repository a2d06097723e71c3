// Package reconciler turns raw log triplets into session records. A single
// worker drains the watcher channel so store mutations for one email are
// never interleaved.
package reconciler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"queuewatch/internal/events"
	"queuewatch/internal/store"
)

// Reconciler applies queue lifecycle events to a SessionStore.
type Reconciler struct {
	store  store.SessionStore
	dedup  *events.DedupCache
	domain string
	log    *slog.Logger
	now    func() time.Time

	// notify, when set, observes every event that survived dedup and
	// parsing. Used for the SSE fanout.
	notify func(events.ParsedEvent)
}

func New(st store.SessionStore, dedup *events.DedupCache, domain string, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  st,
		dedup:  dedup,
		domain: domain,
		log:    log,
		now:    time.Now,
	}
}

// OnEvent registers a callback invoked after each reconciled event.
func (r *Reconciler) OnEvent(fn func(events.ParsedEvent)) {
	r.notify = fn
}

// Run drains triplets until ctx is cancelled or the channel closes.
func (r *Reconciler) Run(ctx context.Context, triplets <-chan events.RawTriplet) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-triplets:
			if !ok {
				return
			}
			r.Handle(ctx, t)
		}
	}
}

// Handle reconciles one triplet. Persistence failures are logged and
// swallowed so one bad write never stalls the stream.
func (r *Reconciler) Handle(ctx context.Context, t events.RawTriplet) {
	key := t.Key()
	if r.dedup.Contains(key) {
		r.log.Debug("duplicate event dropped", "key", key)
		return
	}
	// Recorded before any branching: malformed and ignored events must not
	// be re-examined on replay either.
	r.dedup.Add(key)

	// Housekeeping lines are discarded before any parsing; their time and
	// description fields carry no contract.
	action := events.ParseAction(strings.TrimSpace(t.ActionText))
	if action == events.ActionSessionPreflight || action == events.ActionUnknown {
		r.log.Debug("event ignored", "action", t.ActionText)
		return
	}

	ev, err := events.ParseTriplet(t, r.now())
	if err != nil {
		r.log.Warn("unparseable log event", "error", err, "action", t.ActionText, "time", t.TimeText)
		return
	}

	switch ev.Action {
	case events.ActionQueueJoin:
		err = r.handleQueueJoin(ctx, ev)
	case events.ActionSessionStart:
		err = r.handleSessionStart(ctx, ev)
	case events.ActionSessionEnd:
		err = r.handleSessionEnd(ctx, ev)
	case events.ActionQueueCancel:
		err = r.handleQueueCancel(ctx, ev)
	}
	if err != nil {
		r.log.Error("reconciliation failed", "action", ev.Action.String(), "user", ev.Username, "error", err)
		return
	}

	r.log.Info("event reconciled", "action", ev.Action.String(), "user", ev.Username, "at", ev.Timestamp)
	if r.notify != nil {
		r.notify(ev)
	}
}

// handleQueueJoin opens a new attempt, or restarts the incomplete one. A
// rejoin supersedes everything the incomplete attempt had accumulated;
// completed records are never touched — a join after a finished session
// becomes a sibling record.
func (r *Reconciler) handleQueueJoin(ctx context.Context, ev events.ParsedEvent) error {
	email := ev.Email(r.domain)
	existing, err := r.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	join := ev.Timestamp
	fields := store.Fields{
		QueueJoinTime:    &join,
		HasQueueJoinTime: true,
		StartTime:        nil,
		HasStartTime:     true,
		EndTime:          nil,
		HasEndTime:       true,
		IsActive:         false,
		HasIsActive:      true,
	}
	if existing == nil || existing.Completed() {
		_, err = r.store.CreateUserWithFields(ctx, email, fields)
		return err
	}
	return r.store.UpdateUserFields(ctx, existing.ID, fields)
}

func (r *Reconciler) handleSessionStart(ctx context.Context, ev events.ParsedEvent) error {
	email := ev.Email(r.domain)
	start := ev.Timestamp
	fields := store.Fields{
		StartTime:    &start,
		HasStartTime: true,
		IsActive:     true,
		HasIsActive:  true,
	}
	active, err := r.store.GetActiveUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if active == nil {
		r.log.Warn("session start without a queued attempt", "user", ev.Username)
		return nil
	}
	return r.store.UpdateUserFields(ctx, active.ID, fields)
}

func (r *Reconciler) handleSessionEnd(ctx context.Context, ev events.ParsedEvent) error {
	email := ev.Email(r.domain)
	end := ev.Timestamp
	fields := store.Fields{
		EndTime:     &end,
		HasEndTime:  true,
		IsActive:    false,
		HasIsActive: true,
	}
	active, err := r.store.GetActiveUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if active == nil {
		r.log.Warn("session end without an open attempt", "user", ev.Username)
		return nil
	}
	return r.store.UpdateUserFields(ctx, active.ID, fields)
}

// handleQueueCancel closes the pending attempt. The cancel timestamp lands
// in endTime and any speculative startTime is cleared.
func (r *Reconciler) handleQueueCancel(ctx context.Context, ev events.ParsedEvent) error {
	email := ev.Email(r.domain)
	active, err := r.store.GetActiveUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if active == nil {
		r.log.Debug("cancel without pending attempt", "user", ev.Username)
		return nil
	}
	end := ev.Timestamp
	return r.store.UpdateUserFields(ctx, active.ID, store.Fields{
		StartTime:    nil,
		HasStartTime: true,
		EndTime:      &end,
		HasEndTime:   true,
		IsActive:     false,
		HasIsActive:  true,
	})
}
