package reconciler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"queuewatch/internal/events"
	"queuewatch/internal/store"
)

type fakeStore struct {
	records []*store.SessionRecord
	nextID  int

	creates int
	updates int
	failAll bool
}

func (f *fakeStore) active(email string) *store.SessionRecord {
	var best *store.SessionRecord
	for _, r := range f.records {
		if r.Email != email || (r.StartTime != nil && r.EndTime != nil) {
			continue
		}
		if best == nil {
			best = r
			continue
		}
		if r.QueueJoinTime != nil && (best.QueueJoinTime == nil || r.QueueJoinTime.After(*best.QueueJoinTime)) {
			best = r
		}
	}
	return best
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*store.SessionRecord, error) {
	if f.failAll {
		return nil, errors.New("store down")
	}
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].Email == email {
			return f.records[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetActiveUserByEmail(_ context.Context, email string) (*store.SessionRecord, error) {
	if f.failAll {
		return nil, errors.New("store down")
	}
	return f.active(email), nil
}

func (f *fakeStore) CreateUserWithFields(_ context.Context, email string, fields store.Fields) (*store.SessionRecord, error) {
	if f.failAll {
		return nil, errors.New("store down")
	}
	f.creates++
	f.nextID++
	rec := &store.SessionRecord{ID: string(rune('a' + f.nextID)), Email: email, CreatedAt: time.Now()}
	apply(rec, fields)
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) UpdateUserFields(_ context.Context, id string, fields store.Fields) error {
	if f.failAll {
		return errors.New("store down")
	}
	f.updates++
	for _, r := range f.records {
		if r.ID == id {
			apply(r, fields)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeStore) StartSession(context.Context, string) error { return nil }
func (f *fakeStore) EndSession(context.Context, string) error   { return nil }

func apply(r *store.SessionRecord, fields store.Fields) {
	if fields.HasQueueJoinTime {
		r.QueueJoinTime = fields.QueueJoinTime
	}
	if fields.HasStartTime {
		r.StartTime = fields.StartTime
	}
	if fields.HasEndTime {
		r.EndTime = fields.EndTime
	}
	if fields.HasIsActive {
		r.IsActive = fields.IsActive
	}
}

func newTestReconciler(f *fakeStore) *Reconciler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(f, events.NewDedupCache(64, 10*time.Minute), "smartclean.se", log)
	r.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.Local) }
	return r
}

func triplet(action, timeText, desc string) events.RawTriplet {
	return events.RawTriplet{TimeText: timeText, ActionText: action, Description: desc}
}

func TestHandleQueueJoinCreates(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)

	r.Handle(context.Background(), triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined the queue"))

	if f.creates != 1 {
		t.Fatalf("creates = %d, want 1", f.creates)
	}
	rec := f.records[0]
	if rec.Email != "alice@smartclean.se" {
		t.Errorf("email = %q", rec.Email)
	}
	if rec.QueueJoinTime == nil || rec.QueueJoinTime.Hour() != 10 {
		t.Errorf("queueJoinTime = %v", rec.QueueJoinTime)
	}
	if rec.IsActive {
		t.Error("record active before session start")
	}
}

func TestHandleQueueJoinOverwritesPending(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)

	r.Handle(context.Background(), triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined"))
	r.Handle(context.Background(), triplet("QUEUE_JOIN", "10:05:00 AM", "alice rejoined"))

	if f.creates != 1 || len(f.records) != 1 {
		t.Fatalf("creates = %d, records = %d, want one record", f.creates, len(f.records))
	}
	if f.records[0].QueueJoinTime.Minute() != 5 {
		t.Errorf("queueJoinTime = %v, want latest join", f.records[0].QueueJoinTime)
	}
}

func TestHandleQueueJoinDuringSessionResetsAttempt(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	r.Handle(ctx, triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined"))
	r.Handle(ctx, triplet("SESSION_START", "10:10:00 AM", "alice started"))
	r.Handle(ctx, triplet("QUEUE_JOIN", "10:20:00 AM", "alice joined again"))

	if len(f.records) != 1 {
		t.Fatalf("records = %d, want the incomplete attempt reused", len(f.records))
	}
	rec := f.records[0]
	if rec.QueueJoinTime == nil || rec.QueueJoinTime.Minute() != 20 {
		t.Errorf("queueJoinTime = %v, want the rejoin time", rec.QueueJoinTime)
	}
	if rec.StartTime != nil || rec.EndTime != nil || rec.IsActive {
		t.Errorf("rejoin left stale session state: %+v", rec)
	}
}

func TestHandleQueueJoinAfterCompletedSessionCreatesSibling(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	r.Handle(ctx, triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined"))
	r.Handle(ctx, triplet("SESSION_START", "10:10:00 AM", "alice started"))
	r.Handle(ctx, triplet("SESSION_END", "10:40:00 AM", "alice finished"))
	r.Handle(ctx, triplet("QUEUE_JOIN", "11:00:00 AM", "alice joined again"))

	if len(f.records) != 2 {
		t.Fatalf("records = %d, want completed history preserved", len(f.records))
	}
	if !f.records[0].Completed() {
		t.Errorf("completed record mutated: %+v", f.records[0])
	}
	if f.records[1].QueueJoinTime == nil || f.records[1].QueueJoinTime.Hour() != 11 {
		t.Errorf("sibling queueJoinTime = %v", f.records[1].QueueJoinTime)
	}
}

func TestHandleSessionLifecycle(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	r.Handle(ctx, triplet("QUEUE_JOIN", "10:00:00 AM", "bob joined"))
	r.Handle(ctx, triplet("SESSION_START", "10:10:00 AM", "bob started"))

	rec := f.records[0]
	if rec.StartTime == nil || !rec.IsActive {
		t.Fatalf("after start: %+v", rec)
	}

	r.Handle(ctx, triplet("SESSION_END", "10:40:00 AM", "bob finished"))
	if rec.EndTime == nil || rec.IsActive {
		t.Fatalf("after end: %+v", rec)
	}
	if !rec.Completed() {
		t.Error("expected completed record")
	}
}

func TestHandleSessionStartWithoutJoinIsNoop(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	r.Handle(ctx, triplet("SESSION_START", "10:10:00 AM", "carol started"))
	r.Handle(ctx, triplet("SESSION_END", "10:40:00 AM", "carol finished"))

	if f.creates != 0 || f.updates != 0 {
		t.Errorf("creates = %d, updates = %d, want no writes without a queued attempt", f.creates, f.updates)
	}
}

func TestHandleQueueCancel(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	r.Handle(ctx, triplet("QUEUE_JOIN", "10:00:00 AM", "dave joined"))
	r.Handle(ctx, triplet("QUEUE_CANCEL", "10:03:00 AM", "dave left the queue"))

	rec := f.records[0]
	if rec.EndTime == nil || rec.EndTime.Minute() != 3 {
		t.Errorf("endTime = %v", rec.EndTime)
	}
	if rec.StartTime != nil || rec.IsActive {
		t.Errorf("cancel left record open: %+v", rec)
	}
}

func TestHandleQueueCancelWithoutPending(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)

	r.Handle(context.Background(), triplet("QUEUE_CANCEL", "10:03:00 AM", "erin left"))

	if f.creates != 0 || f.updates != 0 {
		t.Errorf("creates = %d, updates = %d, want no store writes", f.creates, f.updates)
	}
}

func TestHandleDuplicateDropped(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	tr := triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined")
	r.Handle(ctx, tr)
	r.Handle(ctx, tr)
	r.Handle(ctx, tr)

	if f.creates != 1 {
		t.Errorf("creates = %d, want duplicate suppression", f.creates)
	}
}

func TestHandlePreflightSkipsParsing(t *testing.T) {
	f := &fakeStore{}
	var logBuf bytes.Buffer
	r := New(f, events.NewDedupCache(64, 10*time.Minute), "smartclean.se",
		slog.New(slog.NewTextHandler(&logBuf, nil)))

	// A housekeeping line with an unparseable time must be discarded
	// without ever reaching the parser.
	r.Handle(context.Background(), triplet("SESSION_PREFLIGHT", "soon", "alice warming up"))

	if f.creates != 0 || f.updates != 0 {
		t.Errorf("creates = %d, updates = %d, want none", f.creates, f.updates)
	}
	if strings.Contains(logBuf.String(), "unparseable") {
		t.Errorf("housekeeping line hit the parser: %s", logBuf.String())
	}
}

func TestHandleIgnoredActionsTouchNoStore(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	r.Handle(ctx, triplet("SESSION_PREFLIGHT", "10:00:00 AM", "alice warming up"))
	r.Handle(ctx, triplet("SOMETHING_NEW", "10:01:00 AM", "alice did something"))

	if f.creates != 0 || f.updates != 0 {
		t.Errorf("creates = %d, updates = %d, want none", f.creates, f.updates)
	}
}

func TestHandleMalformedDedupedAnyway(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)
	ctx := context.Background()

	bad := triplet("QUEUE_JOIN", "not a time", "alice joined")
	r.Handle(ctx, bad)
	r.Handle(ctx, bad)

	if f.creates != 0 {
		t.Errorf("creates = %d, want 0 for malformed event", f.creates)
	}
}

func TestHandlePersistenceFailureDoesNotPanic(t *testing.T) {
	f := &fakeStore{failAll: true}
	r := newTestReconciler(f)

	r.Handle(context.Background(), triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined"))

	if len(f.records) != 0 {
		t.Errorf("records = %d, want 0", len(f.records))
	}
}

func TestHandleNotifyCallback(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)

	var seen []events.ParsedEvent
	r.OnEvent(func(ev events.ParsedEvent) { seen = append(seen, ev) })

	ctx := context.Background()
	r.Handle(ctx, triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined"))
	r.Handle(ctx, triplet("SESSION_PREFLIGHT", "10:01:00 AM", "alice warming up"))

	if len(seen) != 1 {
		t.Fatalf("notified %d times, want 1", len(seen))
	}
	if seen[0].Username != "alice" || seen[0].Action != events.ActionQueueJoin {
		t.Errorf("notified event = %+v", seen[0])
	}
}

func TestRunDrainsChannel(t *testing.T) {
	f := &fakeStore{}
	r := newTestReconciler(f)

	ch := make(chan events.RawTriplet, 4)
	ch <- triplet("QUEUE_JOIN", "10:00:00 AM", "alice joined")
	ch <- triplet("SESSION_START", "10:10:00 AM", "alice started")
	close(ch)

	r.Run(context.Background(), ch)

	if len(f.records) != 1 {
		t.Fatalf("records = %d, want 1", len(f.records))
	}
	if f.records[0].StartTime == nil {
		t.Error("session start not applied")
	}
}
