package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/ysmood/gson"

	"queuewatch/internal/events"
	"queuewatch/internal/reconciler"
	"queuewatch/internal/store"
)

// Exercises the full host-side path: bridge callback → triplet channel →
// reconciler → session store.
func TestObservedLineCreatesSessionRecord(t *testing.T) {
	p := &fakePage{}
	w := testWatcher(p)
	if err := w.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	sessionStore := store.NewMemoryStore()
	rec := reconciler.New(
		sessionStore,
		events.NewDedupCache(64, 10*time.Minute),
		"smartclean.se",
		discardLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		rec.Run(ctx, w.Events())
		close(done)
	}()

	if _, err := p.exposedFn(gson.New([]interface{}{"09:01:02 AM", "QUEUE_JOIN", "alice joined the queue"})); err != nil {
		t.Fatalf("bridge: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	var got *store.SessionRecord
	for {
		var err error
		got, err = sessionStore.GetUserByEmail(context.Background(), "alice@smartclean.se")
		if err != nil {
			t.Fatalf("GetUserByEmail: %v", err)
		}
		if got != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if got == nil {
		t.Fatal("no record created for alice@smartclean.se")
	}
	if got.QueueJoinTime == nil {
		t.Fatal("queueJoinTime not set")
	}
	now := time.Now()
	want := time.Date(now.Year(), now.Month(), now.Day(), 9, 1, 2, 0, now.Location())
	if !got.QueueJoinTime.Equal(want) {
		t.Errorf("queueJoinTime = %v, want %v", got.QueueJoinTime, want)
	}
	if got.StartTime != nil || got.EndTime != nil || got.IsActive {
		t.Errorf("record = %+v, want queued-only state", got)
	}
}
