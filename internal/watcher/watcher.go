// Package watcher bridges the target page's activity log into Go. A
// MutationObserver installed in the page reports each appended log line to
// an exposed callback, which forwards it as a raw triplet.
package watcher

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	autoerrors "queuewatch/internal/automation/errors"
	"queuewatch/internal/config"
	"queuewatch/internal/events"
)

//go:embed observer.js
var observerJS string

const bridgeName = "__queuewatchEmit"

// PageDriver is the browser surface the watcher needs.
type PageDriver interface {
	WaitElement(selector string, timeout time.Duration) (*rod.Element, error)
	Expose(name string, fn func(gson.JSON) (interface{}, error)) (func() error, error)
	Eval(js string, args ...interface{}) error
}

// Watcher owns the observer installed on the log container and the channel
// its triplets flow through. Sends preserve page order: the bridge blocks
// when the buffer is full rather than dropping or reordering.
type Watcher struct {
	driver PageDriver
	cfg    config.WatcherConfig
	log    *slog.Logger

	events chan events.RawTriplet
	done   chan struct{}

	mu         sync.Mutex
	stopBridge func() error
	attached   bool
	closed     bool
}

func New(driver PageDriver, cfg config.WatcherConfig, log *slog.Logger) *Watcher {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	return &Watcher{
		driver: driver,
		cfg:    cfg,
		log:    log,
		events: make(chan events.RawTriplet, size),
		done:   make(chan struct{}),
	}
}

// Events is the ordered stream of observed log lines.
func (w *Watcher) Events() <-chan events.RawTriplet {
	return w.events
}

// Attached reports whether the observer is installed.
func (w *Watcher) Attached() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attached
}

// Attach waits for the log container, exposes the bridge, and installs the
// observer. Lines rendered before Attach are not replayed.
func (w *Watcher) Attach(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := w.driver.WaitElement(w.cfg.ContainerSelector, w.cfg.AttachTimeout); err != nil {
		return err
	}

	stop, err := w.driver.Expose(bridgeName, w.bridge)
	if err != nil {
		return err
	}

	if err := w.driver.Eval(observerJS, w.cfg.ContainerSelector, w.cfg.MarkerClass, bridgeName); err != nil {
		_ = stop()
		return autoerrors.NewFlowError("installing log observer", err)
	}

	w.mu.Lock()
	w.stopBridge = stop
	w.attached = true
	w.mu.Unlock()
	w.log.Info("log observer attached", "selector", w.cfg.ContainerSelector, "marker", w.cfg.MarkerClass)
	return nil
}

// Detach removes the bridge and releases any callback blocked on a full
// buffer. The events channel stays open; the page simply stops feeding it.
func (w *Watcher) Detach() {
	w.mu.Lock()
	stop := w.stopBridge
	w.stopBridge = nil
	w.attached = false
	if !w.closed {
		w.closed = true
		close(w.done)
	}
	w.mu.Unlock()

	if stop != nil {
		if err := stop(); err != nil {
			w.log.Warn("bridge removal failed", "error", err)
		}
	}
}

// bridge receives one rendered log line from the page as an array of its
// child texts. Lines that are not exactly [time, action, description] are
// logged and dropped here, before they reach the pipeline.
func (w *Watcher) bridge(v gson.JSON) (interface{}, error) {
	arr := v.Arr()
	if len(arr) != 3 {
		w.log.Warn("malformed log line ignored", "parts", len(arr))
		return nil, fmt.Errorf("expected 3 log line parts, got %d", len(arr))
	}

	t := events.RawTriplet{
		TimeText:    arr[0].Str(),
		ActionText:  arr[1].Str(),
		Description: arr[2].Str(),
	}
	// Blocking send keeps page order; Detach unblocks a callback stranded
	// on a full buffer after the consumer is gone.
	select {
	case w.events <- t:
		return nil, nil
	case <-w.done:
		return nil, fmt.Errorf("watcher detached")
	}
}
