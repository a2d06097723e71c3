package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queuewatch/internal/authflow"
	"queuewatch/internal/browser"
	configurationpkg "queuewatch/internal/config"
	"queuewatch/internal/events"
	"queuewatch/internal/httpapi"
	"queuewatch/internal/logging"
	"queuewatch/internal/mail"
	"queuewatch/internal/reconciler"
	"queuewatch/internal/store"
	"queuewatch/internal/watcher"
)

func main() {
	logger := logging.New()
	configuration := configurationpkg.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestor := mail.NewIngestor(configuration.Mail, logging.ForComponent(logger, "mail"))
	if err := ingestor.Connect(ctx); err != nil {
		logger.Error("mailbox connection failed", "error", err)
		os.Exit(1)
	}
	go ingestor.Run(ctx)

	driver := browser.NewDriver(configuration.Browser, logging.ForComponent(logger, "browser"))
	if err := driver.Start(); err != nil {
		logger.Error("browser startup failed", "error", err)
		os.Exit(1)
	}

	sessionStore := store.NewMemoryStore()
	dedup := events.NewDedupCache(configuration.Reconciler.DedupMax, configuration.Reconciler.DedupWindow)
	rec := reconciler.New(sessionStore, dedup, configuration.Reconciler.EmailDomain, logging.ForComponent(logger, "reconciler"))

	broadcaster := httpapi.NewBroadcaster(logging.ForComponent(logger, "sse"))
	rec.OnEvent(func(ev events.ParsedEvent) {
		broadcaster.Publish(map[string]interface{}{
			"type":      "event",
			"action":    ev.Action.String(),
			"user":      ev.Username,
			"timestamp": ev.Timestamp,
		})
	})

	flow := authflow.New(driver, ingestor, configuration.Auth, logging.ForComponent(logger, "authflow"))
	logWatcher := watcher.New(driver, configuration.Watcher, logging.ForComponent(logger, "watcher"))

	siteMonitor := httpapi.NewSiteMonitor(configuration.Browser.TargetURL, configuration.SiteMonitor, logging.ForComponent(logger, "sitemonitor"))
	go siteMonitor.Run(ctx)

	// The status surface comes up before the login flow runs, so a failed
	// flow is still observable at /api/monitor/status.
	api := httpapi.NewServer(flow, ingestor, logWatcher, sessionStore, siteMonitor, broadcaster, logging.ForComponent(logger, "http"))
	server := &http.Server{
		Addr:              "127.0.0.1:" + configuration.Port,
		Handler:           httpapi.NewCORSMiddleware(configuration.AllowedOrigins)(api.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: the event stream stays open for the life of
		// the subscriber.
		IdleTimeout: 90 * time.Second,
	}
	go func() {
		logger.Info("monitor API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	// Degraded mode: on a failed login or a missing log container the
	// process stays up serving status, and the browser page stays open for
	// inspection instead of being torn down.
	monitoring := false
	if err := flow.Run(ctx); err != nil {
		logger.Error("login flow failed, running degraded with browser left open", "error", err)
	} else if err := logWatcher.Attach(ctx); err != nil {
		logger.Error("log observer attach failed, running degraded with browser left open", "error", err)
	} else {
		monitoring = true
		go rec.Run(ctx, logWatcher.Events())
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}
	if monitoring {
		logWatcher.Detach()
		driver.Close()
	}
}
