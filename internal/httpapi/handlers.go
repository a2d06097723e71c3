// Package httpapi is the operator-facing surface: health, pipeline status,
// and a live event stream. It never mutates pipeline state.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"queuewatch/internal/authflow"
	"queuewatch/internal/mail"
	"queuewatch/internal/store"
)

// FlowStatus reports the login flow's phase.
type FlowStatus interface {
	State() (authflow.State, string)
}

// MailStatus reports ingestor health.
type MailStatus interface {
	Status() mail.Status
}

// WatcherStatus reports whether the log observer is installed.
type WatcherStatus interface {
	Attached() bool
}

// AnalyticsSource summarizes the session store.
type AnalyticsSource interface {
	Analytics() store.Analytics
}

// Server wires the read-only monitor endpoints.
type Server struct {
	flow        FlowStatus
	mailbox     MailStatus
	watcher     WatcherStatus
	analytics   AnalyticsSource
	siteMonitor *SiteMonitor
	broadcaster *Broadcaster
	log         *slog.Logger
	startedAt   time.Time
}

func NewServer(flow FlowStatus, mailbox MailStatus, watcher WatcherStatus, analytics AnalyticsSource, siteMonitor *SiteMonitor, broadcaster *Broadcaster, log *slog.Logger) *Server {
	return &Server{
		flow:        flow,
		mailbox:     mailbox,
		watcher:     watcher,
		analytics:   analytics,
		siteMonitor: siteMonitor,
		broadcaster: broadcaster,
		log:         log,
		startedAt:   time.Now(),
	}
}

// Routes returns the monitor mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/monitor/status", s.handleStatus)
	mux.HandleFunc("/api/monitor/email", s.handleEmail)
	mux.Handle("/api/monitor/events", s.broadcaster)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type statusResponse struct {
	FlowState       string          `json:"flowState"`
	FlowError       string          `json:"flowError,omitempty"`
	WatcherAttached bool            `json:"watcherAttached"`
	Mail            mail.Status     `json:"mail"`
	Site            SiteStatus      `json:"site"`
	Analytics       store.Analytics `json:"analytics"`
	Subscribers     int             `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state, flowErr := s.flow.State()
	writeJSON(w, http.StatusOK, statusResponse{
		FlowState:       state.String(),
		FlowError:       flowErr,
		WatcherAttached: s.watcher.Attached(),
		Mail:            s.mailbox.Status(),
		Site:            s.siteMonitor.Status(),
		Analytics:       s.analytics.Analytics(),
		Subscribers:     s.broadcaster.SubscriberCount(),
	})
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.mailbox.Status())
}
