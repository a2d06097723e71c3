package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"queuewatch/internal/config"
)

// SiteStatus is the last observed reachability of the target site.
type SiteStatus struct {
	Reachable  bool      `json:"reachable"`
	StatusCode int       `json:"statusCode,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
	CheckedAt  time.Time `json:"checkedAt,omitzero"`
}

// SiteMonitor probes the target site on an interval so the status surface
// can distinguish "site down" from "pipeline broken".
type SiteMonitor struct {
	url    string
	cfg    config.SiteMonitorConfig
	client *http.Client
	log    *slog.Logger

	mu     sync.RWMutex
	status SiteStatus
}

func NewSiteMonitor(url string, cfg config.SiteMonitorConfig, log *slog.Logger) *SiteMonitor {
	return &SiteMonitor{
		url:    url,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Run probes immediately and then on every interval tick until ctx ends.
func (m *SiteMonitor) Run(ctx context.Context) {
	m.probe(ctx)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// Status returns the most recent probe result.
func (m *SiteMonitor) Status() SiteStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *SiteMonitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		m.record(SiteStatus{LastError: err.Error(), CheckedAt: time.Now()})
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.record(SiteStatus{LastError: err.Error(), CheckedAt: time.Now()})
		return
	}
	resp.Body.Close()

	m.record(SiteStatus{
		Reachable:  resp.StatusCode < http.StatusInternalServerError,
		StatusCode: resp.StatusCode,
		CheckedAt:  time.Now(),
	})
}

func (m *SiteMonitor) record(s SiteStatus) {
	m.mu.Lock()
	wasReachable := m.status.Reachable
	m.status = s
	m.mu.Unlock()

	if s.Reachable != wasReachable {
		m.log.Info("target site reachability changed", "reachable", s.Reachable, "status", s.StatusCode, "error", s.LastError)
	}
}
