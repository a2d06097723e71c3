// Package authflow drives the target site's two-step login: request a
// magic link by email, follow it when it arrives, then sign in on the
// admin form. The flow runs once at startup.
package authflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	autoerrors "queuewatch/internal/automation/errors"
	"queuewatch/internal/config"
	"queuewatch/internal/mail"
)

// State is the flow's externally visible phase.
type State int

const (
	StateIdle State = iota
	StateRequestingLink
	StateAwaitingEmail
	StateNavigatingToLink
	StateAdminLogin
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingLink:
		return "requesting_link"
	case StateAwaitingEmail:
		return "awaiting_email"
	case StateNavigatingToLink:
		return "navigating_to_link"
	case StateAdminLogin:
		return "admin_login"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Driver is the page interaction surface the flow needs.
type Driver interface {
	Navigate(url string) error
	Type(selector, text string) error
	Click(selector string) error
}

// MailPoller reports the latest relevant inbox message and its link.
type MailPoller interface {
	Snapshot() (*mail.Message, string)
}

// EmailResult is the outcome of waiting for the magic-link message.
type EmailResult struct {
	Success bool
	URL     string
}

// Flow owns the login sequence and its observable state.
type Flow struct {
	driver  Driver
	mailbox MailPoller
	cfg     config.AuthConfig
	log     *slog.Logger

	mu      sync.RWMutex
	state   State
	lastErr string
}

func New(driver Driver, mailbox MailPoller, cfg config.AuthConfig, log *slog.Logger) *Flow {
	return &Flow{driver: driver, mailbox: mailbox, cfg: cfg, log: log}
}

// State returns the current phase and the last error message, if any.
func (f *Flow) State() (State, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state, f.lastErr
}

// Run executes the login sequence once. The magic-link leg is best effort:
// a missing email or failed navigation degrades the flow but does not abort
// it, matching how the site tolerates a direct admin login. The admin leg
// gets exactly one attempt; on failure the browser is left as-is so the
// page can be inspected.
func (f *Flow) Run(ctx context.Context) error {
	sel := f.cfg.Selectors

	f.setState(StateRequestingLink)
	// Baseline before the request so the arrival check keys on change, not
	// on absolute content.
	baselineMsg, _ := f.mailbox.Snapshot()
	baseline := baselineMsg.Identity()

	if err := f.driver.Type(sel.EmailInput, f.cfg.AccountEmail); err != nil {
		return f.fail(err)
	}
	if err := f.driver.Click(sel.RequestSubmit); err != nil {
		return f.fail(err)
	}
	f.log.Info("magic link requested", "email", f.cfg.AccountEmail)

	f.setState(StateAwaitingEmail)
	result := f.waitForEmail(ctx, baseline)
	if ctx.Err() != nil {
		return f.fail(ctx.Err())
	}

	if result.Success && result.URL != "" {
		f.setState(StateNavigatingToLink)
		if err := f.driver.Navigate(result.URL); err != nil {
			// Degraded: the admin form is still reachable without the link.
			f.log.Warn("magic link navigation failed, continuing", "error", err)
		} else {
			f.log.Info("magic link followed", "url", result.URL)
		}
	} else {
		f.log.Warn("no magic link email, continuing to admin login", "success", result.Success)
	}

	f.setState(StateAdminLogin)
	if err := f.adminLogin(); err != nil {
		return f.fail(err)
	}

	f.setState(StateReady)
	f.log.Info("login flow complete")
	return nil
}

// waitForEmail polls the inbox until a message other than baseline shows
// up, the wait budget runs out, or ctx ends.
func (f *Flow) waitForEmail(ctx context.Context, baseline string) EmailResult {
	deadline := time.Now().Add(f.cfg.EmailWait)
	for {
		msg, url := f.mailbox.Snapshot()
		if msg != nil && msg.Identity() != baseline {
			f.log.Info("login email arrived", "subject", msg.Subject)
			return EmailResult{Success: true, URL: url}
		}
		if time.Now().After(deadline) {
			return EmailResult{}
		}
		select {
		case <-ctx.Done():
			return EmailResult{}
		case <-time.After(f.cfg.PollInterval):
		}
	}
}

func (f *Flow) adminLogin() error {
	sel := f.cfg.Selectors
	if err := f.driver.Click(sel.AdminButton); err != nil {
		return err
	}
	if err := f.driver.Type(sel.AdminEmail, f.cfg.AdminEmail); err != nil {
		return err
	}
	if err := f.driver.Type(sel.AdminPassword, f.cfg.AdminPassword); err != nil {
		return err
	}
	if err := f.driver.Click(sel.AdminSubmit); err != nil {
		return err
	}
	return nil
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.log.Debug("login flow state", "state", s.String())
}

func (f *Flow) fail(err error) error {
	f.mu.Lock()
	f.state = StateFailed
	f.lastErr = err.Error()
	f.mu.Unlock()
	return autoerrors.NewFlowError("login flow", err)
}
