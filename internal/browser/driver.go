// Package browser wraps the CDP session used for login automation and log
// observation. It is the only package that touches rod directly.
package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	autoerrors "queuewatch/internal/automation/errors"
	"queuewatch/internal/config"
)

// Driver owns one browser and one page pointed at the target site.
type Driver struct {
	cfg      config.BrowserConfig
	log      *slog.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func NewDriver(cfg config.BrowserConfig, log *slog.Logger) *Driver {
	return &Driver{cfg: cfg, log: log}
}

// Start launches the browser and opens the target URL. The page is ready
// (load event fired) when Start returns.
func (d *Driver) Start() error {
	// Leakless would reap Chrome when this process dies; a failed login
	// leaves the page open for inspection, so the browser must be able to
	// outlive us.
	l := launcher.New().Headless(d.cfg.Headless).Leakless(false)
	if d.cfg.BrowserBin != "" {
		l = l.Bin(d.cfg.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return autoerrors.NewConnectivityError("browser launch", err)
	}
	d.launcher = l

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return autoerrors.NewConnectivityError("browser connect", err)
	}
	d.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: d.cfg.TargetURL})
	if err != nil {
		return autoerrors.NewNavigationError(d.cfg.TargetURL, err)
	}
	d.page = page.Timeout(d.cfg.NavTimeout)
	if err := d.page.WaitLoad(); err != nil {
		return autoerrors.NewNavigationError(d.cfg.TargetURL, err)
	}
	d.page = page // drop the nav timeout once loaded
	d.log.Info("browser ready", "url", d.cfg.TargetURL, "headless", d.cfg.Headless)
	return nil
}

// Navigate loads url in the existing page and waits for the load event.
func (d *Driver) Navigate(url string) error {
	if err := d.page.Timeout(d.cfg.NavTimeout).Navigate(url); err != nil {
		return autoerrors.NewNavigationError(url, err)
	}
	if err := d.page.Timeout(d.cfg.NavTimeout).WaitLoad(); err != nil {
		return autoerrors.NewNavigationError(url, err)
	}
	return nil
}

// WaitElement blocks until selector matches or timeout elapses.
func (d *Driver) WaitElement(selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := d.page.Timeout(timeout).Element(selector)
	if err != nil {
		return nil, autoerrors.NewElementNotFoundError(selector, err)
	}
	return el, nil
}

// Type waits for selector and replaces its value with text.
func (d *Driver) Type(selector, text string) error {
	el, err := d.WaitElement(selector, d.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return autoerrors.NewFlowError(fmt.Sprintf("typing into %s", selector), err)
	}
	return nil
}

// Click waits for selector and left-clicks it once.
func (d *Driver) Click(selector string) error {
	el, err := d.WaitElement(selector, d.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return autoerrors.NewFlowError(fmt.Sprintf("clicking %s", selector), err)
	}
	return nil
}

// Expose binds a page-global function name to fn. The returned stop func
// removes the binding.
func (d *Driver) Expose(name string, fn func(gson.JSON) (interface{}, error)) (func() error, error) {
	stop, err := d.page.Expose(name, fn)
	if err != nil {
		return nil, autoerrors.NewFlowError("exposing bridge "+name, err)
	}
	return stop, nil
}

// Eval runs a JS function expression in the page.
func (d *Driver) Eval(js string, args ...interface{}) error {
	if _, err := d.page.Eval(js, args...); err != nil {
		return autoerrors.NewFlowError("page eval", err)
	}
	return nil
}

// URL returns the page's current location.
func (d *Driver) URL() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close tears the browser down. Callers deliberately skip Close after a
// failed login so the page stays up for manual inspection.
func (d *Driver) Close() {
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			d.log.Warn("browser close failed", "error", err)
		}
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
	}
}
