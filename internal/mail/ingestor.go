package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"

	autoerrors "queuewatch/internal/automation/errors"
	"queuewatch/internal/config"
)

// idleRefresh bounds a single IDLE round; servers are allowed to drop
// connections idling longer than 29 minutes.
const idleRefresh = 5 * time.Minute

// Ingestor maintains an IMAP connection, reacts to new mail, and retains
// the most recent relevant message together with its extracted link.
type Ingestor struct {
	cfg config.MailConfig
	log *slog.Logger

	client  *imapclient.Client
	newMail chan struct{}

	mu        sync.RWMutex
	last      *Message
	lastURL   string
	connected bool
	lastErr   string
}

func NewIngestor(cfg config.MailConfig, log *slog.Logger) *Ingestor {
	return &Ingestor{
		cfg:     cfg,
		log:     log,
		newMail: make(chan struct{}, 1),
	}
}

// Connect dials the IMAP server, authenticates, and selects INBOX.
func (in *Ingestor) Connect(ctx context.Context) error {
	opts := &imapclient.Options{
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages == nil {
					return
				}
				select {
				case in.newMail <- struct{}{}:
				default:
				}
			},
		},
	}

	dialer := &net.Dialer{Timeout: in.cfg.ConnectTimeout}
	var (
		conn net.Conn
		err  error
	)
	if in.cfg.TLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", in.cfg.Address(), nil)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", in.cfg.Address())
	}
	if err != nil {
		in.setError(err)
		return autoerrors.NewConnectivityError("IMAP dial "+in.cfg.Address(), err)
	}
	client := imapclient.New(conn, opts)

	if err := client.Login(in.cfg.Username, in.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		in.setError(err)
		return autoerrors.NewAuthenticationError("IMAP login rejected for "+in.cfg.Username, err)
	}
	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Close()
		in.setError(err)
		return autoerrors.NewConnectivityError("IMAP select INBOX", err)
	}

	in.client = client
	in.mu.Lock()
	in.connected = true
	in.lastErr = ""
	in.mu.Unlock()
	in.log.Info("mailbox connected", "host", in.cfg.Host, "user", in.cfg.Username)
	return nil
}

// Run alternates between IDLE and unseen-message sweeps until ctx ends.
// Connect must have succeeded first.
func (in *Ingestor) Run(ctx context.Context) {
	defer in.close()

	if err := in.fetchUnseen(ctx); err != nil {
		in.log.Warn("initial mailbox sweep failed", "error", err)
	}

	for {
		idle, err := in.client.Idle()
		if err != nil {
			in.setError(err)
			in.log.Error("IDLE failed, stopping ingestor", "error", err)
			return
		}

		refresh := time.NewTimer(idleRefresh)
		woke := false
		select {
		case <-ctx.Done():
			refresh.Stop()
			_ = idle.Close()
			_ = idle.Wait()
			return
		case <-in.newMail:
			woke = true
		case <-refresh.C:
		}
		refresh.Stop()

		if err := idle.Close(); err != nil {
			in.setError(err)
			in.log.Error("closing IDLE failed, stopping ingestor", "error", err)
			return
		}
		_ = idle.Wait()

		if err := in.fetchUnseen(ctx); err != nil {
			in.log.Warn("mailbox sweep failed", "error", err, "woken", woke)
		}
	}
}

// Snapshot returns the latest relevant message and its link. Both are nil
// and empty until one arrives.
func (in *Ingestor) Snapshot() (*Message, string) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.last == nil {
		return nil, ""
	}
	copied := *in.last
	return &copied, in.lastURL
}

// Status summarizes ingestor health for the monitor surface.
type Status struct {
	Connected   bool      `json:"connected"`
	LastError   string    `json:"lastError,omitempty"`
	LastSubject string    `json:"lastSubject,omitempty"`
	LastDate    time.Time `json:"lastDate,omitzero"`
	HasLink     bool      `json:"hasLink"`
}

func (in *Ingestor) Status() Status {
	in.mu.RLock()
	defer in.mu.RUnlock()
	st := Status{Connected: in.connected, LastError: in.lastErr, HasLink: in.lastURL != ""}
	if in.last != nil {
		st.LastSubject = in.last.Subject
		st.LastDate = in.last.Date
	}
	return st
}

func (in *Ingestor) fetchUnseen(ctx context.Context) error {
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := in.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return autoerrors.NewConnectivityError("IMAP search", err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	msgs, err := in.client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return autoerrors.NewConnectivityError("IMAP fetch", err)
	}

	for _, buf := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := decodeMessage(buf)
		if err != nil {
			in.log.Warn("undecodable message skipped", "error", err)
			continue
		}
		if !msg.IsRelevant(in.cfg.RelevanceToken) {
			continue
		}
		in.retain(msg)
	}
	return nil
}

// retain keeps msg if it is newer than the current latest message.
func (in *Ingestor) retain(msg *Message) {
	url, err := ExtractURL(msg)
	if err != nil {
		in.log.Warn("relevant message without link", "subject", msg.Subject, "error", err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.last != nil && msg.Date.Before(in.last.Date) {
		return
	}
	in.last = msg
	in.lastURL = url
	in.log.Info("login message retained", "subject", msg.Subject, "date", msg.Date, "hasLink", url != "")
}

func decodeMessage(buf *imapclient.FetchMessageBuffer) (*Message, error) {
	msg := &Message{}
	if env := buf.Envelope; env != nil {
		msg.Subject = env.Subject
		msg.Date = env.Date
		if len(env.From) > 0 {
			msg.From = env.From[0].Addr()
		}
	}

	raw := buf.FindBodySection(&imap.FetchItemBodySection{})
	if len(raw) == 0 {
		return nil, autoerrors.NewParseError("message body section missing", nil)
	}

	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, autoerrors.NewParseError("MIME structure unreadable", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, autoerrors.NewParseError("MIME part unreadable", err)
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch contentType {
		case "text/html":
			msg.HTML = string(body)
		case "text/plain":
			msg.Text = string(body)
		}
	}
	return msg, nil
}

func (in *Ingestor) setError(err error) {
	in.mu.Lock()
	in.connected = false
	in.lastErr = err.Error()
	in.mu.Unlock()
}

func (in *Ingestor) close() {
	if in.client != nil {
		_ = in.client.Close()
	}
	in.mu.Lock()
	in.connected = false
	in.mu.Unlock()
}
