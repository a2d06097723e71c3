// Package mail watches an IMAP inbox for the target site's login messages
// and extracts the first link from each relevant one.
package mail

import (
	"strings"
	"time"
)

// Message is the part of an inbox message the rest of the pipeline cares
// about. Text and HTML hold the decoded bodies; either may be empty.
type Message struct {
	From    string
	Subject string
	Date    time.Time
	Text    string
	HTML    string
}

// Identity distinguishes messages for the arrival poll. Two messages with
// the same subject and date are treated as the same message.
func (m *Message) Identity() string {
	if m == nil {
		return ""
	}
	return m.Date.UTC().Format(time.RFC3339) + "|" + m.Subject
}

// IsRelevant reports whether the message mentions token in its sender,
// subject, or body. Matching is case-insensitive.
func (m *Message) IsRelevant(token string) bool {
	if m == nil || token == "" {
		return false
	}
	needle := strings.ToLower(token)
	for _, hay := range []string{m.From, m.Subject, m.Text, m.HTML} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}
