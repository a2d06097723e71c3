package mail

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	autoerrors "queuewatch/internal/automation/errors"
)

var bareURLPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURL pulls the login link out of a message. The HTML body's first
// anchor wins; plain text is scanned for a bare URL as a fallback.
func ExtractURL(m *Message) (string, error) {
	if m == nil {
		return "", autoerrors.NewParseError("no message to extract from", nil)
	}

	if m.HTML != "" {
		if u, ok := firstAnchor(m.HTML); ok {
			return u, nil
		}
	}
	if m.Text != "" {
		if u, ok := firstBareURL(m.Text); ok {
			return u, nil
		}
	}
	return "", autoerrors.NewParseError("no link found in message "+m.Subject, nil)
}

func firstAnchor(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	href, ok := doc.Find("a[href]").First().Attr("href")
	if !ok {
		return "", false
	}
	href = strings.TrimSpace(href)
	if !validHTTPURL(href) {
		return "", false
	}
	return href, true
}

func firstBareURL(text string) (string, bool) {
	match := bareURLPattern.FindString(text)
	if match == "" {
		return "", false
	}
	// Prose punctuation sticks to the match.
	match = strings.TrimRight(match, ".,;:!?)")
	if !validHTTPURL(match) {
		return "", false
	}
	return match, true
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
