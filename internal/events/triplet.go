package events

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	autoerrors "queuewatch/internal/automation/errors"
)

// RawTriplet is one observed log line, split into its three visually
// distinct parts exactly as rendered by the target page.
type RawTriplet struct {
	TimeText    string
	ActionText  string
	Description string
}

// Key is the composite deduplication key for this triplet. A single visual
// log line can surface as several mutation records, so replays of the same
// verbatim parts must collapse to one event.
func (t RawTriplet) Key() string {
	return t.ActionText + "|" + t.Description + "|" + t.TimeText
}

// ParsedEvent is a triplet promoted to a typed domain event.
type ParsedEvent struct {
	Username  string
	Action    Action
	Timestamp time.Time
	Key       string
}

// Email maps the parsed username to a record key using the fixed domain
// suffix convention. The address is never verified to exist.
func (e ParsedEvent) Email(domain string) string {
	return e.Username + "@" + domain
}

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})\s*(AM|PM)$`)

// ParseTriplet turns a raw triplet into a ParsedEvent. The username is the
// leading whitespace-delimited token of the description; the time part must
// match H:MM:SS AM/PM and is anchored to now's calendar day.
func ParseTriplet(t RawTriplet, now time.Time) (ParsedEvent, error) {
	fields := strings.Fields(t.Description)
	if len(fields) == 0 {
		return ParsedEvent{}, autoerrors.NewParseError(
			fmt.Sprintf("no username in description %q", t.Description), nil)
	}

	ts, err := parseClock(t.TimeText, now)
	if err != nil {
		return ParsedEvent{}, err
	}

	return ParsedEvent{
		Username:  fields[0],
		Action:    ParseAction(strings.TrimSpace(t.ActionText)),
		Timestamp: ts,
		Key:       t.Key(),
	}, nil
}

// parseClock converts a 12-hour clock string to a time on now's date.
// Events observed around midnight may land on the wrong day; the source
// behavior is kept deliberately (see DESIGN.md).
func parseClock(text string, now time.Time) (time.Time, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return time.Time{}, autoerrors.NewParseError(
			fmt.Sprintf("time %q does not match H:MM:SS AM/PM", text), nil)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(m[3])
	if hour < 1 || hour > 12 || minute > 59 || second > 59 {
		return time.Time{}, autoerrors.NewParseError(
			fmt.Sprintf("time %q out of range", text), nil)
	}

	if m[4] == "PM" && hour != 12 {
		hour += 12
	}
	if m[4] == "AM" && hour == 12 {
		hour = 0
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, now.Location()), nil
}
