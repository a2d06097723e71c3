package events

import (
	"testing"
	"time"

	autoerrors "queuewatch/internal/automation/errors"
)

var testNow = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func TestParseTripletTimes(t *testing.T) {
	cases := []struct {
		timeText string
		hour     int
		minute   int
		second   int
	}{
		{"02:15:30 PM", 14, 15, 30},
		{"12:00:00 AM", 0, 0, 0},
		{"12:30:45 PM", 12, 30, 45},
		{"9:01:02 AM", 9, 1, 2},
		{"11:59:59 PM", 23, 59, 59},
	}

	for _, tc := range cases {
		ev, err := ParseTriplet(RawTriplet{
			TimeText:    tc.timeText,
			ActionText:  "QUEUE_JOIN",
			Description: "alice joined the queue",
		}, testNow)
		if err != nil {
			t.Fatalf("ParseTriplet(%q): %v", tc.timeText, err)
		}

		want := time.Date(testNow.Year(), testNow.Month(), testNow.Day(), tc.hour, tc.minute, tc.second, 0, time.UTC)
		if !ev.Timestamp.Equal(want) {
			t.Errorf("ParseTriplet(%q) timestamp = %v, want %v", tc.timeText, ev.Timestamp, want)
		}
	}
}

func TestParseTripletUsername(t *testing.T) {
	ev, err := ParseTriplet(RawTriplet{
		TimeText:    "09:01:02 AM",
		ActionText:  "SESSION_START",
		Description: "bob started a cleaning session",
	}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Username != "bob" {
		t.Errorf("username = %q, want %q", ev.Username, "bob")
	}
	if ev.Action != ActionSessionStart {
		t.Errorf("action = %v, want %v", ev.Action, ActionSessionStart)
	}
	if got := ev.Email("smartclean.se"); got != "bob@smartclean.se" {
		t.Errorf("email = %q", got)
	}
}

func TestParseTripletEmptyDescription(t *testing.T) {
	_, err := ParseTriplet(RawTriplet{
		TimeText:    "09:01:02 AM",
		ActionText:  "QUEUE_JOIN",
		Description: "   ",
	}, testNow)
	if !autoerrors.IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseTripletBadClock(t *testing.T) {
	bad := []string{"", "25:00:00 PM", "9:1:2 AM", "09:01:02", "09:01:02 XM", "0:10:10 AM"}
	for _, text := range bad {
		_, err := ParseTriplet(RawTriplet{
			TimeText:    text,
			ActionText:  "QUEUE_JOIN",
			Description: "alice joined",
		}, testNow)
		if !autoerrors.IsParseError(err) {
			t.Errorf("ParseTriplet(%q): expected parse error, got %v", text, err)
		}
	}
}

func TestParseActionVocabulary(t *testing.T) {
	cases := map[string]Action{
		"QUEUE_JOIN":        ActionQueueJoin,
		"SESSION_START":     ActionSessionStart,
		"SESSION_END":       ActionSessionEnd,
		"QUEUE_CANCEL":      ActionQueueCancel,
		"SESSION_PREFLIGHT": ActionSessionPreflight,
		"queue_join":        ActionUnknown,
		"SOMETHING_ELSE":    ActionUnknown,
		"":                  ActionUnknown,
	}
	for token, want := range cases {
		if got := ParseAction(token); got != want {
			t.Errorf("ParseAction(%q) = %v, want %v", token, got, want)
		}
	}
}

func TestTripletKey(t *testing.T) {
	a := RawTriplet{TimeText: "09:01:02 AM", ActionText: "QUEUE_JOIN", Description: "alice joined"}
	b := RawTriplet{TimeText: "09:01:02 AM", ActionText: "QUEUE_JOIN", Description: "alice joined"}
	c := RawTriplet{TimeText: "09:01:03 AM", ActionText: "QUEUE_JOIN", Description: "alice joined"}

	if a.Key() != b.Key() {
		t.Error("identical triplets should share a key")
	}
	if a.Key() == c.Key() {
		t.Error("different triplets should not share a key")
	}
}
