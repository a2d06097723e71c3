// Package store defines the session persistence boundary consumed by the
// reconciler. The monitoring core never owns a schema; it talks to whatever
// backs this interface.
package store

import (
	"context"
	"time"
)

// SessionRecord is one queue-to-session attempt for an email address. An
// email accumulates multiple records over time; history is never rewritten
// once a record is completed.
type SessionRecord struct {
	ID            string
	Email         string
	QueueJoinTime *time.Time
	StartTime     *time.Time
	EndTime       *time.Time
	IsActive      bool
	CreatedAt     time.Time
}

// Completed reports whether all three lifecycle timestamps are set.
func (r *SessionRecord) Completed() bool {
	return r.QueueJoinTime != nil && r.StartTime != nil && r.EndTime != nil
}

// Fields carries a partial update. Each Has flag says whether the matching
// column is written; a nil time with its flag set writes null.
type Fields struct {
	QueueJoinTime    *time.Time
	HasQueueJoinTime bool
	StartTime        *time.Time
	HasStartTime     bool
	EndTime          *time.Time
	HasEndTime       bool
	IsActive         bool
	HasIsActive      bool
}

// SessionStore is the external persistence collaborator.
//
// GetUserByEmail returns the most recent record for email, or nil when none
// exists. GetActiveUserByEmail returns the most recent record (by
// queueJoinTime, descending) still missing startTime or endTime, or nil.
type SessionStore interface {
	GetUserByEmail(ctx context.Context, email string) (*SessionRecord, error)
	GetActiveUserByEmail(ctx context.Context, email string) (*SessionRecord, error)
	CreateUserWithFields(ctx context.Context, email string, fields Fields) (*SessionRecord, error)
	UpdateUserFields(ctx context.Context, id string, fields Fields) error
	StartSession(ctx context.Context, id string) error
	EndSession(ctx context.Context, id string) error
}

// Analytics is the aggregate snapshot surfaced on the status endpoint.
type Analytics struct {
	TotalRecords int     `json:"totalRecords"`
	ActiveQueue  int     `json:"activeQueue"`
	RepeatUsers  int     `json:"repeatUsers"`
	AvgSessions  float64 `json:"avgSessions"`
}
