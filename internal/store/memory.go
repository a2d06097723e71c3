package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	autoerrors "queuewatch/internal/automation/errors"
)

// MemoryStore keeps session records in process memory, keyed by email. It is
// the default backend and doubles as the reference implementation of the
// SessionStore ordering rules.
type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string][]*SessionRecord
	byID    map[string]*SessionRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail: make(map[string][]*SessionRecord),
		byID:    make(map[string]*SessionRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.byEmail[email]
	if len(records) == 0 {
		return nil, nil
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return cloneRecord(latest), nil
}

func (s *MemoryStore) GetActiveUserByEmail(_ context.Context, email string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []*SessionRecord
	for _, r := range s.byEmail[email] {
		if r.StartTime == nil || r.EndTime == nil {
			open = append(open, r)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}
	// Most recent queue join wins; records without one sort last.
	sort.SliceStable(open, func(i, j int) bool {
		ti, tj := open[i].QueueJoinTime, open[j].QueueJoinTime
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return cloneRecord(open[0]), nil
}

func (s *MemoryStore) CreateUserWithFields(_ context.Context, email string, fields Fields) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &SessionRecord{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: s.now(),
	}
	applyFields(rec, fields)
	s.byEmail[email] = append(s.byEmail[email], rec)
	s.byID[rec.ID] = rec
	return cloneRecord(rec), nil
}

func (s *MemoryStore) UpdateUserFields(_ context.Context, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return autoerrors.NewPersistenceError("session record not found: "+id, nil)
	}
	applyFields(rec, fields)
	return nil
}

func (s *MemoryStore) StartSession(_ context.Context, id string) error {
	now := s.now()
	return s.UpdateUserFields(context.Background(), id, Fields{
		StartTime:    &now,
		HasStartTime: true,
		IsActive:     true,
		HasIsActive:  true,
	})
}

func (s *MemoryStore) EndSession(_ context.Context, id string) error {
	now := s.now()
	return s.UpdateUserFields(context.Background(), id, Fields{
		EndTime:     &now,
		HasEndTime:  true,
		IsActive:    false,
		HasIsActive: true,
	})
}

// Snapshot returns all records ordered by creation time, oldest first.
func (s *MemoryStore) Snapshot() []*SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*SessionRecord
	for _, recs := range s.byEmail {
		for _, r := range recs {
			all = append(all, cloneRecord(r))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all
}

// Analytics aggregates the current state for the status surface.
func (s *MemoryStore) Analytics() Analytics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a Analytics
	totalEmails := 0
	for _, recs := range s.byEmail {
		if len(recs) == 0 {
			continue
		}
		totalEmails++
		a.TotalRecords += len(recs)
		if len(recs) > 1 {
			a.RepeatUsers++
		}
		for _, r := range recs {
			if r.QueueJoinTime != nil && r.StartTime == nil && r.EndTime == nil {
				a.ActiveQueue++
			}
		}
	}
	if totalEmails > 0 {
		a.AvgSessions = float64(a.TotalRecords) / float64(totalEmails)
	}
	return a
}

func applyFields(rec *SessionRecord, fields Fields) {
	if fields.HasQueueJoinTime {
		rec.QueueJoinTime = copyTime(fields.QueueJoinTime)
	}
	if fields.HasStartTime {
		rec.StartTime = copyTime(fields.StartTime)
	}
	if fields.HasEndTime {
		rec.EndTime = copyTime(fields.EndTime)
	}
	if fields.HasIsActive {
		rec.IsActive = fields.IsActive
	}
}

func cloneRecord(r *SessionRecord) *SessionRecord {
	out := *r
	out.QueueJoinTime = copyTime(r.QueueJoinTime)
	out.StartTime = copyTime(r.StartTime)
	out.EndTime = copyTime(r.EndTime)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
