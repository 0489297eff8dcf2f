package jobs

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/tiffany-su2004/smart-greenhouse/internal/greenhouse"
)

// Snapshot is the latest dashboard view: newest reading, actuator states
// and system settings.
type Snapshot struct {
	Reading             greenhouse.SensorReading
	HasReading          bool
	Controls            map[string]greenhouse.ControlState
	Settings            greenhouse.SystemSettings
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int
}

// IsStale reports whether the backend has failed for several polls in a row.
func (s Snapshot) IsStale() bool {
	return s.ConsecutiveFailures >= 2
}

// SnapshotStore guards the snapshot shared between the poller and HTTP handlers.
type SnapshotStore struct {
	mu       sync.RWMutex
	snapshot Snapshot
	now      func() time.Time
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{now: time.Now}
}

// PollResult carries one poll cycle. Each source succeeds or fails on its
// own; a nil Reading with a nil ReadingErr means the backend has no samples yet.
type PollResult struct {
	Reading     *greenhouse.SensorReading
	ReadingErr  error
	Controls    map[string]greenhouse.ControlState
	ControlsErr error
	Settings    greenhouse.SystemSettings
	SettingsErr error
}

func (r PollResult) err() error {
	return errors.Join(r.ReadingErr, r.ControlsErr, r.SettingsErr)
}

// Update applies every source that succeeded and keeps the previous data of
// those that failed. Any failure counts the cycle as failed.
func (s *SnapshotStore) Update(res PollResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = s.now()

	if res.ReadingErr == nil {
		if res.Reading != nil {
			s.snapshot.Reading = *res.Reading
			s.snapshot.HasReading = true
		} else {
			s.snapshot.Reading = greenhouse.SensorReading{}
			s.snapshot.HasReading = false
		}
	}
	if res.ControlsErr == nil {
		s.snapshot.Controls = maps.Clone(res.Controls)
	}
	if res.SettingsErr == nil {
		s.snapshot.Settings = res.Settings
	}

	if err := res.err(); err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// Snapshot returns a copy of the current snapshot.
func (s *SnapshotStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Controls = maps.Clone(s.snapshot.Controls)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}
