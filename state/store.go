// Package state holds the in-memory operational view of every configured
// device: its last accepted reading, success accounting, and a bounded
// history of recent samples. A single mutex guards the whole store so
// that Update and Snapshot never interleave partially (invariant I5).
package state

import (
	"sync"
	"time"
)

// Sample is one accepted reading recorded in a device's history ring.
type Sample struct {
	EpochSeconds int64 `json:"epoch_seconds"`
	Value        int   `json:"value"`
	Percent      int   `json:"percent"`
}

// Status is the always-present per-device record.
type Status struct {
	Slave       int        `json:"slave"`
	ExternalCode string    `json:"external_code"`
	Value        *int      `json:"value"`
	Percent      *int      `json:"percent"`
	Online       bool      `json:"online"`
	LastOK       *time.Time `json:"last_ok"`
	LastError    string     `json:"last_error,omitempty"`
	ErrorCount   int        `json:"error_count"`
	TotalReads   int        `json:"total_reads"`
}

// SuccessRate returns (total_reads - error_count) / total_reads, or 0
// when no reads have happened yet.
func (s Status) SuccessRate() float64 {
	if s.TotalReads == 0 {
		return 0
	}
	return float64(s.TotalReads-s.ErrorCount) / float64(s.TotalReads)
}

// Counters are the global, monotonic poll counters.
type Counters struct {
	TotalPolls      int       `json:"total_polls"`
	SuccessfulPolls int       `json:"successful_polls"`
	StartTime       time.Time `json:"start_time"`
	LastPoll        time.Time `json:"last_poll"`
	OnlineSlaves    int       `json:"online_slaves"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
}

type device struct {
	status  Status
	history []Sample
}

// Store is the shared, mutex-guarded device map plus global counters.
type Store struct {
	mu               sync.Mutex
	devices          map[int]*device
	order            []int
	historyMaxPoints int
	counters         Counters
	location         *time.Location
}

// New creates a Store with one record per slave in slaves, in the given
// order. location is used to stamp last_ok timestamps.
func New(slaves []int, historyMaxPoints int, location *time.Location, externalCode func(int) string) *Store {
	s := &Store{
		devices:          make(map[int]*device, len(slaves)),
		order:            append([]int(nil), slaves...),
		historyMaxPoints: historyMaxPoints,
		location:         location,
		counters:         Counters{StartTime: time.Now().In(location)},
	}
	for _, slave := range slaves {
		s.devices[slave] = &device{status: Status{Slave: slave, ExternalCode: externalCode(slave)}}
	}
	return s
}

// BeginCycle records the start of a new poll cycle.
func (s *Store) BeginCycle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.TotalPolls++
	s.counters.LastPoll = now
}

// Update applies one device read outcome. value is nil for any non-accepted
// outcome; errText classifies the failure when non-empty.
func (s *Store) Update(slave int, value *int, percent *int, errText string, now time.Time) (accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[slave]
	if !ok {
		return false
	}

	d.status.TotalReads++

	if errText != "" {
		d.status.Online = false
		d.status.LastError = errText
		d.status.ErrorCount++
		return false
	}

	d.status.Value = value
	d.status.Percent = percent
	d.status.Online = true
	ts := now.In(s.location)
	d.status.LastOK = &ts
	d.status.LastError = ""

	d.history = append(d.history, Sample{EpochSeconds: now.Unix(), Value: *value, Percent: *percent})
	if len(d.history) > s.historyMaxPoints {
		d.history = d.history[len(d.history)-s.historyMaxPoints:]
	}

	s.counters.SuccessfulPolls++
	return true
}

// Snapshot returns a deep copy of every device status, suitable for
// serialization or for the Alert Engine to evaluate without holding the
// store's lock.
func (s *Store) Snapshot() map[int]Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int]Status, len(s.devices))
	for slave, d := range s.devices {
		out[slave] = copyStatus(d.status)
	}
	return out
}

// History returns a copy of slave's history ring, truncated to the most
// recent points samples when points > 0. ok is false for an unknown slave.
func (s *Store) History(slave int, points int) (samples []Sample, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, exists := s.devices[slave]
	if !exists {
		return nil, false
	}

	src := d.history
	if points > 0 && len(src) > points {
		src = src[len(src)-points:]
	}
	samples = append(samples, src...)
	return samples, true
}

// Stats returns the global counters, including derived online_slaves and
// uptime_seconds as of the moment of the call.
func (s *Store) Stats() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters
	c.OnlineSlaves = 0
	for _, d := range s.devices {
		if d.status.Online {
			c.OnlineSlaves++
		}
	}
	c.UptimeSeconds = time.Since(c.StartTime).Seconds()
	return c
}

// Order returns the configured device order (a copy).
func (s *Store) Order() []int {
	return append([]int(nil), s.order...)
}

func copyStatus(s Status) Status {
	out := s
	if s.Value != nil {
		v := *s.Value
		out.Value = &v
	}
	if s.Percent != nil {
		p := *s.Percent
		out.Percent = &p
	}
	if s.LastOK != nil {
		t := *s.LastOK
		out.LastOK = &t
	}
	return out
}
