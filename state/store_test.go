package state

import (
	"testing"
	"time"

	"silomonitor/config"
)

func newTestStore(slaves []int, historyMax int) *Store {
	loc := time.UTC
	return New(slaves, historyMax, loc, config.ExternalCode)
}

func intp(v int) *int { return &v }

func TestUpdateAcceptedReadingSetsOnline(t *testing.T) {
	s := newTestStore([]int{1}, 100)
	now := time.Now()

	accepted := s.Update(1, intp(14000), intp(50), "", now)
	if !accepted {
		t.Fatal("Update() expected accepted=true")
	}

	snap := s.Snapshot()
	st := snap[1]
	if !st.Online {
		t.Error("Online = false, want true")
	}
	if st.Value == nil || *st.Value != 14000 {
		t.Errorf("Value = %v, want 14000", st.Value)
	}
	if st.Percent == nil || *st.Percent != 50 {
		t.Errorf("Percent = %v, want 50", st.Percent)
	}
	if st.TotalReads != 1 || st.ErrorCount != 0 {
		t.Errorf("TotalReads=%d ErrorCount=%d, want 1,0", st.TotalReads, st.ErrorCount)
	}
}

func TestUpdateErrorSetsOfflineAndIncrementsErrorCount(t *testing.T) {
	s := newTestStore([]int{1}, 100)
	now := time.Now()

	accepted := s.Update(1, nil, nil, "value out of range: 30000 (range: 0-28000)", now)
	if accepted {
		t.Fatal("Update() expected accepted=false for error")
	}

	snap := s.Snapshot()
	st := snap[1]
	if st.Online {
		t.Error("Online = true, want false")
	}
	if st.ErrorCount != 1 || st.TotalReads != 1 {
		t.Errorf("ErrorCount=%d TotalReads=%d, want 1,1", st.ErrorCount, st.TotalReads)
	}
	if st.LastError == "" {
		t.Error("LastError should be set")
	}
}

func TestErrorCountNeverExceedsTotalReads(t *testing.T) {
	s := newTestStore([]int{1}, 100)
	now := time.Now()

	s.Update(1, intp(100), intp(1), "", now)
	s.Update(1, nil, nil, "boom", now)
	s.Update(1, intp(200), intp(2), "", now)

	snap := s.Snapshot()
	st := snap[1]
	if st.ErrorCount > st.TotalReads {
		t.Errorf("ErrorCount (%d) > TotalReads (%d)", st.ErrorCount, st.TotalReads)
	}
	if st.TotalReads != 3 || st.ErrorCount != 1 {
		t.Errorf("TotalReads=%d ErrorCount=%d, want 3,1", st.TotalReads, st.ErrorCount)
	}
}

func TestHistoryRingBoundedAndMonotonic(t *testing.T) {
	s := newTestStore([]int{1}, 3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		s.Update(1, intp(i), intp(i), "", base.Add(time.Duration(i)*time.Second))
	}

	samples, ok := s.History(1, 0)
	if !ok {
		t.Fatal("History() ok=false for known slave")
	}
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3 (bounded by history_max_points)", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].EpochSeconds < samples[i-1].EpochSeconds {
			t.Errorf("history not monotonic at index %d", i)
		}
	}
	if samples[len(samples)-1].Value != 4 {
		t.Errorf("last sample value = %d, want 4 (most recent)", samples[len(samples)-1].Value)
	}
}

func TestHistoryOnlyContainsAcceptedSamples(t *testing.T) {
	s := newTestStore([]int{1}, 100)
	now := time.Now()

	s.Update(1, intp(100), intp(1), "", now)
	s.Update(1, nil, nil, "timeout", now.Add(time.Second))
	s.Update(1, intp(200), intp(2), "", now.Add(2*time.Second))

	samples, _ := s.History(1, 0)
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2 (error outcome must not append)", len(samples))
	}
}

func TestHistoryUnknownSlave(t *testing.T) {
	s := newTestStore([]int{1}, 100)
	if _, ok := s.History(2, 0); ok {
		t.Error("History() ok=true for unknown slave, want false")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newTestStore([]int{1}, 100)
	s.Update(1, intp(100), intp(1), "", time.Now())

	snap1 := s.Snapshot()
	*snap1[1].Value = 999

	snap2 := s.Snapshot()
	if *snap2[1].Value != 100 {
		t.Errorf("mutating snap1 leaked into store state: snap2 value = %d", *snap2[1].Value)
	}
}

func TestStatsOnlineSlavesAndUptime(t *testing.T) {
	s := newTestStore([]int{1, 2, 3}, 100)
	s.Update(1, intp(1), intp(1), "", time.Now())
	s.Update(2, nil, nil, "timeout", time.Now())

	stats := s.Stats()
	if stats.OnlineSlaves != 1 {
		t.Errorf("OnlineSlaves = %d, want 1", stats.OnlineSlaves)
	}
	if stats.UptimeSeconds < 0 {
		t.Errorf("UptimeSeconds = %v, want >= 0", stats.UptimeSeconds)
	}
}

func TestSuccessRate(t *testing.T) {
	st := Status{TotalReads: 0}
	if st.SuccessRate() != 0 {
		t.Errorf("SuccessRate() with no reads = %v, want 0", st.SuccessRate())
	}

	st = Status{TotalReads: 4, ErrorCount: 1}
	if st.SuccessRate() != 0.75 {
		t.Errorf("SuccessRate() = %v, want 0.75", st.SuccessRate())
	}
}

func TestOrderPreservesConfiguredSequence(t *testing.T) {
	s := newTestStore([]int{5, 1, 9}, 100)
	order := s.Order()
	if len(order) != 3 || order[0] != 5 || order[1] != 1 || order[2] != 9 {
		t.Errorf("Order() = %v, want [5 1 9] preserved", order)
	}
}
