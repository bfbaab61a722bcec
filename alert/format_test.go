package alert

import (
	"strings"
	"testing"
	"time"

	"silomonitor/state"
)

func TestFormatOfflineIncludesExternalCodeAndError(t *testing.T) {
	st := state.Status{LastError: "timeout reading register"}
	text := formatOffline(7, st, time.UTC)
	if !strings.Contains(text, "S07") {
		t.Errorf("formatOffline = %q, want external code S07", text)
	}
	if !strings.Contains(text, "timeout reading register") {
		t.Errorf("formatOffline = %q, want last error text", text)
	}
	if !strings.Contains(text, "never") {
		t.Errorf("formatOffline = %q, want 'never' for nil LastOK", text)
	}
}

func TestFormatRecoveryIncludesValue(t *testing.T) {
	v := 12345
	st := state.Status{Value: &v}
	text := formatRecovery(3, st, time.UTC)
	if !strings.Contains(text, "S03") || !strings.Contains(text, "12345") {
		t.Errorf("formatRecovery = %q, want code S03 and value 12345", text)
	}
}

func TestFormatRecoveryHandlesMissingValue(t *testing.T) {
	text := formatRecovery(3, state.Status{}, time.UTC)
	if !strings.Contains(text, "n/a") {
		t.Errorf("formatRecovery = %q, want n/a for nil Value", text)
	}
}

func TestFormatDailyReportCountsOnlineDevices(t *testing.T) {
	snapshot := map[int]state.Status{
		1: {Online: true},
		2: {Online: true},
		3: {Online: false},
	}
	counters := state.Counters{TotalPolls: 10, SuccessfulPolls: 8}
	text := FormatDailyReport(counters, snapshot, time.UTC)
	if !strings.Contains(text, "2/3") {
		t.Errorf("FormatDailyReport = %q, want online count 2/3", text)
	}
}

func TestFormatStartupAndCriticalAndTest(t *testing.T) {
	if formatStartup() == "" {
		t.Error("formatStartup returned empty string")
	}
	if !strings.Contains(formatCritical("scheduler panic"), "scheduler panic") {
		t.Error("formatCritical should include the reason")
	}
	if formatTest() == "" {
		t.Error("formatTest returned empty string")
	}
}
