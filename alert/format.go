package alert

import (
	"errors"
	"fmt"
	"time"

	"silomonitor/config"
	"silomonitor/state"
)

// ErrNoTransport is returned by Test when no chat transport is configured.
var ErrNoTransport = errors.New("alert transport not configured")

func formatOffline(slave int, st state.Status, loc *time.Location) string {
	return fmt.Sprintf("\U0001F534 <b>%s offline</b>\nlast reading: %s\nerror: %s",
		config.ExternalCode(slave), lastOKText(st, loc), st.LastError)
}

func formatRecovery(slave int, st state.Status, loc *time.Location) string {
	return fmt.Sprintf("✅ <b>%s recovered</b>\nvalue: %s at %s",
		config.ExternalCode(slave), valueText(st), time.Now().In(loc).Format(time.RFC3339))
}

func formatStartup() string {
	return "ℹ️ silo monitor started"
}

func formatCritical(reason string) string {
	return fmt.Sprintf("⚠️ <b>critical</b>: %s", reason)
}

func formatTest() string {
	return "test message from silo monitor"
}

// FormatDailyReport renders a human-readable daily summary from a
// counters snapshot and a device-status snapshot. It is a pure function,
// never wired to a scheduling loop: whether daily reports are actually
// sent in steady state is unresolved, so only the formatter is provided.
func FormatDailyReport(counters state.Counters, snapshot map[int]state.Status, loc *time.Location) string {
	online := 0
	for _, st := range snapshot {
		if st.Online {
			online++
		}
	}

	return fmt.Sprintf("\U0001F4CA <b>daily report</b> %s\nonline: %d/%d\ntotal polls: %d\nsuccessful polls: %d",
		time.Now().In(loc).Format("2006-01-02"), online, len(snapshot), counters.TotalPolls, counters.SuccessfulPolls)
}

func lastOKText(st state.Status, loc *time.Location) string {
	if st.LastOK == nil {
		return "never"
	}
	return st.LastOK.In(loc).Format(time.RFC3339)
}

func valueText(st state.Status) string {
	if st.Value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *st.Value)
}
