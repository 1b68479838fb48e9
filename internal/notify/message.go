package notify

import (
	"fmt"
	"strings"
	"time"
)

// Report describes the state of a watch when an alert is sent.
type Report struct {
	ReviewRequest string
	Entries       string
	Failures      int
	Since         time.Time
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(r Report, now time.Time, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Review request: %s\n", r.ReviewRequest))
	sb.WriteString(fmt.Sprintf("Entries: %s\n", r.Entries))
	sb.WriteString(fmt.Sprintf("Failed polls: %d\n", r.Failures))
	sb.WriteString(fmt.Sprintf("Failing for: %s", now.Sub(r.Since).Round(time.Second)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nLast error: %v", err))
	}

	return sb.String()
}

// FormatRecoveredMessage creates a recovery notification body.
func FormatRecoveredMessage(r Report, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Review request: %s\n", r.ReviewRequest))
	sb.WriteString(fmt.Sprintf("Entries: %s\n", r.Entries))
	sb.WriteString(fmt.Sprintf("Failed polls: %d\n", r.Failures))
	sb.WriteString(fmt.Sprintf("Down for: %s", now.Sub(r.Since).Round(time.Second)))

	return sb.String()
}
