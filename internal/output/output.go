// Package output provides styled terminal output helpers (success, error,
// warning, sync result formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"insp/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[models.SessionStatus]lipgloss.Style{
		models.SessionSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.SessionPartial: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SessionFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON prints any value as indented JSON
func JSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		Error("marshal: %v", err)
		return
	}
	fmt.Println(string(data))
}

// SessionStatus renders a session status with its color
func SessionStatus(s models.SessionStatus) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

// SyncResult prints a human-readable summary of a sync session
func SyncResult(r *models.SyncResult) {
	fmt.Println(titleStyle.Render("Sync " + r.SyncID))
	fmt.Printf("  status:    %s\n", SessionStatus(r.Status))
	fmt.Printf("  applied:   %d\n", r.AppliedCount)
	fmt.Printf("  conflicts: %d\n", r.ConflictCount)
	fmt.Printf("  duration:  %s\n", r.Duration.Round(time.Millisecond))
	if len(r.Conflicts) > 0 {
		fmt.Println(subtleStyle.Render("  pending conflicts:"))
		for _, c := range r.Conflicts {
			line := fmt.Sprintf("    %s  %s/%s", c.ID, c.EntityType, c.EntityID)
			if c.Error != "" {
				line += "  " + errorStyle.Render(c.Error)
			}
			fmt.Println(line)
		}
	}
}

// Conflict prints one conflict with both sides summarized
func Conflict(c models.SyncConflict) {
	fmt.Println(titleStyle.Render(c.ID) + subtleStyle.Render(fmt.Sprintf("  %s/%s  detected %s",
		c.EntityType, c.EntityID, RelativeTime(c.DetectedAt))))
	fmt.Printf("  client: %s %s @ %s\n", c.ClientChange.Operation, c.ClientChange.OriginDeviceID,
		c.ClientChange.Timestamp.Format(time.RFC3339))
	if c.ServerChange != nil {
		fmt.Printf("  server: %s %s @ %s\n", c.ServerChange.Operation, c.ServerChange.OriginDeviceID,
			c.ServerChange.Timestamp.Format(time.RFC3339))
	}
	if c.Error != "" {
		fmt.Printf("  error:  %s\n", errorStyle.Render(c.Error))
	}
}

// Queue prints the offline queue contents
func Queue(ops []models.Change) {
	if len(ops) == 0 {
		fmt.Println(subtleStyle.Render("queue empty"))
		return
	}
	for _, op := range ops {
		fmt.Printf("%s  %s %s/%s  %s\n",
			op.ID, op.Operation, op.EntityType, op.EntityID,
			subtleStyle.Render(RelativeTime(op.Timestamp)))
	}
}

// RelativeTime formats a time as a short relative string like "3m ago"
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Truncate shortens a string to max runes with an ellipsis
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
