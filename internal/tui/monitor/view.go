package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"insp/internal/models"
)

// renderView assembles the full screen
func (m Model) renderView() string {
	if m.Width < MinWidth || m.Height < MinHeight {
		return subtleStyle.Render("terminal too small")
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderStatusPanel())
	b.WriteString("\n")
	b.WriteString(m.renderConflictsPanel())
	b.WriteString("\n")
	b.WriteString(m.renderBatchesPanel())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	left := titleStyle.Render("insp monitor")
	if m.Version != "" {
		left += subtleStyle.Render(" " + m.Version)
	}
	right := ""
	if !m.LastRefresh.IsZero() {
		right = timestampStyle.Render("refreshed " + m.LastRefresh.Format("15:04:05"))
	}
	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) panelFrame(p Panel) lipgloss.Style {
	if m.ActivePanel == p {
		return activePanelStyle
	}
	return panelStyle
}

func (m Model) renderStatusPanel() string {
	var lines []string
	lines = append(lines, panelTitleStyle.Render("1 Status"))

	if m.Status == nil {
		lines = append(lines, subtleStyle.Render("waiting for data..."))
	} else {
		if a := m.Status.Active; a != nil {
			lines = append(lines, fmt.Sprintf("active   %s  %d/%d (%.0f%%)  %s",
				a.SyncID, a.Completed+a.Failed, a.Total, a.Percentage,
				subtleStyle.Render(a.CurrentOperation)))
		} else {
			lines = append(lines, subtleStyle.Render("idle"))
		}
		last := "never"
		if m.Status.LastSyncAt != nil {
			last = relTime(*m.Status.LastSyncAt)
		}
		lines = append(lines, fmt.Sprintf("last sync  %s    queue depth  %d    pending conflicts  %d",
			last, m.Status.QueueDepth, m.Status.PendingConflicts))
	}
	if m.Metrics != nil {
		lines = append(lines, subtleStyle.Render(fmt.Sprintf(
			"daemon  up %s  syncs %d/%d ok  failed %d  applied %d",
			(time.Duration(m.Metrics.UptimeSeconds)*time.Second).Round(time.Second),
			m.Metrics.SyncsCompleted, m.Metrics.SyncsStarted,
			m.Metrics.SyncsFailed, m.Metrics.OpsApplied)))
	}

	return m.panelFrame(PanelStatus).Width(m.Width - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderConflictsPanel() string {
	conflicts := m.filteredConflicts()

	var lines []string
	title := fmt.Sprintf("2 Conflicts (%d)", len(conflicts))
	if len(conflicts) != len(m.Conflicts) {
		title = fmt.Sprintf("2 Conflicts (%d of %d)", len(conflicts), len(m.Conflicts))
	}
	lines = append(lines, panelTitleStyle.Render(title))
	if m.FilterMode || m.FilterInput.Value() != "" {
		lines = append(lines, m.FilterInput.View())
	}

	if len(conflicts) == 0 {
		lines = append(lines, subtleStyle.Render("none pending"))
	}
	max := conflictPanelHeight(m.Height)
	for i, c := range conflicts {
		if i >= max {
			lines = append(lines, subtleStyle.Render(fmt.Sprintf("… and %d more", len(conflicts)-max)))
			break
		}
		line := fmt.Sprintf("%s  %s/%s  %s", c.ID, c.EntityType, c.EntityID,
			timestampStyle.Render(relTime(c.DetectedAt)))
		if c.Error != "" {
			line += "  " + errStyle.Render(truncate(c.Error, 40))
		}
		if m.ActivePanel == PanelConflicts && m.Selected[PanelConflicts] == i {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	return m.panelFrame(PanelConflicts).Width(m.Width - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderBatchesPanel() string {
	title := panelTitleStyle.Render(fmt.Sprintf("3 Recent syncs (%d)", len(m.Batches)))
	feed := renderBatchFeed(m.Batches, m.ScrollOffset[PanelBatches], batchPanelHeight(m.Height), m.Width-6)
	return m.panelFrame(PanelBatches).Width(m.Width - 2).Render(title + "\n" + feed)
}

// renderBatchFeed builds the batch history content, showing at most max
// rows starting at offset.
func renderBatchFeed(batches []models.SyncBatch, offset, max, width int) string {
	if len(batches) == 0 {
		return subtleStyle.Render("no syncs yet")
	}
	if offset > len(batches) {
		offset = len(batches)
	}
	var lines []string
	if offset > 0 {
		lines = append(lines, subtleStyle.Render(fmt.Sprintf("↑ %d earlier", offset)))
	}
	for i, b := range batches[offset:] {
		if i >= max {
			lines = append(lines, subtleStyle.Render(fmt.Sprintf("… and %d more", len(batches)-offset-max)))
			break
		}
		status := models.SessionSuccess
		if len(b.Conflicts) > 0 {
			status = models.SessionPartial
		}
		line := fmt.Sprintf("%s  %s  %s  applied %d  conflicts %d",
			timestampStyle.Render(b.Timestamp.Format("Jan 02 15:04:05")),
			b.ID,
			sessionStatusStyle(status).Render(string(status)),
			len(b.Operations), len(b.Conflicts))
		if width > 0 {
			line = truncate(line, width)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	if m.Err != nil {
		return errStyle.Render("error: " + truncate(m.Err.Error(), m.Width-8))
	}
	if m.ShowHelp {
		return helpStyle.Render("tab/1/2/3 panels · j/k scroll · / filter conflicts · r refresh · ? help · q quit")
	}
	return helpStyle.Render("? for help")
}

func conflictPanelHeight(h int) int {
	n := (h - 12) / 2
	if n < 3 {
		n = 3
	}
	return n
}

func batchPanelHeight(h int) int {
	n := h - 12 - conflictPanelHeight(h)
	if n < 3 {
		n = 3
	}
	return n
}

func relTime(t time.Time) string {
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

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
