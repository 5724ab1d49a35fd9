package monitor

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"insp/internal/models"
	"insp/internal/syncclient"
)

// Panel represents which panel is active
type Panel int

const (
	PanelStatus Panel = iota
	PanelConflicts
	PanelBatches
)

// Model is the main Bubble Tea model for the sync monitor TUI
type Model struct {
	Client *syncclient.Client

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status    *syncclient.StatusResponse
	Conflicts []models.SyncConflict
	Batches   []models.SyncBatch
	Metrics   *syncclient.MetricsResponse

	// UI state
	ActivePanel  Panel
	Selected     map[Panel]int
	ScrollOffset map[Panel]int
	FilterMode   bool
	FilterInput  textinput.Model
	ShowHelp     bool
	LastRefresh  time.Time
	Err          error

	// Configuration
	RefreshInterval time.Duration
	Version         string
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 12

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Status    *syncclient.StatusResponse
	Conflicts []models.SyncConflict
	Batches   []models.SyncBatch
	Metrics   *syncclient.MetricsResponse
	Err       error
	Timestamp time.Time
}

// NewModel creates a new monitor model
func NewModel(client *syncclient.Client, interval time.Duration, version string) Model {
	filter := textinput.New()
	filter.Placeholder = "filter"
	filter.Prompt = "/"
	filter.Width = 30
	filter.CharLimit = 100

	return Model{
		Client:          client,
		RefreshInterval: interval,
		Selected:        make(map[Panel]int),
		ScrollOffset:    make(map[Panel]int),
		ActivePanel:     PanelStatus,
		FilterInput:     filter,
		Version:         version,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.clampScroll()
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Status = msg.Status
		m.Conflicts = msg.Conflicts
		m.Batches = msg.Batches
		m.Metrics = msg.Metrics
		m.Err = msg.Err
		m.LastRefresh = msg.Timestamp
		m.clampSelection()
		m.clampScroll()
		return m, nil
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.FilterMode {
		switch msg.String() {
		case "esc":
			m.FilterMode = false
			m.FilterInput.Blur()
			m.FilterInput.SetValue("")
			m.clampSelection()
			return m, nil
		case "enter":
			m.FilterMode = false
			m.FilterInput.Blur()
			return m, nil
		default:
			var cmd tea.Cmd
			m.FilterInput, cmd = m.FilterInput.Update(msg)
			m.clampSelection()
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % 3
		return m, nil

	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + 2) % 3
		return m, nil

	case "1":
		m.ActivePanel = PanelStatus
		return m, nil

	case "2":
		m.ActivePanel = PanelConflicts
		return m, nil

	case "3":
		m.ActivePanel = PanelBatches
		return m, nil

	case "/":
		if m.ActivePanel == PanelConflicts {
			m.FilterMode = true
			return m, m.FilterInput.Focus()
		}
		return m, nil

	case "j", "down":
		if m.ActivePanel == PanelBatches {
			m.ScrollOffset[PanelBatches]++
			m.clampScroll()
		} else {
			m.Selected[m.ActivePanel]++
			m.clampSelection()
		}
		return m, nil

	case "k", "up":
		if m.ActivePanel == PanelBatches {
			if m.ScrollOffset[PanelBatches] > 0 {
				m.ScrollOffset[PanelBatches]--
			}
		} else if m.Selected[m.ActivePanel] > 0 {
			m.Selected[m.ActivePanel]--
		}
		return m, nil

	case "r":
		return m, m.fetchData()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// filteredConflicts returns the conflicts matching the current filter text.
func (m Model) filteredConflicts() []models.SyncConflict {
	query := strings.ToLower(strings.TrimSpace(m.FilterInput.Value()))
	if query == "" {
		return m.Conflicts
	}
	var out []models.SyncConflict
	for _, c := range m.Conflicts {
		hay := strings.ToLower(c.ID + " " + string(c.EntityType) + " " + c.EntityID)
		if strings.Contains(hay, query) {
			out = append(out, c)
		}
	}
	return out
}

func (m *Model) clampSelection() {
	if n := len(m.filteredConflicts()); n == 0 {
		m.Selected[PanelConflicts] = 0
	} else if m.Selected[PanelConflicts] >= n {
		m.Selected[PanelConflicts] = n - 1
	}
}

func (m *Model) clampScroll() {
	max := len(m.Batches) - batchPanelHeight(m.Height)
	if max < 0 {
		max = 0
	}
	if m.ScrollOffset[PanelBatches] > max {
		m.ScrollOffset[PanelBatches] = max
	}
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that fetches all data and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		return FetchData(m.Client)
	}
}
