// Package tui provides the interactive chip navigator for mxchip.
package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fentz26/mxchip/internal/chip"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	taskItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// headerLines is the height of the header drawn above the grid.
const headerLines = 2

type mode int

const (
	modeGrid mode = iota
	modeMenu
	modeForm
	modeQueue
)

// Options configures the navigator.
type Options struct {
	Rows   int
	Cols   int
	Lock   chip.LockAxes
	Logger *zap.Logger
}

// App is the main TUI application model.
type App struct {
	client *Client
	grid   *GridModel
	menu   *MenuModel
	form   *FormModel
	queue  *QueueModel
	log    *zap.Logger

	mode         mode
	width        int
	height       int
	message      string
	daemonOnline bool
}

// New creates the navigator for a rows x cols chip talking to apiAddr.
func New(apiAddr string, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	grid, err := NewGridModel(uuid.NewString(), opts.Rows, opts.Cols, opts.Lock)
	if err != nil {
		return nil, err
	}
	grid.SetOrigin(0, headerLines)

	client := NewClient(apiAddr)
	return &App{
		client: client,
		grid:   grid,
		queue:  NewQueueModel(client),
		log:    log.Named("tui"),
	}, nil
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.checkDaemon()
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.queue.SetSize(msg.Width, max(5, msg.Height-headerLines-2))
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		return a, a.handleKey(msg)

	case tea.MouseMsg:
		if a.mode == modeGrid {
			return a, a.dispatch(a.grid.Update(msg))
		}
		return a, nil

	case menuChosenMsg, menuClosedMsg:
		return a, a.dispatch(msg)

	case formLoadedMsg, formRejectedMsg:
		if a.form != nil {
			return a, a.form.Update(msg)
		}
		return a, nil

	case taskAddedMsg:
		a.closeForm()
		a.message = queuedMessage(msg)
		a.log.Info("task queued",
			zap.String("task_id", msg.resp.Task.ID),
			zap.String("label", msg.resp.Task.Label))
		return a, a.checkDaemon()

	case tasksLoadedMsg:
		return a, a.queue.Update(msg)

	case daemonStatusMsg:
		a.daemonOnline = msg.online
		return a, nil

	case errMsg:
		a.message = "Error: " + msg.err.Error()
		a.log.Warn("request failed", zap.Error(msg.err))
		return a, nil
	}

	if a.mode == modeQueue {
		return a, a.queue.Update(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch a.mode {
	case modeMenu:
		return a.dispatch(a.menu.Update(msg))

	case modeForm:
		if msg.String() == "esc" {
			a.closeForm()
			return nil
		}
		return a.form.Update(msg)

	case modeQueue:
		if !a.queue.Filtering() {
			switch msg.String() {
			case "esc", "tab":
				a.mode = modeGrid
				return nil
			case "q":
				return tea.Quit
			}
		}
		return a.queue.Update(msg)
	}

	switch msg.String() {
	case "q":
		return tea.Quit
	case "tab":
		a.mode = modeQueue
		return a.queue.Refresh()
	}
	a.message = ""
	return a.dispatch(a.grid.Update(msg))
}

// dispatch acts on the requests raised by the grid and the menu.
func (a *App) dispatch(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case menuMsg:
		a.menu = NewMenuModel(msg.menu)
		a.mode = modeMenu

	case navigateMsg:
		a.message = fmt.Sprintf("Move to block %s", msg.nav.Address)
		a.log.Info("move to block", zap.Stringer("address", msg.nav.Address))

	case menuChosenMsg:
		a.menu = nil
		a.mode = modeGrid
		switch msg.item.ID {
		case chip.MenuMoveTo:
			if len(msg.req.Selection) > 0 {
				last := msg.req.Selection[len(msg.req.Selection)-1]
				a.message = fmt.Sprintf("Move to block %s", last)
				a.log.Info("move to block", zap.Stringer("address", last))
			}
		case chip.MenuAddTask:
			a.form = NewFormModel(a.client, a.grid.Session().Snapshot())
			a.mode = modeForm
			return a.form.Load()
		}

	case menuClosedMsg:
		a.menu = nil
		a.mode = modeGrid
	}
	return nil
}

// closeForm returns to the grid. The selection belongs to the form and is
// released with it.
func (a *App) closeForm() {
	a.mode = modeGrid
	a.form = nil
	a.grid.Session().ClearSelection()
}

func queuedMessage(msg taskAddedMsg) string {
	s := fmt.Sprintf("✓ Queued %s (%s)", msg.resp.Task.Label, msg.resp.Task.Shape)
	if len(msg.resp.Warnings) == 0 {
		return s
	}
	fields := make([]string, 0, len(msg.resp.Warnings))
	for f := range msg.resp.Warnings {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		s += fmt.Sprintf(" | %s: %s", f, msg.resp.Warnings[f])
	}
	return s
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ok, err := a.client.CheckHealth()
		return daemonStatusMsg{online: ok && err == nil}
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	sess := a.grid.Session()
	header := titleStyle.Render("mxchip") + "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).
		Render(fmt.Sprintf("[%d selected]", len(sess.CurrentSelection())))
	header += "  " + labelStyle.Render("lock "+sess.MovementLock().String())
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	switch a.mode {
	case modeQueue:
		b.WriteString(a.queue.View())
	case modeForm:
		b.WriteString(a.form.View())
	case modeMenu:
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, a.grid.View(), "  ", a.menu.View()))
	default:
		b.WriteString(a.grid.View())
	}

	if a.message != "" {
		style := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			style = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + style.Render(a.message))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeQueue:
		status = " ↑↓:nav | f:filter | r:refresh | /:search | Tab:chip | q:quit"
	case modeForm:
		status = " Tab:next field | Ctrl+T:type | Ctrl+R:run now | Enter:queue | Esc:cancel"
	case modeMenu:
		status = " ↑↓:nav | Enter:choose | Esc:close"
	default:
		status = " ←↑↓→:move | Space:toggle | Enter:select | m:menu | g:go to | c:clear | Tab:queue | q:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(status))

	return b.String()
}

type daemonStatusMsg struct {
	online bool
}

type errMsg struct {
	err error
}
