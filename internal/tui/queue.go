package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/mxchip/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusClaimed   = lipgloss.NewStyle().Foreground(lipgloss.Color("4")) // Blue
	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

// TaskItem implements list.Item for the queue list
type TaskItem struct {
	models.Task
}

func (i TaskItem) FilterValue() string { return i.Label }
func (i TaskItem) Title() string {
	if i.RunNow {
		return "▶ " + i.Label
	}
	return i.Label
}
func (i TaskItem) Description() string {
	desc := fmt.Sprintf("%s • %s", formatStatus(string(i.Status)), i.Type)
	if i.Error != "" {
		desc += " • " + i.Error
	}
	return desc
}

func formatStatus(status string) string {
	switch status {
	case "pending":
		return statusPending.Render("● pending")
	case "claimed":
		return statusClaimed.Render("● claimed")
	case "running":
		return statusRunning.Render("● running")
	case "completed":
		return statusCompleted.Render("● completed")
	case "failed":
		return statusFailed.Render("● failed")
	default:
		return status
	}
}

var filters = []string{"", "pending", "running", "completed", "failed"}
var filterLabels = []string{"all", "pending", "running", "completed", "failed"}

// QueueModel manages the queue screen: a list of tasks and the parameters
// of the selected one.
type QueueModel struct {
	client      *Client
	list        list.Model
	detail      viewport.Model
	filterIndex int
	loading     bool
}

// NewQueueModel creates a new queue model
func NewQueueModel(client *Client) *QueueModel {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 60, 20)
	l.Title = "Queue"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = listTitleStyle

	return &QueueModel{
		client: client,
		list:   l,
		detail: viewport.New(40, 20),
	}
}

// SetSize splits w between the list and the detail pane
func (m *QueueModel) SetSize(w, h int) {
	listW := w * 3 / 5
	m.list.SetSize(listW, h)
	m.detail.Width = w - listW - 2
	m.detail.Height = h
}

// SelectedTask returns the currently selected task
func (m *QueueModel) SelectedTask() *TaskItem {
	if item := m.list.SelectedItem(); item != nil {
		task := item.(TaskItem)
		return &task
	}
	return nil
}

// Filtering reports whether the list is taking filter input.
func (m *QueueModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

// CycleFilter cycles through status filters
func (m *QueueModel) CycleFilter() tea.Cmd {
	m.filterIndex = (m.filterIndex + 1) % len(filters)
	m.list.Title = fmt.Sprintf("Queue [%s]", filterLabels[m.filterIndex])
	return m.Refresh()
}

// Refresh fetches tasks from the API
func (m *QueueModel) Refresh() tea.Cmd {
	m.loading = true
	filter := filters[m.filterIndex]
	return func() tea.Msg {
		tasks, err := m.client.ListTasks(filter)
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{tasks}
	}
}

// Update handles messages
func (m *QueueModel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tasksLoadedMsg:
		m.loading = false
		items := make([]list.Item, len(msg.tasks))
		for i, t := range msg.tasks {
			items[i] = t
		}
		cmd := m.list.SetItems(items)
		m.showSelected()
		return cmd

	case tea.KeyMsg:
		if !m.Filtering() {
			switch msg.String() {
			case "r":
				return m.Refresh()
			case "f":
				return m.CycleFilter()
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.showSelected()
	return cmd
}

func (m *QueueModel) showSelected() {
	task := m.SelectedTask()
	if task == nil {
		m.detail.SetContent(helpStyle.Render("No tasks queued"))
		return
	}
	m.detail.SetContent(renderParameters(task.Task))
}

// renderParameters lists a task's parameters in name order.
func renderParameters(t models.Task) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("shape ") + t.Shape + "\n")
	b.WriteString(labelStyle.Render("seq   ") + fmt.Sprint(t.Seq) + "\n\n")

	names := make([]string, 0, len(t.Parameters))
	for k := range t.Parameters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v, _ := json.Marshal(t.Parameters[k])
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(k), string(v)))
	}
	return b.String()
}

// View renders the queue
func (m *QueueModel) View() string {
	if m.loading && len(m.list.Items()) == 0 {
		return "Loading tasks..."
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.list.View(),
		panelStyle.Render(m.detail.View()),
	)
}

type tasksLoadedMsg struct {
	tasks []TaskItem
}
