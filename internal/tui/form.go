package tui

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/controlplane"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
)

var (
	fieldErrorStyle = lipgloss.NewStyle().Foreground(errorColor)
	previewStyle    = lipgloss.NewStyle().Foreground(cyanColor)
	focusLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
)

// FormModel edits the parameters of one task before it is queued.
type FormModel struct {
	client    *Client
	selection chip.Snapshot
	types     []tasks.Type
	typeIdx   int

	form   *taskform.Form
	inputs []textinput.Model
	focus  int
	runNow bool
	errors map[string]string
	status string
}

// NewFormModel starts a form for selection with the first task type.
func NewFormModel(client *Client, selection chip.Snapshot) *FormModel {
	return &FormModel{
		client:    client,
		selection: selection,
		types:     tasks.All,
	}
}

// Type returns the task type being edited.
func (m *FormModel) Type() tasks.Type { return m.types[m.typeIdx] }

// Load fetches the resolved form of the current type.
func (m *FormModel) Load() tea.Cmd {
	t := m.Type()
	return func() tea.Msg {
		form, err := m.client.Form(t)
		if err != nil {
			return errMsg{err}
		}
		return formLoadedMsg{form}
	}
}

// setForm replaces the inputs with one per field, filled with its default.
func (m *FormModel) setForm(form *taskform.Form) {
	m.form = form
	m.errors = nil
	m.focus = 0
	m.inputs = make([]textinput.Model, len(form.Order))
	for i, name := range form.Order {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 128
		ti.Width = 30
		if f, ok := form.Schema.Field(name); ok {
			if f.Default != nil {
				ti.SetValue(fmt.Sprint(f.Default))
			}
			if len(f.Enum) > 0 {
				ti.Placeholder = enumHint(f.Enum)
			}
		}
		m.inputs[i] = ti
	}
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
}

func enumHint(enum []any) string {
	parts := make([]string, len(enum))
	for i, e := range enum {
		parts[i] = fmt.Sprint(e)
	}
	return strings.Join(parts, " | ")
}

// Values returns the entered text keyed by field name.
func (m *FormModel) Values() map[string]any {
	if m.form == nil {
		return nil
	}
	values := make(map[string]any, len(m.inputs))
	for i, name := range m.form.Order {
		values[name] = m.inputs[i].Value()
	}
	return values
}

func (m *FormModel) request() taskform.Request {
	sel := m.selection
	return taskform.Request{
		Type:      m.Type(),
		Values:    m.Values(),
		Selection: &sel,
		RunNow:    m.runNow,
	}
}

func (m *FormModel) submit() tea.Cmd {
	req := m.request()
	m.status = "Submitting..."
	return func() tea.Msg {
		resp, err := m.client.AddTask(req)
		if err != nil {
			return formRejectedMsg{err}
		}
		return taskAddedMsg{resp: resp}
	}
}

func (m *FormModel) moveFocus(delta int) {
	if len(m.inputs) == 0 {
		return
	}
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focus].Focus()
}

// Update handles form input. Esc is left to the app.
func (m *FormModel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case formLoadedMsg:
		m.setForm(msg.form)
		m.status = ""
		return textinput.Blink

	case formRejectedMsg:
		var apiErr *APIError
		if errors.As(msg.err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity {
			m.errors = apiErr.Fields
			m.status = "Fix the highlighted fields"
			return nil
		}
		m.status = "Error: " + msg.err.Error()
		return nil

	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "down":
			m.moveFocus(1)
			return nil
		case "shift+tab", "up":
			m.moveFocus(-1)
			return nil
		case "ctrl+t":
			m.typeIdx = (m.typeIdx + 1) % len(m.types)
			m.form = nil
			m.inputs = nil
			return m.Load()
		case "ctrl+r":
			m.runNow = !m.runNow
			return nil
		case "enter":
			if m.form == nil {
				return nil
			}
			return m.submit()
		}
	}

	if len(m.inputs) == 0 {
		return nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return cmd
}

// View renders the form with inline field errors.
func (m *FormModel) View() string {
	var b strings.Builder
	title := string(m.Type())
	if m.form != nil {
		title = m.form.Title
	}
	b.WriteString(titleStyle.Render("Add "+title) + "  ")
	b.WriteString(helpStyle.Render(fmt.Sprintf("%d blocks", m.selection.CellCount)))
	if m.runNow {
		b.WriteString("  " + statusRunning.Render("▶ run now"))
	}
	b.WriteString("\n\n")

	if m.form == nil {
		b.WriteString("Loading form...\n")
		return b.String()
	}

	width := 0
	for _, name := range m.form.Order {
		width = max(width, len(fieldTitle(m.form, name)))
	}
	for i, name := range m.form.Order {
		label := fmt.Sprintf("%-*s ", width, fieldTitle(m.form, name))
		if i == m.focus {
			label = focusLabelStyle.Render(label)
		} else {
			label = labelStyle.Render(label)
		}
		b.WriteString(label + m.inputs[i].View())
		if msg, ok := m.errors[name]; ok {
			b.WriteString("  " + fieldErrorStyle.Render(msg))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + previewStyle.Render(m.form.Path) + "\n")
	b.WriteString(previewStyle.Render(m.form.Filename) + "\n")
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}
	return b.String()
}

func fieldTitle(form *taskform.Form, name string) string {
	if f, ok := form.Schema.Field(name); ok && f.Title != "" {
		return f.Title
	}
	return name
}

type formLoadedMsg struct {
	form *taskform.Form
}

type formRejectedMsg struct {
	err error
}

type taskAddedMsg struct {
	resp *controlplane.TaskResponse
}
