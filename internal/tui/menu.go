package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/mxchip/internal/chip"
)

// MenuModel is the chip context menu.
type MenuModel struct {
	req    chip.ContextMenuRequest
	cursor int
}

// NewMenuModel opens the menu described by req.
func NewMenuModel(req chip.ContextMenuRequest) *MenuModel {
	return &MenuModel{req: req}
}

// Update moves the highlight. Enter returns a menuChosenMsg, esc a
// menuClosedMsg.
func (m *MenuModel) Update(msg tea.Msg) tea.Msg {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.req.Items)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.req.Items) == 0 {
			return menuClosedMsg{}
		}
		return menuChosenMsg{item: m.req.Items[m.cursor], req: m.req}
	case "esc", "q":
		return menuClosedMsg{}
	}
	return nil
}

// View renders the menu items under a selection summary.
func (m *MenuModel) View() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render(fmt.Sprintf("%d selected", len(m.req.Selection))) + "\n")
	for i, item := range m.req.Items {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("▶ "+item.Label) + "\n")
		} else {
			b.WriteString(taskItemStyle.Render("  "+item.Label) + "\n")
		}
	}
	return panelStyle.Render(strings.TrimSuffix(b.String(), "\n"))
}

type menuChosenMsg struct {
	item chip.MenuItem
	req  chip.ContextMenuRequest
}

type menuClosedMsg struct{}
