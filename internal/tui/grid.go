package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/mxchip/internal/chip"
)

// Terminal cells per block and gap. Blocks are three columns wide and one
// line tall.
const (
	cellBlockWidth  = 3
	cellBlockHeight = 1
	cellSpacing     = 1
	cellOffset      = 1
)

// doubleClickWindow bounds the gap between the two clicks of a double click.
const doubleClickWindow = 400 * time.Millisecond

var (
	blockStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#374151"))
	selectedBlock = lipgloss.NewStyle().Background(primaryColor).Foreground(fgColor)
	marqueeBlock  = lipgloss.NewStyle().Background(secondaryColor).Foreground(fgColor)
	lockedMark    = lipgloss.NewStyle().Foreground(warningColor)
)

// TerminalGeometry lays out a rows x cols chip in terminal cells.
func TerminalGeometry(rows, cols int) chip.Geometry {
	return chip.Geometry{
		Rows:        rows,
		Cols:        cols,
		BlockWidth:  cellBlockWidth,
		BlockHeight: cellBlockHeight,
		Spacing:     cellSpacing,
		Offset:      cellOffset,
	}
}

// cellPoint maps a terminal cell relative to the grid origin to the canvas
// point at its centre.
func cellPoint(x, y int) chip.Point {
	return chip.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
}

// GridModel is the chip navigator. It owns its selection session.
type GridModel struct {
	session *chip.Session
	cursor  chip.Address
	// origin is the screen cell of canvas point (0, 0).
	originX, originY int

	dragging   bool
	dragStart  chip.Point
	dragEnd    chip.Point
	dragCtrl   bool
	lastClick  time.Time
	lastBlock  chip.Address
	lastHadHit bool
	now        func() time.Time
}

// NewGridModel starts a session on a rows x cols terminal chip.
func NewGridModel(id string, rows, cols int, lock chip.LockAxes) (*GridModel, error) {
	grid, err := chip.NewGrid(TerminalGeometry(rows, cols))
	if err != nil {
		return nil, err
	}
	return &GridModel{
		session: chip.NewSession(id, grid, lock),
		now:     time.Now,
	}, nil
}

// Session returns the selection session.
func (m *GridModel) Session() *chip.Session { return m.session }

// SetOrigin places the grid on screen.
func (m *GridModel) SetOrigin(x, y int) {
	m.originX, m.originY = x, y
}

// Cursor returns the keyboard cursor block.
func (m *GridModel) Cursor() chip.Address { return m.cursor }

func (m *GridModel) point(msg tea.MouseMsg) chip.Point {
	return cellPoint(msg.X-m.originX, msg.Y-m.originY)
}

// cursorPoint is the canvas point at the centre of the cursor block.
func (m *GridModel) cursorPoint() chip.Point {
	r := m.session.Grid().BlockRect(m.cursor)
	return chip.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Update handles keyboard and mouse input. It returns a message for the
// app when the input asks for a menu or a stage move.
func (m *GridModel) Update(msg tea.Msg) tea.Msg {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		return m.handleMouse(msg)
	}
	return nil
}

func (m *GridModel) handleKey(msg tea.KeyMsg) tea.Msg {
	g := m.session.Grid()
	switch msg.String() {
	case "up", "k":
		if m.cursor.Row > 0 {
			m.cursor.Row--
		}
	case "down", "j":
		if m.cursor.Row < g.Rows()-1 {
			m.cursor.Row++
		}
	case "left", "h":
		if m.cursor.Col > 0 {
			m.cursor.Col--
		}
	case "right", "l":
		if m.cursor.Col < g.Cols()-1 {
			m.cursor.Col++
		}
	case " ":
		m.session.ToggleSelect(m.cursor)
	case "enter":
		m.session.Click(m.cursorPoint(), chip.Modifiers{})
	case "c":
		m.session.ClearSelection()
	case "m":
		if menu, ok := m.session.RightClick(m.cursorPoint()); ok {
			return menuMsg{menu}
		}
	case "g":
		if nav, ok := m.session.DoubleClick(m.cursorPoint()); ok {
			return navigateMsg{nav}
		}
	}
	return nil
}

func (m *GridModel) handleMouse(msg tea.MouseMsg) tea.Msg {
	p := m.point(msg)
	switch msg.Type {
	case tea.MouseLeft:
		m.dragging = true
		m.dragStart, m.dragEnd = p, p
		m.dragCtrl = msg.Ctrl
	case tea.MouseMotion:
		if m.dragging {
			m.dragEnd = p
		}
	case tea.MouseRelease:
		if !m.dragging {
			return nil
		}
		m.dragging = false
		m.dragEnd = p
		mod := chip.Modifiers{Ctrl: m.dragCtrl}
		if m.dragStart != m.dragEnd {
			m.session.Drag(m.dragStart, m.dragEnd, mod)
			m.lastHadHit = false
			return nil
		}
		return m.click(p, mod)
	case tea.MouseRight:
		m.dragging = false
		if a, ok := m.session.Grid().HitTest(p); ok {
			m.cursor = a
		}
		if menu, ok := m.session.RightClick(p); ok {
			return menuMsg{menu}
		}
	}
	return nil
}

// click applies a primary click, or a double click when it follows a click
// on the same block closely enough.
func (m *GridModel) click(p chip.Point, mod chip.Modifiers) tea.Msg {
	now := m.now()
	a, hit := m.session.Grid().HitTest(p)
	if hit && m.lastHadHit && a == m.lastBlock && now.Sub(m.lastClick) <= doubleClickWindow {
		m.lastHadHit = false
		if nav, ok := m.session.DoubleClick(p); ok {
			return navigateMsg{nav}
		}
		return nil
	}

	m.session.Click(p, mod)
	if hit {
		m.cursor = a
	}
	m.lastClick, m.lastBlock, m.lastHadHit = now, a, hit
	return nil
}

// View renders the chip one terminal line per canvas unit.
func (m *GridModel) View() string {
	g := m.session.Grid()
	var marquee map[chip.Address]bool
	if m.dragging && m.dragStart != m.dragEnd {
		marquee = make(map[chip.Address]bool)
		for _, a := range g.Covered(m.dragStart, m.dragEnd) {
			marquee[a] = true
		}
	}

	pad := strings.Repeat(" ", cellOffset)
	gap := strings.Repeat(" ", cellSpacing)

	var b strings.Builder
	for i := 0; i < cellOffset; i++ {
		b.WriteString("\n")
	}
	for row := 0; row < g.Rows(); row++ {
		b.WriteString(pad)
		for col := 0; col < g.Cols(); col++ {
			a := chip.Address{Row: row, Col: col}
			b.WriteString(m.renderBlock(a, marquee[a]))
			b.WriteString(gap)
		}
		b.WriteString("\n")
		if row < g.Rows()-1 {
			for i := 0; i < cellSpacing; i++ {
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func (m *GridModel) renderBlock(a chip.Address, inMarquee bool) string {
	left, right := " ", " "
	if a == m.cursor {
		left, right = "[", "]"
	}
	mark := " "
	if l := m.session.BlockLock(a); l != chip.LockBoth {
		mark = lockedMark.Render(l.String()[:1])
	}
	cell := left + mark + right

	switch {
	case inMarquee:
		return marqueeBlock.Render(cell)
	case m.session.IsSelected(a):
		return selectedBlock.Render(cell)
	default:
		return blockStyle.Render(cell)
	}
}

type menuMsg struct {
	menu chip.ContextMenuRequest
}

type navigateMsg struct {
	nav chip.NavigateRequest
}
