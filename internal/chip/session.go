package chip

import (
	"fmt"
	"strings"
)

// LockAxes pins canvas movement of a block along one or both axes.
type LockAxes uint8

const (
	LockX LockAxes = 1 << iota
	LockY

	LockNone LockAxes = 0
	LockBoth          = LockX | LockY
)

// Has reports whether every axis in o is locked.
func (l LockAxes) Has(o LockAxes) bool { return l&o == o }

func (l LockAxes) String() string {
	switch l {
	case LockBoth:
		return "both"
	case LockX:
		return "x"
	case LockY:
		return "y"
	}
	return "none"
}

// ParseLock converts a lock name (both, x, y, none) to LockAxes. Empty
// means both.
func ParseLock(name string) (LockAxes, error) {
	switch name {
	case "", "both":
		return LockBoth, nil
	case "x":
		return LockX, nil
	case "y":
		return LockY, nil
	case "none":
		return LockNone, nil
	}
	return LockNone, fmt.Errorf("invalid lock %q, must be: both, x, y, or none", name)
}

// Modifiers carries the keyboard state of a pointer event. Ctrl is the
// selection key: it toggles and extends instead of replacing.
type Modifiers struct {
	Ctrl bool `json:"ctrl"`
}

// Menu item ids offered by the chip context menu.
const (
	MenuMoveTo  = "moveto"
	MenuAddTask = "addtask"
)

// MenuItem is one entry of the chip context menu.
type MenuItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ContextMenuItems are the entries shown on right-click.
var ContextMenuItems = []MenuItem{
	{ID: MenuMoveTo, Label: "Move to"},
	{ID: MenuAddTask, Label: "Add to queue"},
}

// menuOffset is where the menu opens relative to the pointer.
var menuOffset = Point{X: 15, Y: 55}

// ContextMenuRequest asks the caller to open the chip context menu for the
// current selection.
type ContextMenuRequest struct {
	SessionID string     `json:"session_id"`
	Position  Point      `json:"position"`
	Selection []Address  `json:"selection"`
	Items     []MenuItem `json:"items"`
}

// NavigateRequest asks the caller to move the sample stage to a block.
type NavigateRequest struct {
	SessionID string  `json:"session_id"`
	Address   Address `json:"address"`
}

// Snapshot is the serialised selection handed to task creation.
type Snapshot struct {
	SessionID string    `json:"session_id,omitempty"`
	Selection []Address `json:"selection"`
	CellCount int       `json:"cell_count"`
	NumRows   int       `json:"numRows"`
	NumCols   int       `json:"numCols"`
}

// Shape renders the selection as a stable shape identifier, e.g. "[0:0,0:1]".
func (s Snapshot) Shape() string {
	parts := make([]string, len(s.Selection))
	for i, a := range s.Selection {
		parts[i] = a.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Session is one user's interaction with one grid. It is not safe for
// concurrent use; Registry serialises access.
type Session struct {
	id    string
	grid  *Grid
	sel   *Selection
	locks map[Address]LockAxes
	def   LockAxes
}

// NewSession starts an empty selection over grid. Every block starts with
// the default lock.
func NewSession(id string, grid *Grid, defaultLock LockAxes) *Session {
	return &Session{
		id:    id,
		grid:  grid,
		sel:   NewSelection(),
		locks: make(map[Address]LockAxes),
		def:   defaultLock,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Grid returns the grid the session selects on.
func (s *Session) Grid() *Grid { return s.grid }

// ToggleSelect flips membership of a. Out-of-bounds addresses leave the
// selection untouched and return ErrInvalidAddress.
func (s *Session) ToggleSelect(a Address) error {
	if !s.grid.InBounds(a) {
		return fmt.Errorf("%w: %s on %dx%d grid", ErrInvalidAddress, a, s.grid.Rows(), s.grid.Cols())
	}
	s.sel.Toggle(a)
	return nil
}

// SelectRect adds every block touched by the marquee to the selection in
// row-major order and returns the newly added addresses.
func (s *Session) SelectRect(topLeft, bottomRight Point) []Address {
	var added []Address
	for _, a := range s.grid.Covered(topLeft, bottomRight) {
		if s.sel.Add(a) {
			added = append(added, a)
		}
	}
	return added
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection() { s.sel.Clear() }

// CurrentSelection returns the selected addresses in insertion order.
func (s *Session) CurrentSelection() []Address { return s.sel.Addresses() }

// IsSelected reports whether a is selected.
func (s *Session) IsSelected(a Address) bool { return s.sel.Contains(a) }

// Click handles a primary-button click at p.
func (s *Session) Click(p Point, mod Modifiers) {
	a, ok := s.grid.HitTest(p)
	switch {
	case !ok && mod.Ctrl:
	case !ok:
		s.sel.Clear()
	case mod.Ctrl:
		s.sel.Toggle(a)
	default:
		s.sel.Clear()
		s.sel.Add(a)
	}
}

// Drag handles a marquee from start to end. With the selection key held
// the marquee extends the selection, otherwise it replaces it.
func (s *Session) Drag(start, end Point, mod Modifiers) []Address {
	if !mod.Ctrl {
		s.sel.Clear()
	}
	return s.SelectRect(start, end)
}

// RightClick resolves a secondary-button click. A click on a selected block
// keeps the multi-selection; a click on an unselected block makes it the
// sole selection. Clicks off any block open nothing and change nothing.
func (s *Session) RightClick(p Point) (ContextMenuRequest, bool) {
	a, ok := s.grid.HitTest(p)
	if !ok {
		return ContextMenuRequest{}, false
	}
	if !s.sel.Contains(a) {
		s.sel.Clear()
		s.sel.Add(a)
	}
	if s.sel.Len() == 0 {
		return ContextMenuRequest{}, false
	}
	items := make([]MenuItem, len(ContextMenuItems))
	copy(items, ContextMenuItems)
	return ContextMenuRequest{
		SessionID: s.id,
		Position:  Point{X: p.X + menuOffset.X, Y: p.Y + menuOffset.Y},
		Selection: s.sel.Addresses(),
		Items:     items,
	}, true
}

// DoubleClick resolves a "move to" request. It never changes the selection.
func (s *Session) DoubleClick(p Point) (NavigateRequest, bool) {
	a, ok := s.grid.HitTest(p)
	if !ok {
		return NavigateRequest{}, false
	}
	return NavigateRequest{SessionID: s.id, Address: a}, true
}

// SetBlockLock overrides the movement lock of one block.
func (s *Session) SetBlockLock(a Address, l LockAxes) error {
	if !s.grid.InBounds(a) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, a)
	}
	s.locks[a] = l
	return nil
}

// BlockLock returns the movement lock of one block.
func (s *Session) BlockLock(a Address) LockAxes {
	if l, ok := s.locks[a]; ok {
		return l
	}
	return s.def
}

// MovementLock is the lock inherited by the active selection: an axis is
// locked when any selected block locks it.
func (s *Session) MovementLock() LockAxes {
	var l LockAxes
	for _, a := range s.sel.order {
		l |= s.BlockLock(a)
	}
	return l
}

// Snapshot serialises the current selection for task creation.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID: s.id,
		Selection: s.sel.Addresses(),
		CellCount: s.sel.Len(),
		NumRows:   s.grid.Rows(),
		NumCols:   s.grid.Cols(),
	}
}
