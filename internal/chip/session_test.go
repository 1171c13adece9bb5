package chip

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

// blockCenter returns the canvas center of a block on the default test grid.
func blockCenter(row, col int) Point {
	return Point{X: 15 + float64(col)*40 + 12, Y: 15 + float64(row)*40 + 12}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return NewSession("s1", newTestGrid(t), LockBoth)
}

func TestToggleSelect_Idempotent(t *testing.T) {
	s := newTestSession(t)
	if err := s.ToggleSelect(Address{1, 1}); err != nil {
		t.Fatalf("ToggleSelect failed: %v", err)
	}

	before := s.CurrentSelection()
	a := Address{4, 5}
	s.ToggleSelect(a)
	s.ToggleSelect(a)
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, before) {
		t.Errorf("Expected selection %v after toggle pair, got %v", before, got)
	}
}

func TestProperty_TogglePairLeavesSelection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, _ := NewGrid(DefaultGeometry())
		s := NewSession("p", g, LockNone)

		n := rapid.IntRange(0, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			s.ToggleSelect(Address{
				Row: rapid.IntRange(0, 9).Draw(t, "r"),
				Col: rapid.IntRange(0, 9).Draw(t, "c"),
			})
		}
		before := s.CurrentSelection()

		a := Address{Row: rapid.IntRange(0, 9).Draw(t, "ar"), Col: rapid.IntRange(0, 9).Draw(t, "ac")}
		s.ToggleSelect(a)
		s.ToggleSelect(a)

		after := s.CurrentSelection()
		if len(after) != len(before) {
			t.Fatalf("Expected %d blocks, got %d", len(before), len(after))
		}
		for _, b := range before {
			if !s.IsSelected(b) {
				t.Fatalf("Block %v lost after toggle pair", b)
			}
		}
	})
}

func TestToggleSelect_OutOfBounds(t *testing.T) {
	s := newTestSession(t)
	s.ToggleSelect(Address{0, 0})

	for _, a := range []Address{{-1, 0}, {0, 10}, {10, 10}} {
		err := s.ToggleSelect(a)
		if !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ToggleSelect(%v): expected ErrInvalidAddress, got %v", a, err)
		}
	}
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{0, 0}}) {
		t.Errorf("Expected selection unchanged, got %v", got)
	}
}

func TestSelectRect_Scenario(t *testing.T) {
	s := newTestSession(t)

	added := s.SelectRect(Point{X: 15, Y: 15}, Point{X: 15 + 2*(25+15), Y: 15 + 25})
	want := []Address{{0, 0}, {0, 1}, {0, 2}}
	if !reflect.DeepEqual(added, want) {
		t.Errorf("Expected added %v, got %v", want, added)
	}
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected selection %v, got %v", want, got)
	}
}

func TestSelectRect_SwappedCorners(t *testing.T) {
	a := newTestSession(t)
	b := newTestSession(t)

	a.SelectRect(Point{X: 15, Y: 15}, Point{X: 95, Y: 80})
	b.SelectRect(Point{X: 95, Y: 80}, Point{X: 15, Y: 15})

	if !reflect.DeepEqual(a.CurrentSelection(), b.CurrentSelection()) {
		t.Errorf("Swapped corners differ: %v vs %v", a.CurrentSelection(), b.CurrentSelection())
	}
}

func TestSelectRect_KeepsExistingAnchor(t *testing.T) {
	s := newTestSession(t)
	s.ToggleSelect(Address{5, 5})

	added := s.SelectRect(Point{X: 15, Y: 15}, Point{X: 60, Y: 20})
	if !reflect.DeepEqual(added, []Address{{0, 0}, {0, 1}}) {
		t.Errorf("Unexpected added blocks: %v", added)
	}
	want := []Address{{5, 5}, {0, 0}, {0, 1}}
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestClick(t *testing.T) {
	s := newTestSession(t)

	s.Click(blockCenter(0, 0), Modifiers{})
	s.Click(blockCenter(1, 1), Modifiers{Ctrl: true})
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{0, 0}, {1, 1}}) {
		t.Fatalf("Expected ctrl-click to extend, got %v", got)
	}

	s.Click(blockCenter(0, 0), Modifiers{Ctrl: true})
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{1, 1}}) {
		t.Fatalf("Expected ctrl-click to toggle off, got %v", got)
	}

	s.Click(Point{X: 2, Y: 2}, Modifiers{Ctrl: true})
	if len(s.CurrentSelection()) != 1 {
		t.Fatal("Expected ctrl-click on background to keep selection")
	}

	s.Click(blockCenter(3, 3), Modifiers{})
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{3, 3}}) {
		t.Fatalf("Expected plain click to replace, got %v", got)
	}

	s.Click(Point{X: 2, Y: 2}, Modifiers{})
	if len(s.CurrentSelection()) != 0 {
		t.Error("Expected plain click on background to clear")
	}
}

func TestDrag(t *testing.T) {
	s := newTestSession(t)
	s.Click(blockCenter(9, 9), Modifiers{})

	s.Drag(blockCenter(0, 0), blockCenter(0, 1), Modifiers{})
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{0, 0}, {0, 1}}) {
		t.Fatalf("Expected drag to replace, got %v", got)
	}

	s.Drag(blockCenter(1, 0), blockCenter(1, 0), Modifiers{Ctrl: true})
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{0, 0}, {0, 1}, {1, 0}}) {
		t.Errorf("Expected ctrl-drag to extend, got %v", got)
	}
}

func TestRightClick_KeepsMultiSelection(t *testing.T) {
	s := newTestSession(t)
	s.SelectRect(blockCenter(0, 0), blockCenter(0, 2))

	req, ok := s.RightClick(blockCenter(0, 1))
	if !ok {
		t.Fatal("Expected context menu")
	}
	want := []Address{{0, 0}, {0, 1}, {0, 2}}
	if !reflect.DeepEqual(req.Selection, want) {
		t.Errorf("Expected menu selection %v, got %v", want, req.Selection)
	}
	if req.SessionID != "s1" {
		t.Errorf("Expected session id s1, got %s", req.SessionID)
	}
	if len(req.Items) != 2 || req.Items[1].ID != MenuAddTask {
		t.Errorf("Unexpected menu items: %v", req.Items)
	}
	p := blockCenter(0, 1)
	if req.Position != (Point{X: p.X + 15, Y: p.Y + 55}) {
		t.Errorf("Unexpected menu position %v", req.Position)
	}
}

func TestRightClick_UnselectedBlockBecomesSole(t *testing.T) {
	s := newTestSession(t)
	s.SelectRect(blockCenter(0, 0), blockCenter(0, 2))

	req, ok := s.RightClick(blockCenter(5, 5))
	if !ok {
		t.Fatal("Expected context menu")
	}
	if !reflect.DeepEqual(req.Selection, []Address{{5, 5}}) {
		t.Errorf("Expected sole selection, got %v", req.Selection)
	}
}

func TestRightClick_OffBlockIsSilent(t *testing.T) {
	s := newTestSession(t)
	s.Click(blockCenter(2, 2), Modifiers{})

	if _, ok := s.RightClick(Point{X: 45, Y: 45}); ok {
		t.Error("Expected no context menu on spacing")
	}
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{2, 2}}) {
		t.Errorf("Expected selection untouched, got %v", got)
	}

	empty := newTestSession(t)
	if _, ok := empty.RightClick(Point{X: 1, Y: 1}); ok {
		t.Error("Expected no context menu with empty selection")
	}
}

func TestDoubleClick_DoesNotMutate(t *testing.T) {
	s := newTestSession(t)
	s.Click(blockCenter(1, 1), Modifiers{})

	nav, ok := s.DoubleClick(blockCenter(4, 2))
	if !ok {
		t.Fatal("Expected navigate request")
	}
	if nav.Address != (Address{4, 2}) {
		t.Errorf("Expected (4,2), got %v", nav.Address)
	}
	if got := s.CurrentSelection(); !reflect.DeepEqual(got, []Address{{1, 1}}) {
		t.Errorf("Expected selection untouched, got %v", got)
	}

	if _, ok := s.DoubleClick(Point{X: 0, Y: 0}); ok {
		t.Error("Expected no navigate request off-block")
	}
}

func TestMovementLock(t *testing.T) {
	s := NewSession("l", newTestGrid(t), LockNone)
	s.SelectRect(blockCenter(0, 0), blockCenter(0, 2))
	if s.MovementLock() != LockNone {
		t.Fatalf("Expected no lock, got %v", s.MovementLock())
	}

	if err := s.SetBlockLock(Address{0, 1}, LockX); err != nil {
		t.Fatalf("SetBlockLock failed: %v", err)
	}
	if !s.MovementLock().Has(LockX) || s.MovementLock().Has(LockY) {
		t.Errorf("Expected X lock only, got %v", s.MovementLock())
	}
	if len(s.CurrentSelection()) != 3 {
		t.Error("Lock must not change selection membership")
	}

	if err := s.SetBlockLock(Address{20, 0}, LockY); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	s := newTestSession(t)
	s.ToggleSelect(Address{2, 3})
	s.ToggleSelect(Address{0, 1})

	snap := s.Snapshot()
	if snap.CellCount != 2 || snap.NumRows != 10 || snap.NumCols != 10 {
		t.Errorf("Unexpected snapshot counts: %+v", snap)
	}
	if snap.Shape() != "[2:3,0:1]" {
		t.Errorf("Expected shape [2:3,0:1], got %s", snap.Shape())
	}

	snap.Selection[0] = Address{9, 9}
	if s.CurrentSelection()[0] != (Address{2, 3}) {
		t.Error("Snapshot must not alias session state")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(LockBoth)

	id, err := r.Open(DefaultGeometry())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	other, _ := r.Open(DefaultGeometry())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(col int) {
			defer wg.Done()
			r.With(id, func(s *Session) error {
				return s.ToggleSelect(Address{0, col})
			})
		}(i)
	}
	wg.Wait()

	r.With(id, func(s *Session) error {
		if len(s.CurrentSelection()) != 10 {
			t.Errorf("Expected 10 selected blocks, got %d", len(s.CurrentSelection()))
		}
		return nil
	})
	r.With(other, func(s *Session) error {
		if len(s.CurrentSelection()) != 0 {
			t.Error("Sessions must not share selection")
		}
		return nil
	})

	if _, err := r.Open(Geometry{}); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("Expected ErrInvalidGeometry, got %v", err)
	}
	if err := r.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.With(id, func(*Session) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Expected 1 open session, got %d", r.Count())
	}
}
