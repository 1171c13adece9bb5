package tui

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/mxchip/internal/audit"
	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/controlplane"
	"github.com/fentz26/mxchip/internal/store"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
)

func newTestApp(t *testing.T) (*App, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	service := controlplane.NewService(controlplane.ServiceOptions{
		Store: st,
		PDR:   audit.NewPDRWriter(st),
		Form:  taskform.Options{RootPath: "/data/visitor"},
	})
	srv := httptest.NewServer(controlplane.NewServer(service, "", nil).Handler())
	t.Cleanup(srv.Close)

	app, err := New(srv.URL, Options{Rows: 4, Cols: 4, Lock: chip.LockBoth})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return app, st
}

// run feeds msg to the app and keeps executing the returned command while
// it produces a single follow-up message.
func run(a *App, msg tea.Msg) {
	for msg != nil {
		_, cmd := a.Update(msg)
		if cmd == nil {
			return
		}
		msg = cmd()
		if _, ok := msg.(tea.BatchMsg); ok {
			return
		}
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func rightClick(a *App, addr chip.Address) {
	x, y := cellOf(addr)
	run(a, tea.MouseMsg{X: x, Y: y + headerLines, Type: tea.MouseRight})
}

func TestAppQueuesSelection(t *testing.T) {
	app, st := newTestApp(t)

	rightClick(app, chip.Address{Row: 1, Col: 1})
	if app.mode != modeMenu {
		t.Fatalf("Expected menu mode, got %v", app.mode)
	}

	run(app, key("down"))
	run(app, key("enter"))
	if app.mode != modeForm {
		t.Fatalf("Expected form mode, got %v (%s)", app.mode, app.message)
	}
	if app.form.form == nil {
		t.Fatalf("Expected form loaded, message %q", app.message)
	}

	run(app, key("enter"))
	if app.mode != modeGrid {
		t.Fatalf("Expected grid mode after queueing, got %v (%s)", app.mode, app.form.status)
	}
	if !strings.HasPrefix(app.message, "✓ Queued") {
		t.Errorf("Unexpected message %q", app.message)
	}

	queued, err := st.ListTasks(context.Background(), "")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(queued))
	}
	if queued[0].Shape != "[1:1]" {
		t.Errorf("Expected shape [1:1], got %s", queued[0].Shape)
	}
	if queued[0].Parameters["shutterless"] != true {
		t.Errorf("Expected shutterless true, got %#v", queued[0].Parameters["shutterless"])
	}
	if n := len(app.grid.Session().CurrentSelection()); n != 0 {
		t.Errorf("Expected selection cleared after queueing, got %d blocks", n)
	}
}

func TestAppQueuesEveryFormType(t *testing.T) {
	app, st := newTestApp(t)

	for i, typ := range tasks.All {
		rightClick(app, chip.Address{Row: i / 4, Col: i % 4})
		run(app, key("down"))
		run(app, key("enter"))
		for n := 0; app.form != nil && app.form.Type() != typ && n < len(tasks.All); n++ {
			run(app, tea.KeyMsg{Type: tea.KeyCtrlT})
		}
		if app.form == nil || app.form.form == nil || app.form.Type() != typ {
			t.Fatalf("Expected %s form loaded, message %q", typ, app.message)
		}

		run(app, key("enter"))
		if app.mode != modeGrid {
			t.Fatalf("Expected %s queued, status %q, errors %v", typ, app.form.status, app.form.errors)
		}
	}

	queued, err := st.ListTasks(context.Background(), "")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(queued) != len(tasks.All) {
		t.Errorf("Expected %d tasks, got %d", len(tasks.All), len(queued))
	}
}

func TestAppShowsFieldErrors(t *testing.T) {
	app, st := newTestApp(t)

	rightClick(app, chip.Address{Row: 0, Col: 0})
	run(app, key("down"))
	run(app, key("enter"))
	if app.form == nil || app.form.form == nil {
		t.Fatalf("Expected form loaded, message %q", app.message)
	}

	idx := -1
	for i, name := range app.form.form.Order {
		if name == "num_images" {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("Expected num_images in %v", app.form.form.Order)
	}
	app.form.inputs[idx].SetValue("-5")

	run(app, key("enter"))
	if app.mode != modeForm {
		t.Fatalf("Expected to stay on the form, got %v", app.mode)
	}
	if _, ok := app.form.errors["num_images"]; !ok {
		t.Errorf("Expected num_images error, got %v", app.form.errors)
	}
	if !strings.Contains(app.form.View(), app.form.errors["num_images"]) {
		t.Error("Expected error rendered inline")
	}

	queued, _ := st.ListTasks(context.Background(), "")
	if len(queued) != 0 {
		t.Errorf("Expected nothing queued, got %d", len(queued))
	}

	run(app, key("esc"))
	if app.mode != modeGrid || app.form != nil {
		t.Errorf("Expected esc to close the form")
	}
	if n := len(app.grid.Session().CurrentSelection()); n != 0 {
		t.Errorf("Expected selection cleared on dismiss, got %d blocks", n)
	}
}

func TestAppMenuMoveTo(t *testing.T) {
	app, _ := newTestApp(t)

	rightClick(app, chip.Address{Row: 2, Col: 3})
	run(app, key("enter"))
	if app.mode != modeGrid {
		t.Fatalf("Expected grid mode, got %v", app.mode)
	}
	if app.message != "Move to block 2:3" {
		t.Errorf("Unexpected message %q", app.message)
	}
}

func TestAppQueueMode(t *testing.T) {
	app, _ := newTestApp(t)

	run(app, tea.KeyMsg{Type: tea.KeyTab})
	if app.mode != modeQueue {
		t.Fatalf("Expected queue mode, got %v", app.mode)
	}
	if app.queue.loading {
		t.Error("Expected tasks loaded")
	}
	if !strings.Contains(app.View(), "No tasks") && !strings.Contains(app.View(), "Queue") {
		t.Errorf("Unexpected queue view:\n%s", app.View())
	}

	run(app, tea.KeyMsg{Type: tea.KeyTab})
	if app.mode != modeGrid {
		t.Errorf("Expected tab back to the grid, got %v", app.mode)
	}
}
