package tui

import (
	"strings"
	"testing"

	"github.com/fentz26/mxchip/internal/models"
)

func TestTaskItem(t *testing.T) {
	item := TaskItem{models.Task{
		Label:  "Standard Collection P1",
		Type:   "datacollection",
		Status: models.TaskStatusFailed,
		Error:  "exit status 2",
		RunNow: true,
	}}

	if item.Title() != "▶ Standard Collection P1" {
		t.Errorf("Unexpected title %q", item.Title())
	}
	if item.FilterValue() != "Standard Collection P1" {
		t.Errorf("Unexpected filter value %q", item.FilterValue())
	}
	desc := item.Description()
	for _, want := range []string{"failed", "datacollection", "exit status 2"} {
		if !strings.Contains(desc, want) {
			t.Errorf("Expected %q in description %q", want, desc)
		}
	}
}

func TestRenderParametersSorted(t *testing.T) {
	out := renderParameters(models.Task{
		Shape:      "[0:0]",
		Parameters: map[string]any{"osc_range": 0.1, "exp_time": 0.05},
	})
	if strings.Index(out, "exp_time") > strings.Index(out, "osc_range") {
		t.Errorf("Expected parameters in name order:\n%s", out)
	}
	if !strings.Contains(out, "[0:0]") {
		t.Errorf("Expected shape in output:\n%s", out)
	}
}
