package dryrun

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/mxchip/internal/connectors"
)

func TestCollect(t *testing.T) {
	d := New(0)
	job := connectors.Job{TaskID: "t1", Type: "datacollection", Label: "Standard Collection P1", Shape: "P1"}

	result, err := d.Collect(context.Background(), job)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !result.OK() {
		t.Errorf("Expected success, got exit %d", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "Standard Collection P1") {
		t.Errorf("Unexpected stdout %q", result.Stdout)
	}
	if len(d.Jobs()) != 1 {
		t.Errorf("Expected 1 recorded job, got %d", len(d.Jobs()))
	}
}

func TestCollect_Cancelled(t *testing.T) {
	d := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Collect(ctx, connectors.Job{TaskID: "t1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(d.Jobs()) != 0 {
		t.Error("Expected cancelled job not to be recorded")
	}
}
