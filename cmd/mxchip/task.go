package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/controlplane"
	"github.com/fentz26/mxchip/internal/models"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage queued collection tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Build and queue a task",
	RunE:  runTaskAdd,
}

var taskValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check task parameters without queueing",
	RunE:  runTaskValidate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in execution order",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskRemoveCmd = &cobra.Command{
	Use:   "rm [task-id]",
	Short: "Remove a pending task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRemove,
}

var taskRunsCmd = &cobra.Command{
	Use:   "runs [task-id]",
	Short: "Show collector runs of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRuns,
}

var (
	taskType     string
	taskSet      []string
	taskName     string
	taskPoint    string
	taskCells    string
	taskRows     int
	taskCols     int
	taskRunNow   bool
	taskExisting bool
	taskStatus   string
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskValidateCmd, taskListCmd, taskShowCmd, taskRemoveCmd, taskRunsCmd)

	geometry := chip.DefaultGeometry()
	for _, c := range []*cobra.Command{taskAddCmd, taskValidateCmd} {
		c.Flags().StringVar(&taskType, "type", string(tasks.DataCollection), "Task type")
		c.Flags().StringArrayVar(&taskSet, "set", nil, "Parameter as name=value (repeatable)")
		c.Flags().BoolVar(&taskExisting, "existing", false, "Treat as an edit of a queued task")
	}
	taskAddCmd.Flags().StringVar(&taskName, "name", "", "Task label")
	taskAddCmd.Flags().StringVar(&taskPoint, "point", "", "Centred point id used as the shape")
	taskAddCmd.Flags().StringVar(&taskCells, "cells", "", "Selected blocks as row:col,row:col")
	taskAddCmd.Flags().IntVar(&taskRows, "rows", geometry.Rows, "Chip rows")
	taskAddCmd.Flags().IntVar(&taskCols, "cols", geometry.Cols, "Chip columns")
	taskAddCmd.Flags().BoolVar(&taskRunNow, "run-now", false, "Put the task at the head of the queue")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, claimed, running, completed, failed)")
}

// parseSet turns name=value pairs into form values. Values stay text; the
// server coerces them to their declared types.
func parseSet(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, want name=value", p)
		}
		values[name] = value
	}
	return values, nil
}

// parseCells builds a selection snapshot from a row:col list.
func parseCells(list string, rows, cols int) (*chip.Snapshot, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var sel []chip.Address
	seen := make(map[chip.Address]bool)
	for _, part := range strings.Split(list, ",") {
		a, err := chip.ParseAddress(part)
		if err != nil {
			return nil, err
		}
		if a.Row < 0 || a.Row >= rows || a.Col < 0 || a.Col >= cols {
			return nil, fmt.Errorf("%w: %s", chip.ErrInvalidAddress, a)
		}
		if !seen[a] {
			seen[a] = true
			sel = append(sel, a)
		}
	}
	return &chip.Snapshot{Selection: sel, CellCount: len(sel), NumRows: rows, NumCols: cols}, nil
}

func buildRequest() (taskform.Request, error) {
	t, err := tasks.ParseType(taskType)
	if err != nil {
		return taskform.Request{}, err
	}
	values, err := parseSet(taskSet)
	if err != nil {
		return taskform.Request{}, err
	}
	if taskName != "" {
		values["name"] = taskName
	}
	sel, err := parseCells(taskCells, taskRows, taskCols)
	if err != nil {
		return taskform.Request{}, err
	}
	return taskform.Request{
		Type:      t,
		Values:    values,
		Selection: sel,
		PointID:   taskPoint,
		Existing:  taskExisting,
		RunNow:    taskRunNow,
	}, nil
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	resp, err := apiPost("/tasks", req)
	if err != nil {
		return err
	}

	var result controlplane.TaskResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Queued task: %s\n", result.Task.ID)
	fmt.Printf("Label:    %s\n", result.Task.Label)
	fmt.Printf("Shape:    %s\n", result.Task.Shape)
	fmt.Printf("Path:     %s\n", result.Path)
	fmt.Printf("Filename: %s\n", result.Filename)
	printMessages("Warning", result.Warnings)
	return nil
}

func runTaskValidate(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	resp, err := apiPost("/tasks/validate", req)
	if err != nil {
		return err
	}

	var result controlplane.ValidateResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	printMessages("Error", result.Errors)
	printMessages("Warning", result.Warnings)
	if !result.Valid {
		return fmt.Errorf("parameters are invalid")
	}
	fmt.Println("Parameters are valid")
	return nil
}

func printMessages(kind string, msgs map[string]string) {
	fields := make([]string, 0, len(msgs))
	for f := range msgs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Printf("%s: %s: %s\n", kind, f, msgs[f])
	}
}

func runTaskList(cmd *cobra.Command, args []string) error {
	path := "/tasks"
	if taskStatus != "" {
		path += "?status=" + url.QueryEscape(taskStatus)
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var list []models.Task
	if err := json.Unmarshal(resp, &list); err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tTYPE\tSHAPE\tSTATUS\tCLAIMED BY")
	for _, t := range list {
		label := t.Label
		if t.RunNow {
			label = "▶ " + label
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(t.ID), truncate(label, 40), t.Type, truncate(t.Shape, 24), t.Status, t.ClaimedBy)
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}

	var task models.Task
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("ID:         %s\n", task.ID)
	fmt.Printf("Label:      %s\n", task.Label)
	fmt.Printf("Type:       %s\n", task.Type)
	fmt.Printf("Shape:      %s\n", task.Shape)
	fmt.Printf("Status:     %s\n", task.Status)
	fmt.Printf("Run now:    %t\n", task.RunNow)
	if task.ClaimedBy != "" {
		fmt.Printf("Claimed By: %s\n", task.ClaimedBy)
	}
	if task.Error != "" {
		fmt.Printf("Error:      %s\n", task.Error)
	}
	fmt.Printf("Created:    %s\n", task.CreatedAt)
	fmt.Printf("Updated:    %s\n", task.UpdatedAt)

	names := make([]string, 0, len(task.Parameters))
	for k := range task.Parameters {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Println("Parameters:")
	for _, k := range names {
		v, _ := json.Marshal(task.Parameters[k])
		fmt.Printf("  %-20s %s\n", k, v)
	}
	return nil
}

func runTaskRemove(cmd *cobra.Command, args []string) error {
	if err := apiDelete("/tasks/" + url.PathEscape(args[0])); err != nil {
		return err
	}
	fmt.Printf("Removed task %s\n", args[0])
	return nil
}

func runTaskRuns(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/tasks/" + url.PathEscape(args[0]) + "/runs")
	if err != nil {
		return err
	}

	var runs []models.Run
	if err := json.Unmarshal(resp, &runs); err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	for i, run := range runs {
		fmt.Printf("=== Run %d ===\n", i+1)
		fmt.Printf("ID:        %s\n", run.ID)
		fmt.Printf("Connector: %s\n", run.Connector)
		fmt.Printf("Command:   %s %s\n", run.Command, strings.Join(run.Args, " "))
		fmt.Printf("Exit Code: %d\n", run.ExitCode)
		fmt.Printf("Started:   %s\n", run.StartedAt)
		if run.Stdout != "" {
			fmt.Println("Stdout:", truncate(run.Stdout, 200))
		}
		if run.Stderr != "" {
			fmt.Println("Stderr:", truncate(run.Stderr, 200))
		}
		fmt.Println()
	}
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
