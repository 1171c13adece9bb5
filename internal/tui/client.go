package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fentz26/mxchip/internal/controlplane"
	"github.com/fentz26/mxchip/internal/models"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// APIError is a failed API request. Fields holds the field-scoped messages
// of a rejected form.
type APIError struct {
	Status int
	controlplane.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.ErrorResponse.Error)
}

// Client wraps HTTP calls to the mxchip API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// Form fetches the resolved form of a task type
func (c *Client) Form(t tasks.Type) (*taskform.Form, error) {
	var form taskform.Form
	if err := c.get("/schemas/"+url.PathEscape(string(t)), &form); err != nil {
		return nil, err
	}
	return &form, nil
}

// AddTask submits a task. A 422 response is returned as *APIError with
// Fields set.
func (c *Client) AddTask(req taskform.Request) (*controlplane.TaskResponse, error) {
	var resp controlplane.TaskResponse
	if err := c.post("/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTasks fetches tasks from the API
func (c *Client) ListTasks(status string) ([]TaskItem, error) {
	path := "/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var list []models.Task
	if err := c.get(path, &list); err != nil {
		return nil, err
	}

	items := make([]TaskItem, len(list))
	for i, t := range list {
		items[i] = TaskItem{Task: t}
	}
	return items, nil
}

// GetTaskRuns fetches collector runs for a task
func (c *Client) GetTaskRuns(taskID string) ([]models.Run, error) {
	var runs []models.Run
	if err := c.get("/tasks/"+url.PathEscape(taskID)+"/runs", &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health controlplane.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}

	return health.OK, nil
}

func (c *Client) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) post(path string, data, out any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, &apiErr.ErrorResponse) != nil || apiErr.ErrorResponse.Error == "" {
			apiErr.ErrorResponse.Error = string(body)
		}
		return apiErr
	}

	return json.Unmarshal(body, out)
}
