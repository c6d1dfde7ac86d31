package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jobdeck/api/internal/lifecycle"
	"github.com/jobdeck/api/internal/model"
	"github.com/jobdeck/api/internal/runner"
	"github.com/jobdeck/api/internal/store"
)

// manualScheduler holds finalizations until the test fires them, standing in
// for the wall-clock work delay.
type manualScheduler struct {
	mu      sync.Mutex
	pending []string
	fire    func(jobID string)
}

func (m *manualScheduler) Schedule(ctx context.Context, jobID string, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, jobID)
	return nil
}

func (m *manualScheduler) fireAll() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, id := range pending {
		m.fire(id)
	}
}

type nopWebhook struct{}

func (nopWebhook) Deliver(ctx context.Context, snapshot *model.JobSnapshot) bool { return true }

type nopEmail struct{}

func (nopEmail) Send(ctx context.Context, to, subject, body string) bool { return true }

type testApp struct {
	app   *fiber.App
	store *store.JobStore
	sched *manualScheduler
}

// setupApp wires the routes the way main.go does, against an in-memory store
// and a manually-fired scheduler.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	r := runner.New(s, lifecycle.NewEngine(s), nopWebhook{}, nopEmail{}, nil, 5*time.Second)
	sched := &manualScheduler{fire: func(jobID string) {
		r.Finalize(context.Background(), jobID)
	}}
	r.SetScheduler(sched)

	jobHandler := NewJobHandler(s, r, validator.New())
	healthHandler := NewHealthHandler(s)

	app := fiber.New()
	app.Get("/health", healthHandler.Health)
	app.Post("/jobs", jobHandler.Create)
	app.Get("/jobs", jobHandler.List)
	app.Get("/jobs/:id", jobHandler.GetByID)
	app.Post("/run-job/:id", jobHandler.Run)

	return &testApp{app: app, store: s, sched: sched}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, b)
	}
	return result
}

func parseJSONList(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result []map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, b)
	}
	return result
}

func createJob(t *testing.T, ta *testApp, body string) map[string]interface{} {
	t.Helper()
	resp, err := doRequest(ta.app, http.MethodPost, "/jobs", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return parseJSON(t, resp)
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "OK" {
		t.Errorf("expected status 'OK', got %v", body["status"])
	}
	if _, ok := body["uptime"]; !ok {
		t.Error("expected 'uptime' field in response")
	}
}

func TestCreateJob_Defaults(t *testing.T) {
	ta := setupApp(t)

	job := createJob(t, ta, `{"taskName":"Send Report"}`)
	if job["status"] != "PENDING" {
		t.Errorf("expected status PENDING, got %v", job["status"])
	}
	if job["priority"] != "MEDIUM" {
		t.Errorf("expected default priority MEDIUM, got %v", job["priority"])
	}
	if job["id"] == "" || job["id"] == nil {
		t.Error("expected assigned id")
	}
	if job["completedAt"] != nil {
		t.Errorf("expected null completedAt, got %v", job["completedAt"])
	}
}

func TestCreateJob_MissingTaskName(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/jobs", `{"priority":"HIGH"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	if body["error"] == nil {
		t.Error("expected error envelope")
	}
}

func TestCreateJob_BadPriority(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/jobs", `{"taskName":"x","priority":"URGENT"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestGetJob_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs/does-not-exist", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestRunJob_FullCycle(t *testing.T) {
	ta := setupApp(t)

	job := createJob(t, ta, `{"taskName":"Send Report"}`)
	id := job["id"].(string)

	// Trigger the run: immediate 202 with RUNNING
	resp, err := doRequest(ta.app, http.MethodPost, "/run-job/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	ack := parseJSON(t, resp)
	if ack["status"] != "RUNNING" {
		t.Errorf("expected RUNNING ack, got %v", ack["status"])
	}
	if ack["jobId"] != id {
		t.Errorf("expected jobId %s, got %v", id, ack["jobId"])
	}
	if ack["message"] == "" || ack["message"] == nil {
		t.Error("expected message in ack")
	}

	// Before the delay elapses the job is still RUNNING
	resp, _ = doRequest(ta.app, http.MethodGet, "/jobs/"+id, "")
	assertStatus(t, resp, http.StatusOK)
	if got := parseJSON(t, resp); got["status"] != "RUNNING" {
		t.Errorf("expected RUNNING before delay, got %v", got["status"])
	}

	// Fire the deferred step
	ta.sched.fireAll()

	resp, _ = doRequest(ta.app, http.MethodGet, "/jobs/"+id, "")
	assertStatus(t, resp, http.StatusOK)
	got := parseJSON(t, resp)
	if got["status"] != "COMPLETED" {
		t.Errorf("expected COMPLETED after delay, got %v", got["status"])
	}
	if got["completedAt"] == nil {
		t.Error("expected completedAt to be set")
	}
}

func TestRunJob_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/run-job/does-not-exist", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestRunJob_AlreadyCompleted(t *testing.T) {
	ta := setupApp(t)

	job := createJob(t, ta, `{"taskName":"once"}`)
	id := job["id"].(string)

	resp, _ := doRequest(ta.app, http.MethodPost, "/run-job/"+id, "")
	assertStatus(t, resp, http.StatusAccepted)
	ta.sched.fireAll()

	// Re-running a COMPLETED job is rejected and leaves the job unchanged
	resp, err := doRequest(ta.app, http.MethodPost, "/run-job/"+id, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	resp, _ = doRequest(ta.app, http.MethodGet, "/jobs/"+id, "")
	if got := parseJSON(t, resp); got["status"] != "COMPLETED" {
		t.Errorf("rejected run mutated the job: %v", got["status"])
	}
}

func TestRunJob_DoubleRun(t *testing.T) {
	ta := setupApp(t)

	job := createJob(t, ta, `{"taskName":"twice"}`)
	id := job["id"].(string)

	resp, _ := doRequest(ta.app, http.MethodPost, "/run-job/"+id, "")
	assertStatus(t, resp, http.StatusAccepted)

	// Second trigger before the deferred step fires
	resp, _ = doRequest(ta.app, http.MethodPost, "/run-job/"+id, "")
	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errDetail, _ := body["error"].(map[string]interface{})
	if errDetail == nil || errDetail["code"] != "INVALID_TRANSITION" {
		t.Errorf("expected INVALID_TRANSITION error, got %v", body)
	}
}

func TestListJobs_FilterAndOrder(t *testing.T) {
	ta := setupApp(t)

	createJob(t, ta, `{"taskName":"low pending","priority":"LOW"}`)
	time.Sleep(5 * time.Millisecond)
	high := createJob(t, ta, `{"taskName":"high running","priority":"HIGH"}`)
	time.Sleep(5 * time.Millisecond)
	createJob(t, ta, `{"taskName":"high pending","priority":"HIGH"}`)

	resp, _ := doRequest(ta.app, http.MethodPost, "/run-job/"+high["id"].(string), "")
	assertStatus(t, resp, http.StatusAccepted)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs?status=PENDING&priority=HIGH", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	jobs := parseJSONList(t, resp)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job matching both filters, got %d", len(jobs))
	}
	if jobs[0]["taskName"] != "high pending" {
		t.Errorf("unexpected job %v", jobs[0]["taskName"])
	}

	// Unfiltered listing is newest first
	resp, _ = doRequest(ta.app, http.MethodGet, "/jobs", "")
	all := parseJSONList(t, resp)
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	if all[0]["taskName"] != "high pending" || all[2]["taskName"] != "low pending" {
		t.Errorf("expected createdAt DESC ordering, got %v, %v, %v",
			all[0]["taskName"], all[1]["taskName"], all[2]["taskName"])
	}
}

func TestListJobs_BadFilter(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs?status=DONE", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestListJobs_Empty(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/jobs", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	jobs := parseJSONList(t, resp)
	if len(jobs) != 0 {
		t.Errorf("expected empty array, got %d jobs", len(jobs))
	}
}
