package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, req research.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch req.SchemaName {
	case "serp_queries":
		return `{"queries": [{"query": "go scheduler", "research_goal": "how it works"}]}`, nil
	case "serp_learnings":
		return `{"learnings": ["Go uses an M:N scheduler."], "follow_up_questions": ["How does work stealing behave?"]}`, nil
	case "final_report":
		return `{"report_markdown": "# Go scheduling\n\nGoroutines are multiplexed onto threads."}`, nil
	}
	return "", errors.New("unexpected schema " + req.SchemaName)
}

type stubSearch struct {
	block bool
	err   error
}

func (s stubSearch) Search(ctx context.Context, query string) ([]research.SearchResult, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return []research.SearchResult{{URL: "https://go.dev/src/runtime", Title: query, Content: "The runtime scheduler."}}, nil
}

func newTestService(t *testing.T, search research.SearchEngine) *Service {
	t.Helper()
	cfg := research.DefaultConfig()
	cfg.Breadth = 1
	cfg.Depth = 1
	cfg.Concurrency = 2
	cfg.SearchTimeout = time.Minute
	cfg.RetryBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond

	svc := NewService(stubLLM{}, search, cfg, slog.New(slog.DiscardHandler))
	svc.Tokenizer = splitter.Estimate{}
	t.Cleanup(svc.Close)
	return svc
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func performRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func waitForStatus(t *testing.T, r http.Handler, id uuid.UUID, status string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		w := performRequest(r, http.MethodGet, "/api/research/"+id.String(), "")
		if w.Code != http.StatusOK {
			return false
		}
		job = Job{}
		if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
			return false
		}
		return job.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestCreateJobCompletes(t *testing.T) {
	r := newTestRouter(newTestService(t, stubSearch{}))

	w := performRequest(r, http.MethodPost, "/api/research", `{"topic": "go scheduler internals"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[Job](t, w)
	assert.Equal(t, "go scheduler internals", created.Topic)
	assert.Equal(t, 1, created.Breadth)
	assert.Equal(t, 1, created.Depth)

	job := waitForStatus(t, r, created.ID, StatusCompleted)
	require.NotNil(t, job.Report)
	assert.Contains(t, *job.Report, "# Go scheduling")
	assert.Contains(t, *job.Report, "## Sources\n\n- https://go.dev/src/runtime")
	assert.Equal(t, []string{"https://go.dev/src/runtime"}, job.Sources)
	require.NotNil(t, job.Coverage)
	assert.Equal(t, 2, job.Coverage.Queries)
	require.NotNil(t, job.Progress)
	assert.Equal(t, research.PhaseReporting, job.Progress.Phase)

	w = performRequest(r, http.MethodGet, "/api/research/"+created.ID.String()+"/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]LogEntry](t, w)
	require.NotEmpty(t, logs)
	assert.Equal(t, 1, logs[0].ID)
	assert.Equal(t, "Starting research", logs[0].Message)
	assert.Equal(t, created.ID.String(), logs[0].Metadata["job_id"])
	assert.Equal(t, "Research completed", logs[len(logs)-1].Message)
}

func TestCreateJobValidation(t *testing.T) {
	r := newTestRouter(newTestService(t, stubSearch{}))

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"topic":`},
		{"missing topic", `{"breadth": 2}`},
		{"blank topic", `{"topic": "   "}`},
		{"negative breadth", `{"topic": "x", "breadth": -1}`},
		{"negative depth", `{"topic": "x", "depth": -2}`},
		{"zero breadth", `{"topic": "x", "breadth": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(r, http.MethodPost, "/api/research", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateJobExplicitZeroDepth(t *testing.T) {
	r := newTestRouter(newTestService(t, stubSearch{}))

	w := performRequest(r, http.MethodPost, "/api/research", `{"topic": "go scheduler internals", "depth": 0}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[Job](t, w)
	assert.Equal(t, 0, created.Depth)
	assert.Equal(t, 1, created.Breadth)

	job := waitForStatus(t, r, created.ID, StatusCompleted)
	require.NotNil(t, job.Coverage)
	assert.Equal(t, 1, job.Coverage.Queries)
}

func TestJobLookupErrors(t *testing.T) {
	r := newTestRouter(newTestService(t, stubSearch{}))

	w := performRequest(r, http.MethodGet, "/api/research/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	missing := uuid.New().String()
	for _, path := range []string{"/api/research/" + missing, "/api/research/" + missing + "/logs"} {
		w = performRequest(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w = performRequest(r, http.MethodDelete, "/api/research/"+missing, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelJob(t *testing.T) {
	r := newTestRouter(newTestService(t, stubSearch{block: true}))

	w := performRequest(r, http.MethodPost, "/api/research", `{"topic": "slow topic", "breadth": 2, "depth": 1}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[Job](t, w)

	w = performRequest(r, http.MethodDelete, "/api/research/"+created.ID.String(), "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	job := waitForStatus(t, r, created.ID, StatusCancelled)
	assert.Nil(t, job.Report)
	assert.Equal(t, context.Canceled.Error(), job.Error)
}

func TestJobFailsWhenSearchUnavailable(t *testing.T) {
	search := stubSearch{err: research.Unavailable(errors.New("invalid api key"))}
	r := newTestRouter(newTestService(t, search))

	w := performRequest(r, http.MethodPost, "/api/research", `{"topic": "anything"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[Job](t, w)

	job := waitForStatus(t, r, created.ID, StatusFailed)
	assert.Contains(t, job.Error, "invalid api key")
	assert.Nil(t, job.Report)
}

func TestListJobs(t *testing.T) {
	r := newTestRouter(newTestService(t, stubSearch{}))

	w := performRequest(r, http.MethodGet, "/api/research", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	var ids []uuid.UUID
	for _, topic := range []string{"first", "second"} {
		w = performRequest(r, http.MethodPost, "/api/research", `{"topic": "`+topic+`"}`)
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[Job](t, w).ID)
		time.Sleep(2 * time.Millisecond)
	}

	w = performRequest(r, http.MethodGet, "/api/research", "")
	jobs := decode[[]Job](t, w)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[1], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[1].ID)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(newTestService(t, stubSearch{}))
	w := performRequest(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestCreateJobRequestGoal(t *testing.T) {
	req := CreateJobRequest{
		Topic: "  rust vs go  ",
		Questions: []ClarifyingAnswer{
			{Question: "What scale?", Answer: "Thousands of jobs"},
			{Question: " ", Answer: "ignored"},
		},
	}
	assert.Equal(t, research.Goal{
		Text:          "rust vs go",
		OpenQuestions: []string{"Q: What scale? A: Thousands of jobs"},
	}, req.Goal())
}
