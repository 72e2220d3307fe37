package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/metrics"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/splitter"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var ErrJobNotFound = errors.New("job not found")

type Job struct {
	ID        uuid.UUID          `json:"id"`
	Topic     string             `json:"topic"`
	Breadth   int                `json:"breadth"`
	Depth     int                `json:"depth"`
	Status    string             `json:"status"`
	Report    *string            `json:"report,omitempty"`
	Error     string             `json:"error,omitempty"`
	Progress  *research.Progress `json:"progress,omitempty"`
	Sources   []string           `json:"sources,omitempty"`
	Coverage  *research.Coverage `json:"coverage,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type LogEntry struct {
	ID        int            `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
}

// ClarifyingAnswer is a follow-up question the user already answered.
type ClarifyingAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type CreateJobRequest struct {
	Topic     string             `json:"topic"`
	Breadth   *int               `json:"breadth"`
	Depth     *int               `json:"depth"`
	Questions []ClarifyingAnswer `json:"questions"`
}

type jobRecord struct {
	job    Job
	logs   []LogEntry
	cancel context.CancelFunc
}

// Service runs research jobs in the background and keeps them in memory.
type Service struct {
	LLM    research.LanguageModel
	Search research.SearchEngine
	Cfg    research.Config
	Logger *slog.Logger

	// Tokenizer overrides the engine default when set.
	Tokenizer splitter.Tokenizer

	mu   sync.RWMutex
	jobs map[uuid.UUID]*jobRecord
	wg   sync.WaitGroup
}

func NewService(llm research.LanguageModel, search research.SearchEngine, cfg research.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		LLM:    llm,
		Search: search,
		Cfg:    cfg,
		Logger: logger,
		jobs:   make(map[uuid.UUID]*jobRecord),
	}
}

// Goal builds the root research goal, carrying answered questions as open questions.
func (r CreateJobRequest) Goal() research.Goal {
	goal := research.Goal{Text: strings.TrimSpace(r.Topic)}
	for _, qa := range r.Questions {
		if strings.TrimSpace(qa.Question) == "" {
			continue
		}
		goal.OpenQuestions = append(goal.OpenQuestions, fmt.Sprintf("Q: %s A: %s", qa.Question, qa.Answer))
	}
	return goal
}

// resolve fills in the server defaults for values the request left out. An explicit
// zero depth is kept and means no recursion.
func (s *Service) resolve(breadth, depth *int) (int, int, error) {
	b, d := s.Cfg.Breadth, s.Cfg.Depth
	if breadth != nil {
		b = *breadth
	}
	if depth != nil {
		d = *depth
	}
	if b < 1 {
		return 0, 0, fmt.Errorf("breadth must be a positive integer, got %d", b)
	}
	if d < 0 {
		return 0, 0, fmt.Errorf("depth must be non-negative, got %d", d)
	}
	return b, d, nil
}

// CreateJob registers a job and starts it in the background.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}
	breadth, depth, err := s.resolve(req.Breadth, req.Depth)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	jobCtx, cancel := context.WithCancel(context.Background())
	rec := &jobRecord{
		job: Job{
			ID:        uuid.New(),
			Topic:     strings.TrimSpace(req.Topic),
			Breadth:   breadth,
			Depth:     depth,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}

	s.mu.Lock()
	s.jobs[rec.job.ID] = rec
	job := rec.job
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runWorker(jobCtx, job.ID, req.Goal(), breadth, depth)
	}()

	return &job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	job := rec.job
	return &job, nil
}

// ListJobs returns the 50 most recent jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, rec := range s.jobs {
		jobs = append(jobs, rec.job)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if len(jobs) > 50 {
		jobs = jobs[:50]
	}
	return jobs, nil
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return append([]LogEntry(nil), rec.logs...), nil
}

// CancelJob cancels a pending or running job. Cancelling a finished job is a no-op.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	rec.cancel()
	return s.GetJob(ctx, id)
}

// Research runs one research tree synchronously; used by the MCP tool.
func (s *Service) Research(ctx context.Context, topic string, breadthArg, depthArg *int) (*research.Report, error) {
	breadth, depth, err := s.resolve(breadthArg, depthArg)
	if err != nil {
		return nil, err
	}
	engine, err := research.NewEngine(s.LLM, s.Search, s.Cfg, s.engineOptions(research.WithLogger(s.Logger))...)
	if err != nil {
		return nil, err
	}
	return engine.Investigate(ctx, research.Goal{Text: topic}, breadth, depth)
}

// Close cancels every job and waits for the workers to stop.
func (s *Service) Close() {
	s.mu.RLock()
	for _, rec := range s.jobs {
		rec.cancel()
	}
	s.mu.RUnlock()
	s.wg.Wait()
}

func (s *Service) engineOptions(opts ...research.Option) []research.Option {
	if s.Tokenizer != nil {
		opts = append(opts, research.WithTokenizer(s.Tokenizer))
	}
	return opts
}

func (s *Service) update(id uuid.UUID, fn func(rec *jobRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok {
		fn(rec)
		rec.job.UpdatedAt = time.Now().UTC()
	}
}

func (s *Service) appendLog(id uuid.UUID, entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok {
		entry.ID = len(rec.logs) + 1
		rec.logs = append(rec.logs, entry)
	}
}

func (s *Service) runWorker(ctx context.Context, jobID uuid.UUID, goal research.Goal, breadth, depth int) {
	s.update(jobID, func(rec *jobRecord) { rec.job.Status = StatusRunning })

	jobLogger := slog.New(NewJobLogHandler(s.Logger.Handler(), func(e LogEntry) {
		s.appendLog(jobID, e)
	})).With("job_id", jobID.String())

	engine, err := research.NewEngine(s.LLM, s.Search, s.Cfg, s.engineOptions(
		research.WithLogger(jobLogger),
		research.WithProgress(func(p research.Progress) {
			s.update(jobID, func(rec *jobRecord) { rec.job.Progress = &p })
		}),
	)...)
	if err != nil {
		s.failJob(jobID, jobLogger, fmt.Sprintf("Failed to init engine: %v", err))
		return
	}

	report, err := engine.Investigate(ctx, goal, breadth, depth)
	if err != nil {
		if ctx.Err() != nil {
			jobLogger.Warn("Research cancelled")
			metrics.Jobs.WithLabelValues(StatusCancelled).Inc()
			s.update(jobID, func(rec *jobRecord) {
				rec.job.Status = StatusCancelled
				rec.job.Error = ctx.Err().Error()
			})
			return
		}
		s.failJob(jobID, jobLogger, fmt.Sprintf("Research failed: %v", err))
		return
	}

	jobLogger.Info("Research completed", "learnings", len(report.Learnings), "sources", len(report.Sources))
	metrics.Jobs.WithLabelValues(StatusCompleted).Inc()
	s.update(jobID, func(rec *jobRecord) {
		rec.job.Status = StatusCompleted
		rec.job.Report = &report.Markdown
		rec.job.Sources = report.Sources
		rec.job.Coverage = &report.Coverage
	})
}

func (s *Service) failJob(jobID uuid.UUID, logger *slog.Logger, reason string) {
	logger.Error(reason)
	metrics.Jobs.WithLabelValues(StatusFailed).Inc()
	s.update(jobID, func(rec *jobRecord) {
		rec.job.Status = StatusFailed
		rec.job.Error = reason
	})
}
