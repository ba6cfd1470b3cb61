package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-console/pkg/stream"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

type Job struct {
	ID        uuid.UUID `json:"id"`
	Topic     string    `json:"topic"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	Report    *string   `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

type CreateJobRequest struct {
	Topic string `json:"topic"`
	Model string `json:"model"`
}

// jobRecord guards one job and its log.
type jobRecord struct {
	mu   sync.Mutex
	job  Job
	logs []LogEntry
}

func (r *jobRecord) appendLog(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = len(r.logs) + 1
	r.logs = append(r.logs, e)
}

func (r *jobRecord) setStatus(status string, report *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.job.Status = status
	r.job.Report = report
	r.job.UpdatedAt = time.Now()
}

func (r *jobRecord) snapshot() Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job
}

// Service keeps the jobs of this process in memory and runs the pipeline
// for each of them.
type Service struct {
	Pipeline *Pipeline
	Logger   *slog.Logger
	// MaxJobs bounds the registry; the oldest jobs are evicted first.
	MaxJobs int

	mu    sync.RWMutex
	jobs  map[uuid.UUID]*jobRecord
	order []uuid.UUID
}

func NewService(p *Pipeline) *Service {
	return &Service{
		Pipeline: p,
		Logger:   slog.Default(),
		MaxJobs:  50,
		jobs:     make(map[uuid.UUID]*jobRecord),
	}
}

// CreateJob registers a pending job.
func (s *Service) CreateJob(req CreateJobRequest) Job {
	now := time.Now()
	rec := &jobRecord{job: Job{
		ID:        uuid.New(),
		Topic:     req.Topic,
		Model:     req.Model,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[rec.job.ID] = rec
	s.order = append(s.order, rec.job.ID)
	for s.MaxJobs > 0 && len(s.order) > s.MaxJobs {
		delete(s.jobs, s.order[0])
		s.order = s.order[1:]
	}
	return rec.job
}

// RunJob streams the pipeline for a job through emit. Pipeline failures
// are sent as an error event; only emit failures are returned.
func (s *Service) RunJob(ctx context.Context, id uuid.UUID, emit Emit) error {
	rec, err := s.record(id)
	if err != nil {
		return err
	}
	job := rec.snapshot()

	logger := slog.New(NewJobLogHandler(rec.appendLog, s.Logger.Handler())).With("job_id", id.String())
	rec.setStatus(StatusRunning, nil)
	logger.Info("Starting research", "topic", job.Topic, "model", job.Model)

	var emitErr error
	err = s.Pipeline.Run(ctx, logger, job.Topic, func(ev stream.Event) error {
		// Consumers may hang up right after the terminal event.
		if ev.Type == stream.TypeComplete {
			r := ev.Report
			rec.setStatus(StatusCompleted, &r)
			logger.Info("Research complete")
		}
		if err := emit(ev); err != nil {
			emitErr = err
			return err
		}
		return nil
	})

	switch {
	case emitErr != nil:
		logger.Warn("Client went away", "error", emitErr)
		rec.setStatus(StatusFailed, nil)
		return emitErr
	case err != nil:
		logger.Error("Research failed", "error", err)
		rec.setStatus(StatusFailed, nil)
		return emit(stream.Failure(fmt.Sprintf("Research error: %v", err)))
	}

	return nil
}

func (s *Service) record(id uuid.UUID) (*jobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return rec, nil
}

func (s *Service) GetJob(id uuid.UUID) (Job, error) {
	rec, err := s.record(id)
	if err != nil {
		return Job{}, err
	}
	return rec.snapshot(), nil
}

// ListJobs returns the newest jobs first.
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]Job, 0, len(s.order))
	for _, id := range slices.Backward(s.order) {
		jobs = append(jobs, s.jobs[id].snapshot())
	}
	return jobs
}

func (s *Service) GetJobLogs(id uuid.UUID) ([]LogEntry, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return slices.Clone(rec.logs), nil
}
