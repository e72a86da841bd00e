package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/deep-search/pkg/archive"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("research job not found")

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobAborted   = "aborted"
)

// JobService is the persistence surface the HTTP handlers use.
type JobService interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}

// Service runs research jobs in background workers and stores them in
// Postgres.
type Service struct {
	DB      *database.PostgresDB
	Engine  *research.Engine
	Archive *archive.Archive
	Logger  *slog.Logger

	// baseCtx is cancelled on shutdown; running jobs then finish as aborted.
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewService(ctx context.Context, db *database.PostgresDB, engine *research.Engine, arch *archive.Archive, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		DB:      db,
		Engine:  engine,
		Archive: arch,
		Logger:  logger,
		baseCtx: ctx,
	}
}

type Job struct {
	ID          uuid.UUID       `json:"id"`
	Query       string          `json:"query"`
	Status      string          `json:"status"`
	Answer      *string         `json:"answer,omitempty"`
	Termination *string         `json:"termination,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Config      json.RawMessage `json:"config"`
}

type CreateJobRequest struct {
	Query          string `json:"query" binding:"required"`
	MaxIterations  int    `json:"max_iterations"`
	MaxQueries     int    `json:"max_queries"`
	ReasoningModel string `json:"reasoning_model"`
	Quick          bool   `json:"quick"`
}

func (r CreateJobRequest) options() research.Options {
	return research.Options{
		MaxIterations:  r.MaxIterations,
		MaxQueries:     r.MaxQueries,
		ReasoningModel: r.ReasoningModel,
	}
}

const jobColumns = `id, query, status, answer, termination, error, result, created_at, updated_at, config`

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	err := row.Scan(&job.ID, &job.Query, &job.Status, &job.Answer, &job.Termination, &job.Error,
		&job.Result, &job.CreatedAt, &job.UpdatedAt, &job.Config)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, research.ErrEmptyQuery
	}

	configJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job config: %w", err)
	}

	query := `
		INSERT INTO research_jobs (id, query, status, config)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + jobColumns

	job, err := scanJob(s.DB.Pool.QueryRow(ctx, query, uuid.New(), req.Query, JobPending, configJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(job.ID, req)
	}()

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM research_jobs WHERE id = $1`
	job, err := scanJob(s.DB.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM research_jobs ORDER BY created_at DESC LIMIT 50`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			s.Logger.Warn("Skipping unreadable job row", "error", err)
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Wait blocks until every running worker has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runWorker(jobID uuid.UUID, req CreateJobRequest) {
	ctx := s.baseCtx
	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID, slog.LevelInfo, s.Logger.Handler())).With("job_id", jobID.String())

	if _, err := s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1", jobID, JobRunning); err != nil {
		dbLogger.Error("Failed to mark job running", "error", err)
	}

	var final research.State
	opts := req.options()
	opts.Logger = dbLogger
	opts.OnStateUpdate = func(state research.State) {
		final = state
		stateJSON, err := json.Marshal(state)
		if err != nil {
			dbLogger.Error("Failed to marshal state", "error", err)
			return
		}
		_, err = s.DB.Pool.Exec(context.Background(),
			"UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1",
			jobID, stateJSON)
		if err != nil {
			dbLogger.Error("Failed to save state to DB", "error", err)
		}
	}

	var res research.Result
	if req.Quick {
		res = s.Engine.Quick(ctx, req.Query, opts)
	} else {
		res = s.Engine.Research(ctx, req.Query, opts)
	}

	s.saveResult(jobID, res, dbLogger)

	if res.OK() && s.Archive != nil {
		_, err := s.Archive.Index(context.Background(), archive.Entry{
			JobID:   jobID.String(),
			Query:   res.Query,
			Answer:  res.Answer,
			Sources: final.Sources,
		})
		if err != nil {
			dbLogger.Warn("Failed to archive research evidence", "error", err)
		}
	}
}

func (s *Service) saveResult(jobID uuid.UUID, res research.Result, logger *slog.Logger) {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		logger.Error("Failed to marshal result", "error", err)
		resultJSON = nil
	}

	var answer, termination, errText *string
	if res.Answer != "" {
		answer = &res.Answer
	}
	if res.Termination != research.TerminationNone {
		t := string(res.Termination)
		termination = &t
	}
	if res.Error != "" {
		errText = &res.Error
		logger.Error("Research job did not succeed", "status", string(res.Status), "error", res.Error)
	}

	_, err = s.DB.Pool.Exec(context.Background(), `
		UPDATE research_jobs
		SET status = $2, answer = $3, termination = $4, error = $5, result = $6, updated_at = NOW()
		WHERE id = $1
	`, jobID, jobStatus(res.Status), answer, termination, errText, resultJSON)
	if err != nil {
		logger.Error("Failed to save final result to DB", "error", err)
	}
}

func jobStatus(s research.Status) string {
	switch s {
	case research.StatusSuccess:
		return JobCompleted
	case research.StatusAborted:
		return JobAborted
	default:
		return JobFailed
	}
}
