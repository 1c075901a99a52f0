package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sead-import/internal/config"
	"github.com/JonMunkholm/sead-import/internal/export"
	"github.com/JonMunkholm/sead-import/internal/logging"
	"github.com/JonMunkholm/sead-import/internal/policy"
	"github.com/JonMunkholm/sead-import/internal/schema"
	"github.com/JonMunkholm/sead-import/internal/source"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// DefaultRunTimeout is the maximum duration of one run when none is configured.
const DefaultRunTimeout = 10 * time.Minute

// Options configures a Service.
type Options struct {
	// Timeout bounds one run; zero uses DefaultRunTimeout.
	Timeout time.Duration

	// MaxConcurrentRuns and MaxWait configure the run limiter.
	MaxConcurrentRuns int
	MaxWait           time.Duration
}

// Service runs submissions through load, reconciliation and export.
// It is safe for concurrent use.
type Service struct {
	schema   *schema.Schema
	keys     policy.KeyService
	policies config.Policies
	timeout  time.Duration
	limiter  *RunLimiter
}

// NewService creates a Service. keys may be nil, in which case referenced
// identities are not checked against persisted keys.
func NewService(s *schema.Schema, keys policy.KeyService, policies config.Policies, opts Options) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Service{
		schema:   s,
		keys:     keys,
		policies: policies,
		timeout:  timeout,
		limiter:  NewRunLimiter(opts.MaxConcurrentRuns, opts.MaxWait),
	}
}

// Request describes one run.
type Request struct {
	InputDir  string
	OutputDir string
	Basename  string

	// Tables restricts the export; empty exports every table.
	Tables []string
}

// Summary is the outcome of a successful run.
type Summary struct {
	RunID    string
	Tables   []string // Tables exported
	Unmapped []string // Source sheets no table maps to
	Report   *policy.Report
	Export   *export.Result
	Duration time.Duration
}

// Process loads the submission in req.InputDir, applies the policy pipeline
// and writes the export files into req.OutputDir.
func (s *Service) Process(ctx context.Context, req Request) (*Summary, error) {
	if req.InputDir == "" {
		return nil, errors.New("no input directory")
	}

	runID := logging.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}
	logger := logging.FromContext(ctx)

	if err := s.limiter.Acquire(ctx, req.OutputDir); err != nil {
		return nil, err
	}
	defer s.limiter.Release(req.OutputDir)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	logger.Info("import run started", "input", req.InputDir, "output", req.OutputDir)

	src, err := source.OpenDir(ctx, req.InputDir)
	if err != nil {
		return nil, err
	}

	sub, err := submission.Load(ctx, s.schema, src)
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}

	report, err := policy.NewPipeline(policy.Default(s.policies), s.keys).Run(ctx, sub)
	if err != nil {
		return nil, err
	}

	opts := export.Options{Tables: req.Tables, Basename: req.Basename}
	if !s.policies.DropIgnoredColumns.Disabled {
		opts.IgnoreColumns = s.policies.DropIgnoredColumns.Columns
	}
	result, err := export.NewExporter(s.schema, opts).Export(ctx, sub, req.OutputDir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:    runID,
		Unmapped: sub.Unmapped,
		Report:   report,
		Export:   result,
		Duration: time.Since(start),
	}
	for _, t := range result.Tables {
		summary.Tables = append(summary.Tables, t.Table)
	}

	logger.Info("import run completed",
		"tables", len(summary.Tables),
		"records", result.Records(),
		"actions", report.Actions(),
		"duration", summary.Duration,
	)
	return summary, nil
}
