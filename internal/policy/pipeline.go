package policy

import (
	"context"
	"time"

	"github.com/JonMunkholm/sead-import/internal/logging"
	"github.com/JonMunkholm/sead-import/internal/submission"
)

// Result describes one policy in a pipeline run.
type Result struct {
	Policy   string
	Priority int
	Skipped  bool
	Log      *Log
	Duration time.Duration
}

// Report is the outcome of a pipeline run, in run order.
type Report struct {
	Results []Result
}

// Actions returns the total number of logged actions.
func (r *Report) Actions() int {
	n := 0
	for _, res := range r.Results {
		n += res.Log.Len()
	}
	return n
}

// Result returns the result of a policy by id.
func (r *Report) Result(id string) (Result, bool) {
	for _, res := range r.Results {
		if res.Policy == id {
			return res, true
		}
	}
	return Result{}, false
}

// Pipeline runs an ordered list of policies against a submission.
type Pipeline struct {
	policies []Registered
	keys     KeyService
}

// NewPipeline resolves the run order of r once.
func NewPipeline(r *Registry, keys KeyService) *Pipeline {
	return &Pipeline{policies: r.Ordered(), keys: keys}
}

// Run applies every enabled policy in order. The first failure aborts the
// run; the submission then holds whatever the earlier policies produced and
// must be discarded.
func (p *Pipeline) Run(ctx context.Context, sub *submission.Submission) (*Report, error) {
	report := &Report{}

	for _, reg := range p.policies {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res, err := p.apply(ctx, reg, sub)
		report.Results = append(report.Results, res)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

// apply wraps one policy's Update with logging.
func (p *Pipeline) apply(ctx context.Context, reg Registered, sub *submission.Submission) (Result, error) {
	id := reg.Policy.ID()
	logger := logging.WithFields(ctx, "policy", id)
	res := Result{Policy: id, Priority: reg.Settings.Priority, Log: &Log{}}

	if reg.Settings.Disabled {
		res.Skipped = true
		logger.Info("policy skipped", "reason", "disabled")
		return res, nil
	}

	pc := &Context{
		Schema:     sub.Schema(),
		Submission: sub,
		Keys:       p.keys,
		Log:        res.Log,
	}

	start := time.Now()
	err := reg.Policy.Update(ctx, pc)
	res.Duration = time.Since(start)

	for _, e := range res.Log.Entries() {
		if e.Warning {
			logger.Warn(e.Message, "table", e.Table)
		} else {
			logger.Info(e.Message, "table", e.Table)
		}
	}

	if err != nil {
		logger.Error("policy failed", "error", err)
		return res, &Error{Policy: id, Err: err}
	}

	logger.Debug("policy applied", "actions", res.Log.Len(), "duration", res.Duration)
	return res, nil
}
