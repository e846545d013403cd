package scheduler

import (
	"context"
	"time"

	"tigro/internal/modules/optimization"
)

// optimizationRunTimeout bounds a single scheduled pipeline run.
const optimizationRunTimeout = 10 * time.Minute

// OptimizationJob runs the full optimization pipeline on schedule.
type OptimizationJob struct {
	svc *optimization.Service
}

// NewOptimizationJob creates the scheduled pipeline job.
func NewOptimizationJob(svc *optimization.Service) *OptimizationJob {
	return &OptimizationJob{svc: svc}
}

// Name implements Job.
func (j *OptimizationJob) Name() string {
	return "optimization-run"
}

// Run executes one pipeline run.
func (j *OptimizationJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), optimizationRunTimeout)
	defer cancel()

	_, err := j.svc.RunOnce(ctx)
	return err
}
