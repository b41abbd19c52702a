package jobs

import (
	"campusledger/internal/config"
	"campusledger/internal/logger"
	"campusledger/internal/repository/postgres"
	"campusledger/internal/service"
)

// JobRunner coordinates all scheduled reconciliation jobs
type JobRunner struct {
	store   *postgres.Store
	pools   service.PoolService
	billing service.BillingService
	config  *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(store *postgres.Store, pools service.PoolService, billing service.BillingService, cfg *config.Config) *JobRunner {
	return &JobRunner{
		store:   store,
		pools:   pools,
		billing: billing,
		config:  cfg,
	}
}

// Config exposes the configuration the scheduler reads its specs from
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAllNightlyJobs runs all nightly jobs (for manual execution)
func (jr *JobRunner) RunAllNightlyJobs() {
	jr.ExpireOverdueAllocations()
	jr.AssessUnbilledFines()
}
