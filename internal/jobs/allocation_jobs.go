package jobs

import (
	"context"
	"fmt"
	"time"

	"campusledger/internal/logger"
)

const fineBatchSize = 500

// ExpireOverdueAllocations transitions ACTIVE allocations past their due
// date to EXPIRED, freeing their pool units and recording penalties. The
// pool manager owns the per-allocation transactions; the job just drives
// the sweep and reports.
func (jr *JobRunner) ExpireOverdueAllocations() {
	jr.runWithRecovery("ExpireOverdueAllocations", func() {
		ctx := context.Background()
		now := time.Now().UTC()

		expired, err := jr.pools.ExpireOverdue(ctx, now)
		if err != nil {
			logger.Error("Failed to expire overdue allocations", "error", err)
			return
		}
		logger.Info("Expired overdue allocations", "count", expired)
	})
}

// AssessUnbilledFines turns recorded penalties into billing obligations.
// Assess is idempotent per penalty reference, so re-running the job after
// a partial failure is safe.
func (jr *JobRunner) AssessUnbilledFines() {
	jr.runWithRecovery("AssessUnbilledFines", func() {
		ctx := context.Background()

		penalties, err := jr.store.PenaltyRepository.ListUnbilled(ctx, fineBatchSize)
		if err != nil {
			logger.Error("Failed to list unbilled penalties", "error", err)
			return
		}

		assessed := 0
		for _, p := range penalties {
			alloc, err := jr.store.AllocationRepository.GetByID(ctx, p.AllocationID)
			if err != nil {
				logger.Error("Failed to load allocation for penalty", "penalty_id", p.ID, "error", err)
				continue
			}
			ref := fmt.Sprintf("penalty:%d", p.ID)
			if _, err := jr.billing.Assess(ctx, alloc.OwnerID, ref, p.AmountPaise, nil); err != nil {
				logger.Error("Failed to assess penalty", "penalty_id", p.ID, "error", err)
				continue
			}
			assessed++
		}
		logger.Info("Assessed unbilled fines", "count", assessed, "of", len(penalties))
	})
}
