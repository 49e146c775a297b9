package main

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/gluk-w/devdash/internal/termaudit"
	"github.com/gluk-w/devdash/internal/terminal"
)

// startMaintenance schedules runMaintenance on spec, a cron expression or
// descriptor such as "@every 5m". The returned scheduler must be stopped
// on shutdown.
func startMaintenance(ctx context.Context, spec string, mgr *terminal.Manager, auditor *termaudit.Auditor) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { runMaintenance(ctx, mgr, auditor) }); err != nil {
		return nil, err
	}
	c.Start()
	log.Printf("Maintenance scheduled: %s", spec)
	return c, nil
}

// runMaintenance removes crashed handles past their retention, stored
// session records whose tmux session is gone, and expired audit events.
func runMaintenance(ctx context.Context, mgr *terminal.Manager, auditor *termaudit.Auditor) {
	if mgr != nil {
		if n := mgr.CleanupIdle(); n > 0 {
			log.Printf("[maintenance] removed %d crashed terminals", n)
		}
		n, err := mgr.PruneRecords(ctx)
		if err != nil {
			log.Printf("[maintenance] pruning session records: %v", err)
		} else if n > 0 {
			log.Printf("[maintenance] pruned %d stale session records", n)
		}
	}
	if auditor != nil {
		if _, err := auditor.PurgeOlderThan(0); err != nil {
			log.Printf("[maintenance] purging audit events: %v", err)
		}
	}
}
