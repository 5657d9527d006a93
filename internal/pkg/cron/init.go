package cron

import (
	"fmt"
	log "log/slog"
)

// InitCron 注册并启动定时任务，表达式非法时直接返回错误
func InitCron(mgr *Manager) error {
	if err := mgr.RegisterJobs(); err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	log.Info("Cron Jobs starting...", "receipt_prune_spec", mgr.pruneSpec)
	mgr.Start()
	return nil
}
