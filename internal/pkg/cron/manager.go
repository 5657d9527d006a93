package cron

import (
	"Homestead/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

const defaultPruneSpec = "0 30 3 * * *"

type Manager struct {
	engine     *cron.Cron
	pruneSpec  string
	receiptJob *job.ReadReceiptPruneJob
}

func NewCronManager(receiptJob *job.ReadReceiptPruneJob, pruneSpec string) *Manager {
	if pruneSpec == "" {
		pruneSpec = defaultPruneSpec
	}
	return &Manager{
		engine:     cron.New(cron.WithSeconds()),
		pruneSpec:  pruneSpec,
		receiptJob: receiptJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.pruneSpec, s.receiptJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动")
	s.engine.Start()
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
