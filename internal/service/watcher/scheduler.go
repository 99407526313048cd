package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/IlliaDrahun/multichain/pkg/logger"
	"github.com/IlliaDrahun/multichain/pkg/monitor"
)

// TaskKind 一个 tick 内的任务类型
type TaskKind string

const (
	TaskCheckPending  TaskKind = "check_pending"
	TaskResolveReorgs TaskKind = "resolve_reorgs"
)

// Task 单条链上的一次扫描
type Task struct {
	Kind    TaskKind
	ChainID string
}

// PlanTick 生成一个 tick 的任务列表: 先按链确认 PENDING，再处理 REORGED
func PlanTick(chainIDs []string) []Task {
	tasks := make([]Task, 0, len(chainIDs)*2)
	for _, id := range chainIDs {
		tasks = append(tasks, Task{Kind: TaskCheckPending, ChainID: id})
	}
	for _, id := range chainIDs {
		tasks = append(tasks, Task{Kind: TaskResolveReorgs, ChainID: id})
	}
	return tasks
}

// ChainLister 提供需要扫描的链
type ChainLister interface {
	ChainIDs() []string
}

// Scheduler 按固定间隔执行 tick，上一次未结束时跳过本次
type Scheduler struct {
	cron     *cron.Cron
	interval time.Duration
	chains   ChainLister
	watcher  *ConfirmationWatcher
	resolver *ReorgResolver
}

func NewScheduler(interval time.Duration, chains ChainLister, watcher *ConfirmationWatcher, resolver *ReorgResolver) *Scheduler {
	cronLog := cron.PrintfLogger(zap.NewStdLog(logger.Log))
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		interval: interval,
		chains:   chains,
		watcher:  watcher,
		resolver: resolver,
	}
}

// Start 注册 tick 并启动调度，ctx 取消后 tick 内的扫描会尽快返回
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule watcher tick %q: %w", spec, err)
	}
	s.cron.Start()
	logger.Info("Watcher scheduler started",
		zap.Duration("interval", s.interval), zap.Strings("chains", s.chains.ChainIDs()))
	return nil
}

// Stop 停止调度并等待正在执行的 tick 结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Watcher scheduler stopped")
}

// Tick 顺序执行本轮所有任务，返回执行的任务数
func (s *Scheduler) Tick(ctx context.Context) int {
	start := time.Now()
	defer func() { monitor.Business.ObserveTick(time.Since(start).Seconds()) }()

	tasks := PlanTick(s.chains.ChainIDs())
	done := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if err := s.run(ctx, task); err != nil {
			logger.Error("Watcher task failed",
				zap.String("task", string(task.Kind)), zap.String("chain_id", task.ChainID), zap.Error(err))
		}
		done++
	}
	return done
}

func (s *Scheduler) run(ctx context.Context, task Task) error {
	switch task.Kind {
	case TaskCheckPending:
		return s.watcher.CheckPending(ctx, task.ChainID)
	case TaskResolveReorgs:
		return s.resolver.Resolve(ctx, task.ChainID)
	}
	return fmt.Errorf("unknown task kind %q", task.Kind)
}
