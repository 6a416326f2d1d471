package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/netops-gin/internal/config"
	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/metrics"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/store"
	"github.com/sirupsen/logrus"
)

// Notifier 任务状态变更的对外通知
// 进程内部署直接走事件总线,独立执行器进程通过 WebSocket 回传
type Notifier interface {
	NotifyTaskStatus(task *model.TaskModel)
}

// NopNotifier 不通知
type NopNotifier struct{}

func (NopNotifier) NotifyTaskStatus(*model.TaskModel) {}

// TaskQueue 执行器依赖的任务存储能力
type TaskQueue interface {
	ClaimNext(executorID string, taskTypes []string) (*model.TaskModel, error)
	TransitionStatus(taskID, newStatus string, opts store.TransitionOptions) (*model.TaskModel, error)
	GetHistory(taskID string) ([]*model.TaskHistoryModel, error)
}

// Executor 任务执行器:持续认领 approved 任务并驱动到终态
type Executor struct {
	id       string
	store    TaskQueue
	handlers map[string]Handler
	notifier Notifier
	logger   *logrus.Entry

	workers        int
	pollInterval   time.Duration
	maxTaskRetries int
	shutdownGrace  time.Duration
}

// New 创建执行器并注册全部内置处理器
func New(cfg config.ExecutorConfig, taskStore *store.Store, reg *registry.Registry, gw *gateway.Gateway, notifier Notifier, logger *logrus.Logger) *Executor {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	entry := logger.WithField("component", "executor")

	runner := &deviceRunner{
		registry:   reg,
		gateway:    gw,
		maxRetries: cfg.MaxRetries,
		logger:     entry,
	}

	e := &Executor{
		id:             "executor-" + uuid.New().String()[:8],
		store:          taskStore,
		handlers:       make(map[string]Handler),
		notifier:       notifier,
		logger:         entry,
		workers:        cfg.Workers,
		pollInterval:   time.Duration(cfg.PollInterval) * time.Second,
		maxTaskRetries: cfg.MaxTaskRetries,
		shutdownGrace:  time.Duration(cfg.ShutdownGrace) * time.Second,
	}

	e.Register(&DHCPHandler{runner: runner})
	e.Register(&RouteHandler{runner: runner})
	e.Register(&VPNHandler{runner: runner})
	e.Register(&BatchAddressHandler{runner: runner})
	return e
}

// Register 注册任务处理器
func (e *Executor) Register(h Handler) {
	e.handlers[h.Type()] = h
}

// SupportedTypes 已注册的任务类型
func (e *Executor) SupportedTypes() []string {
	types := make([]string, 0, len(e.handlers))
	for t := range e.handlers {
		types = append(types, t)
	}
	return types
}

// Run 启动工作协程池,阻塞直到 ctx 取消且在途任务结束
func (e *Executor) Run(ctx context.Context) {
	e.logger.WithFields(logrus.Fields{
		"executor_id": e.id,
		"workers":     e.workers,
	}).Info("executor started")

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.workerLoop(ctx, worker)
		}(i)
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("executor stopped")
	case <-time.After(e.shutdownGrace):
		e.logger.Warn("shutdown grace elapsed with tasks still in flight")
	}
}

func (e *Executor) workerLoop(ctx context.Context, worker int) {
	types := e.SupportedTypes()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := e.store.ClaimNext(e.id, types)
		if err != nil {
			e.logger.WithError(err).Warn("claim failed")
			e.sleep(ctx, e.pollInterval)
			continue
		}
		if task == nil {
			e.sleep(ctx, e.pollInterval)
			continue
		}

		e.notifier.NotifyTaskStatus(task)
		e.process(ctx, task)
	}
}

// process 执行任务并按结果迁移到终态
func (e *Executor) process(ctx context.Context, task *model.TaskModel) {
	logger := e.logger.WithFields(logrus.Fields{
		"task_id":   task.TaskID,
		"task_type": task.TaskType,
	})
	logger.Info("task claimed")
	start := time.Now()

	handler, ok := e.handlers[task.TaskType]
	if !ok {
		e.finish(task, model.StatusFailed, nil,
			fmt.Sprintf("%v: %s", ErrHandlerMissing, task.TaskType))
		return
	}

	result, err := handler.Execute(ctx, task)
	metrics.RecordTaskDuration(task.TaskType, time.Since(start).Seconds())

	if err != nil {
		logger.WithError(err).Error("handler failed")
		e.finish(task, model.StatusFailed, nil, err.Error())
		return
	}

	// 有一台成功即 completed,部分失败用 partial 标记
	if result.Succeeded() > 0 {
		e.finish(task, model.StatusCompleted, result, "")
	} else {
		e.finish(task, model.StatusFailed, nil, summarizeFailure(result))
	}
	logger.WithFields(logrus.Fields{
		"succeeded": result.Succeeded(),
		"devices":   len(result.PerDeviceResults),
		"partial":   result.Partial,
	}).Info("task finished")
}

// finish 迁移到终态,存储瞬时故障时按策略重排队一次
func (e *Executor) finish(task *model.TaskModel, status string, result *Result, errText string) {
	opts := store.TransitionOptions{By: e.id, Error: errText}
	if result != nil {
		opts.Result = result
	}

	updated, err := e.store.TransitionStatus(task.TaskID, status, opts)
	if err == nil {
		metrics.RecordTaskProcessed(task.TaskType, status)
		e.notifier.NotifyTaskStatus(updated)
		return
	}

	if !store.IsTransient(err) {
		e.logger.WithError(err).WithField("task_id", task.TaskID).Error("terminal transition rejected")
		return
	}

	if e.requeues(task.TaskID) >= e.maxTaskRetries {
		e.logger.WithField("task_id", task.TaskID).Error("store unavailable and requeue budget exhausted, marking failed")
		if _, ferr := e.store.TransitionStatus(task.TaskID, model.StatusFailed, store.TransitionOptions{
			By: e.id, Error: "store unavailable: " + err.Error(),
		}); ferr != nil {
			e.logger.WithError(ferr).WithField("task_id", task.TaskID).Error("failed transition also rejected")
		}
		return
	}

	e.logger.WithError(err).WithField("task_id", task.TaskID).Warn("store transient failure, requeueing task")
	requeued, rerr := e.store.TransitionStatus(task.TaskID, model.StatusApproved, store.TransitionOptions{
		By: e.id + "-requeue",
	})
	if rerr != nil {
		e.logger.WithError(rerr).WithField("task_id", task.TaskID).Error("requeue failed")
		return
	}
	e.notifier.NotifyTaskStatus(requeued)
}

// requeues 统计任务已被重排队的次数
func (e *Executor) requeues(taskID string) int {
	history, err := e.store.GetHistory(taskID)
	if err != nil {
		return 0
	}
	count := 0
	for _, h := range history {
		if h.OldStatus == model.StatusRunning && h.NewStatus == model.StatusApproved {
			count++
		}
	}
	return count
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func summarizeFailure(result *Result) string {
	for _, d := range result.PerDeviceResults {
		if d.Status == "error" && d.Error != "" {
			return fmt.Sprintf("all devices failed, first error: %s", d.Error)
		}
	}
	return "all devices failed"
}
