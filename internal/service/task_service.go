package service

import (
	"encoding/json"
	"time"

	"github.com/mautops/netops-gin/internal/bus"
	"github.com/mautops/netops-gin/internal/metrics"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/mautops/netops-gin/internal/store"
	"github.com/mautops/netops-gin/internal/websocket/message"
	"github.com/sirupsen/logrus"
)

// statusText 任务状态的中文展示文案
var statusText = map[string]string{
	model.StatusPending:         "等待中",
	model.StatusPendingApproval: "等待审核",
	model.StatusApproved:        "已审核",
	model.StatusRejected:        "已拒绝",
	model.StatusRunning:         "执行中",
	model.StatusCompleted:       "已完成",
	model.StatusFailed:          "失败",
}

// StatusText 状态的中文文案,未知状态原样返回
func StatusText(status string) string {
	if text, ok := statusText[status]; ok {
		return text
	}
	return status
}

// TaskView 任务的对外视图
type TaskView struct {
	TaskID            string          `json:"task_id"`
	TaskType          string          `json:"task_type"`
	Status            string          `json:"status"`
	StatusText        string          `json:"status_text"`
	Priority          int             `json:"priority"`
	Params            json.RawMessage `json:"params,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
	Error             string          `json:"error,omitempty"`
	RequestedBy       string          `json:"requested_by,omitempty"`
	NotificationsSent int             `json:"notifications_sent"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// NewTaskView 从任务行构造视图
func NewTaskView(task *model.TaskModel) *TaskView {
	view := &TaskView{
		TaskID:            task.TaskID,
		TaskType:          task.TaskType,
		Status:            task.Status,
		StatusText:        StatusText(task.Status),
		Priority:          task.Priority,
		Error:             task.Error,
		RequestedBy:       task.RequestedBy,
		NotificationsSent: task.NotificationsSent,
		CreatedAt:         task.CreatedAt,
		StartedAt:         task.StartedAt,
		CompletedAt:       task.CompletedAt,
	}
	if len(task.Params) > 0 {
		view.Params = json.RawMessage(task.Params)
	}
	if len(task.Result) > 0 {
		view.Result = json.RawMessage(task.Result)
	}
	return view
}

// TaskService 任务生命周期服务
// 写操作经过任务存储,变更结果发布到事件总线
type TaskService struct {
	store  *store.Store
	bus    *bus.Bus
	logger *logrus.Entry
}

// NewTaskService 创建任务服务
func NewTaskService(taskStore *store.Store, eventBus *bus.Bus, logger *logrus.Logger) *TaskService {
	return &TaskService{
		store:  taskStore,
		bus:    eventBus,
		logger: logger.WithField("component", "task-service"),
	}
}

// Submit 受理新任务,进入待审核状态
func (s *TaskService) Submit(taskType string, params interface{}, priority int, requestedBy string) (*TaskView, error) {
	task, err := s.store.CreateTask(taskType, params, priority, requestedBy)
	if err != nil {
		return nil, err
	}

	metrics.RecordTaskCreated(taskType)
	s.publish(task)
	s.logger.WithFields(logrus.Fields{
		"task_id":   task.TaskID,
		"task_type": taskType,
	}).Info("task submitted")
	return NewTaskView(task), nil
}

// Approve 审核通过,任务进入可认领队列
func (s *TaskService) Approve(taskID, approvedBy string) (*TaskView, error) {
	task, err := s.store.TransitionStatus(taskID, model.StatusApproved, store.TransitionOptions{By: approvedBy})
	if err != nil {
		return nil, err
	}

	metrics.RecordApproval("approve")
	s.publish(task)
	s.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"by":      approvedBy,
	}).Info("task approved")
	return NewTaskView(task), nil
}

// Reject 审核拒绝,拒绝原因写入任务的 error 字段
func (s *TaskService) Reject(taskID, reason, rejectedBy string) (*TaskView, error) {
	if reason == "" {
		reason = "审核未通过"
	}
	task, err := s.store.TransitionStatus(taskID, model.StatusRejected, store.TransitionOptions{
		By:    rejectedBy,
		Error: reason,
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordApproval("reject")
	s.publish(task)
	s.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"by":      rejectedBy,
	}).Info("task rejected")
	return NewTaskView(task), nil
}

// Get 获取单个任务视图
func (s *TaskService) Get(taskID string) (*TaskView, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	return NewTaskView(task), nil
}

// List 按过滤器列出任务视图
func (s *TaskService) List(filter store.TaskFilter, limit int) ([]*TaskView, error) {
	tasks, err := s.store.ListTasks(filter, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*TaskView, len(tasks))
	for i, task := range tasks {
		views[i] = NewTaskView(task)
	}
	return views, nil
}

// Pending 待审核任务列表,高优先级在前
func (s *TaskService) Pending(limit int) ([]*TaskView, error) {
	tasks, err := s.store.ListPending(limit)
	if err != nil {
		return nil, err
	}
	views := make([]*TaskView, len(tasks))
	for i, task := range tasks {
		views[i] = NewTaskView(task)
	}
	return views, nil
}

// History 任务状态变更历史
func (s *TaskService) History(taskID string) ([]*model.TaskHistoryModel, error) {
	if _, err := s.store.GetTask(taskID); err != nil {
		return nil, err
	}
	return s.store.GetHistory(taskID)
}

func (s *TaskService) publish(task *model.TaskModel) {
	s.bus.Publish(bus.ChannelTaskEvents, message.TypeTaskStatusChange, message.TaskStatusChangeFrom(task))
}
