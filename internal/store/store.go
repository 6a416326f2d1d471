package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/netops-gin/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 任务存储,任务状态的唯一权威
// 所有写操作都在单个事务内完成,失败时不留下部分变更
type Store struct {
	db *gorm.DB
}

// NewStore 创建任务存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	Status   string
	TaskType string
}

// TransitionOptions 状态迁移的附加数据
type TransitionOptions struct {
	Result interface{} // 终态成功时的结构化结果
	Error  string      // 终态失败时的错误文本
	By     string      // 变更来源标识
}

// notificationText 状态迁移对应的通知文案
var notificationText = map[string]string{
	model.StatusRunning:   "任务开始执行",
	model.StatusCompleted: "任务已完成",
	model.StatusFailed:    "任务执行失败",
	model.StatusRejected:  "任务已被拒绝",
}

// CreateTask 创建任务,初始状态为 pending_approval
// 同一事务内追加 (null → pending_approval) 的历史记录
func (s *Store) CreateTask(taskType string, params interface{}, priority int, source string) (*model.TaskModel, error) {
	if !isKnownTaskType(taskType) {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidParams, taskType)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	now := time.Now()
	task := &model.TaskModel{
		TaskID:      uuid.New().String(),
		TaskType:    taskType,
		Params:      datatypes.JSON(raw),
		Status:      InitialStatus,
		Priority:    priority,
		RequestedBy: source,
		CreatedAt:   now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		history := &model.TaskHistoryModel{
			TaskID:    task.TaskID,
			OldStatus: "",
			NewStatus: InitialStatus,
			Timestamp: now,
			ChangedBy: source,
		}
		return tx.Create(history).Error
	})
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	return task, nil
}

// GetTask 获取任务
func (s *Store) GetTask(taskID string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := s.db.Where("task_id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, &TransientError{Err: err}
	}
	return &task, nil
}

// ListTasks 按过滤器列出任务,按创建时间倒序
func (s *Store) ListTasks(filter TaskFilter, limit int) ([]*model.TaskModel, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.db.Model(&model.TaskModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TaskType != "" {
		query = query.Where("task_type = ?", filter.TaskType)
	}

	var tasks []*model.TaskModel
	if err := query.Order("created_at DESC").Limit(limit).Find(&tasks).Error; err != nil {
		return nil, &TransientError{Err: err}
	}
	return tasks, nil
}

// ListPending 待审核任务列表,高优先级在前,同优先级按提交顺序
// 与 ClaimNext 的认领顺序一致,审核人看到的顺序就是执行顺序
func (s *Store) ListPending(limit int) ([]*model.TaskModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var tasks []*model.TaskModel
	if err := pendingQuery(s.db).Limit(limit).Find(&tasks).Error; err != nil {
		return nil, &TransientError{Err: err}
	}
	return tasks, nil
}

func pendingQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&model.TaskModel{}).
		Where("status = ?", model.StatusPendingApproval).
		Order("priority DESC, created_at ASC")
}

// ListNonTerminal 列出所有未到终态的任务,用于订阅者重连时的快照
func (s *Store) ListNonTerminal(limit int) ([]*model.TaskModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var tasks []*model.TaskModel
	err := s.db.
		Where("status NOT IN ?", []string{model.StatusCompleted, model.StatusFailed, model.StatusRejected}).
		Order("created_at DESC").Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	return tasks, nil
}

// GetHistory 获取任务的状态变更历史,按时间升序
func (s *Store) GetHistory(taskID string) ([]*model.TaskHistoryModel, error) {
	var history []*model.TaskHistoryModel
	if err := s.db.Where("task_id = ?", taskID).Order("id ASC").Find(&history).Error; err != nil {
		return nil, &TransientError{Err: err}
	}
	return history, nil
}

// TransitionStatus 迁移任务状态
// 读取当前状态、校验状态机边、写任务行和历史行在同一事务内完成
// 非法边返回 ErrIllegalTransition 且无任何副作用
func (s *Store) TransitionStatus(taskID, newStatus string, opts TransitionOptions) (*model.TaskModel, error) {
	var updated *model.TaskModel

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var task model.TaskModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("task_id = ?", taskID).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return &TransientError{Err: err}
		}

		if !CanTransition(task.Status, newStatus) {
			return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, task.Status, newStatus)
		}

		now := time.Now()
		oldStatus := task.Status
		task.Status = newStatus

		switch newStatus {
		case model.StatusRunning:
			task.StartedAt = &now
		case model.StatusCompleted, model.StatusFailed, model.StatusRejected:
			task.CompletedAt = &now
		}

		// 终态只携带 result 或 error 之一
		if opts.Result != nil {
			raw, err := json.Marshal(opts.Result)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidParams, err)
			}
			task.Result = datatypes.JSON(raw)
			task.Error = ""
		}
		if opts.Error != "" {
			task.Error = opts.Error
			task.Result = nil
		}

		// running 和终态迁移产生通知,计数在同一事务内递增
		if newStatus == model.StatusRunning || model.IsTerminalStatus(newStatus) {
			task.NotificationsSent++
			notification := &model.NotificationModel{
				TaskID:    task.TaskID,
				Message:   notificationText[newStatus],
				Status:    "unread",
				CreatedAt: now,
			}
			if err := tx.Create(notification).Error; err != nil {
				return &TransientError{Err: err}
			}
		}

		if err := tx.Save(&task).Error; err != nil {
			return &TransientError{Err: err}
		}

		history := &model.TaskHistoryModel{
			TaskID:    task.TaskID,
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Timestamp: now,
			ChangedBy: opts.By,
		}
		if err := tx.Create(history).Error; err != nil {
			return &TransientError{Err: err}
		}

		updated = &task
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ClaimNext 原子认领下一个 approved 任务并迁移到 running
// 使用 FOR UPDATE SKIP LOCKED,并发认领者互不阻塞,每个任务至多被一个认领者观察到
// 无可认领任务时返回 (nil, nil)
func (s *Store) ClaimNext(executorID string, taskTypes []string) (*model.TaskModel, error) {
	var claimed *model.TaskModel

	err := s.db.Transaction(func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", model.StatusApproved)
		if len(taskTypes) > 0 {
			query = query.Where("task_type IN ?", taskTypes)
		}

		var task model.TaskModel
		if err := query.Order("priority DESC, created_at ASC").First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return &TransientError{Err: err}
		}

		now := time.Now()
		task.Status = model.StatusRunning
		task.StartedAt = &now
		task.NotificationsSent++

		if err := tx.Save(&task).Error; err != nil {
			return &TransientError{Err: err}
		}

		history := &model.TaskHistoryModel{
			TaskID:    task.TaskID,
			OldStatus: model.StatusApproved,
			NewStatus: model.StatusRunning,
			Timestamp: now,
			ChangedBy: executorID,
		}
		if err := tx.Create(history).Error; err != nil {
			return &TransientError{Err: err}
		}

		notification := &model.NotificationModel{
			TaskID:    task.TaskID,
			Message:   notificationText[model.StatusRunning],
			Status:    "unread",
			CreatedAt: now,
		}
		if err := tx.Create(notification).Error; err != nil {
			return &TransientError{Err: err}
		}

		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

func isKnownTaskType(taskType string) bool {
	for _, known := range model.KnownTaskTypes() {
		if known == taskType {
			return true
		}
	}
	return false
}
