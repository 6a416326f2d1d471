package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 任务状态常量,状态机见 internal/store
const (
	StatusPending         = "pending"
	StatusPendingApproval = "pending_approval"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusRunning         = "running"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
)

// 任务类型常量
const (
	TaskTypeDHCP         = "dhcp_config"
	TaskTypeRoute        = "route_config"
	TaskTypeVPN          = "vpn_config"
	TaskTypeBatchAddress = "batch_address_config"
)

// KnownTaskTypes 返回所有已知任务类型
func KnownTaskTypes() []string {
	return []string{TaskTypeDHCP, TaskTypeRoute, TaskTypeVPN, TaskTypeBatchAddress}
}

// IsTerminalStatus 判断状态是否为终态
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusRejected
}

// TaskModel 任务数据模型
type TaskModel struct {
	TaskID            string         `gorm:"column:task_id;primaryKey;type:varchar(64)" json:"task_id"`
	TaskType          string         `gorm:"column:task_type;type:varchar(50);not null;index" json:"task_type"`
	Params            datatypes.JSON `gorm:"column:params;not null" json:"params"` // 任务参数,由对应处理器反序列化
	Status            string         `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	Priority          int            `gorm:"column:priority;not null;default:0" json:"priority"`
	Result            datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	Error             string         `gorm:"column:error;type:text" json:"error,omitempty"`
	RequestedBy       string         `gorm:"column:requested_by;type:varchar(128)" json:"requested_by"`
	NotificationsSent int            `gorm:"column:notifications_sent;not null;default:0" json:"notifications_sent"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
	StartedAt         *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.TaskID == "" {
		return errors.New("task ID is required")
	}
	if tm.TaskType == "" {
		return errors.New("task type is required")
	}
	if tm.Status == "" {
		return errors.New("task status is required")
	}
	if len(tm.Params) == 0 {
		return errors.New("task params are required")
	}
	return nil
}

// IsTerminal 判断任务是否已到达终态
func (tm *TaskModel) IsTerminal() bool {
	return IsTerminalStatus(tm.Status)
}
