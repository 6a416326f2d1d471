package model

import (
	"errors"
	"time"
)

// TaskHistoryModel 任务状态变更历史,每次状态迁移追加一行
// 创建任务时写入 old_status 为空的首行
type TaskHistoryModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TaskID    string    `gorm:"column:task_id;type:varchar(64);not null;index" json:"task_id"`
	OldStatus string    `gorm:"column:old_status;type:varchar(20)" json:"old_status"`
	NewStatus string    `gorm:"column:new_status;type:varchar(20);not null" json:"new_status"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
	ChangedBy string    `gorm:"column:changed_by;type:varchar(128)" json:"changed_by"`
}

// TableName 指定表名
func (TaskHistoryModel) TableName() string {
	return "task_history"
}

// Validate 验证状态历史模型
func (th *TaskHistoryModel) Validate() error {
	if th.TaskID == "" {
		return errors.New("task ID is required")
	}
	if th.NewStatus == "" {
		return errors.New("new status is required")
	}
	return nil
}
