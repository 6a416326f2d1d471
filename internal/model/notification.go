package model

import (
	"time"
)

// NotificationModel 任务通知记录
// 与 tasks.notifications_sent 计数在同一事务内写入
type NotificationModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TaskID    string    `gorm:"column:task_id;type:varchar(64);not null;index" json:"task_id"`
	Message   string    `gorm:"column:message;type:text;not null" json:"message"`
	Status    string    `gorm:"column:status;type:varchar(16);not null;default:'unread'" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "notifications"
}
