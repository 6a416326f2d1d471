package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"github.com/mautops/netops-gin/internal/model"
)

func TestStatusText(t *testing.T) {
	assert.Equal(t, "等待审核", StatusText(model.StatusPendingApproval))
	assert.Equal(t, "已审核", StatusText(model.StatusApproved))
	assert.Equal(t, "执行中", StatusText(model.StatusRunning))
	assert.Equal(t, "已完成", StatusText(model.StatusCompleted))
	assert.Equal(t, "失败", StatusText(model.StatusFailed))
	assert.Equal(t, "已拒绝", StatusText(model.StatusRejected))

	// 未知状态原样返回
	assert.Equal(t, "archived", StatusText("archived"))
}

func TestNewTaskView(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	task := &model.TaskModel{
		TaskID:            "task-1",
		TaskType:          model.TaskTypeDHCP,
		Status:            model.StatusRunning,
		Priority:          3,
		Params:            datatypes.JSON(`{"pool_name":"office"}`),
		RequestedBy:       "operator",
		NotificationsSent: 2,
		CreatedAt:         time.Now().Add(-2 * time.Minute),
		StartedAt:         &started,
	}

	view := NewTaskView(task)

	assert.Equal(t, "task-1", view.TaskID)
	assert.Equal(t, model.StatusRunning, view.Status)
	assert.Equal(t, "执行中", view.StatusText)
	assert.Equal(t, 3, view.Priority)
	assert.JSONEq(t, `{"pool_name":"office"}`, string(view.Params))
	assert.Equal(t, "operator", view.RequestedBy)
	assert.Equal(t, 2, view.NotificationsSent)
	assert.NotNil(t, view.StartedAt)
	assert.Nil(t, view.CompletedAt)
	assert.Empty(t, view.Result)
}

func TestNewTaskViewCarriesResultAndError(t *testing.T) {
	completed := time.Now()
	task := &model.TaskModel{
		TaskID:      "task-2",
		TaskType:    model.TaskTypeRoute,
		Status:      model.StatusFailed,
		Error:       "all devices failed",
		Result:      datatypes.JSON(`{"partial":true}`),
		CompletedAt: &completed,
	}

	view := NewTaskView(task)

	assert.Equal(t, "失败", view.StatusText)
	assert.Equal(t, "all devices failed", view.Error)
	assert.JSONEq(t, `{"partial":true}`, string(view.Result))
	assert.NotNil(t, view.CompletedAt)
}
