package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestTaskModelValidate(t *testing.T) {
	task := &TaskModel{
		TaskID:    "t-1",
		TaskType:  TaskTypeDHCP,
		Params:    datatypes.JSON(`{"device_ids":["1"]}`),
		Status:    StatusPendingApproval,
		CreatedAt: time.Now(),
	}
	assert.NoError(t, task.Validate())

	task.TaskID = ""
	assert.Error(t, task.Validate())

	task.TaskID = "t-1"
	task.TaskType = ""
	assert.Error(t, task.Validate())

	task.TaskType = TaskTypeDHCP
	task.Status = ""
	assert.Error(t, task.Validate())
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusCompleted))
	assert.True(t, IsTerminalStatus(StatusFailed))
	assert.True(t, IsTerminalStatus(StatusRejected))

	assert.False(t, IsTerminalStatus(StatusPending))
	assert.False(t, IsTerminalStatus(StatusPendingApproval))
	assert.False(t, IsTerminalStatus(StatusApproved))
	assert.False(t, IsTerminalStatus(StatusRunning))
}

func TestKnownTaskTypes(t *testing.T) {
	types := KnownTaskTypes()
	assert.Contains(t, types, TaskTypeDHCP)
	assert.Contains(t, types, TaskTypeRoute)
	assert.Contains(t, types, TaskTypeVPN)
	assert.Contains(t, types, TaskTypeBatchAddress)
	assert.Len(t, types, 4)
}

func TestTaskHistoryValidate(t *testing.T) {
	history := &TaskHistoryModel{
		TaskID:    "t-1",
		OldStatus: "",
		NewStatus: StatusPendingApproval,
		Timestamp: time.Now(),
	}
	assert.NoError(t, history.Validate())

	history.NewStatus = ""
	assert.Error(t, history.Validate())
}

func TestDeviceValidate(t *testing.T) {
	device := &DeviceModel{
		Name:     "core-sw-1",
		Address:  "10.1.0.1",
		Username: "admin",
		Password: "secret",
		Protocol: ProtocolSSH,
	}
	assert.NoError(t, device.Validate())

	device.Protocol = "rlogin"
	assert.Error(t, device.Validate())

	device.Protocol = ProtocolTelnet
	device.Address = ""
	assert.Error(t, device.Validate())
}
