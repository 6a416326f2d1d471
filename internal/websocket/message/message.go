// Package message 定义分发服务的消息词汇表
// 服务端下行: register_response / task_status_change / device_status / traffic_data_update
// 客户端上行: register_client / task_status_update
package message

import (
	"encoding/json"
	"time"

	"github.com/mautops/netops-gin/internal/model"
)

const (
	TypeRegisterResponse  = "register_response"
	TypeTaskStatusChange  = "task_status_change"
	TypeDeviceStatus      = "device_status"
	TypeTrafficDataUpdate = "traffic_data_update"

	TypeRegisterClient   = "register_client"
	TypeTaskStatusUpdate = "task_status_update"
)

// Envelope 入站消息的类型探测
type Envelope struct {
	Type string `json:"type"`
}

// RegisterResponse 连接建立后的首条下行消息
type RegisterResponse struct {
	Type       string `json:"type"`
	ClientID   string `json:"client_id"`
	ClientType string `json:"client_type"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// NewRegisterResponse 构造注册应答
func NewRegisterResponse(clientID, clientType string) *RegisterResponse {
	return &RegisterResponse{
		Type:       TypeRegisterResponse,
		ClientID:   clientID,
		ClientType: clientType,
		Status:     "success",
		Message:    "注册成功",
		Timestamp:  Now(),
	}
}

// TaskStatusChange 任务状态变更广播
type TaskStatusChange struct {
	Type         string          `json:"type"`
	TaskID       string          `json:"task_id"`
	Status       string          `json:"status"`
	Timestamp    string          `json:"timestamp"`
	SourceClient string          `json:"source_client,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// TaskStatusChangeFrom 从任务行构造变更消息
func TaskStatusChangeFrom(task *model.TaskModel) *TaskStatusChange {
	msg := &TaskStatusChange{
		Type:      TypeTaskStatusChange,
		TaskID:    task.TaskID,
		Status:    task.Status,
		Timestamp: Now(),
		Error:     task.Error,
	}
	if len(task.Result) > 0 {
		msg.Result = json.RawMessage(task.Result)
	}
	return msg
}

// RegisterClient 客户端自报身份,信息性消息
type RegisterClient struct {
	Type       string `json:"type"`
	ClientType string `json:"client_type"`
}

// TaskStatusUpdate 客户端上行的任务状态回传,回显广播
type TaskStatusUpdate struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// DeviceStatus 仪表盘聚合快照广播
type DeviceStatus struct {
	Type         string                 `json:"type"`
	DeviceCount  int                    `json:"device_count"`
	OnlineCount  int                    `json:"online_count"`
	OfflineCount int                    `json:"offline_count"`
	LastUpdate   string                 `json:"last_update"`
	DeviceStatus map[string]interface{} `json:"device_status"`
}

// TrafficData 单接口流量
type TrafficData struct {
	InputBps  int64 `json:"input_bps"`
	OutputBps int64 `json:"output_bps"`
}

// TrafficDataUpdate 流量视图广播
type TrafficDataUpdate struct {
	Type      string                 `json:"type"`
	Data      map[string]TrafficData `json:"data"`
	Timestamp string                 `json:"timestamp"`
}

// Now 消息时间戳,RFC3339
func Now() string {
	return time.Now().Format(time.RFC3339)
}
