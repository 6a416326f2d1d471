package service

import (
	"github.com/mautops/netops-gin/internal/monitor"
	"github.com/mautops/netops-gin/internal/store"
	"github.com/mautops/netops-gin/internal/websocket/message"
)

// SnapshotProvider 为新接入的订阅者提供状态快照
// 先给仪表盘聚合,再给所有未到终态的任务,之后订阅者只收增量
type SnapshotProvider struct {
	store   *store.Store
	monitor *monitor.Engine
}

// NewSnapshotProvider 创建快照提供者,monitor 可为 nil
func NewSnapshotProvider(taskStore *store.Store, engine *monitor.Engine) *SnapshotProvider {
	return &SnapshotProvider{store: taskStore, monitor: engine}
}

// Snapshot 按下发顺序返回快照消息
func (p *SnapshotProvider) Snapshot() []interface{} {
	var messages []interface{}

	if p.monitor != nil {
		messages = append(messages, p.monitor.Dashboard())
	}

	tasks, err := p.store.ListNonTerminal(100)
	if err != nil {
		return messages
	}
	for _, task := range tasks {
		messages = append(messages, message.TaskStatusChangeFrom(task))
	}
	return messages
}
