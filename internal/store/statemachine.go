package store

import (
	"github.com/mautops/netops-gin/internal/model"
)

// transitions 任务状态机的边表
// 终态(completed/failed/rejected)没有出边
var transitions = map[string][]string{
	model.StatusPendingApproval: {
		model.StatusApproved, // 审批通过
		model.StatusRejected, // 审批拒绝
		model.StatusPending,  // 保留边,外部不使用
	},
	model.StatusPending: {
		model.StatusApproved, // 管理路径自动提升
	},
	model.StatusApproved: {
		model.StatusRunning, // 执行器认领
	},
	model.StatusRunning: {
		model.StatusCompleted,
		model.StatusFailed,
		model.StatusApproved, // 基础设施瞬时错误时有限次重新排队
	},
}

// InitialStatus 外部创建任务的初始状态
const InitialStatus = model.StatusPendingApproval

// CanTransition 判断 old → new 是否为状态机的合法边
func CanTransition(oldStatus, newStatus string) bool {
	for _, next := range transitions[oldStatus] {
		if next == newStatus {
			return true
		}
	}
	return false
}

// NextStates 返回某状态的全部合法后继,终态返回空
func NextStates(status string) []string {
	next := transitions[status]
	out := make([]string, len(next))
	copy(out, next)
	return out
}
