package model

import (
	"time"

	"gorm.io/datatypes"
)

// 设备可达性状态
const (
	ReachabilityReachable   = "reachable"
	ReachabilityUnreachable = "unreachable"
	ReachabilityUnknown     = "unknown"
	ReachabilityWarning     = "warning"
)

// 快照新鲜度,与可达性分离上报
const (
	FreshnessLive    = "live"
	FreshnessCached  = "cached"
	FreshnessStale   = "stale"
	FreshnessExpired = "expired"
)

// InterfaceStatus 单个接口的状态读数
type InterfaceStatus struct {
	Name         string `json:"name"`
	AdminState   string `json:"admin_state"` // up | down
	OperState    string `json:"oper_state"`  // up | down
	ErrorCounter int    `json:"error_counter"`
	InRateBps    int64  `json:"in_rate_bps"`
	OutRateBps   int64  `json:"out_rate_bps"`
}

// DeviceStatusModel 设备最新状态快照,每设备一行(latest-wins)
type DeviceStatusModel struct {
	DeviceID     int            `gorm:"column:device_id;primaryKey" json:"device_id"`
	Timestamp    time.Time      `gorm:"column:timestamp;not null" json:"timestamp"`
	Reachability string         `gorm:"column:reachability;type:varchar(16);not null" json:"reachability"`
	CPUPct       float64        `gorm:"column:cpu_pct" json:"cpu_pct"`
	MemoryPct    float64        `gorm:"column:memory_pct" json:"memory_pct"`
	Interfaces   datatypes.JSON `gorm:"column:interfaces" json:"interfaces"`
}

// TableName 指定表名
func (DeviceStatusModel) TableName() string {
	return "device_status"
}

// DeviceStatusHistoryModel 快照滚动历史,保留最近 30 天
type DeviceStatusHistoryModel struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DeviceID     int            `gorm:"column:device_id;not null;index" json:"device_id"`
	Timestamp    time.Time      `gorm:"column:timestamp;not null;index" json:"timestamp"`
	Reachability string         `gorm:"column:reachability;type:varchar(16);not null" json:"reachability"`
	CPUPct       float64        `gorm:"column:cpu_pct" json:"cpu_pct"`
	MemoryPct    float64        `gorm:"column:memory_pct" json:"memory_pct"`
	Interfaces   datatypes.JSON `gorm:"column:interfaces" json:"interfaces"`
}

// TableName 指定表名
func (DeviceStatusHistoryModel) TableName() string {
	return "device_status_history"
}
