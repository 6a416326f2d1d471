package model

import (
	"time"
)

// TrafficDataModel 接口流量时序数据,按 (device_ip, interface) 索引
type TrafficDataModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DeviceIP   string    `gorm:"column:device_ip;type:varchar(64);not null;index:idx_device_iface" json:"device_ip"`
	Interface  string    `gorm:"column:interface;type:varchar(64);not null;index:idx_device_iface" json:"interface"`
	InputBps   int64     `gorm:"column:input_bps;not null" json:"input_bps"`
	OutputBps  int64     `gorm:"column:output_bps;not null" json:"output_bps"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null;index" json:"recorded_at"`
}

// TableName 指定表名
func (TrafficDataModel) TableName() string {
	return "traffic_data"
}
