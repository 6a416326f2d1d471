package monitor

import (
	"encoding/json"
	"time"

	"github.com/mautops/netops-gin/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot 单台设备的监控快照
// Freshness 描述数据新鲜度,与可达性独立上报
type Snapshot struct {
	DeviceID     int                     `json:"device_id"`
	DeviceName   string                  `json:"device_name"`
	Timestamp    time.Time               `json:"timestamp"`
	Reachability string                  `json:"reachability"`
	Freshness    string                  `json:"freshness"`
	CPUPct       float64                 `json:"cpu_pct"`
	MemoryPct    float64                 `json:"memory_pct"`
	Interfaces   []model.InterfaceStatus `json:"interfaces"`
}

// Online 是否算在线
func (s *Snapshot) Online() bool {
	return s.Reachability == model.ReachabilityReachable || s.Reachability == model.ReachabilityWarning
}

// persistSnapshot 写最新快照并追加历史行
func persistSnapshot(db *gorm.DB, snap *Snapshot) error {
	raw, err := json.Marshal(snap.Interfaces)
	if err != nil {
		return err
	}

	row := &model.DeviceStatusModel{
		DeviceID:     snap.DeviceID,
		Timestamp:    snap.Timestamp,
		Reachability: snap.Reachability,
		CPUPct:       snap.CPUPct,
		MemoryPct:    snap.MemoryPct,
		Interfaces:   datatypes.JSON(raw),
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			UpdateAll: true,
		}).Create(row).Error; err != nil {
			return err
		}
		history := &model.DeviceStatusHistoryModel{
			DeviceID:     snap.DeviceID,
			Timestamp:    snap.Timestamp,
			Reachability: snap.Reachability,
			CPUPct:       snap.CPUPct,
			MemoryPct:    snap.MemoryPct,
			Interfaces:   datatypes.JSON(raw),
		}
		return tx.Create(history).Error
	})
}

// loadSnapshot 从最新快照表恢复
func loadSnapshot(db *gorm.DB, deviceID int) (*Snapshot, error) {
	var row model.DeviceStatusModel
	if err := db.Where("device_id = ?", deviceID).First(&row).Error; err != nil {
		return nil, err
	}

	snap := &Snapshot{
		DeviceID:     row.DeviceID,
		Timestamp:    row.Timestamp,
		Reachability: row.Reachability,
		CPUPct:       row.CPUPct,
		MemoryPct:    row.MemoryPct,
	}
	if len(row.Interfaces) > 0 {
		_ = json.Unmarshal(row.Interfaces, &snap.Interfaces)
	}
	return snap, nil
}

// recordTraffic 追加流量时序行
func recordTraffic(db *gorm.DB, deviceIP, iface string, inputBps, outputBps int64, at time.Time) error {
	return db.Create(&model.TrafficDataModel{
		DeviceIP:   deviceIP,
		Interface:  iface,
		InputBps:   inputBps,
		OutputBps:  outputBps,
		RecordedAt: at,
	}).Error
}

// trimHistory 删除超过保留窗口的历史行
func trimHistory(db *gorm.DB, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	if err := db.Where("timestamp < ?", cutoff).
		Delete(&model.DeviceStatusHistoryModel{}).Error; err != nil {
		return err
	}
	return db.Where("recorded_at < ?", cutoff).
		Delete(&model.TrafficDataModel{}).Error
}
