package model

import (
	"errors"
	"time"
)

// 设备接入协议
const (
	ProtocolSSH    = "ssh"
	ProtocolTelnet = "telnet"
)

// DeviceModel 设备数据模型
// 凭证对任务层不透明,只有设备网关读取
type DeviceModel struct {
	ID          int       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Address     string    `gorm:"column:address;type:varchar(64);not null;index" json:"address"`
	Username    string    `gorm:"column:username;type:varchar(64)" json:"username"`
	Password    string    `gorm:"column:password;type:varchar(256)" json:"-"`
	Protocol    string    `gorm:"column:protocol;type:varchar(16);not null;default:'telnet'" json:"protocol"`
	Vendor      string    `gorm:"column:vendor;type:varchar(32);not null;default:'huawei'" json:"vendor"`
	Role        string    `gorm:"column:role;type:varchar(32)" json:"role"` // 交换机/路由器/防火墙等
	Enterprise  string    `gorm:"column:enterprise;type:varchar(64)" json:"enterprise"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (DeviceModel) TableName() string {
	return "devices"
}

// Validate 验证设备模型
func (dm *DeviceModel) Validate() error {
	if dm.Name == "" {
		return errors.New("device name is required")
	}
	if dm.Address == "" {
		return errors.New("device address is required")
	}
	if dm.Protocol != ProtocolSSH && dm.Protocol != ProtocolTelnet {
		return errors.New("device protocol must be ssh or telnet")
	}
	return nil
}
