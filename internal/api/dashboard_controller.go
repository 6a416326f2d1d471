package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/monitor"
	"github.com/mautops/netops-gin/internal/websocket/message"
)

// MonitorOperations 控制器依赖的监控引擎能力
type MonitorOperations interface {
	Dashboard() *message.DeviceStatus
	ForceRefresh(ctx context.Context, deviceID int) (*monitor.Snapshot, error)
	RepairInterface(ctx context.Context, deviceID int, iface string) (*gateway.Transcript, error)
	RebootDevice(ctx context.Context, deviceID int) (*gateway.Transcript, error)
}

// DashboardController 仪表盘与诊断操作
type DashboardController struct {
	monitor MonitorOperations
}

// NewDashboardController 创建仪表盘控制器
func NewDashboardController(engine MonitorOperations) *DashboardController {
	return &DashboardController{monitor: engine}
}

// Status 当前的聚合监控快照
func (ctl *DashboardController) Status(c *gin.Context) {
	Success(c, ctl.monitor.Dashboard())
}

// Refresh 强制重探单台设备,绕过缓存
func (ctl *DashboardController) Refresh(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid device id", c.Param("id"))
		return
	}

	snap, err := ctl.monitor.ForceRefresh(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, snap)
}

// repairRequest 接口自愈请求
type repairRequest struct {
	Interface string `json:"interface" binding:"required"`
}

// RepairInterface 对指定接口执行 shutdown / undo shutdown 自愈
func (ctl *DashboardController) RepairInterface(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid device id", c.Param("id"))
		return
	}

	var req repairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "interface is required", err.Error())
		return
	}

	transcript, err := ctl.monitor.RepairInterface(c.Request.Context(), id, req.Interface)
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, transcript)
}

// Reboot 远程重启设备
func (ctl *DashboardController) Reboot(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid device id", c.Param("id"))
		return
	}

	transcript, err := ctl.monitor.RebootDevice(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, transcript)
}
