package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/netops-gin/internal/model"
)

// DeviceOperations 控制器依赖的注册表能力
type DeviceOperations interface {
	List(ctx context.Context) ([]*model.DeviceModel, error)
	Get(ctx context.Context, id int) (*model.DeviceModel, error)
	Create(ctx context.Context, device *model.DeviceModel) error
	Update(ctx context.Context, id int, updates map[string]interface{}) (*model.DeviceModel, error)
	Delete(ctx context.Context, id int) error
}

// DeviceController 设备注册表管理
type DeviceController struct {
	registry DeviceOperations
}

// NewDeviceController 创建设备控制器
func NewDeviceController(reg DeviceOperations) *DeviceController {
	return &DeviceController{registry: reg}
}

// List 列出全部设备
func (ctl *DeviceController) List(c *gin.Context) {
	devices, err := ctl.registry.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, devices)
}

// Get 获取单台设备
func (ctl *DeviceController) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid device id", c.Param("id"))
		return
	}

	device, err := ctl.registry.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, device)
}

// createDeviceRequest 设备登记请求
type createDeviceRequest struct {
	Name        string `json:"name" binding:"required"`
	Address     string `json:"address" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Protocol    string `json:"protocol" binding:"required"`
	Vendor      string `json:"vendor"`
	Role        string `json:"role"`
	Enterprise  string `json:"enterprise"`
	Description string `json:"description"`
}

// Create 登记新设备
func (ctl *DeviceController) Create(c *gin.Context) {
	var req createDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	device := &model.DeviceModel{
		Name:        req.Name,
		Address:     req.Address,
		Username:    req.Username,
		Password:    req.Password,
		Protocol:    req.Protocol,
		Vendor:      req.Vendor,
		Role:        req.Role,
		Enterprise:  req.Enterprise,
		Description: req.Description,
	}
	if err := device.Validate(); err != nil {
		Error(c, http.StatusBadRequest, "invalid device", err.Error())
		return
	}
	if err := ctl.registry.Create(c.Request.Context(), device); err != nil {
		c.Error(err)
		return
	}
	Created(c, device)
}

// Update 更新设备字段
func (ctl *DeviceController) Update(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid device id", c.Param("id"))
		return
	}

	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	// 只接受白名单字段
	updates := make(map[string]interface{})
	for _, field := range []string{"name", "address", "username", "password", "protocol", "vendor", "role", "enterprise", "description"} {
		if value, ok := req[field]; ok {
			updates[field] = value
		}
	}
	if len(updates) == 0 {
		Error(c, http.StatusBadRequest, "no updatable fields in request", "")
		return
	}

	device, err := ctl.registry.Update(c.Request.Context(), id, updates)
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, device)
}

// Delete 删除设备
func (ctl *DeviceController) Delete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid device id", c.Param("id"))
		return
	}

	if err := ctl.registry.Delete(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}
	Success(c, gin.H{"deleted": id})
}
