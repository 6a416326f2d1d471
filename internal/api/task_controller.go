package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/mautops/netops-gin/internal/service"
	"github.com/mautops/netops-gin/internal/store"
)

// StringList 既接受 JSON 数组也接受逗号分隔的字符串
type StringList []string

// UnmarshalJSON 兼容 "1,2,3" 与 ["1","2","3"] 两种写法
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*l = splitAndTrim(v)
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				for _, part := range splitAndTrim(s) {
					out = append(out, part)
				}
			}
		}
		*l = out
	}
	return nil
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// firstOf 多值字段折叠为第一个值
func firstOf(s string) string {
	parts := splitAndTrim(s)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// TaskOperations 控制器依赖的任务服务能力
type TaskOperations interface {
	Submit(taskType string, params interface{}, priority int, requestedBy string) (*service.TaskView, error)
	Approve(taskID, approvedBy string) (*service.TaskView, error)
	Reject(taskID, reason, rejectedBy string) (*service.TaskView, error)
	Get(taskID string) (*service.TaskView, error)
	List(filter store.TaskFilter, limit int) ([]*service.TaskView, error)
	Pending(limit int) ([]*service.TaskView, error)
	History(taskID string) ([]*model.TaskHistoryModel, error)
}

// TaskController 任务受理与审批
type TaskController struct {
	tasks TaskOperations
}

// NewTaskController 创建任务控制器
func NewTaskController(tasks TaskOperations) *TaskController {
	return &TaskController{tasks: tasks}
}

// dhcpSubmitRequest DHCP 地址池下发请求
type dhcpSubmitRequest struct {
	DeviceIDs StringList `json:"device_ids" binding:"required"`
	PoolName  string     `json:"pool_name" binding:"required"`
	Network   string     `json:"network" binding:"required"`
	Mask      string     `json:"mask" binding:"required"`
	Gateway   string     `json:"gateway"`
	DNS       string     `json:"dns"`
	Domain    string     `json:"domain"`
	LeaseDays int        `json:"lease_days"`
	Priority  int        `json:"priority"`
}

// SubmitDHCP 受理 DHCP 配置任务
func (ctl *TaskController) SubmitDHCP(c *gin.Context) {
	var req dhcpSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(WrapError(err, http.StatusBadRequest, "invalid request body"))
		return
	}
	if len(req.DeviceIDs) == 0 {
		Error(c, http.StatusBadRequest, "device_ids is empty", "")
		return
	}
	if req.LeaseDays <= 0 {
		req.LeaseDays = 1
	}

	params := map[string]interface{}{
		"device_ids": []string(req.DeviceIDs),
		"pool_name":  strings.TrimSpace(req.PoolName),
		"network":    strings.TrimSpace(req.Network),
		"mask":       strings.TrimSpace(req.Mask),
		"gateway":    strings.TrimSpace(req.Gateway),
		"dns":        firstOf(req.DNS),
		"domain":     strings.TrimSpace(req.Domain),
		"lease_days": req.LeaseDays,
	}
	ctl.submit(c, model.TaskTypeDHCP, params, req.Priority)
}

// SubmitRoute 受理路由配置任务
func (ctl *TaskController) SubmitRoute(c *gin.Context) {
	ctl.submitRaw(c, model.TaskTypeRoute)
}

// SubmitVPN 受理 GRE 隧道部署任务
func (ctl *TaskController) SubmitVPN(c *gin.Context) {
	ctl.submitRaw(c, model.TaskTypeVPN)
}

// SubmitBatchAddress 受理批量地址配置任务
func (ctl *TaskController) SubmitBatchAddress(c *gin.Context) {
	ctl.submitRaw(c, model.TaskTypeBatchAddress)
}

// submitRaw 透传参数体受理任务,只统一归一化 device_ids
func (ctl *TaskController) submitRaw(c *gin.Context, taskType string) {
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(WrapError(err, http.StatusBadRequest, "invalid request body"))
		return
	}

	deviceIDs := normalizeDeviceIDs(req["device_ids"])
	if len(deviceIDs) == 0 {
		Error(c, http.StatusBadRequest, "device_ids is empty", "")
		return
	}
	req["device_ids"] = deviceIDs

	priority := 0
	if p, ok := req["priority"].(float64); ok {
		priority = int(p)
		delete(req, "priority")
	}
	ctl.submit(c, taskType, req, priority)
}

func normalizeDeviceIDs(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return splitAndTrim(v)
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, splitAndTrim(s)...)
			}
		}
		return out
	default:
		return nil
	}
}

func (ctl *TaskController) submit(c *gin.Context, taskType string, params interface{}, priority int) {
	view, err := ctl.tasks.Submit(taskType, params, priority, CurrentUser(c))
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, gin.H{
		"task_id": view.TaskID,
		"status":  view.Status,
	})
}

// Status 任务状态视图
func (ctl *TaskController) Status(c *gin.Context) {
	view, err := ctl.tasks.Get(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, view)
}

// Approve 审核通过
func (ctl *TaskController) Approve(c *gin.Context) {
	view, err := ctl.tasks.Approve(c.Param("id"), CurrentUser(c))
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, view)
}

// rejectRequest 拒绝请求
type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject 审核拒绝
func (ctl *TaskController) Reject(c *gin.Context) {
	var req rejectRequest
	// 空请求体也接受
	_ = c.ShouldBindJSON(&req)

	view, err := ctl.tasks.Reject(c.Param("id"), req.Reason, CurrentUser(c))
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, view)
}

// Pending 待审核任务列表
func (ctl *TaskController) Pending(c *gin.Context) {
	views, err := ctl.tasks.Pending(100)
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, views)
}

// List 带过滤器的任务列表
func (ctl *TaskController) List(c *gin.Context) {
	filter := store.TaskFilter{
		Status:   c.Query("status"),
		TaskType: c.Query("type"),
	}
	views, err := ctl.tasks.List(filter, 100)
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, views)
}

// History 任务状态变更历史
func (ctl *TaskController) History(c *gin.Context) {
	history, err := ctl.tasks.History(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	Success(c, history)
}
