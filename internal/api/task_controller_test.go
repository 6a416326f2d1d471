package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/service"
	"github.com/mautops/netops-gin/internal/store"
)

// fakeTasks 记录调用参数的任务服务替身
type fakeTasks struct {
	lastType     string
	lastParams   interface{}
	lastPriority int
	lastBy       string
	lastReason   string
	lastFilter   store.TaskFilter

	err     error
	view    *service.TaskView
	views   []*service.TaskView
	history []*model.TaskHistoryModel
}

func (f *fakeTasks) result() (*service.TaskView, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.view != nil {
		return f.view, nil
	}
	return &service.TaskView{
		TaskID:     "task-1",
		Status:     model.StatusPendingApproval,
		StatusText: service.StatusText(model.StatusPendingApproval),
		CreatedAt:  time.Now(),
	}, nil
}

func (f *fakeTasks) Submit(taskType string, params interface{}, priority int, requestedBy string) (*service.TaskView, error) {
	f.lastType, f.lastParams, f.lastPriority, f.lastBy = taskType, params, priority, requestedBy
	return f.result()
}

func (f *fakeTasks) Approve(taskID, approvedBy string) (*service.TaskView, error) {
	f.lastBy = approvedBy
	return f.result()
}

func (f *fakeTasks) Reject(taskID, reason, rejectedBy string) (*service.TaskView, error) {
	f.lastReason, f.lastBy = reason, rejectedBy
	return f.result()
}

func (f *fakeTasks) Get(taskID string) (*service.TaskView, error) {
	return f.result()
}

func (f *fakeTasks) List(filter store.TaskFilter, limit int) ([]*service.TaskView, error) {
	f.lastFilter = filter
	return f.views, f.err
}

func (f *fakeTasks) Pending(limit int) ([]*service.TaskView, error) {
	return f.views, f.err
}

func (f *fakeTasks) History(taskID string) ([]*model.TaskHistoryModel, error) {
	return f.history, f.err
}

func taskRouter(tasks TaskOperations) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware())

	ctl := NewTaskController(tasks)
	router.POST("/dhcp/submit", ctl.SubmitDHCP)
	router.GET("/dhcp/status/:id", ctl.Status)
	router.POST("/dhcp/approve/:id", ctl.Approve)
	router.POST("/dhcp/reject/:id", ctl.Reject)
	router.GET("/dhcp/pending", ctl.Pending)
	router.POST("/routes/submit", ctl.SubmitRoute)
	router.GET("/tasks", ctl.List)
	router.GET("/tasks/history/:id", ctl.History)
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitDHCPNormalizesInput(t *testing.T) {
	tasks := &fakeTasks{}
	router := taskRouter(tasks)

	w := doJSON(router, http.MethodPost, "/dhcp/submit", `{
		"device_ids": "1, 2",
		"pool_name": " office ",
		"network": "10.10.0.0",
		"mask": "255.255.255.0",
		"dns": "8.8.8.8,9.9.9.9"
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TaskTypeDHCP, tasks.lastType)

	params, ok := tasks.lastParams.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, params["device_ids"])
	assert.Equal(t, "office", params["pool_name"])
	// 多个 DNS 折叠为第一个
	assert.Equal(t, "8.8.8.8", params["dns"])
	assert.Equal(t, 1, params["lease_days"])

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "task-1", data["task_id"])
}

func TestSubmitDHCPArrayDeviceIDs(t *testing.T) {
	tasks := &fakeTasks{}
	router := taskRouter(tasks)

	w := doJSON(router, http.MethodPost, "/dhcp/submit", `{
		"device_ids": ["1", "2,3"],
		"pool_name": "office",
		"network": "10.10.0.0",
		"mask": "255.255.255.0"
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	params := tasks.lastParams.(map[string]interface{})
	assert.Equal(t, []string{"1", "2", "3"}, params["device_ids"])
}

func TestSubmitDHCPMissingRequiredField(t *testing.T) {
	router := taskRouter(&fakeTasks{})

	w := doJSON(router, http.MethodPost, "/dhcp/submit", `{
		"device_ids": ["1"],
		"network": "10.10.0.0"
	}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestSubmitDHCPMalformedBody(t *testing.T) {
	router := taskRouter(&fakeTasks{})

	w := doJSON(router, http.MethodPost, "/dhcp/submit", `{"device_ids": [`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid request body", resp.Error)
	assert.NotEmpty(t, resp.Detail)
}

func TestSubmitDHCPEmptyDeviceList(t *testing.T) {
	router := taskRouter(&fakeTasks{})

	w := doJSON(router, http.MethodPost, "/dhcp/submit", `{
		"device_ids": " , ",
		"pool_name": "office",
		"network": "10.10.0.0",
		"mask": "255.255.255.0"
	}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRouteExtractsPriority(t *testing.T) {
	tasks := &fakeTasks{}
	router := taskRouter(tasks)

	w := doJSON(router, http.MethodPost, "/routes/submit", `{
		"device_ids": ["1"],
		"kind": "static",
		"destination": "10.20.0.0",
		"mask": "255.255.0.0",
		"next_hop": "10.10.0.254",
		"priority": 5
	}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.TaskTypeRoute, tasks.lastType)
	assert.Equal(t, 5, tasks.lastPriority)

	params := tasks.lastParams.(map[string]interface{})
	assert.NotContains(t, params, "priority")
	assert.Equal(t, "static", params["kind"])
	assert.Equal(t, []string{"1"}, params["device_ids"])
}

func TestStatusNotFound(t *testing.T) {
	router := taskRouter(&fakeTasks{err: store.ErrNotFound})

	w := doJSON(router, http.MethodGet, "/dhcp/status/task-missing", "")

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not found", resp.Error)
}

func TestApproveIllegalTransition(t *testing.T) {
	router := taskRouter(&fakeTasks{err: store.ErrIllegalTransition})

	w := doJSON(router, http.MethodPost, "/dhcp/approve/task-1", "")

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "illegal status transition", resp.Error)
}

func TestApproveReturnsView(t *testing.T) {
	tasks := &fakeTasks{view: &service.TaskView{
		TaskID:     "task-1",
		Status:     model.StatusApproved,
		StatusText: service.StatusText(model.StatusApproved),
	}}
	router := taskRouter(tasks)

	w := doJSON(router, http.MethodPost, "/dhcp/approve/task-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, model.StatusApproved, data["status"])
	assert.Equal(t, "已审核", data["status_text"])
}

func TestRejectPassesReason(t *testing.T) {
	tasks := &fakeTasks{}
	router := taskRouter(tasks)

	w := doJSON(router, http.MethodPost, "/dhcp/reject/task-1", `{"reason":"窗口外变更"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "窗口外变更", tasks.lastReason)
}

func TestRejectAcceptsEmptyBody(t *testing.T) {
	tasks := &fakeTasks{}
	router := taskRouter(tasks)

	w := doJSON(router, http.MethodPost, "/dhcp/reject/task-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, tasks.lastReason)
}

func TestListPassesFilter(t *testing.T) {
	tasks := &fakeTasks{}
	router := taskRouter(tasks)

	w := doJSON(router, http.MethodGet, "/tasks?status=running&type=dhcp_config", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusRunning, tasks.lastFilter.Status)
	assert.Equal(t, model.TaskTypeDHCP, tasks.lastFilter.TaskType)
}

func TestStringListUnmarshal(t *testing.T) {
	var payload struct {
		IDs StringList `json:"ids"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"ids":"1, 2 ,3"}`), &payload))
	assert.Equal(t, StringList{"1", "2", "3"}, payload.IDs)

	require.NoError(t, json.Unmarshal([]byte(`{"ids":["4","5,6"]}`), &payload))
	assert.Equal(t, StringList{"4", "5", "6"}, payload.IDs)
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{registry.ErrDeviceNotFound, http.StatusNotFound},
		{store.ErrInvalidParams, http.StatusBadRequest},
		{store.ErrIllegalTransition, http.StatusBadRequest},
		{store.ErrConflict, http.StatusConflict},
		{&store.TransientError{Err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{&gateway.BusyError{Device: "sw-01"}, http.StatusServiceUnavailable},
		{&gateway.UnreachableError{Device: "sw-01", Err: errors.New("timeout")}, http.StatusBadGateway},
		{&gateway.DialogTimeout{Device: "sw-01", Command: "save"}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, Translate(tc.err).Code, tc.err.Error())
	}
}
