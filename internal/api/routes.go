package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/netops-gin/internal/config"
	"github.com/mautops/netops-gin/internal/monitor"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/service"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRoutes 配置路由
// monitor 为 nil 时仪表盘与诊断端点不注册(执行器独立部署时)
func SetupRoutes(cfg *config.Config, tasks *service.TaskService, reg *registry.Registry, engine *monitor.Engine, db *gorm.DB, logger *logrus.Logger) *gin.Engine {
	if config.IsProduction(cfg) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(logger))
	router.Use(CORSMiddleware(cfg.CORS.AllowedOrigins))
	router.Use(ErrorHandlerMiddleware())

	adminOnly := AdminRequired(cfg.Auth)

	// 健康检查
	healthController := NewHealthController(db)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	// 设备注册表
	deviceController := NewDeviceController(reg)
	devices := router.Group("/devices")
	{
		devices.GET("", deviceController.List)
		devices.GET("/:id", deviceController.Get)
		devices.POST("", adminOnly, deviceController.Create)
		devices.PUT("/:id", adminOnly, deviceController.Update)
		devices.DELETE("/:id", adminOnly, deviceController.Delete)
	}

	// 任务受理与审批
	taskController := NewTaskController(tasks)
	dhcp := router.Group("/dhcp")
	{
		dhcp.POST("/submit", taskController.SubmitDHCP)
		dhcp.GET("/status/:id", taskController.Status)
		dhcp.POST("/approve/:id", adminOnly, taskController.Approve)
		dhcp.POST("/reject/:id", adminOnly, taskController.Reject)
		dhcp.GET("/pending", taskController.Pending)
	}
	router.POST("/routes/submit", taskController.SubmitRoute)
	router.POST("/vpn/submit", taskController.SubmitVPN)
	router.POST("/batch_address/submit", taskController.SubmitBatchAddress)

	taskGroup := router.Group("/tasks")
	{
		taskGroup.GET("", taskController.List)
		taskGroup.GET("/status/:id", taskController.Status)
		taskGroup.GET("/pending", taskController.Pending)
		taskGroup.GET("/history/:id", taskController.History)
	}

	// 仪表盘与诊断
	if engine != nil {
		dashboardController := NewDashboardController(engine)
		router.GET("/dashboard/status", dashboardController.Status)
		devices.POST("/:id/refresh", adminOnly, dashboardController.Refresh)
		devices.POST("/:id/repair/interface", adminOnly, dashboardController.RepairInterface)
		devices.POST("/:id/reboot", adminOnly, dashboardController.Reboot)
	}

	return router
}
