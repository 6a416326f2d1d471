/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mautops/netops-gin/internal/api"
	"github.com/mautops/netops-gin/internal/bus"
	"github.com/mautops/netops-gin/internal/config"
	"github.com/mautops/netops-gin/internal/database"
	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/monitor"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/service"
	"github.com/mautops/netops-gin/internal/store"
	"github.com/mautops/netops-gin/internal/websocket"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the intake API, fanout and monitor engine",
	Long: `Start the HTTP intake API together with the WebSocket fanout and
the device monitor engine. Task execution runs in a separate process,
see the worker command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// 2. 连接数据库
		db, err := database.ConnectWithRetry(cfg.Database, 5, time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}()

		// 3. 可选的 redis 读缓存
		var cache *redis.Client
		if cfg.Redis.Addr != "" {
			cache = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := cache.Ping(context.Background()).Err(); err != nil {
				logger.WithError(err).Warn("redis unreachable, registry cache disabled")
				cache = nil
			}
			defer func() {
				if cache != nil {
					cache.Close()
				}
			}()
		}

		// 4. 组装组件
		eventBus := bus.New(cfg.Fanout.MaxQueue, logger)
		defer eventBus.Close()

		gw := gateway.New(cfg.Gateway, nil, logger)
		defer gw.Close()

		reg := registry.New(db, cache, time.Duration(cfg.Redis.CacheTTL)*time.Second, logger)
		taskStore := store.NewStore(db)
		taskService := service.NewTaskService(taskStore, eventBus, logger)
		engine := monitor.New(cfg.Monitor, reg, gw, eventBus, db, logger)
		snapshots := service.NewSnapshotProvider(taskStore, engine)
		fanout := websocket.NewFanout(cfg.Fanout, eventBus, snapshots, logger)
		// 没有连接的订阅者时不做细粒度流量采样
		engine.SetSubscriberSource(fanout.ClientCount)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go engine.Run(ctx)
		go func() {
			if err := fanout.Run(ctx); err != nil {
				logger.WithError(err).Error("fanout terminated")
			}
		}()

		// 5. 启动 HTTP 服务
		router := api.SetupRoutes(cfg, taskService, reg, engine, db, logger)
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("failed to start server")
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server...")
		cancel()

		// 优雅关闭
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Executor.ShutdownGrace)*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server forced to shutdown")
		}

		logger.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("config", "", "Config file path (default: search in current directory, ./config, or $HOME/.netops-gin)")
}
