/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mautops/netops-gin/internal/api"
	"github.com/mautops/netops-gin/internal/config"
	"github.com/mautops/netops-gin/internal/database"
	"github.com/mautops/netops-gin/internal/executor"
	"github.com/mautops/netops-gin/internal/gateway"
	"github.com/mautops/netops-gin/internal/registry"
	"github.com/mautops/netops-gin/internal/store"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the task executor",
	Long: `Start the task executor process. It continuously claims approved
tasks from the store and drives them to a terminal state against the
target devices. Run exactly one worker process per deployment.

Status changes are reported back to the fanout over WebSocket so that
connected dashboards see executor progress.`,
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

		// 4. 组装执行器
		gw := gateway.New(cfg.Gateway, nil, logger)
		defer gw.Close()

		reg := registry.New(db, cache, time.Duration(cfg.Redis.CacheTTL)*time.Second, logger)
		taskStore := store.NewStore(db)

		fanoutURL := fmt.Sprintf("ws://%s:%d/", cfg.Fanout.Host, cfg.Fanout.Port)
		if cfg.Fanout.Host == "" || cfg.Fanout.Host == "0.0.0.0" {
			fanoutURL = fmt.Sprintf("ws://127.0.0.1:%d/", cfg.Fanout.Port)
		}
		notifier := executor.NewWSNotifier(fanoutURL, logger)
		defer notifier.Close()

		exec := executor.New(cfg.Executor, taskStore, reg, gw, notifier, logger)

		// 5. 运行直到收到中断信号
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			logger.Info("shutting down worker...")
			cancel()
		}()

		exec.Run(ctx)
		logger.Info("worker exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().String("config", "", "Config file path (default: search in current directory, ./config, or $HOME/.netops-gin)")
}
