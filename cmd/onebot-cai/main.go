package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"OneBotCAI/internal/bridge"
	_ "OneBotCAI/internal/chat/loopback"
	"OneBotCAI/internal/config"
	"OneBotCAI/internal/onebot"
)

// 构建时通过 -ldflags 写入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if Version != "dev" {
		onebot.Version = Version
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "onebot-cai",
		Short:         "QQ 与 OneBot 12 之间的桥接",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join("data", "config.yaml"), "配置文件路径")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "启动桥接",
			RunE: func(*cobra.Command, []string) error {
				return run(configPath)
			},
		},
		&cobra.Command{
			Use:   "gen-config",
			Short: "生成默认配置文件",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := genConfig(configPath); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "已生成配置:", configPath)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "显示版本",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "onebot-cai %s (%s) OneBot/%s\n", onebot.Version, BuildTime, onebot.OneBotVersion)
			},
		},
	)
	return root
}

// run 启动核心服务，阻塞直到收到中断信号后优雅关闭
func run(configPath string) error {
	cfg, closeLog, err := setup(configPath)
	if err != nil || cfg == nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bridge.NewCore(cfg)
	if err != nil {
		slog.Error("启动失败", "err", err)
		return err
	}
	if err := app.Start(ctx); err != nil {
		slog.Error("启动失败", "err", err)
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = app.Stop(stopCtx)
		return err
	}
	slog.Info("OneBot CAI 已启动", "version", onebot.Version, "pid", os.Getpid())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("停止中...")
	stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return app.Stop(stopCtx)
}

func genConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return config.SaveConfig(path, config.DefaultConfig())
}

// setup 加载配置并初始化日志
// 配置文件不存在时生成默认配置并返回 nil，调用方应直接退出
// 返回的函数关闭日志文件，应在退出前调用
func setup(configPath string) (*config.Config, func(), error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := genConfig(configPath); err != nil {
			return nil, nil, fmt.Errorf("生成配置: %w", err)
		}
		slog.Info("生成配置成功，请修改后重新启动", "path", configPath)
		return nil, nil, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, nil, fmt.Errorf("配置无效: %w", err)
	}

	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, err
	}
	logFile, err := os.OpenFile(
		filepath.Join(logDir, fmt.Sprintf("onebot-cai_%s.log", time.Now().Format("2006-01-02_15-04-05"))),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0666,
	)
	if err != nil {
		return nil, nil, err
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000"))}
			}
			return a
		},
	})))
	closeLog := func() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
		_ = logFile.Close()
	}
	return cfg, closeLog, nil
}
