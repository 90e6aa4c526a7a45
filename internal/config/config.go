// Package config 读取、校验与生成 data/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"OneBotCAI/internal/chat"
	"OneBotCAI/internal/onebot"
)

// 环境变量前缀，用于覆盖配置文件中的敏感项
const envPrefix = "ONEBOT_CAI_"

// Config 应用配置
type Config struct {
	LogLevel  string          `yaml:"log_level"`  // 日志级别: debug / info / warn / error
	DataDir   string          `yaml:"data_dir"`   // 数据目录
	Account   AccountConfig   `yaml:"account"`    // 账号
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`  // 心跳
	HTTP      HTTPConfig      `yaml:"http"`       // HTTP 与 Webhook
	WS        WSConfig        `yaml:"ws"`         // 正向 WebSocket
	WSReverse ReverseConfig   `yaml:"ws_reverse"` // 反向 WebSocket
	Storage   StorageConfig   `yaml:"storage"`    // 存储
	Media     MediaConfig     `yaml:"media"`      // 媒体转码
	SendRate  float64         `yaml:"send_rate"`  // 每秒最多发送消息数，0 表示不限制
	Metrics   MetricsConfig   `yaml:"metrics"`    // 指标
	// AccessToken 所有连接方式共用的鉴权令牌
	AccessToken string `yaml:"access_token,omitempty"`
}

// AccountConfig 登录账号
type AccountConfig struct {
	Driver   string `yaml:"driver"`   // 协议驱动名称
	UIN      int64  `yaml:"uin"`      // 账号
	Password string `yaml:"password"` // 密码
	Status   int    `yaml:"status"`   // 在线状态
	Protocol string `yaml:"protocol"` // 设备协议: ANDROID_PHONE / ANDROID_WATCH / MACOS / IPAD
}

// HeartbeatConfig 心跳元事件
type HeartbeatConfig struct {
	Enabled  bool  `yaml:"enabled"`
	Interval int64 `yaml:"interval"` // 毫秒
}

// HTTPConfig HTTP 动作接口
type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	EventEnabled    bool          `yaml:"event_enabled"`     // 是否启用 get_latest_events
	EventBufferSize int           `yaml:"event_buffer_size"` // 事件缓冲区大小，0 表示不限制
	Webhook         WebhookConfig `yaml:"webhook"`
}

// WebhookConfig HTTP Webhook 推送
type WebhookConfig struct {
	URL     string `yaml:"url"`     // 为空时不推送
	Timeout int64  `yaml:"timeout"` // 毫秒
}

// WSConfig 正向 WebSocket
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ReverseConfig 反向 WebSocket
type ReverseConfig struct {
	Enabled           bool   `yaml:"enabled"`
	URL               string `yaml:"url"`
	ReconnectInterval int64  `yaml:"reconnect_interval"` // 毫秒
	Encoding          string `yaml:"encoding"`           // json / msgpack
}

// StorageConfig 存储
type StorageConfig struct {
	Driver    string          `yaml:"driver"` // pebble / sqlite
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig 定期清理过期的消息与事件
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // 五段 cron 表达式
	Days    int    `yaml:"days"` // 保留天数
}

// MediaConfig 语音、视频转码
type MediaConfig struct {
	FFmpeg      string `yaml:"ffmpeg"`       // ffmpeg 可执行文件
	SilkEncoder string `yaml:"silk_encoder"` // silk 编码器，为空时不转码语音
	MaxSize     int64  `yaml:"max_size"`     // 下载文件大小上限（字节），0 表示不限制
}

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Listen string `yaml:"listen"` // 为空时不提供
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		DataDir:  "data",
		Account: AccountConfig{
			Driver:   "loopback",
			Protocol: "IPAD",
		},
		Heartbeat: HeartbeatConfig{Enabled: true, Interval: 3000},
		HTTP: HTTPConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    5700,
			Webhook: WebhookConfig{Timeout: 5000},
		},
		WS: WSConfig{Host: "127.0.0.1", Port: 6700},
		WSReverse: ReverseConfig{
			URL:               "ws://127.0.0.1:8080/onebot/v12/ws",
			ReconnectInterval: 3000,
			Encoding:          "json",
		},
		Storage: StorageConfig{
			Driver:    "pebble",
			Retention: RetentionConfig{Cron: "0 4 * * *", Days: 30},
		},
		Media: MediaConfig{FFmpeg: "ffmpeg", MaxSize: 100 << 20},
	}
}

// LoadConfig 读取配置文件，未出现的项保持默认值
// 随后加载工作目录下的 .env（如存在）并应用环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析 %s: %w", path, err)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 用 ONEBOT_CAI_* 环境变量覆盖账号与令牌
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(envPrefix + "UIN"); ok {
		uin, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sUIN: %w", envPrefix, err)
		}
		c.Account.UIN = uin
	}
	if v, ok := os.LookupEnv(envPrefix + "PASSWORD"); ok {
		c.Account.Password = v
	}
	if v, ok := os.LookupEnv(envPrefix + "ACCESS_TOKEN"); ok {
		c.AccessToken = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	return nil
}

// Check 校验配置
func (c *Config) Check() error {
	switch c.Account.Protocol {
	case "", "ANDROID_PHONE", "ANDROID_WATCH", "MACOS", "IPAD":
	default:
		return fmt.Errorf("未知的设备协议: %s", c.Account.Protocol)
	}
	if _, ok := chat.Lookup(c.Account.Driver); !ok {
		return fmt.Errorf("未知的协议驱动: %s", c.Account.Driver)
	}
	if !c.HTTP.Enabled && !c.WS.Enabled && !c.WSReverse.Enabled {
		return errors.New("至少需要启用一种连接方式")
	}
	if c.WSReverse.Enabled && c.WSReverse.URL == "" {
		return errors.New("已启用反向 WebSocket 但未配置 url")
	}
	if _, err := onebot.ParseEncoding(c.WSReverse.Encoding); err != nil {
		return err
	}
	if c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("心跳间隔必须大于 0: %d", c.Heartbeat.Interval)
	}
	switch c.Storage.Driver {
	case "", "pebble", "sqlite":
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}
	if r := c.Storage.Retention; r.Enabled {
		if !gronx.IsValid(r.Cron) {
			return fmt.Errorf("无效的 cron 表达式: %s", r.Cron)
		}
		if r.Days <= 0 {
			return fmt.Errorf("保留天数必须大于 0: %d", r.Days)
		}
	}
	if c.SendRate < 0 {
		return fmt.Errorf("发送速率不能为负: %v", c.SendRate)
	}
	return nil
}

// SaveConfig 写入配置文件
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Millis 将毫秒配置值转为 time.Duration
func Millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Addr 拼接监听地址
func Addr(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
