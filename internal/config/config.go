package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Cache   CacheConfig
	Notify  NotifyConfig
	Log     LogConfig
	Client  ClientConfig
	Session SessionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Store:   store,
		Cache:   cache,
		Notify:  loadNotifyConfig(),
		Log:     logCfg,
		Client:  client,
		Session: session,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(os.Getenv("CORS_ORIGINS"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// StoreConfig 描述问卷数据的存储位置。
type StoreConfig struct {
	// Path is the SQLite file; MemoryPath keeps everything in process.
	Path   string
	Atomic bool
}

// MemoryPath selects the in-memory store.
const MemoryPath = "memory"

// InMemory 表示是否使用内存存储。
func (c StoreConfig) InMemory() bool {
	return c.Path == MemoryPath
}

func loadStoreConfig() (StoreConfig, error) {
	atomic, err := parseBoolEnv("STORE_ATOMIC", true)
	if err != nil {
		return StoreConfig{}, err
	}
	return StoreConfig{
		Path:   getEnvOrDefault("DB_PATH", "data/survey.db"),
		Atomic: atomic,
	}, nil
}

// CacheConfig 描述试次缓存。
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

func loadCacheConfig() (CacheConfig, error) {
	ttl, err := parseDurationEnv("CACHE_TTL", 10*time.Minute)
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
		TTL:      ttl,
	}, nil
}

// NotifyConfig 描述保存通知的消息队列。
type NotifyConfig struct {
	RabbitURL string
	Exchange  string
}

// Enabled 表示是否配置了 RabbitMQ。
func (c NotifyConfig) Enabled() bool {
	return c.RabbitURL != ""
}

func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		RabbitURL: strings.TrimSpace(os.Getenv("RABBIT_URL")),
		Exchange:  getEnvOrDefault("NOTIFICATION_EXCHANGE", "survey-notifications"),
	}
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value: %q", level)
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value: %q", format)
	}
	return LogConfig{Level: level, Format: format}, nil
}

// ClientConfig 描述命令行客户端访问服务端的方式。
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadClientConfig() (ClientConfig, error) {
	timeout, err := parseDurationEnv("CLIENT_TIMEOUT", 30*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{
		BaseURL: getEnvOrDefault("SURVEY_SERVER", "http://localhost:8080"),
		Timeout: timeout,
	}, nil
}

// SessionConfig 描述会话状态机的节奏。
type SessionConfig struct {
	InterimDelay time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	delay, err := parseDurationEnv("INTERIM_DELAY", 0)
	if err != nil {
		return SessionConfig{}, err
	}
	if delay < 0 {
		return SessionConfig{}, fmt.Errorf("invalid INTERIM_DELAY value: %s", delay)
	}
	return SessionConfig{InterimDelay: delay}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv accepts Go durations ("750ms") or plain milliseconds ("750").
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
