// Package pkg 实现 minijvm 的项目配置
package pkg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// 常量定义
const (
	ConfigFileName = "minijvm.toml" // 配置文件名
	LogEnvVar      = "MINIJVM_LOG"  // 日志级别环境变量名
)

// Config 运行配置
type Config struct {
	Jit     JitConfig     `toml:"jit"`
	Runtime RuntimeConfig `toml:"runtime"`
}

// JitConfig JIT 配置段
type JitConfig struct {
	// Enabled 是否启用 JIT 编译
	Enabled bool `toml:"enabled"`

	// HotThreshold 循环头计数达到该值后开始录制
	HotThreshold int `toml:"hot_threshold"`

	// MaxTraceLength 单条轨迹的指令数上限
	MaxTraceLength int `toml:"max_trace_length"`

	// CacheMaxBytes 可执行内存总量上限（字节）
	CacheMaxBytes int `toml:"cache_max_bytes"`
}

// RuntimeConfig 运行时配置段
type RuntimeConfig struct {
	// Verbosity 日志级别: quiet / normal / debug
	Verbosity string `toml:"verbosity"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Jit: JitConfig{
			Enabled:        true,
			HotThreshold:   1,
			MaxTraceLength: 512,
			CacheMaxBytes:  1 << 20,
		},
		Runtime: RuntimeConfig{
			Verbosity: "normal",
		},
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Verbosity 返回生效的日志级别
// 优先级：环境变量 > 配置文件
func (c *Config) Verbosity() string {
	if env := os.Getenv(LogEnvVar); env != "" {
		return env
	}
	if c.Runtime.Verbosity == "" {
		return "normal"
	}
	return c.Runtime.Verbosity
}

// FindConfigFile 从指定路径向上查找配置文件
// 返回配置文件的完整路径，找不到则返回空字符串
func FindConfigFile(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	var dir string
	if info.IsDir() {
		dir = startPath
	} else {
		dir = filepath.Dir(startPath)
	}

	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
