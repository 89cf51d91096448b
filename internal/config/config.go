// Package config 加载运行时核心的配置（novacore.toml）
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// 常量定义
const (
	ConfigFileName = "novacore.toml" // 配置文件名
)

// Mode 并发模式
type Mode string

const (
	ModeSingle Mode = "single" // 单锁模式（全局解释器锁）
	ModeFree   Mode = "free"   // 细粒度模式（原子引用计数 + 每对象锁）
)

// Config 运行时配置
type Config struct {
	Alloc       AllocConfig       `toml:"alloc"`
	GC          GCConfig          `toml:"gc"`
	Eval        EvalConfig        `toml:"eval"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Log         LogConfig         `toml:"log"`
}

// AllocConfig 分配器配置
type AllocConfig struct {
	// ArenaSize 每个 arena 的字节数，必须是 PoolSize 的整数倍
	ArenaSize int `toml:"arena_size"`

	// PoolSize 每个 pool 的字节数
	PoolSize int `toml:"pool_size"`

	// MaxArenas arena 数量上限（0 表示不限制）
	MaxArenas int `toml:"max_arenas"`

	// MaxHeapBytes 小对象与大对象合计字节上限（0 表示不限制）
	MaxHeapBytes int64 `toml:"max_heap_bytes"`

	// CacheHighWater 线程空闲链表每个尺寸类的上限
	CacheHighWater int `toml:"cache_high_water"`

	// UseMmap 是否通过 mmap 申请 arena
	UseMmap bool `toml:"use_mmap"`
}

// GCConfig 循环回收器配置
type GCConfig struct {
	Enabled    bool     `toml:"enabled"`
	Thresholds [3]int   `toml:"thresholds"`
	Debug      []string `toml:"debug"` // stats / collectable / saveall
}

// EvalConfig 解释循环配置
type EvalConfig struct {
	// CheckInterval 每执行多少条指令进行一次检查点
	CheckInterval int `toml:"check_interval"`

	// RecursionLimit 最大调用深度
	RecursionLimit int `toml:"recursion_limit"`
}

// ConcurrencyConfig 并发协调器配置
type ConcurrencyConfig struct {
	Mode Mode `toml:"mode"`

	// SwitchInterval 单锁模式下的强制切换时间片
	SwitchInterval Duration `toml:"switch_interval"`

	// HandoffAfter 细粒度锁在等待者停放多久后直接移交
	HandoffAfter Duration `toml:"handoff_after"`

	// DebugLocks 记录锁持有者，检测同线程重复加锁
	DebugLocks bool `toml:"debug_locks"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `toml:"level"`  // debug / info / warn / error
	Format      string `toml:"format"` // json / console
	Development bool   `toml:"development"`
}

// Duration 可从 TOML 字符串（如 "5ms"）解析的时间间隔
type Duration struct {
	time.Duration
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText 实现 encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Alloc: AllocConfig{
			ArenaSize:      256 << 10,
			PoolSize:       16 << 10,
			CacheHighWater: 64,
			UseMmap:        true,
		},
		GC: GCConfig{
			Enabled:    true,
			Thresholds: [3]int{700, 10, 10},
		},
		Eval: EvalConfig{
			CheckInterval:  100,
			RecursionLimit: 1000,
		},
		Concurrency: ConcurrencyConfig{
			Mode:           ModeSingle,
			SwitchInterval: Duration{5 * time.Millisecond},
			HandoffAfter:   Duration{time.Millisecond},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load 从文件加载配置，未出现的字段保持默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 TOML 配置内容
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find 从 start 目录向上查找配置文件，找不到返回空字符串
func Find(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ConfigFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadFor 为某个编译单元查找并加载配置，找不到时返回默认配置
func LoadFor(unitPath string) (*Config, string, error) {
	path := Find(filepath.Dir(unitPath))
	if path == "" {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate 校验配置，所有问题一并返回
func (c *Config) Validate() error {
	var err error

	a := c.Alloc
	if a.PoolSize <= 0 || a.PoolSize%4096 != 0 {
		err = multierr.Append(err, fmt.Errorf("alloc.pool_size must be a positive multiple of 4096, got %d", a.PoolSize))
	} else if a.ArenaSize < a.PoolSize || a.ArenaSize%a.PoolSize != 0 {
		err = multierr.Append(err, fmt.Errorf("alloc.arena_size must be a multiple of pool_size, got %d", a.ArenaSize))
	}
	if a.MaxArenas < 0 {
		err = multierr.Append(err, fmt.Errorf("alloc.max_arenas must not be negative"))
	}
	if a.MaxHeapBytes < 0 {
		err = multierr.Append(err, fmt.Errorf("alloc.max_heap_bytes must not be negative"))
	}
	if a.CacheHighWater < 2 {
		err = multierr.Append(err, fmt.Errorf("alloc.cache_high_water must be at least 2, got %d", a.CacheHighWater))
	}

	for i, t := range c.GC.Thresholds {
		if t < 0 {
			err = multierr.Append(err, fmt.Errorf("gc.thresholds[%d] must not be negative", i))
		}
	}
	for _, d := range c.GC.Debug {
		switch d {
		case "stats", "collectable", "saveall":
		default:
			err = multierr.Append(err, fmt.Errorf("gc.debug: unknown flag %q", d))
		}
	}

	if c.Eval.CheckInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("eval.check_interval must be positive"))
	}
	if c.Eval.RecursionLimit <= 0 {
		err = multierr.Append(err, fmt.Errorf("eval.recursion_limit must be positive"))
	}

	switch c.Concurrency.Mode {
	case ModeSingle, ModeFree:
	default:
		err = multierr.Append(err, fmt.Errorf("concurrency.mode must be %q or %q, got %q", ModeSingle, ModeFree, c.Concurrency.Mode))
	}
	if c.Concurrency.SwitchInterval.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("concurrency.switch_interval must be positive"))
	}
	if c.Concurrency.HandoffAfter.Duration < 0 {
		err = multierr.Append(err, fmt.Errorf("concurrency.handoff_after must not be negative"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return err
}
