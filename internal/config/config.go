package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/nexus/internal/logger"
	"github.com/loykin/nexus/internal/memory"
	"github.com/loykin/nexus/internal/process"
	"github.com/loykin/nexus/internal/scheduler"
	"github.com/loykin/nexus/internal/ticker"
)

// EnvPrefix namespaces environment overrides, e.g. NEXUS_KERNEL_QUANTUM.
const EnvPrefix = "NEXUS"

// Config represents the top-level TOML structure.
type Config struct {
	Kernel     KernelConfig     `toml:"kernel" mapstructure:"kernel"`
	Log        LogConfig        `toml:"log" mapstructure:"log"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`
	Simulation SimulationConfig `toml:"simulation" mapstructure:"simulation"`
	Users      []UserConfig     `toml:"users" mapstructure:"users"`
	Files      []FileConfig     `toml:"files" mapstructure:"files"`
	Processes  []ProcConfig     `toml:"processes" mapstructure:"processes"`
}

type KernelConfig struct {
	Quantum       int    `toml:"quantum" mapstructure:"quantum"`
	MaxCPUTime    int    `toml:"max_cpu_time" mapstructure:"max_cpu_time"`
	TotalMemory   int    `toml:"total_memory" mapstructure:"total_memory"`
	PageSize      int    `toml:"page_size" mapstructure:"page_size"`
	ReclaimOnExit bool   `toml:"reclaim_on_exit" mapstructure:"reclaim_on_exit"`
	TickSchedule  string `toml:"tick_schedule" mapstructure:"tick_schedule"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	Source     bool   `toml:"source" mapstructure:"source"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen        string    `toml:"listen" mapstructure:"listen"`
	BasePath      string    `toml:"base_path" mapstructure:"base_path"`
	MetricsListen string    `toml:"metrics_listen" mapstructure:"metrics_listen"`
	RequireAuth   bool      `toml:"require_auth" mapstructure:"require_auth"`
	TLS           TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig serves the API over HTTPS. CertFile and KeyFile win over Dir;
// with AutoGenerate a self-signed pair is written to Dir when missing.
type TLSConfig struct {
	Enabled      bool   `toml:"enabled" mapstructure:"enabled"`
	CertFile     string `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string `toml:"key_file" mapstructure:"key_file"`
	Dir          string `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool   `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string `toml:"min_version" mapstructure:"min_version"`
}

type HistoryConfig struct {
	DSNs     []string `toml:"dsns" mapstructure:"dsns"`
	RingSize int      `toml:"ring_size" mapstructure:"ring_size"`
}

type SimulationConfig struct {
	Cycles   int           `toml:"cycles" mapstructure:"cycles"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Allocate bool          `toml:"allocate" mapstructure:"allocate"`
}

type UserConfig struct {
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
}

type FileConfig struct {
	Name    string `toml:"name" mapstructure:"name"`
	Content string `toml:"content" mapstructure:"content"`
}

type ProcConfig struct {
	Name     string `toml:"name" mapstructure:"name"`
	Priority int    `toml:"priority" mapstructure:"priority"`
	Memory   int    `toml:"memory" mapstructure:"memory"`
}

// Default returns the built-in system: two accounts, two seeded files and
// the four-process demo workload run for ten one-second cycles.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			Quantum:      scheduler.DefaultQuantum,
			MaxCPUTime:   scheduler.DefaultMaxCPUTime,
			TotalMemory:  memory.DefaultTotalMemory,
			PageSize:     memory.DefaultPageSize,
			TickSchedule: "@every 1s",
		},
		Log: LogConfig{
			Level:      string(logger.LevelInfo),
			Format:     string(logger.FormatText),
			Color:      true,
			TimeStamps: true,
			MaxSizeMB:  logger.DefaultMaxSizeMB,
			MaxBackups: logger.DefaultMaxBackups,
			MaxAgeDays: logger.DefaultMaxAgeDays,
		},
		Server: ServerConfig{
			Listen:   ":8080",
			BasePath: "/api",
		},
		History: HistoryConfig{RingSize: 256},
		Simulation: SimulationConfig{
			Cycles:   10,
			Interval: time.Second,
		},
		Users: []UserConfig{
			{Username: "admin", Password: "admin123"},
			{Username: "user", Password: "user123"},
		},
		Files: []FileConfig{
			{Name: "readme.txt", Content: "Welcome to NexusOS"},
			{Name: "system.log", Content: "System log"},
		},
		Processes: []ProcConfig{
			{Name: "browser", Priority: 2, Memory: process.DefaultMemoryRequired},
			{Name: "editor", Priority: 1, Memory: process.DefaultMemoryRequired},
			{Name: "calculator", Priority: 1, Memory: process.DefaultMemoryRequired},
			{Name: "player", Priority: 3, Memory: process.DefaultMemoryRequired},
		},
	}
}

// LoadConfig reads a TOML file on top of Default and applies NEXUS_*
// environment overrides. Lists given in the file replace the defaults.
// An empty path yields the defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	d := Default()
	if cfg.Users == nil {
		cfg.Users = d.Users
	}
	if cfg.Files == nil {
		cfg.Files = d.Files
	}
	if cfg.Processes == nil {
		cfg.Processes = d.Processes
	} else {
		fillOmittedProcFields(v, cfg.Processes)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every scalar key; AutomaticEnv only resolves known keys.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("kernel.quantum", d.Kernel.Quantum)
	v.SetDefault("kernel.max_cpu_time", d.Kernel.MaxCPUTime)
	v.SetDefault("kernel.total_memory", d.Kernel.TotalMemory)
	v.SetDefault("kernel.page_size", d.Kernel.PageSize)
	v.SetDefault("kernel.reclaim_on_exit", d.Kernel.ReclaimOnExit)
	v.SetDefault("kernel.tick_schedule", d.Kernel.TickSchedule)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.color", d.Log.Color)
	v.SetDefault("log.timestamps", d.Log.TimeStamps)
	v.SetDefault("log.source", d.Log.Source)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.metrics_listen", d.Server.MetricsListen)
	v.SetDefault("server.require_auth", d.Server.RequireAuth)
	v.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	v.SetDefault("server.tls.cert_file", d.Server.TLS.CertFile)
	v.SetDefault("server.tls.key_file", d.Server.TLS.KeyFile)
	v.SetDefault("server.tls.dir", d.Server.TLS.Dir)
	v.SetDefault("server.tls.auto_generate", d.Server.TLS.AutoGenerate)
	v.SetDefault("server.tls.min_version", d.Server.TLS.MinVersion)

	v.SetDefault("history.ring_size", d.History.RingSize)

	v.SetDefault("simulation.cycles", d.Simulation.Cycles)
	v.SetDefault("simulation.interval", d.Simulation.Interval)
	v.SetDefault("simulation.allocate", d.Simulation.Allocate)
}

// Validate rejects configurations the kernel cannot run with.
func (c *Config) Validate() error {
	var errs []error
	k := c.Kernel
	if k.Quantum < 1 {
		errs = append(errs, fmt.Errorf("kernel.quantum must be >= 1, got %d", k.Quantum))
	}
	if k.MaxCPUTime < 1 {
		errs = append(errs, fmt.Errorf("kernel.max_cpu_time must be >= 1, got %d", k.MaxCPUTime))
	}
	if k.PageSize < 1 {
		errs = append(errs, fmt.Errorf("kernel.page_size must be >= 1, got %d", k.PageSize))
	} else if k.TotalMemory < k.PageSize {
		errs = append(errs, fmt.Errorf("kernel.total_memory (%d) smaller than page_size (%d)", k.TotalMemory, k.PageSize))
	}
	if k.TickSchedule != "" {
		if _, err := ticker.ParseSchedule(k.TickSchedule); err != nil {
			errs = append(errs, fmt.Errorf("kernel.tick_schedule: %w", err))
		}
	}
	if _, err := logger.ParseLevel(logger.Level(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if t := c.Server.TLS; t.Enabled && t.Dir == "" && (t.CertFile == "" || t.KeyFile == "") {
		errs = append(errs, errors.New("server.tls: enabled but neither cert_file/key_file nor dir is set"))
	}
	if c.Simulation.Cycles < 0 {
		errs = append(errs, fmt.Errorf("simulation.cycles must be >= 0"))
	}
	seen := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		if strings.TrimSpace(u.Username) == "" {
			errs = append(errs, fmt.Errorf("users[%d]: username is required", i))
			continue
		}
		if _, dup := seen[u.Username]; dup {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate username %q", i, u.Username))
		}
		seen[u.Username] = struct{}{}
	}
	for i, f := range c.Files {
		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, fmt.Errorf("files[%d]: name is required", i))
		}
	}
	for i, p := range c.Processes {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("processes[%d]: name is required", i))
		}
	}
	return errors.Join(errs...)
}

// fillOmittedProcFields applies the process defaults to [[processes]]
// entries that leave priority or memory out. Explicit zeros are kept.
func fillOmittedProcFields(v *viper.Viper, procs []ProcConfig) {
	raw, ok := v.Get("processes").([]any)
	if !ok {
		return
	}
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok || i >= len(procs) {
			continue
		}
		if _, set := m["priority"]; !set {
			procs[i].Priority = process.DefaultPriority
		}
		if _, set := m["memory"]; !set {
			procs[i].Memory = process.DefaultMemoryRequired
		}
	}
}

// Logger converts the flat [log] section into the logger package config.
func (c LogConfig) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(c.Level),
			Format:     logger.Format(c.Format),
			Color:      c.Color,
			TimeStamps: c.TimeStamps,
			Source:     c.Source,
		},
		File: logger.FileConfig{
			Dir:        c.Dir,
			Path:       c.Path,
			MaxSizeMB:  c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAgeDays: c.MaxAgeDays,
			Compress:   c.Compress,
		},
	}
}
