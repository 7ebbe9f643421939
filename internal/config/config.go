package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Log         LogConfig        `toml:"log"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Accounting  AccountingConfig `toml:"accounting"`
	Client      ClientConfig     `toml:"client"`
	Screenshots ScreenshotConfig `toml:"screenshots"`
}

type LogConfig struct {
	Level string `toml:"level"`
	// File receives logs while the tracking screen owns the terminal.
	File string `toml:"file"`
}

type ServerConfig struct {
	Bind                 string `toml:"bind"`
	Port                 int    `toml:"port"`
	SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
	MaxUploadBytes       int64  `toml:"max_upload_bytes"`
}

type StorageConfig struct {
	DBPath        string `toml:"db_path"`
	ScreenshotDir string `toml:"screenshot_dir"`
}

// AccountingConfig holds the server-side accounting thresholds.
type AccountingConfig struct {
	WeekTimezone      string `toml:"week_timezone"`
	WeekStartDay      string `toml:"week_start_day"`
	StaleAfterSeconds int    `toml:"stale_after_seconds"`
	MergeGapSeconds   int    `toml:"merge_gap_seconds"`
	MinSessionSeconds int    `toml:"min_session_seconds"`
}

// ClientConfig holds the tracking client's settings.
type ClientConfig struct {
	ServerURL             string `toml:"server_url"`
	UserID                uint   `toml:"user_id"`
	AppName               string `toml:"app_name"`
	CheckIntervalSeconds  int    `toml:"check_interval_seconds"`
	FlushCooldownSeconds  int    `toml:"flush_cooldown_seconds"`
	MinSessionSeconds     int    `toml:"min_session_seconds"`
	HeartbeatSeconds      int    `toml:"heartbeat_seconds"`
	BroadcastStaleSeconds int    `toml:"broadcast_stale_seconds"`
}

type ScreenshotConfig struct {
	Enabled               bool `toml:"enabled"`
	FirstDelaySeconds     int  `toml:"first_delay_seconds"`
	IntervalSeconds       int  `toml:"interval_seconds"`
	MaxBytes              int  `toml:"max_bytes"`
	MinBytes              int  `toml:"min_bytes"`
	MaxAttempts           int  `toml:"max_attempts"`
	AcquireTimeoutSeconds int  `toml:"acquire_timeout_seconds"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", File: "~/.tally/tally.log"},
		Server: ServerConfig{
			Bind:                 "127.0.0.1",
			Port:                 8787,
			SweepIntervalSeconds: 30,
			MaxUploadBytes:       5 << 20,
		},
		Storage: StorageConfig{
			DBPath:        "~/.tally/tally.db",
			ScreenshotDir: "~/.tally/screenshots",
		},
		Accounting: AccountingConfig{
			WeekTimezone:      "UTC",
			WeekStartDay:      "monday",
			StaleAfterSeconds: 60,
			MergeGapSeconds:   300,
			MinSessionSeconds: 5,
		},
		Client: ClientConfig{
			ServerURL:             "http://127.0.0.1:8787",
			AppName:               "terminal",
			CheckIntervalSeconds:  5,
			FlushCooldownSeconds:  600,
			MinSessionSeconds:     15,
			HeartbeatSeconds:      20,
			BroadcastStaleSeconds: 5,
		},
		Screenshots: ScreenshotConfig{
			Enabled:               true,
			FirstDelaySeconds:     60,
			IntervalSeconds:       600,
			MaxBytes:              100 * 1024,
			MinBytes:              1024,
			MaxAttempts:           14,
			AcquireTimeoutSeconds: 3,
		},
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tally", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the TOML file at path on top of the defaults. A missing
// file is not an error.
func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return &LoadResult{Config: cfg}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromString(string(data))
}

func LoadFromString(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}
	if strings.TrimSpace(data) == "" {
		return result, nil
	}

	// Keys absent from the file keep their default values.
	md, err := toml.Decode(data, &result.Config)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for _, key := range md.Undecoded() {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key.String()))
	}

	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server port must be 1-65535, got %d", cfg.Server.Port))
	}
	if cfg.Server.SweepIntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("sweep_interval_seconds must be positive, got %d", cfg.Server.SweepIntervalSeconds))
	}
	if cfg.Server.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Sprintf("max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes))
	}
	if _, err := time.LoadLocation(cfg.Accounting.WeekTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("week_timezone %q is not a known location", cfg.Accounting.WeekTimezone))
	}
	if _, err := cfg.Accounting.FirstWeekday(); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.Accounting.StaleAfterSeconds < 1 {
		errs = append(errs, fmt.Sprintf("stale_after_seconds must be positive, got %d", cfg.Accounting.StaleAfterSeconds))
	}
	if cfg.Accounting.MergeGapSeconds < 0 {
		errs = append(errs, fmt.Sprintf("merge_gap_seconds must not be negative, got %d", cfg.Accounting.MergeGapSeconds))
	}
	if cfg.Accounting.MinSessionSeconds < 0 {
		errs = append(errs, fmt.Sprintf("accounting min_session_seconds must not be negative, got %d", cfg.Accounting.MinSessionSeconds))
	}
	if cfg.Client.CheckIntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("check_interval_seconds must be positive, got %d", cfg.Client.CheckIntervalSeconds))
	}
	if cfg.Client.FlushCooldownSeconds < 0 {
		errs = append(errs, fmt.Sprintf("flush_cooldown_seconds must not be negative, got %d", cfg.Client.FlushCooldownSeconds))
	}
	if cfg.Client.HeartbeatSeconds < 1 {
		errs = append(errs, fmt.Sprintf("heartbeat_seconds must be positive, got %d", cfg.Client.HeartbeatSeconds))
	}
	if cfg.Client.BroadcastStaleSeconds < 1 {
		errs = append(errs, fmt.Sprintf("broadcast_stale_seconds must be positive, got %d", cfg.Client.BroadcastStaleSeconds))
	}
	if cfg.Screenshots.IntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("screenshots interval_seconds must be positive, got %d", cfg.Screenshots.IntervalSeconds))
	}
	if cfg.Screenshots.MaxBytes <= cfg.Screenshots.MinBytes {
		errs = append(errs, fmt.Sprintf("screenshots max_bytes (%d) must exceed min_bytes (%d)", cfg.Screenshots.MaxBytes, cfg.Screenshots.MinBytes))
	}
	if cfg.Screenshots.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("screenshots max_attempts must be positive, got %d", cfg.Screenshots.MaxAttempts))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Location returns the timezone calendar weeks are computed in.
func (a AccountingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.WeekTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (a AccountingConfig) FirstWeekday() (time.Weekday, error) {
	switch strings.ToLower(a.WeekStartDay) {
	case "", "monday":
		return time.Monday, nil
	case "sunday":
		return time.Sunday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return time.Monday, fmt.Errorf("week_start_day must be monday, sunday or saturday, got %q", a.WeekStartDay)
	}
}

// ExpandTilde resolves a leading "~/" against the user's home directory.
func ExpandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
