package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stackvity/vfsim/internal/filesystem"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
	"github.com/stackvity/vfsim/internal/storage"
)

var validate = validator.New()

// WatchConfig holds configuration specific to watch mode.
type WatchConfig struct {
	// Path defaults to the dump root when empty.
	Path         string   `mapstructure:"path"`
	Filters      []string `mapstructure:"filters"`
	NotifyFilter []string `mapstructure:"notifyFilter"` // e.g. "FileName", "LastWrite"
	Recursive    bool     `mapstructure:"recursive"`
	BufferSize   int      `mapstructure:"bufferSize" validate:"gte=0"`
	// Template is a Go template file each event is rendered with.
	Template string `mapstructure:"template"`
}

// Options holds all the configuration settings for the vfsim application.
// Tags are used by Viper for unmarshalling from config files, env vars, and flags.
type Options struct {
	// Engine
	Platform         string              `mapstructure:"platform" validate:"required,oneof=windows unix"`
	Case             string              `mapstructure:"case" validate:"required,oneof=auto sensitive insensitive"`
	Sharing          string              `mapstructure:"sharing" validate:"required,oneof=auto strict relaxed"`
	DriveCapacity    int64               `mapstructure:"driveCapacity" validate:"gte=0"` // 0 keeps the engine default
	WorkingDirectory string              `mapstructure:"cwd"`
	TimeRules        map[string][]string `mapstructure:"timeRules"` // operation -> timestamps it advances

	// Fixtures
	Seed   string `mapstructure:"seed"`
	Script string `mapstructure:"script"`
	Root   string `mapstructure:"root"` // dumped after the script runs; empty skips the dump
	Format string `mapstructure:"format" validate:"required,oneof=yaml toml"`

	// Behavior Control
	Verbose   bool   `mapstructure:"verbose"`
	LogFormat string `mapstructure:"logFormat" validate:"required,oneof=text json"`
	WatchMode bool   `mapstructure:"watch"`

	Watch WatchConfig `mapstructure:"watchConfig"`

	// Internal - Not typically set by user directly
	ConfigFile string `mapstructure:"config"` // Path to the config file used
}

// Defaults returns the values the CLI registers with Viper.
func Defaults() map[string]any {
	return map[string]any{
		"platform":               "unix",
		"case":                   "auto",
		"sharing":                "auto",
		"format":                 "yaml",
		"logFormat":              "text",
		"watchConfig.recursive":  true,
		"watchConfig.bufferSize": notify.DefaultBufferSize,
	}
}

// ValidateConfig checks the loaded configuration options for validity. Tag
// violations and cross-field problems are reported together.
func (opts *Options) ValidateConfig() error {
	var errs []string

	if err := validate.Struct(opts); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		for _, e := range verrs {
			errs = append(errs, fmt.Sprintf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value()))
		}
	}

	mode, modeErr := platform.ParseMode(opts.Platform)
	if modeErr == nil {
		if _, err := storage.ParseTimeRules(storage.DefaultTimeRules(mode), opts.TimeRules); err != nil {
			errs = append(errs, fmt.Sprintf("timeRules: %v", err))
		}
	}
	if _, err := notify.ParseFilters(opts.Watch.NotifyFilter); err != nil {
		errs = append(errs, fmt.Sprintf("watchConfig.notifyFilter: %v", err))
	}

	for _, f := range []struct{ name, path string }{{"seed", opts.Seed}, {"script", opts.Script}, {"event template", opts.Watch.Template}} {
		if f.path == "" {
			continue
		}
		info, err := os.Stat(f.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Sprintf("%s file '%s' does not exist", f.name, f.path))
			} else {
				errs = append(errs, fmt.Sprintf("cannot access %s file '%s': %v", f.name, f.path, err))
			}
		} else if info.IsDir() {
			errs = append(errs, fmt.Sprintf("%s file '%s' is a directory, not a file", f.name, f.path))
		}
	}

	if opts.WatchMode {
		if opts.Script == "" {
			errs = append(errs, "watch mode needs a script to observe")
		}
		if opts.Watch.Path == "" && opts.Root == "" {
			errs = append(errs, "watch mode needs watchConfig.path or root")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EngineOptions translates the options into options for a VirtualFileSystem.
// The options must have passed ValidateConfig.
func (opts *Options) EngineOptions() (filesystem.Options, error) {
	mode, err := platform.ParseMode(opts.Platform)
	if err != nil {
		return filesystem.Options{}, err
	}
	out := filesystem.DefaultOptions(mode)
	switch opts.Case {
	case "sensitive":
		out.CaseSensitive = true
	case "insensitive":
		out.CaseSensitive = false
	}
	switch opts.Sharing {
	case "strict":
		out.StrictSharing = true
	case "relaxed":
		out.StrictSharing = false
	}
	if opts.DriveCapacity > 0 {
		out.DriveCapacity = opts.DriveCapacity
	}
	out.WorkingDirectory = opts.WorkingDirectory
	if len(opts.TimeRules) > 0 {
		rules, err := storage.ParseTimeRules(storage.DefaultTimeRules(mode), opts.TimeRules)
		if err != nil {
			return filesystem.Options{}, err
		}
		out.TimeRules = rules
	}
	return out, nil
}

// WatchOptions builds the watcher configuration. root is used when no watch
// path is configured.
func (opts *Options) WatchOptions(root string) (filesystem.WatchConfig, error) {
	filter, err := notify.ParseFilters(opts.Watch.NotifyFilter)
	if err != nil {
		return filesystem.WatchConfig{}, err
	}
	path := opts.Watch.Path
	if path == "" {
		path = root
	}
	return filesystem.WatchConfig{
		Path:                  path,
		Filters:               opts.Watch.Filters,
		NotifyFilter:          filter,
		IncludeSubdirectories: opts.Watch.Recursive,
		BufferSize:            opts.Watch.BufferSize,
	}, nil
}
