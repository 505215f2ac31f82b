package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackvity/vfsim/internal/config"
	"github.com/stackvity/vfsim/internal/filesystem"
	"github.com/stackvity/vfsim/internal/fixture"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/template"
)

// Variables for version embedding via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes
const (
	ExitCodeSuccess     = 0
	ExitCodeStepFailure = 1
	ExitCodeConfigError = 2
	ExitCodeUnknown     = 10
)

var opts *config.Options

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vfsim [--seed tree.yaml] [--script steps.yaml] [--root <dir>]",
	Short: "Simulate Windows or Unix filesystem behavior in memory",
	Long: `vfsim builds an in-memory filesystem that behaves like a Windows or Unix
host, seeds it from a fixture tree, replays a script of mutations against it
and dumps the resulting tree.

Nothing touches the host disk apart from reading the fixture files.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := viper.Unmarshal(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error unmarshalling configuration: %v\n", err)
			os.Exit(ExitCodeConfigError)
			return nil
		}
		if err := opts.ValidateConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(ExitCodeConfigError)
			return nil
		}

		if code := run(ctx, opts, os.Stdout, newLogger(opts, os.Stderr)); code != ExitCodeSuccess {
			os.Exit(code)
		}
		return nil
	},
}

func newLogger(o *config.Options, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if o.Verbose {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	if o.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// run seeds the engine, replays the script and dumps the result. It returns
// the process exit code.
func run(ctx context.Context, o *config.Options, out io.Writer, logger *slog.Logger) int {
	logger.Debug("Configuration loaded and validated successfully", "options", *o)

	engineOpts, err := o.EngineOptions()
	if err != nil {
		logger.Error("Invalid engine options", "error", err)
		return ExitCodeConfigError
	}
	engineOpts.Logger = logger
	vfs, err := filesystem.NewVirtualFileSystem(engineOpts)
	if err != nil {
		logger.Error("Failed to create the virtual filesystem", "error", err)
		return ExitCodeConfigError
	}
	defer func() {
		if err := vfs.Close(); err != nil {
			logger.Warn("Errors while closing the virtual filesystem", "error", err)
		}
	}()
	logger.Info("Virtual filesystem ready", "platform", vfs.Mode(), "caseSensitive", vfs.CaseSensitive(), "strictSharing", vfs.StrictSharing())

	host := filesystem.NewRealFileSystemWithLogger(logger)
	format, err := fixture.ParseFormat(o.Format)
	if err != nil {
		logger.Error("Invalid output format", "error", err)
		return ExitCodeConfigError
	}
	root := o.Root
	if root == "" {
		root = vfs.Mode().DefaultRoot()
	}

	if o.Seed != "" {
		tree, err := fixture.LoadTree(host, o.Seed, "")
		if err != nil {
			logger.Error("Failed to load seed tree", "file", o.Seed, "error", err)
			return ExitCodeConfigError
		}
		if err := vfs.MkdirAll(root, 0o755); err != nil {
			logger.Error("Failed to create seed root", "root", root, "error", err)
			return ExitCodeStepFailure
		}
		if err := tree.Apply(vfs, root, logger); err != nil {
			logger.Error("Failed to seed the virtual filesystem", "error", err)
			return ExitCodeStepFailure
		}
		logger.Info("Seeded virtual filesystem", "entries", len(tree.Entries), "root", root)
	}

	if o.Script != "" {
		script, err := fixture.LoadScript(host, o.Script, "")
		if err != nil {
			logger.Error("Failed to load script", "file", o.Script, "error", err)
			return ExitCodeConfigError
		}

		if o.WatchMode {
			watcher, err := startWatcher(vfs, host, o, root, out, logger)
			if err != nil {
				logger.Error("Failed to start watcher", "error", err)
				return ExitCodeConfigError
			}
			defer watcher.Close()
		}

		if _, err := script.Run(ctx, vfs, logger); err != nil {
			var stepErr *fixture.StepError
			if errors.As(err, &stepErr) {
				fmt.Fprintf(out, "FAILED: %v\n", stepErr)
				return ExitCodeStepFailure
			}
			logger.Error("Script failed", "error", err)
			return ExitCodeUnknown
		}
	}

	if o.Root != "" {
		data, err := fixture.Dump(vfs, root, format)
		if err != nil {
			logger.Error("Failed to dump the virtual filesystem", "root", root, "error", err)
			return ExitCodeStepFailure
		}
		if _, err := out.Write(data); err != nil {
			logger.Error("Failed to write dump", "error", err)
			return ExitCodeUnknown
		}
	}
	return ExitCodeSuccess
}

// startWatcher prints every event raised below the watch path to out, through
// the configured event template when there is one.
func startWatcher(vfs *filesystem.VirtualFileSystem, host filesystem.FileSystem, o *config.Options, root string, out io.Writer, logger *slog.Logger) (filesystem.Watcher, error) {
	cfg, err := o.WatchOptions(root)
	if err != nil {
		return nil, err
	}
	executor, err := template.NewExecutor(o.Watch.Template, host)
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	emit := func(ev notify.Event) {
		line := ev.String()
		if executor != nil {
			rendered, err := executor.Execute(ev)
			if err != nil {
				logger.Warn("Failed to render event", "event", line, "error", err)
			} else {
				line = rendered
			}
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "EVENT: %s\n", line)
	}
	cfg.Handlers = notify.Handlers{
		Created: emit,
		Deleted: emit,
		Changed: emit,
		Renamed: emit,
		Error: func(err error) {
			logger.Warn("Watcher error", "error", err)
		},
	}
	w, err := vfs.Watch(cfg)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		_ = w.Close()
		return nil, err
	}
	logger.Debug("Watching for changes", "path", cfg.Path, "recursive", cfg.IncludeSubdirectories)
	return w, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(ExitCodeUnknown)
	}
}

func init() {
	opts = &config.Options{}
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file path (default: .vfsim.yaml, vfsim.yaml)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose debug logging")
	flags.String("log-format", "text", "Log output format: 'text' or 'json'")

	flags.StringVarP(&opts.Platform, "platform", "p", "unix", "Simulated platform: 'windows' or 'unix'")
	flags.StringVar(&opts.Case, "case", "auto", "Name comparison: 'auto', 'sensitive' or 'insensitive'")
	flags.StringVar(&opts.WorkingDirectory, "cwd", "", "Initial working directory (default: the platform root)")

	flags.StringVar(&opts.Seed, "seed", "", "Fixture tree (YAML or TOML) applied below --root before the script")
	flags.StringVar(&opts.Script, "script", "", "Script of mutations (YAML or TOML) to replay")
	flags.StringVar(&opts.Root, "root", "", "Directory to dump after the script runs")
	flags.StringVar(&opts.Format, "format", "yaml", "Dump format: 'yaml' or 'toml'")
	flags.BoolVar(&opts.WatchMode, "watch", false, "Print change events raised while the script runs")
	flags.String("event-template", "", "Go template file used to print watch events")

	rootCmd.SetVersionTemplate(fmt.Sprintf("vfsim version %s (commit: %s, built: %s)\n", version, commit, date))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v := viper.New()

	// 1. Defaults
	for key, value := range config.Defaults() {
		v.SetDefault(key, value)
	}

	// 2. Environment
	v.AutomaticEnv()
	v.SetEnvPrefix("VFSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// 3. Config file
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading specified config file %s: %v\n", opts.ConfigFile, err)
			os.Exit(ExitCodeConfigError)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(".vfsim")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", v.ConfigFileUsed(), err)
				os.Exit(ExitCodeConfigError)
			}
		}
	}

	// 4. Flags, bound after the other sources so set flags win
	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Internal error binding flags to viper: %v\n", err)
		os.Exit(ExitCodeConfigError)
	}
	for key, flag := range map[string]string{"logFormat": "log-format", "watchConfig.template": "event-template"} {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Internal error binding flags to viper: %v\n", err)
			os.Exit(ExitCodeConfigError)
		}
	}

	// 5. Merge into the global viper instance used by RunE
	if err := viper.MergeConfigMap(v.AllSettings()); err != nil {
		fmt.Fprintf(os.Stderr, "Internal error merging viper settings: %v\n", err)
		os.Exit(ExitCodeConfigError)
	}
}

func main() {
	Execute()
}
