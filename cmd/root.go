// Package cmd implements the harbormast command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"harbormast/internal/app"
	"harbormast/internal/cachemanager"
	"harbormast/internal/config"
	"harbormast/internal/fetch"
	"harbormast/internal/log"
	"harbormast/internal/registry"
	"harbormast/internal/registry/harbor"
	"harbormast/internal/tracing"
	"harbormast/internal/viewmodel"
)

var (
	cfgFile   string
	debugMode bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "harbormast",
	Short: "Terminal browser for Harbor container registries",
	Long: `Harbormast is a terminal UI for exploring a Harbor registry:
projects, repositories, artifacts, tags and scan findings, with cached
listings and browser-style back/forward navigation.`,
	RunE:         runBrowse,
	SilenceUsage: true,
}

func init() {
	// Force the terminal background probe before Bubble Tea takes over
	// the terminal, otherwise the first program start races the query
	// and renders with the wrong palette.
	_ = lipgloss.HasDarkBackground()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ~/.config/harbormast/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"enable debug logging and the log overlay (ctrl+x)")
	rootCmd.PersistentFlags().String("registry-url", "", "Harbor base URL (overrides config)")
	_ = viper.BindPFlag("registry.url", rootCmd.PersistentFlags().Lookup("registry-url"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion wires the build version into --version.
func SetVersion(version string) {
	rootCmd.Version = version
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("registry.url", defaults.Registry.URL)
	viper.SetDefault("registry.username", defaults.Registry.Username)
	viper.SetDefault("registry.insecure", defaults.Registry.Insecure)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL)
	viper.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)
	viper.SetDefault("cache.detail_ttl", defaults.Cache.DetailTTL)
	viper.SetDefault("fetch.page_size", defaults.Fetch.PageSize)
	viper.SetDefault("fetch.rate_limit_backoff", defaults.Fetch.RateLimitBackoff)
	viper.SetDefault("ui.show_status_bar", defaults.UI.ShowStatusBar)
	viper.SetDefault("ui.show_counts", defaults.UI.ShowCounts)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./.harbormast")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "harbormast"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			// First run: seed a commented config the user can edit.
			if path := defaultConfigPath(); path != "" {
				if writeErr := config.WriteDefaultConfig(path); writeErr == nil {
					viper.SetConfigFile(path)
					_ = viper.ReadInConfig()
				}
			}
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	if pw := os.Getenv("HARBORMAST_REGISTRY_PASSWORD"); pw != "" {
		cfg.Registry.Password = pw
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "harbormast", "config.yaml")
}

func debugLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "harbormast-debug.log"
	}
	return filepath.Join(home, ".config", "harbormast", "debug.log")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if debugMode {
		cleanup, err := log.InitWithTeaLog(debugLogPath(), "harbormast")
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		defer cleanup()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w\n\nrun 'harbormast login' to configure the registry connection", err)
	}

	tracingCfg := tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	}
	if tracingCfg.FilePath == "" {
		tracingCfg.FilePath = config.DefaultTracesFilePath()
	}
	provider, err := tracing.NewProvider(tracingCfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	client, err := harbor.New(harbor.Options{
		URL:      cfg.Registry.URL,
		Username: cfg.Registry.Username,
		Password: cfg.Registry.Password,
		Insecure: cfg.Registry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("registry client: %w", err)
	}

	cache, err := cachemanager.NewResourceCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, nil)
	if err != nil {
		return fmt.Errorf("resource cache: %w", err)
	}

	coord := fetch.NewCoordinator(client, cache, fetch.Config{
		PageSize:     cfg.Fetch.PageSize,
		RetryBackoff: cfg.Fetch.RateLimitBackoff,
		Tracer:       provider.Tracer(),
	})
	defer coord.Close()

	sync := viewmodel.NewSynchronizer(registry.RootKey(), cache, coord, fetch.NewPager(cache, coord))
	model := app.New(sync, client, cfg, debugMode)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
