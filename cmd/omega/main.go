package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omegacorp/omega/internal/channels"
	"github.com/omegacorp/omega/internal/config"
	"github.com/omegacorp/omega/internal/factindex"
	"github.com/omegacorp/omega/internal/gateway"
	"github.com/omegacorp/omega/internal/gwerrors"
	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/loops"
	"github.com/omegacorp/omega/internal/projects"
	"github.com/omegacorp/omega/internal/providers"
	"github.com/omegacorp/omega/internal/store"
)

const version = "0.1.0"

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".omega", "config.toml")
}

func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "omega",
		Short: "omega — personal AI agent gateway",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config.toml")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "omega v%s\n", version)
		},
	})

	rootCmd.AddCommand(newInitCmd(&configPath))
	rootCmd.AddCommand(newStartCmd(&configPath))
	rootCmd.AddCommand(newServiceCmd(&configPath))
	rootCmd.AddCommand(newSelfcheckCmd(&configPath))

	return rootCmd
}

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.toml and on-disk workspace layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()

			if err := os.MkdirAll(filepath.Dir(*configPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if _, err := os.Stat(*configPath); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "config already exists at %s, leaving it untouched\n", *configPath)
			} else if err := writeDefaultConfig(*configPath, cfg); err != nil {
				return err
			}

			for _, dir := range []string{
				filepath.Join(cfg.Omega.DataDir, "data"),
				filepath.Join(cfg.Omega.DataDir, "prompts"),
				filepath.Join(cfg.Omega.DataDir, "workspace", "inbox"),
				filepath.Join(cfg.Omega.DataDir, "projects"),
				filepath.Join(cfg.Omega.DataDir, "skills"),
			} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized workspace at %s\n", cfg.Omega.DataDir)
			return nil
		},
	}
}

func writeDefaultConfig(path string, cfg *config.Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, `[omega]
name = %q
data_dir = %q
log_level = %q

[auth]
enabled = true
deny_message = %q

[provider]
default = "claude-code"

[provider.claude-code]
enabled = true
max_turns = 25
timeout_secs = 3600
max_resume_attempts = 5

[memory]
backend = "sqlite"
db_path = %q
max_context_messages = 50

[sandbox]
mode = "sandbox"

[scheduler]
enabled = true
poll_interval_secs = 60

[heartbeat]
enabled = false
interval_minutes = 30
active_start = "08:00"
active_end = "22:00"
`, cfg.Omega.Name, cfg.Omega.DataDir, cfg.Omega.LogLevel, cfg.Auth.DenyMessage, cfg.Memory.DBPath)
	return err
}

func newStartCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the gateway: channels, provider, dispatcher, and background loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(*configPath)
		},
	}
}

func runGateway(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return gwerrors.Fatal(gwerrors.Config, "load config", err)
	}
	logging.SetLevel(cfg.Omega.LogLevel)

	s, err := store.Open(cfg.Memory.DBPath)
	if err != nil {
		return gwerrors.Fatal(gwerrors.Memory, "open store", err)
	}
	defer s.Close()

	provider, err := providers.FromConfig(cfg)
	if err != nil {
		return gwerrors.Fatal(gwerrors.Config, "configure provider", err)
	}

	chans, err := channels.FromConfig(context.Background(), cfg)
	if err != nil {
		return gwerrors.Fatal(gwerrors.Channel, "configure channels", err)
	}

	facts, err := factindex.Open(cfg.Omega.DataDir, nil)
	if err != nil {
		logging.WarnCF("main", "fact index unavailable, degrading to FTS-only recall", map[string]interface{}{"error": err.Error()})
		facts = nil
	}

	gw := gateway.New(cfg, s, provider, chans, facts)

	deps := loops.Deps{
		Store:    s,
		Provider: provider,
		Channels: chans,
		Projects: projects.NewLoader(cfg.Omega.DataDir),
		Config:   cfg,
	}
	bg := []gateway.BackgroundLoop{loops.NewSummarizer(deps)}
	if cfg.Scheduler.Enabled {
		bg = append(bg, loops.NewScheduler(deps))
	}
	if cfg.Heartbeat.Enabled {
		bg = append(bg, loops.NewHeartbeat(deps))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("shutdown signal received")
		cancel()
	}()

	return gw.Run(ctx, bg)
}

const systemdUnitTemplate = `[Unit]
Description=omega personal AI agent gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s start --config %s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

func systemdUnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user", "omega.service"), nil
}

func newServiceCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage omega as a user-level systemd service",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Write a systemd user unit that runs 'omega start'",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPath, err := systemdUnitPath()
			if err != nil {
				return fmt.Errorf("resolve systemd user directory: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
				return fmt.Errorf("create systemd user directory: %w", err)
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve omega binary path: %w", err)
			}
			f, err := os.Create(unitPath)
			if err != nil {
				return fmt.Errorf("write unit file: %w", err)
			}
			defer f.Close()
			if _, err := fmt.Fprintf(f, systemdUnitTemplate, exe, *configPath); err != nil {
				return fmt.Errorf("write unit file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nRun: systemctl --user daemon-reload && systemctl --user enable --now omega\n", unitPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the omega systemd user unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPath, err := systemdUnitPath()
			if err != nil {
				return fmt.Errorf("resolve systemd user directory: %w", err)
			}
			if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove unit file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (if present). Run: systemctl --user daemon-reload\n", unitPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the omega systemd user unit is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPath, err := systemdUnitPath()
			if err != nil {
				return fmt.Errorf("resolve systemd user directory: %w", err)
			}
			if _, err := os.Stat(unitPath); err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "not installed")
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed at %s\nCheck running state with: systemctl --user status omega\n", unitPath)
			return nil
		},
	})

	return cmd
}

func newSelfcheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Verify config, database, and provider connectivity without starting channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config: ok")

			s, err := store.Open(cfg.Memory.DBPath)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database: ok")

			provider, err := providers.FromConfig(cfg)
			if err != nil {
				return fmt.Errorf("provider config: %w", err)
			}
			if provider.IsAvailable(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "provider: ok ("+provider.Name()+")")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "provider: configured but not reachable ("+provider.Name()+")")
			}
			return nil
		},
	}
}

func main() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
