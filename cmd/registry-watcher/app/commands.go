// Package app wires the cobra commands of the registry watcher.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/registry-watcher/internal/config"
	"github.com/stacklok/registry-watcher/internal/versions"
)

// NewRootCmd assembles the registry-watcher command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "registry-watcher",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Docker Hub image update watcher",
		Long: `registry-watcher polls Docker Hub for the images listed in its configuration and
runs the configured webhooks and mails whenever an image or tag was pushed again.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, err := cmd.Flags().GetString("env-file")
			if err != nil {
				return err
			}
			return loadEnvFile(envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "",
		"Path to configuration file (YAML, or JSON with comments), defaults to registry-watcher/config.yaml in the XDG config dirs")
	if err := viper.BindPFlag("config", root.PersistentFlags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}
	root.PersistentFlags().String("env-file", "",
		"File of KEY=value lines added to the environment, such as SMTP passwords (default .env when present)")

	root.AddCommand(serveCmd, checkCmd, validateCmd, newVersionCmd())
	return root
}

// defaultConfigFile is looked up in the XDG config directories when --config is not set
const defaultConfigFile = "registry-watcher/config.yaml"

// loadEnvFile adds the variables of path to the environment without overriding
// variables already set. An empty path reads .env if it exists.
func loadEnvFile(path string) error {
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("Loaded environment file", "path", path)
	return nil
}

// resolveConfigPath returns flagValue, or the first registry-watcher/config.yaml
// found in the XDG config directories
func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	path, err := xdg.SearchConfigFile(defaultConfigFile)
	if err != nil {
		return "", fmt.Errorf("--config is required when no %s exists in the XDG config directories", defaultConfigFile)
	}
	return path, nil
}

// loadConfig loads the configuration file named by --config
func loadConfig() (*config.Config, error) {
	configPath, err := resolveConfigPath(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Loaded configuration",
		"path", configPath,
		"images", len(cfg.NotifyServices),
		"check_interval", cfg.GetCheckInterval())
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeVersion(cmd.OutOrStdout(), format, versions.GetVersionInfo())
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text or json)")
	return cmd
}

func writeVersion(w io.Writer, format string, info versions.VersionInfo) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprintln(w, info.String())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	default:
		return fmt.Errorf("unsupported format %q, use text or json", format)
	}
}
