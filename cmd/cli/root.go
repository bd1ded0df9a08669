package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/strandkit/strand/internal/api"
	"github.com/strandkit/strand/internal/config"
	"github.com/strandkit/strand/internal/localstate"
	"github.com/strandkit/strand/internal/syncer"
)

func execute() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	rootCmd := &cobra.Command{
		Use:   "strand",
		Short: "strand keeps a local mirror of server-side sessions in sync",
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("endpoint", "", "server endpoint override")
	rootCmd.PersistentFlags().StringP("directory", "d", "", "project directory (defaults to the working directory)")

	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRevertCmd())
	rootCmd.AddCommand(newUnrevertCmd())
	rootCmd.AddCommand(newRedoCmd())
	rootCmd.AddCommand(newPermissionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styledError(err.Error()))
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	if configPath == "" {
		configPath = filepath.Join(config.Default().DataDir, "config.toml")
	}

	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return cfg, err
	}

	if endpoint, _ := cmd.Flags().GetString("endpoint"); endpoint != "" {
		cfg.Endpoint = endpoint
	}

	return cfg, nil
}

func resolveDirectory(cmd *cobra.Command) (string, error) {
	directory, _ := cmd.Flags().GetString("directory")
	if directory != "" {
		return filepath.Clean(directory), nil
	}

	working, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}

	return working, nil
}

func openLocalState(cfg config.Config) (*localstate.Store, error) {
	return localstate.Open(filepath.Join(cfg.DataDir, "state.db"))
}

// printNotifier surfaces sync failures as styled stderr lines, the CLI
// analog of a UI toast.
type printNotifier struct{}

func (printNotifier) Notify(level syncer.Level, message string) {
	switch level {
	case syncer.LevelError:
		fmt.Fprintln(os.Stderr, styleError.Render(message))
	case syncer.LevelWarn:
		fmt.Fprintln(os.Stderr, styleWarning.Render(message))
	default:
		fmt.Fprintln(os.Stderr, styleDim.Render(message))
	}
}

func newRegistry(cfg config.Config) (*syncer.Registry, *api.Client) {
	client := api.New(cfg.Endpoint)
	return syncer.New(client, printNotifier{}), client
}
