package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/config"
	"github.com/jackzampolin/docscan/internal/home"
	"github.com/jackzampolin/docscan/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "docscan",
	Short: "Document scanner: capture a page, get its text",
	Long: `docscan captures a still picture from a camera (or takes an existing
image), stores it, and recognizes its text.

It runs as a server holding the scanner's view state:
  - Camera preview, still capture and frame analysis
  - Text recognition via Tesseract, OpenAI vision or Mistral OCR
  - Recognized text with copy and dismiss actions
  - A watched inbox folder for picked images`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.docscan/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "docscan home directory (default: ~/.docscan)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or text",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Set output format and load .env before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := api.SetOutputFormat(outputFormat); err != nil {
			return err
		}
		return loadDotEnv()
	}

	rootCmd.AddCommand(versionCmd)
}

// loadDotEnv loads ./.env and <home>/.env. Existing variables win.
func loadDotEnv() error {
	files := []string{".env"}
	if h, err := home.New(homeDir); err == nil {
		files = append(files, filepath.Join(h.Path(), ".env"))
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})), nil
}

// loadConfig resolves the config file: --config, then the home config,
// then the viper search path.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}
