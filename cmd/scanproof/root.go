package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/scanproof/internal/config"
	"github.com/Lllllllleong/scanproof/internal/models"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "scanproof",
	Short: "OCR scanned essays and proofread the extracted text",
	Long: `scanproof extracts text from scanned PDFs and images with Cloud Vision,
then runs spelling analysis and writing review on it with Gemini.

Configuration is read from an optional YAML file and the environment
(PROJECT_ID, OCR_BUCKET, GENERATOR, GEMINI_API_KEY, ...).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// readDocument loads a local file as an OCR input.
func readDocument(path string) (models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	media, err := models.ParseMediaType("", path)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{Filename: path, MediaType: media, Content: data}, nil
}

func progressPrinter(cmd *cobra.Command) func(int) {
	return func(p int) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\rOCR progress: %3d%%", p)
		if p == 100 {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
	}
}
