package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/scanproof/internal/services"
)

var extractOut string

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract text from a PDF or image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		extractor, err := services.NewExtractorFromConfig(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		result, err := extractor.Extract(cmd.Context(), services.NewSessionID(), doc, progressPrinter(cmd))
		if err != nil {
			return err
		}

		if extractOut == "" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), result.Text)
			return err
		}
		return os.WriteFile(extractOut, []byte(result.Text), 0o644)
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "O", "", "write text to this file instead of stdout")
}
