package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/scanproof/internal/models"
	"github.com/Lllllllleong/scanproof/internal/services"
)

var (
	correctDirective string
	correctFile      string
	correctJSON      bool
)

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Run a correction directive on text from a file or stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		var text []byte
		if correctFile != "" {
			text, err = os.ReadFile(correctFile)
		} else {
			text, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		corrector, err := services.NewCorrectorFromConfig(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		res, err := corrector.Correct(cmd.Context(), models.CorrectionRequest{
			Text:      string(text),
			Directive: models.Directive(correctDirective),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case correctJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(models.CorrectResponse{Directive: res.Directive, Text: res.Text, Findings: res.Findings})
		case res.Directive.Structured():
			_, err = fmt.Fprint(out, models.FormatFindings(res.Findings))
		default:
			_, err = fmt.Fprintln(out, res.Text)
		}
		return err
	},
}

func init() {
	correctCmd.Flags().StringVarP(&correctDirective, "directive", "d", string(models.SpellCheck),
		"one of spell_check, polish_prose, summarize, translate, writing_critique, spelling_analysis")
	correctCmd.Flags().StringVarP(&correctFile, "file", "f", "", "read text from this file instead of stdin")
	correctCmd.Flags().BoolVar(&correctJSON, "json", false, "print the result as JSON")
}
