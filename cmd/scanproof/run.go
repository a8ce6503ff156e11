package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/scanproof/internal/models"
	"github.com/Lllllllleong/scanproof/internal/services"
)

var runOutDir string

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run the whole workflow on a document and write the text files",
	Long: `run extracts the document, runs spelling analysis and writing review,
and writes original.txt, spelling_report.txt, critique.txt and completed.txt
to the output directory. The completed text is the extracted text unchanged;
edit it and use "correct" for further passes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		workflow, err := services.NewWorkflowFromConfig(ctx, cfg, logger, false)
		if err != nil {
			return err
		}

		sess, err := workflow.Start(ctx)
		if err != nil {
			return err
		}
		id := sess.ID
		defer func() {
			if err := workflow.Delete(context.WithoutCancel(ctx), id); err != nil {
				logger.Warn("Failed to delete session", "sessionId", id, "error", err)
			}
		}()

		if sess, err = workflow.SubmitDocument(ctx, id, doc, progressPrinter(cmd)); err != nil {
			return err
		}
		if _, err = workflow.SubmitOriginal(ctx, id, sess.Drafts.Original); err != nil {
			return err
		}
		findings, sess, err := workflow.RunSpellCheck(ctx, id, sess.Drafts.Original)
		if err != nil {
			return err
		}
		if sess, err = workflow.Advance(ctx, id); err != nil {
			return err
		}
		critique, sess, err := workflow.RunWritingReview(ctx, id, sess.Drafts.AfterWritingReview)
		if err != nil {
			return err
		}
		if _, err = workflow.Finish(ctx, id, sess.Drafts.AfterWritingReview); err != nil {
			return err
		}

		if err := os.MkdirAll(runOutDir, 0o755); err != nil {
			return err
		}
		files := map[string]string{
			"spelling_report.txt": models.FormatFindings(findings),
			"critique.txt":        critique,
		}
		for _, kind := range []models.Artifact{models.ArtifactOriginal, models.ArtifactCompleted} {
			name, data, err := workflow.Artifact(ctx, id, kind)
			if err != nil {
				return err
			}
			files[name] = string(data)
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(runOutDir, name), []byte(content), 0o644); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d sentences, %d need attention; files written to %s\n",
			id, len(findings), len(models.Incorrect(findings)), runOutDir)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runOutDir, "out-dir", "scanproof-out", "directory for the output text files")
}
