package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// JobClientConfig controls how asynchronous OCR jobs are polled.
type JobClientConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// JobClient submits documents for text detection and tracks asynchronous jobs
// until they finish, fail or exceed their ceiling.
type JobClient struct {
	annotator Annotator
	config    JobClientConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewJobClient creates a JobClient.
func NewJobClient(annotator Annotator, config JobClientConfig, logger *slog.Logger) *JobClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobClient{
		annotator: annotator,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Recognize runs synchronous detection on an image or the first page of a PDF.
func (c *JobClient) Recognize(ctx context.Context, doc models.Document) (models.ExtractedText, error) {
	logCtx := c.logger.With("filename", doc.Filename, "mediaType", doc.MediaType)
	logCtx.Info("Running synchronous text detection.")

	pages, err := c.annotator.DetectDocumentText(ctx, doc.Content, doc.MediaType)
	if err != nil {
		logCtx.Error("Synchronous detection failed", "error", err)
		return models.ExtractedText{}, fmt.Errorf("text detection failed: %w", err)
	}
	return models.ExtractedText{Text: models.JoinPages(pages), Pages: pages}, nil
}

// NewJob prepares an async job for an object already uploaded to bucket/key.
func NewJob(bucket, key, destinationPrefix string, media models.MediaType) *models.OcrJob {
	return &models.OcrJob{
		ID:                uuid.NewString(),
		SourceURI:         fmt.Sprintf("gs://%s/%s", bucket, key),
		MimeType:          string(media),
		Bucket:            bucket,
		DestinationPrefix: destinationPrefix,
	}
}

// Run submits job and polls it to a terminal state. Each poll reports
// progress as elapsed time against the ceiling, capped at 99; completion
// reports 100. A job still running after the ceiling fails with a
// *models.TimeoutError no later than one poll interval past the ceiling.
func (c *JobClient) Run(ctx context.Context, job *models.OcrJob, progress ProgressFunc) error {
	if progress == nil {
		progress = func(int) {}
	}
	logCtx := c.logger.With("jobId", job.ID, "source", job.SourceURI, "destination", job.DestinationURI())

	op, err := c.annotator.StartFileAnnotation(ctx, job)
	if err != nil {
		job.Status = models.JobFailed
		logCtx.Error("Failed to submit OCR job", "error", err)
		return &models.JobFailedError{JobID: job.ID, Err: fmt.Errorf("submission failed: %w", err)}
	}
	job.OperationName = op.Name()
	job.SubmittedAt = c.now()
	job.Status = models.JobSubmitted
	logCtx = logCtx.With("operation", job.OperationName)
	logCtx.Info("OCR job submitted.")

	interval := c.config.PollInterval
	ceiling := c.config.Timeout
	lastProgress := 0

	// Polls share one deadline so a hung RPC cannot outlast ceiling + interval.
	pollCtx, cancel := context.WithDeadline(ctx, time.Now().Add(ceiling+interval))
	defer cancel()
	timedOut := func() error {
		job.Status = models.JobTimedOut
		job.Elapsed = c.now().Sub(job.SubmittedAt)
		logCtx.Error("OCR job timed out", "elapsed", job.Elapsed, "ceiling", ceiling)
		return &models.TimeoutError{JobID: job.ID, Elapsed: job.Elapsed, Ceiling: ceiling}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() == nil {
				return timedOut()
			}
			job.Status = models.JobFailed
			job.Elapsed = c.now().Sub(job.SubmittedAt)
			return fmt.Errorf("ocr job %s interrupted: %w", job.ID, ctx.Err())
		case <-ticker.C:
		}

		job.Status = models.JobPolling
		job.Elapsed = c.now().Sub(job.SubmittedAt)

		done, err := op.Poll(pollCtx)
		switch {
		case pollCtx.Err() != nil && ctx.Err() == nil:
			return timedOut()
		case done && err != nil:
			job.Status = models.JobFailed
			logCtx.Error("OCR job failed", "error", err, "elapsed", job.Elapsed)
			return &models.JobFailedError{JobID: job.ID, Err: err}
		case done:
			job.Status = models.JobDone
			progress(100)
			logCtx.Info("OCR job complete.", "elapsed", job.Elapsed)
			return nil
		case err != nil:
			logCtx.Warn("Transient poll error, continuing.", "error", err)
		}

		if job.Elapsed >= ceiling {
			return timedOut()
		}

		if p := percentOf(job.Elapsed, ceiling); p > lastProgress {
			lastProgress = p
			progress(p)
		}
	}
}

// percentOf maps elapsed time onto 0..99.
func percentOf(elapsed, ceiling time.Duration) int {
	if ceiling <= 0 {
		return 99
	}
	p := int(elapsed * 100 / ceiling)
	return min(max(p, 0), 99)
}
