package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/scanproof/internal/config"
	"github.com/Lllllllleong/scanproof/internal/models"
)

func newTestExtractor(gw *memGateway, annotator *fakeAnnotator, mode string, timeout time.Duration) *Extractor {
	jobs := NewJobClient(annotator, JobClientConfig{PollInterval: 2 * time.Millisecond, Timeout: timeout}, discardLogger())
	cfg := ExtractorConfig{
		Bucket:       testBucket,
		Mode:         mode,
		UploadPrefix: "uploads",
		ResultPrefix: "ocr_results",
		ResultWait:   100 * time.Millisecond,
		ResultPoll:   5 * time.Millisecond,
	}
	return NewExtractor(gw, jobs, NewAssembler(gw, discardLogger()), cfg, discardLogger())
}

func pdfDoc() models.Document {
	return models.Document{Filename: "essay.pdf", MediaType: models.MediaPDF, Content: []byte("%PDF-1.4 fake")}
}

func TestExtractAsyncPDF(t *testing.T) {
	gw := newMemGateway()
	annotator := &fakeAnnotator{
		op:      &fakeOperation{doneAfter: 2},
		gateway: gw,
		results: map[string][]byte{
			"output-1-to-1.json": fragmentJSON(1, "안녕하세요."),
			"output-2-to-2.json": fragmentJSON(2, "반갑습니다."),
		},
	}
	ex := newTestExtractor(gw, annotator, config.OCRModeAsync, time.Second)

	var last int
	got, err := ex.Extract(context.Background(), "sess0001", pdfDoc(), func(p int) { last = p })
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if want := "안녕하세요.\n\n반갑습니다.\n\n"; got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}

	if len(annotator.jobs) != 1 {
		t.Fatalf("jobs submitted = %d, want 1", len(annotator.jobs))
	}
	job := annotator.jobs[0]
	if !strings.HasPrefix(job.SourceURI, "gs://"+testBucket+"/uploads/sess0001/") || !strings.HasSuffix(job.SourceURI, ".pdf") {
		t.Errorf("source uri = %q, want session-scoped upload", job.SourceURI)
	}
	if want := "ocr_results/sess0001/" + job.ID + "/"; job.DestinationPrefix != want {
		t.Errorf("destination = %q, want %q", job.DestinationPrefix, want)
	}
	if gw.count() != 0 {
		t.Errorf("%d objects left in storage, want 0", gw.count())
	}
}

func TestExtractSyncForImages(t *testing.T) {
	gw := newMemGateway()
	annotator := &fakeAnnotator{pages: []models.OcrResultPage{{Page: 1, Text: "scan"}}}
	ex := newTestExtractor(gw, annotator, config.OCRModeAuto, time.Second)

	got, err := ex.Extract(context.Background(), "s", models.Document{Filename: "p.jpg", MediaType: models.MediaJPEG, Content: []byte{0xff}}, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Text != "scan\n\n" {
		t.Errorf("text = %q", got.Text)
	}
	if annotator.syncCalls.Load() != 1 || len(annotator.jobs) != 0 {
		t.Errorf("sync calls = %d, async jobs = %d", annotator.syncCalls.Load(), len(annotator.jobs))
	}
	if gw.count() != 0 {
		t.Error("sync path must not stage objects")
	}
}

func TestExtractSyncModeForPDF(t *testing.T) {
	annotator := &fakeAnnotator{pages: []models.OcrResultPage{{Page: 1, Text: "first page"}}}
	ex := newTestExtractor(newMemGateway(), annotator, config.OCRModeSync, time.Second)

	if _, err := ex.Extract(context.Background(), "s", pdfDoc(), nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(annotator.jobs) != 0 {
		t.Error("sync mode submitted an async job")
	}
}

func TestExtractTimeoutCleansUp(t *testing.T) {
	gw := newMemGateway()
	annotator := &fakeAnnotator{
		op:      &fakeOperation{never: true},
		gateway: gw,
		partial: map[string][]byte{"output-1-to-1.json": fragmentJSON(1, "partial")},
	}
	ex := newTestExtractor(gw, annotator, config.OCRModeAsync, 20*time.Millisecond)

	_, err := ex.Extract(context.Background(), "s1", pdfDoc(), nil)
	if !errors.Is(err, models.ErrJobTimeout) {
		t.Fatalf("Extract() error = %v, want ErrJobTimeout", err)
	}
	if gw.count() != 0 {
		t.Errorf("%d objects left after timeout, want 0", gw.count())
	}
}

func TestExtractFailureCleansUp(t *testing.T) {
	gw := newMemGateway()
	annotator := &fakeAnnotator{
		op:      &fakeOperation{doneAfter: 1, failErr: errors.New("quota")},
		gateway: gw,
		partial: map[string][]byte{"output-1-to-1.json": fragmentJSON(1, "partial")},
	}
	ex := newTestExtractor(gw, annotator, config.OCRModeAsync, time.Second)

	_, err := ex.Extract(context.Background(), "s2", pdfDoc(), nil)
	var failed *models.JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Extract() error = %v, want *JobFailedError", err)
	}
	if gw.count() != 0 {
		t.Errorf("%d objects left after failure, want 0", gw.count())
	}
}

func TestExtractNoText(t *testing.T) {
	annotator := &fakeAnnotator{pages: []models.OcrResultPage{{Page: 1, Text: "  "}}}
	ex := newTestExtractor(newMemGateway(), annotator, config.OCRModeSync, time.Second)

	_, err := ex.Extract(context.Background(), "s", pdfDoc(), nil)
	if !errors.Is(err, models.ErrNoTextRecognized) {
		t.Fatalf("Extract() error = %v, want ErrNoTextRecognized", err)
	}
}

func TestExtractRejectsUnsupportedMedia(t *testing.T) {
	ex := newTestExtractor(newMemGateway(), &fakeAnnotator{}, config.OCRModeAuto, time.Second)
	_, err := ex.Extract(context.Background(), "s", models.Document{Filename: "a.gif", MediaType: "image/gif", Content: []byte{1}}, nil)
	if !errors.Is(err, models.ErrUnsupportedMedia) {
		t.Fatalf("Extract() error = %v, want ErrUnsupportedMedia", err)
	}
}

func TestExtractUploadFailure(t *testing.T) {
	gw := newMemGateway()
	gw.failPut = errors.New("bucket missing")
	ex := newTestExtractor(gw, &fakeAnnotator{}, config.OCRModeAsync, time.Second)

	if _, err := ex.Extract(context.Background(), "s", pdfDoc(), nil); err == nil {
		t.Fatal("Extract() succeeded despite upload failure")
	}
}
