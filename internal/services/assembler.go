package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// fragmentName matches the names Vision gives to batched output files.
var fragmentName = regexp.MustCompile(`output-(\d+)-to-(\d+)\.json$`)

// Assembler waits for OCR result fragments, concatenates their text and
// removes them from storage.
type Assembler struct {
	gateway Gateway
	logger  *slog.Logger
	// fetchLimit bounds concurrent fragment downloads.
	fetchLimit int
}

// NewAssembler creates an Assembler.
func NewAssembler(gateway Gateway, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{gateway: gateway, logger: logger, fetchLimit: 8}
}

// Assemble waits up to waitCeiling for at least one .json fragment under
// prefix, then returns the text of every annotated page. Fragments are
// consumed in order and deleted afterwards.
func (a *Assembler) Assemble(ctx context.Context, bucket, prefix string, waitCeiling, pollInterval time.Duration) (models.ExtractedText, error) {
	logCtx := a.logger.With("bucket", bucket, "prefix", prefix)
	logCtx.Info("Waiting for OCR result fragments.")

	names, err := a.waitForFragments(ctx, bucket, prefix, waitCeiling, pollInterval)
	if err != nil {
		logCtx.Error("No OCR results found", "error", err)
		return models.ExtractedText{}, err
	}
	orderFragments(names)
	logCtx.Info("Found result fragments.", "fragmentCount", len(names))

	perFragment := make([][]models.OcrResultPage, len(names))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.fetchLimit)
	for i, name := range names {
		eg.Go(func() error {
			data, err := a.gateway.Get(gctx, bucket, name)
			if err != nil {
				return fmt.Errorf("failed to read fragment %s: %w", name, err)
			}
			pages, err := decodeFragment(data, name)
			if err != nil {
				return err
			}
			perFragment[i] = pages
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("Failed to assemble fragments", "error", err)
		return models.ExtractedText{}, err
	}

	var pages []models.OcrResultPage
	for _, p := range perFragment {
		pages = append(pages, p...)
	}

	for _, name := range names {
		if err := a.gateway.Delete(ctx, bucket, name); err != nil {
			logCtx.Warn("Failed to delete consumed fragment", "gcsObject", name, "error", err)
		}
	}

	logCtx.Info("Assembly complete.", "pageCount", len(pages))
	return models.ExtractedText{Text: models.JoinPages(pages), Pages: pages}, nil
}

// waitForFragments lists prefix until a .json object appears or the ceiling
// passes.
func (a *Assembler) waitForFragments(ctx context.Context, bucket, prefix string, ceiling, interval time.Duration) ([]string, error) {
	deadline := time.Now().Add(ceiling)
	for {
		names, err := a.listFragments(ctx, bucket, prefix)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return names, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w under gs://%s/%s after %s", models.ErrResultsNotFound, bucket, prefix, ceiling)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(interval, time.Until(deadline))):
		}
	}
}

func (a *Assembler) listFragments(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	for obj, err := range a.gateway.List(ctx, bucket, prefix) {
		if err != nil {
			return nil, fmt.Errorf("failed to list results: %w", err)
		}
		if strings.HasSuffix(obj.Name, ".json") {
			names = append(names, obj.Name)
		}
	}
	return names, nil
}

// orderFragments sorts by starting page when every name follows the
// output-<from>-to-<to>.json pattern and leaves listing order otherwise.
func orderFragments(names []string) {
	starts := make(map[string]int, len(names))
	for _, n := range names {
		m := fragmentName.FindStringSubmatch(n)
		if m == nil {
			return
		}
		from, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		starts[n] = from
	}
	slices.SortStableFunc(names, func(x, y string) int {
		return starts[x] - starts[y]
	})
}

// decodeFragment parses one result file. Responses with no full text
// annotation contribute nothing; a page reported as failed fails the fragment.
func decodeFragment(data []byte, name string) ([]models.OcrResultPage, error) {
	var file visionpb.AnnotateFileResponse
	opts := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := opts.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fragment %s: %w", name, err)
	}
	var pages []models.OcrResultPage
	for i, r := range file.GetResponses() {
		page := int(r.GetContext().GetPageNumber())
		if page == 0 {
			page = i + 1
		}
		if e := r.GetError(); e != nil && e.GetCode() != 0 {
			return nil, fmt.Errorf("%w: page %d in %s (code %d): %s", models.ErrPageFailed, page, name, e.GetCode(), e.GetMessage())
		}
		ann := r.GetFullTextAnnotation()
		if ann == nil {
			continue
		}
		pages = append(pages, models.OcrResultPage{Page: page, Fragment: name, Text: ann.GetText()})
	}
	return pages, nil
}
