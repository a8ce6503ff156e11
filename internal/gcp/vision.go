package gcp

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// syncPDFPages is the page selection for synchronous PDF recognition.
var syncPDFPages = []int32{1}

// VisionAnnotator runs DOCUMENT_TEXT_DETECTION through the Cloud Vision API.
type VisionAnnotator struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionAnnotator creates a Vision client using application default credentials.
func NewVisionAnnotator(ctx context.Context, opts ...option.ClientOption) (*VisionAnnotator, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision.NewImageAnnotatorClient: %w", err)
	}
	return &VisionAnnotator{client: client}, nil
}

func documentTextFeatures() []*visionpb.Feature {
	return []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}
}

// DetectDocumentText recognizes an image, or the first page of a PDF, in a
// single blocking call.
func (a *VisionAnnotator) DetectDocumentText(ctx context.Context, content []byte, media models.MediaType) ([]models.OcrResultPage, error) {
	if media == models.MediaPDF {
		return a.detectFile(ctx, content, media)
	}

	resp, err := a.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: content},
			Features: documentTextFeatures(),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("BatchAnnotateImages: %w", err)
	}
	return pagesFromResponses(resp.GetResponses(), "inline")
}

func (a *VisionAnnotator) detectFile(ctx context.Context, content []byte, media models.MediaType) ([]models.OcrResultPage, error) {
	resp, err := a.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{Content: content, MimeType: string(media)},
			Features:    documentTextFeatures(),
			Pages:       syncPDFPages,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("BatchAnnotateFiles: %w", err)
	}

	var pages []models.OcrResultPage
	for _, fileResp := range resp.GetResponses() {
		if e := fileResp.GetError(); e != nil {
			return nil, fmt.Errorf("%w: vision file error (code %d): %s", models.ErrPageFailed, e.GetCode(), e.GetMessage())
		}
		filePages, err := pagesFromResponses(fileResp.GetResponses(), "inline")
		if err != nil {
			return nil, err
		}
		pages = append(pages, filePages...)
	}
	return pages, nil
}

// pagesFromResponses converts per-page annotation responses into result pages.
// Responses without a full text annotation contribute nothing.
func pagesFromResponses(responses []*visionpb.AnnotateImageResponse, fragment string) ([]models.OcrResultPage, error) {
	var pages []models.OcrResultPage
	for i, r := range responses {
		if e := r.GetError(); e != nil && e.GetCode() != 0 {
			return nil, fmt.Errorf("%w: vision page error (code %d): %s", models.ErrPageFailed, e.GetCode(), e.GetMessage())
		}
		if r.GetFullTextAnnotation() == nil {
			continue
		}
		page := int(r.GetContext().GetPageNumber())
		if page == 0 {
			page = i + 1
		}
		pages = append(pages, models.OcrResultPage{
			Page:     page,
			Fragment: fragment,
			Text:     r.GetFullTextAnnotation().GetText(),
		})
	}
	return pages, nil
}

// StartFileAnnotation submits an asynchronous batch job that reads the PDF at
// job.SourceURI and writes one JSON fragment per page under the destination.
func (a *VisionAnnotator) StartFileAnnotation(ctx context.Context, job *models.OcrJob) (Operation, error) {
	op, err := a.client.AsyncBatchAnnotateFiles(ctx, &visionpb.AsyncBatchAnnotateFilesRequest{
		Requests: []*visionpb.AsyncAnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{
				GcsSource: &visionpb.GcsSource{Uri: job.SourceURI},
				MimeType:  job.MimeType,
			},
			Features: documentTextFeatures(),
			OutputConfig: &visionpb.OutputConfig{
				GcsDestination: &visionpb.GcsDestination{Uri: job.DestinationURI()},
				BatchSize:      1,
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("AsyncBatchAnnotateFiles: %w", err)
	}
	return &VisionOperation{op: op}, nil
}

// Operation is a pollable long-running annotation job.
type Operation interface {
	Name() string
	Poll(ctx context.Context) (done bool, err error)
}

// VisionOperation wraps the long-running batch annotation operation.
type VisionOperation struct {
	op *vision.AsyncBatchAnnotateFilesOperation
}

// Name is the server-assigned operation name.
func (o *VisionOperation) Name() string {
	return o.op.Name()
}

// Poll refreshes the operation state once. A non-nil error with done=true is
// the terminal failure of the job.
func (o *VisionOperation) Poll(ctx context.Context) (bool, error) {
	_, err := o.op.Poll(ctx)
	return o.op.Done(), err
}

// Close releases the underlying client.
func (a *VisionAnnotator) Close() error {
	return a.client.Close()
}
