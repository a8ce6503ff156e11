package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// VertexGenerator sends prompts to a Gemini model hosted on Vertex AI.
type VertexGenerator struct {
	modelName  string
	baseClient *genai.Client
}

// NewVertexGenerator creates a generator using application default credentials.
func NewVertexGenerator(ctx context.Context, projectID, region, modelName string) (*VertexGenerator, error) {
	if projectID == "" || region == "" {
		return nil, models.NewCorrectionError(models.KindCredentialsMissing, "projectID and region cannot be empty", nil)
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, models.NewCorrectionError(models.KindClientInitFailed, "genai.NewClient", err)
	}

	return &VertexGenerator{
		modelName:  modelName,
		baseClient: baseClient,
	}, nil
}

// model configures a generative model for one prompt.
func (g *VertexGenerator) model(p Prompt) *genai.GenerativeModel {
	m := g.baseClient.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(p.System)},
	}
	if p.JSON {
		m.GenerationConfig = genai.GenerationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.0),
		}
	}
	// Student essays may quote sensitive topics; blocking them would lose text.
	m.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	return m
}

// Generate sends the prompt and returns the concatenated text parts of the
// first candidate.
func (g *VertexGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	resp, err := g.model(p).GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", models.NewCorrectionError(models.KindRemote, "response blocked", err)
		}
		return "", classifyGoogleError(err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", models.NewCorrectionError(models.KindEmptyResponse, "vertex returned no text", nil)
	}
	return text, nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

// Name identifies the backend in logs.
func (g *VertexGenerator) Name() string {
	return fmt.Sprintf("vertex/%s", g.modelName)
}

func (g *VertexGenerator) Close() error {
	if g.baseClient != nil {
		return g.baseClient.Close()
	}
	return nil
}
