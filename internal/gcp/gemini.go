package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// GeminiConfig configures the API-key generator.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GeminiGenerator calls Gemini through its OpenAI-compatible endpoint,
// authenticating with an API key instead of project credentials.
type GeminiGenerator struct {
	model  string
	client openai.Client
}

// NewGeminiGenerator creates a generator. An empty API key is reported as
// missing credentials.
func NewGeminiGenerator(cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, models.NewCorrectionError(models.KindCredentialsMissing, "gemini api key is empty", nil)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Retries are owned by the correction client.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &GeminiGenerator{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}, nil
}

// Generate sends the prompt as a system + user chat exchange.
func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
	}
	if p.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", models.NewCorrectionError(models.KindEmptyResponse, "gemini returned no text", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyGeminiError(err error) *models.CorrectionError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return models.NewCorrectionError(models.KindCredentialsMissing, fmt.Sprintf("gemini rejected api key (status %d)", apiErr.StatusCode), err)
		}
		ce := models.NewCorrectionError(models.KindRemote, fmt.Sprintf("gemini status %d", apiErr.StatusCode), err)
		ce.Transient = transientHTTPStatus(apiErr.StatusCode)
		return ce
	}
	return classifyGoogleError(err)
}

// Name identifies the backend in logs.
func (g *GeminiGenerator) Name() string {
	return "gemini/" + g.model
}
