package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/scanproof/internal/config"
	"github.com/Lllllllleong/scanproof/internal/services"
)

var (
	ingestInstance *services.IngestFunction
	once           sync.Once
	initErr        error
)

func init() {
	functions.CloudEvent("ExtractText", extractText)
}

// main is required by the Go Functions Framework.
func main() {}

// extractText is the Cloud Function entry point for storage finalize events.
func extractText(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			initErr = err
			return
		}
		logger := config.NewLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		ingestInstance, initErr = services.NewIngestFromConfig(context.Background(), cfg, logger)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return ingestInstance.Process(ctx, gcsEvent)
}
