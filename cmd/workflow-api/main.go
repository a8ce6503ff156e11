package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/scanproof/internal/config"
	"github.com/Lllllllleong/scanproof/internal/handlers"
	"github.com/Lllllllleong/scanproof/internal/services"
)

var (
	router  http.Handler
	once    sync.Once
	initErr error
)

func init() {
	functions.HTTP("HandleWorkflow", handleWorkflow)
}

// main is required by the Go Functions Framework.
func main() {}

// handleWorkflow serves the session workflow API.
func handleWorkflow(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			initErr = err
			return
		}
		logger := config.NewLogger(cfg.LogLevel)
		slog.SetDefault(logger)

		workflow, err := services.NewWorkflowFromConfig(context.Background(), cfg, logger, true)
		if err != nil {
			initErr = err
			return
		}
		router = handlers.NewRouter(workflow, logger)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	router.ServeHTTP(w, r)
}
