package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Lllllllleong/scanproof/internal/services"
)

// NewRouter wires the workflow endpoints.
func NewRouter(workflow *services.Workflow, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	useMiddleware(r, logger)

	h := NewWorkflowHandler(workflow, logger)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	api.HandleFunc("/correct", h.Correct).Methods(http.MethodPost)

	api.HandleFunc("/sessions", h.StartSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/document", h.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/original", h.SubmitOriginal).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/draft", h.SaveDraft).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/spellcheck", h.RunSpellCheck).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/advance", h.Advance).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/review", h.RunWritingReview).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/finish", h.Finish).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/reset", h.Reset).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/artifacts/{kind}", h.DownloadArtifact).Methods(http.MethodGet)

	return r
}

func useMiddleware(r *mux.Router, logger *slog.Logger) {
	r.Use(requestLogger(logger))
	r.Use(gorillahandlers.RecoveryHandler(gorillahandlers.RecoveryLogger(panicLogger{logger})))
}

// requestLogger writes one structured line per request.
func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return gorillahandlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p gorillahandlers.LogFormatterParams) {
			logger.Info("Request handled",
				"method", p.Request.Method,
				"path", p.URL.Path,
				"status", p.StatusCode,
				"size", p.Size,
				"duration", time.Since(p.TimeStamp).String())
		})
	}
}

// panicLogger adapts slog to the recovery handler's logger.
type panicLogger struct {
	logger *slog.Logger
}

func (l panicLogger) Println(v ...any) {
	l.logger.Error("Panic while handling request", "panic", fmt.Sprint(v...))
}
