package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Lllllllleong/scanproof/internal/models"
	"github.com/Lllllllleong/scanproof/internal/services"
)

// MaxUploadSize bounds scanned document uploads.
const MaxUploadSize = 20 << 20

// MaxTextSize bounds JSON request bodies.
const MaxTextSize = 1 << 20

// CacheHeader reports whether a correction was served from the cache.
const CacheHeader = "X-Cache"

type WorkflowHandler struct {
	workflow *services.Workflow
	logger   *slog.Logger
}

func NewWorkflowHandler(workflow *services.Workflow, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow, logger: logger}
}

func (h *WorkflowHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.workflow.Start(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sess)
}

func (h *WorkflowHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.workflow.Session(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *WorkflowHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadDocument expects a multipart form with a "file" field.
func (h *WorkflowHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if r.ContentLength > MaxUploadSize {
		h.respondBadRequest(w, fmt.Sprintf("file exceeds %d bytes", MaxUploadSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.respondBadRequest(w, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondBadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	media, err := models.ParseMediaType(header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		h.respondError(w, err)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	if len(data) == 0 {
		h.respondBadRequest(w, "uploaded file is empty")
		return
	}

	doc := models.Document{Filename: header.Filename, MediaType: media, Content: data}
	logCtx := h.logger.With("sessionId", id, "filename", header.Filename)
	sess, err := h.workflow.SubmitDocument(r.Context(), id, doc, func(p int) {
		logCtx.Debug("OCR progress.", "percent", p)
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *WorkflowHandler) SubmitOriginal(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	sess, err := h.workflow.SubmitOriginal(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *WorkflowHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	sess, err := h.workflow.SaveDraft(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *WorkflowHandler) RunSpellCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	findings, sess, err := h.workflow.RunSpellCheck(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.SpellCheckResponse{
		SessionID: sess.ID,
		Draft:     sess.Drafts.AfterSpellCheck,
		Findings:  findings,
		Incorrect: len(models.Incorrect(findings)),
		Report:    models.FormatFindings(findings),
	})
}

func (h *WorkflowHandler) Advance(w http.ResponseWriter, r *http.Request) {
	sess, err := h.workflow.Advance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *WorkflowHandler) RunWritingReview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	critique, sess, err := h.workflow.RunWritingReview(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.WritingReviewResponse{
		SessionID: sess.ID,
		Draft:     sess.Drafts.AfterWritingReview,
		Critique:  critique,
	})
}

func (h *WorkflowHandler) Finish(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	sess, err := h.workflow.Finish(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *WorkflowHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.workflow.Reset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

// DownloadArtifact serves original.txt or completed.txt as an attachment.
func (h *WorkflowHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind := models.Artifact(vars["kind"])
	if kind != models.ArtifactOriginal && kind != models.ArtifactCompleted {
		h.respondBadRequest(w, fmt.Sprintf("unknown artifact %q", vars["kind"]))
		return
	}
	name, data, err := h.workflow.Artifact(r.Context(), vars["id"], kind)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Correct runs a single directive outside any session.
func (h *WorkflowHandler) Correct(w http.ResponseWriter, r *http.Request) {
	var req models.CorrectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTextSize)).Decode(&req); err != nil {
		h.respondBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.workflow.Correct(r.Context(), models.CorrectionRequest{Text: req.Text, Directive: req.Directive})
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := models.CorrectResponse{Directive: res.Directive, Text: res.Text, Findings: res.Findings}
	if res.Directive.Structured() {
		resp.Report = models.FormatFindings(res.Findings)
	}
	// The body is identical for cached and fresh results.
	w.Header().Set(CacheHeader, "MISS")
	if res.Cached {
		w.Header().Set(CacheHeader, "HIT")
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *WorkflowHandler) decodeText(w http.ResponseWriter, r *http.Request) (models.TextRequest, bool) {
	var req models.TextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxTextSize)).Decode(&req); err != nil {
		h.respondBadRequest(w, "invalid JSON body")
		return req, false
	}
	return req, true
}

func (h *WorkflowHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *WorkflowHandler) respondBadRequest(w http.ResponseWriter, message string) {
	h.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: message})
}

func (h *WorkflowHandler) respondError(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request error", "status", status, "error", err)
	} else {
		h.logger.Warn("Request rejected", "status", status, "error", err)
	}
	var ce *models.CorrectionError
	if errors.As(err, &ce) && ce.Snippet != "" {
		h.logger.Debug("Unparseable model response", "snippet", ce.Snippet)
	}
	h.respondJSON(w, status, body)
}
