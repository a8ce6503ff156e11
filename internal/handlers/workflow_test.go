package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/Lllllllleong/scanproof/internal/gcp"
	"github.com/Lllllllleong/scanproof/internal/models"
	"github.com/Lllllllleong/scanproof/internal/services"
)

const findingsReply = `[{"sentence_id":0,"original_sentence":"나는 학교에 갔다","is_correct":false,"corrections":[{"incorrect_word":"갔다","correct_word":"갔다.","reason":"missing period"}]}]`

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) Extract(context.Context, string, models.Document, services.ProgressFunc) (models.ExtractedText, error) {
	if s.err != nil {
		return models.ExtractedText{}, s.err
	}
	return models.ExtractedText{Text: s.text, Pages: []models.OcrResultPage{{Page: 1, Text: s.text}}}, nil
}

// stubGenerator answers by directive: JSON prompts get findings, others a critique.
type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) Generate(_ context.Context, p gcp.Prompt) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	if p.JSON {
		return findingsReply, nil
	}
	return "=== 평가 ===\n좋아요", nil
}

func newTestServer(t *testing.T, ex services.TextExtractor, gen services.Generator) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := services.NewResultCache(time.Hour)
	t.Cleanup(cache.Close)
	corrector := services.NewCorrector(gen, cache, services.CorrectorConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, logger)
	wf := services.NewWorkflow(services.NewSessionManager(services.NewMemorySessionStore(), logger), ex, corrector, logger)
	server := httptest.NewServer(NewRouter(wf, logger))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func uploadFile(t *testing.T, url, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestWorkflowEndToEnd(t *testing.T) {
	server := newTestServer(t, stubExtractor{text: "나는 학교에 갔다\n\n"}, stubGenerator{})
	api := server.URL + "/api/v1"

	var sess models.Session
	if code := doJSON(t, http.MethodPost, api+"/sessions", nil, &sess); code != http.StatusCreated {
		t.Fatalf("create session status = %d", code)
	}
	base := api + "/sessions/" + sess.ID

	resp := uploadFile(t, base+"/document", "essay.pdf", "application/pdf", []byte("%PDF"))
	_ = json.NewDecoder(resp.Body).Decode(&sess)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || sess.Drafts.Original != "나는 학교에 갔다\n\n" {
		t.Fatalf("upload status = %d session = %+v", resp.StatusCode, sess)
	}

	if code := doJSON(t, http.MethodPost, base+"/original", models.TextRequest{Text: "나는 학교에 갔다"}, &sess); code != http.StatusOK {
		t.Fatalf("submit original status = %d", code)
	}

	var spell models.SpellCheckResponse
	if code := doJSON(t, http.MethodPost, base+"/spellcheck", models.TextRequest{Text: "나는 학교에 갔다"}, &spell); code != http.StatusOK {
		t.Fatalf("spellcheck status = %d", code)
	}
	if spell.Incorrect != 1 || len(spell.Findings) != 1 || !strings.Contains(spell.Report, "Incorrect: 1") {
		t.Errorf("spellcheck response = %+v", spell)
	}

	if code := doJSON(t, http.MethodPut, base+"/draft", models.TextRequest{Text: "나는 학교에 갔다."}, &sess); code != http.StatusOK {
		t.Fatalf("save draft status = %d", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/advance", nil, &sess); code != http.StatusOK || sess.Stage != models.StageAfterWritingReview {
		t.Fatalf("advance status = %d stage = %s", code, sess.Stage)
	}

	var review models.WritingReviewResponse
	if code := doJSON(t, http.MethodPost, base+"/review", models.TextRequest{Text: sess.Drafts.AfterWritingReview}, &review); code != http.StatusOK {
		t.Fatalf("review status = %d", code)
	}
	if !strings.HasPrefix(review.Critique, "=== 평가 ===") {
		t.Errorf("critique = %q", review.Critique)
	}

	if code := doJSON(t, http.MethodPost, base+"/finish", models.TextRequest{Text: "최종 글"}, &sess); code != http.StatusOK || sess.Stage != models.StageFinal {
		t.Fatalf("finish status = %d stage = %s", code, sess.Stage)
	}

	dl, err := http.Get(base + "/artifacts/completed")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(dl.Body)
	dl.Body.Close()
	if dl.StatusCode != http.StatusOK || string(body) != "최종 글" {
		t.Errorf("download status = %d body = %q", dl.StatusCode, body)
	}
	if got := dl.Header.Get("Content-Disposition"); !strings.Contains(got, "completed.txt") {
		t.Errorf("content disposition = %q", got)
	}
}

func TestErrorResponses(t *testing.T) {
	parseFail := stubGenerator{reply: "I cannot produce JSON today."}
	server := newTestServer(t, stubExtractor{err: models.ErrNoTextRecognized}, parseFail)
	api := server.URL + "/api/v1"

	var sess models.Session
	doJSON(t, http.MethodPost, api+"/sessions", nil, &sess)
	base := api + "/sessions/" + sess.ID

	var errResp models.ErrorResponse
	if code := doJSON(t, http.MethodGet, api+"/sessions/nope", nil, &errResp); code != http.StatusNotFound {
		t.Errorf("missing session status = %d", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/advance", nil, &errResp); code != http.StatusConflict {
		t.Errorf("out of order status = %d", code)
	}
	if code := doJSON(t, http.MethodPost, base+"/original", models.TextRequest{Text: " "}, &errResp); code != http.StatusBadRequest {
		t.Errorf("empty draft status = %d", code)
	}

	resp := uploadFile(t, base+"/document", "blank.png", "image/png", []byte{1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("no text status = %d", resp.StatusCode)
	}
	resp = uploadFile(t, base+"/document", "notes.docx", "application/msword", []byte{1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported media status = %d", resp.StatusCode)
	}

	doJSON(t, http.MethodPost, base+"/original", models.TextRequest{Text: "글"}, &sess)
	errResp = models.ErrorResponse{}
	if code := doJSON(t, http.MethodPost, base+"/spellcheck", models.TextRequest{Text: "글"}, &errResp); code != http.StatusUnprocessableEntity {
		t.Errorf("parse failure status = %d", code)
	}
	if errResp.Kind != string(models.KindParse) || errResp.Snippet == "" {
		t.Errorf("parse failure body = %+v", errResp)
	}

	if code := doJSON(t, http.MethodGet, base+"/artifacts/secret", nil, &errResp); code != http.StatusBadRequest {
		t.Errorf("unknown artifact status = %d", code)
	}
}

func TestCorrectEndpoint(t *testing.T) {
	server := newTestServer(t, stubExtractor{}, stubGenerator{})
	url := server.URL + "/api/v1/correct"

	req, _ := json.Marshal(models.CorrectRequest{Text: "나는 학교에 갔다", Directive: models.SpellingAnalysis})
	post := func() (string, []byte) {
		t.Helper()
		resp, err := http.Post(url, "application/json", bytes.NewReader(req))
		if err != nil {
			t.Fatalf("correct: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("correct status = %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		return resp.Header.Get(CacheHeader), body
	}

	firstCache, first := post()
	secondCache, second := post()
	if firstCache != "MISS" || secondCache != "HIT" {
		t.Errorf("cache headers = %q, %q; want MISS, HIT", firstCache, secondCache)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("cached body differs:\n%s\n%s", first, second)
	}
	var decoded models.CorrectResponse
	if err := json.Unmarshal(second, &decoded); err != nil || len(decoded.Findings) != 1 || decoded.Report == "" {
		t.Errorf("response = %s (%v)", second, err)
	}

	var errResp models.ErrorResponse
	if code := doJSON(t, http.MethodPost, url, models.CorrectRequest{Text: "x", Directive: "poem"}, &errResp); code != http.StatusBadRequest {
		t.Errorf("unknown directive status = %d", code)
	}
}

func TestErrorStatus(t *testing.T) {
	transient := models.NewCorrectionError(models.KindRemote, "503", nil)
	transient.Transient = true
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrSessionBusy, http.StatusConflict},
		{&models.TimeoutError{JobID: "j", Ceiling: time.Second}, http.StatusGatewayTimeout},
		{&models.JobFailedError{JobID: "j", Err: io.EOF}, http.StatusBadGateway},
		{models.ErrResultsNotFound, http.StatusBadGateway},
		{fmt.Errorf("assemble: %w", models.ErrPageFailed), http.StatusBadGateway},
		{models.NewCorrectionError(models.KindCredentialsMissing, "", nil), http.StatusInternalServerError},
		{models.NewCorrectionError(models.KindEmptyResponse, "", nil), http.StatusUnprocessableEntity},
		{transient, http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDeleteSession(t *testing.T) {
	server := newTestServer(t, stubExtractor{}, stubGenerator{})
	api := server.URL + "/api/v1"

	var sess models.Session
	doJSON(t, http.MethodPost, api+"/sessions", nil, &sess)

	if code := doJSON(t, http.MethodDelete, api+"/sessions/"+sess.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d", code)
	}
	if code := doJSON(t, http.MethodGet, api+"/sessions/"+sess.ID, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", code)
	}
	if code := doJSON(t, http.MethodDelete, api+"/sessions/"+sess.ID, nil, nil); code != http.StatusNotFound {
		t.Errorf("second delete status = %d", code)
	}
}

func TestMiddlewareRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := mux.NewRouter()
	useMiddleware(r, logger)
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
