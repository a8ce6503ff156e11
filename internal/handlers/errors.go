package handlers

import (
	"errors"
	"net/http"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// errorStatus maps a workflow failure onto an HTTP status and response body.
func errorStatus(err error) (int, models.ErrorResponse) {
	resp := models.ErrorResponse{Error: err.Error()}

	var ce *models.CorrectionError
	if errors.As(err, &ce) {
		resp.Kind = string(ce.Kind)
		resp.Snippet = ce.Snippet
		switch ce.Kind {
		case models.KindCredentialsMissing, models.KindClientInitFailed:
			return http.StatusInternalServerError, resp
		case models.KindParse, models.KindEmptyResponse:
			return http.StatusUnprocessableEntity, resp
		default:
			return http.StatusBadGateway, resp
		}
	}

	var failed *models.JobFailedError
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound, resp
	case errors.Is(err, models.ErrSessionBusy), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, resp
	case errors.Is(err, models.ErrEmptyDraft), errors.Is(err, models.ErrUnknownDirective), errors.Is(err, models.ErrUnsupportedMedia):
		return http.StatusBadRequest, resp
	case errors.Is(err, models.ErrJobTimeout):
		return http.StatusGatewayTimeout, resp
	case errors.Is(err, models.ErrNoTextRecognized):
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, models.ErrResultsNotFound), errors.Is(err, models.ErrPageFailed), errors.As(err, &failed):
		return http.StatusBadGateway, resp
	case errors.Is(err, models.ErrCredentialsMissing):
		return http.StatusInternalServerError, resp
	}
	return http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"}
}
