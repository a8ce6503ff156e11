package gcp

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// transientHTTPStatus reports whether an HTTP status is worth retrying.
func transientHTTPStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// classifyGoogleError maps a Google API client error onto the correction
// failure taxonomy.
func classifyGoogleError(err error) *models.CorrectionError {
	if errors.Is(err, context.Canceled) {
		return models.NewCorrectionError(models.KindNetwork, "request cancelled", err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		ce := models.NewCorrectionError(models.KindRemote, "", err)
		ce.Transient = transientHTTPStatus(gerr.Code)
		return ce
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal, codes.Aborted:
			ce := models.NewCorrectionError(models.KindRemote, "", err)
			ce.Transient = true
			return ce
		case codes.Unauthenticated, codes.PermissionDenied:
			return models.NewCorrectionError(models.KindCredentialsMissing, "remote rejected credentials", err)
		default:
			return models.NewCorrectionError(models.KindRemote, "", err)
		}
	}

	// Anything that never reached the service (dial, TLS, reset) is a network error.
	return models.NewCorrectionError(models.KindNetwork, "", err)
}
