package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"field-protection-service/internal/domain"
	"field-protection-service/pkg/httputil"
)

var entityTypeRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

func validateEntityType(entityType string) error {
	if !entityTypeRegex.MatchString(entityType) {
		return domain.ErrInvalidEntityType
	}
	return nil
}

// writeError はドメインエラーをHTTPステータスとエラーコードに変換して返す。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrKeyNotFound):
		httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found")
	case errors.Is(err, domain.ErrResourceNotFound):
		httputil.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "resource not found")
	case errors.Is(err, domain.ErrDecryptionFailed):
		httputil.Error(w, http.StatusUnprocessableEntity, "DECRYPTION_FAILED", "decryption failed")
	case errors.Is(err, domain.ErrDeserialization):
		httputil.Error(w, http.StatusUnprocessableEntity, "DESERIALIZATION_FAILED", "could not parse decrypted data")
	case errors.Is(err, domain.ErrSerialization):
		httputil.Error(w, http.StatusBadRequest, "INVALID_VALUE", err.Error())
	case errors.Is(err, domain.ErrInvalidDataType):
		httputil.Error(w, http.StatusBadRequest, "INVALID_DATA_TYPE", "invalid data type")
	case errors.Is(err, domain.ErrInvalidMaskingType):
		httputil.Error(w, http.StatusBadRequest, "INVALID_MASKING_TYPE", "invalid masking type")
	case errors.Is(err, domain.ErrInvalidEntityType):
		httputil.Error(w, http.StatusBadRequest, "INVALID_ENTITY_TYPE", "invalid entity type format")
	case errors.Is(err, domain.ErrInvalidResourceType):
		httputil.Error(w, http.StatusBadRequest, "INVALID_RESOURCE_TYPE", "invalid resource type")
	case errors.Is(err, domain.ErrInvalidAction):
		httputil.Error(w, http.StatusBadRequest, "INVALID_ACTION", "invalid action")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
}
