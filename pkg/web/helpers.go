package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RespondJSON writes payload with status. A nil payload writes the status only.
// The body is encoded before the header goes out so an encoding failure still yields a 500.
func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error encoding response to JSON", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	RespondJSON(w, logger, status, map[string]string{"error": message})
}

// PathUUID parses the path value name as a UUID. On failure it writes a 400 and returns false.
func PathUUID(w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string) (uuid.UUID, bool) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %s", name, raw))
		return uuid.Nil, false
	}
	return id, true
}

// GetUserID returns the caller set by AuthMiddleware, or writes a 401.
func GetUserID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	raw, _ := UserIDFrom(r.Context())
	userID, err := uuid.Parse(raw)
	if err != nil {
		RespondError(w, logger, http.StatusUnauthorized, "Unauthorized: missing or invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

// DecodeAndValidate decodes a JSON body into dst and validates it.
// On failure the response is written and false is returned.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, validate *validator.Validate, dst any) bool {
	ctx := r.Context()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.WarnContext(ctx, "Error decoding request body", slog.Any("error", err))
		RespondError(w, logger, http.StatusBadRequest, "Invalid request body")
		return false
	}

	err := validate.Struct(dst)
	if err == nil {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		logger.ErrorContext(ctx, "Error validating request body", slog.Any("error", err))
		RespondError(w, logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	rules := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		rules[fe.Field()] = "failed on rule: " + fe.Tag()
	}
	logger.WarnContext(ctx, "Validation errors occurred", slog.Any("errors", rules))
	RespondJSON(w, logger, http.StatusBadRequest, map[string]any{"validation_errors": rules})
	return false
}
