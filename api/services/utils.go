package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/lib/pq"
	"github.com/trackhive/user-services/internal/apperr"
	"github.com/trackhive/user-services/models"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)

// IsValidEmail returns true if the provided address looks like an email
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func WriteResponse(w http.ResponseWriter, statusCode int, response interface{}, location ...string) {

	w.Header().Set("Content-Type", "application/json")

	// We don't want to cache API responses so the client receives most curent data
	w.Header().Set("Cache-Control", "max-age=0")

	// Conditionally set the Location header if provided
	if len(location) > 0 && location[0] != "" {
		w.Header().Set("Location", location[0])
	}

	w.WriteHeader(statusCode)

	if response != nil {
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
			return // **Return immediately to avoid multiple WriteHeader calls**
		}
	}
}

// HandleErrResponse maps structured API errors to their status code and
// renders everything else as an internal error, surfacing pq error codes.
func HandleErrResponse(w http.ResponseWriter, err error) {
	if e, ok := apperr.From(err); ok {
		WriteResponse(w, e.Status, models.Response{
			Success:      0,
			ErrorCode:    e.Code,
			ErrorDetails: e.Message,
		})
		return
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		WriteResponse(w, http.StatusInternalServerError, models.Response{
			Success:      0,
			ErrorCode:    pqErr.Code.Name(),
			ErrorDetails: pqErr.Message,
		})
		return
	}

	WriteResponse(w, http.StatusInternalServerError, models.Response{
		Success:      0,
		ErrorDetails: err.Error(),
	})
}
