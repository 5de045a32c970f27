package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ricevute/internal/auth"
	"ricevute/internal/core"
	"ricevute/internal/services"
	"ricevute/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

// expenseDTO is the wire shape of an expense record. The date travels as a
// calendar day, timestamps as RFC 3339.
type expenseDTO struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	UploaderEmail    string    `json:"uploaderEmail,omitempty"`
	Amount           float64   `json:"amount"`
	Date             string    `json:"date"`
	Merchant         string    `json:"merchant"`
	Category         string    `json:"category"`
	Description      string    `json:"description"`
	OriginalImageURL string    `json:"originalImageUrl"`
	ThumbnailURL     string    `json:"thumbnailUrl,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toDTO(e core.Expense) expenseDTO {
	return expenseDTO{
		ID:               e.ID,
		UserID:           e.UserID,
		UploaderEmail:    e.UploaderEmail,
		Amount:           e.Amount,
		Date:             e.Date.Format("2006-01-02"),
		Merchant:         e.Merchant,
		Category:         e.Category,
		Description:      e.Description,
		OriginalImageURL: e.OriginalImageURL,
		ThumbnailURL:     e.ThumbnailURL,
		Status:           string(e.Status),
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func toDTOs(expenses []core.Expense) []expenseDTO {
	out := make([]expenseDTO, len(expenses))
	for i, e := range expenses {
		out[i] = toDTO(e)
	}
	return out
}

type userDTO struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	UserName string `json:"userName,omitempty"`
}

func toUserDTO(u core.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, UserName: u.UserName}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusForError maps domain errors to HTTP statuses. Unknown errors are
// internal by default so their text never leaks to the client.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, services.ErrUnknownField),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrDomainNotAllowed), errors.Is(err, auth.ErrAccountDisabled):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
