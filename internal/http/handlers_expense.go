package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ricevute/internal/feed"
)

type listResponse struct {
	Items   []expenseDTO `json:"items"`
	HasMore bool         `json:"hasMore"`
}

type fetchMoreResponse struct {
	Added   int          `json:"added"`
	Items   []expenseDTO `json:"items"`
	HasMore bool         `json:"hasMore"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{
		Items:   toDTOs(s.feed.Items()),
		HasMore: s.feed.HasMore(),
	})
}

func (s *Server) handleFetchMore(w http.ResponseWriter, r *http.Request) {
	added, err := s.feed.FetchMore(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Fetching next page failed", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchMoreResponse{
		Added:   added,
		Items:   toDTOs(s.feed.Items()),
		HasMore: s.feed.HasMore(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.expenses.UnprocessedSummary(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Summary query failed", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type updateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.expenses.UpdateField(r.Context(), id, req.Field, req.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.feed.Apply(feed.Event{Type: feed.EventUpdated, ExpenseID: id, Expense: updated})
	writeJSON(w, http.StatusOK, toDTO(updated))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.expenses.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.feed.Apply(feed.Event{Type: feed.EventUpdated, ExpenseID: id, Expense: updated})
	writeJSON(w, http.StatusOK, toDTO(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.expenses.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.feed.Apply(feed.Event{Type: feed.EventDeleted, ExpenseID: id})
	w.WriteHeader(http.StatusNoContent)
}

// maxUploadBytes bounds receipt uploads; phone camera JPEGs stay well under
// this.
const maxUploadBytes = 20 << 20

type uploadResponse struct {
	ObjectPath string `json:"objectPath"`
	Bytes      int64  `json:"bytes"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("receipt")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing receipt file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var total int64
	objectPath, err := s.expenses.Upload(r.Context(), claims.Subject, header.Filename, contentType, file, func(written int64) {
		total = written
		slog.DebugContext(r.Context(), "Upload progress",
			"user_id", claims.Subject, "filename", header.Filename, "bytes", written)
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "Upload failed",
			"user_id", claims.Subject, "filename", header.Filename, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{ObjectPath: objectPath, Bytes: total})
}

// handleSubscribe streams feed changes as server-sent events until the
// client disconnects.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(struct {
				ExpenseID string      `json:"expenseId"`
				Expense   *expenseDTO `json:"expense,omitempty"`
			}{
				ExpenseID: ev.ExpenseID,
				Expense:   eventExpense(ev),
			})
			if err != nil {
				slog.ErrorContext(r.Context(), "Failed to encode feed event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

func eventExpense(ev feed.Event) *expenseDTO {
	if ev.Type == feed.EventDeleted {
		return nil
	}
	dto := toDTO(ev.Expense)
	return &dto
}
