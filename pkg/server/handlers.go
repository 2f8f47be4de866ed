package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peruse-ai/peruse/pkg/ingest"
	"github.com/peruse-ai/peruse/pkg/store"
)

type submitRequest struct {
	HTML      string `json:"html"`
	SourceURL string `json:"source_url"`
}

type submitResponse struct {
	SubmissionID string `json:"submission_id"`
	RedirectURL  string `json:"redirect_url"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.HTML == "" {
		writeError(w, http.StatusBadRequest, "html is required")
		return
	}

	sub, err := s.service.Submit(r.Context(), req.HTML, "", req.SourceURL)
	if err != nil {
		s.logger.Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create submission")
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		SubmissionID: sub.ID,
		RedirectURL:  fmt.Sprintf("/submission/%s", sub.ID),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "form field 'file' is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	content, err := ingest.FromFile(header.Filename, data)
	if errors.Is(err, ingest.ErrUnsupportedType) {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type, allowed: %v", ingest.AllowedExtensions))
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.service.Submit(r.Context(), content.HTML, content.Text, "")
	if err != nil {
		s.logger.Error("upload submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create submission")
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		SubmissionID: sub.ID,
		RedirectURL:  fmt.Sprintf("/submission/%s", sub.ID),
	})
}

// submissionDocument is the full submission plus the derived overall
// status.
type submissionDocument struct {
	*store.Submission
	OverallStatus string `json:"overall_status"`
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.loadSubmission(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, submissionDocument{Submission: sub, OverallStatus: sub.OverallStatus()})
}

func (s *Server) handleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.loadSubmission(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submission_id":  sub.ID,
		"tasks":          sub.Tasks,
		"overall_status": sub.OverallStatus(),
	})
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.service.DeleteSubmission(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		s.logger.Error("delete submission failed", "submission_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete submission")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"submission_id": id, "status": "deleted"})
}

type refreshRequest struct {
	Tasks []string `json:"tasks"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req refreshRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	names, err := s.service.Refresh(r.Context(), id, req.Tasks)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submission_id": id, "tasks": names})
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	filter := store.SubmissionFilter{
		SubmissionID: r.URL.Query().Get("submission_id"),
		Status:       r.URL.Query().Get("status"),
		Limit:        limit,
	}
	subs, err := s.submissions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list submissions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}

	docs := make([]submissionDocument, len(subs))
	for i, sub := range subs {
		docs[i] = submissionDocument{Submission: sub, OverallStatus: sub.OverallStatus()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": docs, "count": len(docs)})
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	filter := store.QueueFilter{
		SubmissionID: r.URL.Query().Get("submission_id"),
		Status:       r.URL.Query().Get("status"),
		Limit:        limit,
	}
	entries, err := s.queue.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list queue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list task queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": entries, "count": len(entries)})
}

type queueAddRequest struct {
	SubmissionID string `json:"submission_id"`
	TaskType     string `json:"task_type"`
	Priority     int    `json:"priority"`
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req queueAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SubmissionID == "" || req.TaskType == "" {
		writeError(w, http.StatusBadRequest, "submission_id and task_type are required")
		return
	}

	entry, err := s.service.AddTask(r.Context(), req.SubmissionID, req.TaskType, req.Priority)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            entry.ID,
		"submission_id": entry.SubmissionID,
		"task_type":     entry.TaskType,
		"priority":      entry.Priority,
	})
}

func (s *Server) handleQueueDelete(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	if _, err := uuid.Parse(entryID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	err := s.queue.Delete(r.Context(), entryID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "queue entry not found")
		return
	}
	if err != nil {
		s.logger.Error("delete queue entry failed", "entry_id", entryID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete queue entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": entryID, "status": "deleted"})
}

func (s *Server) handleQueueRepeat(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	if _, err := uuid.Parse(entryID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	names, err := s.service.Repeat(r.Context(), entryID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "queue entry not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": entryID, "tasks": names})
}

func (s *Server) loadSubmission(w http.ResponseWriter, r *http.Request) (*store.Submission, bool) {
	id := chi.URLParam(r, "id")
	sub, err := s.submissions.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "submission not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("load submission failed", "submission_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load submission")
		return nil, false
	}
	return sub, true
}

// parseLimit reads the optional limit query parameter. Zero means "use
// the store default"; explicit non-positive values are rejected.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}
