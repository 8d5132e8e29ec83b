package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type handler struct {
	history History
	log     *slog.Logger
}

// listParams are the query parameters shared by list endpoints.
type listParams struct {
	Limit  int    `validate:"gte=-1,lte=10000"`
	Entity string `validate:"omitempty,oneof=unassignedCash actualBalance debt envelope transaction bill"`
	Object string `validate:"omitempty,max=200"`
	Author string `validate:"omitempty,max=200"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func parseList(r *http.Request) (listParams, error) {
	q := r.URL.Query()
	p := listParams{
		Entity: q.Get("entity"),
		Object: q.Get("object"),
		Author: q.Get("author"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return listParams{}, errors.New("limit must be an integer")
		}
		p.Limit = n
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return listParams{}, fmt.Errorf("invalid %s", verrs[0].Field())
		}
		return listParams{}, err
	}
	return p, nil
}

func (h *handler) listHistory(w http.ResponseWriter, r *http.Request) {
	p, err := parseList(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	commits := h.history.GetHistory(r.Context(), engine.HistoryOptions{
		Limit:      p.Limit,
		EntityType: model.EntityType(p.Entity),
		ObjectID:   p.Object,
		Author:     p.Author,
	})
	respondJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (h *handler) getCommit(w http.ResponseWriter, r *http.Request) {
	hash, err := h.history.ResolveHash(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	details, ok := h.history.GetCommitDetails(r.Context(), hash)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "commit "+model.ShortHash(hash)+" not found")
		return
	}
	respondJSON(w, http.StatusOK, details)
}

func (h *handler) getObject(w http.ResponseWriter, r *http.Request) {
	p, err := parseList(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	commits := h.history.GetObjectHistory(r.Context(), chi.URLParam(r, "id"), p.Limit)
	respondJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (h *handler) getEntity(w http.ResponseWriter, r *http.Request) {
	et, err := model.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	records := h.history.GetEntityHistory(r.Context(), et, id)
	respondJSON(w, http.StatusOK, map[string]any{"changes": records})
}

func (h *handler) listRecent(w http.ResponseWriter, r *http.Request) {
	p, err := parseList(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	records := h.history.GetRecentActivity(r.Context(), p.Limit)
	respondJSON(w, http.StatusOK, map[string]any{"changes": records})
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.history.VerifyIntegrity(r.Context()))
}

func (h *handler) restore(w http.ResponseWriter, r *http.Request) {
	hash, err := h.history.ResolveHash(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.history.RestoreFromHistory(r.Context(), hash)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	p, err := parseList(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	snapshots, _ := strconv.ParseBool(r.URL.Query().Get("snapshots"))

	bundle, err := h.history.ExportHistory(r.Context(), engine.ExportOptions{
		Limit:            p.Limit,
		EntityType:       model.EntityType(p.Entity),
		IncludeSnapshots: snapshots,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tally-export-%s.json"`, bundle.ExportID))
	respondJSON(w, http.StatusOK, bundle)
}

// fail maps tracker errors to status codes.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		status, code = http.StatusNotFound, "not_found"
	case engine.KindDecryption:
		status, code = http.StatusUnprocessableEntity, "decryption_failed"
	case engine.KindValidation:
		status, code = http.StatusBadRequest, "invalid"
	}
	if status == http.StatusInternalServerError {
		h.log.Error("history api request failed", "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
	}
	respondError(w, status, code, err.Error())
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: code, Message: message})
}
