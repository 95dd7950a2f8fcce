package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/cellhook/internal/auth"
	"github.com/mattjoyce/cellhook/internal/recordstore"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		BaseID:        s.store.BaseID(),
	})
}

// handleOpenAPI serves the API description (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// handleListFields handles GET /tables/{table}/fields.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	tableID := chi.URLParam(r, "table")
	fields, err := s.store.Fields(r.Context(), tableID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if fields == nil {
		fields = []recordstore.Field{}
	}
	respondJSON(w, http.StatusOK, FieldsResponse{TableID: tableID, Fields: fields})
}

// handleCreateField handles POST /tables/{table}/fields. Creating a field
// that already exists answers 200 and changes nothing.
func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var req CreateFieldRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Type == "" {
		req.Type = recordstore.FieldText
	}
	if !req.Type.Valid() {
		s.writeError(w, http.StatusUnprocessableEntity, "type must be text or number")
		return
	}

	tableID := chi.URLParam(r, "table")
	created, err := s.store.CreateField(r.Context(), tableID, req.Name, req.Type)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logger.Info("field created", "table_id", tableID, "field", req.Name, "type", req.Type)
	}
	respondJSON(w, status, CreateFieldResponse{
		Field:   recordstore.Field{Name: req.Name, Type: req.Type},
		Created: created,
	})
}

// handleGetRecord handles GET /tables/{table}/records/{record}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.SelectRecord(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "record"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, recordResponse(rec))
}

// handleUpdateRecord handles PATCH /tables/{table}/records/{record}: the
// write-back of a job result.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req UpdateRecordRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 {
		s.writeError(w, http.StatusBadRequest, "fields must be non-empty")
		return
	}

	tableID, recordID := chi.URLParam(r, "table"), chi.URLParam(r, "record")
	rec, err := s.store.UpdateRecord(r.Context(), tableID, recordID, req.Fields)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	names := make([]string, 0, len(req.Fields))
	for name := range req.Fields {
		names = append(names, name)
	}
	var caller string
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		caller = p.Name
	}
	s.logger.Info("record updated", "table_id", tableID, "record_id", recordID, "fields", names, "token", caller)
	respondJSON(w, http.StatusOK, recordResponse(rec))
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeStoreError maps record store errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recordstore.ErrTableNotFound):
		s.writeError(w, http.StatusNotFound, "table not found")
	case errors.Is(err, recordstore.ErrRecordNotFound):
		s.writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, recordstore.ErrUnknownField), errors.Is(err, recordstore.ErrFieldType):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("record store failure", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
