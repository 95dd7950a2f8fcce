package api

import "github.com/mattjoyce/cellhook/internal/recordstore"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	BaseID        string `json:"base_id"`
}

// FieldsResponse is returned by GET /tables/{table}/fields.
type FieldsResponse struct {
	TableID string              `json:"table_id"`
	Fields  []recordstore.Field `json:"fields"`
}

// CreateFieldRequest is the JSON body for POST /tables/{table}/fields.
type CreateFieldRequest struct {
	Name string                `json:"name"`
	Type recordstore.FieldType `json:"type"`
}

// CreateFieldResponse reports whether the field was newly created.
type CreateFieldResponse struct {
	Field   recordstore.Field `json:"field"`
	Created bool              `json:"created"`
}

// RecordResponse is a record with its written cells.
type RecordResponse struct {
	ID      string                       `json:"id"`
	TableID string                       `json:"table_id"`
	Fields  map[string]recordstore.Value `json:"fields"`
}

// UpdateRecordRequest is the JSON body for PATCH /tables/{table}/records/{record}.
type UpdateRecordRequest struct {
	Fields map[string]recordstore.Value `json:"fields"`
}

func recordResponse(rec *recordstore.Record) RecordResponse {
	return RecordResponse{ID: rec.ID, TableID: rec.TableID, Fields: rec.Fields()}
}
