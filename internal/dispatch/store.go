package dispatch

import (
	"context"

	"github.com/mattjoyce/cellhook/internal/recordstore"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/cellhook/internal/dispatch Store

// Store is the record store surface the dispatcher needs.
type Store interface {
	SelectRecord(ctx context.Context, tableID, recordID string) (*recordstore.Record, error)
	FindRecord(ctx context.Context, tableID, field, value string) (*recordstore.Record, error)
	HasField(ctx context.Context, tableID, name string) (bool, error)
	CreateField(ctx context.Context, tableID, name string, typ recordstore.FieldType) (bool, error)
}
