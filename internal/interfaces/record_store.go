package interfaces

import (
	"context"

	"github.com/ternarybob/schoolreach/internal/models"
)

// RecordStore persists school records in a flat tabular file
type RecordStore interface {
	// Load returns the stored records in file order, or an empty slice when nothing was stored yet
	Load(ctx context.Context) ([]models.Record, error)

	// UpsertMerge appends records whose name is not yet present and persists the result.
	// Existing records keep every field, including their contact status.
	UpsertMerge(ctx context.Context, existing []models.Record, incoming []models.Record) ([]models.Record, error)

	// Save persists the given records as-is
	Save(ctx context.Context, records []models.Record) error
}
