package worklist

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByOrderID(ctx context.Context, orderID string) (*Entry, error)
	GetByAccession(ctx context.Context, accessionNumber string) (*Entry, error)
	SetFilePath(ctx context.Context, id uuid.UUID, path *string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// Finish transitions an entry to a terminal status and clears its file
	// path, reporting false when the entry was already terminal.
	Finish(ctx context.Context, id uuid.UUID, status Status) (bool, error)
	ListActive(ctx context.Context, modality string, limit, offset int) ([]*Entry, int, error)
	// ListExpired returns terminal entries last touched before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*Entry, error)
	// Delete purges an entry; only the retention sweep calls it.
	Delete(ctx context.Context, id uuid.UUID) error
}
