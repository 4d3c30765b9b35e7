package message

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a ledger row. A duplicate control-id is a no-op and
	// returns (false, nil); the existing row wins.
	Create(ctx context.Context, m *Message) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	GetByControlID(ctx context.Context, controlID string) (*Message, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg *string) error
	UpdateStatusByControlID(ctx context.Context, controlID string, status Status, errMsg *string) error
	// MarkRetried relabels an errored message as sent, bumping its retry
	// count and processed timestamp.
	MarkRetried(ctx context.Context, id uuid.UUID) error
	ListRetryable(ctx context.Context, maxRetries, limit int) ([]*Message, error)
	ListDeadLetters(ctx context.Context, maxRetries, limit, offset int) ([]*Message, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Message, int, error)
}
