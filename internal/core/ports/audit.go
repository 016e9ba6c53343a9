package ports

import (
	"context"

	"github.com/atviraknyga/bookapi/internal/core/domain"
)

type AuditLogRepository interface {
	// Append persists the entry and enqueues its outbox event atomically.
	Append(ctx context.Context, entry domain.AuditEntry) error
	GetByID(ctx context.Context, id string) (domain.AuditEntry, error)
	// List returns up to filter.Limit entries ordered by (ts, id) descending,
	// starting strictly after the cursor when one is set.
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}
