package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atviraknyga/bookapi/internal/core/domain"
	"github.com/atviraknyga/bookapi/internal/core/ports"
	"github.com/atviraknyga/bookapi/internal/requestctx"
)

const (
	defaultAuditPageSize = 100
	maxAuditPageSize     = 1000
)

// AuditService owns the append-only audit log: the write path invoked by the
// entity mutation triggers and the filtered, cursor-paginated read path.
type AuditService struct {
	registry domain.PolicyRegistry
	diff     *DiffEngine
	repo     ports.AuditLogRepository
}

func NewAuditService(registry domain.PolicyRegistry, diff *DiffEngine, repo ports.AuditLogRepository) *AuditService {
	return &AuditService{registry: registry, diff: diff, repo: repo}
}

// Record persists one immutable audit entry for a mutation of a tracked
// entity. Untracked entities are a silent no-op returning (nil, nil):
// tracking is a registry decision and untracked types incur no log noise.
func (s *AuditService) Record(ctx context.Context, entity, entityID string, action domain.Action, actorID string, before, after map[string]any) (*domain.AuditEntry, error) {
	if !s.registry.IsTracked(entity) {
		return nil, nil
	}

	var diffBefore, diffAfter map[string]any
	switch action {
	case domain.ActionCreate:
		diffAfter = after
	case domain.ActionDelete:
		diffBefore = before
	case domain.ActionUpdate, domain.ActionRestore:
		diffBefore, diffAfter = before, after
	case domain.ActionLogin:
		// login has no diff
	}

	entry := domain.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Entity:    entity,
		EntityID:  entityID,
		Action:    action,
		ActorID:   actorID,
		RequestID: requestctx.RequestID(ctx),
	}

	if action != domain.ActionLogin {
		result, err := s.diff.Compute(entity, diffBefore, diffAfter)
		if err != nil {
			return nil, fmt.Errorf("compute diff: %w", err)
		}
		if result != nil {
			entry.Diff = &result.Diff
			entry.FieldsChanged = result.FieldsChanged
		}
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}

	slog.Info("audit entry recorded",
		"audit_id", entry.ID,
		"entity", entry.Entity,
		"entity_id", entry.EntityID,
		"action", string(entry.Action),
		"actor_id", entry.ActorID,
		"request_id", entry.RequestID,
		"fields_changed", entry.FieldsChanged,
	)
	return &entry, nil
}

// The convenience wrappers derive the actor from the ambient request context
// and silently skip recording when none is bound: anonymous or context-less
// mutations produce no audit entry rather than failing.

func (s *AuditService) RecordCreate(ctx context.Context, entity, entityID string, after map[string]any) (*domain.AuditEntry, error) {
	return s.recordWithAmbientActor(ctx, entity, entityID, domain.ActionCreate, nil, after)
}

func (s *AuditService) RecordUpdate(ctx context.Context, entity, entityID string, before, after map[string]any) (*domain.AuditEntry, error) {
	return s.recordWithAmbientActor(ctx, entity, entityID, domain.ActionUpdate, before, after)
}

func (s *AuditService) RecordDelete(ctx context.Context, entity, entityID string, before map[string]any) (*domain.AuditEntry, error) {
	return s.recordWithAmbientActor(ctx, entity, entityID, domain.ActionDelete, before, nil)
}

func (s *AuditService) RecordRestore(ctx context.Context, entity, entityID string, before, after map[string]any) (*domain.AuditEntry, error) {
	return s.recordWithAmbientActor(ctx, entity, entityID, domain.ActionRestore, before, after)
}

func (s *AuditService) RecordLogin(ctx context.Context, userID string) (*domain.AuditEntry, error) {
	return s.recordWithAmbientActor(ctx, "user", userID, domain.ActionLogin, nil, nil)
}

func (s *AuditService) recordWithAmbientActor(ctx context.Context, entity, entityID string, action domain.Action, before, after map[string]any) (*domain.AuditEntry, error) {
	actorID := requestctx.ActorID(ctx)
	if actorID == "" {
		return nil, nil
	}
	return s.Record(ctx, entity, entityID, action, actorID, before, after)
}

// Query serves the audit read path: conjunctive filters, descending
// (timestamp, id) order, limit+1 fetch with an opaque resume cursor.
func (s *AuditService) Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error) {
	if filter.Entity != "" && !s.registry.IsTracked(filter.Entity) {
		return domain.AuditPage{}, fmt.Errorf("%w: unknown entity %q", domain.ErrInvalidFilter, filter.Entity)
	}
	if err := filter.Validate(); err != nil {
		return domain.AuditPage{}, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditPageSize
	}
	if filter.Limit > maxAuditPageSize {
		filter.Limit = maxAuditPageSize
	}

	limit := filter.Limit
	fetch := filter
	fetch.Limit = limit + 1
	entries, err := s.repo.List(ctx, fetch)
	if err != nil {
		return domain.AuditPage{}, err
	}

	page := domain.AuditPage{Items: entries}
	if len(entries) > limit {
		page.Items = entries[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = domain.Cursor{ID: last.ID, Value: last.Timestamp}.Encode()
	}
	return page, nil
}

func (s *AuditService) GetByID(ctx context.Context, id string) (domain.AuditEntry, error) {
	return s.repo.GetByID(ctx, id)
}

// TrackedEntities exposes the registry's sorted tracked entity names.
func (s *AuditService) TrackedEntities() []string {
	return s.registry.TrackedEntities()
}
