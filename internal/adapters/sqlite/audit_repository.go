package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atviraknyga/bookapi/internal/adapters/sqlite/gormsqlite"
	"github.com/atviraknyga/bookapi/internal/core/domain"
)

type auditEntryModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Timestamp     time.Time `gorm:"column:ts;not null"`
	Entity        string    `gorm:"column:entity;not null"`
	EntityID      string    `gorm:"column:entity_id;not null"`
	Action        string    `gorm:"column:action;not null"`
	ActorID       string    `gorm:"column:actor_id;not null"`
	RequestID     string    `gorm:"column:request_id"`
	Diff          string    `gorm:"column:diff"`
	FieldsChanged string    `gorm:"column:fields_changed"`
}

func (auditEntryModel) TableName() string {
	return "audit_entries"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

// AuditLogRepository persists audit entries. The table is append-only:
// nothing here updates or deletes a row.
type AuditLogRepository struct {
	db *gormsqlite.DB
}

func NewAuditLogRepository(db *gormsqlite.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append inserts the entry and its outbox event in one transaction, so a
// persisted entry always has a matching pending push event.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	model, err := toAuditModel(entry)
	if err != nil {
		return err
	}

	envelope := domain.NewAuditEventEnvelope(entry)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		Topic:         domain.AuditTopic,
		PayloadJSON:   string(payload),
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: entry.Timestamp,
		CreatedAt:     entry.Timestamp,
	}

	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return fmt.Errorf("enqueue outbox event: %w", err)
		}
		return nil
	})
	return err
}

func (r *AuditLogRepository) GetByID(ctx context.Context, id string) (domain.AuditEntry, error) {
	var model auditEntryModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AuditEntry{}, domain.ErrNotFound
		}
		return domain.AuditEntry{}, fmt.Errorf("get audit entry: %w", err)
	}
	return toAuditEntry(model)
}

func (r *AuditLogRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	var models []auditEntryModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&auditEntryModel{})
		if filter.Entity != "" {
			query = query.Where("entity = ?", filter.Entity)
		}
		if filter.EntityID != "" {
			query = query.Where("entity_id = ?", filter.EntityID)
		}
		if filter.ActorID != "" {
			query = query.Where("actor_id = ?", filter.ActorID)
		}
		if filter.Action != "" {
			query = query.Where("action = ?", string(filter.Action))
		}
		if filter.RequestID != "" {
			query = query.Where("request_id = ?", filter.RequestID)
		}
		if filter.From != nil {
			query = query.Where("ts >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("ts <= ?", *filter.To)
		}
		if len(filter.FieldsChanged) > 0 {
			// OR-match: any listed field name contained in the comma-joined
			// set. Wrapping both sides in commas makes the match exact per
			// field name rather than substring.
			var or *gorm.DB
			for _, field := range filter.FieldsChanged {
				cond := tx.Session(&gorm.Session{NewDB: true}).
					Where("(',' || fields_changed || ',') LIKE ?", "%,"+field+",%")
				if or == nil {
					or = cond
				} else {
					or = or.Or(cond)
				}
			}
			query = query.Where(or)
		}
		if filter.Cursor != nil {
			query = query.Where(
				"ts < ? OR (ts = ? AND id < ?)",
				filter.Cursor.Value, filter.Cursor.Value, filter.Cursor.ID,
			)
		}
		return query.Order("ts DESC, id DESC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(models))
	for _, model := range models {
		entry, err := toAuditEntry(model)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func toAuditModel(entry domain.AuditEntry) (auditEntryModel, error) {
	model := auditEntryModel{
		ID:            entry.ID,
		Timestamp:     entry.Timestamp,
		Entity:        entry.Entity,
		EntityID:      entry.EntityID,
		Action:        string(entry.Action),
		ActorID:       entry.ActorID,
		RequestID:     entry.RequestID,
		FieldsChanged: strings.Join(entry.FieldsChanged, ","),
	}
	if entry.Diff != nil {
		encoded, err := json.Marshal(entry.Diff)
		if err != nil {
			return auditEntryModel{}, fmt.Errorf("encode diff: %w", err)
		}
		model.Diff = string(encoded)
	}
	return model, nil
}

func toAuditEntry(model auditEntryModel) (domain.AuditEntry, error) {
	entry := domain.AuditEntry{
		ID:        model.ID,
		Timestamp: model.Timestamp,
		Entity:    model.Entity,
		EntityID:  model.EntityID,
		Action:    domain.Action(model.Action),
		ActorID:   model.ActorID,
		RequestID: model.RequestID,
	}
	if model.FieldsChanged != "" {
		entry.FieldsChanged = strings.Split(model.FieldsChanged, ",")
	}
	if model.Diff != "" {
		var diff domain.Diff
		if err := json.Unmarshal([]byte(model.Diff), &diff); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("decode diff for entry %s: %w", model.ID, err)
		}
		entry.Diff = &diff
	}
	return entry, nil
}
