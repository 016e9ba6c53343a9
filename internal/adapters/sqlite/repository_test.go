package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/atviraknyga/bookapi/internal/adapters/sqlite/gormsqlite"
	"github.com/atviraknyga/bookapi/internal/core/domain"
	"github.com/atviraknyga/bookapi/migrations"
)

func openTestDB(t *testing.T) *gormsqlite.DB {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := gormsqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(ctx, sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(ctx, sqlDB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func seedBook(t *testing.T, repo *BookRepository, id, title string, createdAt time.Time) domain.Book {
	t.Helper()
	book, err := repo.Create(context.Background(), domain.Book{
		ID:        id,
		Title:     title,
		Authors:   []string{"A. Author"},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("seed book %s: %v", id, err)
	}
	return book
}

func TestBookRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepository(openTestDB(t))
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	created := seedBook(t, repo, "b1", "Dievų miškas", now)
	if created.Title != "Dievų miškas" {
		t.Fatalf("title = %s", created.Title)
	}

	got, err := repo.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Authors) != 1 || got.Authors[0] != "A. Author" {
		t.Fatalf("authors did not round-trip: %v", got.Authors)
	}

	got.Title = "Renamed"
	got.IsDeleted = true
	updated, err := repo.Update(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" || !updated.IsDeleted {
		t.Fatalf("update did not persist: %+v", updated)
	}

	_, err = repo.Get(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = repo.Update(ctx, domain.Book{ID: "missing", Authors: []string{"x"}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found updating missing book, got %v", err)
	}
}

func TestBookRepositoryListFiltersDeleted(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepository(openTestDB(t))
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	seedBook(t, repo, "b1", "Live", base)
	deleted := seedBook(t, repo, "b2", "Deleted", base.Add(time.Minute))
	deleted.IsDeleted = true
	if _, err := repo.Update(ctx, deleted); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	books, err := repo.List(ctx, domain.BookListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 || books[0].ID != "b1" {
		t.Fatalf("expected only the live book, got %+v", books)
	}

	all, err := repo.List(ctx, domain.BookListFilter{Limit: 10, IncludeDeleted: true})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both books, got %d", len(all))
	}
	// Newest first.
	if all[0].ID != "b2" {
		t.Fatalf("expected b2 first, got %s", all[0].ID)
	}
}

func seedAudit(t *testing.T, repo *AuditLogRepository, entry domain.AuditEntry) {
	t.Helper()
	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("seed audit %s: %v", entry.ID, err)
	}
}

func TestAuditRepositoryAppendAndGet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAuditLogRepository(db)
	ts := time.Date(2026, 6, 2, 8, 30, 0, 0, time.UTC)

	entry := domain.AuditEntry{
		ID:        "a1",
		Timestamp: ts,
		Entity:    "book",
		EntityID:  "b1",
		Action:    domain.ActionUpdate,
		ActorID:   "user-1",
		RequestID: "req-1",
		Diff: &domain.Diff{
			Before: map[string]any{"title": "Old"},
			After:  map[string]any{"title": "New"},
		},
		FieldsChanged: []string{"title", "updatedById"},
	}
	seedAudit(t, repo, entry)

	got, err := repo.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Action != domain.ActionUpdate || got.ActorID != "user-1" || got.RequestID != "req-1" {
		t.Fatalf("entry did not round-trip: %+v", got)
	}
	if got.Diff == nil || got.Diff.Before["title"] != "Old" || got.Diff.After["title"] != "New" {
		t.Fatalf("diff did not round-trip: %+v", got.Diff)
	}
	if len(got.FieldsChanged) != 2 || got.FieldsChanged[0] != "title" {
		t.Fatalf("fields changed did not round-trip: %v", got.FieldsChanged)
	}

	_, err = repo.GetByID(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuditAppendEnqueuesOutboxEvent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAuditLogRepository(db)
	outbox := NewOutboxRepository(db)

	seedAudit(t, repo, domain.AuditEntry{
		ID:        "a1",
		Timestamp: time.Now().UTC().Add(-time.Second),
		Entity:    "book",
		EntityID:  "b1",
		Action:    domain.ActionCreate,
		ActorID:   "user-1",
	})

	pending, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if pending[0].EventID != "a1" || pending[0].Topic != domain.AuditTopic {
		t.Fatalf("unexpected outbox event: %+v", pending[0])
	}
}

func TestAuditRepositoryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditLogRepository(openTestDB(t))
	base := time.Date(2026, 6, 3, 12, 0, 0, 0, time.UTC)

	seedAudit(t, repo, domain.AuditEntry{ID: "a1", Timestamp: base, Entity: "book", EntityID: "b1", Action: domain.ActionCreate, ActorID: "alice", RequestID: "r1", FieldsChanged: []string{"title", "isbn"}})
	seedAudit(t, repo, domain.AuditEntry{ID: "a2", Timestamp: base.Add(time.Second), Entity: "book", EntityID: "b1", Action: domain.ActionUpdate, ActorID: "bob", RequestID: "r2", FieldsChanged: []string{"description"}})
	seedAudit(t, repo, domain.AuditEntry{ID: "a3", Timestamp: base.Add(2 * time.Second), Entity: "user", EntityID: "u1", Action: domain.ActionLogin, ActorID: "alice", RequestID: "r3"})

	byEntity, err := repo.List(ctx, domain.AuditFilter{Entity: "book", Limit: 10})
	if err != nil {
		t.Fatalf("list by entity: %v", err)
	}
	if len(byEntity) != 2 {
		t.Fatalf("expected 2 book entries, got %d", len(byEntity))
	}

	byActor, err := repo.List(ctx, domain.AuditFilter{ActorID: "alice", Limit: 10})
	if err != nil {
		t.Fatalf("list by actor: %v", err)
	}
	if len(byActor) != 2 {
		t.Fatalf("expected 2 alice entries, got %d", len(byActor))
	}

	byAction, err := repo.List(ctx, domain.AuditFilter{Action: domain.ActionLogin, Limit: 10})
	if err != nil {
		t.Fatalf("list by action: %v", err)
	}
	if len(byAction) != 1 || byAction[0].ID != "a3" {
		t.Fatalf("expected only the login entry, got %+v", byAction)
	}

	byRequest, err := repo.List(ctx, domain.AuditFilter{RequestID: "r2", Limit: 10})
	if err != nil {
		t.Fatalf("list by request: %v", err)
	}
	if len(byRequest) != 1 || byRequest[0].ID != "a2" {
		t.Fatalf("expected only r2, got %+v", byRequest)
	}

	from := base.Add(time.Second)
	to := base.Add(time.Second)
	byWindow, err := repo.List(ctx, domain.AuditFilter{From: &from, To: &to, Limit: 10})
	if err != nil {
		t.Fatalf("list by window: %v", err)
	}
	if len(byWindow) != 1 || byWindow[0].ID != "a2" {
		t.Fatalf("inclusive window must match a2 only, got %+v", byWindow)
	}

	combined, err := repo.List(ctx, domain.AuditFilter{Entity: "book", ActorID: "alice", Limit: 10})
	if err != nil {
		t.Fatalf("list combined: %v", err)
	}
	if len(combined) != 1 || combined[0].ID != "a1" {
		t.Fatalf("conjunctive filters must match a1 only, got %+v", combined)
	}
}

func TestAuditRepositoryFieldsChangedMatchesAny(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditLogRepository(openTestDB(t))
	base := time.Date(2026, 6, 3, 12, 0, 0, 0, time.UTC)

	seedAudit(t, repo, domain.AuditEntry{ID: "a1", Timestamp: base, Entity: "book", EntityID: "b1", Action: domain.ActionUpdate, ActorID: "a", FieldsChanged: []string{"title", "isbn"}})
	seedAudit(t, repo, domain.AuditEntry{ID: "a2", Timestamp: base.Add(time.Second), Entity: "book", EntityID: "b1", Action: domain.ActionUpdate, ActorID: "a", FieldsChanged: []string{"description"}})
	seedAudit(t, repo, domain.AuditEntry{ID: "a3", Timestamp: base.Add(2 * time.Second), Entity: "book", EntityID: "b1", Action: domain.ActionUpdate, ActorID: "a", FieldsChanged: []string{"subtitle"}})

	// "title" must not substring-match "subtitle".
	got, err := repo.List(ctx, domain.AuditFilter{FieldsChanged: []string{"title"}, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected exact field-name match a1, got %+v", got)
	}

	anyOf, err := repo.List(ctx, domain.AuditFilter{FieldsChanged: []string{"title", "description"}, Limit: 10})
	if err != nil {
		t.Fatalf("list any-of: %v", err)
	}
	if len(anyOf) != 2 {
		t.Fatalf("expected OR semantics to match a1 and a2, got %+v", anyOf)
	}

	withEntity, err := repo.List(ctx, domain.AuditFilter{Entity: "user", FieldsChanged: []string{"title"}, Limit: 10})
	if err != nil {
		t.Fatalf("list with entity: %v", err)
	}
	if len(withEntity) != 0 {
		t.Fatalf("field OR group must stay ANDed with other filters, got %+v", withEntity)
	}
}

func TestAuditRepositoryPaginationWalk(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditLogRepository(openTestDB(t))
	base := time.Date(2026, 6, 4, 9, 0, 0, 0, time.UTC)

	// Two entries share a timestamp to exercise the id tie-break.
	seeds := []domain.AuditEntry{
		{ID: "a1", Timestamp: base},
		{ID: "a2", Timestamp: base.Add(time.Second)},
		{ID: "a3", Timestamp: base.Add(2 * time.Second)},
		{ID: "a4", Timestamp: base.Add(2 * time.Second)},
		{ID: "a5", Timestamp: base.Add(3 * time.Second)},
	}
	for _, entry := range seeds {
		entry.Entity = "book"
		entry.EntityID = "b1"
		entry.Action = domain.ActionUpdate
		entry.ActorID = "walker"
		seedAudit(t, repo, entry)
	}

	var seen []string
	var cursor *domain.Cursor
	for {
		filter := domain.AuditFilter{Limit: 2, Cursor: cursor}
		page, err := repo.List(ctx, filter)
		if err != nil {
			t.Fatalf("walk page: %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, entry := range page {
			seen = append(seen, entry.ID)
		}
		last := page[len(page)-1]
		cursor = &domain.Cursor{ID: last.ID, Value: last.Timestamp}
	}

	want := []string{"a5", "a4", "a3", "a2", "a1"}
	if len(seen) != len(want) {
		t.Fatalf("walk saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("walk order %v, want %v", seen, want)
		}
	}
}

func TestOutboxMarkTransitions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAuditLogRepository(db)
	outbox := NewOutboxRepository(db)

	past := time.Now().UTC().Add(-time.Minute)
	seedAudit(t, repo, domain.AuditEntry{ID: "a1", Timestamp: past, Entity: "book", EntityID: "b1", Action: domain.ActionCreate, ActorID: "a"})
	seedAudit(t, repo, domain.AuditEntry{ID: "a2", Timestamp: past, Entity: "book", EntityID: "b2", Action: domain.ActionCreate, ActorID: "a"})
	seedAudit(t, repo, domain.AuditEntry{ID: "a3", Timestamp: past, Entity: "book", EntityID: "b3", Action: domain.ActionCreate, ActorID: "a"})

	pending, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}

	if err := outbox.MarkDispatched(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark dispatched: %v", err)
	}
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339Nano)
	if err := outbox.MarkFailed(ctx, pending[1].ID, 1, future, "endpoint down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := outbox.MarkDead(ctx, pending[2].ID, 5, "gave up"); err != nil {
		t.Fatalf("mark dead: %v", err)
	}

	// Dispatched is done, failed is deferred, dead is parked.
	remaining, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected nothing fetchable, got %+v", remaining)
	}
}

func TestAPIKeyRepositoryUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAPIKeyRepository(openTestDB(t))

	key := domain.APIKey{
		TokenHash: "hash-1",
		UserID:    "user-1",
		Name:      "ci",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Upsert(ctx, key); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.FindByTokenHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.UserID != "user-1" || !got.Active {
		t.Fatalf("key did not round-trip: %+v", got)
	}

	// Re-upsert deactivates in place.
	key.Active = false
	key.Name = "ci-revoked"
	if err := repo.Upsert(ctx, key); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = repo.FindByTokenHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("refind: %v", err)
	}
	if got.Active || got.Name != "ci-revoked" {
		t.Fatalf("upsert did not update: %+v", got)
	}

	_, err = repo.FindByTokenHash(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
