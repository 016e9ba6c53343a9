package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atviraknyga/bookapi/internal/core/domain"
	"github.com/atviraknyga/bookapi/internal/core/ports"
	"github.com/atviraknyga/bookapi/internal/requestctx"
)

const (
	bookEntity = "book"

	defaultBookPageSize = 100
	maxBookPageSize     = 1000
)

// BookService implements the book lifecycle: create, update, soft-delete,
// restore. Every successful mutation records an audit entry synchronously
// with the correct before/after snapshots; an audit write failure propagates
// to the caller.
type BookService struct {
	repo  ports.BookRepository
	audit *AuditService
}

func NewBookService(repo ports.BookRepository, audit *AuditService) *BookService {
	return &BookService{repo: repo, audit: audit}
}

func (s *BookService) Create(ctx context.Context, book domain.Book) (domain.Book, error) {
	if err := book.Validate(); err != nil {
		return domain.Book{}, fmt.Errorf("%w: %v", domain.ErrInvalidBook, err)
	}

	now := time.Now().UTC()
	book.ID = uuid.New().String()
	book.CreatedByID = requestctx.ActorID(ctx)
	book.UpdatedByID = book.CreatedByID
	book.IsDeleted = false
	book.CreatedAt = now
	book.UpdatedAt = now

	created, err := s.repo.Create(ctx, book)
	if err != nil {
		return domain.Book{}, err
	}

	if _, err := s.audit.RecordCreate(ctx, bookEntity, created.ID, created.Snapshot()); err != nil {
		return domain.Book{}, err
	}
	return created, nil
}

// Update applies a partial patch to a non-deleted book. When no patched
// field actually differs from the stored state it short-circuits: no write,
// no audit entry, the current record is returned unchanged.
func (s *BookService) Update(ctx context.Context, id string, patch domain.BookPatch) (domain.Book, error) {
	if err := patch.Validate(); err != nil {
		return domain.Book{}, fmt.Errorf("%w: %v", domain.ErrInvalidBook, err)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	if current.IsDeleted {
		return domain.Book{}, domain.ErrNotFound
	}

	before := current
	updated := current
	if !patch.Apply(&updated) {
		return current, nil
	}

	updated.UpdatedByID = requestctx.ActorID(ctx)
	updated.UpdatedAt = time.Now().UTC()
	saved, err := s.repo.Update(ctx, updated)
	if err != nil {
		return domain.Book{}, err
	}

	if _, err := s.audit.RecordUpdate(ctx, bookEntity, saved.ID, before.Snapshot(), saved.Snapshot()); err != nil {
		return domain.Book{}, err
	}
	return saved, nil
}

func (s *BookService) Delete(ctx context.Context, id string) (domain.Book, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	if current.IsDeleted {
		return domain.Book{}, domain.ErrAlreadyDeleted
	}

	before := current
	current.IsDeleted = true
	current.UpdatedByID = requestctx.ActorID(ctx)
	current.UpdatedAt = time.Now().UTC()
	saved, err := s.repo.Update(ctx, current)
	if err != nil {
		return domain.Book{}, err
	}

	if _, err := s.audit.RecordDelete(ctx, bookEntity, saved.ID, before.Snapshot()); err != nil {
		return domain.Book{}, err
	}
	return saved, nil
}

func (s *BookService) Restore(ctx context.Context, id string) (domain.Book, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	if !current.IsDeleted {
		return domain.Book{}, domain.ErrNotDeleted
	}

	before := current
	current.IsDeleted = false
	current.UpdatedByID = requestctx.ActorID(ctx)
	current.UpdatedAt = time.Now().UTC()
	saved, err := s.repo.Update(ctx, current)
	if err != nil {
		return domain.Book{}, err
	}

	if _, err := s.audit.RecordRestore(ctx, bookEntity, saved.ID, before.Snapshot(), saved.Snapshot()); err != nil {
		return domain.Book{}, err
	}
	return saved, nil
}

func (s *BookService) Get(ctx context.Context, id string) (domain.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	if book.IsDeleted {
		return domain.Book{}, domain.ErrNotFound
	}
	return book, nil
}

// List pages through books with the same keyset scheme as the audit log:
// (created_at, id) descending, limit+1 fetch, opaque resume cursor.
func (s *BookService) List(ctx context.Context, filter domain.BookListFilter) (domain.BookPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultBookPageSize
	}
	if filter.Limit > maxBookPageSize {
		filter.Limit = maxBookPageSize
	}

	limit := filter.Limit
	fetch := filter
	fetch.Limit = limit + 1
	books, err := s.repo.List(ctx, fetch)
	if err != nil {
		return domain.BookPage{}, err
	}

	page := domain.BookPage{Items: books}
	if len(books) > limit {
		page.Items = books[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = domain.Cursor{ID: last.ID, Value: last.CreatedAt}.Encode()
	}
	return page, nil
}
