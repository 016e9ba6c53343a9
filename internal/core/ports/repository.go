package ports

import (
	"context"

	"github.com/atviraknyga/bookapi/internal/core/domain"
)

type BookRepository interface {
	Create(ctx context.Context, book domain.Book) (domain.Book, error)
	Update(ctx context.Context, book domain.Book) (domain.Book, error)
	// Get returns soft-deleted books as well; callers decide how a deleted
	// book is treated.
	Get(ctx context.Context, id string) (domain.Book, error)
	// List returns up to filter.Limit books ordered by (created_at, id)
	// descending, starting strictly after the cursor when one is set.
	List(ctx context.Context, filter domain.BookListFilter) ([]domain.Book, error)
}
