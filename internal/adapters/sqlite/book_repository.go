package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atviraknyga/bookapi/internal/adapters/sqlite/gormsqlite"
	"github.com/atviraknyga/bookapi/internal/core/domain"
)

type bookModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Title         string    `gorm:"column:title;not null"`
	Authors       string    `gorm:"column:authors;not null"`
	ISBN          string    `gorm:"column:isbn"`
	PublishedYear int       `gorm:"column:published_year"`
	Description   string    `gorm:"column:description"`
	InternalNotes string    `gorm:"column:internal_notes"`
	CreatedByID   string    `gorm:"column:created_by_id"`
	UpdatedByID   string    `gorm:"column:updated_by_id"`
	IsDeleted     bool      `gorm:"column:is_deleted;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (bookModel) TableName() string {
	return "books"
}

type BookRepository struct {
	db *gormsqlite.DB
}

func NewBookRepository(db *gormsqlite.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) Create(ctx context.Context, book domain.Book) (domain.Book, error) {
	model, err := toBookModel(book)
	if err != nil {
		return domain.Book{}, err
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	return toBook(model)
}

func (r *BookRepository) Update(ctx context.Context, book domain.Book) (domain.Book, error) {
	model, err := toBookModel(book)
	if err != nil {
		return domain.Book{}, err
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&bookModel{}).Where("id = ?", model.ID).Updates(map[string]any{
			"title":          model.Title,
			"authors":        model.Authors,
			"isbn":           model.ISBN,
			"published_year": model.PublishedYear,
			"description":    model.Description,
			"internal_notes": model.InternalNotes,
			"updated_by_id":  model.UpdatedByID,
			"is_deleted":     model.IsDeleted,
			"updated_at":     model.UpdatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Book{}, domain.ErrNotFound
		}
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return r.Get(ctx, book.ID)
}

func (r *BookRepository) Get(ctx context.Context, id string) (domain.Book, error) {
	var model bookModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, domain.ErrNotFound
		}
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	return toBook(model)
}

func (r *BookRepository) List(ctx context.Context, filter domain.BookListFilter) ([]domain.Book, error) {
	var models []bookModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&bookModel{})
		if !filter.IncludeDeleted {
			query = query.Where("is_deleted = ?", false)
		}
		if filter.Cursor != nil {
			query = query.Where(
				"created_at < ? OR (created_at = ? AND id < ?)",
				filter.Cursor.Value, filter.Cursor.Value, filter.Cursor.ID,
			)
		}
		return query.Order("created_at DESC, id DESC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	books := make([]domain.Book, 0, len(models))
	for _, model := range models {
		book, err := toBook(model)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

func toBookModel(book domain.Book) (bookModel, error) {
	authors, err := json.Marshal(book.Authors)
	if err != nil {
		return bookModel{}, fmt.Errorf("encode authors: %w", err)
	}
	return bookModel{
		ID:            book.ID,
		Title:         book.Title,
		Authors:       string(authors),
		ISBN:          book.ISBN,
		PublishedYear: book.PublishedYear,
		Description:   book.Description,
		InternalNotes: book.InternalNotes,
		CreatedByID:   book.CreatedByID,
		UpdatedByID:   book.UpdatedByID,
		IsDeleted:     book.IsDeleted,
		CreatedAt:     book.CreatedAt,
		UpdatedAt:     book.UpdatedAt,
	}, nil
}

func toBook(model bookModel) (domain.Book, error) {
	var authors []string
	if model.Authors != "" {
		if err := json.Unmarshal([]byte(model.Authors), &authors); err != nil {
			return domain.Book{}, fmt.Errorf("decode authors for book %s: %w", model.ID, err)
		}
	}
	return domain.Book{
		ID:            model.ID,
		Title:         model.Title,
		Authors:       authors,
		ISBN:          model.ISBN,
		PublishedYear: model.PublishedYear,
		Description:   model.Description,
		InternalNotes: model.InternalNotes,
		CreatedByID:   model.CreatedByID,
		UpdatedByID:   model.UpdatedByID,
		IsDeleted:     model.IsDeleted,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}, nil
}
