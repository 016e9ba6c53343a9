package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyDeleted = errors.New("already deleted")
	ErrNotDeleted     = errors.New("not deleted")
	ErrInvalidBook    = errors.New("invalid book")
)

type Book struct {
	ID            string
	Title         string
	Authors       []string
	ISBN          string
	PublishedYear int
	Description   string
	InternalNotes string
	CreatedByID   string
	UpdatedByID   string
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b Book) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return errors.New("title must not be empty")
	}
	if len(b.Authors) == 0 {
		return errors.New("authors must not be empty")
	}
	for _, a := range b.Authors {
		if strings.TrimSpace(a) == "" {
			return errors.New("author name must not be empty")
		}
	}
	if b.PublishedYear < 0 {
		return errors.New("published year must not be negative")
	}
	return nil
}

// Snapshot flattens the book into the key/value form consumed by the diff
// engine. Keys are stable; the tracking policy decides which of them survive
// into an audit entry.
func (b Book) Snapshot() map[string]any {
	return map[string]any{
		"id":            b.ID,
		"title":         b.Title,
		"authors":       b.Authors,
		"isbn":          b.ISBN,
		"publishedYear": b.PublishedYear,
		"description":   b.Description,
		"internalNotes": b.InternalNotes,
		"createdById":   b.CreatedByID,
		"updatedById":   b.UpdatedByID,
		"isDeleted":     b.IsDeleted,
		"createdAt":     b.CreatedAt,
		"updatedAt":     b.UpdatedAt,
	}
}

// BookPatch carries a partial update. Nil fields are left untouched.
type BookPatch struct {
	Title         *string
	Authors       *[]string
	ISBN          *string
	PublishedYear *int
	Description   *string
	InternalNotes *string
}

// Apply copies the non-nil patch fields onto b and reports whether any field
// actually changed value.
func (p BookPatch) Apply(b *Book) bool {
	changed := false
	if p.Title != nil && *p.Title != b.Title {
		b.Title = *p.Title
		changed = true
	}
	if p.Authors != nil && !equalStrings(*p.Authors, b.Authors) {
		b.Authors = append([]string(nil), *p.Authors...)
		changed = true
	}
	if p.ISBN != nil && *p.ISBN != b.ISBN {
		b.ISBN = *p.ISBN
		changed = true
	}
	if p.PublishedYear != nil && *p.PublishedYear != b.PublishedYear {
		b.PublishedYear = *p.PublishedYear
		changed = true
	}
	if p.Description != nil && *p.Description != b.Description {
		b.Description = *p.Description
		changed = true
	}
	if p.InternalNotes != nil && *p.InternalNotes != b.InternalNotes {
		b.InternalNotes = *p.InternalNotes
		changed = true
	}
	return changed
}

func (p BookPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.New("title must not be empty")
	}
	if p.Authors != nil {
		if len(*p.Authors) == 0 {
			return errors.New("authors must not be empty")
		}
		for _, a := range *p.Authors {
			if strings.TrimSpace(a) == "" {
				return errors.New("author name must not be empty")
			}
		}
	}
	if p.PublishedYear != nil && *p.PublishedYear < 0 {
		return errors.New("published year must not be negative")
	}
	return nil
}

type BookListFilter struct {
	IncludeDeleted bool
	Limit          int
	Cursor         *Cursor
}

type BookPage struct {
	Items      []Book
	NextCursor string
	HasMore    bool
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
