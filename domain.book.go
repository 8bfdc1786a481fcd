package main

import (
	"context"
	"strings"
)

// Book represents a catalog book entity. The ISBN is the unique
// business key; the numeric identity is assigned by the storage
// backend at insertion time.
type Book struct {
	ID     int64  `json:"id"`
	ISBN   string `json:"isbn"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// BookFilter selects books for listing. Each set field is matched as a
// case-insensitive substring; unset fields impose no constraint.
type BookFilter struct {
	ISBN   string
	Title  string
	Author string
}

// Match reports whether the book satisfies every set field of the filter.
func (f BookFilter) Match(b Book) bool {
	if f.ISBN != "" && !containsFold(b.ISBN, f.ISBN) {
		return false
	}
	if f.Title != "" && !containsFold(b.Title, f.Title) {
		return false
	}
	if f.Author != "" && !containsFold(b.Author, f.Author) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// BookStorage defines possible operations on book records. Add must
// reject a duplicate ISBN atomically with ErrDuplicateISBN and leave
// the already stored book untouched. Finders keep insertion order and
// report the total number of matches beside the requested page.
type BookStorage interface {
	Add(ctx context.Context, book Book) (Book, error)
	GetOne(ctx context.Context, id int64) (Book, error)
	GetByISBN(ctx context.Context, isbn string) (Book, error)
	Update(ctx context.Context, book Book) (Book, error)
	Delete(ctx context.Context, id int64) error
	Find(ctx context.Context, filter BookFilter, page Page) ([]Book, int, error)
}
