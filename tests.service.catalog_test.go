package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCatalogService_AddRequiresISBN(t *testing.T) {
	called := false
	storage := &MockBookStorage{
		AddFunc: func(_ context.Context, book Book) (Book, error) {
			called = true
			return book, nil
		},
	}
	cs := NewCatalogService(zap.NewNop(), newTestConfig(), storage)

	_, err := cs.Add(context.Background(), Book{Title: "As Aventuras"})
	assert.EqualError(t, err, "isbn is required")
	assert.False(t, called, "storage must not be reached without an isbn")
}

func TestCatalogService_AddDuplicateISBN(t *testing.T) {
	storage := &MockBookStorage{
		AddFunc: func(_ context.Context, book Book) (Book, error) {
			return book, ErrDuplicateISBN
		},
	}
	cs := NewCatalogService(zap.NewNop(), newTestConfig(), storage)

	_, err := cs.Add(context.Background(), Book{ISBN: "123", Title: "As Aventuras"})
	assert.Equal(t, ErrDuplicateISBN, err)
}

func TestCatalogService_Add(t *testing.T) {
	storage := &MockBookStorage{
		AddFunc: func(_ context.Context, book Book) (Book, error) {
			book.ID = 1
			return book, nil
		},
	}
	cs := NewCatalogService(zap.NewNop(), newTestConfig(), storage)

	book, err := cs.Add(context.Background(), Book{ISBN: "123", Title: "As Aventuras", Author: "Fulano"})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), book.ID)
	assert.Equal(t, "123", book.ISBN)
}

func TestCatalogService_UpdateRequiresID(t *testing.T) {
	cs := NewCatalogService(zap.NewNop(), newTestConfig(), &MockBookStorage{})

	_, err := cs.Update(context.Background(), Book{ISBN: "123"})
	assert.Equal(t, ErrBookIDRequired, err)
	assert.EqualError(t, err, "Book Id cant be null.")
}

func TestCatalogService_DeleteRequiresID(t *testing.T) {
	cs := NewCatalogService(zap.NewNop(), newTestConfig(), &MockBookStorage{})

	err := cs.Delete(context.Background(), Book{ISBN: "123"})
	assert.Equal(t, ErrBookIDRequired, err)
	assert.EqualError(t, err, "Book Id cant be null.")
}

func TestCatalogService_Delete(t *testing.T) {
	var deleted int64
	storage := &MockBookStorage{
		DeleteFunc: func(_ context.Context, id int64) error {
			deleted = id
			return nil
		},
	}
	cs := NewCatalogService(zap.NewNop(), newTestConfig(), storage)

	err := cs.Delete(context.Background(), Book{ID: 11, ISBN: "123"})
	assert.NoError(t, err)
	assert.Equal(t, int64(11), deleted)
}

func TestBookFilter_Match(t *testing.T) {
	book := Book{ID: 1, ISBN: "978-0123", Title: "As Aventuras", Author: "Arthur"}

	assert.True(t, BookFilter{}.Match(book))
	assert.True(t, BookFilter{Title: "aventuras"}.Match(book), "substring match must ignore case")
	assert.True(t, BookFilter{ISBN: "0123"}.Match(book))
	assert.True(t, BookFilter{Title: "aven", Author: "art"}.Match(book))
	assert.False(t, BookFilter{Title: "aven", Author: "fulano"}.Match(book), "set fields combine with AND")
	assert.False(t, BookFilter{Author: "unknown"}.Match(book))
}
