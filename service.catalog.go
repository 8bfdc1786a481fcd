package main

import (
	"context"

	"go.uber.org/zap"
)

// CatalogServiceProvider is the books operations contract consumed
// by the request layer.
type CatalogServiceProvider interface {
	Add(ctx context.Context, book Book) (Book, error)
	GetOne(ctx context.Context, id int64) (Book, error)
	GetByISBN(ctx context.Context, isbn string) (Book, error)
	Update(ctx context.Context, book Book) (Book, error)
	Delete(ctx context.Context, book Book) error
	Find(ctx context.Context, filter BookFilter, page Page) ([]Book, int, error)
}

// CatalogService owns the books business rules on top of a storage
// backend: ISBN uniqueness surfacing and identity guards. Uniqueness
// itself is enforced atomically by the backend.
type CatalogService struct {
	logger  *zap.Logger
	config  *Config
	storage BookStorage
}

func NewCatalogService(logger *zap.Logger, config *Config, storage BookStorage) CatalogServiceProvider {
	return &CatalogService{
		logger:  logger,
		config:  config,
		storage: storage,
	}
}

// Add registers a new book. The ISBN is required and must not be in use.
func (cs *CatalogService) Add(ctx context.Context, book Book) (Book, error) {
	if len(book.ISBN) == 0 {
		return book, missingFieldError("isbn")
	}
	stored, err := cs.storage.Add(ctx, book)
	if err != nil {
		cs.logger.Error("catalog: failed to add book", zap.String("book.isbn", book.ISBN), zap.Error(err))
		return book, err
	}
	cs.logger.Info("catalog: book added", zap.Int64("book.id", stored.ID), zap.String("book.isbn", stored.ISBN))
	return stored, nil
}

func (cs *CatalogService) GetOne(ctx context.Context, id int64) (Book, error) {
	return cs.storage.GetOne(ctx, id)
}

func (cs *CatalogService) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	return cs.storage.GetByISBN(ctx, isbn)
}

// Update overwrites the mutable fields of an existing book record.
func (cs *CatalogService) Update(ctx context.Context, book Book) (Book, error) {
	if book.ID == 0 {
		return book, ErrBookIDRequired
	}
	updated, err := cs.storage.Update(ctx, book)
	if err != nil {
		cs.logger.Error("catalog: failed to update book", zap.Int64("book.id", book.ID), zap.Error(err))
		return book, err
	}
	cs.logger.Info("catalog: book updated", zap.Int64("book.id", updated.ID))
	return updated, nil
}

// Delete removes the book record. Existing loans keep their denormalized
// copy of the book data, so no cascade applies.
func (cs *CatalogService) Delete(ctx context.Context, book Book) error {
	if book.ID == 0 {
		return ErrBookIDRequired
	}
	if err := cs.storage.Delete(ctx, book.ID); err != nil {
		cs.logger.Error("catalog: failed to delete book", zap.Int64("book.id", book.ID), zap.Error(err))
		return err
	}
	cs.logger.Info("catalog: book deleted", zap.Int64("book.id", book.ID))
	return nil
}

func (cs *CatalogService) Find(ctx context.Context, filter BookFilter, page Page) ([]Book, int, error) {
	return cs.storage.Find(ctx, filter, page)
}
