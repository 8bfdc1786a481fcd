package main

import (
	"context"

	"go.uber.org/zap"
)

// LoanServiceProvider is the loans operations contract consumed by the
// request layer and by the overdue scheduler.
type LoanServiceProvider interface {
	Issue(ctx context.Context, loan Loan) (Loan, error)
	GetOne(ctx context.Context, id int64) (Loan, error)
	MarkReturned(ctx context.Context, loan Loan) (Loan, error)
	Find(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error)
	ListByBook(ctx context.Context, bookID int64, page Page) ([]Loan, int, error)
	Overdue(ctx context.Context) ([]Loan, error)
}

// LoanService owns the lending rules: it resolves the book through the
// catalog storage before issuing and stamps the loan date. The single
// active loan per book rule is enforced atomically by the ledger backend.
type LoanService struct {
	logger *zap.Logger
	config *Config
	clock  Clocker
	books  BookStorage
	loans  LoanStorage
}

func NewLoanService(logger *zap.Logger, config *Config, clock Clocker, books BookStorage, loans LoanStorage) LoanServiceProvider {
	return &LoanService{
		logger: logger,
		config: config,
		clock:  clock,
		books:  books,
		loans:  loans,
	}
}

// Issue lends the book referenced by the loan ISBN to the given customer.
// It fails with ErrBookNotFound when the ISBN resolves to no book and with
// ErrBookAlreadyLoaned when a non-returned loan already holds the book.
func (ls *LoanService) Issue(ctx context.Context, loan Loan) (Loan, error) {
	book, err := ls.books.GetByISBN(ctx, loan.ISBN)
	if err == ErrBookNotFound {
		ls.logger.Error("loans: no book for isbn", zap.String("loan.isbn", loan.ISBN))
		return loan, ErrBookNotFound
	}
	if err != nil {
		ls.logger.Error("loans: failed to resolve book", zap.String("loan.isbn", loan.ISBN), zap.Error(err))
		return loan, err
	}

	loan.BookID = book.ID
	loan.ISBN = book.ISBN
	loan.LoanDate = Today(ls.clock)
	loan.Returned = nil

	stored, err := ls.loans.Add(ctx, loan)
	if err != nil {
		ls.logger.Error("loans: failed to issue loan",
			zap.Int64("loan.book", loan.BookID),
			zap.String("loan.customer", loan.Customer),
			zap.Error(err),
		)
		return loan, err
	}
	ls.logger.Info("loans: loan issued",
		zap.Int64("loan.id", stored.ID),
		zap.Int64("loan.book", stored.BookID),
		zap.String("loan.customer", stored.Customer),
	)
	return stored, nil
}

func (ls *LoanService) GetOne(ctx context.Context, id int64) (Loan, error) {
	return ls.loans.GetOne(ctx, id)
}

// MarkReturned closes an existing loan. Closing only relaxes the single
// active loan rule so no re-validation happens here.
func (ls *LoanService) MarkReturned(ctx context.Context, loan Loan) (Loan, error) {
	if loan.ID == 0 {
		return loan, ErrLoanIDRequired
	}
	returned := true
	loan.Returned = &returned
	updated, err := ls.loans.Update(ctx, loan)
	if err != nil {
		ls.logger.Error("loans: failed to mark loan returned", zap.Int64("loan.id", loan.ID), zap.Error(err))
		return loan, err
	}
	ls.logger.Info("loans: loan returned", zap.Int64("loan.id", updated.ID), zap.Int64("loan.book", updated.BookID))
	return updated, nil
}

func (ls *LoanService) Find(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error) {
	return ls.loans.Find(ctx, filter, page)
}

func (ls *LoanService) ListByBook(ctx context.Context, bookID int64, page Page) ([]Loan, int, error) {
	return ls.loans.ListByBook(ctx, bookID, page)
}

// Overdue returns every active loan issued strictly before today minus
// the configured grace period. A loan issued exactly graceDays ago is
// still on time; a returned loan is never overdue regardless of age.
func (ls *LoanService) Overdue(ctx context.Context) ([]Loan, error) {
	before := Today(ls.clock).AddDate(0, 0, -ls.config.Scheduler.GraceDays)
	return ls.loans.Overdue(ctx, before)
}
