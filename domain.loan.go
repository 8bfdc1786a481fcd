package main

import (
	"context"
	"time"
)

// Loan represents one lending of a book to a customer. BookID is a
// plain reference to the book identity, never an owning pointer: a
// loan outlives the book record it was issued against. The ISBN is a
// denormalized copy taken at loan time. Returned keeps the tri-state
// of the historical records: nil or false means the loan is active.
type Loan struct {
	ID            int64     `json:"id"`
	BookID        int64     `json:"bookId"`
	ISBN          string    `json:"isbn"`
	Customer      string    `json:"customer"`
	CustomerEmail string    `json:"customerEmail"`
	LoanDate      time.Time `json:"loanDate"`
	Returned      *bool     `json:"returned,omitempty"`
}

// IsReturned reports whether the loan has been closed.
func (l Loan) IsReturned() bool {
	return l.Returned != nil && *l.Returned
}

// LoanFilter selects loans whose ISBN equals the filter ISBN or whose
// customer equals the filter customer. The two fields combine with OR,
// an empty filter matches everything.
type LoanFilter struct {
	ISBN     string
	Customer string
}

// Match implements the OR semantics of the loans listing.
func (f LoanFilter) Match(l Loan) bool {
	if f.ISBN == "" && f.Customer == "" {
		return true
	}
	if f.ISBN != "" && l.ISBN == f.ISBN {
		return true
	}
	if f.Customer != "" && l.Customer == f.Customer {
		return true
	}
	return false
}

// LoanStorage defines possible operations on the loans ledger. Records
// are never deleted. Add must enforce atomically that at most one
// non-returned loan exists per book and fail with ErrBookAlreadyLoaned
// otherwise. Overdue returns every active loan whose loan date is
// strictly before the given day, without pagination.
type LoanStorage interface {
	Add(ctx context.Context, loan Loan) (Loan, error)
	GetOne(ctx context.Context, id int64) (Loan, error)
	Update(ctx context.Context, loan Loan) (Loan, error)
	Find(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error)
	ListByBook(ctx context.Context, bookID int64, page Page) ([]Loan, int, error)
	Overdue(ctx context.Context, before time.Time) ([]Loan, error)
}
