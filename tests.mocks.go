package main

import (
	"context"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	AddFunc       func(ctx context.Context, book Book) (Book, error)
	GetOneFunc    func(ctx context.Context, id int64) (Book, error)
	GetByISBNFunc func(ctx context.Context, isbn string) (Book, error)
	UpdateFunc    func(ctx context.Context, book Book) (Book, error)
	DeleteFunc    func(ctx context.Context, id int64) error
	FindFunc      func(ctx context.Context, filter BookFilter, page Page) ([]Book, int, error)
}

func (m *MockBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	return m.AddFunc(ctx, book)
}

func (m *MockBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	return m.GetOneFunc(ctx, id)
}

func (m *MockBookStorage) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	return m.GetByISBNFunc(ctx, isbn)
}

func (m *MockBookStorage) Update(ctx context.Context, book Book) (Book, error) {
	return m.UpdateFunc(ctx, book)
}

func (m *MockBookStorage) Delete(ctx context.Context, id int64) error {
	return m.DeleteFunc(ctx, id)
}

func (m *MockBookStorage) Find(ctx context.Context, filter BookFilter, page Page) ([]Book, int, error) {
	return m.FindFunc(ctx, filter, page)
}

type MockLoanStorage struct {
	AddFunc        func(ctx context.Context, loan Loan) (Loan, error)
	GetOneFunc     func(ctx context.Context, id int64) (Loan, error)
	UpdateFunc     func(ctx context.Context, loan Loan) (Loan, error)
	FindFunc       func(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error)
	ListByBookFunc func(ctx context.Context, bookID int64, page Page) ([]Loan, int, error)
	OverdueFunc    func(ctx context.Context, before time.Time) ([]Loan, error)
}

func (m *MockLoanStorage) Add(ctx context.Context, loan Loan) (Loan, error) {
	return m.AddFunc(ctx, loan)
}

func (m *MockLoanStorage) GetOne(ctx context.Context, id int64) (Loan, error) {
	return m.GetOneFunc(ctx, id)
}

func (m *MockLoanStorage) Update(ctx context.Context, loan Loan) (Loan, error) {
	return m.UpdateFunc(ctx, loan)
}

func (m *MockLoanStorage) Find(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error) {
	return m.FindFunc(ctx, filter, page)
}

func (m *MockLoanStorage) ListByBook(ctx context.Context, bookID int64, page Page) ([]Loan, int, error) {
	return m.ListByBookFunc(ctx, bookID, page)
}

func (m *MockLoanStorage) Overdue(ctx context.Context, before time.Time) ([]Loan, error) {
	return m.OverdueFunc(ctx, before)
}

// MockLoanService implements a fake LoanServiceProvider for the scheduler tests.
type MockLoanService struct {
	IssueFunc        func(ctx context.Context, loan Loan) (Loan, error)
	GetOneFunc       func(ctx context.Context, id int64) (Loan, error)
	MarkReturnedFunc func(ctx context.Context, loan Loan) (Loan, error)
	FindFunc         func(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error)
	ListByBookFunc   func(ctx context.Context, bookID int64, page Page) ([]Loan, int, error)
	OverdueFunc      func(ctx context.Context) ([]Loan, error)
}

func (m *MockLoanService) Issue(ctx context.Context, loan Loan) (Loan, error) {
	return m.IssueFunc(ctx, loan)
}

func (m *MockLoanService) GetOne(ctx context.Context, id int64) (Loan, error) {
	return m.GetOneFunc(ctx, id)
}

func (m *MockLoanService) MarkReturned(ctx context.Context, loan Loan) (Loan, error) {
	return m.MarkReturnedFunc(ctx, loan)
}

func (m *MockLoanService) Find(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error) {
	return m.FindFunc(ctx, filter, page)
}

func (m *MockLoanService) ListByBook(ctx context.Context, bookID int64, page Page) ([]Loan, int, error) {
	return m.ListByBookFunc(ctx, bookID, page)
}

func (m *MockLoanService) Overdue(ctx context.Context) ([]Loan, error) {
	return m.OverdueFunc(ctx)
}

// MockNotifier implements a fake NotifierProvider.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, message string, recipients []string) error
}

func (m *MockNotifier) Notify(ctx context.Context, message string, recipients []string) error {
	return m.NotifyFunc(ctx, message, recipients)
}

// MockMailTransport implements a fake MailTransport.
type MockMailTransport struct {
	SendFunc func(ctx context.Context, mail Mail) error
}

func (m *MockMailTransport) Send(ctx context.Context, mail Mail) error {
	return m.SendFunc(ctx, mail)
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
// This equals to `Sun, 02 Jul 2023 10:30:00 UTC`.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 7, 2, 10, 30, 0, 0, time.UTC)}
}

// Now returns an already defined time to be used as mock.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// newTestConfig provides a minimal configuration for unit tests.
func newTestConfig() *Config {
	return &Config{
		Mail: MailConfig{
			Sender:      "library@localhost",
			Subject:     "Delayed loan",
			Message:     "You have an overdue loan.",
			Transport:   TransportLog,
			SendTimeout: time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval:  10 * time.Millisecond,
			GraceDays: 4,
		},
	}
}
