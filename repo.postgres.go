package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver import
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	tableBooks = "books"
	tableLoans = "loans"

	// Constraints backing the business rules. The partial unique index on
	// loans is the storage backstop for the one active loan per book rule.
	constraintBooksISBN   = "books_isbn_key"
	constraintActiveLoans = "loans_active_book_key"

	pgUniqueViolation = "23505"
	pgDateLayout      = "2006-01-02"
)

var pgDialect = goqu.Dialect("postgres")

// Schema of the postgres backend. Loans reference books by id only, on
// purpose without a foreign key: a loan record outlives the book it was
// issued against.
var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		isbn TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS books_isbn_key ON books (isbn)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		book_id BIGINT NOT NULL,
		isbn TEXT NOT NULL,
		customer TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		loan_date DATE NOT NULL,
		returned BOOLEAN
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS loans_active_book_key ON loans (book_id) WHERE returned IS NOT TRUE`,
	`CREATE INDEX IF NOT EXISTS loans_overdue_idx ON loans (returned, loan_date)`,
	`CREATE INDEX IF NOT EXISTS loans_isbn_idx ON loans (isbn)`,
	`CREATE INDEX IF NOT EXISTS loans_customer_idx ON loans (customer)`,
}

// GetPostgresClient provides a ready to use postgres client through the
// pgx stdlib driver.
func GetPostgresClient(config *Config) (*sqlx.DB, error) {
	sslMode := config.Postgres.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		config.Postgres.Username, config.Postgres.Password,
		config.Postgres.Host, config.Postgres.Port,
		config.Postgres.Database, sslMode,
	)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("test connection failed: %v", err)
	}
	if config.Postgres.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.Postgres.MaxOpenConns)
	}
	if config.Postgres.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}
	if config.Postgres.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.Postgres.ConnMaxLifetime)
	}
	return db, nil
}

// CreatePostgresSchema applies the tables and indexes the storage needs.
func CreatePostgresSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range pgSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %v", err)
		}
	}
	return nil
}

// likePattern wraps a filter value into a substring ILIKE pattern with
// the `%` and `_` metacharacters escaped, so filter values match
// literally like they do on the embedded backend.
func likePattern(value string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(value) + "%"
}

// violatedConstraint extracts the constraint name of a postgres unique
// violation so storage methods can map it to a business error.
func violatedConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

type pgBookRow struct {
	ID     int64  `db:"id"`
	ISBN   string `db:"isbn"`
	Title  string `db:"title"`
	Author string `db:"author"`
}

func (r pgBookRow) toBook() Book {
	return Book{ID: r.ID, ISBN: r.ISBN, Title: r.Title, Author: r.Author}
}

type pgLoanRow struct {
	ID            int64     `db:"id"`
	BookID        int64     `db:"book_id"`
	ISBN          string    `db:"isbn"`
	Customer      string    `db:"customer"`
	CustomerEmail string    `db:"customer_email"`
	LoanDate      time.Time `db:"loan_date"`
	Returned      *bool     `db:"returned"`
}

func (r pgLoanRow) toLoan() Loan {
	return Loan{
		ID:            r.ID,
		BookID:        r.BookID,
		ISBN:          r.ISBN,
		Customer:      r.Customer,
		CustomerEmail: r.CustomerEmail,
		LoanDate:      r.LoanDate,
		Returned:      r.Returned,
	}
}

type postgresBookStorage struct {
	logger *zap.Logger
	db     *sqlx.DB
}

var _ BookStorage = (*postgresBookStorage)(nil)

// NewPostgresBookStorage provides an instance of postgres-based books storage.
func NewPostgresBookStorage(logger *zap.Logger, db *sqlx.DB) BookStorage {
	return &postgresBookStorage{logger: logger, db: db}
}

// Add inserts a new book record. The unique index on isbn rejects a
// duplicate whatever the interleaving of concurrent adds.
func (ps *postgresBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	query, args, err := pgDialect.Insert(tableBooks).Prepared(true).
		Rows(goqu.Record{"isbn": book.ISBN, "title": book.Title, "author": book.Author}).
		Returning("id").ToSQL()
	if err != nil {
		return book, err
	}
	if err = ps.db.QueryRowxContext(ctx, query, args...).Scan(&book.ID); err != nil {
		if name, ok := violatedConstraint(err); ok && name == constraintBooksISBN {
			return book, ErrDuplicateISBN
		}
		return book, err
	}
	return book, nil
}

// GetOne retrieves a book record based on its ID.
func (ps *postgresBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	return ps.getOne(ctx, goqu.C("id").Eq(id))
}

// GetByISBN retrieves a book record based on its ISBN.
func (ps *postgresBookStorage) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	return ps.getOne(ctx, goqu.C("isbn").Eq(isbn))
}

func (ps *postgresBookStorage) getOne(ctx context.Context, where goqu.Expression) (Book, error) {
	var row pgBookRow
	query, args, err := pgDialect.From(tableBooks).Prepared(true).
		Select("id", "isbn", "title", "author").Where(where).ToSQL()
	if err != nil {
		return Book{}, err
	}
	if err = ps.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, ErrBookNotFound
		}
		return Book{}, err
	}
	return row.toBook(), nil
}

// Update overwrites an existing book record.
func (ps *postgresBookStorage) Update(ctx context.Context, book Book) (Book, error) {
	query, args, err := pgDialect.Update(tableBooks).Prepared(true).
		Set(goqu.Record{"isbn": book.ISBN, "title": book.Title, "author": book.Author}).
		Where(goqu.C("id").Eq(book.ID)).ToSQL()
	if err != nil {
		return book, err
	}
	result, err := ps.db.ExecContext(ctx, query, args...)
	if err != nil {
		if name, ok := violatedConstraint(err); ok && name == constraintBooksISBN {
			return book, ErrDuplicateISBN
		}
		return book, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return book, ErrBookNotFound
	}
	return book, nil
}

// Delete removes a book record. Loans referencing it are left untouched.
func (ps *postgresBookStorage) Delete(ctx context.Context, id int64) error {
	query, args, err := pgDialect.Delete(tableBooks).Prepared(true).
		Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return err
	}
	result, err := ps.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Find retrieves the page of books matching the filter, in insertion
// order, along with the total number of matches.
func (ps *postgresBookStorage) Find(ctx context.Context, filter BookFilter, page Page) ([]Book, int, error) {
	where := []goqu.Expression{}
	if filter.ISBN != "" {
		where = append(where, goqu.C("isbn").ILike(likePattern(filter.ISBN)))
	}
	if filter.Title != "" {
		where = append(where, goqu.C("title").ILike(likePattern(filter.Title)))
	}
	if filter.Author != "" {
		where = append(where, goqu.C("author").ILike(likePattern(filter.Author)))
	}

	var total int
	countQuery, countArgs, err := pgDialect.From(tableBooks).Prepared(true).
		Select(goqu.COUNT("*")).Where(where...).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	if err = ps.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, err
	}

	ds := pgDialect.From(tableBooks).Prepared(true).
		Select("id", "isbn", "title", "author").
		Where(where...).Order(goqu.C("id").Asc())
	if page.Size > 0 {
		ds = ds.Limit(uint(page.Size)).Offset(uint(page.offset()))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, err
	}
	rows := []pgBookRow{}
	if err = ps.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}
	books := make([]Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toBook())
	}
	return books, total, nil
}

type postgresLoanStorage struct {
	logger *zap.Logger
	db     *sqlx.DB
}

var _ LoanStorage = (*postgresLoanStorage)(nil)

// NewPostgresLoanStorage provides an instance of postgres-based loans ledger.
func NewPostgresLoanStorage(logger *zap.Logger, db *sqlx.DB) LoanStorage {
	return &postgresLoanStorage{logger: logger, db: db}
}

// Add appends a new loan. The partial unique index on (book_id) for
// non-returned rows rejects a second active loan atomically, whatever
// the interleaving of concurrent issues.
func (ps *postgresLoanStorage) Add(ctx context.Context, loan Loan) (Loan, error) {
	query, args, err := pgDialect.Insert(tableLoans).Prepared(true).
		Rows(goqu.Record{
			"book_id":        loan.BookID,
			"isbn":           loan.ISBN,
			"customer":       loan.Customer,
			"customer_email": loan.CustomerEmail,
			"loan_date":      loan.LoanDate.Format(pgDateLayout),
			"returned":       loan.Returned,
		}).Returning("id").ToSQL()
	if err != nil {
		return loan, err
	}
	if err = ps.db.QueryRowxContext(ctx, query, args...).Scan(&loan.ID); err != nil {
		if name, ok := violatedConstraint(err); ok && name == constraintActiveLoans {
			return loan, ErrBookAlreadyLoaned
		}
		return loan, err
	}
	return loan, nil
}

// GetOne retrieves a loan record based on its ID.
func (ps *postgresLoanStorage) GetOne(ctx context.Context, id int64) (Loan, error) {
	var row pgLoanRow
	query, args, err := ps.selectLoans().Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return Loan{}, err
	}
	if err = ps.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Loan{}, ErrLoanNotFound
		}
		return Loan{}, err
	}
	return row.toLoan(), nil
}

// Update overwrites an existing loan record. Reopening a loan while the
// book is held by another active loan trips the partial unique index.
func (ps *postgresLoanStorage) Update(ctx context.Context, loan Loan) (Loan, error) {
	query, args, err := pgDialect.Update(tableLoans).Prepared(true).
		Set(goqu.Record{
			"book_id":        loan.BookID,
			"isbn":           loan.ISBN,
			"customer":       loan.Customer,
			"customer_email": loan.CustomerEmail,
			"loan_date":      loan.LoanDate.Format(pgDateLayout),
			"returned":       loan.Returned,
		}).Where(goqu.C("id").Eq(loan.ID)).ToSQL()
	if err != nil {
		return loan, err
	}
	result, err := ps.db.ExecContext(ctx, query, args...)
	if err != nil {
		if name, ok := violatedConstraint(err); ok && name == constraintActiveLoans {
			return loan, ErrBookAlreadyLoaned
		}
		return loan, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return loan, ErrLoanNotFound
	}
	return loan, nil
}

// Find retrieves loans matching the ISBN or the customer of the filter.
func (ps *postgresLoanStorage) Find(ctx context.Context, filter LoanFilter, page Page) ([]Loan, int, error) {
	or := []goqu.Expression{}
	if filter.ISBN != "" {
		or = append(or, goqu.C("isbn").Eq(filter.ISBN))
	}
	if filter.Customer != "" {
		or = append(or, goqu.C("customer").Eq(filter.Customer))
	}
	where := []goqu.Expression{}
	if len(or) > 0 {
		where = append(where, goqu.Or(or...))
	}
	return ps.list(ctx, where, page)
}

// ListByBook retrieves every loan, active and historical, referencing the book.
func (ps *postgresLoanStorage) ListByBook(ctx context.Context, bookID int64, page Page) ([]Loan, int, error) {
	return ps.list(ctx, []goqu.Expression{goqu.C("book_id").Eq(bookID)}, page)
}

// Overdue retrieves every non-returned loan issued strictly before the
// given day. The full set is returned without pagination.
func (ps *postgresLoanStorage) Overdue(ctx context.Context, before time.Time) ([]Loan, error) {
	query, args, err := ps.selectLoans().Where(
		goqu.C("returned").IsNotTrue(),
		goqu.C("loan_date").Lt(before.Format(pgDateLayout)),
	).Order(goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return nil, err
	}
	rows := []pgLoanRow{}
	if err = ps.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	loans := make([]Loan, 0, len(rows))
	for _, row := range rows {
		loans = append(loans, row.toLoan())
	}
	return loans, nil
}

func (ps *postgresLoanStorage) selectLoans() *goqu.SelectDataset {
	return pgDialect.From(tableLoans).Prepared(true).
		Select("id", "book_id", "isbn", "customer", "customer_email", "loan_date", "returned")
}

func (ps *postgresLoanStorage) list(ctx context.Context, where []goqu.Expression, page Page) ([]Loan, int, error) {
	var total int
	countQuery, countArgs, err := pgDialect.From(tableLoans).Prepared(true).
		Select(goqu.COUNT("*")).Where(where...).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	if err = ps.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, err
	}

	ds := ps.selectLoans().Where(where...).Order(goqu.C("id").Asc())
	if page.Size > 0 {
		ds = ds.Limit(uint(page.Size)).Offset(uint(page.offset()))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, err
	}
	rows := []pgLoanRow{}
	if err = ps.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}
	loans := make([]Loan, 0, len(rows))
	for _, row := range rows {
		loans = append(loans, row.toLoan())
	}
	return loans, total, nil
}
