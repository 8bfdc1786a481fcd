package main

import (
	"context"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startPostgresDockerContainer(t *testing.T) (*Config, func()) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Fatalf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("postgres", "15-alpine", []string{
		"POSTGRES_USER=library",
		"POSTGRES_PASSWORD=library",
		"POSTGRES_DB=library",
	})
	if err != nil {
		t.Fatalf("Failed to start postgres: %+v", err)
	}

	testConfig := &Config{
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     resource.GetPort("5432/tcp"),
			Username: "library",
			Password: "library",
			Database: "library",
		},
	}

	// ensure to wait for the container to be ready
	err = pool.Retry(func() error {
		client, e := GetPostgresClient(testConfig)
		if e != nil {
			return e
		}
		defer client.Close()
		return client.Ping()
	})

	if err != nil {
		t.Fatalf("Failed to ping Postgres: %+v", err)
	}

	destroyFunc := func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return testConfig, destroyFunc
}

func TestPostgresStore(t *testing.T) {
	testConfig, destroyFunc := startPostgresDockerContainer(t)
	defer destroyFunc()

	client, err := GetPostgresClient(testConfig)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, CreatePostgresSchema(context.Background(), client))

	books := NewPostgresBookStorage(zap.NewNop(), client)
	loans := NewPostgresLoanStorage(zap.NewNop(), client)
	day := time.Date(2023, 7, 2, 0, 0, 0, 0, time.UTC)

	var book Book
	t.Run("Add Book", func(t *testing.T) {
		// ensures we can insert a new book record with a storage assigned id.
		book, err = books.Add(context.Background(), Book{ISBN: "123", Title: "As Aventuras", Author: "Fulano"})
		assert.NoError(t, err)
		assert.Equal(t, int64(1), book.ID)
	})

	t.Run("Add Book Duplicate ISBN", func(t *testing.T) {
		// ensures the unique index rejects a second record with the same isbn.
		_, err := books.Add(context.Background(), Book{ISBN: "123", Title: "Another One"})
		assert.Equal(t, ErrDuplicateISBN, err)
	})

	t.Run("Get Book By ISBN", func(t *testing.T) {
		got, err := books.GetByISBN(context.Background(), "123")
		assert.NoError(t, err)
		assert.Equal(t, book, got)
	})

	t.Run("Get NonExistent Book", func(t *testing.T) {
		_, err := books.GetOne(context.Background(), 42)
		assert.Equal(t, ErrBookNotFound, err)
	})

	t.Run("Update NonExistent Book", func(t *testing.T) {
		_, err := books.Update(context.Background(), Book{ID: 42, ISBN: "999"})
		assert.Equal(t, ErrBookNotFound, err)
	})

	var first Loan
	t.Run("Issue Loan", func(t *testing.T) {
		first, err = loans.Add(context.Background(), Loan{
			BookID: book.ID, ISBN: "123", Customer: "Fulano",
			CustomerEmail: "fulano@mail.com", LoanDate: day,
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(1), first.ID)
	})

	t.Run("Issue Loan On Loaned Book", func(t *testing.T) {
		// ensures the partial unique index rejects a second active loan.
		_, err := loans.Add(context.Background(), Loan{BookID: book.ID, ISBN: "123", Customer: "Sicrano", LoanDate: day})
		assert.Equal(t, ErrBookAlreadyLoaned, err)
	})

	t.Run("Return Then Issue Again", func(t *testing.T) {
		returned := true
		first.Returned = &returned
		_, err := loans.Update(context.Background(), first)
		assert.NoError(t, err)

		second, err := loans.Add(context.Background(), Loan{BookID: book.ID, ISBN: "123", Customer: "Sicrano", LoanDate: day})
		assert.NoError(t, err)
		assert.Equal(t, int64(2), second.ID)
	})

	t.Run("Update NonExistent Loan", func(t *testing.T) {
		_, err := loans.Update(context.Background(), Loan{ID: 42, BookID: book.ID, ISBN: "123", LoanDate: day})
		assert.Equal(t, ErrLoanNotFound, err)
	})

	t.Run("List By Book", func(t *testing.T) {
		// ensures the ledger keeps both the returned and the active loan.
		all, total, err := loans.ListByBook(context.Background(), book.ID, Page{})
		assert.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, all, 2)
	})

	t.Run("Find Loans OR Semantics", func(t *testing.T) {
		got, total, err := loans.Find(context.Background(), LoanFilter{ISBN: "999", Customer: "Fulano"}, Page{})
		assert.NoError(t, err)
		assert.Equal(t, 1, total)
		if assert.Len(t, got, 1) {
			assert.Equal(t, "Fulano", got[0].Customer)
		}

		_, total, err = loans.Find(context.Background(), LoanFilter{ISBN: "123", Customer: "Fulano"}, Page{})
		assert.NoError(t, err)
		assert.Equal(t, 2, total, "a record matching either side counts once")
	})

	t.Run("Find Books Pagination", func(t *testing.T) {
		_, err := books.Add(context.Background(), Book{ISBN: "456", Title: "More Adventures", Author: "Fulano"})
		assert.NoError(t, err)

		got, total, err := books.Find(context.Background(), BookFilter{Author: "fulano"}, Page{Number: 1, Size: 1})
		assert.NoError(t, err)
		assert.Equal(t, 2, total, "total counts every match, not the page")
		if assert.Len(t, got, 1) {
			assert.Equal(t, "456", got[0].ISBN)
		}
	})

	t.Run("Find Books Negative Page Number", func(t *testing.T) {
		got, total, err := books.Find(context.Background(), BookFilter{Author: "fulano"}, Page{Number: -3, Size: 1})
		assert.NoError(t, err)
		assert.Equal(t, 2, total)
		if assert.Len(t, got, 1, "a negative page number falls back to the first page") {
			assert.Equal(t, "123", got[0].ISBN)
		}
	})

	t.Run("Find Books Literal Wildcards", func(t *testing.T) {
		// ensures `%` and `_` in filter values match literally, like on
		// the embedded backend.
		_, err := books.Add(context.Background(), Book{ISBN: "650", Title: "100% Go", Author: "Someone"})
		assert.NoError(t, err)

		got, total, err := books.Find(context.Background(), BookFilter{Title: "100%"}, Page{})
		assert.NoError(t, err)
		assert.Equal(t, 1, total)
		if assert.Len(t, got, 1) {
			assert.Equal(t, "650", got[0].ISBN)
		}

		_, total, err = books.Find(context.Background(), BookFilter{Title: "_"}, Page{})
		assert.NoError(t, err)
		assert.Equal(t, 0, total, "an underscore must not act as a single-character wildcard")
	})

	t.Run("Overdue Window", func(t *testing.T) {
		// a book stuck out for five days and one returned long ago.
		lateBook, err := books.Add(context.Background(), Book{ISBN: "700", Title: "Late One"})
		assert.NoError(t, err)
		late, err := loans.Add(context.Background(), Loan{
			BookID: lateBook.ID, ISBN: "700", Customer: "Beltrano",
			CustomerEmail: "beltrano@mail.com", LoanDate: day.AddDate(0, 0, -5),
		})
		assert.NoError(t, err)

		oldBook, err := books.Add(context.Background(), Book{ISBN: "800", Title: "Old One"})
		assert.NoError(t, err)
		returned := true
		_, err = loans.Add(context.Background(), Loan{
			BookID: oldBook.ID, ISBN: "800", Customer: "Someone",
			LoanDate: day.AddDate(0, 0, -30), Returned: &returned,
		})
		assert.NoError(t, err)

		onTimeBook, err := books.Add(context.Background(), Book{ISBN: "900", Title: "On Time"})
		assert.NoError(t, err)
		_, err = loans.Add(context.Background(), Loan{
			BookID: onTimeBook.ID, ISBN: "900", Customer: "Prompt",
			LoanDate: day.AddDate(0, 0, -4),
		})
		assert.NoError(t, err)

		// graceDays = 4 so the threshold day itself is still on time.
		before := day.AddDate(0, 0, -4)
		got, err := loans.Overdue(context.Background(), before)
		assert.NoError(t, err)
		if assert.Len(t, got, 1) {
			assert.Equal(t, late.ID, got[0].ID)
			assert.Equal(t, "beltrano@mail.com", got[0].CustomerEmail)
		}
	})
}
