package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

// Bucket layout of the embedded store. books.isbn maps an ISBN to the
// owning book id and backs the uniqueness rule. loans.active maps a
// book id to its single non-returned loan id and backs the one active
// loan per book rule. Both indexes are maintained inside the same
// update transaction as the record they guard.
const (
	bucketBooks       = "books"
	bucketBooksISBN   = "books.isbn"
	bucketLoans       = "loans"
	bucketLoansActive = "loans.active"
)

var boltBuckets = []string{bucketBooks, bucketBooksISBN, bucketLoans, bucketLoansActive}

// GetBoltDBClient setup the database and the buckets then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range boltBuckets {
			if _, errB := tx.CreateBucketIfNotExists([]byte(name)); errB != nil {
				return fmt.Errorf("failed to create %s bucket: %v", name, errB)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up buckets: %v", err)
	}
	return db, nil
}

// itob encodes a record id as a big endian 8-bytes key so the default
// cursor order is the insertion order.
func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

type boltBookStorage struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

var _ BookStorage = (*boltBookStorage)(nil)

// NewBoltBookStorage provides an instance of bolt-based books storage.
func NewBoltBookStorage(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) BookStorage {
	return &boltBookStorage{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// Close shuts down the bolt-based storage.
func (bs *boltBookStorage) Close() error {
	return bs.client.Close()
}

// Add inserts a new book record. The ISBN check and the insert share
// one update transaction so two concurrent adds cannot both pass.
func (bs *boltBookStorage) Add(_ context.Context, book Book) (Book, error) {
	err := bs.client.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBooks))
		ib := tx.Bucket([]byte(bucketBooksISBN))
		if ib.Get([]byte(book.ISBN)) != nil {
			return ErrDuplicateISBN
		}
		seq, err := bb.NextSequence()
		if err != nil {
			return err
		}
		book.ID = int64(seq)
		bookBytes, err := jsonCodec.Marshal(book)
		if err != nil {
			return err
		}
		if err = bb.Put(itob(book.ID), bookBytes); err != nil {
			return err
		}
		return ib.Put([]byte(book.ISBN), itob(book.ID))
	})
	return book, err
}

// GetOne retrieves a book record based on its ID.
func (bs *boltBookStorage) GetOne(_ context.Context, id int64) (Book, error) {
	var book Book
	tx, err := bs.client.Begin(false)
	if err != nil {
		return book, err
	}
	defer tx.Rollback()

	result := tx.Bucket([]byte(bucketBooks)).Get(itob(id))
	if result == nil {
		return book, ErrBookNotFound
	}
	err = jsonCodec.Unmarshal(result, &book)
	return book, err
}

// GetByISBN retrieves a book record through the ISBN index.
func (bs *boltBookStorage) GetByISBN(_ context.Context, isbn string) (Book, error) {
	var book Book
	tx, err := bs.client.Begin(false)
	if err != nil {
		return book, err
	}
	defer tx.Rollback()

	idKey := tx.Bucket([]byte(bucketBooksISBN)).Get([]byte(isbn))
	if idKey == nil {
		return book, ErrBookNotFound
	}
	result := tx.Bucket([]byte(bucketBooks)).Get(idKey)
	if result == nil {
		return book, ErrBookNotFound
	}
	err = jsonCodec.Unmarshal(result, &book)
	return book, err
}

// Update overwrites an existing book record and keeps the ISBN index in
// sync in case the caller swapped the ISBN for a free one.
func (bs *boltBookStorage) Update(_ context.Context, book Book) (Book, error) {
	err := bs.client.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBooks))
		ib := tx.Bucket([]byte(bucketBooksISBN))
		existing := bb.Get(itob(book.ID))
		if existing == nil {
			return ErrBookNotFound
		}
		var old Book
		if err := jsonCodec.Unmarshal(existing, &old); err != nil {
			return err
		}
		if old.ISBN != book.ISBN {
			if owner := ib.Get([]byte(book.ISBN)); owner != nil && !bytes.Equal(owner, itob(book.ID)) {
				return ErrDuplicateISBN
			}
			if err := ib.Delete([]byte(old.ISBN)); err != nil {
				return err
			}
			if err := ib.Put([]byte(book.ISBN), itob(book.ID)); err != nil {
				return err
			}
		}
		bookBytes, err := jsonCodec.Marshal(book)
		if err != nil {
			return err
		}
		return bb.Put(itob(book.ID), bookBytes)
	})
	return book, err
}

// Delete removes a book record and its ISBN index entry. Loans keep
// their own copy of the book data and are left untouched.
func (bs *boltBookStorage) Delete(_ context.Context, id int64) error {
	return bs.client.Update(func(tx *bolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBooks))
		existing := bb.Get(itob(id))
		if existing == nil {
			return ErrBookNotFound
		}
		var book Book
		if err := jsonCodec.Unmarshal(existing, &book); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketBooksISBN)).Delete([]byte(book.ISBN)); err != nil {
			return err
		}
		return bb.Delete(itob(id))
	})
}

// Find retrieves the page of books matching the filter, in insertion
// order, along with the total number of matches.
func (bs *boltBookStorage) Find(_ context.Context, filter BookFilter, page Page) ([]Book, int, error) {
	tx, err := bs.client.Begin(false)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	c := tx.Bucket([]byte(bucketBooks)).Cursor()
	matched := []Book{}
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var book Book
		if err = jsonCodec.Unmarshal(v, &book); err != nil {
			return nil, 0, err
		}
		if filter.Match(book) {
			matched = append(matched, book)
		}
	}
	total := len(matched)
	lo, hi := pageWindow(total, page)
	return matched[lo:hi], total, nil
}

type boltLoanStorage struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

var _ LoanStorage = (*boltLoanStorage)(nil)

// NewBoltLoanStorage provides an instance of bolt-based loans ledger.
func NewBoltLoanStorage(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) LoanStorage {
	return &boltLoanStorage{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// Add appends a new loan to the ledger. The active-loan index lookup
// and the insert share one update transaction: two concurrent issues
// for the same book cannot both observe a free book.
func (ls *boltLoanStorage) Add(_ context.Context, loan Loan) (Loan, error) {
	err := ls.client.Update(func(tx *bolt.Tx) error {
		lb := tx.Bucket([]byte(bucketLoans))
		ab := tx.Bucket([]byte(bucketLoansActive))
		if ab.Get(itob(loan.BookID)) != nil {
			return ErrBookAlreadyLoaned
		}
		seq, err := lb.NextSequence()
		if err != nil {
			return err
		}
		loan.ID = int64(seq)
		loanBytes, err := jsonCodec.Marshal(loan)
		if err != nil {
			return err
		}
		if err = lb.Put(itob(loan.ID), loanBytes); err != nil {
			return err
		}
		return ab.Put(itob(loan.BookID), itob(loan.ID))
	})
	return loan, err
}

// GetOne retrieves a loan record based on its ID.
func (ls *boltLoanStorage) GetOne(_ context.Context, id int64) (Loan, error) {
	var loan Loan
	tx, err := ls.client.Begin(false)
	if err != nil {
		return loan, err
	}
	defer tx.Rollback()

	result := tx.Bucket([]byte(bucketLoans)).Get(itob(id))
	if result == nil {
		return loan, ErrLoanNotFound
	}
	err = jsonCodec.Unmarshal(result, &loan)
	return loan, err
}

// Update overwrites an existing loan record and maintains the
// active-loan index according to the returned flag.
func (ls *boltLoanStorage) Update(_ context.Context, loan Loan) (Loan, error) {
	err := ls.client.Update(func(tx *bolt.Tx) error {
		lb := tx.Bucket([]byte(bucketLoans))
		ab := tx.Bucket([]byte(bucketLoansActive))
		if lb.Get(itob(loan.ID)) == nil {
			return ErrLoanNotFound
		}
		active := ab.Get(itob(loan.BookID))
		if loan.IsReturned() {
			if bytes.Equal(active, itob(loan.ID)) {
				if err := ab.Delete(itob(loan.BookID)); err != nil {
					return err
				}
			}
		} else {
			if active != nil && !bytes.Equal(active, itob(loan.ID)) {
				return ErrBookAlreadyLoaned
			}
			if err := ab.Put(itob(loan.BookID), itob(loan.ID)); err != nil {
				return err
			}
		}
		loanBytes, err := jsonCodec.Marshal(loan)
		if err != nil {
			return err
		}
		return lb.Put(itob(loan.ID), loanBytes)
	})
	return loan, err
}

// Find retrieves loans matching the ISBN or the customer of the filter.
func (ls *boltLoanStorage) Find(_ context.Context, filter LoanFilter, page Page) ([]Loan, int, error) {
	return ls.scan(func(l Loan) bool { return filter.Match(l) }, page)
}

// ListByBook retrieves every loan, active and historical, referencing the book.
func (ls *boltLoanStorage) ListByBook(_ context.Context, bookID int64, page Page) ([]Loan, int, error) {
	return ls.scan(func(l Loan) bool { return l.BookID == bookID }, page)
}

// Overdue retrieves every non-returned loan issued strictly before the
// given day. The full set is returned, the scan is sized for the once
// per interval scheduler run, not for request traffic.
func (ls *boltLoanStorage) Overdue(_ context.Context, before time.Time) ([]Loan, error) {
	late, _, err := ls.scan(func(l Loan) bool {
		return !l.IsReturned() && l.LoanDate.Before(before)
	}, Page{})
	return late, err
}

func (ls *boltLoanStorage) scan(match func(Loan) bool, page Page) ([]Loan, int, error) {
	tx, err := ls.client.Begin(false)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	c := tx.Bucket([]byte(bucketLoans)).Cursor()
	matched := []Loan{}
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var loan Loan
		if err = jsonCodec.Unmarshal(v, &loan); err != nil {
			return nil, 0, err
		}
		if match(loan) {
			matched = append(matched, loan)
		}
	}
	total := len(matched)
	lo, hi := pageWindow(total, page)
	return matched[lo:hi], total, nil
}
