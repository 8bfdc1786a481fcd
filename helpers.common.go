package main

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// Storage backends and mail transports selectable from configuration.
const (
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
	TransportLog    = "log"
	TransportRedis  = "redis"
)

// Prefixes used to tag generated correlation ids.
const (
	TickIDPrefix string = "t"
	MailIDPrefix string = "m"
)

// Business rule and lookup failures surfaced to callers. The exact
// wording of the id guards and the loan rejection is part of the
// service contract, so leave them as is.
var (
	ErrDuplicateISBN     = errors.New("isbn already registered")
	ErrBookNotFound      = errors.New("book not found")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrBookAlreadyLoaned = errors.New("Book already loaned")
	ErrBookIDRequired    = errors.New("Book Id cant be null.")
	ErrLoanIDRequired    = errors.New("Loan Id cant be null.")
)

type missingFieldError string

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

// jsonCodec is the codec used for stored records and queued messages.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Page describes the slice of results a finder call should return.
// Number is zero-based, a negative value counts as the first page.
// A non positive Size means no limit.
type Page struct {
	Number int
	Size   int
}

// offset returns the number of results to skip before the page.
func (p Page) offset() int {
	if p.Size <= 0 || p.Number <= 0 {
		return 0
	}
	return p.Number * p.Size
}

// pageWindow computes the [lo, hi) bounds of a page over total results.
func pageWindow(total int, page Page) (int, int) {
	if page.Size <= 0 {
		return 0, total
	}
	lo := page.offset()
	if lo > total {
		lo = total
	}
	hi := lo + page.Size
	if hi > total {
		hi = total
	}
	return lo, hi
}
