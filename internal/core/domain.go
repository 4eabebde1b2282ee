package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical textual form of a calendar date.
const DateLayout = "2006-01-02"

// DefaultCategories are seeded for every new user, in this order.
var DefaultCategories = []string{"Food", "Transport", "Bills", "Entertainment", "Other"}

type (
	Date struct {
		time.Time
	}

	User struct {
		ID           int64
		Username     string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	Expense struct {
		ID           int64
		UserID       int64
		CategoryID   int64
		CategoryName string // resolved on read
		Amount       decimal.Decimal
		Description  string
		Date         Date
		CreatedAt    time.Time
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyCategory   = errors.New("empty category name")
	ErrCategoryTooLong = errors.New("category name too long (max 100 characters)")
	ErrMissingOwner    = errors.New("missing owner")
	ErrMissingCategory = errors.New("missing category")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the calendar date of now in UTC.
func Today(now time.Time) Date {
	y, m, d := now.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// HasEmail reports whether the user configured a destination address.
func (u User) HasEmail() bool {
	return strings.TrimSpace(u.Email) != ""
}

func (c Category) Validate() error {
	if c.UserID <= 0 {
		return ErrMissingOwner
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyCategory
	}
	if len(name) > 100 {
		return ErrCategoryTooLong
	}
	return nil
}

func (e Expense) Validate() error {
	if e.UserID <= 0 {
		return ErrMissingOwner
	}
	if e.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	return e.Date.Validate()
}
