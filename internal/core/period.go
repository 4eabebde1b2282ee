package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a (year, month) pair scoping a report or export.
type Period struct {
	Year  int
	Month int // 1-12
}

// NewPeriod validates year and month.
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// CurrentPeriod returns the period containing now.
func CurrentPeriod(now time.Time) Period {
	return Period{Year: now.Year(), Month: int(now.Month())}
}

// ParsePeriod reads year and month from raw query values. Each value falls
// back to the current one independently when it is missing or invalid.
func ParsePeriod(yearStr, monthStr string, now time.Time) Period {
	p := CurrentPeriod(now)
	if y, err := strconv.Atoi(strings.TrimSpace(yearStr)); err == nil && validYear(y) {
		p.Year = y
	}
	if m, err := strconv.Atoi(strings.TrimSpace(monthStr)); err == nil && m >= 1 && m <= 12 {
		p.Month = m
	}
	return p
}

func validYear(y int) bool {
	return y >= 1 && y <= 9999
}

func (p Period) Validate() error {
	if !validYear(p.Year) || p.Month < 1 || p.Month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}

// Start is the first day of the period.
func (p Period) Start() Date {
	return NewDate(p.Year, p.Month, 1)
}

// End is the first day after the period.
func (p Period) End() Date {
	return Date{Time: p.Start().AddDate(0, 1, 0)}
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

// Previous returns the period before p.
func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Label is the human readable form, e.g. "March 2024".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", time.Month(p.Month).String(), p.Year)
}

// Key is a compact cache/identity form, e.g. "2024-03".
func (p Period) Key() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Month)
}
