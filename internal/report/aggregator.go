// Package report builds monthly expense reports.
package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spesa/internal/cache"
	"spesa/internal/core"
	applog "spesa/internal/log"

	"github.com/shopspring/decimal"
)

// ExpenseReader is the read side of storage used by the aggregator.
type ExpenseReader interface {
	ListExpensesByPeriod(ctx context.Context, userID int64, p core.Period) ([]core.Expense, error)
	ExpenseYears(ctx context.Context, userID int64) ([]int, error)
}

// Aggregator computes reports, caching them per user and period.
type Aggregator struct {
	store  ExpenseReader
	cache  cache.Cache[core.Report]
	now    func() time.Time
	logger *applog.Logger

	onLookup func(hit bool)

	// generations counts invalidations per user. A computed report is only
	// cached when no invalidation happened while it was being built.
	mu          sync.Mutex
	generations map[int64]uint64
}

type Option func(*Aggregator)

// WithCache enables report caching.
func WithCache(c cache.Cache[core.Report]) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithCacheObserver is called on every cached lookup with its outcome.
func WithCacheObserver(fn func(hit bool)) Option {
	return func(a *Aggregator) { a.onLookup = fn }
}

// WithClock overrides the current time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(store ExpenseReader, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:       store,
		now:         time.Now,
		logger:      applog.Default(applog.ComponentReport),
		generations: make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MonthlyReport returns the user's report for the period.
func (a *Aggregator) MonthlyReport(ctx context.Context, userID int64, p core.Period) (core.Report, error) {
	if err := p.Validate(); err != nil {
		return core.Report{}, err
	}
	key := cacheKey(userID, p)
	gen := a.generation(userID)
	if a.cache != nil {
		r, ok := a.cache.Get(key)
		if a.onLookup != nil {
			a.onLookup(ok)
		}
		if ok {
			return r, nil
		}
	}

	expenses, err := a.store.ListExpensesByPeriod(ctx, userID, p)
	if err != nil {
		return core.Report{}, fmt.Errorf("load expenses: %w", err)
	}
	r := Summarize(expenses, userID, p)

	a.remember(userID, gen, key, r)
	a.logger.DebugContext(ctx, "Report computed",
		applog.FieldUserID, userID, applog.FieldYear, p.Year, applog.FieldMonth, p.Month,
		"expenses", len(expenses), "total", core.FormatAmount(r.Total))
	return r, nil
}

// AvailableYears lists the years that have expenses, newest first, always
// including the current year.
func (a *Aggregator) AvailableYears(ctx context.Context, userID int64) ([]int, error) {
	years, err := a.store.ExpenseYears(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load years: %w", err)
	}
	return withYear(years, a.now().Year()), nil
}

// Invalidate drops the user's cached reports. Reports still being computed
// from data read before the call are not cached.
func (a *Aggregator) Invalidate(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generations[userID]++
	if a.cache != nil {
		a.cache.DeletePrefix(fmt.Sprintf("%d:", userID))
	}
}

func (a *Aggregator) generation(userID int64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generations[userID]
}

// remember caches r unless the user's data changed since gen was read.
func (a *Aggregator) remember(userID int64, gen uint64, key string, r core.Report) {
	if a.cache == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generations[userID] == gen {
		a.cache.Set(key, r)
	}
}

func cacheKey(userID int64, p core.Period) string {
	return fmt.Sprintf("%d:%s", userID, p.Key())
}

func withYear(years []int, current int) []int {
	out := make([]int, 0, len(years)+1)
	seen := map[int]bool{}
	for _, y := range append(years, current) {
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Summarize aggregates the expenses of userID within p. Expenses belonging to
// other users or periods are ignored. Categories are ordered by subtotal
// descending, then by name.
func Summarize(expenses []core.Expense, userID int64, p core.Period) core.Report {
	totals := map[string]decimal.Decimal{}
	total := decimal.Zero
	for _, e := range expenses {
		if e.UserID != userID || !p.Contains(e.Date) {
			continue
		}
		totals[e.CategoryName] = totals[e.CategoryName].Add(e.Amount)
		total = total.Add(e.Amount)
	}

	byCategory := make([]core.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		byCategory = append(byCategory, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(byCategory, func(i, j int) bool {
		if c := byCategory[i].Amount.Cmp(byCategory[j].Amount); c != 0 {
			return c > 0
		}
		return byCategory[i].Name < byCategory[j].Name
	})

	chart := core.ChartData{
		Labels: make([]string, len(byCategory)),
		Values: make([]float64, len(byCategory)),
	}
	for i, c := range byCategory {
		chart.Labels[i] = c.Name
		chart.Values[i] = c.Amount.InexactFloat64()
	}

	return core.Report{
		UserID:     userID,
		Period:     p,
		Total:      total,
		ByCategory: byCategory,
		Chart:      chart,
	}
}
