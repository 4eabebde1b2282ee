package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Report is the monthly overview for one user.
type Report struct {
	UserID     int64
	Period     Period
	Total      decimal.Decimal
	ByCategory []CategoryAmount
	Chart      ChartData
}

// ChartData holds parallel label/value arrays for charting.
type ChartData struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// PendingAuthorization is the anti-forgery state issued to one session while
// the user visits the provider's consent page.
type PendingAuthorization struct {
	SessionID string
	UserID    int64
	State     string
	Period    Period
}
