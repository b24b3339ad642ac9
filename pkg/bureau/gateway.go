// Package bureau fetches credit reports from a credit bureau.
package bureau

import (
	"context"
	"errors"

	"card_underwriting/internal/domain"
)

var (
	ErrReportNotFound = errors.New("credit report not found")
	ErrUnavailable    = errors.New("credit bureau unavailable")
)

// Gateway returns the credit report for a tax id. Implementations must honour
// ctx cancellation.
type Gateway interface {
	FetchReport(ctx context.Context, taxID string) (*domain.CreditBureauReport, error)
}
