// Package stats counts underwriting outcomes per status, per card type and per
// minute.
package stats

import (
	"context"
	"time"
)

const bucketLayout = "200601021504"

type Outcome struct {
	Status   string
	CardType string
	At       time.Time
}

// Totals maps a status to the number of decisions recorded with it.
type Totals map[string]int64

type Recorder interface {
	Record(ctx context.Context, outcome Outcome) error
	Totals(ctx context.Context) (Totals, error)
}

func minuteBucket(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UTC().Format(bucketLayout)
}
