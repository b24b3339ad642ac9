package stats

import (
	"context"
	"sync"
)

// MemoryRecorder keeps counters in process. Per-minute buckets are kept
// forever, so it suits tests and single short-lived runs.
type MemoryRecorder struct {
	mu      sync.Mutex
	total   map[string]int64
	minutes map[string]map[string]int64
	cards   map[string]map[string]int64
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		total:   make(map[string]int64),
		minutes: make(map[string]map[string]int64),
		cards:   make(map[string]map[string]int64),
	}
}

func (m *MemoryRecorder) Record(_ context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total[o.Status]++
	incr(m.minutes, minuteBucket(o.At), o.Status)
	if o.CardType != "" {
		incr(m.cards, o.CardType, o.Status)
	}
	return nil
}

func (m *MemoryRecorder) Totals(_ context.Context) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := make(Totals, len(m.total))
	for k, v := range m.total {
		totals[k] = v
	}
	return totals, nil
}

func (m *MemoryRecorder) ByCardType(cardType string) map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64)
	for k, v := range m.cards[cardType] {
		out[k] = v
	}
	return out
}

func incr(m map[string]map[string]int64, key, field string) {
	inner, ok := m[key]
	if !ok {
		inner = make(map[string]int64)
		m[key] = inner
	}
	inner[field]++
}
