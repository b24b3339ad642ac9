package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"card_underwriting/internal/domain"
	"card_underwriting/internal/repository"
)

type WatchlistRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.WatchlistEntry
}

func NewWatchlistRepository() *WatchlistRepository {
	return &WatchlistRepository{
		entries: make(map[string]*domain.WatchlistEntry),
	}
}

// Seed stores one active entry per name, with ids derived from list and position.
func (r *WatchlistRepository) Seed(ctx context.Context, list domain.WatchlistType, names []string) error {
	for i, name := range names {
		entry := &domain.WatchlistEntry{
			ID:       fmt.Sprintf("%s-%d", list, i+1),
			List:     list,
			Name:     name,
			IsActive: true,
		}
		if err := r.Save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *WatchlistRepository) Save(ctx context.Context, entry *domain.WatchlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ID]; exists {
		return fmt.Errorf("%w: watchlist entry %s", repository.ErrDuplicate, entry.ID)
	}

	cp := *entry
	r.entries[entry.ID] = &cp

	return nil
}

func (r *WatchlistRepository) GetActive(ctx context.Context, list domain.WatchlistType) ([]*domain.WatchlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.WatchlistEntry
	for _, entry := range r.entries {
		if entry.List == list && entry.IsActive {
			cp := *entry
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (r *WatchlistRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return fmt.Errorf("%w: watchlist entry %s", repository.ErrNotFound, id)
	}

	entry.IsActive = false

	return nil
}
