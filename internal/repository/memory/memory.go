package memory

import (
	"card_underwriting/internal/repository"
)

var (
	_ repository.CustomerRepository    = (*CustomerRepository)(nil)
	_ repository.ApplicationRepository = (*ApplicationRepository)(nil)
	_ repository.WatchlistRepository   = (*WatchlistRepository)(nil)
)
