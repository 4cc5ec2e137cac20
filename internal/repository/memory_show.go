package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/shopspring/decimal"
)

type MemoryShowRepository struct {
	mu    sync.RWMutex
	shows map[int64]domain.Show
}

func NewMemoryShowRepository(shows ...domain.Show) *MemoryShowRepository {
	repo := &MemoryShowRepository{
		shows: make(map[int64]domain.Show, len(shows)),
	}

	for _, show := range shows {
		repo.Put(show)
	}

	return repo
}

func (m *MemoryShowRepository) Put(show domain.Show) {
	show.Seats = domain.SortSeats(show.Seats)

	m.mu.Lock()
	m.shows[show.ID] = show
	m.mu.Unlock()
}

func (m *MemoryShowRepository) GetShow(ctx context.Context, showID int64) (*domain.Show, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	show, ok := m.shows[showID]
	if !ok {
		return nil, domain.ErrShowNotFound
	}

	show.Seats = slices.Clone(show.Seats)

	return &show, nil
}

// catalogShow is the on-disk shape of one show in a catalog file. A seat
// grid is given either as explicit labels or as rows times seatsPerRow.
type catalogShow struct {
	ID          int64           `json:"id"`
	MovieTitle  string          `json:"movieTitle"`
	TheaterName string          `json:"theaterName"`
	StartTime   time.Time       `json:"startTime"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Seats       []domain.SeatID `json:"seats"`
	Rows        []string        `json:"rows"`
	SeatsPerRow int             `json:"seatsPerRow"`
}

// LoadShowsFile reads a JSON catalog file. Shows without a currency are
// priced in defaultCurrency.
func LoadShowsFile(path, defaultCurrency string) ([]domain.Show, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []catalogShow
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	shows := make([]domain.Show, 0, len(entries))

	for _, entry := range entries {
		seats := slices.Clone(entry.Seats)

		for _, row := range entry.Rows {
			for n := 1; n <= entry.SeatsPerRow; n++ {
				seat, err := domain.ParseSeatID(fmt.Sprintf("%s%d", row, n))
				if err != nil {
					return nil, fmt.Errorf("show %d: %w", entry.ID, err)
				}
				seats = append(seats, seat)
			}
		}

		if len(seats) == 0 {
			return nil, fmt.Errorf("show %d has no seats", entry.ID)
		}

		if entry.Currency == "" {
			entry.Currency = defaultCurrency
		}

		shows = append(shows, domain.Show{
			ID:          entry.ID,
			MovieTitle:  entry.MovieTitle,
			TheaterName: entry.TheaterName,
			StartTime:   entry.StartTime.UTC(),
			Price:       entry.Price,
			Currency:    entry.Currency,
			Seats:       domain.SortSeats(seats),
		})
	}

	return shows, nil
}
