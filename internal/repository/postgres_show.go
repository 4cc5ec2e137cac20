package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/seat-reservation/internal/domain"
)

type PostgresShowRepository struct {
	db *pgxpool.Pool
}

func NewPostgresShowRepository(db *pgxpool.Pool) *PostgresShowRepository {
	return &PostgresShowRepository{
		db: db,
	}
}

func (p *PostgresShowRepository) GetShow(ctx context.Context, showID int64) (*domain.Show, error) {
	query := `
		SELECT
			s.id,
			s.movie_title,
			s.theater_name,
			s.start_time,
			s.price,
			s.currency,
			COALESCE(
				array_agg(ss.seat_row || ss.seat_number::text ORDER BY length(ss.seat_row), ss.seat_row, ss.seat_number)
					FILTER (WHERE ss.show_id IS NOT NULL),
				'{}'
			) AS seats
		FROM shows s
		LEFT JOIN show_seats ss ON ss.show_id = s.id
		WHERE s.id = $1
		GROUP BY s.id
	`

	var (
		show   domain.Show
		labels []string
	)

	err := p.db.QueryRow(ctx, query, showID).Scan(
		&show.ID,
		&show.MovieTitle,
		&show.TheaterName,
		&show.StartTime,
		&show.Price,
		&show.Currency,
		&labels)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrShowNotFound
		}

		return nil, err
	}

	show.Seats, err = parseSeatLabels(labels)
	if err != nil {
		return nil, err
	}

	show.StartTime = show.StartTime.UTC()

	return &show, nil
}
