package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/seat-reservation/internal/domain"
)

func runInTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	var txOptions pgx.TxOptions

	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		return tx.Commit(ctx)
	}

	rollbackErr := tx.Rollback(ctx)
	if rollbackErr != nil {
		return errors.Join(err, rollbackErr)
	}

	return err
}

func seatLabels(seats []domain.SeatID) []string {
	labels := make([]string, 0, len(seats))
	for _, seat := range seats {
		labels = append(labels, seat.String())
	}

	return labels
}

func parseSeatLabels(labels []string) ([]domain.SeatID, error) {
	seats := make([]domain.SeatID, 0, len(labels))
	for _, label := range labels {
		seat, err := domain.ParseSeatID(label)
		if err != nil {
			return nil, fmt.Errorf("stored seat %q: %w", label, err)
		}
		seats = append(seats, seat)
	}

	return seats, nil
}
