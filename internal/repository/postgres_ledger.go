package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/shopspring/decimal"
)

const reservationColumns = `
	token, show_id, requester_id, seats, status, amount, currency, show_starts_at,
	intent_id, reason, version, created_at, expires_at, updated_at
`

// PostgresLedger keeps the folded snapshot of every reservation next to its
// append-only event history. Both are written in the same transaction, and
// the (token, version) uniqueness of events is what rejects a stale append.
type PostgresLedger struct {
	db *pgxpool.Pool
}

func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{
		db: db,
	}
}

type eventPayload struct {
	RequesterID      string          `json:"requesterId,omitempty"`
	ShowID           int64           `json:"showId,omitempty"`
	Seats            []string        `json:"seats,omitempty"`
	Amount           decimal.Decimal `json:"amount,omitzero"`
	ExpiresAt        time.Time       `json:"expiresAt,omitzero"`
	IntentID         string          `json:"intentId,omitempty"`
	GatewayReference string          `json:"gatewayReference,omitempty"`
	Reason           string          `json:"reason,omitempty"`
}

func payloadOf(ev domain.LedgerEvent) ([]byte, error) {
	payload := eventPayload{
		IntentID:         ev.IntentID,
		GatewayReference: ev.GatewayReference,
		Reason:           ev.Reason,
	}

	if ev.Hold != nil {
		payload.RequesterID = ev.Hold.RequesterID
		payload.ShowID = ev.Hold.ShowID
		payload.Seats = seatLabels(ev.Hold.Seats)
		payload.Amount = ev.Hold.Amount
		payload.ExpiresAt = ev.Hold.ExpiresAt
	}

	return json.Marshal(payload)
}

func (p *PostgresLedger) Append(ctx context.Context, ev domain.LedgerEvent) (int64, bool, error) {
	if ev.Kind == domain.EventHeld {
		return p.appendHeld(ctx, ev)
	}

	var (
		seq     int64
		applied bool
	)

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `SELECT ` + reservationColumns + ` FROM reservations WHERE token = $1 FOR UPDATE`

		current, err := scanReservation(tx.QueryRow(ctx, query, ev.Token))
		if err != nil {
			return err
		}

		if !current.Satisfies(ev) {
			return nil
		}

		next, err := current.Apply(ev)
		if err != nil {
			return err
		}

		seq, err = insertEvent(ctx, tx, ev, next.Version)
		if err != nil {
			return err
		}

		query = `
			UPDATE reservations
			SET status = $2, intent_id = $3, reason = $4, version = $5, updated_at = $6
			WHERE token = $1
		`

		_, err = tx.Exec(ctx, query,
			next.Token,
			next.Status,
			next.IntentID,
			next.Reason,
			next.Version,
			next.UpdatedAt)
		if err != nil {
			return err
		}

		applied = true
		return nil
	})

	if err != nil {
		if isUniqueViolation(err) {
			return 0, false, nil
		}

		return 0, false, err
	}

	return seq, applied, nil
}

func (p *PostgresLedger) appendHeld(ctx context.Context, ev domain.LedgerEvent) (int64, bool, error) {
	if ev.Hold == nil {
		return 0, false, fmt.Errorf("%w: held event without reservation", domain.ErrInvalidTransition)
	}

	r := ev.Hold
	var seq int64

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO reservations (` + reservationColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`

		_, err := tx.Exec(ctx, query,
			r.Token,
			r.ShowID,
			r.RequesterID,
			seatLabels(r.Seats),
			r.Status,
			r.Amount,
			r.Currency,
			r.ShowStartsAt,
			r.IntentID,
			r.Reason,
			r.Version,
			r.CreatedAt,
			r.ExpiresAt,
			r.CreatedAt)
		if err != nil {
			return err
		}

		seq, err = insertEvent(ctx, tx, ev, r.Version)
		return err
	})

	if err != nil {
		if isUniqueViolation(err) {
			return 0, false, nil
		}

		return 0, false, err
	}

	return seq, true, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev domain.LedgerEvent, version int64) (int64, error) {
	payload, err := payloadOf(ev)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO reservation_events (token, version, kind, expected_prior, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`

	var seq int64
	err = tx.QueryRow(ctx, query,
		ev.Token,
		version,
		ev.Kind,
		ev.ExpectedPrior,
		payload,
		ev.RecordedAt).Scan(&seq)

	return seq, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (p *PostgresLedger) Latest(ctx context.Context, token string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE token = $1`

	return scanReservation(p.db.QueryRow(ctx, query, token))
}

func (p *PostgresLedger) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT token
		FROM reservations
		WHERE status IN ('pending', 'awaiting_payment') AND expires_at <= $1
		ORDER BY expires_at, token
		LIMIT $2
	`

	// LIMIT NULL means no limit
	var max *int
	if limit > 0 {
		max = &limit
	}

	rows, err := p.db.Query(ctx, query, now, max)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *PostgresLedger) Live(ctx context.Context) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status IN ('pending', 'awaiting_payment', 'confirmed')
		ORDER BY created_at, token
	`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var live []domain.Reservation

	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		live = append(live, *r)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return live, nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		r      domain.Reservation
		labels []string
	)

	err := row.Scan(
		&r.Token,
		&r.ShowID,
		&r.RequesterID,
		&labels,
		&r.Status,
		&r.Amount,
		&r.Currency,
		&r.ShowStartsAt,
		&r.IntentID,
		&r.Reason,
		&r.Version,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}

		return nil, err
	}

	r.Seats, err = parseSeatLabels(labels)
	if err != nil {
		return nil, err
	}

	r.ShowStartsAt = r.ShowStartsAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()

	return &r, nil
}
